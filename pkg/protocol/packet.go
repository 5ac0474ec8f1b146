package protocol

import (
	"fmt"

	"github.com/irmosync/irmo/pkg/atom"
	"github.com/irmosync/irmo/pkg/wire"
)

// ReadFlags reads the packet's leading 16-bit flags word and leaves the
// cursor just past it; callers that need the cursor back at 0 after
// inspecting flags call p.SetPos(0) themselves, since every packet's
// cursor starts at 0 when freshly received.
func ReadFlags(p *wire.Packet) (uint16, error) {
	return p.ReadU16()
}

// WriteSYNInitial builds the initial connect request (§4.5): protocol
// version, the hash of the world this side offers (0 if none), the hash
// of the world this side expects the peer to offer (0 if none), and the
// local hostname.
func WriteSYNInitial(version uint16, localHash, remoteHash uint32, hostname string) *wire.Packet {
	p := wire.New()
	p.WriteU16(FlagSYN)
	p.WriteU16(version)
	p.WriteU32(localHash)
	p.WriteU32(remoteHash)
	p.WriteString(hostname)
	return p
}

// synInitialPayload is the decoded body of a WriteSYNInitial packet.
type synInitialPayload struct {
	Version    uint16
	LocalHash  uint32
	RemoteHash uint32
	Hostname   string
}

func readSYNInitial(p *wire.Packet) (*synInitialPayload, error) {
	version, err := p.ReadU16()
	if err != nil {
		return nil, err
	}
	localHash, err := p.ReadU32()
	if err != nil {
		return nil, err
	}
	remoteHash, err := p.ReadU32()
	if err != nil {
		return nil, err
	}
	hostname, err := p.ReadString()
	if err != nil {
		return nil, err
	}
	return &synInitialPayload{Version: version, LocalHash: localHash, RemoteHash: remoteHash, Hostname: hostname}, nil
}

// WriteSYNACK builds a handshake acknowledgement (§4.5).
func WriteSYNACK() *wire.Packet {
	p := wire.New()
	p.WriteU16(FlagSYN | FlagACK)
	return p
}

// WriteFIN builds a disconnect request, or a handshake refusal if reason
// is non-empty (§4.5: "followed by cstring reason if refusal").
func WriteFIN(reason string) *wire.Packet {
	p := wire.New()
	p.WriteU16(FlagSYN | FlagFIN)
	if reason != "" {
		p.WriteString(reason)
	}
	return p
}

// readFINReason reads an optional cstring reason following a SYN|FIN
// flags word: absent for a plain disconnect request, present for a
// handshake refusal.
func readFINReason(p *wire.Packet) (string, error) {
	if p.Remaining() == 0 {
		return "", nil
	}
	return p.ReadString()
}

// WriteFINACK builds a disconnect acknowledgement (§4.5).
func WriteFINACK() *wire.Packet {
	p := wire.New()
	p.WriteU16(FlagSYN | FlagFIN | FlagACK)
	return p
}

// WriteBareACK builds an ACK-only packet carrying the low 16 bits of
// the sender's next expected receive sequence (§4.5).
func WriteBareACK(recvStartLow uint16) *wire.Packet {
	p := wire.New()
	p.WriteU16(FlagACK)
	p.WriteU16(recvStartLow)
	return p
}

func readBareACK(p *wire.Packet) (uint16, error) {
	return p.ReadU16()
}

// WriteDataPacket builds an ACK|DTA packet: a cumulative ack field, the
// low bits of the first atom's sequence number, and atoms[...] grouped
// into same-kind runs of at most MaxRunLength (§4.5's atom grouping).
func WriteDataPacket(recvStartLow uint16, sendStartLow uint16, atoms []atom.Atom) (*wire.Packet, error) {
	p := wire.New()
	if err := p.WriteU16(FlagACK | FlagDTA); err != nil {
		return nil, err
	}
	if err := p.WriteU16(recvStartLow); err != nil {
		return nil, err
	}
	if err := p.WriteU16(sendStartLow); err != nil {
		return nil, err
	}

	for i := 0; i < len(atoms); {
		kind := atoms[i].Kind()
		j := i + 1
		for j < len(atoms) && j-i < MaxRunLength && atoms[j].Kind() == kind {
			j++
		}
		count := j - i
		header := byte(kind)<<5 | byte(count-1)
		if err := p.WriteU8(header); err != nil {
			return nil, err
		}
		for k := i; k < j; k++ {
			if err := atoms[k].Write(p); err != nil {
				return nil, err
			}
		}
		i = j
	}
	return p, nil
}

// dataPacketPayload is the decoded body of a WriteDataPacket packet.
// Atoms is in wire order; the caller reconstructs each one's full
// 32-bit sequence number as SendStartLow's reconstructed base plus its
// position in this slice, since only the low 16 bits of the start
// sequence travel on the wire (§4.5's stream-position wrap).
type dataPacketPayload struct {
	RecvStartLow uint16
	SendStartLow uint16
	Atoms        []atom.Atom
}

func readDataPacket(codec *atom.Codec, p *wire.Packet, source any) (*dataPacketPayload, error) {
	recvStartLow, err := p.ReadU16()
	if err != nil {
		return nil, err
	}
	sendStartLow, err := p.ReadU16()
	if err != nil {
		return nil, err
	}

	var atoms []atom.Atom
	for p.Remaining() > 0 {
		header, err := p.ReadU8()
		if err != nil {
			return nil, err
		}
		kind := atom.Kind(header >> 5)
		count := int(header&0x1F) + 1
		if !kind.Valid() {
			return nil, fmt.Errorf("protocol: data packet names unknown atom kind %d", kind)
		}
		for i := 0; i < count; i++ {
			a, err := codec.Read(kind, p, source)
			if err != nil {
				return nil, err
			}
			atoms = append(atoms, a)
		}
	}
	return &dataPacketPayload{RecvStartLow: recvStartLow, SendStartLow: sendStartLow, Atoms: atoms}, nil
}
