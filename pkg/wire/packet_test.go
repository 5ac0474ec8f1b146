package wire

import "testing"

func TestRoundTrip(t *testing.T) {
	p := New()
	if err := p.WriteU8(0x12); err != nil {
		t.Fatal(err)
	}
	if err := p.WriteU16(0x3456); err != nil {
		t.Fatal(err)
	}
	if err := p.WriteU32(0x789abcde); err != nil {
		t.Fatal(err)
	}
	if err := p.WriteString("hello"); err != nil {
		t.Fatal(err)
	}

	wantLen := 1 + 2 + 4 + len("hello") + 1
	if p.Len() != wantLen {
		t.Fatalf("len = %d, want %d", p.Len(), wantLen)
	}

	p.SetPos(0)
	u8, err := p.ReadU8()
	if err != nil || u8 != 0x12 {
		t.Fatalf("ReadU8 = %v, %v", u8, err)
	}
	u16, err := p.ReadU16()
	if err != nil || u16 != 0x3456 {
		t.Fatalf("ReadU16 = %v, %v", u16, err)
	}
	u32, err := p.ReadU32()
	if err != nil || u32 != 0x789abcde {
		t.Fatalf("ReadU32 = %v, %v", u32, err)
	}
	s, err := p.ReadString()
	if err != nil || s != "hello" {
		t.Fatalf("ReadString = %q, %v", s, err)
	}
}

func TestReadPastEndFails(t *testing.T) {
	p := New()
	_ = p.WriteU8(1)
	p.SetPos(0)
	if _, err := p.ReadU8(); err != nil {
		t.Fatal(err)
	}
	if _, err := p.ReadU8(); err != ErrShortBuffer {
		t.Fatalf("want ErrShortBuffer, got %v", err)
	}
}

func TestUnterminatedString(t *testing.T) {
	p := FromBytes([]byte{'a', 'b', 'c'})
	if _, err := p.ReadString(); err != ErrUnterminatedString {
		t.Fatalf("want ErrUnterminatedString, got %v", err)
	}
}

func TestReadOnlyPacketRejectsWrites(t *testing.T) {
	p := FromBytes([]byte{1, 2, 3})
	if err := p.WriteU8(4); err != ErrReadOnly {
		t.Fatalf("want ErrReadOnly, got %v", err)
	}
}

func TestGrowsOnDemand(t *testing.T) {
	p := New()
	for i := 0; i < 1000; i++ {
		_ = p.WriteU8(byte(i))
	}
	p.SetPos(0)
	for i := 0; i < 1000; i++ {
		v, err := p.ReadU8()
		if err != nil || v != byte(i) {
			t.Fatalf("at %d: %v, %v", i, v, err)
		}
	}
}
