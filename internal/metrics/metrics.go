// Package metrics exposes a Prometheus registry for pkg/protocol's
// connection/world counters plus a gopsutil-backed process resource
// sampler, grounded on go-server-3/internal/metrics/metrics.go (registry
// shape) and go-server/internal/metrics/system.go (gopsutil sampling).
package metrics

import (
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/irmosync/irmo/internal/debug"
	"github.com/irmosync/irmo/pkg/atom"
)

// Registry wraps the Prometheus collectors a pkg/protocol.Server reports
// through: active connections, handshake outcomes, atom traffic, and
// per-connection congestion state (§4.5).
type Registry struct {
	ActiveClients prometheus.Gauge

	HandshakeSuccess prometheus.Counter
	HandshakeRefused prometheus.Counter
	Disconnects      prometheus.Counter
	DeadPeers        prometheus.Counter
	Retransmits      prometheus.Counter

	AtomsSent     *prometheus.CounterVec
	AtomsReceived *prometheus.CounterVec
	AtomsDropped  prometheus.Counter

	Cwnd *prometheus.GaugeVec
	RTT  *prometheus.GaugeVec
}

// NewRegistry creates and registers the collectors above against the
// default Prometheus registry, the way go-server-3's NewRegistry does.
func NewRegistry() *Registry {
	return &Registry{
		ActiveClients: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "irmo_active_clients",
			Help: "Number of connections currently in the CONNECTED state",
		}),
		HandshakeSuccess: promauto.NewCounter(prometheus.CounterOpts{
			Name: "irmo_handshakes_succeeded_total",
			Help: "Total number of handshakes that reached CONNECTED",
		}),
		HandshakeRefused: promauto.NewCounter(prometheus.CounterOpts{
			Name: "irmo_handshakes_refused_total",
			Help: "Total number of handshakes refused (interface mismatch, admission control)",
		}),
		Disconnects: promauto.NewCounter(prometheus.CounterOpts{
			Name: "irmo_disconnects_total",
			Help: "Total number of connections torn down",
		}),
		DeadPeers: promauto.NewCounter(prometheus.CounterOpts{
			Name: "irmo_dead_peers_total",
			Help: "Total number of connections forced DISCONNECTED by the dead-peer timeout",
		}),
		Retransmits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "irmo_retransmits_total",
			Help: "Total number of times the oldest unacked atom in a send window was retransmitted",
		}),
		AtomsSent: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "irmo_atoms_sent_total",
			Help: "Total number of atoms enqueued for delivery, by kind",
		}, []string{"kind"}),
		AtomsReceived: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "irmo_atoms_received_total",
			Help: "Total number of atoms applied from a peer, by kind",
		}, []string{"kind"}),
		AtomsDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "irmo_atoms_dropped_total",
			Help: "Total number of malformed packets or atoms silently dropped",
		}),
		Cwnd: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "irmo_congestion_window_bytes",
			Help: "Current AIMD congestion window, by peer address",
		}, []string{"peer"}),
		RTT: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "irmo_rtt_milliseconds",
			Help: "Current smoothed RTT estimate, by peer address",
		}, []string{"peer"}),
	}
}

// Handler returns an HTTP handler exposing the registry's collectors.
func (r *Registry) Handler() http.Handler {
	return promhttp.Handler()
}

// KindLabel maps an atom kind to the Prometheus label used by AtomsSent
// and AtomsReceived. atom.Kind values are always one of the seven fixed
// constants the package declares; reaching default here would mean a new
// kind was added to pkg/atom without updating this table, an internal
// bug rather than anything a caller or peer could trigger.
func KindLabel(k atom.Kind) string {
	switch k {
	case atom.KindNull:
		return "null"
	case atom.KindNewObject:
		return "new_object"
	case atom.KindChange:
		return "change"
	case atom.KindDestroy:
		return "destroy"
	case atom.KindMethod:
		return "method"
	case atom.KindSendWindow:
		return "send_window"
	case atom.KindSyncPoint:
		return "sync_point"
	default:
		debug.Invariant(false, "metrics: unhandled atom kind %d", k)
		return "unknown"
	}
}

// Sampler reports process resource usage via gopsutil, the way
// go-server/internal/metrics/system.go samples CPU/memory for its
// emergency-brake checks. internal/resource consumes RSS() to gate
// admission.
type Sampler struct {
	proc *process.Process
}

// NewSampler builds a Sampler bound to the current process.
func NewSampler() (*Sampler, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, err
	}
	return &Sampler{proc: proc}, nil
}

// RSS returns the process's current resident set size in bytes, or 0 if
// it could not be sampled (treated as "unknown, don't reject" by
// internal/resource).
func (s *Sampler) RSS() int64 {
	info, err := s.proc.MemoryInfo()
	if err != nil || info == nil {
		return 0
	}
	return int64(info.RSS)
}
