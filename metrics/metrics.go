// Package metrics exposes the bridge's runtime counters as Prometheus
// metrics, following the same registration style as the rest of the
// example pack's telemetry layers: a small set of vector metrics
// registered once at startup, incremented from the hot path via a
// thin Recorder interface so the transfer engine itself never imports
// the Prometheus client directly.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Recorder is the hot-path facing contract. TransferUnits and the
// bridge core hold one of these (defaulting to Noop) rather than a
// concrete Prometheus type, so tests can swap in a counting fake.
type Recorder interface {
	TransferOK(connectionID string)
	TransferDiscardedEpoch(connectionID string)
	RecvError(connectionID string)
	SendError(connectionID string)
	AdminOp(op string)
	Tick()
}

// Noop discards every recording. It is the zero-value default so
// unwired units never nil-check their recorder.
type Noop struct{}

func (Noop) TransferOK(string)            {}
func (Noop) TransferDiscardedEpoch(string) {}
func (Noop) RecvError(string)             {}
func (Noop) SendError(string)             {}
func (Noop) AdminOp(string)               {}
func (Noop) Tick()                        {}

// Prometheus is the production Recorder, registering its vectors
// against the provided registerer (typically prometheus.DefaultRegisterer).
type Prometheus struct {
	transfersTotal  *prometheus.CounterVec
	discardedTotal  *prometheus.CounterVec
	recvErrorsTotal *prometheus.CounterVec
	sendErrorsTotal *prometheus.CounterVec
	adminOpsTotal   *prometheus.CounterVec
	ticksTotal      prometheus.Counter
}

// NewPrometheus builds and registers a Prometheus recorder. Passing a
// nil registerer uses prometheus.DefaultRegisterer.
func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	p := &Prometheus{
		transfersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pdu_bridge",
			Name:      "transfers_total",
			Help:      "PDUs successfully forwarded, by connection id.",
		}, []string{"connection_id"}),
		discardedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pdu_bridge",
			Name:      "epoch_discards_total",
			Help:      "PDUs silently discarded for an epoch mismatch, by connection id.",
		}, []string{"connection_id"}),
		recvErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pdu_bridge",
			Name:      "recv_errors_total",
			Help:      "Source endpoint recv failures, by connection id.",
		}, []string{"connection_id"}),
		sendErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pdu_bridge",
			Name:      "send_errors_total",
			Help:      "Destination endpoint send failures, by connection id.",
		}, []string{"connection_id"}),
		adminOpsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pdu_bridge",
			Name:      "admin_ops_total",
			Help:      "Admin operations applied to the running core, by kind.",
		}, []string{"op"}),
		ticksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pdu_bridge",
			Name:      "cyclic_ticks_total",
			Help:      "Driver loop iterations of BridgeCore.CyclicTrigger.",
		}),
	}
	reg.MustRegister(p.transfersTotal, p.discardedTotal, p.recvErrorsTotal, p.sendErrorsTotal, p.adminOpsTotal, p.ticksTotal)
	return p
}

func (p *Prometheus) TransferOK(connectionID string) {
	p.transfersTotal.WithLabelValues(connectionID).Inc()
}

func (p *Prometheus) TransferDiscardedEpoch(connectionID string) {
	p.discardedTotal.WithLabelValues(connectionID).Inc()
}

func (p *Prometheus) RecvError(connectionID string) {
	p.recvErrorsTotal.WithLabelValues(connectionID).Inc()
}

func (p *Prometheus) SendError(connectionID string) {
	p.sendErrorsTotal.WithLabelValues(connectionID).Inc()
}

func (p *Prometheus) AdminOp(op string) {
	p.adminOpsTotal.WithLabelValues(op).Inc()
}

func (p *Prometheus) Tick() {
	p.ticksTotal.Inc()
}
