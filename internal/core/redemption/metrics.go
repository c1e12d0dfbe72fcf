package redemption

import (
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the engine's Prometheus collectors. A nil *Metrics records
// nothing.
//
//   - vaultd_redemption_requests_total{channel,path}
//   - vaultd_redemption_transitions_total{to}
//   - vaultd_redemption_liability
//   - vaultd_pending_approval_total
//   - vaultd_settlement_shortfalls_total
type Metrics struct {
	requests     *prometheus.CounterVec
	transitions  *prometheus.CounterVec
	liability    prometheus.Gauge
	pendingTotal prometheus.Gauge
	shortfalls   prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg when reg is
// not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vaultd_redemption_requests_total",
				Help: "Redemption requests accepted, by channel and path",
			},
			[]string{"channel", "path"},
		),
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vaultd_redemption_transitions_total",
				Help: "Redemption state transitions by target status",
			},
			[]string{"to"},
		),
		liability: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "vaultd_redemption_liability",
				Help: "Booked but unsettled gross redemption amount, in asset base units",
			},
		),
		pendingTotal: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "vaultd_pending_approval_total",
				Help: "Gross amount of requests awaiting approval, in asset base units",
			},
		),
		shortfalls: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "vaultd_settlement_shortfalls_total",
				Help: "Settlements rejected for insufficient liquidity",
			},
		),
	}
	if reg != nil {
		reg.MustRegister(m.requests, m.transitions, m.liability, m.pendingTotal, m.shortfalls)
	}
	return m
}

func (m *Metrics) requested(ch Channel, needsApproval bool) {
	if m == nil {
		return
	}
	path := "direct"
	if needsApproval {
		path = "approval"
	}
	m.requests.WithLabelValues(ch.String(), path).Inc()
}

func (m *Metrics) transition(to Status) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(to.String()).Inc()
}

func (m *Metrics) shortfall() {
	if m == nil {
		return
	}
	m.shortfalls.Inc()
}

func (m *Metrics) observe(liability, pending *uint256.Int) {
	if m == nil {
		return
	}
	m.liability.Set(liability.Float64())
	m.pendingTotal.Set(pending.Float64())
}
