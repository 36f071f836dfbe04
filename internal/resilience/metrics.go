package resilience

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes breaker state, transitions and rejected calls. A nil
// *Metrics records nothing.
type Metrics struct {
	State       *prometheus.GaugeVec
	Transitions *prometheus.CounterVec
	Rejected    *prometheus.CounterVec
}

// NewMetrics registers the breaker collectors on reg, reusing collectors that
// are already registered under the same names.
func NewMetrics(namespace string, reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		State: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "breaker_state",
			Help:      "Breaker position: 0 closed, 1 open, 2 half-open.",
		}, []string{"breaker"}),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "breaker_transitions_total",
			Help:      "Breaker state changes.",
		}, []string{"breaker", "from", "to"}),
		Rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "breaker_rejected_total",
			Help:      "Calls refused while the breaker was open.",
		}, []string{"breaker"}),
	}
	var err error
	if m.State, err = registerOrReuse(reg, m.State); err != nil {
		return nil, err
	}
	if m.Transitions, err = registerOrReuse(reg, m.Transitions); err != nil {
		return nil, err
	}
	if m.Rejected, err = registerOrReuse(reg, m.Rejected); err != nil {
		return nil, err
	}
	return m, nil
}

func registerOrReuse[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func (m *Metrics) setState(name string, s State) {
	if m == nil {
		return
	}
	m.State.WithLabelValues(name).Set(float64(s))
}

func (m *Metrics) transition(name string, from, to State) {
	if m == nil {
		return
	}
	m.setState(name, to)
	m.Transitions.WithLabelValues(name, from.String(), to.String()).Inc()
}

func (m *Metrics) reject(name string) {
	if m == nil {
		return
	}
	m.Rejected.WithLabelValues(name).Inc()
}
