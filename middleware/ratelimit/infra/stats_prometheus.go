package infra

import (
	"context"
	"errors"

	"admission-gateway/middleware/ratelimit/domain"

	"github.com/prometheus/client_golang/prometheus"
)

// Gauges expõe os contadores vivos do controller para os coletores.
type Gauges interface {
	ProcessedCount() int64
	SlotCount() int
}

// PrometheusStats publica as decisões como métricas Prometheus:
//
//	admission_decisions_total{outcome,reason}
//	admission_processed_total   (lido do controller na coleta)
//	admission_slots             (buckets vivos, lido na coleta)
type PrometheusStats struct {
	decisions  *prometheus.CounterVec
	collectors []prometheus.Collector
}

var _ domain.StatsStore = (*PrometheusStats)(nil)

// NewPrometheusStats cria os coletores e registra em reg. g pode ser nil.
func NewPrometheusStats(reg prometheus.Registerer, g Gauges) (*PrometheusStats, error) {
	s := &PrometheusStats{
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "admission",
			Name:      "decisions_total",
			Help:      "Admission decisions by outcome.",
		}, []string{"outcome", "reason"}),
	}
	s.collectors = append(s.collectors, s.decisions)

	if g != nil {
		s.collectors = append(s.collectors,
			prometheus.NewCounterFunc(prometheus.CounterOpts{
				Namespace: "admission",
				Name:      "processed_total",
				Help:      "Requests that went through a rate limit bucket.",
			}, func() float64 { return float64(g.ProcessedCount()) }),
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace: "admission",
				Name:      "slots",
				Help:      "Live rate limit buckets.",
			}, func() float64 { return float64(g.SlotCount()) }),
		)
	}

	if reg != nil {
		for _, c := range s.collectors {
			if err := reg.Register(c); err != nil {
				var are prometheus.AlreadyRegisteredError
				if errors.As(err, &are) {
					if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok && c == prometheus.Collector(s.decisions) {
						s.decisions = existing
					}
					continue
				}
				return nil, err
			}
		}
	}
	return s, nil
}

func (s *PrometheusStats) Record(_ context.Context, ev domain.StatsEvent) error {
	s.decisions.WithLabelValues(ev.Outcome.String(), ev.Reason).Inc()
	return nil
}

// Decisions expõe o vetor (testes).
func (s *PrometheusStats) Decisions() *prometheus.CounterVec { return s.decisions }

// MultiStats repassa o evento para todos os stores, devolvendo o primeiro erro.
type MultiStats []domain.StatsStore

var _ domain.StatsStore = MultiStats(nil)

func (m MultiStats) Record(ctx context.Context, ev domain.StatsEvent) error {
	var first error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Record(ctx, ev); err != nil && first == nil {
			first = err
		}
	}
	return first
}
