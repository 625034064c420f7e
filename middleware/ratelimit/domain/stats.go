package domain

import (
	"context"
	"time"
)

// StatsEvent representa uma decisão do controller de admissão.
//
// O cliente aparece apenas pelo hash do Fingerprint, para não espalhar IPs e
// cookies em bases como Redis/Prometheus.
type StatsEvent struct {
	FingerprintHash string
	Outcome         Outcome
	Reason          string

	Method string
	Path   string

	At time.Time
}

// StatsStore é a estratégia de persistência para estatísticas do rate limit.
//
// O middleware trata erro como best-effort (não derruba a requisição).
type StatsStore interface {
	Record(ctx context.Context, ev StatsEvent) error
}
