package application

import (
	"context"
	"time"

	"admission-gateway/middleware/ratelimit/domain"
)

// ConcurrencyGate limita requisições em voo, independente do limite por cliente.
// Não sabe nada sobre HTTP.
type ConcurrencyGate struct {
	Pool           domain.SlotPool
	AcquireTimeout time.Duration
}

// Acquire tenta ocupar uma vaga.
//   - Sem Pool, sempre consegue.
//   - AcquireTimeout <= 0 espera até ctx encerrar.
//   - AcquireTimeout > 0 desiste após o timeout.
//
// Com ok=false nenhuma vaga foi ocupada e release é nil.
func (g ConcurrencyGate) Acquire(ctx context.Context) (release func(), ok bool) {
	if g.Pool == nil {
		return func() {}, true
	}
	if g.AcquireTimeout <= 0 {
		return g.Pool.Acquire(ctx)
	}

	acqCtx, cancel := context.WithTimeout(ctx, g.AcquireTimeout)
	defer cancel()
	return g.Pool.Acquire(acqCtx)
}

// InUse retorna as vagas ocupadas (0 sem Pool).
func (g ConcurrencyGate) InUse() int {
	if g.Pool == nil {
		return 0
	}
	return g.Pool.InUse()
}
