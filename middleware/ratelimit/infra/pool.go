package infra

import (
	"context"
	"sync"
	"sync/atomic"

	"admission-gateway/middleware/ratelimit/domain"

	"golang.org/x/sync/semaphore"
)

// SemaphorePool limita requisições em voo com um semáforo ponderado.
type SemaphorePool struct {
	sem   *semaphore.Weighted
	inUse atomic.Int64
}

var _ domain.SlotPool = (*SemaphorePool)(nil)

// NewSemaphorePool retorna nil quando max <= 0 (sem limite).
func NewSemaphorePool(max int) *SemaphorePool {
	if max <= 0 {
		return nil
	}
	return &SemaphorePool{sem: semaphore.NewWeighted(int64(max))}
}

func (p *SemaphorePool) Acquire(ctx context.Context) (func(), bool) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, false
	}
	p.inUse.Add(1)

	var once sync.Once
	return func() {
		once.Do(func() {
			p.inUse.Add(-1)
			p.sem.Release(1)
		})
	}, true
}

func (p *SemaphorePool) InUse() int { return int(p.inUse.Load()) }
