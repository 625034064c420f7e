package infra

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"admission-gateway/middleware/ratelimit/domain"

	logger "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// Store é o BucketStore em memória: sync.Map para leitura sem lock,
// singleflight para criação única por Fingerprint e uma limpeza passiva
// (janitor) para entradas ociosas e excesso de capacidade.
type Store struct {
	entries sync.Map // string(Fingerprint.Key) -> *storeEntry
	size    atomic.Int64
	group   singleflight.Group

	idleTTL      atomic.Int64 // ns
	capacity     atomic.Int64
	cleanupEvery time.Duration
	now          func() time.Time

	wake chan struct{}
}

type storeEntry struct {
	fp       domain.Fingerprint
	state    *domain.RateState
	accessed atomic.Int64 // ms
}

func (e *storeEntry) touch(now time.Time) { e.accessed.Store(now.UnixMilli()) }

var _ domain.BucketStore = (*Store)(nil)

type StoreOption func(*Store)

// WithIdleTTL define o TTL mínimo de ociosidade. Cada entrada usa
// max(idleTTL, 1.1x a janela atual do bucket).
func WithIdleTTL(d time.Duration) StoreOption {
	return func(s *Store) { s.idleTTL.Store(int64(d)) }
}

func WithCleanupEvery(d time.Duration) StoreOption {
	return func(s *Store) { s.cleanupEvery = d }
}

// WithCapacity define o limite (soft) de entradas. 0 = sem limite.
func WithCapacity(n int) StoreOption {
	return func(s *Store) { s.capacity.Store(int64(n)) }
}

func WithStoreClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		cleanupEvery: 30 * time.Second,
		now:          time.Now,
		wake:         make(chan struct{}, 1),
	}
	s.idleTTL.Store(int64(domain.DefaultWindow + domain.DefaultWindow/10))
	s.capacity.Store(domain.DefaultStoreCapacity)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Configure aplica TTL e capacidade de um novo snapshot de Policy.
func (s *Store) Configure(idleTTL time.Duration, capacity int) {
	s.idleTTL.Store(int64(idleTTL))
	s.capacity.Store(int64(capacity))
}

func (s *Store) CleanupEvery() time.Duration { return s.cleanupEvery }

// GetOrCreate implementa domain.BucketStore.
func (s *Store) GetOrCreate(fp domain.Fingerprint, factory func() *domain.RateState) *domain.RateState {
	key := fp.Key()
	now := s.now()

	if v, ok := s.entries.Load(key); ok {
		ent := v.(*storeEntry)
		ent.touch(now)
		return ent.state
	}

	v, _, _ := s.group.Do(key, func() (any, error) {
		// outra chamada pode ter criado a entrada entre o Load e o Do
		if v, ok := s.entries.Load(key); ok {
			return v, nil
		}
		ent := &storeEntry{fp: fp, state: factory()}
		ent.touch(now)
		s.entries.Store(key, ent)
		if n, c := s.size.Add(1), s.capacity.Load(); c > 0 && n > c {
			s.signalOverflow()
		}
		return ent, nil
	})
	ent := v.(*storeEntry)
	ent.touch(now)
	return ent.state
}

func (s *Store) Get(fp domain.Fingerprint) (*domain.RateState, bool) {
	v, ok := s.entries.Load(fp.Key())
	if !ok {
		return nil, false
	}
	ent := v.(*storeEntry)
	ent.touch(s.now())
	return ent.state, true
}

func (s *Store) Invalidate(fp domain.Fingerprint) bool {
	v, ok := s.entries.LoadAndDelete(fp.Key())
	if !ok {
		return false
	}
	s.size.Add(-1)
	v.(*storeEntry).state.Deprecate()
	return true
}

func (s *Store) Discard(fp domain.Fingerprint, st *domain.RateState) bool {
	key := fp.Key()
	v, ok := s.entries.Load(key)
	if !ok || v.(*storeEntry).state != st {
		return false
	}
	return s.remove(key, v.(*storeEntry))
}

func (s *Store) remove(key string, ent *storeEntry) bool {
	if !s.entries.CompareAndDelete(key, ent) {
		return false
	}
	s.size.Add(-1)
	ent.state.Deprecate()
	return true
}

func (s *Store) Len() int { return int(s.size.Load()) }

// PurgeExpired remove entradas ociosas e, se o store passou da capacidade,
// as menos recentemente acessadas. Retorna quantas foram removidas.
func (s *Store) PurgeExpired(now time.Time) int {
	removed := 0
	nowMs := now.UnixMilli()
	minTTL := time.Duration(s.idleTTL.Load())

	s.entries.Range(func(k, v any) bool {
		ent := v.(*storeEntry)
		ttl := minTTL
		if w := ent.state.Window(); w+w/10 > ttl {
			ttl = w + w/10
		}
		if nowMs-ent.accessed.Load() <= ttl.Milliseconds() {
			return true
		}
		if ent.state.MarkDeprecatedIfElapsed(now, ttl) && s.remove(k.(string), ent) {
			removed++
		}
		return true
	})

	removed += s.trim()
	return removed
}

// trim despeja as entradas mais antigas até voltar à capacidade.
func (s *Store) trim() int {
	capacity := s.capacity.Load()
	over := s.size.Load() - capacity
	if capacity <= 0 || over <= 0 {
		return 0
	}

	type candidate struct {
		key      string
		ent      *storeEntry
		accessed int64
	}
	all := make([]candidate, 0, s.size.Load())
	s.entries.Range(func(k, v any) bool {
		ent := v.(*storeEntry)
		all = append(all, candidate{key: k.(string), ent: ent, accessed: ent.accessed.Load()})
		return true
	})
	sort.Slice(all, func(i, j int) bool { return all[i].accessed < all[j].accessed })

	removed := 0
	for _, c := range all {
		if int64(removed) >= over {
			break
		}
		if s.remove(c.key, c.ent) {
			removed++
		}
	}
	logger.WithFields(logger.Fields{"evicted": removed, "capacity": capacity}).Debug("rate limit store over capacity")
	return removed
}

// Clear remove todas as entradas.
func (s *Store) Clear() {
	s.entries.Range(func(k, v any) bool {
		s.remove(k.(string), v.(*storeEntry))
		return true
	})
}

func (s *Store) Cleanup() int {
	return s.PurgeExpired(s.now())
}

func (s *Store) signalOverflow() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// StartJanitor inicia uma goroutine que limpa chaves inativas periodicamente
// e também quando o store estoura a capacidade. Pare cancelando o contexto.
func (s *Store) StartJanitor(ctx DoneContext) {
	if s.cleanupEvery <= 0 {
		return
	}

	t := time.NewTicker(s.cleanupEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.Cleanup()
			case <-s.wake:
				s.Cleanup()
			}
		}
	}()
}

// DoneContext é o mínimo necessário para aceitar context.Context sem importar context aqui.
type DoneContext interface {
	Done() <-chan struct{}
}
