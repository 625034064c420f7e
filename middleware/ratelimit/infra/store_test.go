package infra

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"admission-gateway/middleware/ratelimit/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, time.March, 3, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func fp(addr string) domain.Fingerprint { return domain.NewFingerprint(addr, 0, nil) }

func factoryAt(clock *fakeClock, capacity int, window time.Duration) func() *domain.RateState {
	return func() *domain.RateState { return domain.NewRateState(capacity, window, clock.Now()) }
}

func TestStore_GetSameKeyReturnsSameState(t *testing.T) {
	clock := newFakeClock()
	s := NewStore(WithStoreClock(clock.Now))

	l1 := s.GetOrCreate(fp("k"), factoryAt(clock, 1, time.Second))
	l2 := s.GetOrCreate(fp("k"), factoryAt(clock, 1, time.Second))
	if l1 != l2 {
		t.Fatalf("expected same state pointer for same fingerprint")
	}
	assert.Equal(t, 1, s.Len())
}

func TestStore_ConcurrentFirstAccessBuildsOnce(t *testing.T) {
	clock := newFakeClock()
	s := NewStore(WithStoreClock(clock.Now))

	var built atomic.Int64
	factory := func() *domain.RateState {
		built.Add(1)
		time.Sleep(time.Millisecond)
		return domain.NewRateState(10, time.Second, clock.Now())
	}

	const n = 64
	states := make([]*domain.RateState, n)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			states[i] = s.GetOrCreate(fp("same"), factory)
		}(i)
	}
	close(start)
	wg.Wait()

	assert.EqualValues(t, 1, built.Load())
	for i := 1; i < n; i++ {
		require.Same(t, states[0], states[i])
	}
	assert.Equal(t, 1, s.Len())
}

func TestStore_GetDoesNotCreate(t *testing.T) {
	s := NewStore()

	_, ok := s.Get(fp("absent"))
	assert.False(t, ok)
	assert.Equal(t, 0, s.Len())
}

func TestStore_CleanupRemovesIdleEntries(t *testing.T) {
	clock := newFakeClock()
	s := NewStore(WithStoreClock(clock.Now), WithIdleTTL(1100*time.Millisecond), WithCleanupEvery(0))

	before := s.GetOrCreate(fp("k"), factoryAt(clock, 1, time.Second))
	clock.Advance(time.Second)
	assert.Equal(t, 0, s.Cleanup(), "entry is not idle long enough yet")

	clock.Advance(2 * time.Second)
	assert.Equal(t, 1, s.Cleanup())
	assert.True(t, before.Deprecated())
	assert.Equal(t, 0, s.Len())

	after := s.GetOrCreate(fp("k"), factoryAt(clock, 1, time.Second))
	if before == after {
		t.Fatalf("expected state to be recreated after cleanup")
	}
}

func TestStore_DoubledWindowExtendsIdleTTL(t *testing.T) {
	clock := newFakeClock()
	s := NewStore(WithStoreClock(clock.Now), WithIdleTTL(1100*time.Millisecond))

	st := s.GetOrCreate(fp("k"), factoryAt(clock, 1, time.Second))
	st.DoubleWindow()
	st.DoubleWindow() // 4s -> ttl 4.4s

	clock.Advance(3 * time.Second)
	assert.Equal(t, 0, s.Cleanup())
	clock.Advance(2 * time.Second)
	assert.Equal(t, 1, s.Cleanup())
}

func TestStore_DiscardOnlyMatchingState(t *testing.T) {
	clock := newFakeClock()
	s := NewStore(WithStoreClock(clock.Now))

	old := s.GetOrCreate(fp("k"), factoryAt(clock, 1, time.Second))
	require.True(t, s.Discard(fp("k"), old))

	fresh := s.GetOrCreate(fp("k"), factoryAt(clock, 1, time.Second))
	assert.False(t, s.Discard(fp("k"), old), "stale state must not evict its replacement")

	got, ok := s.Get(fp("k"))
	require.True(t, ok)
	assert.Same(t, fresh, got)
}

func TestStore_InvalidateDeprecatesState(t *testing.T) {
	clock := newFakeClock()
	s := NewStore(WithStoreClock(clock.Now))

	st := s.GetOrCreate(fp("k"), factoryAt(clock, 1, time.Second))
	assert.True(t, s.Invalidate(fp("k")))
	assert.False(t, s.Invalidate(fp("k")))

	assert.Equal(t, domain.ResultDeprecated, st.Consume(clock.Now()))
	assert.Equal(t, 0, s.Len())
}

func TestStore_TrimEvictsLeastRecentlyUsed(t *testing.T) {
	clock := newFakeClock()
	s := NewStore(WithStoreClock(clock.Now), WithCapacity(2), WithIdleTTL(time.Hour))

	for i := 0; i < 4; i++ {
		s.GetOrCreate(fp("c"+strconv.Itoa(i)), factoryAt(clock, 1, time.Second))
		clock.Advance(time.Millisecond)
	}
	// c0 is touched again, so c1 and c2 are the oldest
	s.Get(fp("c0"))

	assert.Equal(t, 2, s.PurgeExpired(clock.Now()))
	assert.Equal(t, 2, s.Len())

	_, ok := s.Get(fp("c0"))
	assert.True(t, ok)
	_, ok = s.Get(fp("c3"))
	assert.True(t, ok)
	_, ok = s.Get(fp("c1"))
	assert.False(t, ok)
}

func TestStore_Clear(t *testing.T) {
	clock := newFakeClock()
	s := NewStore(WithStoreClock(clock.Now))
	for i := 0; i < 5; i++ {
		s.GetOrCreate(fp("c"+strconv.Itoa(i)), factoryAt(clock, 1, time.Second))
	}

	s.Clear()
	assert.Equal(t, 0, s.Len())
}

func TestStore_JanitorWakesOnOverflow(t *testing.T) {
	clock := newFakeClock()
	s := NewStore(WithStoreClock(clock.Now), WithCapacity(1), WithIdleTTL(time.Hour), WithCleanupEvery(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.StartJanitor(ctx)

	s.GetOrCreate(fp("a"), factoryAt(clock, 1, time.Second))
	clock.Advance(time.Millisecond)
	s.GetOrCreate(fp("b"), factoryAt(clock, 1, time.Second))

	assert.Eventually(t, func() bool { return s.Len() == 1 }, time.Second, 5*time.Millisecond)
}
