package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"admission-gateway/middleware/ratelimit/infra"
)

func TestConcurrencyMiddleware_TimesOutWhenNoSlot(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	var startedOnce sync.Once

	// segura a vaga até liberarmos
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		startedOnce.Do(func() { close(started) })
		<-release
		w.WriteHeader(http.StatusOK)
	})

	pool := infra.NewSemaphorePool(1)
	h := ConcurrencyMiddleware(ConcurrencyOptions{
		Pool:           pool,
		AcquireTimeout: 25 * time.Millisecond,
	})(next)

	first := make(chan int, 1)
	go func() {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "http://example/", nil))
		first <- w.Code
	}()

	select {
	case <-started:
	case <-time.After(time.Second):
		close(release)
		t.Fatalf("timeout waiting first request to start")
	}
	if pool.InUse() != 1 {
		close(release)
		t.Fatalf("expected one slot in use, got %d", pool.InUse())
	}

	// a segunda não consegue vaga dentro do timeout
	w2 := httptest.NewRecorder()
	h.ServeHTTP(w2, httptest.NewRequest(http.MethodGet, "http://example/", nil))
	if w2.Code != http.StatusServiceUnavailable {
		close(release)
		t.Fatalf("expected second request 503, got %d", w2.Code)
	}

	close(release)
	if code := <-first; code != http.StatusOK {
		t.Fatalf("expected first request 200, got %d", code)
	}
	if pool.InUse() != 0 {
		t.Fatalf("expected slot to be released, got %d in use", pool.InUse())
	}
}

func TestConcurrencyMiddleware_DisabledWithoutMax(t *testing.T) {
	calls := 0
	h := ConcurrencyMiddleware(ConcurrencyOptions{})(okHandler(&calls))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "http://example/", nil))
	if calls != 1 {
		t.Fatalf("expected passthrough")
	}
}
