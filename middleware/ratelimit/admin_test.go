package ratelimit

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"admission-gateway/middleware/ratelimit/application"
	"admission-gateway/middleware/ratelimit/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func call(t *testing.T, h http.Handler, method, target, remote string) *httptest.ResponseRecorder {
	t.Helper()
	r := httptest.NewRequest(method, target, nil)
	if remote != "" {
		r.RemoteAddr = remote
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

func TestAdminRoutes_Counters(t *testing.T) {
	ctrl := newController(t, 1, time.Minute)
	limited := Middleware(Options{Controller: ctrl})(okHandler(nil))
	admin := AdminRoutes(ctrl, false)

	call(t, limited, http.MethodGet, "http://example/ajax/mail", "10.0.0.1:1")
	call(t, limited, http.MethodGet, "http://example/ajax/mail", "10.0.0.2:1")
	call(t, limited, http.MethodGet, "http://example/ajax/mail", "10.0.0.2:1")

	w := call(t, admin, http.MethodGet, "/slots", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, decode[map[string]int](t, w)["slots"])

	w = call(t, admin, http.MethodGet, "/processed", "")
	assert.Equal(t, int64(3), decode[map[string]int64](t, w)["processed"])

	w = call(t, admin, http.MethodPost, "/purge", "")
	assert.Equal(t, 0, decode[map[string]int](t, w)["purged"])

	w = call(t, admin, http.MethodPost, "/clear", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, 0, ctrl.SlotCount())
}

func TestAdminRoutes_SelfReset(t *testing.T) {
	ctrl := newController(t, 1, time.Minute)
	limited := Middleware(Options{Controller: ctrl})(okHandler(nil))
	admin := AdminRoutes(ctrl, false)

	require.Equal(t, http.StatusOK, call(t, limited, http.MethodGet, "http://example/", "10.0.0.1:1").Code)
	require.Equal(t, http.StatusTooManyRequests, call(t, limited, http.MethodGet, "http://example/", "10.0.0.1:1").Code)

	w := call(t, admin, http.MethodDelete, "/buckets/self", "10.0.0.1:1")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[map[string]bool](t, w)["removed"])

	assert.Equal(t, http.StatusOK, call(t, limited, http.MethodGet, "http://example/", "10.0.0.1:1").Code)
}

func TestAdminRoutes_Backoff(t *testing.T) {
	ctrl := newController(t, 1, time.Minute)
	limited := Middleware(Options{Controller: ctrl})(okHandler(nil))
	admin := AdminRoutes(ctrl, false)

	w := call(t, admin, http.MethodPost, "/buckets/self/backoff", "10.0.0.1:1")
	assert.Equal(t, http.StatusNotFound, w.Code)

	call(t, limited, http.MethodGet, "http://example/", "10.0.0.1:1")
	w = call(t, admin, http.MethodPost, "/buckets/self/backoff", "10.0.0.1:1")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = call(t, limited, http.MethodGet, "http://example/", "10.0.0.1:1")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "120", w.Header().Get("Retry-After"))
}

type flakySource struct{ err error }

func (s flakySource) Load() (domain.Policy, error) { return domain.DefaultPolicy(), s.err }

func TestAdminRoutes_Reload(t *testing.T) {
	ctrl, err := application.NewController(application.WithPolicySource(flakySource{err: domain.ErrPolicyNotReady}))
	require.NoError(t, err)
	admin := AdminRoutes(ctrl, false)
	assert.Equal(t, http.StatusServiceUnavailable, call(t, admin, http.MethodPost, "/reload", "").Code)

	ctrl, err = application.NewController(application.WithPolicySource(flakySource{}))
	require.NoError(t, err)
	admin = AdminRoutes(ctrl, false)
	assert.Equal(t, http.StatusNoContent, call(t, admin, http.MethodPost, "/reload", "").Code)
}

func TestResetOnLogout(t *testing.T) {
	ctrl := newController(t, 1, time.Minute)
	limited := Middleware(Options{Controller: ctrl})(okHandler(nil))

	logout := ResetOnLogout(ctrl, false)(okHandler(nil))
	failedLogout := ResetOnLogout(ctrl, false)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))

	call(t, limited, http.MethodGet, "http://example/", "10.0.0.1:1")
	require.Equal(t, 1, ctrl.SlotCount())

	call(t, failedLogout, http.MethodPost, "http://example/logout", "10.0.0.1:1")
	assert.Equal(t, 1, ctrl.SlotCount())

	call(t, logout, http.MethodPost, "http://example/logout", "10.0.0.1:1")
	assert.Equal(t, 0, ctrl.SlotCount())
}
