package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"admission-gateway/middleware/ratelimit"
	"admission-gateway/middleware/ratelimit/application"
	"admission-gateway/middleware/ratelimit/domain"
	"admission-gateway/middleware/ratelimit/infra"

	logger "github.com/sirupsen/logrus"
)

func main() {
	// Exemplo: controle de admissão direto no seu webserver (sem proxy).
	store := infra.NewStore(infra.WithCleanupEvery(10 * time.Second))

	policy := domain.DefaultPolicy()
	policy.MaxPermits = 20
	policy.Window = time.Minute
	policy.KeyParts = []string{"http-session"}

	ctrl, err := application.NewController(
		application.WithStore(store),
		application.WithPolicy(policy),
		application.WithExternalPredicate(ratelimit.ThumbnailPredicate()),
	)
	if err != nil {
		logger.WithError(err).Fatal("invalid rate limit policy")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	store.StartJanitor(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	mux.Handle("/logout", ratelimit.ResetOnLogout(ctrl, true)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: domain.DefaultSessionCookie, MaxAge: -1})
		w.WriteHeader(http.StatusOK)
	})))
	mux.Handle("/ratelimit/", http.StripPrefix("/ratelimit", ratelimit.AdminRoutes(ctrl, true)))

	h := http.Handler(mux)
	h = ratelimit.ConcurrencyMiddleware(ratelimit.ConcurrencyOptions{Max: 50})(h)
	h = ratelimit.Middleware(ratelimit.Options{
		Controller:          ctrl,
		Stats:               infra.NewMemoryStatsStore(),
		TrustXForwardedFor:  true,
		AddRateLimitHeaders: true,
	})(h)

	addr := ":8081"
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		addr = v
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.WithField("addr", addr).Info("example server listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Fatal("server error")
	}
}
