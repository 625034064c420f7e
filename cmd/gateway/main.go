package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"admission-gateway/middleware/ratelimit"
	"admission-gateway/middleware/ratelimit/application"
	"admission-gateway/middleware/ratelimit/infra"

	"github.com/alecthomas/kong"
	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	logger "github.com/sirupsen/logrus"
)

// CLI reúne as flags do gateway; cada uma também pode vir do ambiente.
// A política de admissão em si vem das variáveis RATE_* (ver infra.EnvSource).
type CLI struct {
	ListenAddr  string `help:"Address of the proxy listener." env:"LISTEN_ADDR" default:":8080"`
	AdminAddr   string `help:"Address of the admin/metrics listener (empty disables it)." env:"ADMIN_ADDR" default:":9090"`
	UpstreamURL string `help:"Upstream URL to proxy to." env:"UPSTREAM_URL" required:""`

	PolicyFile     string        `help:"Optional .env file with RATE_* keys, watched for changes." env:"RATE_POLICY_FILE" type:"path"`
	PolicyRequired bool          `help:"Skip rate limiting until the policy file exists." env:"RATE_POLICY_REQUIRED"`
	CleanupEvery   time.Duration `help:"Idle bucket sweep interval." env:"RATE_CLEANUP_EVERY" default:"30s"`
	TrustXFF       bool          `name:"trust-xff" help:"Take the client address from X-Forwarded-For." env:"TRUST_XFF"`
	AddHeaders     bool          `help:"Send X-RateLimit-Limit/Remaining headers." env:"ADD_RATELIMIT_HEADERS"`
	LogoutPath     string        `help:"Path whose successful responses reset the caller's quota." env:"RATE_LOGOUT_PATH"`
	Thumbnails     []string      `help:"Path fragments of thumbnail requests exempt from limiting." env:"RATE_THUMBNAIL_PATHS"`

	ConcurrencyMax     int           `help:"Max in-flight requests (0 disables)." env:"CONCURRENCY_MAX" default:"100"`
	ConcurrencyTimeout time.Duration `help:"How long to wait for an in-flight slot." env:"CONCURRENCY_TIMEOUT" default:"0s"`

	StatsRedisAddr     string        `help:"Redis address for decision stats (empty disables)." env:"RATE_STATS_REDIS_ADDR"`
	StatsRedisPassword string        `help:"Redis password." env:"RATE_STATS_REDIS_PASSWORD"`
	StatsRedisDB       int           `help:"Redis DB." env:"RATE_STATS_REDIS_DB" default:"0"`
	StatsPrefix        string        `help:"Redis key prefix." env:"RATE_STATS_PREFIX" default:"ratelimit:stats"`
	StatsTTL           time.Duration `help:"TTL of per-minute and per-client keys." env:"RATE_STATS_TTL" default:"24h"`
	StatsBucket        string        `help:"Time bucket for stats (minute or none)." env:"RATE_STATS_BUCKET" default:"minute" enum:"minute,none"`
	StatsTrackKeys     bool          `help:"Keep per-client counters (by fingerprint hash)." env:"RATE_STATS_TRACK_KEYS"`

	LogLevel  string `help:"Log level (debug, info, warn, error)." env:"LOG_LEVEL" default:"info"`
	LogFormat string `help:"Log format (text or json)." env:"LOG_FORMAT" default:"text" enum:"text,json"`
}

func main() {
	_ = godotenv.Load()

	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("gateway"),
		kong.Description("Reverse proxy with per-client admission control."),
		kong.UsageOnError(),
	)
	kctx.FatalIfErrorf(run(cli))
}

func run(cli CLI) error {
	if err := setupLogging(cli.LogLevel, cli.LogFormat); err != nil {
		return err
	}

	target, err := url.Parse(cli.UpstreamURL)
	if err != nil || target.Host == "" {
		return fmt.Errorf("invalid UPSTREAM_URL %q", cli.UpstreamURL)
	}

	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.WithError(err).WithField("path", r.URL.Path).Warn("proxy error")
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}

	store := infra.NewStore(infra.WithCleanupEvery(cli.CleanupEvery))

	ctrlOpts := []application.Option{
		application.WithStore(store),
		application.WithPolicySource(infra.EnvSource{File: cli.PolicyFile, Required: cli.PolicyRequired}),
		application.WithLogger(logger.StandardLogger()),
	}
	if len(cli.Thumbnails) > 0 {
		ctrlOpts = append(ctrlOpts, application.WithExternalPredicate(ratelimit.ThumbnailPredicate(cli.Thumbnails...)))
	}
	ctrl, err := application.NewController(ctrlOpts...)
	if err != nil {
		return fmt.Errorf("rate limit policy: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	promStats, err := infra.NewPrometheusStats(reg, ctrl)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}
	stats := infra.MultiStats{promStats}

	if cli.StatsRedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cli.StatsRedisAddr,
			Password: cli.StatsRedisPassword,
			DB:       cli.StatsRedisDB,
		})
		defer func() { _ = rdb.Close() }()

		pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_, err := rdb.Ping(pingCtx).Result()
		cancel()
		if err != nil {
			return fmt.Errorf("redis stats ping: %w", err)
		}

		stats = append(stats, infra.NewRedisStatsStore(
			rdb,
			infra.WithStatsPrefix(cli.StatsPrefix),
			infra.WithStatsTTL(cli.StatsTTL),
			infra.WithStatsBucket(cli.StatsBucket),
			infra.WithStatsTrackKeys(cli.StatsTrackKeys),
		))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	store.StartJanitor(ctx)

	if cli.PolicyFile != "" {
		go func() {
			err := infra.WatchPolicyFile(ctx, cli.PolicyFile, 250*time.Millisecond, func() { _ = ctrl.Reload() })
			if err != nil {
				logger.WithError(err).Error("rate limit policy watcher stopped")
			}
		}()
	}

	h := http.Handler(proxy)
	h = ratelimit.ConcurrencyMiddleware(ratelimit.ConcurrencyOptions{
		Max:            cli.ConcurrencyMax,
		RejectStatus:   http.StatusServiceUnavailable,
		AcquireTimeout: cli.ConcurrencyTimeout,
	})(h)
	h = ratelimit.Middleware(ratelimit.Options{
		Controller:          ctrl,
		Stats:               stats,
		TrustXForwardedFor:  cli.TrustXFF,
		AddRateLimitHeaders: cli.AddHeaders,
	})(h)

	router := chi.NewRouter()
	if cli.LogoutPath != "" {
		router.Handle(cli.LogoutPath, ratelimit.ResetOnLogout(ctrl, cli.TrustXFF)(h))
	}
	router.Handle("/*", h)

	servers := []*http.Server{newServer(cli.ListenAddr, router)}
	if cli.AdminAddr != "" {
		admin := chi.NewRouter()
		admin.Mount("/ratelimit", ratelimit.AdminRoutes(ctrl, cli.TrustXFF))
		admin.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		servers = append(servers, newServer(cli.AdminAddr, admin))
	}

	logFields := logger.Fields{"listen": cli.ListenAddr, "upstream": target.String(), "admin": cli.AdminAddr}
	if p, ok := ctrl.Policy(); ok {
		logFields["max_permits"] = p.MaxPermits
		logFields["window"] = p.Window
	} else {
		logFields["policy"] = "not ready"
	}
	logger.WithFields(logFields).Info("gateway starting")

	errCh := make(chan error, len(servers))
	for _, srv := range servers {
		go func(srv *http.Server) {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("%s: %w", srv.Addr, err)
			}
		}(srv)
	}

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case runErr = <-errCh:
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).WithField("addr", srv.Addr).Warn("graceful shutdown failed")
		}
	}
	return runErr
}

func newServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}
}

func setupLogging(level, format string) error {
	lvl, err := logger.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	logger.SetLevel(lvl)
	logger.SetOutput(os.Stderr)
	if format == "json" {
		logger.SetFormatter(&logger.JSONFormatter{})
	} else {
		logger.SetFormatter(&logger.TextFormatter{FullTimestamp: true})
	}
	return nil
}
