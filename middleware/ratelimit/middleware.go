package ratelimit

import (
	"net/http"
	"time"

	"admission-gateway/middleware/ratelimit/application"
	"admission-gateway/middleware/ratelimit/domain"

	"github.com/sirupsen/logrus"
)

type Options struct {
	Controller          *application.Controller
	Stats               domain.StatsStore
	TrustXForwardedFor  bool
	AddRateLimitHeaders bool
	Logger              logrus.FieldLogger
}

// Middleware aplica o controle de admissão antes de next. Requisições
// rejeitadas recebem 429 via WriteRejection; as demais seguem normalmente.
func Middleware(opts Options) func(next http.Handler) http.Handler {
	if opts.Controller == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			dec := opts.Controller.Decide(NewRequest(r, opts.TrustXForwardedFor))

			if opts.Stats != nil {
				ev := domain.StatsEvent{
					Outcome: dec.Outcome,
					Reason:  dec.Reason,
					Method:  r.Method,
					Path:    r.URL.Path,
					At:      time.Now(),
				}
				if !dec.Fingerprint.IsZero() {
					ev.FingerprintHash = dec.Fingerprint.HashHex()
				}
				if err := opts.Stats.Record(r.Context(), ev); err != nil {
					opts.Logger.WithError(err).Debug("failed to record rate limit stats")
				}
			}

			if opts.AddRateLimitHeaders && dec.Limit > 0 {
				w.Header().Set("X-RateLimit-Limit", formatInt(dec.Limit))
				w.Header().Set("X-RateLimit-Remaining", formatInt(dec.Remaining))
			}

			if err := dec.Err(); err != nil {
				rej, _ := domain.AsRejection(err)
				WriteRejection(w, rej)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// WriteRejection responde 429 com Retry-After (quando > 0) e corpo text/plain.
func WriteRejection(w http.ResponseWriter, rej *domain.Rejection) {
	msg := http.StatusText(http.StatusTooManyRequests)
	if rej != nil {
		if rej.RetryAfterSeconds > 0 {
			w.Header().Set("Retry-After", formatInt(rej.RetryAfterSeconds))
		}
		msg = rej.Error()
	}
	http.Error(w, msg, http.StatusTooManyRequests)
}
