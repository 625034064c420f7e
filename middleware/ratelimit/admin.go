package ratelimit

import (
	"encoding/json"
	"errors"
	"net/http"

	"admission-gateway/middleware/ratelimit/application"
	"admission-gateway/middleware/ratelimit/domain"

	"github.com/go-chi/chi/v5"
)

// AdminRoutes expõe as operações de gestão do controller:
//
//	GET    /slots                  buckets vivos
//	GET    /processed              checagens feitas
//	POST   /clear                  remove todos os buckets
//	POST   /purge                  remove buckets ociosos
//	POST   /reload                 relê a política
//	DELETE /buckets/self           zera o limite do cliente que chama
//	POST   /buckets/self/backoff   dobra a janela do cliente que chama
//
// Monte atrás de autenticação; nada aqui verifica permissão.
func AdminRoutes(ctrl *application.Controller, trustXFF bool) http.Handler {
	r := chi.NewRouter()

	r.Get("/slots", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]int{"slots": ctrl.SlotCount()})
	})
	r.Get("/processed", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]int64{"processed": ctrl.ProcessedCount()})
	})
	r.Post("/clear", func(w http.ResponseWriter, _ *http.Request) {
		ctrl.Clear()
		w.WriteHeader(http.StatusNoContent)
	})
	r.Post("/purge", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]int{"purged": ctrl.Purge()})
	})
	r.Post("/reload", func(w http.ResponseWriter, _ *http.Request) {
		err := ctrl.Reload()
		switch {
		case err == nil:
			w.WriteHeader(http.StatusNoContent)
		case errors.Is(err, domain.ErrPolicyNotReady):
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
		default:
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		}
	})

	r.Route("/buckets/self", func(r chi.Router) {
		r.Delete("/", func(w http.ResponseWriter, req *http.Request) {
			removed := ctrl.RemoveFor(NewRequest(req, trustXFF))
			writeJSON(w, http.StatusOK, map[string]bool{"removed": removed})
		})
		r.Post("/backoff", func(w http.ResponseWriter, req *http.Request) {
			fp, err := ctrl.Fingerprint(NewRequest(req, trustXFF))
			if err != nil {
				http.Error(w, err.Error(), http.StatusServiceUnavailable)
				return
			}
			if !ctrl.DoubleWindow(fp) {
				http.Error(w, "no rate limit bucket for this client", http.StatusNotFound)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		})
	})
	return r
}

// ResetOnLogout devolve a cota do cliente depois que next responde 2xx.
func ResetOnLogout(ctrl *application.Controller, trustXFF bool) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)
			if sw.status >= 200 && sw.status < 300 {
				ctrl.RemoveFor(NewRequest(r, trustXFF))
			}
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (s *statusWriter) WriteHeader(code int) {
	if !s.wroteHeader {
		s.status = code
		s.wroteHeader = true
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusWriter) Unwrap() http.ResponseWriter { return s.ResponseWriter }

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
