package ratelimit

import (
	"net/http"
	"strings"

	"admission-gateway/middleware/ratelimit/domain"
)

// ThumbnailPredicate isenta GETs de miniaturas: path contendo algum dos
// fragmentos (padrão "/thumbnail") ou o parâmetro action=thumbnail.
// Serve como application.WithExternalPredicate.
func ThumbnailPredicate(fragments ...string) func(domain.Request) bool {
	if len(fragments) == 0 {
		fragments = []string{"/thumbnail"}
	}
	lowered := make([]string, 0, len(fragments))
	for _, f := range fragments {
		if f = strings.ToLower(strings.TrimSpace(f)); f != "" {
			lowered = append(lowered, f)
		}
	}

	return func(req domain.Request) bool {
		if m, ok := req.(interface{ Method() string }); ok && m.Method() != http.MethodGet {
			return false
		}
		if action, ok := req.Parameter("action"); ok && strings.EqualFold(action, "thumbnail") {
			return true
		}
		path := strings.ToLower(req.Path())
		for _, f := range lowered {
			if strings.Contains(path, f) {
				return true
			}
		}
		return false
	}
}

// Method expõe o método HTTP para predicados como ThumbnailPredicate.
func (h *httpRequest) Method() string { return h.r.Method }
