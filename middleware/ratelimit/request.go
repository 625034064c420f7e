package ratelimit

import (
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"admission-gateway/middleware/ratelimit/domain"
)

// httpRequest adapta *http.Request para domain.Request.
type httpRequest struct {
	r     *http.Request
	addr  string
	port  int
	query url.Values
}

// NewRequest cria a visão de r usada pelo controller. Com trustXFF, o
// endereço vem do primeiro item de X-Forwarded-For (ou de X-Real-IP) e a
// porta remota é desconhecida.
//
// Parâmetros são lidos só da query string; o corpo nunca é consumido.
func NewRequest(r *http.Request, trustXFF bool) domain.Request {
	req := &httpRequest{r: r}
	req.addr, req.port = clientAddr(r, trustXFF)
	return req
}

func clientAddr(r *http.Request, trustXFF bool) (string, int) {
	if trustXFF {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip, 0
			}
		}
		if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
			return ip, 0
		}
	}

	raw := strings.TrimSpace(r.RemoteAddr)
	host, port, err := net.SplitHostPort(raw)
	if err != nil || host == "" {
		if raw == "" {
			return "unknown", 0
		}
		return raw, 0
	}
	p, _ := strconv.Atoi(port)
	return host, p
}

func (h *httpRequest) RemoteAddr() string { return h.addr }
func (h *httpRequest) RemotePort() int    { return h.port }

func (h *httpRequest) UserAgent() (string, bool) {
	return h.Header("User-Agent")
}

func (h *httpRequest) Header(name string) (string, bool) {
	vs := h.r.Header.Values(name)
	if len(vs) == 0 {
		return "", false
	}
	return vs[0], true
}

func (h *httpRequest) Cookie(name string) (string, bool) {
	c, err := h.r.Cookie(name)
	if err != nil {
		return "", false
	}
	return c.Value, true
}

func (h *httpRequest) Parameter(name string) (string, bool) {
	if h.query == nil {
		h.query = h.r.URL.Query()
	}
	vs, ok := h.query[name]
	if !ok || len(vs) == 0 {
		return "", false
	}
	return vs[0], true
}

func (h *httpRequest) Path() string { return h.r.URL.Path }

// ServerName é o Host sem porta e sem colchetes de IPv6.
func (h *httpRequest) ServerName() string {
	host := h.r.Host
	if hst, _, err := net.SplitHostPort(host); err == nil {
		host = hst
	}
	return strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
}
