package application

import (
	"fmt"
	"strings"

	"admission-gateway/middleware/ratelimit/domain"
)

// PartProvider extrai um componente extra do Fingerprint de uma requisição.
type PartProvider interface {
	Part(req domain.Request) domain.KeyPart
}

type lookupPart struct {
	name   string
	lookup func(req domain.Request) (string, bool)
}

func (p lookupPart) Part(req domain.Request) domain.KeyPart {
	v, ok := p.lookup(req)
	if !ok {
		return domain.KeyPart{Name: p.name}
	}
	return domain.KeyPart{Name: p.name, Value: v, Present: true}
}

const (
	partSession   = "http-session"
	partCookie    = "cookie-"
	partHeader    = "header-"
	partParameter = "parameter-"
)

// ParseKeyPart interpreta uma spec de key part:
//
//	http-session       valor do cookie de sessão (sessionCookie)
//	cookie-<nome>      valor do cookie
//	header-<nome>      valor do header
//	parameter-<nome>   valor do parâmetro de query/form
//
// O prefixo não diferencia maiúsculas; o nome é usado como está.
func ParseKeyPart(spec, sessionCookie string) (PartProvider, error) {
	spec = strings.TrimSpace(spec)
	lower := strings.ToLower(spec)

	switch {
	case lower == partSession:
		if sessionCookie == "" {
			sessionCookie = domain.DefaultSessionCookie
		}
		return lookupPart{name: partSession, lookup: func(r domain.Request) (string, bool) {
			return r.Cookie(sessionCookie)
		}}, nil
	case strings.HasPrefix(lower, partCookie) && len(spec) > len(partCookie):
		name := spec[len(partCookie):]
		return lookupPart{name: partCookie + name, lookup: func(r domain.Request) (string, bool) {
			return r.Cookie(name)
		}}, nil
	case strings.HasPrefix(lower, partHeader) && len(spec) > len(partHeader):
		name := spec[len(partHeader):]
		return lookupPart{name: partHeader + strings.ToLower(name), lookup: func(r domain.Request) (string, bool) {
			return r.Header(name)
		}}, nil
	case strings.HasPrefix(lower, partParameter) && len(spec) > len(partParameter):
		name := spec[len(partParameter):]
		return lookupPart{name: partParameter + name, lookup: func(r domain.Request) (string, bool) {
			return r.Parameter(name)
		}}, nil
	default:
		return nil, fmt.Errorf("unknown key part %q", spec)
	}
}

func ParseKeyParts(specs []string, sessionCookie string) ([]PartProvider, error) {
	out := make([]PartProvider, 0, len(specs))
	for _, spec := range specs {
		p, err := ParseKeyPart(spec, sessionCookie)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}
