package application

import (
	"strings"
	"time"

	"admission-gateway/middleware/ratelimit/domain"
	"admission-gateway/middleware/ratelimit/infra"
)

// Reason identifica qual regra isentou a requisição.
type Reason string

const (
	ReasonNone      Reason = ""
	ReasonDisabled  Reason = "disabled"
	ReasonLocal     Reason = "local"
	ReasonPath      Reason = "path"
	ReasonUserAgent Reason = "user-agent"
	ReasonRemote    Reason = "remote"
	ReasonExternal  Reason = "external"
)

var localNames = map[string]struct{}{
	"localhost": {},
	"127.0.0.1": {},
	"::1":       {},
}

// Snapshot é uma Policy já compilada: matchers, prefixos de módulo e
// providers de key part. Imutável depois de Compile.
type Snapshot struct {
	domain.Policy

	modulePrefixes []string
	agents         Matchers
	remotes        Matchers
	parts          []PartProvider
}

func Compile(p domain.Policy) (*Snapshot, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	parts, err := ParseKeyParts(p.KeyParts, p.SessionCookie)
	if err != nil {
		return nil, err
	}

	p = p.Clone()
	s := &Snapshot{
		Policy:  p,
		agents:  CompileMatchers(p.LenientAgents),
		remotes: CompileMatchers(p.LenientRemotes),
		parts:   parts,
	}

	prefix := p.DispatchPrefix
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	for _, m := range p.LenientModules {
		if m = strings.Trim(strings.TrimSpace(m), "/"); m != "" {
			s.modulePrefixes = append(s.modulePrefixes, prefix+m)
		}
	}
	return s, nil
}

// BypassPolicy avalia, antes de qualquer bucket, se a requisição está isenta.
// As decisões por path, User-Agent e endereço são memoizadas; o cache é só
// otimização e é esvaziado a cada nova Policy.
type BypassPolicy struct {
	external func(domain.Request) bool

	paths   *infra.DecisionCache
	agents  *infra.DecisionCache
	remotes *infra.DecisionCache
}

// NewBypassPolicy cria a política. external pode ser nil.
func NewBypassPolicy(external func(domain.Request) bool, cacheSize int, cacheTTL time.Duration) *BypassPolicy {
	return &BypassPolicy{
		external: external,
		paths:    infra.NewDecisionCache(cacheSize, cacheTTL),
		agents:   infra.NewDecisionCache(cacheSize, cacheTTL),
		remotes:  infra.NewDecisionCache(cacheSize, cacheTTL),
	}
}

// Exempt aplica as regras na ordem: kill switch, nomes locais, path,
// User-Agent, endereço remoto, predicado externo. A primeira que casar vence.
func (b *BypassPolicy) Exempt(req domain.Request, s *Snapshot) (bool, Reason) {
	if s.Disabled() {
		return true, ReasonDisabled
	}

	if s.OmitLocals {
		if _, ok := localNames[strings.ToLower(req.ServerName())]; ok {
			return true, ReasonLocal
		}
	}

	if len(s.modulePrefixes) > 0 {
		if b.paths.Lookup(req.Path(), s.lenientPath) {
			return true, ReasonPath
		}
	}

	if len(s.agents) > 0 {
		if ua, ok := req.UserAgent(); ok && b.agents.Lookup(ua, s.agents.Match) {
			return true, ReasonUserAgent
		}
	}

	if len(s.remotes) > 0 {
		if b.remotes.Lookup(req.RemoteAddr(), s.remotes.Match) {
			return true, ReasonRemote
		}
	}

	if b.external != nil && b.external(req) {
		return true, ReasonExternal
	}
	return false, ReasonNone
}

// Reset esvazia os caches de decisão.
func (b *BypassPolicy) Reset() {
	b.paths.Purge()
	b.agents.Purge()
	b.remotes.Purge()
}

func (s *Snapshot) lenientPath(path string) bool {
	for _, p := range s.modulePrefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}
