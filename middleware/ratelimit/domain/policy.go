package domain

import (
	"errors"
	"strings"
	"time"
)

const (
	DefaultMaxPermits     = 500
	DefaultWindow         = 300000 * time.Millisecond
	DefaultStoreCapacity  = 250000
	DefaultDispatchPrefix = "/ajax/"
	DefaultSessionCookie  = "JSESSIONID"
)

// Policy é um snapshot imutável da configuração do rate limit.
//
// Os campos Lenient* guardam os padrões crus (exato, "prefixo*" ou curingas
// "*"/"?"); a compilação fica na camada application.
type Policy struct {
	MaxPermits         int
	Window             time.Duration
	OmitLocals         bool
	ConsiderRemotePort bool
	StoreCapacity      int

	DispatchPrefix string
	LenientModules []string
	LenientAgents  []string
	LenientRemotes []string

	// KeyParts: "http-session", "cookie-<nome>", "header-<nome>", "parameter-<nome>".
	KeyParts      []string
	SessionCookie string
}

func DefaultPolicy() Policy {
	return Policy{
		MaxPermits:     DefaultMaxPermits,
		Window:         DefaultWindow,
		StoreCapacity:  DefaultStoreCapacity,
		DispatchPrefix: DefaultDispatchPrefix,
		LenientModules: []string{"rt", "system"},
		LenientAgents: []string{
			"Open-Xchange .NET HTTP Client*",
			"Open-Xchange USM HTTP Client*",
			"Jakarta Commons-HttpClient*",
		},
		SessionCookie: DefaultSessionCookie,
	}
}

// Disabled é o kill-switch global: sem permissões ou sem janela, nada é limitado.
func (p Policy) Disabled() bool {
	return p.MaxPermits <= 0 || p.Window <= 0
}

// IdleTTL é o tempo ocioso após o qual um bucket expira (1.1x a janela).
func (p Policy) IdleTTL() time.Duration {
	return p.Window + p.Window/10
}

func (p Policy) Validate() error {
	if p.StoreCapacity < 0 {
		return errors.New("store capacity must be >= 0")
	}
	if p.DispatchPrefix != "" && !strings.HasPrefix(p.DispatchPrefix, "/") {
		return errors.New("dispatch prefix must start with /")
	}
	for _, spec := range p.KeyParts {
		if strings.TrimSpace(spec) == "" {
			return errors.New("key part spec must not be empty")
		}
	}
	return nil
}

// Clone copia as listas para que o snapshot não seja alterado por quem o criou.
func (p Policy) Clone() Policy {
	c := p
	c.LenientModules = append([]string(nil), p.LenientModules...)
	c.LenientAgents = append([]string(nil), p.LenientAgents...)
	c.LenientRemotes = append([]string(nil), p.LenientRemotes...)
	c.KeyParts = append([]string(nil), p.KeyParts...)
	return c
}

// PolicySource fornece snapshots de Policy. Load retorna ErrPolicyNotReady
// enquanto a configuração não estiver disponível.
type PolicySource interface {
	Load() (Policy, error)
}
