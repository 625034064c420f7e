package infra

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"admission-gateway/middleware/ratelimit/domain"

	"github.com/joho/godotenv"
)

// Chaves de configuração lidas por EnvSource.
const (
	EnvMaxPermits         = "RATE_MAX_PERMITS"
	EnvWindowMillis       = "RATE_WINDOW_MS"
	EnvOmitLocals         = "RATE_OMIT_LOCALS"
	EnvConsiderRemotePort = "RATE_CONSIDER_REMOTE_PORT"
	EnvStoreCapacity      = "RATE_STORE_CAPACITY"
	EnvDispatchPrefix     = "RATE_DISPATCH_PREFIX"
	EnvLenientModules     = "RATE_LENIENT_MODULES"
	EnvLenientAgents      = "RATE_LENIENT_AGENTS"
	EnvLenientRemotes     = "RATE_LENIENT_REMOTES"
	EnvKeyParts           = "RATE_KEY_PARTS"
	EnvSessionCookie      = "RATE_SESSION_COOKIE"
)

// EnvSource monta um domain.Policy a partir de variáveis de ambiente e,
// opcionalmente, de um arquivo .env. Valores do arquivo têm precedência, para
// que editar o arquivo e recarregar tenha efeito.
type EnvSource struct {
	// File é o caminho de um arquivo .env (opcional).
	File string
	// Required faz Load retornar domain.ErrPolicyNotReady enquanto File não existir.
	Required bool
	// Lookup substitui os.LookupEnv (testes).
	Lookup func(string) (string, bool)
}

var _ domain.PolicySource = EnvSource{}

func (s EnvSource) Load() (domain.Policy, error) {
	lookup := s.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}

	var file map[string]string
	if s.File != "" {
		m, err := godotenv.Read(s.File)
		switch {
		case err == nil:
			file = m
		case errors.Is(err, fs.ErrNotExist):
			if s.Required {
				return domain.Policy{}, fmt.Errorf("%w: %s not found", domain.ErrPolicyNotReady, s.File)
			}
		default:
			return domain.Policy{}, fmt.Errorf("read %s: %w", s.File, err)
		}
	}

	get := func(k string) (string, bool) {
		if v, ok := file[k]; ok {
			return strings.TrimSpace(v), true
		}
		v, ok := lookup(k)
		return strings.TrimSpace(v), ok
	}
	return parsePolicy(get)
}

func parsePolicy(get func(string) (string, bool)) (domain.Policy, error) {
	p := domain.DefaultPolicy()
	var err error

	if p.MaxPermits, err = intValue(get, EnvMaxPermits, p.MaxPermits); err != nil {
		return domain.Policy{}, err
	}
	windowMs, err := intValue(get, EnvWindowMillis, int(p.Window.Milliseconds()))
	if err != nil {
		return domain.Policy{}, err
	}
	p.Window = time.Duration(windowMs) * time.Millisecond
	if p.OmitLocals, err = boolValue(get, EnvOmitLocals, p.OmitLocals); err != nil {
		return domain.Policy{}, err
	}
	if p.ConsiderRemotePort, err = boolValue(get, EnvConsiderRemotePort, p.ConsiderRemotePort); err != nil {
		return domain.Policy{}, err
	}
	if p.StoreCapacity, err = intValue(get, EnvStoreCapacity, p.StoreCapacity); err != nil {
		return domain.Policy{}, err
	}
	if v, ok := get(EnvDispatchPrefix); ok && v != "" {
		p.DispatchPrefix = v
	}
	if v, ok := get(EnvLenientModules); ok {
		p.LenientModules = SplitQuotedList(v)
	}
	if v, ok := get(EnvLenientAgents); ok {
		p.LenientAgents = SplitQuotedList(v)
	}
	if v, ok := get(EnvLenientRemotes); ok {
		p.LenientRemotes = SplitQuotedList(v)
	}
	if v, ok := get(EnvKeyParts); ok {
		p.KeyParts = SplitQuotedList(v)
	}
	if v, ok := get(EnvSessionCookie); ok && v != "" {
		p.SessionCookie = v
	}

	if err := p.Validate(); err != nil {
		return domain.Policy{}, fmt.Errorf("invalid rate limit policy: %w", err)
	}
	return p, nil
}

func intValue(get func(string) (string, bool), k string, def int) (int, error) {
	v, ok := get(k)
	if !ok || v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", k, err)
	}
	return i, nil
}

func boolValue(get func(string) (string, bool), k string, def bool) (bool, error) {
	v, ok := get(k)
	if !ok || v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", k, err)
	}
	return b, nil
}

// SplitQuotedList quebra `"a, b", c` em ["a, b", "c"]: vírgulas dentro de
// aspas não separam, espaços ao redor e aspas são removidos, itens vazios somem.
func SplitQuotedList(s string) []string {
	var (
		out     []string
		cur     strings.Builder
		inQuote bool
	)
	flush := func() {
		item := strings.TrimSpace(cur.String())
		item = strings.TrimSpace(strings.Trim(item, `"`))
		if item != "" {
			out = append(out, item)
		}
		cur.Reset()
	}
	for _, r := range s {
		switch {
		case r == '"':
			inQuote = !inQuote
			cur.WriteRune(r)
		case r == ',' && !inQuote:
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return out
}
