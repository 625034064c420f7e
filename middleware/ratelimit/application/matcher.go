package application

import (
	"regexp"
	"strings"
)

// Matcher decide se uma string (User-Agent, endereço remoto) casa com um
// padrão configurado.
type Matcher interface {
	Match(s string) bool
}

type exactMatcher string

func (m exactMatcher) Match(s string) bool { return strings.EqualFold(string(m), s) }

// prefixMatcher guarda o prefixo já em minúsculas.
type prefixMatcher string

func (m prefixMatcher) Match(s string) bool {
	return strings.HasPrefix(strings.ToLower(s), string(m))
}

type wildcardMatcher struct{ re *regexp.Regexp }

func (m wildcardMatcher) Match(s string) bool { return m.re.MatchString(s) }

// CompileMatcher escolhe o tipo de matcher pelo formato do padrão:
//
//	"abc"        igualdade, sem diferenciar maiúsculas
//	"abc*"       começa com, sem diferenciar maiúsculas
//	"a?c*d"      curingas: * = qualquer sequência, ? = um caractere
func CompileMatcher(pattern string) Matcher {
	body, star := strings.CutSuffix(pattern, "*")
	switch {
	case !strings.ContainsAny(pattern, "*?"):
		return exactMatcher(pattern)
	case star && !strings.ContainsAny(body, "*?"):
		return prefixMatcher(strings.ToLower(body))
	default:
		return wildcardMatcher{re: regexp.MustCompile(WildcardToRegexp(pattern))}
	}
}

// WildcardToRegexp traduz um padrão com * e ? para uma regexp ancorada e
// case-insensitive. Todo o resto é escapado.
func WildcardToRegexp(pattern string) string {
	var b strings.Builder
	b.WriteString("(?i)^")
	for _, r := range pattern {
		switch r {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteByte('.')
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteByte('$')
	return b.String()
}

// Matchers casa se qualquer um dos matchers casar (o primeiro vence).
type Matchers []Matcher

func CompileMatchers(patterns []string) Matchers {
	out := make(Matchers, 0, len(patterns))
	for _, p := range patterns {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, CompileMatcher(p))
		}
	}
	return out
}

func (ms Matchers) Match(s string) bool {
	for _, m := range ms {
		if m.Match(s) {
			return true
		}
	}
	return false
}
