package application

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompileMatcher_Kinds(t *testing.T) {
	assert.IsType(t, exactMatcher(""), CompileMatcher("curl"))
	assert.IsType(t, prefixMatcher(""), CompileMatcher("curl*"))
	assert.IsType(t, wildcardMatcher{}, CompileMatcher("cu?l*"))
	assert.IsType(t, wildcardMatcher{}, CompileMatcher("*curl"))
}

func TestMatchers(t *testing.T) {
	cases := []struct {
		pattern, input string
		want           bool
	}{
		{"curl", "CURL", true},
		{"curl", "curl/8", false},
		{"curl*", "Curl/8.0", true},
		{"curl*", "libcurl", false},
		{"10.0.?.1", "10.0.5.1", true},
		{"10.0.?.1", "10.0.55.1", false},
		{"10.0.0.*", "10.0.0.200", true},
		{"10.0.0.*", "10.0.1.1", false},
		{"a.b*", "a.bc", true},
		{"a.b*", "axbc", false},
		{"a.b?", "axbc", false},
		{"*(beta)*", "Client (BETA) 2", true},
		{"*(beta)*", "Client beta 2", false},
	}
	for _, tc := range cases {
		got := CompileMatcher(tc.pattern).Match(tc.input)
		assert.Equal(t, tc.want, got, "%q ~ %q", tc.pattern, tc.input)
	}
}

func TestWildcardToRegexp(t *testing.T) {
	assert.Equal(t, `(?i)^a.*b.$`, WildcardToRegexp("a*b?"))
	assert.Equal(t, `(?i)^10\.0\..*$`, WildcardToRegexp("10.0.*"))
	assert.Equal(t, `(?i)^\(x\)\+$`, WildcardToRegexp("(x)+"))
}

func TestMatchers_AnyWins(t *testing.T) {
	ms := CompileMatchers([]string{" ", "foo", "bar*"})
	assert.Len(t, ms, 2)
	assert.True(t, ms.Match("FOO"))
	assert.True(t, ms.Match("barista"))
	assert.False(t, ms.Match("baz"))
	assert.False(t, Matchers(nil).Match("foo"))
}
