package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestFingerprint_EqualForSameComponents(t *testing.T) {
	a := NewFingerprint("10.0.0.1", 0, strPtr("curl/8"), KeyPart{Name: "cookie-sid", Value: "x", Present: true})
	b := NewFingerprint("10.0.0.1", 0, strPtr("curl/8"), KeyPart{Name: "cookie-sid", Value: "x", Present: true})

	assert.True(t, a.Equal(b))
	assert.Equal(t, a.Key(), b.Key())
	assert.Equal(t, a.Hash(), b.Hash())
}

func TestFingerprint_DiffersInOneComponent(t *testing.T) {
	base := NewFingerprint("10.0.0.1", 0, strPtr("curl/8"), KeyPart{Name: "cookie-sid", Value: "x", Present: true})

	variants := map[string]Fingerprint{
		"addr":       NewFingerprint("10.0.0.2", 0, strPtr("curl/8"), KeyPart{Name: "cookie-sid", Value: "x", Present: true}),
		"port":       NewFingerprint("10.0.0.1", 4242, strPtr("curl/8"), KeyPart{Name: "cookie-sid", Value: "x", Present: true}),
		"ua":         NewFingerprint("10.0.0.1", 0, strPtr("curl/9"), KeyPart{Name: "cookie-sid", Value: "x", Present: true}),
		"ua-missing": NewFingerprint("10.0.0.1", 0, nil, KeyPart{Name: "cookie-sid", Value: "x", Present: true}),
		"part-value": NewFingerprint("10.0.0.1", 0, strPtr("curl/8"), KeyPart{Name: "cookie-sid", Value: "y", Present: true}),
		"part-name":  NewFingerprint("10.0.0.1", 0, strPtr("curl/8"), KeyPart{Name: "header-sid", Value: "x", Present: true}),
		"part-gone":  NewFingerprint("10.0.0.1", 0, strPtr("curl/8"), KeyPart{Name: "cookie-sid"}),
		"no-parts":   NewFingerprint("10.0.0.1", 0, strPtr("curl/8")),
	}
	for name, fp := range variants {
		assert.Falsef(t, base.Equal(fp), "variant %s should not equal base", name)
	}
}

func TestFingerprint_AbsentDiffersFromEmpty(t *testing.T) {
	missing := NewFingerprint("10.0.0.1", 0, nil, KeyPart{Name: "cookie-sid"})
	empty := NewFingerprint("10.0.0.1", 0, strPtr(""), KeyPart{Name: "cookie-sid", Present: true})

	assert.False(t, missing.Equal(empty))
}

func TestFingerprint_NoFieldBleeding(t *testing.T) {
	// "a|b" + "c" vs "a" + "|bc" must not collide.
	a := NewFingerprint("1.1.1.1", 0, strPtr("a|b"), KeyPart{Name: "n", Value: "c", Present: true})
	b := NewFingerprint("1.1.1.1", 0, strPtr("a"), KeyPart{Name: "|bn", Value: "c", Present: true})

	assert.NotEqual(t, a.Key(), b.Key())
}

func TestFingerprint_IsImmutable(t *testing.T) {
	parts := []KeyPart{{Name: "header-x", Value: "v1", Present: true}}
	fp := NewFingerprint("10.0.0.1", 0, nil, parts...)
	key := fp.Key()

	parts[0].Value = "changed"
	got := fp.Parts()
	got[0].Value = "changed again"

	require.Len(t, fp.Parts(), 1)
	assert.Equal(t, "v1", fp.Parts()[0].Value)
	assert.Equal(t, key, fp.Key())
}

func TestFingerprint_UsableAsMapKey(t *testing.T) {
	m := map[string]int{}
	m[NewFingerprint("10.0.0.1", 0, nil).Key()]++
	m[NewFingerprint("10.0.0.1", 0, nil).Key()]++

	assert.Len(t, m, 1)
}
