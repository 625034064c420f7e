package infra

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDecisionCache_MemoizesPerInput(t *testing.T) {
	c := NewDecisionCache(8, time.Minute)

	calls := 0
	compute := func(s string) bool {
		calls++
		return s == "yes"
	}

	assert.True(t, c.Lookup("yes", compute))
	assert.True(t, c.Lookup("yes", compute))
	assert.False(t, c.Lookup("no", compute))
	assert.Equal(t, 2, calls)
	assert.Equal(t, 2, c.Len())
}

func TestDecisionCache_BoundedSize(t *testing.T) {
	c := NewDecisionCache(2, time.Minute)
	identity := func(string) bool { return true }

	c.Lookup("a", identity)
	c.Lookup("b", identity)
	c.Lookup("c", identity)

	assert.Equal(t, 2, c.Len())
}

func TestDecisionCache_PurgeForcesRecompute(t *testing.T) {
	c := NewDecisionCache(8, time.Minute)

	calls := 0
	compute := func(string) bool { calls++; return false }

	c.Lookup("x", compute)
	c.Purge()
	c.Lookup("x", compute)

	assert.Equal(t, 2, calls)
}
