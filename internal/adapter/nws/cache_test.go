package nws

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLRUCache_Eviction(t *testing.T) {
	c := newLRUCache[int](2)
	c.put("a", 1)
	c.put("b", 2)

	// Touch "a" so "b" becomes least recently used.
	_, _ = c.get("a")
	c.put("c", 3)

	_, ok := c.get("b")
	assert.False(t, ok)
	v, ok := c.get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Equal(t, 2, c.len())
}

func TestLRUCache_Update(t *testing.T) {
	c := newLRUCache[string](2)
	c.put("k", "old")
	c.put("k", "new")

	v, ok := c.get("k")
	assert.True(t, ok)
	assert.Equal(t, "new", v)
	assert.Equal(t, 1, c.len())
}

func TestLRUCache_MinimumSize(t *testing.T) {
	c := newLRUCache[int](0)
	c.put("a", 1)
	c.put("b", 2)
	assert.Equal(t, 1, c.len())
}
