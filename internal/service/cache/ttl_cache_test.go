package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTTLCache_SetGet(t *testing.T) {
	c := NewTTLCache()

	_, ok := c.Get("missing")
	assert.False(t, ok)

	c.Set("k", 42, time.Minute)
	v, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, 42, v)
}

func TestTTLCache_Expiry(t *testing.T) {
	c := NewTTLCache()
	c.Set("k", "v", 10*time.Millisecond)

	time.Sleep(25 * time.Millisecond)
	_, ok := c.Get("k")
	assert.False(t, ok)
}

func TestTTLCache_ZeroTTLNeverExpires(t *testing.T) {
	c := NewTTLCache()
	c.Set("k", "v", 0)

	time.Sleep(10 * time.Millisecond)
	_, ok := c.Get("k")
	assert.True(t, ok)
}

func TestTTLCache_Overwrite(t *testing.T) {
	c := NewTTLCache()
	c.Set("k", 1, time.Minute)
	c.Set("k", 2, time.Minute)

	v, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, 2, v)
}
