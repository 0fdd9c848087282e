package source

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
)

func TestTTLCache_BasicGetPut(t *testing.T) {
	c := newTTLCache[int](3, time.Minute, clockwork.NewFakeClock())

	c.put("a", 1)
	c.put("b", 2)

	v, ok := c.get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	_, ok = c.get("missing")
	assert.False(t, ok)
}

func TestTTLCache_EvictsLRU(t *testing.T) {
	c := newTTLCache[int](2, time.Minute, clockwork.NewFakeClock())

	c.put("a", 1)
	c.put("b", 2)
	c.get("a") // a is now most recent
	c.put("c", 3)

	_, ok := c.get("b")
	assert.False(t, ok, "b should have been evicted")
	_, ok = c.get("a")
	assert.True(t, ok)
	_, ok = c.get("c")
	assert.True(t, ok)
	assert.Equal(t, 2, c.len())
}

func TestTTLCache_UpdateExisting(t *testing.T) {
	c := newTTLCache[string](2, time.Minute, clockwork.NewFakeClock())

	c.put("a", "old")
	c.put("a", "new")

	v, ok := c.get("a")
	assert.True(t, ok)
	assert.Equal(t, "new", v)
	assert.Equal(t, 1, c.len())
}

func TestTTLCache_Expires(t *testing.T) {
	clock := clockwork.NewFakeClock()
	c := newTTLCache[int](4, 5*time.Minute, clock)

	c.put("a", 1)
	clock.Advance(4*time.Minute + 59*time.Second)
	_, ok := c.get("a")
	assert.True(t, ok)

	clock.Advance(time.Second)
	_, ok = c.get("a")
	assert.False(t, ok, "entry at exactly ttl is stale")
	assert.Equal(t, 0, c.len())
}

func TestTTLCache_PutRefreshesExpiry(t *testing.T) {
	clock := clockwork.NewFakeClock()
	c := newTTLCache[int](4, time.Minute, clock)

	c.put("a", 1)
	clock.Advance(50 * time.Second)
	c.put("a", 2)
	clock.Advance(50 * time.Second)

	v, ok := c.get("a")
	assert.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestTTLCache_EvictAfterExpiryKeepsListConsistent(t *testing.T) {
	clock := clockwork.NewFakeClock()
	c := newTTLCache[int](2, time.Minute, clock)

	c.put("a", 1)
	clock.Advance(2 * time.Minute)
	c.put("b", 2)
	_, _ = c.get("a") // drops the expired entry
	c.put("c", 3)
	c.put("d", 4)

	_, ok := c.get("b")
	assert.False(t, ok)
	assert.Equal(t, 2, c.len())
}
