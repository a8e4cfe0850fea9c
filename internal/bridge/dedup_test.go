package bridge

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeduplicatorFirstSightWins(t *testing.T) {
	d := NewDeduplicator(4)

	assert.False(t, d.Seen("a"))
	assert.True(t, d.Seen("a"))
	assert.True(t, d.Seen("a"))
	assert.Equal(t, 1, d.Len())
}

func TestDeduplicatorEvictsOldestFirst(t *testing.T) {
	d := NewDeduplicator(3)

	for _, id := range []string{"a", "b", "c"} {
		assert.False(t, d.Seen(id))
	}

	// "d" pushes "a" out.
	assert.False(t, d.Seen("d"))
	assert.False(t, d.Seen("a"))
	assert.True(t, d.Seen("c"))
}

func TestDeduplicatorNoRecencyRefresh(t *testing.T) {
	d := NewDeduplicator(3)

	d.Seen("a")
	d.Seen("b")
	d.Seen("c")

	// Re-seeing "a" must not move it to the back of the eviction order.
	assert.True(t, d.Seen("a"))

	d.Seen("d") // evicts "a" despite the recent duplicate hit
	assert.False(t, d.Seen("a"))
}

func TestDeduplicatorCapacityBound(t *testing.T) {
	d := NewDeduplicator(16)
	for i := 0; i < 100; i++ {
		d.Seen(fmt.Sprintf("id-%d", i))
	}

	assert.Equal(t, 16, d.Len())
}
