package hubconn

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAtomicIDGenerator_Increasing(t *testing.T) {
	g := newIDGenerator()

	first := g.Next()
	second := g.Next()
	third := g.Next()

	assert.Equal(t, "1", first)
	assert.Equal(t, "2", second)
	assert.Equal(t, "3", third)
}

func TestAtomicIDGenerator_ConcurrentUnique(t *testing.T) {
	g := newIDGenerator()

	const n = 200
	ids := make(chan string, n)
	for i := 0; i < n; i++ {
		go func() { ids <- g.Next() }()
	}

	seen := make(map[string]bool, n)
	for i := 0; i < n; i++ {
		id := <-ids
		assert.False(t, seen[id], "id %s produced twice", id)
		seen[id] = true
	}
}

// fixedIDGenerator is a test seam for exercising the duplicate-invocation-id
// guard: it always returns the same id.
type fixedIDGenerator struct {
	id string
}

func (f fixedIDGenerator) Next() string { return f.id }
