package bytebuff

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPool_GetPut(t *testing.T) {
	p := NewPool()

	t.Run("get returns buffer of requested length", func(t *testing.T) {
		buf := p.Get(2048)
		assert.NotNil(t, buf)
		assert.Len(t, buf.B, 2048)
		p.Put(buf)
	})

	t.Run("get with zero size", func(t *testing.T) {
		buf := p.Get(0)
		assert.NotNil(t, buf)
		p.Put(buf)
	})

	t.Run("put nil is safe", func(t *testing.T) {
		p.Put(nil)
	})

	t.Run("oversized buffer not returned to pool", func(t *testing.T) {
		pp := NewPool()
		buf := pp.Get(maxPooledSize + 1)

		_, puts1, _ := pp.Stats()
		pp.Put(buf)
		_, puts2, _ := pp.Stats()

		assert.Equal(t, puts1, puts2)
	})
}

func TestPool_Stats(t *testing.T) {
	p := NewPool()

	buf := p.Get(128)
	p.Put(buf)

	gets, puts, misses := p.Stats()
	assert.Equal(t, uint64(1), gets)
	assert.Equal(t, uint64(1), puts)
	assert.LessOrEqual(t, misses, uint64(1))
}
