package generic

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_ResetsValuesPutBack(t *testing.T) {
	created := 0
	pool := NewPool(func() *bytes.Buffer {
		created++
		return new(bytes.Buffer)
	}, (*bytes.Buffer).Reset)

	buf := pool.Get()
	buf.WriteString("frame")
	pool.Put(buf)
	assert.Zero(t, buf.Len())
	assert.Equal(t, 1, created)
}

func TestPool_With(t *testing.T) {
	pool := NewPool(func() []int { return make([]int, 0, 4) }, nil)

	var seen int
	require.NoError(t, pool.With(func(s []int) error {
		seen = cap(s)
		return nil
	}))
	assert.Equal(t, 4, seen)

	failure := errors.New("boom")
	assert.ErrorIs(t, pool.With(func([]int) error { return failure }), failure)
}
