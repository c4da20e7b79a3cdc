package sequence

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func isEqual(n int) func(int) bool {
	return func(v int) bool { return v == n }
}

func TestIterator_Restartable(t *testing.T) {
	it := From([]int{1, 2, 3}).Filter(func(v int) bool { return v != 2 })

	assert.Equal(t, []int{1, 3}, it.Collect())
	assert.Equal(t, []int{1, 3}, it.Collect())
	assert.Equal(t, 2, it.Count())
}

func TestIterator_Slicing(t *testing.T) {
	it := From([]int{1, 2, 3, 4, 5})

	assert.Equal(t, []int{1, 2, 3}, it.StopWith(isEqual(3)).Collect())
	assert.Equal(t, []int{1, 2}, it.StopBefore(isEqual(3)).Collect())
	assert.Equal(t, []int{4, 5}, it.StartAfter(isEqual(3)).Collect())
	assert.Empty(t, it.StartAfter(isEqual(42)).Collect())
	assert.Equal(t, []int{1, 2, 3, 4, 5}, it.StopWith(isEqual(42)).Collect())

	assert.Equal(t, []int{3, 4}, it.StartAfter(isEqual(2)).StopWith(isEqual(4)).Collect())
	// the source is untouched by composed views
	assert.Equal(t, []int{1, 2, 3, 4, 5}, it.Collect())
}

func TestIterator_Helpers(t *testing.T) {
	it := From([]int{1, 2, 3})

	first, ok := it.First()
	assert.True(t, ok)
	assert.Equal(t, 1, first)

	last, ok := it.Last()
	assert.True(t, ok)
	assert.Equal(t, 3, last)

	_, ok = Empty[int]().First()
	assert.False(t, ok)

	assert.Equal(t, []int{3, 2, 1}, it.Reverse().Collect())
	assert.Equal(t, []int{1, 2, 3, 1, 2, 3}, Chain(it, it).Collect())
	assert.Equal(t, []string{"1", "2", "3"}, ToArray(it, func(v int) string { return string(rune('0' + v)) }))
	assert.True(t, it.Any(isEqual(2)))
	assert.False(t, it.Any(isEqual(7)))
}

func TestIterator_Pull(t *testing.T) {
	next, stop := From([]string{"a", "b"}).Pull()
	defer stop()

	v, ok := next()
	assert.True(t, ok)
	assert.Equal(t, "a", v)
	v, ok = next()
	assert.True(t, ok)
	assert.Equal(t, "b", v)
	_, ok = next()
	assert.False(t, ok)
}
