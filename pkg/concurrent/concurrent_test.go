package concurrent

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/zeusync/sheetsync/pkg/sequence"
)

func TestConcurrent_ReturnsFirstError(t *testing.T) {
	boom := errors.New("boom")
	var calls atomic.Int32
	err := Concurrent(sequence.From([]int{1, 2, 3}), func(v int) error {
		calls.Add(1)
		if v == 2 {
			return boom
		}
		return nil
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int32(3), calls.Load())
}

func TestLimited_BoundsGoroutines(t *testing.T) {
	var running, peak atomic.Int32
	err := Limited(sequence.From(make([]int, 20)), 2, func(int) error {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		running.Add(-1)
		return nil
	})
	assert.NoError(t, err)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestParallelMute_VisitsEveryElement(t *testing.T) {
	var sum atomic.Int64
	ParallelMute(sequence.From([]int{1, 2, 3, 4}), func(v int) error {
		sum.Add(int64(v))
		return errors.New("ignored")
	})
	assert.Equal(t, int64(10), sum.Load())
}
