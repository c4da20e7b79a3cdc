package bus

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBasicPublishSubscribe(t *testing.T) {
	b := New()
	var got []any
	_, err := b.Subscribe("test.event", func(e Event) error {
		got = append(got, e.Data())
		assert.Equal(t, "tester", e.Source())
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, b.Publish(NewEvent("test.event", "tester", 123)))
	require.NoError(t, b.Publish(NewEvent("other.event", "tester", 456)))
	assert.Equal(t, []any{123}, got)
}

func TestDeliveryFollowsSubscriptionOrder(t *testing.T) {
	b := New()
	var order []string
	for _, name := range []string{"first", "second", "third"} {
		_, err := b.Subscribe("ev", func(Event) error {
			order = append(order, name)
			return nil
		})
		require.NoError(t, err)
	}

	require.NoError(t, b.Publish(NewEvent("ev", "src", nil)))
	assert.Equal(t, []string{"first", "second", "third"}, order)
}

func TestCancelStopsDelivery(t *testing.T) {
	b := New()
	calls := 0
	sub, err := b.Subscribe("ev", func(Event) error { calls++; return nil })
	require.NoError(t, err)
	assert.Equal(t, 1, b.Subscribers("ev"))

	require.NoError(t, b.Unsubscribe(sub))
	require.NoError(t, sub.Cancel())
	require.NoError(t, b.Unsubscribe(nil))

	require.NoError(t, b.Publish(NewEvent("ev", "src", nil)))
	assert.Zero(t, calls)
	assert.False(t, sub.IsActive())
	assert.Zero(t, b.Subscribers("ev"))
}

func TestHandlerErrorsAreJoined(t *testing.T) {
	b := New()
	errA, errB := errors.New("a"), errors.New("b")
	_, _ = b.Subscribe("ev", func(Event) error { return errA })
	_, _ = b.Subscribe("ev", func(Event) error { return nil })
	_, _ = b.Subscribe("ev", func(Event) error { return errB })

	err := b.Publish(NewEvent("ev", "src", nil))
	assert.ErrorIs(t, err, errA)
	assert.ErrorIs(t, err, errB)
}

func TestSubscribeFromHandler(t *testing.T) {
	b := New()
	late := 0
	_, err := b.Subscribe("ev", func(Event) error {
		_, err := b.Subscribe("ev", func(Event) error { late++; return nil })
		return err
	})
	require.NoError(t, err)

	require.NoError(t, b.Publish(NewEvent("ev", "src", nil)))
	assert.Zero(t, late)
	require.NoError(t, b.Publish(NewEvent("ev", "src", nil)))
	assert.Equal(t, 1, late)
}

type moved struct {
	Col, Row int
}

func TestTypedHelpers(t *testing.T) {
	b := New()
	var got moved
	_, err := On(b, "moved", func(m moved) error {
		got = m
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, Trigger(b, "moved", "test", moved{Col: 2, Row: 3}))
	assert.Equal(t, moved{Col: 2, Row: 3}, got)

	err = Trigger(b, "moved", "test", "not a position")
	assert.ErrorIs(t, err, ErrPayloadType)

	_, err = On[moved](b, "moved", nil)
	assert.ErrorIs(t, err, ErrNilHandler)
}
