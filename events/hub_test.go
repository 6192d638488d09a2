package events_test

import (
	"context"
	"errors"
	"testing"

	"github.com/drippler/drippler/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishDeliversInOrderAndSkipsFailures(t *testing.T) {
	var errs []error
	hub := events.NewHub[string](func(err error) { errs = append(errs, err) })

	var got []string
	hub.Subscribe(func(ctx context.Context, v string) error {
		got = append(got, "a:"+v)
		return nil
	})
	hub.Subscribe(func(ctx context.Context, v string) error {
		return errors.New("page not listening")
	})
	hub.Subscribe(func(ctx context.Context, v string) error {
		panic("boom")
	})
	hub.Subscribe(func(ctx context.Context, v string) error {
		got = append(got, "d:"+v)
		return nil
	})

	hub.Publish(context.Background(), "SIGNED_IN")

	assert.Equal(t, []string{"a:SIGNED_IN", "d:SIGNED_IN"}, got)
	require.Len(t, errs, 2)
	assert.Contains(t, errs[1].Error(), "panicked")
}

func TestUnsubscribe(t *testing.T) {
	hub := events.NewHub[int](nil)
	count := 0
	unsub := hub.Subscribe(func(ctx context.Context, v int) error {
		count += v
		return nil
	})

	hub.Publish(context.Background(), 1)
	unsub()
	unsub()
	hub.Publish(context.Background(), 1)

	assert.Equal(t, 1, count)
	assert.Equal(t, 0, hub.Len())
}

func TestSubscribeChanDropsWhenFull(t *testing.T) {
	var dropped int
	bus := events.NewBus(func(error) { dropped++ })
	ch, unsub := bus.SubscribeChan(1)

	bus.Publish(context.Background(), events.Message{Action: events.ActionNotification})
	bus.Publish(context.Background(), events.Message{Action: events.ActionOpenPopup})

	msg := <-ch
	assert.Equal(t, events.ActionNotification, msg.Action)
	assert.Equal(t, 1, dropped)

	unsub()
	_, open := <-ch
	assert.False(t, open)
}
