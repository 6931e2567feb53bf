package plugin

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventBusDeliversMatchingExactPattern(t *testing.T) {
	bus := NewEventBus(64)
	sub := bus.Subscribe("device.rotation")
	defer sub.Unsubscribe()

	bus.Publish(Event{Type: "device.rotation", Payload: 1})
	bus.Publish(Event{Type: "device.clipboard", Payload: 2})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	ev, err := sub.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "device.rotation", ev.Type)

	ctx2, cancel2 := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel2()
	_, err = sub.Next(ctx2)
	assert.Error(t, err)
}

func TestEventBusWildcardSuffixMatches(t *testing.T) {
	bus := NewEventBus(64)
	sub := bus.Subscribe("device.*")
	defer sub.Unsubscribe()

	bus.Publish(Event{Type: "device.rotation"})
	bus.Publish(Event{Type: "ui.click"})
	bus.Publish(Event{Type: "device.clipboard"})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	first, err := sub.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "device.rotation", first.Type)

	second, err := sub.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "device.clipboard", second.Type)
}

func TestEventBusStarMatchesEverything(t *testing.T) {
	bus := NewEventBus(64)
	sub := bus.Subscribe("*")
	defer sub.Unsubscribe()

	bus.Publish(Event{Type: "anything.at.all"})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	ev, err := sub.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "anything.at.all", ev.Type)
}

func TestEventBusDiscardsOldestWhenFull(t *testing.T) {
	bus := NewEventBus(64) // minimum capacity enforced
	sub := bus.Subscribe("*")
	defer sub.Unsubscribe()

	for i := 0; i < 100; i++ {
		bus.Publish(Event{Type: "flood", Payload: i})
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	ev, err := sub.Next(ctx)
	require.NoError(t, err)
	// The oldest 36 events (100-64) were discarded; the buffer starts
	// at the 37th published event (index 36).
	assert.Equal(t, 36, ev.Payload)
}

func TestEventBusUnsubscribeStopsDelivery(t *testing.T) {
	bus := NewEventBus(64)
	sub := bus.Subscribe("*")
	sub.Unsubscribe()

	bus.Publish(Event{Type: "x"})

	assert.Len(t, bus.subs, 0)
}
