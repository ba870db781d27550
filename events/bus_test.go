package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPublishDeliversToAllSubscribers(t *testing.T) {
	b := NewBus(nil)
	a := b.Subscribe()
	c := b.Subscribe()

	b.Publish(Event{Type: AgentRecovered, Payload: testPayload{ID: "x"}})

	select {
	case evt := <-a:
		require.Equal(t, AgentRecovered, evt.Type)
		require.False(t, evt.Timestamp.IsZero())
	case <-time.After(time.Second):
		t.Fatal("subscriber a did not receive event")
	}

	select {
	case evt := <-c:
		require.Equal(t, AgentRecovered, evt.Type)
	case <-time.After(time.Second):
		t.Fatal("subscriber c did not receive event")
	}
}

func TestPublishDropsOnFullSubscriberBuffer(t *testing.T) {
	var dropped []Event
	b := NewBus(func(evt Event) { dropped = append(dropped, evt) })
	ch := b.Subscribe()

	for i := 0; i < subscriberBuffer+5; i++ {
		b.Publish(Event{Type: SystemAlert})
	}

	require.NotEmpty(t, dropped)
	require.Len(t, ch, subscriberBuffer)
}

func TestSubscribeAfterPublishMissesPriorEvents(t *testing.T) {
	b := NewBus(nil)
	b.Publish(Event{Type: AgentDegraded})
	late := b.Subscribe()

	select {
	case <-late:
		t.Fatal("late subscriber should not see events published before it subscribed")
	case <-time.After(50 * time.Millisecond):
	}
}

type testPayload struct {
	ID string
}
