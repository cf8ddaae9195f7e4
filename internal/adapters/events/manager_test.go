package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomworks/loom/internal/domain"
)

func TestPublish_FillsIdentityAndTimestamp(t *testing.T) {
	m := NewManager(nil)

	var got domain.Event
	m.Subscribe("", func(e domain.Event) { got = e })

	m.Publish(domain.Event{Type: domain.EventRunStarted})

	assert.NotEmpty(t, got.ID)
	assert.False(t, got.Timestamp.IsZero())
	assert.Equal(t, domain.EventRunStarted, got.Type)
}

func TestSubscribe_PrefixPattern(t *testing.T) {
	m := NewManager(nil)

	var nodeEvents, runEvents, allEvents int
	m.Subscribe("node.", func(domain.Event) { nodeEvents++ })
	m.Subscribe("run.", func(domain.Event) { runEvents++ })
	m.Subscribe("", func(domain.Event) { allEvents++ })

	m.Publish(domain.Event{Type: domain.EventNodeStarted})
	m.Publish(domain.Event{Type: domain.EventNodeCompleted})
	m.Publish(domain.Event{Type: domain.EventRunCompleted})

	assert.Equal(t, 2, nodeEvents)
	assert.Equal(t, 1, runEvents)
	assert.Equal(t, 3, allEvents)
}

func TestSubscribe_Unsubscribe(t *testing.T) {
	m := NewManager(nil)

	var calls int
	unsubscribe := m.Subscribe("", func(domain.Event) { calls++ })

	m.Publish(domain.Event{Type: domain.EventRunStarted})
	unsubscribe()
	m.Publish(domain.Event{Type: domain.EventRunStarted})

	assert.Equal(t, 1, calls)
}

func TestPublish_RecoversHandlerPanic(t *testing.T) {
	m := NewManager(nil)

	var after int
	m.Subscribe("", func(domain.Event) { panic("broken subscriber") })
	m.OnRunCompleted(func(*domain.RunCompletedEvent) { after++ })

	require.NotPanics(t, func() {
		m.Publish(domain.Event{
			Type:    domain.EventRunCompleted,
			Payload: &domain.RunCompletedEvent{RunID: "run-1"},
		})
	})
	assert.Equal(t, 1, after)
}

func TestTypedHandlers(t *testing.T) {
	m := NewManager(nil)

	var started, completed, failed []string
	m.OnNodeStarted(func(e *domain.NodeStartedEvent) { started = append(started, e.NodeID) })
	m.OnNodeCompleted(func(e *domain.NodeCompletedEvent) { completed = append(completed, e.NodeID) })
	m.OnNodeFailed(func(e *domain.NodeFailedEvent) { failed = append(failed, e.NodeID) })

	m.Publish(domain.Event{Type: domain.EventNodeStarted, Payload: &domain.NodeStartedEvent{NodeID: "a"}})
	m.Publish(domain.Event{Type: domain.EventNodeCompleted, Payload: &domain.NodeCompletedEvent{NodeID: "a"}})
	m.Publish(domain.Event{Type: domain.EventNodeFailed, Payload: &domain.NodeFailedEvent{NodeID: "b"}})

	assert.Equal(t, []string{"a"}, started)
	assert.Equal(t, []string{"a"}, completed)
	assert.Equal(t, []string{"b"}, failed)
}
