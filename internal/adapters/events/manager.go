// Package events provides the in-process event manager contract mutations
// and run lifecycle transitions are published through.
package events

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/loomworks/loom/internal/domain"
	"github.com/loomworks/loom/internal/ports"
)

type Manager struct {
	logger *slog.Logger

	mu            sync.RWMutex
	subscriptions map[string]*subscription

	contractChangedHandlers []func(*domain.ContractChangedEvent)
	nodeStartedHandlers     []func(*domain.NodeStartedEvent)
	nodeCompletedHandlers   []func(*domain.NodeCompletedEvent)
	nodeFailedHandlers      []func(*domain.NodeFailedEvent)
	runCompletedHandlers    []func(*domain.RunCompletedEvent)
}

type subscription struct {
	id      string
	pattern string
	handler ports.EventHandler
}

func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		logger:        logger.With("component", "event-manager"),
		subscriptions: make(map[string]*subscription),
	}
}

// Publish dispatches an event synchronously to every matching subscriber.
// Handler panics are recovered and logged so a broken subscriber cannot
// take down a run.
func (m *Manager) Publish(event domain.Event) {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	m.mu.RLock()
	subs := make([]*subscription, 0, len(m.subscriptions))
	for _, sub := range m.subscriptions {
		if strings.HasPrefix(string(event.Type), sub.pattern) {
			subs = append(subs, sub)
		}
	}
	m.mu.RUnlock()

	for _, sub := range subs {
		m.invoke(sub.handler, event)
	}

	m.dispatchTyped(event)
}

func (m *Manager) invoke(handler ports.EventHandler, event domain.Event) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("event handler panicked",
				"event_type", string(event.Type),
				"event_id", event.ID,
				"panic_value", r,
			)
		}
	}()
	handler(event)
}

func (m *Manager) dispatchTyped(event domain.Event) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	switch payload := event.Payload.(type) {
	case *domain.ContractChangedEvent:
		for _, h := range m.contractChangedHandlers {
			m.invokeTyped(event, func() { h(payload) })
		}
	case *domain.NodeStartedEvent:
		for _, h := range m.nodeStartedHandlers {
			m.invokeTyped(event, func() { h(payload) })
		}
	case *domain.NodeCompletedEvent:
		for _, h := range m.nodeCompletedHandlers {
			m.invokeTyped(event, func() { h(payload) })
		}
	case *domain.NodeFailedEvent:
		for _, h := range m.nodeFailedHandlers {
			m.invokeTyped(event, func() { h(payload) })
		}
	case *domain.RunCompletedEvent:
		for _, h := range m.runCompletedHandlers {
			m.invokeTyped(event, func() { h(payload) })
		}
	}
}

func (m *Manager) invokeTyped(event domain.Event, call func()) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("typed event handler panicked",
				"event_type", string(event.Type),
				"event_id", event.ID,
				"panic_value", r,
			)
		}
	}()
	call()
}

// Subscribe registers a generic handler for every event whose type starts
// with pattern. An empty pattern matches all events.
func (m *Manager) Subscribe(pattern string, handler ports.EventHandler) func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.New().String()
	m.subscriptions[id] = &subscription{
		id:      id,
		pattern: pattern,
		handler: handler,
	}

	m.logger.Debug("subscription registered", "pattern", pattern, "subscription_id", id)

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subscriptions, id)
	}
}

func (m *Manager) OnContractChanged(handler func(*domain.ContractChangedEvent)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contractChangedHandlers = append(m.contractChangedHandlers, handler)
}

func (m *Manager) OnNodeStarted(handler func(*domain.NodeStartedEvent)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nodeStartedHandlers = append(m.nodeStartedHandlers, handler)
}

func (m *Manager) OnNodeCompleted(handler func(*domain.NodeCompletedEvent)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nodeCompletedHandlers = append(m.nodeCompletedHandlers, handler)
}

func (m *Manager) OnNodeFailed(handler func(*domain.NodeFailedEvent)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nodeFailedHandlers = append(m.nodeFailedHandlers, handler)
}

func (m *Manager) OnRunCompleted(handler func(*domain.RunCompletedEvent)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runCompletedHandlers = append(m.runCompletedHandlers, handler)
}
