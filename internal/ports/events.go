package ports

import (
	"github.com/loomworks/loom/internal/domain"
)

type EventHandler func(domain.Event)

// EventManager distributes engine and registry events to subscribers.
// Publish must not block run progress on slow handlers beyond handler
// execution itself; handler panics must not escape.
type EventManager interface {
	Publish(event domain.Event)
	Subscribe(pattern string, handler EventHandler) (unsubscribe func())
}
