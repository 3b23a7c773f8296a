package control

import (
	"time"

	"github.com/nerrad567/nvdisplay-core/internal/display"
)

// Event types sent to listeners.
const (
	EventHotplugStatusChanged = "hotplug.status_changed"
	EventAttributeChanged     = "attribute.changed"
)

// Event is a notification for listeners such as the WebSocket hub.
type Event struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// AttributeChange is the Data of an attribute.changed event.
type AttributeChange struct {
	DisplayID string         `json:"display_id"`
	Display   string         `json:"display,omitempty"`
	Kind      display.Kind   `json:"kind"`
	Value     display.Value  `json:"value"`
	Label     string         `json:"label"`
	Previous  *display.Value `json:"previous,omitempty"`
	Source    string         `json:"source,omitempty"`
}

// EventFunc receives events. It runs on the goroutine that caused the
// event and must not block.
type EventFunc func(Event)

// Subscribe registers fn and returns a function that removes it.
func (s *Service) Subscribe(fn EventFunc) (unsubscribe func()) {
	s.listenersMu.Lock()
	id := s.nextListener
	s.nextListener++
	s.listeners[id] = fn
	s.listenersMu.Unlock()

	return func() {
		s.listenersMu.Lock()
		delete(s.listeners, id)
		s.listenersMu.Unlock()
	}
}

func (s *Service) emit(ev Event) {
	s.listenersMu.RLock()
	fns := make([]EventFunc, 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.listenersMu.RUnlock()

	for _, fn := range fns {
		fn(ev)
	}
}
