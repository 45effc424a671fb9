package manager

import "minder/internal/reminder"

type EventKind string

const (
	EventCreated  EventKind = "created"
	EventUpdated  EventKind = "updated"
	EventDeleted  EventKind = "deleted"
	EventNotified EventKind = "notified"
)

type Event struct {
	Kind     EventKind      `json:"kind"`
	Key      string         `json:"key"`
	Reminder map[string]any `json:"reminder"`
}

// Listener receives reminder events. Publish must not block.
type Listener interface {
	Publish(Event)
}

func (m *Manager) AddListener(l Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, l)
}

func (m *Manager) emit(kind EventKind, r *reminder.Reminder) {
	m.mu.RLock()
	listeners := m.listeners
	m.mu.RUnlock()
	if len(listeners) == 0 {
		return
	}

	ev := Event{Kind: kind, Key: r.Key, Reminder: r.AsMap(m.clk.Now())}
	for _, l := range listeners {
		l.Publish(ev)
	}
}
