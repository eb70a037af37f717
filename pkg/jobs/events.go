package jobs

// Event types emitted over the manager's event stream.
const (
	EventQueued    = "job.queued"
	EventStarted   = "job.started"
	EventCompleted = "job.completed"
)

// Event describes a job lifecycle transition.
type Event struct {
	Type string   `json:"type"`
	Job  Snapshot `json:"job"`
}

// EventHandler is a function that handles job events. Handlers are called
// synchronously and must not block.
type EventHandler func(event Event)

// OnEvent registers an event handler for all job events.
func (m *Manager) OnEvent(handler EventHandler) {
	m.eventMu.Lock()
	defer m.eventMu.Unlock()
	m.handlers = append(m.handlers, handler)
}

// emit emits an event synchronously to all registered handlers.
func (m *Manager) emit(eventType string, snap Snapshot) {
	m.eventMu.RLock()
	handlers := make([]EventHandler, len(m.handlers))
	copy(handlers, m.handlers)
	m.eventMu.RUnlock()

	for _, handler := range handlers {
		handler(Event{Type: eventType, Job: snap})
	}
}
