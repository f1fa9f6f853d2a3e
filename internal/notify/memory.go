package notify

import (
	"context"
	"sync"
)

// Memory keeps notifications in process. It mirrors a notification tray:
// Current holds what is visible by ID, History every delivery in order.
type Memory struct {
	mu        sync.Mutex
	permitted bool
	current   map[string]Notification
	history   []Notification
	err       error
}

// NewMemory returns a permitted, empty in-memory notifier
func NewMemory() *Memory {
	return &Memory{permitted: true, current: make(map[string]Notification)}
}

// SetPermitted toggles notification permission
func (m *Memory) SetPermitted(permitted bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.permitted = permitted
}

// FailWith makes subsequent deliveries return err. nil restores normal behavior.
func (m *Memory) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *Memory) Permitted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.permitted
}

func (m *Memory) Deliver(_ context.Context, n Notification) (Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return Suppressed, m.err
	}
	if !m.permitted {
		return Suppressed, nil
	}
	m.current[n.ID] = n
	m.history = append(m.history, n)
	return Delivered, nil
}

// Current returns the visible notification for id
func (m *Memory) Current(id string) (Notification, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.current[id]
	return n, ok
}

// Visible returns the number of distinct visible notifications
func (m *Memory) Visible() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.current)
}

// History returns a copy of every delivered notification in delivery order
func (m *Memory) History() []Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Notification, len(m.history))
	copy(out, m.history)
	return out
}
