package notify

import (
	"context"
	"sync"
)

// Mock records notifications for test assertions.
type Mock struct {
	mu       sync.Mutex
	messages []string
	err      error // if set, Notify returns this error
}

// NewMock creates a new Mock notifier.
func NewMock() *Mock {
	return &Mock{}
}

func (m *Mock) Notify(_ context.Context, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.messages = append(m.messages, text)
	return nil
}

// Messages returns a copy of all recorded notifications.
func (m *Mock) Messages() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.messages...)
}

// SetError causes all subsequent Notify calls to return err.
// Pass nil to clear.
func (m *Mock) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}
