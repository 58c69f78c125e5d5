package notify

import (
	"context"
	"sync"

	"github.com/metinatakli/cinex-booking/internal/domain"
)

// MockNotifier records notifications instead of sending them.
type MockNotifier struct {
	mu   sync.RWMutex
	sent []domain.Notification
	err  error
}

func NewMockNotifier() *MockNotifier {
	return &MockNotifier{
		sent: make([]domain.Notification, 0),
	}
}

// FailWith makes every later Notify call return err.
func (m *MockNotifier) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.err = err
}

func (m *MockNotifier) Notify(_ context.Context, n domain.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return m.err
	}

	m.sent = append(m.sent, n)

	return nil
}

// Sent returns a copy of every recorded notification.
func (m *MockNotifier) Sent() []domain.Notification {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sent := make([]domain.Notification, len(m.sent))
	copy(sent, m.sent)
	return sent
}

func (m *MockNotifier) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sent = make([]domain.Notification, 0)
}
