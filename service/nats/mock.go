package nats

import (
	"context"
	"strings"
	"sync"
)

// MockPublisher is a mock implementation of Publisher for testing.
type MockPublisher struct {
	mu           sync.RWMutex
	published    []*EligibilityEvent
	publishError error
	closed       bool
}

// NewMockPublisher creates a new mock publisher for testing.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{published: make([]*EligibilityEvent, 0)}
}

// PublishEligibility records the event and returns any configured error.
func (m *MockPublisher) PublishEligibility(ctx context.Context, event *EligibilityEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.publishError != nil {
		return m.publishError
	}
	m.published = append(m.published, event)
	return nil
}

// Close marks the publisher as closed.
func (m *MockPublisher) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// GetPublishedEventCount returns the number of published events.
func (m *MockPublisher) GetPublishedEventCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.published)
}

// GetPublishedEventsForWallet returns events published for wallet, ignoring case.
func (m *MockPublisher) GetPublishedEventsForWallet(wallet string) []*EligibilityEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	events := make([]*EligibilityEvent, 0)
	for _, event := range m.published {
		if strings.EqualFold(event.WalletAddress, wallet) {
			events = append(events, event)
		}
	}
	return events
}

// SetPublishError configures the mock to fail every publish with err.
func (m *MockPublisher) SetPublishError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishError = err
}

// Reset clears all published events and errors.
func (m *MockPublisher) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = make([]*EligibilityEvent, 0)
	m.publishError = nil
	m.closed = false
}

// IsClosed returns whether the publisher has been closed.
func (m *MockPublisher) IsClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}
