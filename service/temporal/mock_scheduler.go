package temporal

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MockScheduler is a mock implementation of Scheduler for testing.
type MockScheduler struct {
	mu         sync.Mutex
	interval   time.Duration
	exists     bool
	triggers   int
	upsertErr  error
	deleteErr  error
	triggerErr error
}

// NewMockScheduler creates a new MockScheduler.
func NewMockScheduler() *MockScheduler {
	return &MockScheduler{}
}

// UpsertRefreshSchedule records the schedule interval.
func (m *MockScheduler) UpsertRefreshSchedule(ctx context.Context, interval time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.upsertErr != nil {
		return m.upsertErr
	}
	m.interval = interval
	m.exists = true
	return nil
}

// DeleteRefreshSchedule records that the schedule was deleted.
func (m *MockScheduler) DeleteRefreshSchedule(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.deleteErr != nil {
		return m.deleteErr
	}
	if !m.exists {
		return fmt.Errorf("schedule %q not found", RefreshScheduleID)
	}
	m.exists = false
	m.interval = 0
	return nil
}

// TriggerRefresh counts the trigger and returns a synthetic workflow ID.
func (m *MockScheduler) TriggerRefresh(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.triggerErr != nil {
		return "", m.triggerErr
	}
	m.triggers++
	return fmt.Sprintf("%s-manual-%d", RefreshScheduleID, m.triggers), nil
}

// SetUpsertError makes UpsertRefreshSchedule return err.
func (m *MockScheduler) SetUpsertError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upsertErr = err
}

// SetDeleteError makes DeleteRefreshSchedule return err.
func (m *MockScheduler) SetDeleteError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteErr = err
}

// SetTriggerError makes TriggerRefresh return err.
func (m *MockScheduler) SetTriggerError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.triggerErr = err
}

// ScheduleExists reports whether the schedule is present.
func (m *MockScheduler) ScheduleExists() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.exists
}

// ScheduleInterval returns the current schedule interval.
func (m *MockScheduler) ScheduleInterval() (time.Duration, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.interval, m.exists
}

// TriggerCount returns how many manual runs were started.
func (m *MockScheduler) TriggerCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.triggers
}

// Reset clears all state and errors.
func (m *MockScheduler) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.interval = 0
	m.exists = false
	m.triggers = 0
	m.upsertErr = nil
	m.deleteErr = nil
	m.triggerErr = nil
}
