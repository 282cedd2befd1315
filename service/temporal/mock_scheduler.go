package temporal

import (
	"context"
	"sync"
	"time"
)

// MockScheduler is an in-memory Scheduler implementation for testing.
type MockScheduler struct {
	mu        sync.RWMutex
	schedules map[string]MockSchedule
	upsertErr error
	deleteErr error
}

// MockSchedule records the parameters of an upserted schedule.
type MockSchedule struct {
	Address  string
	Timezone string
	Interval time.Duration
}

// NewMockScheduler creates a new mock scheduler for testing.
func NewMockScheduler() *MockScheduler {
	return &MockScheduler{
		schedules: make(map[string]MockSchedule),
	}
}

// UpsertWalletSchedule records the schedule and returns any configured error.
func (m *MockScheduler) UpsertWalletSchedule(_ context.Context, address, timezone string, interval time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upsertErr != nil {
		return m.upsertErr
	}
	m.schedules[address] = MockSchedule{Address: address, Timezone: timezone, Interval: interval}
	return nil
}

// DeleteWalletSchedule removes the schedule and returns any configured error.
func (m *MockScheduler) DeleteWalletSchedule(_ context.Context, address string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	delete(m.schedules, address)
	return nil
}

// Schedule returns the recorded schedule for an address, if any.
func (m *MockScheduler) Schedule(address string) (MockSchedule, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.schedules[address]
	return s, ok
}

// ScheduleCount returns the number of recorded schedules.
func (m *MockScheduler) ScheduleCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.schedules)
}

// SetUpsertError configures the mock to fail UpsertWalletSchedule.
func (m *MockScheduler) SetUpsertError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upsertErr = err
}

// SetDeleteError configures the mock to fail DeleteWalletSchedule.
func (m *MockScheduler) SetDeleteError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteErr = err
}
