package testutil

import (
	"os"
	"sync"
)

// MockTrasher records the paths it is asked to trash and removes them.
type MockTrasher struct {
	mu      sync.Mutex
	trashed []string
	err     error
	failOn  string
}

// NewMockTrasher creates a trasher that succeeds.
func NewMockTrasher() *MockTrasher {
	return &MockTrasher{}
}

// WithError makes every call fail with err.
func (m *MockTrasher) WithError(err error) *MockTrasher {
	m.err = err
	return m
}

// FailOn makes the call for path fail with ErrTest.
func (m *MockTrasher) FailOn(path string) *MockTrasher {
	m.failOn = path
	return m
}

// Trash removes path from disk and records it.
func (m *MockTrasher) Trash(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if path == m.failOn {
		return ErrTest
	}
	m.trashed = append(m.trashed, path)
	return os.RemoveAll(path)
}

// Trashed returns the recorded paths.
func (m *MockTrasher) Trashed() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.trashed...)
}
