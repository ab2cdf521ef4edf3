package stats

import "sync"

// MockStatsUpdater records counter values in memory for tests.
type MockStatsUpdater struct {
	mu     sync.Mutex
	Counts map[string]int64
}

func (m *MockStatsUpdater) Incr(name string) { m.add(name, 1) }
func (m *MockStatsUpdater) Decr(name string) { m.add(name, -1) }

func (m *MockStatsUpdater) RegisterMetric(name string) {}
func (m *MockStatsUpdater) Run()                       {}

func (m *MockStatsUpdater) add(name string, v int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Counts == nil {
		m.Counts = make(map[string]int64)
	}
	m.Counts[name] += v
}

// Count returns the current value of a counter.
func (m *MockStatsUpdater) Count(name string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Counts[name]
}
