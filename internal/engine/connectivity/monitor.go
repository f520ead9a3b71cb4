package connectivity

import (
	"sync"
)

// Monitor binds one loader to a Source. The loader supplies the reaction;
// the monitor only manages the subscription so that Release removes exactly
// what Acquire added.
type Monitor struct {
	source   Source
	onChange func(online bool)

	mu     sync.Mutex
	cancel func()
}

// NewMonitor returns a monitor for source. A nil source yields a monitor
// whose Acquire and Release do nothing.
func NewMonitor(source Source, onChange func(online bool)) *Monitor {
	return &Monitor{source: source, onChange: onChange}
}

// Acquire subscribes to the source. Repeated calls keep one subscription.
func (m *Monitor) Acquire() {
	if m == nil || m.source == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		return
	}
	m.cancel = m.source.Subscribe(m.onChange)
}

// Release drops the subscription if one is held.
func (m *Monitor) Release() {
	if m == nil {
		return
	}
	m.mu.Lock()
	cancel := m.cancel
	m.cancel = nil
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Active reports whether the monitor currently holds a subscription.
func (m *Monitor) Active() bool {
	if m == nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancel != nil
}
