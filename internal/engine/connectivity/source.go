// Package connectivity reports network online/offline transitions to loaders.
package connectivity

import (
	"slices"
	"sync"
)

// Source signals connectivity transitions. Subscribe returns a function that
// removes exactly that subscription.
type Source interface {
	Subscribe(fn func(online bool)) (cancel func())
}

// Switch is an in-process Source toggled by hand. The zero value is not
// usable; use NewSwitch.
type Switch struct {
	mu     sync.Mutex
	online bool
	nextID uint64
	subs   map[uint64]func(bool)
}

func NewSwitch(online bool) *Switch {
	return &Switch{online: online, subs: make(map[uint64]func(bool))}
}

// Online reports the current state.
func (s *Switch) Online() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.online
}

// SetOnline records the state and notifies subscribers on a transition.
// Subscribers run on the caller's goroutine, outside the switch lock.
func (s *Switch) SetOnline(online bool) {
	s.mu.Lock()
	if s.online == online {
		s.mu.Unlock()
		return
	}
	s.online = online
	fns := make([]func(bool), 0, len(s.subs))
	ids := make([]uint64, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		fns = append(fns, s.subs[id])
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(online)
	}
}

func (s *Switch) Subscribe(fn func(online bool)) func() {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.subs[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

// Subscribers returns the number of live subscriptions.
func (s *Switch) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}
