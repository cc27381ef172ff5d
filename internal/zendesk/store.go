package zendesk

import "sync"

// TicketStore holds the active ticket id. The zero value has no active
// ticket. It is safe for concurrent use.
type TicketStore struct {
	mu sync.RWMutex
	id int64
}

// NewTicketStore creates a store. A positive id is stored as the active
// ticket; zero or negative leaves the store empty.
func NewTicketStore(id int64) *TicketStore {
	s := &TicketStore{}
	if id > 0 {
		s.id = id
	}
	return s
}

// Get returns the active ticket id and whether one is set.
func (s *TicketStore) Get() (int64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.id, s.id > 0
}

// Replace sets the active ticket id and returns the previous one (zero if
// none was set).
func (s *TicketStore) Replace(id int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.id
	s.id = id
	return prev
}
