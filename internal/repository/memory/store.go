package memory

import (
	"sync"

	"github.com/Tzesh/EcommerceAPI/internal/domain"
)

// Store holds users and ledger rows in process memory. The user and token
// repositories built on one Store share it so that deleting a user also
// deletes their tokens.
type Store struct {
	mu     sync.RWMutex
	users  map[string]*domain.User  // by id
	tokens map[string]*domain.Token // by token string

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex // per user id
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		users:  make(map[string]*domain.User),
		tokens: make(map[string]*domain.Token),
		locks:  make(map[string]*sync.Mutex),
	}
}

// lockUser returns the mutex serializing ledger writes for userID.
func (s *Store) lockUser(userID string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	m, ok := s.locks[userID]
	if !ok {
		m = &sync.Mutex{}
		s.locks[userID] = m
	}
	return m
}

func (s *Store) forgetUser(userID string) {
	s.locksMu.Lock()
	delete(s.locks, userID)
	s.locksMu.Unlock()
}

// revokeLocked invalidates the valid tokens of userID other than keep.
// The caller holds s.mu.
func (s *Store) revokeLocked(userID, keep string) int64 {
	var n int64
	for key, t := range s.tokens {
		if t.UserID == userID && key != keep && t.Valid() {
			t.Invalidate()
			n++
		}
	}
	return n
}
