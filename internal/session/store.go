package session

import (
	"iter"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/adx-agent/backend/internal/model"
)

// DefaultContextSize is the number of turns returned by RecentContext when
// the caller does not ask for a specific amount.
const DefaultContextSize = 10

// Store holds chat transcripts in memory. Sessions are created on first
// reference and live until deleted; there is no expiry.
type Store struct {
	mu       sync.RWMutex
	sessions map[string][]model.Turn
	now      func() time.Time
}

// NewStore creates an empty session store.
func NewStore() *Store {
	return &Store{
		sessions: make(map[string][]model.Turn),
		now:      time.Now,
	}
}

// Append adds a turn to a session, creating the session if needed. An empty
// id allocates a new session. It returns the session id and the transcript
// length after the append.
func (s *Store) Append(id string, turn model.Turn) (string, int) {
	if id == "" {
		id = uuid.New().String()
	}
	if turn.Timestamp.IsZero() {
		turn.Timestamp = s.now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[id] = append(s.sessions[id], turn)
	return id, len(s.sessions[id])
}

// RecentContext returns the last n turns of a session in chronological
// order. n <= 0 means DefaultContextSize. Unknown sessions yield nil.
func (s *Store) RecentContext(id string, n int) []model.Turn {
	if n <= 0 {
		n = DefaultContextSize
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	turns := s.sessions[id]
	if len(turns) > n {
		turns = turns[len(turns)-n:]
	}
	return slices.Clone(turns)
}

// Transcript returns a copy of the full transcript of a session.
func (s *Store) Transcript(id string) ([]model.Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	turns, exists := s.sessions[id]
	if !exists {
		return nil, model.ErrSessionNotFound
	}
	return slices.Clone(turns), nil
}

// Exists reports whether a session is known.
func (s *Store) Exists(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, exists := s.sessions[id]
	return exists
}

// Delete removes a session.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[id]; !exists {
		return model.ErrSessionNotFound
	}
	delete(s.sessions, id)
	return nil
}

// List returns a lazy sequence of session summaries ordered by id. Each
// iteration snapshots the ids it will visit; sessions deleted before they
// are reached are skipped.
func (s *Store) List() iter.Seq[model.SessionSummary] {
	return func(yield func(model.SessionSummary) bool) {
		for _, id := range s.ids() {
			summary, ok := s.summary(id)
			if !ok {
				continue
			}
			if !yield(summary) {
				return
			}
		}
	}
}

// Len returns the number of sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *Store) ids() []string {
	s.mu.RLock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	slices.Sort(ids)
	return ids
}

func (s *Store) summary(id string) (model.SessionSummary, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	turns, exists := s.sessions[id]
	if !exists {
		return model.SessionSummary{}, false
	}
	return model.Summarize(id, turns), true
}
