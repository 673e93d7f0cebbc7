package app

import (
	"sync"

	"live-quiz-service/internal/domain"
)

// ResultSet accumulates results of one quiz until they are folded into statistics.
// It is safe for concurrent use; results with the same ID are kept once.
type ResultSet struct {
	mu      sync.Mutex
	results []domain.Result
	ids     map[string]struct{}
}

func NewResultSet() *ResultSet {
	return &ResultSet{ids: make(map[string]struct{})}
}

func (s *ResultSet) Add(results ...domain.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range results {
		if r.ID != "" {
			if _, ok := s.ids[r.ID]; ok {
				continue
			}
			s.ids[r.ID] = struct{}{}
		}
		s.results = append(s.results, r)
	}
}

func (s *ResultSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.results)
}

// Snapshot returns a copy of the accumulated results.
func (s *ResultSet) Snapshot() []domain.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Result, len(s.results))
	copy(out, s.results)
	return out
}

// Take returns the accumulated results and empties the set.
func (s *ResultSet) Take() []domain.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.results
	s.results = nil
	s.ids = make(map[string]struct{})
	return out
}
