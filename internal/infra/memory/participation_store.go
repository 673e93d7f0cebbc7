package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"live-quiz-service/internal/domain"
)

// ParticipationStore keeps participations, submissions, results, users and submission
// versions in memory. It implements the corresponding app repositories.
type ParticipationStore struct {
	mu             sync.RWMutex
	participations map[string]domain.Participation
	submissions    map[string]domain.QuizSubmission
	results        map[string]domain.Result
	resultOrder    []string
	users          map[string]domain.User
	versions       []domain.SubmissionVersion
}

func NewParticipationStore() *ParticipationStore {
	return &ParticipationStore{
		participations: make(map[string]domain.Participation),
		submissions:    make(map[string]domain.QuizSubmission),
		results:        make(map[string]domain.Result),
		users:          make(map[string]domain.User),
	}
}

func (s *ParticipationStore) SaveParticipation(_ context.Context, p domain.Participation) (domain.Participation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	stored := p
	stored.Exercise = nil
	stored.Participant = nil
	stored.Submissions = nil
	stored.Results = nil
	s.participations[p.ID] = stored
	return p, nil
}

func (s *ParticipationStore) FindParticipation(_ context.Context, quizID, login string) (domain.Participation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.participations {
		if p.ExerciseID != quizID || p.ParticipantLogin != login {
			continue
		}
		for _, id := range s.resultOrder {
			result := s.results[id]
			if result.ParticipationID != p.ID {
				continue
			}
			if submission, ok := s.submissions[result.SubmissionID]; ok {
				result.Submission = &submission
			}
			p.Results = append(p.Results, &result)
		}
		return p, nil
	}
	return domain.Participation{}, domain.ErrParticipationNotFound
}

func (s *ParticipationStore) SaveSubmission(_ context.Context, sub domain.QuizSubmission) (domain.QuizSubmission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	s.submissions[sub.ID] = sub
	return sub, nil
}

func (s *ParticipationStore) SaveResult(_ context.Context, r domain.Result) (domain.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if _, exists := s.results[r.ID]; !exists {
		s.resultOrder = append(s.resultOrder, r.ID)
	}
	stored := r
	stored.Submission = nil
	s.results[r.ID] = stored
	return r, nil
}

func (s *ParticipationStore) SaveUser(u domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.Login] = u
}

func (s *ParticipationStore) FindByLogin(_ context.Context, login string) (domain.User, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[login]
	return u, ok, nil
}

func (s *ParticipationStore) SaveVersion(_ context.Context, v domain.SubmissionVersion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.versions = append(s.versions, v)
	return nil
}

// Participations returns all stored participations.
func (s *ParticipationStore) Participations() []domain.Participation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Participation, 0, len(s.participations))
	for _, p := range s.participations {
		out = append(out, p)
	}
	return out
}

// Submission returns a stored submission by ID.
func (s *ParticipationStore) Submission(id string) (domain.QuizSubmission, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.submissions[id]
	return sub, ok
}

// Results returns all stored results in insertion order.
func (s *ParticipationStore) Results() []domain.Result {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Result, 0, len(s.resultOrder))
	for _, id := range s.resultOrder {
		out = append(out, s.results[id])
	}
	return out
}

// Versions returns the stored submission versions.
func (s *ParticipationStore) Versions() []domain.SubmissionVersion {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.SubmissionVersion(nil), s.versions...)
}
