package memory

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"live-quiz-service/internal/domain"
)

// QuizLoader fetches a quiz with its questions from a backing store.
type QuizLoader interface {
	LoadQuiz(ctx context.Context, quizID string) (domain.QuizExercise, error)
}

// QuizCache caches quizzes with TTL to keep repository reads off the submission hot path.
type QuizCache struct {
	loader QuizLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand
	rndMu  sync.Mutex

	mu    sync.RWMutex
	cache map[string]cachedQuiz
}

type cachedQuiz struct {
	quiz      domain.QuizExercise
	expiresAt time.Time
}

func NewQuizCache(loader QuizLoader, ttl time.Duration) *QuizCache {
	return &QuizCache{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedQuiz),
	}
}

func (r *QuizCache) GetQuiz(ctx context.Context, quizID string) (domain.QuizExercise, error) {
	now := r.clock()

	r.mu.RLock()
	if entry, ok := r.cache[quizID]; ok && entry.expiresAt.After(now) {
		r.mu.RUnlock()
		return entry.quiz, nil
	}
	r.mu.RUnlock()

	result, err, _ := r.sf.Do(quizID, func() (interface{}, error) {
		now := r.clock()
		r.mu.RLock()
		if entry, ok := r.cache[quizID]; ok && entry.expiresAt.After(now) {
			r.mu.RUnlock()
			return entry.quiz, nil
		}
		r.mu.RUnlock()

		quiz, err := r.loader.LoadQuiz(ctx, quizID)
		if err != nil {
			return domain.QuizExercise{}, err
		}

		r.mu.Lock()
		r.cache[quizID] = cachedQuiz{
			quiz:      quiz,
			expiresAt: now.Add(r.ttlWithJitter()),
		}
		r.mu.Unlock()
		return quiz, nil
	})
	if err != nil {
		return domain.QuizExercise{}, err
	}
	return result.(domain.QuizExercise), nil
}

// Invalidate drops the cached copy so the next read sees edited dates.
func (r *QuizCache) Invalidate(_ context.Context, quizID string) {
	r.mu.Lock()
	delete(r.cache, quizID)
	r.mu.Unlock()
	r.sf.Forget(quizID)
}

func (r *QuizCache) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

// QuizStore is an in-memory quiz repository, used for tests, demos and as a QuizLoader.
type QuizStore struct {
	mu      sync.RWMutex
	quizzes map[string]domain.QuizExercise
}

func NewQuizStore(quizzes map[string]domain.QuizExercise) *QuizStore {
	store := &QuizStore{quizzes: make(map[string]domain.QuizExercise, len(quizzes))}
	for id, quiz := range quizzes {
		store.quizzes[id] = quiz
	}
	return store
}

// Save inserts or replaces a quiz, e.g. to edit its dates.
func (s *QuizStore) Save(quiz domain.QuizExercise) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quizzes[quiz.ID] = quiz
}

func (s *QuizStore) Delete(quizID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.quizzes, quizID)
}

func (s *QuizStore) FindByID(_ context.Context, quizID string) (domain.QuizExercise, error) {
	quiz, err := s.get(quizID)
	if err != nil {
		return domain.QuizExercise{}, err
	}
	quiz.Questions = nil
	quiz.Statistics = nil
	return quiz, nil
}

func (s *QuizStore) FindByIDWithQuestions(_ context.Context, quizID string) (domain.QuizExercise, error) {
	quiz, err := s.get(quizID)
	if err != nil {
		return domain.QuizExercise{}, err
	}
	quiz.Statistics = nil
	return quiz, nil
}

func (s *QuizStore) FindByIDWithQuestionsAndStatistics(_ context.Context, quizID string) (domain.QuizExercise, error) {
	return s.get(quizID)
}

func (s *QuizStore) FindAllPlannedNotEnded(_ context.Context, now time.Time) ([]domain.QuizExercise, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.QuizExercise, 0)
	for _, quiz := range s.quizzes {
		if !quiz.IsPlannedToStart() || quiz.DueDate.IsZero() || !quiz.DueDate.After(now) {
			continue
		}
		quiz.Questions = nil
		quiz.Statistics = nil
		out = append(out, quiz)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *QuizStore) LoadQuiz(ctx context.Context, quizID string) (domain.QuizExercise, error) {
	return s.FindByIDWithQuestions(ctx, quizID)
}

// SaveStatistics attaches statistics to the stored quiz.
func (s *QuizStore) SaveStatistics(_ context.Context, stats domain.QuizStatistics) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	quiz, ok := s.quizzes[stats.QuizID]
	if !ok {
		return domain.ErrQuizNotFound
	}
	quiz.Statistics = &stats
	s.quizzes[stats.QuizID] = quiz
	return nil
}

func (s *QuizStore) get(quizID string) (domain.QuizExercise, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	quiz, ok := s.quizzes[quizID]
	if !ok {
		return domain.QuizExercise{}, domain.ErrQuizNotFound
	}
	return quiz, nil
}
