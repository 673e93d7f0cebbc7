package memory

import (
	"context"
	"sort"
	"sync"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
)

// SubmissionCache is an in-memory implementation of app.SubmissionCache.
type SubmissionCache struct {
	mu          sync.RWMutex
	submissions map[string]domain.QuizSubmission
}

func NewSubmissionCache() *SubmissionCache {
	return &SubmissionCache{
		submissions: make(map[string]domain.QuizSubmission),
	}
}

func (c *SubmissionCache) Exists(_ context.Context, login string) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.submissions[login]
	return ok, nil
}

func (c *SubmissionCache) Upsert(_ context.Context, login string, submission domain.QuizSubmission) error {
	if login == "" {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.submissions[login] = cloneSubmission(submission)
	return nil
}

func (c *SubmissionCache) Get(_ context.Context, login string) (domain.QuizSubmission, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if submission, ok := c.submissions[login]; ok {
		return cloneSubmission(submission), nil
	}
	return domain.QuizSubmission{SubmittedAnswers: []domain.SubmittedAnswer{}}, nil
}

// Range iterates over a snapshot of the keys, so fn may modify the cache.
func (c *SubmissionCache) Range(ctx context.Context, fn func(login string, submission domain.QuizSubmission) bool) error {
	c.mu.RLock()
	logins := make([]string, 0, len(c.submissions))
	for login := range c.submissions {
		logins = append(logins, login)
	}
	c.mu.RUnlock()
	sort.Strings(logins)

	for _, login := range logins {
		c.mu.RLock()
		submission, ok := c.submissions[login]
		c.mu.RUnlock()
		if !ok {
			continue
		}
		if !fn(login, cloneSubmission(submission)) {
			return nil
		}
	}
	return nil
}

func (c *SubmissionCache) Remove(_ context.Context, login string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.submissions, login)
	return nil
}

func (c *SubmissionCache) Drain(_ context.Context) (map[string]domain.QuizSubmission, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	drained := c.submissions
	c.submissions = make(map[string]domain.QuizSubmission)
	return drained, nil
}

func (c *SubmissionCache) Clear(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.submissions = make(map[string]domain.QuizSubmission)
	return nil
}

// cloneSubmission copies the answer slice so callers cannot mutate cached state.
func cloneSubmission(s domain.QuizSubmission) domain.QuizSubmission {
	if s.SubmittedAnswers != nil {
		s.SubmittedAnswers = append([]domain.SubmittedAnswer(nil), s.SubmittedAnswers...)
	}
	if s.Results != nil {
		s.Results = append([]domain.Result(nil), s.Results...)
	}
	return s
}

// SubmissionCacheFactory hands out one cache per quiz and returns the same cache for repeated calls.
type SubmissionCacheFactory struct {
	mu     sync.Mutex
	caches map[string]*SubmissionCache
}

var _ app.SubmissionCacheFactory = (*SubmissionCacheFactory)(nil)

func NewSubmissionCacheFactory() *SubmissionCacheFactory {
	return &SubmissionCacheFactory{caches: make(map[string]*SubmissionCache)}
}

func (f *SubmissionCacheFactory) NewSubmissionCache(quizID string) app.SubmissionCache {
	f.mu.Lock()
	defer f.mu.Unlock()
	if cache, ok := f.caches[quizID]; ok {
		return cache
	}
	cache := NewSubmissionCache()
	f.caches[quizID] = cache
	return cache
}
