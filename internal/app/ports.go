package app

import (
	"context"
	"time"

	"live-quiz-service/internal/domain"
)

// QuizRepository loads quizzes with increasing levels of detail.
// All three return domain.ErrQuizNotFound when the quiz does not exist.
type QuizRepository interface {
	FindByID(ctx context.Context, quizID string) (domain.QuizExercise, error)
	FindByIDWithQuestions(ctx context.Context, quizID string) (domain.QuizExercise, error)
	FindByIDWithQuestionsAndStatistics(ctx context.Context, quizID string) (domain.QuizExercise, error)
	// FindAllPlannedNotEnded returns quizzes that are planned to start and whose due date is after now.
	FindAllPlannedNotEnded(ctx context.Context, now time.Time) ([]domain.QuizExercise, error)
}

// QuizReader is the cached read path used on the live submission hot path.
type QuizReader interface {
	GetQuiz(ctx context.Context, quizID string) (domain.QuizExercise, error)
	Invalidate(ctx context.Context, quizID string)
}

// ParticipationRepository persists participations.
type ParticipationRepository interface {
	SaveParticipation(ctx context.Context, p domain.Participation) (domain.Participation, error)
	// FindParticipation returns the participation of login in the quiz with its results attached,
	// or domain.ErrParticipationNotFound.
	FindParticipation(ctx context.Context, quizID, login string) (domain.Participation, error)
}

// SubmissionRepository persists quiz submissions.
type SubmissionRepository interface {
	SaveSubmission(ctx context.Context, s domain.QuizSubmission) (domain.QuizSubmission, error)
}

// ResultRepository persists results.
type ResultRepository interface {
	SaveResult(ctx context.Context, r domain.Result) (domain.Result, error)
}

// UserRepository looks users up by login; the bool reports presence.
type UserRepository interface {
	FindByLogin(ctx context.Context, login string) (domain.User, bool, error)
}

// SubmissionVersionRepository keeps the exam-mode submission history.
type SubmissionVersionRepository interface {
	SaveVersion(ctx context.Context, v domain.SubmissionVersion) error
}

// StatisticsRepository stores aggregated quiz statistics.
type StatisticsRepository interface {
	SaveStatistics(ctx context.Context, stats domain.QuizStatistics) error
}

// Notifier pushes a payload to one user on a topic.
type Notifier interface {
	SendToUser(ctx context.Context, login, topic string, payload any) error
}

// QuizBroadcaster pushes a started quiz to every subscribed client of that quiz.
type QuizBroadcaster interface {
	SendQuizToSubscribers(ctx context.Context, quiz domain.QuizExercise) error
}

// StatisticsUpdater folds a batch of results into a quiz's statistics.
type StatisticsUpdater interface {
	UpdateStatistics(ctx context.Context, results []domain.Result, quiz domain.QuizExercise) error
}

// SubmissionCache holds the in-progress submissions of one quiz, keyed by login.
// Entries are never evicted by time.
type SubmissionCache interface {
	Exists(ctx context.Context, login string) (bool, error)
	// Upsert stores the submission, registering the key first if absent.
	Upsert(ctx context.Context, login string, submission domain.QuizSubmission) error
	// Get returns the cached submission, or an empty one when none exists.
	Get(ctx context.Context, login string) (domain.QuizSubmission, error)
	// Range calls fn for every entry until fn returns false. fn may remove entries.
	Range(ctx context.Context, fn func(login string, submission domain.QuizSubmission) bool) error
	Remove(ctx context.Context, login string) error
	// Drain atomically swaps the cache for an empty one and returns the previous entries.
	// Entries that cannot be decoded are left out and named in a *domain.CorruptSubmissionsError,
	// which is returned together with the decodable entries.
	Drain(ctx context.Context) (map[string]domain.QuizSubmission, error)
	Clear(ctx context.Context) error
}

// SubmissionCacheFactory creates the cache for a quiz.
type SubmissionCacheFactory interface {
	NewSubmissionCache(quizID string) SubmissionCache
}

// Scheduler arms one-shot callbacks.
type Scheduler interface {
	Schedule(task func(), at time.Time) TaskHandle
}

// TaskHandle cancels a scheduled callback. Cancel reports true iff the callback had not started.
type TaskHandle interface {
	Cancel() bool
}
