package app_test

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/infra/memory"
	"live-quiz-service/internal/observability"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// manualScheduler records tasks; runDue executes the due ones in order of their instant.
type manualScheduler struct {
	mu    sync.Mutex
	tasks []*manualTask
}

type manualTask struct {
	fn        func()
	at        time.Time
	ran       bool
	cancelled bool
}

func (t *manualTask) Cancel() bool {
	if t.ran || t.cancelled {
		return false
	}
	t.cancelled = true
	return true
}

func (s *manualScheduler) Schedule(fn func(), at time.Time) app.TaskHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	task := &manualTask{fn: fn, at: at}
	s.tasks = append(s.tasks, task)
	return task
}

func (s *manualScheduler) armed() []*manualTask {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*manualTask
	for _, task := range s.tasks {
		if !task.ran && !task.cancelled {
			out = append(out, task)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].at.Before(out[j].at) })
	return out
}

func (s *manualScheduler) runDue(now time.Time) int {
	ran := 0
	for {
		var next *manualTask
		for _, task := range s.armed() {
			if !task.at.After(now) {
				next = task
				break
			}
		}
		if next == nil {
			return ran
		}
		next.ran = true
		next.fn()
		ran++
	}
}

type notification struct {
	login   string
	topic   string
	payload any
}

type fakeNotifier struct {
	mu      sync.Mutex
	sent    []notification
	err     error
	quizzes []domain.QuizExercise
}

func (n *fakeNotifier) SendToUser(_ context.Context, login, topic string, payload any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification{login: login, topic: topic, payload: payload})
	return n.err
}

func (n *fakeNotifier) SendQuizToSubscribers(_ context.Context, quiz domain.QuizExercise) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.quizzes = append(n.quizzes, quiz)
	return nil
}

func (n *fakeNotifier) notifications() []notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notification(nil), n.sent...)
}

func (n *fakeNotifier) broadcasts() []domain.QuizExercise {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]domain.QuizExercise(nil), n.quizzes...)
}

// failingParticipations makes SaveParticipation fail for selected logins.
type failingParticipations struct {
	*memory.ParticipationStore

	mu       sync.Mutex
	failures map[string]error
}

func (f *failingParticipations) failFor(login string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[login] = err
}

func (f *failingParticipations) SaveParticipation(ctx context.Context, p domain.Participation) (domain.Participation, error) {
	f.mu.Lock()
	err, ok := f.failures[p.ParticipantLogin]
	f.mu.Unlock()
	if ok {
		return domain.Participation{}, err
	}
	return f.ParticipationStore.SaveParticipation(ctx, p)
}

// corruptingCaches reports the given logins as undecodable on every drain.
type corruptingCaches struct {
	app.SubmissionCacheFactory
	logins []string
}

func (f corruptingCaches) NewSubmissionCache(quizID string) app.SubmissionCache {
	return corruptingCache{SubmissionCache: f.SubmissionCacheFactory.NewSubmissionCache(quizID), logins: f.logins}
}

type corruptingCache struct {
	app.SubmissionCache
	logins []string
}

func (c corruptingCache) Drain(ctx context.Context) (map[string]domain.QuizSubmission, error) {
	entries, err := c.SubmissionCache.Drain(ctx)
	if err != nil {
		return nil, err
	}
	return entries, &domain.CorruptSubmissionsError{Logins: c.logins}
}

type testEnv struct {
	clock       *fakeClock
	scheduler   *manualScheduler
	quizzes     *memory.QuizStore
	store       *memory.ParticipationStore
	failing     *failingParticipations
	notifier    *fakeNotifier
	metrics     *observability.Collector
	service     *app.ScheduleService
	submissions *app.SubmissionService
}

var epoch = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func newTestEnv(t *testing.T, quizzes ...domain.QuizExercise) *testEnv {
	t.Helper()
	return newTestEnvWithGrace(t, 0, quizzes...)
}

func newTestEnvWithGrace(t *testing.T, grace time.Duration, quizzes ...domain.QuizExercise) *testEnv {
	t.Helper()
	return newTestEnvWithCaches(t, grace, memory.NewSubmissionCacheFactory(), quizzes...)
}

func newTestEnvWithCaches(t *testing.T, grace time.Duration, caches app.SubmissionCacheFactory, quizzes ...domain.QuizExercise) *testEnv {
	t.Helper()
	env := &testEnv{
		clock:     &fakeClock{now: epoch},
		scheduler: &manualScheduler{},
		quizzes:   memory.NewQuizStore(nil),
		store:     memory.NewParticipationStore(),
		notifier:  &fakeNotifier{},
		metrics:   observability.NewCollector(nil),
	}
	env.failing = &failingParticipations{ParticipationStore: env.store, failures: make(map[string]error)}
	for _, quiz := range quizzes {
		env.quizzes.Save(quiz)
	}
	env.service = app.NewScheduleService(app.Dependencies{
		Quizzes:        env.quizzes,
		Caches:         caches,
		Participations: env.failing,
		Submissions:    env.store,
		Results:        env.store,
		Users:          env.store,
		Notifier:       env.notifier,
		Broadcaster:    env.notifier,
		Statistics:     app.NewStatisticsService(env.quizzes),
		Scheduler:      env.scheduler,
		Metrics:        env.metrics,
		Now:            env.clock.Now,
		GracePeriod:    grace,
	})
	t.Cleanup(env.service.Stop)
	env.submissions = app.NewSubmissionService(app.SubmissionServiceConfig{
		Live:           env.service,
		Participations: env.failing,
		Submissions:    env.store,
		Results:        env.store,
		Versions:       env.store,
		Metrics:        env.metrics,
		Now:            env.clock.Now,
		GracePeriod:    grace,
	})
	return env
}

// advance moves the clock and runs every task due by then.
func (e *testEnv) advance(to time.Time) int {
	e.clock.Set(to)
	return e.scheduler.runDue(to)
}

func liveQuiz() domain.QuizExercise {
	release := epoch.Add(time.Minute)
	return domain.QuizExercise{
		ID:             "quiz-1",
		Title:          "Arithmetic",
		Course:         &domain.Course{ID: "c1", Title: "Maths"},
		ReleaseDate:    release,
		DueDate:        release.Add(10 * time.Minute),
		Duration:       10 * time.Minute,
		PlannedToStart: true,
		Questions: []domain.Question{
			{
				ID:          "q1",
				Kind:        domain.QuestionKindMultipleChoice,
				Text:        "What is 2 + 2?",
				Points:      1,
				ScoringType: domain.ScoringAllOrNothing,
				Options: []domain.AnswerOption{
					{ID: "o1", Text: "3"},
					{ID: "o2", Text: "4", IsCorrect: true},
				},
			},
		},
	}
}

func answer(option string) domain.QuizSubmission {
	return domain.QuizSubmission{SubmittedAnswers: []domain.SubmittedAnswer{
		{QuestionID: "q1", Kind: domain.QuestionKindMultipleChoice, SelectedOptions: []string{option}},
	}}
}
