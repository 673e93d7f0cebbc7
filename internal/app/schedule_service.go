package app

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/observability"
)

// DefaultGracePeriod is added to a quiz's due date before its submissions are consolidated.
const DefaultGracePeriod = 5 * time.Second

// Dependencies wires a ScheduleService. Metrics and Logger are optional; Now defaults to time.Now.
type Dependencies struct {
	Quizzes        QuizRepository
	QuizReader     QuizReader
	Caches         SubmissionCacheFactory
	Participations ParticipationRepository
	Submissions    SubmissionRepository
	Results        ResultRepository
	Users          UserRepository
	Notifier       Notifier
	Broadcaster    QuizBroadcaster
	Statistics     StatisticsUpdater
	Scheduler      Scheduler
	Metrics        *observability.Collector
	Logger         *slog.Logger
	Now            func() time.Time
	GracePeriod    time.Duration
}

// ScheduleService keeps one QuizSchedule per live quiz and is the entry point the
// API layer uses to schedule quizzes and read or write cached submissions.
type ScheduleService struct {
	deps   *scheduleDeps
	caches SubmissionCacheFactory
	reader QuizReader
	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.RWMutex
	schedules map[string]*QuizSchedule
}

func NewScheduleService(d Dependencies) *ScheduleService {
	logger := d.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	now := d.Now
	if now == nil {
		now = time.Now
	}
	grace := d.GracePeriod
	if grace <= 0 {
		grace = DefaultGracePeriod
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &ScheduleService{
		deps: &scheduleDeps{
			quizzes:        d.Quizzes,
			participations: d.Participations,
			submissions:    d.Submissions,
			results:        d.Results,
			users:          d.Users,
			notifier:       d.Notifier,
			broadcaster:    d.Broadcaster,
			statistics:     d.Statistics,
			scheduler:      d.Scheduler,
			metrics:        d.Metrics,
			logger:         logger,
			now:            now,
			gracePeriod:    grace,
		},
		caches:    d.Caches,
		reader:    d.QuizReader,
		ctx:       ctx,
		cancel:    cancel,
		schedules: make(map[string]*QuizSchedule),
	}
}

// GracePeriod is the configured delay between due date and consolidation.
func (s *ScheduleService) GracePeriod() time.Duration { return s.deps.gracePeriod }

// StartSchedule arms every quiz that is planned and not yet ended, e.g. after a restart.
func (s *ScheduleService) StartSchedule(ctx context.Context) error {
	now := s.deps.now()
	quizzes, err := s.deps.quizzes.FindAllPlannedNotEnded(ctx, now)
	if err != nil {
		return err
	}
	for _, quiz := range quizzes {
		schedule := s.getOrCreate(quiz.ID)
		if err := schedule.ScheduleStart(ctx); err != nil {
			s.deps.logger.Error("schedule quiz start failed", "quiz_id", quiz.ID, "error", err)
			continue
		}
		if quiz.IsStarted(now) {
			if err := schedule.ScheduleEnd(ctx); err != nil {
				s.deps.logger.Error("schedule quiz end failed", "quiz_id", quiz.ID, "error", err)
			}
		}
	}
	s.deps.logger.Info("quiz schedule started", "quizzes", len(quizzes))
	return nil
}

// ScheduleQuizStart (re-)arms the start timer of a quiz, e.g. after its release date was edited.
func (s *ScheduleService) ScheduleQuizStart(ctx context.Context, quizID string) error {
	s.invalidate(ctx, quizID)
	return s.getOrCreate(quizID).ScheduleStart(ctx)
}

// ScheduleQuizEnd (re-)arms the end timer of a quiz, e.g. after its due date was edited.
func (s *ScheduleService) ScheduleQuizEnd(ctx context.Context, quizID string) error {
	s.invalidate(ctx, quizID)
	return s.getOrCreate(quizID).ScheduleEnd(ctx)
}

// Reschedule re-arms the start timer and, for a quiz that is already running, the end timer.
func (s *ScheduleService) Reschedule(ctx context.Context, quizID string) error {
	if err := s.ScheduleQuizStart(ctx, quizID); err != nil {
		return err
	}
	schedule := s.getOrCreate(quizID)
	if schedule.Quiz().IsStarted(s.deps.now()) {
		return schedule.ScheduleEnd(ctx)
	}
	return nil
}

// CancelScheduledQuizStart cancels a pending start timer.
func (s *ScheduleService) CancelScheduledQuizStart(quizID string) {
	if schedule, ok := s.Schedule(quizID); ok {
		schedule.CancelStart()
	}
}

// UpdateSubmission caches the latest submission of login for the quiz.
func (s *ScheduleService) UpdateSubmission(ctx context.Context, quizID, login string, submission domain.QuizSubmission) error {
	if quizID == "" || login == "" {
		return nil
	}
	return s.getOrCreate(quizID).UpdateSubmission(ctx, login, submission)
}

// GetQuizSubmission returns the cached submission of login, or an empty submission.
func (s *ScheduleService) GetQuizSubmission(ctx context.Context, quizID, login string) (domain.QuizSubmission, error) {
	schedule, ok := s.Schedule(quizID)
	if !ok {
		return domain.QuizSubmission{}, nil
	}
	return schedule.Submission(ctx, login)
}

// AddResultForStatisticUpdate queues a result for the quiz's statistics. Results arriving
// once the quiz has ended (practice mode) trigger their own flush on the scheduler worker,
// whether or not this instance consolidated the quiz.
func (s *ScheduleService) AddResultForStatisticUpdate(ctx context.Context, quizID string, result domain.Result) {
	schedule := s.getOrCreate(quizID)
	schedule.results.Add(result)
	if schedule.State() == StateConsolidated || s.quizEnded(ctx, quizID) {
		schedule.requestStatisticsFlush()
	}
}

func (s *ScheduleService) quizEnded(ctx context.Context, quizID string) bool {
	quiz, err := s.GetQuizExercise(ctx, quizID)
	if err != nil {
		s.deps.logger.Error("load quiz for statistics failed", "quiz_id", quizID, "error", err)
		return false
	}
	return quiz.IsEnded(s.deps.now())
}

// ClearQuizData cancels the quiz's timers, drops its cached submissions and forgets the schedule.
func (s *ScheduleService) ClearQuizData(ctx context.Context, quizID string) error {
	s.mu.Lock()
	schedule, ok := s.schedules[quizID]
	delete(s.schedules, quizID)
	s.mu.Unlock()

	s.invalidate(ctx, quizID)
	if !ok {
		return s.caches.NewSubmissionCache(quizID).Clear(ctx)
	}
	schedule.Stop()
	return schedule.ClearQuizData(ctx)
}

// GetQuizExercise returns the quiz through the read cache.
func (s *ScheduleService) GetQuizExercise(ctx context.Context, quizID string) (domain.QuizExercise, error) {
	if s.reader != nil {
		return s.reader.GetQuiz(ctx, quizID)
	}
	return s.deps.quizzes.FindByIDWithQuestions(ctx, quizID)
}

// Schedule returns the schedule of a quiz, if one exists.
func (s *ScheduleService) Schedule(quizID string) (*QuizSchedule, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	schedule, ok := s.schedules[quizID]
	return schedule, ok
}

// Stop cancels all timers and the context handed to running callbacks.
func (s *ScheduleService) Stop() {
	s.mu.RLock()
	for _, schedule := range s.schedules {
		schedule.Stop()
	}
	s.mu.RUnlock()
	s.cancel()
}

func (s *ScheduleService) getOrCreate(quizID string) *QuizSchedule {
	s.mu.Lock()
	defer s.mu.Unlock()
	if schedule, ok := s.schedules[quizID]; ok {
		return schedule
	}
	schedule := newQuizSchedule(s.ctx, quizID, s.caches.NewSubmissionCache(quizID), s.deps)
	s.schedules[quizID] = schedule
	return schedule
}

func (s *ScheduleService) invalidate(ctx context.Context, quizID string) {
	if s.reader != nil {
		s.reader.Invalidate(ctx, quizID)
	}
}
