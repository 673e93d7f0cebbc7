package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/observability"
)

// ScheduleState is the lifecycle phase of a quiz schedule.
type ScheduleState int

const (
	StateUnscheduled ScheduleState = iota
	StateStartScheduled
	StateRunning
	StateEndScheduled
	StateConsolidated
)

func (s ScheduleState) String() string {
	switch s {
	case StateUnscheduled:
		return "unscheduled"
	case StateStartScheduled:
		return "start-scheduled"
	case StateRunning:
		return "running"
	case StateEndScheduled:
		return "end-scheduled"
	case StateConsolidated:
		return "consolidated"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// scheduleDeps are the collaborators shared by every QuizSchedule of a ScheduleService.
type scheduleDeps struct {
	quizzes        QuizRepository
	participations ParticipationRepository
	submissions    SubmissionRepository
	results        ResultRepository
	users          UserRepository
	notifier       Notifier
	broadcaster    QuizBroadcaster
	statistics     StatisticsUpdater
	scheduler      Scheduler
	metrics        *observability.Collector
	logger         *slog.Logger
	now            func() time.Time
	gracePeriod    time.Duration
}

// QuizSchedule drives one quiz through start, end and consolidation. It owns the
// quiz's submission cache, its pending statistics results and both timer handles.
type QuizSchedule struct {
	quizID  string
	deps    *scheduleDeps
	ctx     context.Context
	cache   SubmissionCache
	results *ResultSet

	flushPending atomic.Bool

	mu        sync.Mutex
	quiz      domain.QuizExercise
	state     ScheduleState
	startTask TaskHandle
	endTask   TaskHandle
}

func newQuizSchedule(ctx context.Context, quizID string, cache SubmissionCache, deps *scheduleDeps) *QuizSchedule {
	return &QuizSchedule{
		quizID:  quizID,
		deps:    deps,
		ctx:     ctx,
		cache:   cache,
		results: NewResultSet(),
		quiz:    domain.QuizExercise{ID: quizID},
	}
}

func (s *QuizSchedule) QuizID() string { return s.quizID }

// State reports the current lifecycle phase.
func (s *QuizSchedule) State() ScheduleState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Quiz returns the quiz as last reloaded from the repository.
func (s *QuizSchedule) Quiz() domain.QuizExercise {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.quiz
}

// Results exposes the pending statistics results.
func (s *QuizSchedule) Results() *ResultSet { return s.results }

// ScheduleStart reloads the quiz and re-arms the start timer at its release date.
// Any previously armed start timer is cancelled first.
func (s *QuizSchedule) ScheduleStart(ctx context.Context) error {
	quiz, err := s.deps.quizzes.FindByID(ctx, s.quizID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.quiz = quiz
	s.cancelStartLocked()

	if quiz.IsPlannedToStart() && quiz.ReleaseDate.After(s.deps.now()) {
		s.startTask = s.deps.scheduler.Schedule(s.onStart, quiz.ReleaseDate)
		s.state = StateStartScheduled
		s.deps.metrics.Inc(observability.MetricTimersScheduled, "phase", "start")
		s.deps.logger.Info("scheduled quiz start", "quiz_id", s.quizID, "release_date", quiz.ReleaseDate)
	} else if s.state == StateStartScheduled {
		s.state = StateUnscheduled
	}
	return nil
}

// CancelStart cancels a pending start timer.
func (s *QuizSchedule) CancelStart() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelStartLocked()
}

// ScheduleEnd reloads the quiz and re-arms the end timer at due date plus grace period.
// Any previously armed end timer is cancelled first.
func (s *QuizSchedule) ScheduleEnd(ctx context.Context) error {
	quiz, err := s.deps.quizzes.FindByID(ctx, s.quizID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.quiz = quiz
	s.cancelEndLocked()

	if !quiz.DueDate.IsZero() && quiz.DueDate.After(s.deps.now()) {
		at := quiz.DueDate.Add(s.deps.gracePeriod)
		s.endTask = s.deps.scheduler.Schedule(s.processCachedSubmissions, at)
		s.state = StateEndScheduled
		s.deps.metrics.Inc(observability.MetricTimersScheduled, "phase", "end")
		s.deps.logger.Info("scheduled quiz end", "quiz_id", s.quizID, "due_date", quiz.DueDate, "fires_at", at)
	}
	return nil
}

// Stop cancels both timers.
func (s *QuizSchedule) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelStartLocked()
	s.cancelEndLocked()
}

// UpdateSubmission stores the participant's latest answers. Empty logins are ignored.
func (s *QuizSchedule) UpdateSubmission(ctx context.Context, login string, submission domain.QuizSubmission) error {
	if login == "" {
		return nil
	}
	return s.cache.Upsert(ctx, login, submission)
}

// Submission returns the cached submission of login, or an empty one.
func (s *QuizSchedule) Submission(ctx context.Context, login string) (domain.QuizSubmission, error) {
	if login == "" {
		return domain.QuizSubmission{}, nil
	}
	return s.cache.Get(ctx, login)
}

// ClearQuizData drops every cached submission.
func (s *QuizSchedule) ClearQuizData(ctx context.Context) error {
	return s.cache.Clear(ctx)
}

func (s *QuizSchedule) cancelStartLocked() {
	if s.startTask == nil {
		return
	}
	ok := s.startTask.Cancel()
	s.startTask = nil
	if ok {
		s.deps.metrics.Inc(observability.MetricTimersCancelled, "phase", "start")
	}
	s.deps.logger.Info("stop scheduled quiz start", "quiz_id", s.quizID, "cancelled", ok)
}

func (s *QuizSchedule) cancelEndLocked() {
	if s.endTask == nil {
		return
	}
	ok := s.endTask.Cancel()
	s.endTask = nil
	if ok {
		s.deps.metrics.Inc(observability.MetricTimersCancelled, "phase", "end")
	}
	s.deps.logger.Info("stop scheduled quiz end", "quiz_id", s.quizID, "cancelled", ok)
}

// onStart runs on the scheduler worker at the release date.
func (s *QuizSchedule) onStart() {
	ctx := s.ctx
	s.mu.Lock()
	s.startTask = nil
	s.state = StateRunning
	s.mu.Unlock()

	if err := s.ScheduleEnd(ctx); err != nil {
		s.deps.logger.Error("schedule quiz end failed", "quiz_id", s.quizID, "error", err)
	}

	quiz, err := s.deps.quizzes.FindByIDWithQuestions(ctx, s.quizID)
	if err != nil {
		s.deps.logger.Error("load quiz for start broadcast failed", "quiz_id", s.quizID, "error", err)
		return
	}
	if err := s.deps.broadcaster.SendQuizToSubscribers(ctx, quiz.FilterForStudents()); err != nil {
		s.deps.logger.Error("send quiz to subscribers failed", "quiz_id", s.quizID, "error", err)
	}
	s.deps.logger.Info("quiz started", "quiz_id", s.quizID)
}

// processCachedSubmissions runs on the scheduler worker at due date plus grace period.
// It never panics and never returns an error: failures are logged and counted.
func (s *QuizSchedule) processCachedSubmissions() {
	ctx := s.ctx
	start := time.Now()
	s.mu.Lock()
	s.endTask = nil
	s.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			s.deps.metrics.Inc(observability.MetricConsolidationFailures, "quiz_id", s.quizID)
			s.deps.logger.Error("consolidation panicked", "quiz_id", s.quizID, "panic", r)
		}
	}()

	s.deps.logger.Debug("process cached quiz submissions", "quiz_id", s.quizID)
	quiz, err := s.deps.quizzes.FindByIDWithQuestions(ctx, s.quizID)
	if errors.Is(err, domain.ErrQuizNotFound) {
		s.deps.logger.Info("quiz deleted before consolidation", "quiz_id", s.quizID)
		return
	}
	if err != nil {
		s.deps.metrics.Inc(observability.MetricConsolidationFailures, "quiz_id", s.quizID)
		s.deps.logger.Error("load quiz for consolidation failed", "quiz_id", s.quizID, "error", err)
		return
	}

	s.mu.Lock()
	s.quiz = quiz
	s.mu.Unlock()

	if !quiz.IsEnded(s.deps.now()) {
		s.deps.logger.Info("quiz has not ended, skipping consolidation", "quiz_id", s.quizID, "due_date", quiz.DueDate)
		return
	}

	processed := s.consolidate(ctx, quiz)
	elapsed := time.Since(start)
	s.deps.metrics.Add(observability.MetricConsolidationSeconds, elapsed.Seconds(), "quiz_id", s.quizID)
	if processed > 0 {
		s.deps.logger.Info("processed cached submissions",
			"quiz_id", s.quizID,
			"quiz_title", quiz.Title,
			"count", processed,
			"elapsed_ms", elapsed.Milliseconds(),
		)
	}

	s.mu.Lock()
	s.state = StateConsolidated
	s.mu.Unlock()
	s.deps.metrics.Inc(observability.MetricConsolidations, "quiz_id", s.quizID)

	s.flushStatistics()
}

// flushStatistics hands the pending results to the statistics collaborator. Results are
// returned to the set when the update fails so the next flush retries them.
func (s *QuizSchedule) flushStatistics() {
	s.flushPending.Store(false)
	ctx := s.ctx
	pending := s.results.Take()
	if len(pending) == 0 {
		return
	}
	quiz, err := s.deps.quizzes.FindByIDWithQuestionsAndStatistics(ctx, s.quizID)
	if err != nil {
		s.results.Add(pending...)
		s.deps.logger.Error("load quiz statistics failed", "quiz_id", s.quizID, "error", err)
		return
	}
	if err := s.deps.statistics.UpdateStatistics(ctx, pending, quiz); err != nil {
		s.results.Add(pending...)
		s.deps.logger.Error("update quiz statistics failed", "quiz_id", s.quizID, "results", len(pending), "error", err)
		return
	}
	s.deps.logger.Info("updated quiz statistics", "quiz_id", s.quizID, "results", len(pending))
}

// requestStatisticsFlush queues a statistics flush on the scheduler worker unless one is pending.
func (s *QuizSchedule) requestStatisticsFlush() {
	if !s.flushPending.CompareAndSwap(false, true) {
		return
	}
	s.deps.scheduler.Schedule(func() {
		defer func() {
			if r := recover(); r != nil {
				s.flushPending.Store(false)
				s.deps.logger.Error("statistics flush panicked", "quiz_id", s.quizID, "panic", r)
			}
		}()
		s.flushStatistics()
	}, s.deps.now())
}
