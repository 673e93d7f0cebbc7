package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/observability"
)

// LiveSubmissionStore is the part of ScheduleService the submission paths rely on.
type LiveSubmissionStore interface {
	GetQuizExercise(ctx context.Context, quizID string) (domain.QuizExercise, error)
	GetQuizSubmission(ctx context.Context, quizID, login string) (domain.QuizSubmission, error)
	UpdateSubmission(ctx context.Context, quizID, login string, submission domain.QuizSubmission) error
	AddResultForStatisticUpdate(ctx context.Context, quizID string, result domain.Result)
}

// SubmissionService validates and stores quiz submissions for live, exam and practice mode.
type SubmissionService struct {
	live           LiveSubmissionStore
	participations ParticipationRepository
	submissions    SubmissionRepository
	results        ResultRepository
	versions       SubmissionVersionRepository
	metrics        *observability.Collector
	logger         *slog.Logger
	now            func() time.Time
	gracePeriod    time.Duration
}

// SubmissionServiceConfig wires a SubmissionService. Metrics, Logger and Now are optional.
type SubmissionServiceConfig struct {
	Live           LiveSubmissionStore
	Participations ParticipationRepository
	Submissions    SubmissionRepository
	Results        ResultRepository
	Versions       SubmissionVersionRepository
	Metrics        *observability.Collector
	Logger         *slog.Logger
	Now            func() time.Time
	GracePeriod    time.Duration
}

func NewSubmissionService(cfg SubmissionServiceConfig) *SubmissionService {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	grace := cfg.GracePeriod
	if grace <= 0 {
		grace = DefaultGracePeriod
	}
	return &SubmissionService{
		live:           cfg.Live,
		participations: cfg.Participations,
		submissions:    cfg.Submissions,
		results:        cfg.Results,
		versions:       cfg.Versions,
		metrics:        cfg.Metrics,
		logger:         logger,
		now:            now,
		gracePeriod:    grace,
	}
}

// SaveForLiveMode validates a save or submit of a running quiz and stores it in the quiz's cache.
// It returns domain.ErrQuizInactive outside the submission window and domain.ErrAlreadySubmitted
// when the participant has submitted before.
func (s *SubmissionService) SaveForLiveMode(ctx context.Context, quizID string, submission domain.QuizSubmission, login string, submitted bool) (domain.QuizSubmission, error) {
	action := "save"
	if submitted {
		action = "submit"
	}
	start := time.Now()
	if login == "" {
		return domain.QuizSubmission{}, domain.ErrInvalidSubmission
	}

	quiz, err := s.live.GetQuizExercise(ctx, quizID)
	if err != nil {
		return domain.QuizSubmission{}, err
	}
	now := s.now()
	if !quiz.IsSubmissionAllowed(now, s.gracePeriod) {
		s.metrics.Inc(observability.MetricSubmissionsRejected, "reason", "inactive")
		return domain.QuizSubmission{}, domain.ErrQuizInactive
	}

	participation, err := s.participationForQuizWithResult(ctx, quiz, login)
	if err != nil {
		return domain.QuizSubmission{}, err
	}
	if len(participation.Results) > 0 {
		result := participation.Results[0]
		if result != nil && result.Submission != nil && result.Submission.Submitted {
			s.metrics.Inc(observability.MetricSubmissionsRejected, "reason", "already_submitted")
			return domain.QuizSubmission{}, domain.ErrAlreadySubmitted
		}
	}

	if submitted {
		submission.Submitted = true
		submission.Type = domain.SubmissionTypeManual
	}
	if submission.ID == "" {
		submission.ID = uuid.NewString()
	}
	for i := range submission.SubmittedAnswers {
		submission.SubmittedAnswers[i].SubmissionID = submission.ID
	}
	submission.SubmissionDate = now

	if err := s.live.UpdateSubmission(ctx, quizID, login, submission); err != nil {
		return domain.QuizSubmission{}, err
	}
	s.metrics.Inc(observability.MetricSubmissionsAccepted, "mode", "live", "action", action)
	s.logger.Info("saved live quiz submission",
		"action", action,
		"participant", login,
		"quiz_id", quizID,
		"elapsed_us", time.Since(start).Microseconds(),
	)
	return submission, nil
}

// participationForQuizWithResult reports a submitted result from the cache while the quiz is live
// and from the store once it has ended. Grace-period submissions are checked against both.
func (s *SubmissionService) participationForQuizWithResult(ctx context.Context, quiz domain.QuizExercise, login string) (domain.Participation, error) {
	participation := domain.Participation{ExerciseID: quiz.ID, ParticipantLogin: login}

	if quiz.IsEnded(s.now()) {
		stored, err := s.participations.FindParticipation(ctx, quiz.ID, login)
		switch {
		case err == nil && len(stored.Results) > 0:
			return stored, nil
		case err != nil && !errors.Is(err, domain.ErrParticipationNotFound):
			return domain.Participation{}, err
		}
	}

	cached, err := s.live.GetQuizSubmission(ctx, quiz.ID, login)
	if err != nil {
		return domain.Participation{}, err
	}
	if cached.Submitted {
		participation.Results = []*domain.Result{{Submission: &cached}}
	}
	return participation, nil
}

// SaveForExamMode persists an exam quiz submission directly, bypassing the live cache.
func (s *SubmissionService) SaveForExamMode(ctx context.Context, quiz domain.QuizExercise, submission domain.QuizSubmission, login string) (domain.QuizSubmission, error) {
	submission.Submitted = true
	submission.Type = domain.SubmissionTypeManual
	submission.SubmissionDate = s.now()

	participation, err := s.participations.FindParticipation(ctx, quiz.ID, login)
	if errors.Is(err, domain.ErrParticipationNotFound) {
		s.logger.Warn("participation for exam quiz not found", "quiz_id", quiz.ID, "submission_id", submission.ID, "participant", login)
		return domain.QuizSubmission{}, fmt.Errorf("quiz %s, user %s: %w", quiz.ID, login, domain.ErrParticipationNotFound)
	}
	if err != nil {
		return domain.QuizSubmission{}, err
	}

	submission.ParticipationID = participation.ID
	// clients must not be able to inject results
	submission.Results = nil
	if submission.ID == "" {
		submission.ID = uuid.NewString()
	}
	for i := range submission.SubmittedAnswers {
		submission.SubmittedAnswers[i].SubmissionID = submission.ID
	}
	saved, err := s.submissions.SaveSubmission(ctx, submission)
	if err != nil {
		return domain.QuizSubmission{}, err
	}

	if err := s.saveVersion(ctx, saved, login); err != nil {
		s.logger.Error("quiz submission version could not be saved", "submission_id", saved.ID, "participant", login, "error", err)
	}
	s.metrics.Inc(observability.MetricSubmissionsAccepted, "mode", "exam", "action", "submit")
	s.logger.Debug("submit exam quiz finished", "quiz_id", quiz.ID, "submission_id", saved.ID)
	return saved, nil
}

func (s *SubmissionService) saveVersion(ctx context.Context, submission domain.QuizSubmission, login string) error {
	content, err := json.Marshal(submission.SubmittedAnswers)
	if err != nil {
		return err
	}
	return s.versions.SaveVersion(ctx, domain.SubmissionVersion{
		ID:           uuid.NewString(),
		SubmissionID: submission.ID,
		Author:       login,
		Content:      content,
		CreatedAt:    s.now(),
	})
}

// SubmitForPractice grades a practice submission immediately and records an unrated result.
// quiz must carry its questions.
func (s *SubmissionService) SubmitForPractice(ctx context.Context, submission domain.QuizSubmission, quiz domain.QuizExercise, participation domain.Participation) (domain.Result, error) {
	now := s.now()
	if !quiz.OpenForPractice || !quiz.IsEnded(now) {
		return domain.Result{}, domain.ErrPracticeNotAllowed
	}

	submission.Submitted = true
	submission.Type = domain.SubmissionTypeManual
	submission.SubmissionDate = now
	submission.ParticipationID = participation.ID
	submission.Results = nil
	if submission.ID == "" {
		submission.ID = uuid.NewString()
	}
	for i := range submission.SubmittedAnswers {
		submission.SubmittedAnswers[i].SubmissionID = submission.ID
	}
	submission.CalculateAndUpdateScores(quiz)

	saved, err := s.submissions.SaveSubmission(ctx, submission)
	if err != nil {
		return domain.Result{}, err
	}

	result := domain.Result{
		ParticipationID: participation.ID,
		SubmissionID:    saved.ID,
		Submission:      &saved,
		Rated:           false,
		AssessmentType:  domain.AssessmentTypeAutomatic,
		CompletionDate:  now,
	}
	result.EvaluateSubmission(quiz)
	result, err = s.results.SaveResult(ctx, result)
	if err != nil {
		return domain.Result{}, err
	}

	s.live.AddResultForStatisticUpdate(ctx, quiz.ID, result)
	s.metrics.Inc(observability.MetricSubmissionsAccepted, "mode", "practice", "action", "submit")
	s.logger.Debug("submit practice quiz finished", "quiz_id", quiz.ID, "result_id", result.ID, "score", result.Score)
	return result, nil
}
