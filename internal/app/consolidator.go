package app

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/observability"
)

// ParticipationTopic is the per-user topic on which consolidated participations are pushed.
func ParticipationTopic(quizID string) string {
	return "/topic/exercise/" + quizID + "/participation"
}

// consolidate drains the cache and turns every entry into a persisted participation,
// submission and result. It returns the number of participants processed successfully.
// A failing participant is logged and skipped; it is not retried.
func (s *QuizSchedule) consolidate(ctx context.Context, quiz domain.QuizExercise) int {
	entries, err := s.cache.Drain(ctx)
	var corrupt *domain.CorruptSubmissionsError
	switch {
	case errors.As(err, &corrupt):
		for _, login := range corrupt.Logins {
			s.deps.metrics.Inc(observability.MetricParticipantFailures, "quiz_id", quiz.ID)
			s.deps.logger.Error("cached submission is undecodable",
				"quiz_id", quiz.ID,
				"participant", login,
			)
		}
	case err != nil:
		s.deps.metrics.Inc(observability.MetricConsolidationFailures, "quiz_id", quiz.ID)
		s.deps.logger.Error("drain submission cache failed", "quiz_id", quiz.ID, "error", err)
		return 0
	}

	logins := make([]string, 0, len(entries))
	for login := range entries {
		logins = append(logins, login)
	}
	sort.Strings(logins)

	counter := 0
	for _, login := range logins {
		if err := s.consolidateParticipant(ctx, quiz, login, entries[login]); err != nil {
			s.deps.metrics.Inc(observability.MetricParticipantFailures, "quiz_id", quiz.ID)
			s.deps.logger.Error("consolidate participant failed",
				"quiz_id", quiz.ID,
				"participant", login,
				"error", err,
			)
			continue
		}
		counter++
	}
	s.deps.metrics.Add(observability.MetricParticipantsProcessed, float64(counter), "quiz_id", quiz.ID)
	return counter
}

func (s *QuizSchedule) consolidateParticipant(ctx context.Context, quiz domain.QuizExercise, login string, submission domain.QuizSubmission) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	if login == "" {
		return domain.ErrInvalidSubmission
	}

	submission.Submitted = true
	submission.Type = domain.SubmissionTypeTimeout
	submission.SubmissionDate = s.deps.now()
	submission.Results = nil
	if submission.ID == "" {
		submission.ID = uuid.NewString()
	}

	participation := domain.Participation{
		ExerciseID:          quiz.ID,
		ParticipantLogin:    login,
		InitializationDate:  submission.SubmissionDate,
		InitializationState: domain.InitializationStateFinished,
	}
	user, ok, err := s.deps.users.FindByLogin(ctx, login)
	if err != nil {
		return errors.Wrap(err, "find user")
	}
	if ok {
		participation.Participant = &user
	}

	submission.CalculateAndUpdateScores(quiz)
	result := domain.Result{
		Rated:          true,
		AssessmentType: domain.AssessmentTypeAutomatic,
		CompletionDate: submission.SubmissionDate,
		Submission:     &submission,
	}
	result.EvaluateSubmission(quiz)

	participation, err = s.deps.participations.SaveParticipation(ctx, participation)
	if err != nil {
		return errors.Wrap(err, "save participation")
	}
	submission.ParticipationID = participation.ID
	savedSubmission, err := s.deps.submissions.SaveSubmission(ctx, submission)
	if err != nil {
		return errors.Wrap(err, "save submission")
	}
	result.ParticipationID = participation.ID
	result.SubmissionID = savedSubmission.ID
	result.Submission = &savedSubmission
	savedResult, err := s.deps.results.SaveResult(ctx, result)
	if err != nil {
		return errors.Wrap(err, "save result")
	}

	participation.Exercise = &quiz
	participation.Submissions = []*domain.QuizSubmission{&savedSubmission}
	participation.Results = []*domain.Result{&savedResult}
	if err := s.deps.notifier.SendToUser(ctx, login, ParticipationTopic(quiz.ID), redactForStudent(participation)); err != nil {
		s.deps.metrics.Inc(observability.MetricNotificationFailures, "quiz_id", quiz.ID)
		s.deps.logger.Warn("send quiz result to user failed", "quiz_id", quiz.ID, "participant", login, "error", err)
	}

	s.results.Add(savedResult)
	return nil
}

// redactForStudent returns a copy of p to push to its participant. It keeps a single result
// whose answers reference their question by ID only. p itself is not modified.
func redactForStudent(p domain.Participation) domain.Participation {
	out := p
	if p.Exercise != nil {
		exercise := *p.Exercise
		exercise.Course = nil
		exercise.Statistics = nil
		out.Exercise = &exercise
	}
	out.Participant = nil
	out.Submissions = nil
	if len(p.Results) == 0 || p.Results[0] == nil {
		out.Results = nil
		return out
	}

	result := *p.Results[0]
	if result.Submission != nil {
		submission := *result.Submission
		submission.Results = nil
		submission.SubmittedAnswers = make([]domain.SubmittedAnswer, len(result.Submission.SubmittedAnswers))
		for i, answer := range result.Submission.SubmittedAnswers {
			if answer.Question != nil {
				answer.Question = answer.Question.CopyID()
			}
			submission.SubmittedAnswers[i] = answer
		}
		result.Submission = &submission
	}
	out.Results = []*domain.Result{&result}
	return out
}
