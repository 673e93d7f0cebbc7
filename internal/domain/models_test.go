package domain

import (
	"testing"
	"time"
)

func TestQuizExerciseLifecycle(t *testing.T) {
	release := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	quiz := QuizExercise{
		ReleaseDate:    release,
		DueDate:        release.Add(10 * time.Minute),
		PlannedToStart: true,
	}
	grace := 5 * time.Second

	before := release.Add(-time.Second)
	if quiz.IsStarted(before) || quiz.IsSubmissionAllowed(before, grace) {
		t.Fatalf("quiz must not accept submissions before release")
	}
	if !quiz.IsSubmissionAllowed(release, grace) {
		t.Fatalf("quiz must accept submissions at release")
	}
	inGrace := quiz.DueDate.Add(2 * time.Second)
	if !quiz.IsEnded(inGrace) || !quiz.IsSubmissionAllowed(inGrace, grace) {
		t.Fatalf("quiz must be ended but still accept submissions in the grace period")
	}
	if quiz.IsSubmissionAllowed(quiz.DueDate.Add(grace), grace) {
		t.Fatalf("quiz must reject submissions once the grace period elapsed")
	}

	quiz.PlannedToStart = false
	if quiz.IsStarted(inGrace) || quiz.IsEnded(inGrace) {
		t.Fatalf("unplanned quiz never starts")
	}

	open := QuizExercise{ReleaseDate: release, PlannedToStart: true}
	if !open.IsSubmissionAllowed(release.Add(24*time.Hour), grace) || open.IsEnded(release.Add(24*time.Hour)) {
		t.Fatalf("quiz without due date stays open")
	}
}

func TestFilterForStudentsKeepsOriginal(t *testing.T) {
	quiz := QuizExercise{
		Statistics: &QuizStatistics{ParticipantsRated: 1},
		Questions: []Question{
			{ID: "q1", Kind: QuestionKindMultipleChoice, Options: []AnswerOption{{ID: "o1", IsCorrect: true}}},
			{ID: "q2", Kind: QuestionKindShortAnswer, Solutions: []ShortAnswerSolution{{SpotID: "s1", Text: "x"}}},
		},
	}
	filtered := quiz.FilterForStudents()

	if filtered.Statistics != nil || filtered.Questions[0].Options[0].IsCorrect || filtered.Questions[1].Solutions != nil {
		t.Fatalf("expected solutions stripped, got %+v", filtered)
	}
	if !quiz.Questions[0].Options[0].IsCorrect || quiz.Questions[1].Solutions == nil || quiz.Statistics == nil {
		t.Fatalf("original quiz was modified")
	}
}
