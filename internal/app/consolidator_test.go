package app

import (
	"testing"

	"live-quiz-service/internal/domain"
)

func TestRedactForStudentLeavesOriginalIntact(t *testing.T) {
	question := domain.Question{ID: "q1", Kind: domain.QuestionKindMultipleChoice, Text: "What is 2 + 2?", Points: 1}
	submission := domain.QuizSubmission{
		ID:        "s1",
		Submitted: true,
		SubmittedAnswers: []domain.SubmittedAnswer{
			{QuestionID: "q1", Kind: domain.QuestionKindMultipleChoice, Question: &question},
		},
	}
	result := domain.Result{ID: "r1", Submission: &submission}
	participation := domain.Participation{
		ID:               "p1",
		ParticipantLogin: "alice",
		Participant:      &domain.User{Login: "alice", Email: "alice@example.com"},
		Exercise: &domain.QuizExercise{
			ID:         "quiz-1",
			Course:     &domain.Course{ID: "c1"},
			Statistics: &domain.QuizStatistics{},
		},
		Submissions: []*domain.QuizSubmission{&submission},
		Results:     []*domain.Result{&result, {ID: "r0"}},
	}

	redacted := redactForStudent(participation)

	if redacted.Participant != nil || redacted.Submissions != nil || len(redacted.Results) != 1 {
		t.Fatalf("expected participant, submissions and extra results stripped: %+v", redacted)
	}
	if redacted.Exercise.Course != nil || redacted.Exercise.Statistics != nil {
		t.Fatalf("expected exercise course and statistics stripped")
	}
	if redacted.ParticipantLogin != "alice" {
		t.Fatalf("expected login kept")
	}
	pushed := redacted.Results[0].Submission.SubmittedAnswers[0].Question
	if pushed.ID != "q1" || pushed.Text != "" || pushed.Points != 0 {
		t.Fatalf("expected question reduced to its id, got %+v", pushed)
	}

	if participation.Participant == nil || participation.Exercise.Course == nil || len(participation.Results) != 2 {
		t.Fatalf("original participation was modified")
	}
	if submission.SubmittedAnswers[0].Question.Text == "" {
		t.Fatalf("original answer question was modified")
	}
}

func TestParticipationTopic(t *testing.T) {
	if got := ParticipationTopic("42"); got != "/topic/exercise/42/participation" {
		t.Fatalf("unexpected topic %q", got)
	}
}
