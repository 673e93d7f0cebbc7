package memory

import (
	"context"
	"errors"
	"testing"

	"live-quiz-service/internal/domain"
)

func TestParticipationStoreFindAttachesResults(t *testing.T) {
	ctx := context.Background()
	store := NewParticipationStore()

	participation, err := store.SaveParticipation(ctx, domain.Participation{ExerciseID: "quiz-1", ParticipantLogin: "alice"})
	if err != nil {
		t.Fatalf("save participation: %v", err)
	}
	if participation.ID == "" {
		t.Fatalf("expected generated participation id")
	}
	submission, _ := store.SaveSubmission(ctx, domain.QuizSubmission{ParticipationID: participation.ID, Submitted: true})
	if _, err := store.SaveResult(ctx, domain.Result{ParticipationID: participation.ID, SubmissionID: submission.ID, Rated: true}); err != nil {
		t.Fatalf("save result: %v", err)
	}

	found, err := store.FindParticipation(ctx, "quiz-1", "alice")
	if err != nil {
		t.Fatalf("find participation: %v", err)
	}
	if len(found.Results) != 1 || found.Results[0].Submission == nil || !found.Results[0].Submission.Submitted {
		t.Fatalf("expected result with submitted submission, got %+v", found.Results)
	}

	if _, err := store.FindParticipation(ctx, "quiz-1", "bob"); !errors.Is(err, domain.ErrParticipationNotFound) {
		t.Fatalf("expected ErrParticipationNotFound, got %v", err)
	}
}

func TestParticipationStoreUsers(t *testing.T) {
	store := NewParticipationStore()
	store.SaveUser(domain.User{Login: "alice", Name: "Alice"})

	user, ok, err := store.FindByLogin(context.Background(), "alice")
	if err != nil || !ok || user.Name != "Alice" {
		t.Fatalf("unexpected lookup: %+v %v %v", user, ok, err)
	}
	if _, ok, _ := store.FindByLogin(context.Background(), "nobody"); ok {
		t.Fatalf("expected unknown user")
	}
}
