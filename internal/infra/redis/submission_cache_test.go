package redis

import (
	"context"
	"errors"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"

	"live-quiz-service/internal/domain"
)

func TestSubmissionCacheStoresHash(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	cache := NewSubmissionCacheFactory(newClient(mr), nil).NewSubmissionCache("quiz-1")

	empty, err := cache.Get(ctx, "alice")
	if err != nil {
		t.Fatalf("get missing: %v", err)
	}
	if empty.SubmittedAnswers == nil || empty.Submitted {
		t.Fatalf("expected empty default submission, got %+v", empty)
	}

	submission := domain.QuizSubmission{
		ID:        "s1",
		Submitted: true,
		SubmittedAnswers: []domain.SubmittedAnswer{
			{QuestionID: "q1", Kind: domain.QuestionKindMultipleChoice, SelectedOptions: []string{"o2"}},
		},
	}
	if err := cache.Upsert(ctx, "alice", submission); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if !mr.Exists("quiz:quiz-1:submissions") {
		t.Fatalf("expected submissions hash")
	}
	ok, err := cache.Exists(ctx, "alice")
	if err != nil || !ok {
		t.Fatalf("expected cached entry, got %v %v", ok, err)
	}
	got, err := cache.Get(ctx, "alice")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.Submitted || len(got.SubmittedAnswers) != 1 || got.SubmittedAnswers[0].SelectedOptions[0] != "o2" {
		t.Fatalf("round trip mismatch: %+v", got)
	}

	if err := cache.Remove(ctx, "alice"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if ok, _ := cache.Exists(ctx, "alice"); ok {
		t.Fatalf("expected entry removed")
	}
}

func TestSubmissionCacheDrain(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	cache := NewSubmissionCache(newClient(mr), "quiz-1", nil)

	drained, err := cache.Drain(ctx)
	if err != nil {
		t.Fatalf("drain empty: %v", err)
	}
	if len(drained) != 0 {
		t.Fatalf("expected nothing drained, got %d", len(drained))
	}

	_ = cache.Upsert(ctx, "alice", domain.QuizSubmission{ID: "a"})
	_ = cache.Upsert(ctx, "bob", domain.QuizSubmission{ID: "b"})

	visited := 0
	_ = cache.Range(ctx, func(string, domain.QuizSubmission) bool {
		visited++
		return false
	})
	if visited != 1 {
		t.Fatalf("expected range to stop after first entry, visited %d", visited)
	}

	drained, err = cache.Drain(ctx)
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if len(drained) != 2 || drained["bob"].ID != "b" {
		t.Fatalf("unexpected drained entries: %+v", drained)
	}
	if len(mr.Keys()) != 0 {
		t.Fatalf("expected no keys left after drain, got %v", mr.Keys())
	}

	_ = cache.Upsert(ctx, "carol", domain.QuizSubmission{ID: "c"})
	if err := cache.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if ok, _ := cache.Exists(ctx, "carol"); ok {
		t.Fatalf("expected cache cleared")
	}
}

func TestSubmissionCacheDrainKeepsDecodableEntries(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	cache := NewSubmissionCache(newClient(mr), "quiz-1", nil)
	_ = cache.Upsert(ctx, "alice", domain.QuizSubmission{ID: "a"})
	_ = cache.Upsert(ctx, "bob", domain.QuizSubmission{ID: "b"})
	mr.HSet("quiz:quiz-1:submissions", "mallory", "{not json")

	drained, err := cache.Drain(ctx)
	var corrupt *domain.CorruptSubmissionsError
	if !errors.As(err, &corrupt) {
		t.Fatalf("expected corrupt submissions error, got %v", err)
	}
	if len(corrupt.Logins) != 1 || corrupt.Logins[0] != "mallory" {
		t.Fatalf("unexpected corrupt logins: %v", corrupt.Logins)
	}
	if len(drained) != 2 || drained["alice"].ID != "a" || drained["bob"].ID != "b" {
		t.Fatalf("expected alice and bob drained, got %+v", drained)
	}
	if got := mr.HGet("quiz:quiz-1:submissions:corrupt", "mallory"); got != "{not json" {
		t.Fatalf("expected undecodable entry parked, got %q", got)
	}
	if mr.Exists("quiz:quiz-1:submissions") {
		t.Fatalf("expected live hash drained")
	}

	visited := 0
	mr.HSet("quiz:quiz-1:submissions", "mallory", "{not json")
	_ = cache.Upsert(ctx, "carol", domain.QuizSubmission{ID: "c"})
	err = cache.Range(ctx, func(string, domain.QuizSubmission) bool {
		visited++
		return true
	})
	if !errors.As(err, &corrupt) || visited != 1 {
		t.Fatalf("expected range to skip corrupt entry, visited %d err %v", visited, err)
	}

	if err := cache.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if len(mr.Keys()) != 0 {
		t.Fatalf("expected clear to remove every key, got %v", mr.Keys())
	}
}

func TestSubmissionCacheDrainRecoversDetachedHashes(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	cache := NewSubmissionCache(newClient(mr), "quiz-1", nil)
	_ = cache.Upsert(ctx, "alice", domain.QuizSubmission{ID: "a-new"})
	broken := "quiz:quiz-1:submissions:draining:00000000000000000001:broken"
	if err := mr.Set(broken, "not a hash"); err != nil {
		t.Fatalf("seed broken key: %v", err)
	}

	if _, err := cache.Drain(ctx); err == nil {
		t.Fatalf("expected drain to fail on unreadable hash")
	}
	if ok, _ := cache.Exists(ctx, "alice"); !ok {
		t.Fatalf("expected detached submissions restored under the live key")
	}

	mr.Del(broken)
	mr.HSet("quiz:quiz-1:submissions:draining:00000000000000000002:left", "alice", `{"id":"a-old"}`, "dave", `{"id":"d"}`)
	drained, err := cache.Drain(ctx)
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if len(drained) != 2 || drained["dave"].ID != "d" || drained["alice"].ID != "a-new" {
		t.Fatalf("expected leftover merged under newer entries, got %+v", drained)
	}
	if len(mr.Keys()) != 0 {
		t.Fatalf("expected no keys left after drain, got %v", mr.Keys())
	}
}
