package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/infra/memory"
)

func TestQuizCacheCachesInRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := newClient(mr)

	loader := &countingLoader{
		QuizLoader: memory.NewQuizStore(map[string]domain.QuizExercise{
			"quiz-1": sampleQuiz(),
		}),
	}
	repo := NewQuizCache(client, loader, time.Minute)

	got, err := repo.GetQuiz(context.Background(), "quiz-1")
	if err != nil {
		t.Fatalf("get quiz: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected loader called once, got %d", loader.calls)
	}
	if !mr.Exists("quiz:quiz-1:exercise") {
		t.Fatalf("expected quiz to be cached in redis")
	}

	// Second call should hit cache, loader not incremented.
	cached, _ := repo.GetQuiz(context.Background(), "quiz-1")
	if loader.calls != 1 {
		t.Fatalf("expected cache hit, loader calls=%d", loader.calls)
	}
	if len(cached.Questions) != 1 || cached.Questions[0].Options[1].IsCorrect != true {
		t.Fatalf("cached quiz lost its questions: %+v", cached)
	}
	if !cached.DueDate.Equal(got.DueDate) {
		t.Fatalf("cached due date %v, want %v", cached.DueDate, got.DueDate)
	}

	repo.Invalidate(context.Background(), "quiz-1")
	if mr.Exists("quiz:quiz-1:exercise") {
		t.Fatalf("expected invalidate to remove the key")
	}
	_, _ = repo.GetQuiz(context.Background(), "quiz-1")
	if loader.calls != 2 {
		t.Fatalf("expected reload after invalidate, loader calls=%d", loader.calls)
	}
}

type countingLoader struct {
	memory.QuizLoader
	calls int
}

func (l *countingLoader) LoadQuiz(ctx context.Context, quizID string) (domain.QuizExercise, error) {
	l.calls++
	return l.QuizLoader.LoadQuiz(ctx, quizID)
}

func sampleQuiz() domain.QuizExercise {
	release := time.Date(2030, 1, 1, 10, 0, 0, 0, time.UTC)
	return domain.QuizExercise{
		ID:             "quiz-1",
		ReleaseDate:    release,
		DueDate:        release.Add(10 * time.Minute),
		PlannedToStart: true,
		Questions: []domain.Question{
			{
				ID:          "q1",
				Kind:        domain.QuestionKindMultipleChoice,
				Text:        "What is 2 + 2?",
				Points:      1,
				ScoringType: domain.ScoringAllOrNothing,
				Options: []domain.AnswerOption{
					{ID: "o1", Text: "3", IsCorrect: false},
					{ID: "o2", Text: "4", IsCorrect: true},
				},
			},
		},
	}
}

func newClient(mr *miniredis.Miniredis) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
}
