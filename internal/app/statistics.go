package app

import (
	"context"
	"sort"
	"time"

	"live-quiz-service/internal/domain"
)

// StatisticsService folds graded results into a quiz's point and question counters.
type StatisticsService struct {
	repo StatisticsRepository
	now  func() time.Time
}

func NewStatisticsService(repo StatisticsRepository) *StatisticsService {
	return &StatisticsService{repo: repo, now: time.Now}
}

// UpdateStatistics adds results to the statistics loaded with quiz and saves them.
func (s *StatisticsService) UpdateStatistics(ctx context.Context, results []domain.Result, quiz domain.QuizExercise) error {
	stats := domain.QuizStatistics{QuizID: quiz.ID}
	if quiz.Statistics != nil {
		stats = *quiz.Statistics
		stats.QuizID = quiz.ID
		stats.PointCounters = append([]domain.PointCounter(nil), quiz.Statistics.PointCounters...)
		stats.QuestionCounters = append([]domain.QuestionCounter(nil), quiz.Statistics.QuestionCounters...)
	}
	for _, result := range results {
		addResult(&stats, quiz, result)
	}
	sort.Slice(stats.PointCounters, func(i, j int) bool {
		return stats.PointCounters[i].Points < stats.PointCounters[j].Points
	})
	stats.UpdatedAt = s.now()
	return s.repo.SaveStatistics(ctx, stats)
}

func addResult(stats *domain.QuizStatistics, quiz domain.QuizExercise, result domain.Result) {
	if result.Rated {
		stats.ParticipantsRated++
	} else {
		stats.ParticipantsUnrated++
	}
	if result.Submission == nil {
		return
	}

	points := result.Submission.ScoreInPoints
	idx := -1
	for i := range stats.PointCounters {
		if stats.PointCounters[i].Points == points {
			idx = i
			break
		}
	}
	if idx < 0 {
		stats.PointCounters = append(stats.PointCounters, domain.PointCounter{Points: points})
		idx = len(stats.PointCounters) - 1
	}
	if result.Rated {
		stats.PointCounters[idx].RatedCounter++
	} else {
		stats.PointCounters[idx].UnratedCounter++
	}

	for _, answer := range result.Submission.SubmittedAnswers {
		question, ok := quiz.Question(answer.QuestionID)
		if !ok || question.Points <= 0 || answer.ScoreInPoints < question.Points {
			continue
		}
		counter := questionCounter(stats, question.ID)
		if result.Rated {
			counter.RatedCorrect++
		} else {
			counter.UnratedCorrect++
		}
	}
}

func questionCounter(stats *domain.QuizStatistics, questionID string) *domain.QuestionCounter {
	for i := range stats.QuestionCounters {
		if stats.QuestionCounters[i].QuestionID == questionID {
			return &stats.QuestionCounters[i]
		}
	}
	stats.QuestionCounters = append(stats.QuestionCounters, domain.QuestionCounter{QuestionID: questionID})
	return &stats.QuestionCounters[len(stats.QuestionCounters)-1]
}
