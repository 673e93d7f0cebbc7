package domain

import (
	"fmt"
	"math"
	"strings"
)

// CalculateAndUpdateScores grades every answer against the quiz and updates the submission total.
// Answers referring to unknown questions, or whose kind does not match, score zero.
func (s *QuizSubmission) CalculateAndUpdateScores(quiz QuizExercise) {
	total := 0.0
	for i := range s.SubmittedAnswers {
		answer := &s.SubmittedAnswers[i]
		question, ok := quiz.Question(answer.QuestionID)
		if !ok || question.Kind != answer.Kind {
			answer.ScoreInPoints = 0
			answer.Question = nil
			continue
		}
		answer.ScoreInPoints = ScoreAnswer(question, *answer)
		answer.Question = &question
		total += answer.ScoreInPoints
	}
	s.ScoreInPoints = total
}

// ScoreAnswer returns the points awarded for one answer.
func ScoreAnswer(question Question, answer SubmittedAnswer) float64 {
	var correct, wrong, total int
	switch question.Kind {
	case QuestionKindMultipleChoice:
		correct, wrong, total = countMultipleChoice(question, answer)
	case QuestionKindDragAndDrop:
		correct, wrong, total = countDragAndDrop(question, answer)
	case QuestionKindShortAnswer:
		correct, wrong, total = countShortAnswer(question, answer)
	default:
		return 0
	}
	if total == 0 {
		return 0
	}

	switch question.ScoringType {
	case ScoringProportionalWithPenalty:
		score := question.Points * float64(correct-wrong) / float64(total)
		return math.Max(0, score)
	default:
		if correct == total && wrong == 0 {
			return question.Points
		}
		return 0
	}
}

// countMultipleChoice counts options judged correctly (selected iff correct) against options judged wrongly.
func countMultipleChoice(question Question, answer SubmittedAnswer) (int, int, int) {
	selected := make(map[string]struct{}, len(answer.SelectedOptions))
	for _, id := range answer.SelectedOptions {
		selected[id] = struct{}{}
	}
	var correct, wrong int
	for _, option := range question.Options {
		_, picked := selected[option.ID]
		if picked == option.IsCorrect {
			correct++
		} else {
			wrong++
		}
	}
	return correct, wrong, len(question.Options)
}

func countDragAndDrop(question Question, answer SubmittedAnswer) (int, int, int) {
	expected := make(map[string]string, len(question.CorrectMappings))
	for _, mapping := range question.CorrectMappings {
		expected[mapping.DropLocationID] = mapping.DragItemID
	}
	placed := make(map[string]string, len(answer.Mappings))
	for _, mapping := range answer.Mappings {
		placed[mapping.DropLocationID] = mapping.DragItemID
	}
	var correct, wrong int
	for _, location := range question.DropLocations {
		want, hasWant := expected[location.ID]
		got, hasGot := placed[location.ID]
		switch {
		case hasWant && hasGot && want == got:
			correct++
		case !hasWant && !hasGot:
			correct++
		default:
			wrong++
		}
	}
	return correct, wrong, len(question.DropLocations)
}

func countShortAnswer(question Question, answer SubmittedAnswer) (int, int, int) {
	solutions := make(map[string][]string, len(question.Spots))
	for _, solution := range question.Solutions {
		solutions[solution.SpotID] = append(solutions[solution.SpotID], normalizeText(solution.Text))
	}
	texts := make(map[string]string, len(answer.SpotTexts))
	for _, text := range answer.SpotTexts {
		texts[text.SpotID] = normalizeText(text.Text)
	}
	var correct, wrong int
	for _, spot := range question.Spots {
		text, ok := texts[spot.ID]
		if ok && text != "" && containsString(solutions[spot.ID], text) {
			correct++
		} else {
			wrong++
		}
	}
	return correct, wrong, len(question.Spots)
}

// EvaluateSubmission derives score and result string from the attached submission.
func (r *Result) EvaluateSubmission(quiz QuizExercise) {
	if r.Submission == nil {
		return
	}
	maxScore := quiz.MaxScore()
	points := r.Submission.ScoreInPoints
	if maxScore > 0 {
		r.Score = math.Round(100 * points / maxScore)
	} else {
		r.Score = 0
	}
	r.ResultString = fmt.Sprintf("%s of %s points", formatPoints(points), formatPoints(maxScore))
	r.Successful = r.Score == 100
}

func formatPoints(v float64) string {
	return strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%.2f", v), "0"), ".")
}

func normalizeText(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func containsString(items []string, target string) bool {
	for _, item := range items {
		if item == target {
			return true
		}
	}
	return false
}
