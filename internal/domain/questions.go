package domain

// QuestionKind tags which payload of a Question or SubmittedAnswer is populated.
type QuestionKind string

const (
	QuestionKindMultipleChoice QuestionKind = "multiple-choice"
	QuestionKindDragAndDrop    QuestionKind = "drag-and-drop"
	QuestionKindShortAnswer    QuestionKind = "short-answer"
)

// ScoringType selects how partially correct answers are scored.
type ScoringType string

const (
	ScoringAllOrNothing            ScoringType = "ALL_OR_NOTHING"
	ScoringProportionalWithPenalty ScoringType = "PROPORTIONAL_WITH_PENALTY"
)

// AnswerOption is one option of a multiple-choice question.
type AnswerOption struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	IsCorrect bool   `json:"isCorrect,omitempty"`
}

// DragItem is an item dragged onto a DropLocation.
type DragItem struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// DropLocation is a target area of a drag-and-drop question.
type DropLocation struct {
	ID string `json:"id"`
}

// DragMapping places a drag item on a drop location.
type DragMapping struct {
	DragItemID     string `json:"dragItemId"`
	DropLocationID string `json:"dropLocationId"`
}

// ShortAnswerSpot is a blank of a short-answer question.
type ShortAnswerSpot struct {
	ID string `json:"id"`
}

// ShortAnswerSolution is an accepted text for a spot.
type ShortAnswerSolution struct {
	SpotID string `json:"spotId"`
	Text   string `json:"text"`
}

// SpotText is a participant's text for a spot.
type SpotText struct {
	SpotID string `json:"spotId"`
	Text   string `json:"text"`
}

// Question is a tagged variant keyed by Kind. Only the fields of that kind are meaningful.
type Question struct {
	ID          string       `json:"id"`
	Kind        QuestionKind `json:"kind"`
	Title       string       `json:"title,omitempty"`
	Text        string       `json:"text,omitempty"`
	Points      float64      `json:"points,omitempty"`
	ScoringType ScoringType  `json:"scoringType,omitempty"`

	// multiple-choice
	Options []AnswerOption `json:"options,omitempty"`

	// drag-and-drop
	DragItems       []DragItem     `json:"dragItems,omitempty"`
	DropLocations   []DropLocation `json:"dropLocations,omitempty"`
	CorrectMappings []DragMapping  `json:"correctMappings,omitempty"`

	// short-answer
	Spots     []ShortAnswerSpot     `json:"spots,omitempty"`
	Solutions []ShortAnswerSolution `json:"solutions,omitempty"`
}

// CopyID returns a question reduced to its identity.
func (q Question) CopyID() *Question {
	return &Question{ID: q.ID, Kind: q.Kind}
}

func (q Question) withoutSolution() Question {
	out := q
	switch q.Kind {
	case QuestionKindMultipleChoice:
		out.Options = make([]AnswerOption, len(q.Options))
		for i, option := range q.Options {
			out.Options[i] = AnswerOption{ID: option.ID, Text: option.Text}
		}
	case QuestionKindDragAndDrop:
		out.CorrectMappings = nil
	case QuestionKindShortAnswer:
		out.Solutions = nil
	}
	return out
}

// SubmittedAnswer is a participant's answer to one question, tagged by Kind like Question.
type SubmittedAnswer struct {
	QuestionID    string       `json:"questionId"`
	Kind          QuestionKind `json:"kind"`
	SubmissionID  string       `json:"submissionId,omitempty"`
	ScoreInPoints float64      `json:"scoreInPoints"`
	Question      *Question    `json:"question,omitempty"`

	SelectedOptions []string      `json:"selectedOptions,omitempty"`
	Mappings        []DragMapping `json:"mappings,omitempty"`
	SpotTexts       []SpotText    `json:"spotTexts,omitempty"`
}
