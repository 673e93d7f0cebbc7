package domain

import "time"

// SubmissionType records how a submission became final.
type SubmissionType string

const (
	SubmissionTypeManual  SubmissionType = "MANUAL"
	SubmissionTypeTimeout SubmissionType = "TIMEOUT"
)

// AssessmentType records who assessed a result.
type AssessmentType string

const AssessmentTypeAutomatic AssessmentType = "AUTOMATIC"

// InitializationState tracks a participation's progress.
type InitializationState string

const (
	InitializationStateInitialized InitializationState = "INITIALIZED"
	InitializationStateFinished    InitializationState = "FINISHED"
)

// User is a platform account; Login is the participant identity used everywhere in the quiz core.
type User struct {
	Login string `json:"login"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

// Course is the owning course of an exercise. It is stripped before results are pushed to students.
type Course struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// QuizExercise is one scheduled quiz run.
type QuizExercise struct {
	ID              string          `json:"id"`
	Title           string          `json:"title"`
	Course          *Course         `json:"course,omitempty"`
	ReleaseDate     time.Time       `json:"releaseDate"`
	DueDate         time.Time       `json:"dueDate"`
	Duration        time.Duration   `json:"duration"`
	PlannedToStart  bool            `json:"plannedToStart"`
	OpenForPractice bool            `json:"openForPractice"`
	Questions       []Question      `json:"questions,omitempty"`
	Statistics      *QuizStatistics `json:"statistics,omitempty"`
}

// IsPlannedToStart reports whether an instructor armed the quiz with a release date.
func (q QuizExercise) IsPlannedToStart() bool {
	return q.PlannedToStart && !q.ReleaseDate.IsZero()
}

// IsStarted reports whether the release date has been reached.
func (q QuizExercise) IsStarted(now time.Time) bool {
	return q.IsPlannedToStart() && !q.ReleaseDate.After(now)
}

// IsSubmissionAllowed reports whether live submissions are still accepted, grace period included.
func (q QuizExercise) IsSubmissionAllowed(now time.Time, grace time.Duration) bool {
	if !q.IsStarted(now) {
		return false
	}
	if q.DueDate.IsZero() {
		return true
	}
	return now.Before(q.DueDate.Add(grace))
}

// IsEnded reports whether the due date has passed.
func (q QuizExercise) IsEnded(now time.Time) bool {
	return q.IsStarted(now) && !q.DueDate.IsZero() && !q.DueDate.After(now)
}

// MaxScore sums the points of all questions.
func (q QuizExercise) MaxScore() float64 {
	total := 0.0
	for _, question := range q.Questions {
		total += question.Points
	}
	return total
}

// Question looks up a question by ID.
func (q QuizExercise) Question(id string) (Question, bool) {
	for _, question := range q.Questions {
		if question.ID == id {
			return question, true
		}
	}
	return Question{}, false
}

// FilterForStudents returns a copy without the answer key, safe to broadcast while the quiz runs.
func (q QuizExercise) FilterForStudents() QuizExercise {
	filtered := q
	filtered.Statistics = nil
	filtered.Questions = make([]Question, len(q.Questions))
	for i, question := range q.Questions {
		filtered.Questions[i] = question.withoutSolution()
	}
	return filtered
}

// QuizSubmission is both the cached working copy of a participant's answers and the persisted submission.
type QuizSubmission struct {
	ID               string            `json:"id,omitempty"`
	ParticipationID  string            `json:"participationId,omitempty"`
	Submitted        bool              `json:"submitted"`
	Type             SubmissionType    `json:"type,omitempty"`
	SubmissionDate   time.Time         `json:"submissionDate"`
	ScoreInPoints    float64           `json:"scoreInPoints"`
	SubmittedAnswers []SubmittedAnswer `json:"submittedAnswers"`
	Results          []Result          `json:"results,omitempty"`
}

// Participation binds a participant to a quiz.
type Participation struct {
	ID                  string              `json:"id"`
	ExerciseID          string              `json:"exerciseId"`
	Exercise            *QuizExercise       `json:"exercise,omitempty"`
	ParticipantLogin    string              `json:"participantLogin,omitempty"`
	Participant         *User               `json:"participant,omitempty"`
	InitializationState InitializationState `json:"initializationState"`
	InitializationDate  time.Time           `json:"initializationDate"`
	Submissions         []*QuizSubmission   `json:"submissions,omitempty"`
	Results             []*Result           `json:"results,omitempty"`
}

// Result is the graded outcome of a submission.
type Result struct {
	ID              string          `json:"id"`
	ParticipationID string          `json:"participationId"`
	SubmissionID    string          `json:"submissionId"`
	Submission      *QuizSubmission `json:"submission,omitempty"`
	Score           float64         `json:"score"`
	ResultString    string          `json:"resultString"`
	Successful      bool            `json:"successful"`
	Rated           bool            `json:"rated"`
	AssessmentType  AssessmentType  `json:"assessmentType"`
	CompletionDate  time.Time       `json:"completionDate"`
}

// SubmissionVersion is one entry of the exam-mode submission history.
type SubmissionVersion struct {
	ID           string    `json:"id"`
	SubmissionID string    `json:"submissionId"`
	Author       string    `json:"author"`
	Content      []byte    `json:"content"`
	CreatedAt    time.Time `json:"createdAt"`
}

// PointCounter counts participants per achieved score.
type PointCounter struct {
	Points         float64 `json:"points"`
	RatedCounter   int     `json:"ratedCounter"`
	UnratedCounter int     `json:"unratedCounter"`
}

// QuestionCounter counts fully correct answers per question.
type QuestionCounter struct {
	QuestionID     string `json:"questionId"`
	RatedCorrect   int    `json:"ratedCorrect"`
	UnratedCorrect int    `json:"unratedCorrect"`
}

// QuizStatistics aggregates graded results of a quiz.
type QuizStatistics struct {
	QuizID              string            `json:"quizId"`
	ParticipantsRated   int               `json:"participantsRated"`
	ParticipantsUnrated int               `json:"participantsUnrated"`
	PointCounters       []PointCounter    `json:"pointCounters"`
	QuestionCounters    []QuestionCounter `json:"questionCounters"`
	UpdatedAt           time.Time         `json:"updatedAt"`
}
