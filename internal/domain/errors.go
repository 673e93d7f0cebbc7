package domain

import (
	"errors"
	"strings"
)

var (
	// ErrQuizNotFound indicates the quiz could not be loaded (deleted or never existed).
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrQuizInactive is returned when a live submission arrives outside the submission window.
	ErrQuizInactive = errors.New("the quiz is not active")
	// ErrAlreadySubmitted is returned when a participant submits a quiz a second time.
	ErrAlreadySubmitted = errors.New("you have already submitted the quiz")
	// ErrParticipationNotFound is returned when an exam submission has no backing participation.
	ErrParticipationNotFound = errors.New("participation not found")
	// ErrPracticeNotAllowed is returned when a quiz is not (yet) open for practice.
	ErrPracticeNotAllowed = errors.New("quiz is not open for practice")
	// ErrUserNotFound indicates an unknown login.
	ErrUserNotFound = errors.New("user not found")
	// ErrInvalidSubmission indicates a submission without participant or payload.
	ErrInvalidSubmission = errors.New("invalid submission")
)

// CorruptSubmissionsError lists participants whose cached submission could not be decoded.
// Caches return it next to the entries they could decode.
type CorruptSubmissionsError struct {
	Logins []string
}

func (e *CorruptSubmissionsError) Error() string {
	return "undecodable cached submissions: " + strings.Join(e.Logins, ", ")
}
