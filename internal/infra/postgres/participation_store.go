package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"
	"github.com/uptrace/bun"

	"live-quiz-service/internal/domain"
)

type participationModel struct {
	bun.BaseModel `bun:"table:participations"`

	ID                  string    `bun:"id,pk"`
	ExerciseID          string    `bun:"exercise_id,notnull"`
	ParticipantLogin    string    `bun:"participant_login,notnull"`
	InitializationState string    `bun:"initialization_state,notnull"`
	InitializationDate  time.Time `bun:"initialization_date,nullzero"`
}

type submissionModel struct {
	bun.BaseModel `bun:"table:quiz_submissions"`

	ID              string                   `bun:"id,pk"`
	ParticipationID string                   `bun:"participation_id,notnull"`
	Submitted       bool                     `bun:"submitted,notnull"`
	Type            string                   `bun:"type,notnull"`
	SubmissionDate  time.Time                `bun:"submission_date,nullzero"`
	ScoreInPoints   float64                  `bun:"score_in_points,notnull"`
	Answers         []domain.SubmittedAnswer `bun:"answers,type:jsonb"`
}

type resultModel struct {
	bun.BaseModel `bun:"table:results"`

	ID              string    `bun:"id,pk"`
	ParticipationID string    `bun:"participation_id,notnull"`
	SubmissionID    string    `bun:"submission_id,notnull"`
	Score           float64   `bun:"score,notnull"`
	ResultString    string    `bun:"result_string,notnull"`
	Successful      bool      `bun:"successful,notnull"`
	Rated           bool      `bun:"rated,notnull"`
	AssessmentType  string    `bun:"assessment_type,notnull"`
	CompletionDate  time.Time `bun:"completion_date,nullzero"`
}

type userModel struct {
	bun.BaseModel `bun:"table:users"`

	Login string `bun:"login,pk"`
	Name  string `bun:"name,notnull"`
	Email string `bun:"email,notnull"`
}

type versionModel struct {
	bun.BaseModel `bun:"table:submission_versions"`

	ID           string    `bun:"id,pk"`
	SubmissionID string    `bun:"submission_id,notnull"`
	Author       string    `bun:"author,notnull"`
	Content      []byte    `bun:"content"`
	CreatedAt    time.Time `bun:"created_at,notnull"`
}

// ParticipationStore persists participations, submissions, results, users and submission
// versions through bun.
type ParticipationStore struct {
	db *bun.DB
}

func NewParticipationStore(db *bun.DB) *ParticipationStore {
	return &ParticipationStore{db: db}
}

func (s *ParticipationStore) SaveParticipation(ctx context.Context, p domain.Participation) (domain.Participation, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	model := participationModel{
		ID:                  p.ID,
		ExerciseID:          p.ExerciseID,
		ParticipantLogin:    p.ParticipantLogin,
		InitializationState: string(p.InitializationState),
		InitializationDate:  p.InitializationDate,
	}
	_, err := s.db.NewInsert().Model(&model).
		On("CONFLICT (id) DO UPDATE").
		Set("initialization_state = EXCLUDED.initialization_state").
		Set("initialization_date = EXCLUDED.initialization_date").
		Exec(ctx)
	if err != nil {
		return domain.Participation{}, pkgerrors.Wrapf(err, "save participation %s", p.ID)
	}
	return p, nil
}

// FindParticipation returns the participation of login in quizID with its results, each
// carrying its submission.
func (s *ParticipationStore) FindParticipation(ctx context.Context, quizID, login string) (domain.Participation, error) {
	var model participationModel
	err := s.db.NewSelect().Model(&model).
		Where("exercise_id = ?", quizID).
		Where("participant_login = ?", login).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Participation{}, domain.ErrParticipationNotFound
	}
	if err != nil {
		return domain.Participation{}, pkgerrors.Wrap(err, "find participation")
	}

	var results []resultModel
	if err := s.db.NewSelect().Model(&results).
		Where("participation_id = ?", model.ID).
		Order("completion_date ASC").
		Scan(ctx); err != nil {
		return domain.Participation{}, pkgerrors.Wrap(err, "find results")
	}

	submissions := make(map[string]domain.QuizSubmission)
	if ids := submissionIDs(results); len(ids) > 0 {
		var models []submissionModel
		if err := s.db.NewSelect().Model(&models).Where("id IN (?)", bun.In(ids)).Scan(ctx); err != nil {
			return domain.Participation{}, pkgerrors.Wrap(err, "find submissions")
		}
		for _, m := range models {
			submissions[m.ID] = m.toDomain()
		}
	}

	participation := model.toDomain()
	for _, r := range results {
		result := r.toDomain()
		if submission, ok := submissions[r.SubmissionID]; ok {
			result.Submission = &submission
		}
		participation.Results = append(participation.Results, &result)
	}
	return participation, nil
}

func (s *ParticipationStore) SaveSubmission(ctx context.Context, sub domain.QuizSubmission) (domain.QuizSubmission, error) {
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	model := submissionModel{
		ID:              sub.ID,
		ParticipationID: sub.ParticipationID,
		Submitted:       sub.Submitted,
		Type:            string(sub.Type),
		SubmissionDate:  sub.SubmissionDate,
		ScoreInPoints:   sub.ScoreInPoints,
		Answers:         storedAnswers(sub.SubmittedAnswers),
	}
	_, err := s.db.NewInsert().Model(&model).
		On("CONFLICT (id) DO UPDATE").
		Set("participation_id = EXCLUDED.participation_id").
		Set("submitted = EXCLUDED.submitted").
		Set("type = EXCLUDED.type").
		Set("submission_date = EXCLUDED.submission_date").
		Set("score_in_points = EXCLUDED.score_in_points").
		Set("answers = EXCLUDED.answers").
		Exec(ctx)
	if err != nil {
		return domain.QuizSubmission{}, pkgerrors.Wrapf(err, "save submission %s", sub.ID)
	}
	return sub, nil
}

func (s *ParticipationStore) SaveResult(ctx context.Context, r domain.Result) (domain.Result, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	model := resultModel{
		ID:              r.ID,
		ParticipationID: r.ParticipationID,
		SubmissionID:    r.SubmissionID,
		Score:           r.Score,
		ResultString:    r.ResultString,
		Successful:      r.Successful,
		Rated:           r.Rated,
		AssessmentType:  string(r.AssessmentType),
		CompletionDate:  r.CompletionDate,
	}
	if _, err := s.db.NewInsert().Model(&model).On("CONFLICT (id) DO NOTHING").Exec(ctx); err != nil {
		return domain.Result{}, pkgerrors.Wrapf(err, "save result %s", r.ID)
	}
	return r, nil
}

func (s *ParticipationStore) FindByLogin(ctx context.Context, login string) (domain.User, bool, error) {
	var model userModel
	err := s.db.NewSelect().Model(&model).Where("login = ?", login).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, false, nil
	}
	if err != nil {
		return domain.User{}, false, pkgerrors.Wrap(err, "find user")
	}
	return domain.User{Login: model.Login, Name: model.Name, Email: model.Email}, true, nil
}

// SaveUser inserts or updates a user.
func (s *ParticipationStore) SaveUser(ctx context.Context, u domain.User) error {
	model := userModel{Login: u.Login, Name: u.Name, Email: u.Email}
	_, err := s.db.NewInsert().Model(&model).
		On("CONFLICT (login) DO UPDATE").
		Set("name = EXCLUDED.name").
		Set("email = EXCLUDED.email").
		Exec(ctx)
	return pkgerrors.Wrap(err, "save user")
}

func (s *ParticipationStore) SaveVersion(ctx context.Context, v domain.SubmissionVersion) error {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	model := versionModel{
		ID:           v.ID,
		SubmissionID: v.SubmissionID,
		Author:       v.Author,
		Content:      v.Content,
		CreatedAt:    v.CreatedAt,
	}
	if _, err := s.db.NewInsert().Model(&model).Exec(ctx); err != nil {
		return pkgerrors.Wrap(err, "save submission version")
	}
	return nil
}

func (m participationModel) toDomain() domain.Participation {
	return domain.Participation{
		ID:                  m.ID,
		ExerciseID:          m.ExerciseID,
		ParticipantLogin:    m.ParticipantLogin,
		InitializationState: domain.InitializationState(m.InitializationState),
		InitializationDate:  m.InitializationDate,
	}
}

func (m submissionModel) toDomain() domain.QuizSubmission {
	answers := m.Answers
	if answers == nil {
		answers = []domain.SubmittedAnswer{}
	}
	return domain.QuizSubmission{
		ID:               m.ID,
		ParticipationID:  m.ParticipationID,
		Submitted:        m.Submitted,
		Type:             domain.SubmissionType(m.Type),
		SubmissionDate:   m.SubmissionDate,
		ScoreInPoints:    m.ScoreInPoints,
		SubmittedAnswers: answers,
	}
}

func (m resultModel) toDomain() domain.Result {
	return domain.Result{
		ID:              m.ID,
		ParticipationID: m.ParticipationID,
		SubmissionID:    m.SubmissionID,
		Score:           m.Score,
		ResultString:    m.ResultString,
		Successful:      m.Successful,
		Rated:           m.Rated,
		AssessmentType:  domain.AssessmentType(m.AssessmentType),
		CompletionDate:  m.CompletionDate,
	}
}

func submissionIDs(results []resultModel) []string {
	ids := make([]string, 0, len(results))
	for _, r := range results {
		if r.SubmissionID != "" {
			ids = append(ids, r.SubmissionID)
		}
	}
	return ids
}

// storedAnswers drops the attached question so rows do not duplicate quiz content.
func storedAnswers(answers []domain.SubmittedAnswer) []domain.SubmittedAnswer {
	out := make([]domain.SubmittedAnswer, len(answers))
	for i, answer := range answers {
		answer.Question = nil
		out[i] = answer
	}
	return out
}
