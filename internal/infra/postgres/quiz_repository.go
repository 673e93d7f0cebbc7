package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	pkgerrors "github.com/pkg/errors"

	"live-quiz-service/internal/domain"
)

const quizColumns = `id, title, course, release_date, due_date, duration_seconds, planned_to_start, open_for_practice`

// QuizRepository reads quizzes from Postgres. Questions and statistics are JSONB columns and
// are only decoded when the caller asks for them.
type QuizRepository struct {
	pool *pgxpool.Pool
}

func NewQuizRepository(pool *pgxpool.Pool) *QuizRepository {
	return &QuizRepository{pool: pool}
}

func (r *QuizRepository) FindByID(ctx context.Context, quizID string) (domain.QuizExercise, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+quizColumns+` FROM quizzes WHERE id=$1`, quizID)
	return scanQuiz(row)
}

func (r *QuizRepository) FindByIDWithQuestions(ctx context.Context, quizID string) (domain.QuizExercise, error) {
	var rawQuestions []byte
	row := r.pool.QueryRow(ctx, `SELECT `+quizColumns+`, questions FROM quizzes WHERE id=$1`, quizID)
	quiz, err := scanQuiz(row, &rawQuestions)
	if err != nil {
		return domain.QuizExercise{}, err
	}
	if err := decodeJSON(rawQuestions, &quiz.Questions); err != nil {
		return domain.QuizExercise{}, pkgerrors.Wrap(err, "unmarshal questions")
	}
	return quiz, nil
}

func (r *QuizRepository) FindByIDWithQuestionsAndStatistics(ctx context.Context, quizID string) (domain.QuizExercise, error) {
	var rawQuestions, rawStatistics []byte
	row := r.pool.QueryRow(ctx, `SELECT `+quizColumns+`, questions, statistics FROM quizzes WHERE id=$1`, quizID)
	quiz, err := scanQuiz(row, &rawQuestions, &rawStatistics)
	if err != nil {
		return domain.QuizExercise{}, err
	}
	if err := decodeJSON(rawQuestions, &quiz.Questions); err != nil {
		return domain.QuizExercise{}, pkgerrors.Wrap(err, "unmarshal questions")
	}
	if len(rawStatistics) > 0 {
		var stats domain.QuizStatistics
		if err := json.Unmarshal(rawStatistics, &stats); err != nil {
			return domain.QuizExercise{}, pkgerrors.Wrap(err, "unmarshal statistics")
		}
		quiz.Statistics = &stats
	}
	return quiz, nil
}

func (r *QuizRepository) FindAllPlannedNotEnded(ctx context.Context, now time.Time) ([]domain.QuizExercise, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+quizColumns+` FROM quizzes
		 WHERE planned_to_start AND due_date IS NOT NULL AND due_date > $1
		 ORDER BY id`,
		now,
	)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "query planned quizzes")
	}
	defer rows.Close()

	var quizzes []domain.QuizExercise
	for rows.Next() {
		quiz, err := scanQuiz(rows)
		if err != nil {
			return nil, err
		}
		quizzes = append(quizzes, quiz)
	}
	return quizzes, rows.Err()
}

// LoadQuiz lets the repository back a quiz cache.
func (r *QuizRepository) LoadQuiz(ctx context.Context, quizID string) (domain.QuizExercise, error) {
	return r.FindByIDWithQuestions(ctx, quizID)
}

func (r *QuizRepository) SaveStatistics(ctx context.Context, stats domain.QuizStatistics) error {
	raw, err := json.Marshal(stats)
	if err != nil {
		return pkgerrors.Wrap(err, "marshal statistics")
	}
	tag, err := r.pool.Exec(ctx, `UPDATE quizzes SET statistics=$2 WHERE id=$1`, stats.QuizID, raw)
	if err != nil {
		return pkgerrors.Wrap(err, "save statistics")
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrQuizNotFound
	}
	return nil
}

// SaveQuiz inserts or replaces a quiz including its questions.
func (r *QuizRepository) SaveQuiz(ctx context.Context, quiz domain.QuizExercise) error {
	questions, err := json.Marshal(quiz.Questions)
	if err != nil {
		return pkgerrors.Wrap(err, "marshal questions")
	}
	if quiz.Questions == nil {
		questions = []byte("[]")
	}
	var course []byte
	if quiz.Course != nil {
		if course, err = json.Marshal(quiz.Course); err != nil {
			return pkgerrors.Wrap(err, "marshal course")
		}
	}
	_, err = r.pool.Exec(ctx,
		`INSERT INTO quizzes (id, title, course, release_date, due_date, duration_seconds, planned_to_start, open_for_practice, questions)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (id) DO UPDATE SET
		   title=EXCLUDED.title, course=EXCLUDED.course, release_date=EXCLUDED.release_date,
		   due_date=EXCLUDED.due_date, duration_seconds=EXCLUDED.duration_seconds,
		   planned_to_start=EXCLUDED.planned_to_start, open_for_practice=EXCLUDED.open_for_practice,
		   questions=EXCLUDED.questions`,
		quiz.ID, quiz.Title, course, nullTime(quiz.ReleaseDate), nullTime(quiz.DueDate),
		int64(quiz.Duration/time.Second), quiz.PlannedToStart, quiz.OpenForPractice, questions,
	)
	if err != nil {
		return pkgerrors.Wrap(err, "save quiz")
	}
	return nil
}

func scanQuiz(row pgx.Row, extra ...interface{}) (domain.QuizExercise, error) {
	var (
		quiz      domain.QuizExercise
		course    []byte
		release   *time.Time
		due       *time.Time
		durationS int64
	)
	dest := append([]interface{}{
		&quiz.ID, &quiz.Title, &course, &release, &due, &durationS, &quiz.PlannedToStart, &quiz.OpenForPractice,
	}, extra...)
	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.QuizExercise{}, domain.ErrQuizNotFound
		}
		return domain.QuizExercise{}, pkgerrors.Wrap(err, "load quiz")
	}
	if release != nil {
		quiz.ReleaseDate = release.UTC()
	}
	if due != nil {
		quiz.DueDate = due.UTC()
	}
	quiz.Duration = time.Duration(durationS) * time.Second
	if len(course) > 0 {
		var c domain.Course
		if err := json.Unmarshal(course, &c); err != nil {
			return domain.QuizExercise{}, pkgerrors.Wrap(err, "unmarshal course")
		}
		quiz.Course = &c
	}
	return quiz, nil
}

func decodeJSON(raw []byte, v interface{}) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
