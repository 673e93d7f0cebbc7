package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/config"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/infra/memory"
	"live-quiz-service/internal/infra/postgres"
	infraredis "live-quiz-service/internal/infra/redis"
	"live-quiz-service/internal/observability"
	transport "live-quiz-service/internal/transport/http"
)

// quizStore is a quiz repository that can also back a quiz cache and store statistics.
type quizStore interface {
	app.QuizRepository
	app.StatisticsRepository
	LoadQuiz(ctx context.Context, quizID string) (domain.QuizExercise, error)
}

// participationStore persists everything a consolidated or submitted quiz produces.
type participationStore interface {
	app.ParticipationRepository
	app.SubmissionRepository
	app.ResultRepository
	app.UserRepository
	app.SubmissionVersionRepository
}

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := observability.NewLogger(os.Stdout, cfg.Log.Level)
	metrics := observability.NewCollector(logger)

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var (
		quizzes        quizStore = memory.NewQuizStore(sampleQuizzes(time.Now()))
		participations participationStore
	)
	if cfg.Postgres.URL != "" {
		db, err := openBunDB(cfg)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := runMigrations(ctx, db, logger); err != nil {
			return err
		}
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
		quizzes = postgres.NewQuizRepository(pool)
		participations = postgres.NewParticipationStore(db)
	} else {
		participations = memory.NewParticipationStore()
		logger.Warn("postgres not configured, using in-memory stores")
	}

	cacheTTL := config.Duration(cfg.Quiz.CacheTTL, 10*time.Minute)
	var (
		reader app.QuizReader
		caches app.SubmissionCacheFactory
	)
	if cfg.Redis.Addr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		reader = infraredis.NewQuizCache(redisClient, quizzes, cacheTTL)
		caches = infraredis.NewSubmissionCacheFactory(redisClient, logger)
	} else {
		reader = memory.NewQuizCache(quizzes, cacheTTL)
		caches = memory.NewSubmissionCacheFactory()
	}

	grace := config.Duration(cfg.Quiz.GracePeriod, app.DefaultGracePeriod)
	scheduler := app.NewTaskScheduler(logger)
	defer scheduler.Stop()

	var submissions *app.SubmissionService
	wsHandler := transport.NewWSHandler(transport.LiveSubmitterFunc(
		func(ctx context.Context, quizID string, submission domain.QuizSubmission, login string, submitted bool) (domain.QuizSubmission, error) {
			return submissions.SaveForLiveMode(ctx, quizID, submission, login, submitted)
		},
	), logger, metrics)

	schedules := app.NewScheduleService(app.Dependencies{
		Quizzes:        quizzes,
		QuizReader:     reader,
		Caches:         caches,
		Participations: participations,
		Submissions:    participations,
		Results:        participations,
		Users:          participations,
		Notifier:       wsHandler,
		Broadcaster:    wsHandler,
		Statistics:     app.NewStatisticsService(quizzes),
		Scheduler:      scheduler,
		Metrics:        metrics,
		Logger:         logger,
		GracePeriod:    grace,
	})
	defer schedules.Stop()

	submissions = app.NewSubmissionService(app.SubmissionServiceConfig{
		Live:           schedules,
		Participations: participations,
		Submissions:    participations,
		Results:        participations,
		Versions:       participations,
		Metrics:        metrics,
		Logger:         logger,
		GracePeriod:    grace,
	})

	if err := schedules.StartSchedule(ctx); err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", metrics.MetricsHandler)
	mux.HandleFunc("/ws", wsHandler.ServeWS)
	transport.NewAdminHandler(schedules).Register(mux)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      metrics.Middleware(mux),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting quiz service", "port", finalPort, "grace_period", grace.String())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// sampleQuizzes seeds the in-memory store when no database is configured: one quiz
// starting a minute after boot and running for five minutes.
func sampleQuizzes(now time.Time) map[string]domain.QuizExercise {
	release := now.Add(time.Minute).Truncate(time.Second)
	return map[string]domain.QuizExercise{
		"quiz-1": {
			ID:             "quiz-1",
			Title:          "Warm-up",
			ReleaseDate:    release,
			DueDate:        release.Add(5 * time.Minute),
			Duration:       5 * time.Minute,
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
						{ID: "o3", Text: "5", IsCorrect: false},
					},
				},
			},
		},
	}
}
