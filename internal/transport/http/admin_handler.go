package http

import (
	"context"
	"errors"
	"net/http"

	"live-quiz-service/internal/domain"
)

// QuizScheduler is the part of the schedule service exposed to the management layer.
type QuizScheduler interface {
	Reschedule(ctx context.Context, quizID string) error
	ClearQuizData(ctx context.Context, quizID string) error
}

// AdminHandler exposes internal hooks called after a quiz was edited or deleted.
type AdminHandler struct {
	scheduler QuizScheduler
}

func NewAdminHandler(scheduler QuizScheduler) *AdminHandler {
	return &AdminHandler{scheduler: scheduler}
}

// Register mounts the handler routes on mux.
func (h *AdminHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/internal/quizzes/schedule", h.schedule)
	mux.HandleFunc("/internal/quizzes", h.clear)
}

func (h *AdminHandler) schedule(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	quizID := r.URL.Query().Get("quizId")
	if quizID == "" {
		http.Error(w, "missing quizId", http.StatusBadRequest)
		return
	}
	if err := h.scheduler.Reschedule(r.Context(), quizID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) clear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	quizID := r.URL.Query().Get("quizId")
	if quizID == "" {
		http.Error(w, "missing quizId", http.StatusBadRequest)
		return
	}
	if err := h.scheduler.ClearQuizData(r.Context(), quizID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, domain.ErrQuizNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	http.Error(w, "internal error", http.StatusInternalServerError)
}
