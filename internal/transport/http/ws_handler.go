package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/observability"
)

// LiveSubmitter accepts live-mode saves and submits.
type LiveSubmitter interface {
	SaveForLiveMode(ctx context.Context, quizID string, submission domain.QuizSubmission, login string, submitted bool) (domain.QuizSubmission, error)
}

// LiveSubmitterFunc adapts a function to LiveSubmitter.
type LiveSubmitterFunc func(ctx context.Context, quizID string, submission domain.QuizSubmission, login string, submitted bool) (domain.QuizSubmission, error)

func (f LiveSubmitterFunc) SaveForLiveMode(ctx context.Context, quizID string, submission domain.QuizSubmission, login string, submitted bool) (domain.QuizSubmission, error) {
	return f(ctx, quizID, submission, login, submitted)
}

var errClientBacklog = errors.New("client send buffer full")

// WSHandler serves the live quiz websocket. It also pushes server events to connected
// clients and implements app.Notifier and app.QuizBroadcaster.
type WSHandler struct {
	submitter LiveSubmitter
	upgrader  websocket.Upgrader
	logger    *slog.Logger
	metrics   *observability.Collector

	mu      sync.RWMutex
	clients map[string]map[*client]struct{}
}

type client struct {
	quizID string
	login  string
	send   chan outboundMessage
}

func NewWSHandler(submitter LiveSubmitter, logger *slog.Logger, metrics *observability.Collector) *WSHandler {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &WSHandler{
		submitter: submitter,
		logger:    logger,
		metrics:   metrics,
		clients:   make(map[string]map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type outboundMessage struct {
	Type    string `json:"type"`
	Topic   string `json:"topic,omitempty"`
	Payload any    `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS upgrades HTTP requests to websockets and wires them into the live submission use case.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	quizID := r.URL.Query().Get("quizId")
	login := r.URL.Query().Get("userId")
	if quizID == "" || login == "" {
		http.Error(w, "missing quizId or userId", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	c := &client{quizID: quizID, login: login, send: make(chan outboundMessage, 16)}
	h.register(c)
	defer h.unregister(c)

	writerDone := make(chan struct{})
	closeSignals := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case msg := <-c.send:
				if err := conn.WriteJSON(msg); err != nil {
					h.logger.Warn("ws write error", "quiz_id", quizID, "participant", login, "error", err)
					_ = conn.Close()
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	reply := func(msg outboundMessage) {
		select {
		case c.send <- msg:
		case <-writerDone:
		}
	}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "save", "submit":
			var submission domain.QuizSubmission
			if err := json.Unmarshal(inbound.Payload, &submission); err != nil {
				reply(outboundMessage{Type: "error", Payload: errorPayload{Message: "invalid submission payload"}})
				continue
			}
			saved, err := h.submitter.SaveForLiveMode(r.Context(), quizID, submission, login, inbound.Type == "submit")
			if err != nil {
				reply(outboundMessage{Type: "error", Payload: errorPayload{Message: err.Error()}})
				continue
			}
			reply(outboundMessage{Type: "submission", Payload: saved})
		default:
			reply(outboundMessage{Type: "error", Payload: errorPayload{Message: "unsupported message type"}})
		}
	}

	close(closeSignals)
	<-writerDone
}

// SendToUser pushes payload to every connection of login. A user without connections is not an error.
func (h *WSHandler) SendToUser(_ context.Context, login, topic string, payload any) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var err error
	for _, clients := range h.clients {
		for c := range clients {
			if c.login != login {
				continue
			}
			if !h.offer(c, outboundMessage{Type: "participation", Topic: topic, Payload: payload}) {
				err = errClientBacklog
			}
		}
	}
	return err
}

// SendQuizToSubscribers pushes a started quiz to every client connected to it.
func (h *WSHandler) SendQuizToSubscribers(_ context.Context, quiz domain.QuizExercise) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var err error
	for c := range h.clients[quiz.ID] {
		if !h.offer(c, outboundMessage{Type: "quiz", Payload: quiz}) {
			err = errClientBacklog
		}
	}
	return err
}

// ConnectedClients counts open connections for a quiz.
func (h *WSHandler) ConnectedClients(quizID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[quizID])
}

func (h *WSHandler) offer(c *client, msg outboundMessage) bool {
	select {
	case c.send <- msg:
		return true
	default:
		h.metrics.Inc(observability.MetricWSMessagesDropped, "type", msg.Type)
		h.logger.Warn("dropping ws message", "quiz_id", c.quizID, "participant", c.login, "type", msg.Type)
		return false
	}
}

func (h *WSHandler) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[c.quizID] == nil {
		h.clients[c.quizID] = make(map[*client]struct{})
	}
	h.clients[c.quizID][c] = struct{}{}
}

func (h *WSHandler) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients[c.quizID], c)
	if len(h.clients[c.quizID]) == 0 {
		delete(h.clients, c.quizID)
	}
}
