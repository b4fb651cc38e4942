package chat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/wolfman30/health-chat-api/pkg/logging"
)

const maxRequestBytes = 64 << 10

// Service is the part of the Orchestrator the HTTP layer needs.
type Service interface {
	Handle(ctx context.Context, req Request) (Result, error)
	History(ctx context.Context, id int64) ([]HistoryEntry, error)
}

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	Message        string `json:"message" validate:"required,max=4000"`
	ConversationID *int64 `json:"conversation_id" validate:"omitempty,gt=0"`
}

// Handler wires HTTP requests to the chat service.
type Handler struct {
	service  Service
	validate *validator.Validate
	logger   *logging.Logger
}

// NewHandler creates a chat handler.
func NewHandler(service Service, logger *logging.Logger) *Handler {
	if service == nil {
		panic("chat: service cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		service:  service,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
	}
}

// Chat handles POST /chat.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err := dec.Decode(&req); err != nil {
		h.logger.Warn("failed to decode chat request", "error", err)
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Message = strings.TrimSpace(req.Message)
	if err := h.validate.Struct(req); err != nil {
		h.writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	result, err := h.service.Handle(r.Context(), Request{
		Message:        req.Message,
		ConversationID: req.ConversationID,
		RequestID:      middleware.GetReqID(r.Context()),
	})
	switch {
	case errors.Is(err, ErrValidation):
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, ErrConversationNotFound):
		h.writeError(w, http.StatusNotFound, "conversation not found")
		return
	case err != nil:
		h.logger.Error("failed to process chat message", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to process message")
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

// History handles GET /conversations/{id}/history.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		h.writeError(w, http.StatusBadRequest, "invalid conversation id")
		return
	}

	entries, err := h.service.History(r.Context(), id)
	switch {
	case errors.Is(err, ErrConversationNotFound):
		h.writeError(w, http.StatusNotFound, "conversation not found")
		return
	case err != nil:
		h.logger.Error("failed to load conversation history", "conversation_id", id, "error", err)
		h.writeError(w, http.StatusServiceUnavailable, "history unavailable")
		return
	}

	h.writeJSON(w, http.StatusOK, entries)
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid request"
	}
	fe := verrs[0]
	field := strings.ToLower(fe.Field())
	if fe.Field() == "ConversationID" {
		field = "conversation_id"
	}
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "max":
		return field + " is too long"
	default:
		return field + " is invalid"
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, map[string]string{"error": msg})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to write JSON response", "error", err)
	}
}
