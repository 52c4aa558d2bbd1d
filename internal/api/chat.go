package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/sqlpilot/sqlpilot/internal/orchestrator"
	"github.com/sqlpilot/sqlpilot/internal/project"
)

// SQLGenerator is the generation surface the API depends on.
// The orchestrator satisfies it.
type SQLGenerator interface {
	Generate(ctx context.Context, projectID, chatID uuid.UUID, question string) (*orchestrator.Result, error)
	ProvideFeedback(ctx context.Context, chatID uuid.UUID, isCorrect, addToSamples bool) (*orchestrator.Result, error)
}

type chatHandler struct {
	projects  ProjectStore
	generator SQLGenerator
	logger    *slog.Logger
}

type chatResponse struct {
	ID              uuid.UUID              `json:"id"`
	ProjectID       uuid.UUID              `json:"project_id"`
	Title           string                 `json:"title,omitempty"`
	QueryHistory    []project.QueryAttempt `json:"query_history"`
	FeedbackEnabled *bool                  `json:"feedback_enabled"`
	CreatedAt       time.Time              `json:"created_at"`
	UpdatedAt       time.Time              `json:"updated_at"`
}

func toChatResponse(c *project.Chat) chatResponse {
	history := c.History
	if history == nil {
		history = []project.QueryAttempt{}
	}
	return chatResponse{
		ID:              c.ID,
		ProjectID:       c.ProjectID,
		Title:           c.Title,
		QueryHistory:    history,
		FeedbackEnabled: c.FeedbackEnabled,
		CreatedAt:       c.CreatedAt,
		UpdatedAt:       c.UpdatedAt,
	}
}

type createChatRequest struct {
	Title string `json:"title"`
}

func (h *chatHandler) create(w http.ResponseWriter, r *http.Request) {
	projectID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req createChatRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	c, err := h.projects.CreateChat(r.Context(), projectID, req.Title)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusCreated, toChatResponse(c))
}

func (h *chatHandler) list(w http.ResponseWriter, r *http.Request) {
	projectID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	chats, err := h.projects.ListChats(r.Context(), projectID)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}

	resp := make([]chatResponse, 0, len(chats))
	for _, c := range chats {
		resp = append(resp, toChatResponse(c))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"chats": resp,
		"total": len(resp),
	})
}

func (h *chatHandler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	c, err := h.projects.GetChat(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, toChatResponse(c))
}

func (h *chatHandler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	if err := h.projects.DeleteChat(r.Context(), id); err != nil {
		writeDomainError(w, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type patchChatRequest struct {
	FeedbackEnabled *bool `json:"feedback_enabled"`
}

// patch updates the feedback flag. No other chat field is client-writable.
func (h *chatHandler) patch(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req patchChatRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.FeedbackEnabled == nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "feedback_enabled is required")
		return
	}

	c, err := h.projects.SetFeedbackEnabled(r.Context(), id, *req.FeedbackEnabled)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, toChatResponse(c))
}

type generateRequest struct {
	ProjectID uuid.UUID `json:"project_id"`
	Question  string    `json:"question"`
}

type generateResponse struct {
	SQL  string       `json:"sql"`
	Chat chatResponse `json:"chat"`
}

func (h *chatHandler) generate(w http.ResponseWriter, r *http.Request) {
	chatID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req generateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ProjectID == uuid.Nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "project_id is required")
		return
	}

	result, err := h.generator.Generate(r.Context(), req.ProjectID, chatID, req.Question)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, generateResponse{
		SQL:  result.SQL,
		Chat: toChatResponse(result.Chat),
	})
}

type feedbackRequest struct {
	IsCorrect    *bool `json:"is_correct"`
	AddToSamples bool  `json:"add_to_samples"`
}

func (h *chatHandler) feedback(w http.ResponseWriter, r *http.Request) {
	chatID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req feedbackRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.IsCorrect == nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "is_correct is required")
		return
	}

	result, err := h.generator.ProvideFeedback(r.Context(), chatID, *req.IsCorrect, req.AddToSamples)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, generateResponse{
		SQL:  result.SQL,
		Chat: toChatResponse(result.Chat),
	})
}
