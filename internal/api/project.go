package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/sqlpilot/sqlpilot/internal/project"
	"github.com/sqlpilot/sqlpilot/internal/vectorstore"
)

// ProjectStore is the project persistence surface the API depends on.
// The project package's Store satisfies it.
type ProjectStore interface {
	CreateProject(ctx context.Context, name, description string) (*project.Project, error)
	GetProject(ctx context.Context, id uuid.UUID) (*project.Project, error)
	ListProjects(ctx context.Context) ([]*project.Project, error)
	UpdateProject(ctx context.Context, id uuid.UUID, name, description string) (*project.Project, error)
	ReplaceSampleQueries(ctx context.Context, id uuid.UUID, pairs []project.SamplePair) (*project.Project, error)
	DeleteProject(ctx context.Context, id uuid.UUID) error

	CreateChat(ctx context.Context, projectID uuid.UUID, title string) (*project.Chat, error)
	GetChat(ctx context.Context, id uuid.UUID) (*project.Chat, error)
	ListChats(ctx context.Context, projectID uuid.UUID) ([]*project.Chat, error)
	DeleteChat(ctx context.Context, id uuid.UUID) error
	SetFeedbackEnabled(ctx context.Context, chatID uuid.UUID, enabled bool) (*project.Chat, error)
}

type projectHandler struct {
	projects  ProjectStore
	knowledge vectorstore.Store
	logger    *slog.Logger
}

type samplePair struct {
	Text string `json:"text"`
	SQL  string `json:"sql"`
}

type projectResponse struct {
	ID            uuid.UUID    `json:"id"`
	Name          string       `json:"name"`
	Description   string       `json:"description,omitempty"`
	SampleQueries []samplePair `json:"sample_queries"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

func toProjectResponse(p *project.Project) projectResponse {
	samples := make([]samplePair, 0, len(p.SampleQueries))
	for _, s := range p.SampleQueries {
		samples = append(samples, samplePair{Text: s.Text, SQL: s.SQL})
	}
	return projectResponse{
		ID:            p.ID,
		Name:          p.Name,
		Description:   p.Description,
		SampleQueries: samples,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
}

// pathUUID parses the named path segment as a UUID.
// Returns uuid.Nil and writes a 400 response when the segment is malformed.
func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

type upsertProjectRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (h *projectHandler) create(w http.ResponseWriter, r *http.Request) {
	var req upsertProjectRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	p, err := h.projects.CreateProject(r.Context(), req.Name, req.Description)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusCreated, toProjectResponse(p))
}

func (h *projectHandler) list(w http.ResponseWriter, r *http.Request) {
	projects, err := h.projects.ListProjects(r.Context())
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}

	resp := make([]projectResponse, 0, len(projects))
	for _, p := range projects {
		resp = append(resp, toProjectResponse(p))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"projects": resp,
		"total":    len(resp),
	})
}

func (h *projectHandler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	p, err := h.projects.GetProject(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, toProjectResponse(p))
}

func (h *projectHandler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req upsertProjectRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	p, err := h.projects.UpdateProject(r.Context(), id, req.Name, req.Description)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, toProjectResponse(p))
}

// delete removes the project's knowledge records first, then the project row
// (chats go with it).
func (h *projectHandler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	if _, err := h.projects.GetProject(r.Context(), id); err != nil {
		writeDomainError(w, err, h.logger)
		return
	}
	if err := h.knowledge.DeleteProject(r.Context(), id); err != nil {
		writeDomainError(w, err, h.logger)
		return
	}
	if err := h.projects.DeleteProject(r.Context(), id); err != nil {
		writeDomainError(w, err, h.logger)
		return
	}
	h.logger.Info("project deleted", "project_id", id)
	w.WriteHeader(http.StatusNoContent)
}

type sampleQueriesRequest struct {
	SampleQueries []samplePair `json:"sample_queries"`
}

// replaceSampleQueries overwrites the project's curated sample set.
func (h *projectHandler) replaceSampleQueries(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req sampleQueriesRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	pairs := make([]project.SamplePair, 0, len(req.SampleQueries))
	for _, s := range req.SampleQueries {
		if s.Text == "" || s.SQL == "" {
			writeError(w, http.StatusBadRequest, "invalid_request", "sample queries need both text and sql")
			return
		}
		pairs = append(pairs, project.SamplePair{Text: s.Text, SQL: s.SQL})
	}

	p, err := h.projects.ReplaceSampleQueries(r.Context(), id, pairs)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, toProjectResponse(p))
}
