package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/sqlpilot/sqlpilot/internal/vectorstore"
)

type knowledgeHandler struct {
	store  vectorstore.Store
	logger *slog.Logger
}

type recordResponse struct {
	ID        string            `json:"id"`
	ProjectID uuid.UUID         `json:"project_id"`
	Category  string            `json:"category"`
	Question  string            `json:"question,omitempty"`
	Content   string            `json:"content"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

func toRecordResponse(rec vectorstore.Record) recordResponse {
	return recordResponse{
		ID:        rec.ID,
		ProjectID: rec.ProjectID,
		Category:  string(rec.Category),
		Question:  rec.Question,
		Content:   rec.Content,
		Metadata:  rec.Metadata,
		CreatedAt: rec.CreatedAt,
	}
}

type addDDLRequest struct {
	DDL string `json:"ddl"`
}

func (h *knowledgeHandler) addDDL(w http.ResponseWriter, r *http.Request) {
	projectID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req addDDLRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	id, err := h.store.AddDDL(r.Context(), projectID, req.DDL)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}
	h.logger.Info("ddl added", "project_id", projectID, "record_id", id)
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

type addDocumentationRequest struct {
	Documentation string `json:"documentation"`
}

func (h *knowledgeHandler) addDocumentation(w http.ResponseWriter, r *http.Request) {
	projectID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req addDocumentationRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	id, err := h.store.AddDocumentation(r.Context(), projectID, req.Documentation)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}
	h.logger.Info("documentation added", "project_id", projectID, "record_id", id)
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

type addQuestionSQLRequest struct {
	Question string `json:"question"`
	SQL      string `json:"sql"`
}

func (h *knowledgeHandler) addQuestionSQL(w http.ResponseWriter, r *http.Request) {
	projectID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req addQuestionSQLRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	id, err := h.store.AddQuestionSQL(r.Context(), projectID, req.Question, req.SQL)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}
	h.logger.Info("question/sql pair added", "project_id", projectID, "record_id", id)
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

// listCategory returns a handler listing a project's records in one category.
func (h *knowledgeHandler) listCategory(category vectorstore.Category) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projectID, ok := pathUUID(w, r, "id")
		if !ok {
			return
		}

		records, err := h.store.ListByProject(r.Context(), projectID, category)
		if err != nil {
			writeDomainError(w, err, h.logger)
			return
		}

		resp := make([]recordResponse, 0, len(records))
		for _, rec := range records {
			resp = append(resp, toRecordResponse(rec))
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"records": resp,
			"total":   len(resp),
		})
	}
}

func (h *knowledgeHandler) remove(w http.ResponseWriter, r *http.Request) {
	recordID := r.PathValue("recordID")
	if recordID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "record id is required")
		return
	}

	if err := h.store.Remove(r.Context(), recordID); err != nil {
		writeDomainError(w, err, h.logger)
		return
	}
	h.logger.Info("knowledge record removed", "record_id", recordID)
	w.WriteHeader(http.StatusNoContent)
}
