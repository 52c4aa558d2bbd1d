// Package api exposes the assistant over a JSON HTTP surface: project and
// chat CRUD, knowledge ingestion, and the generate/feedback loop.
package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sqlpilot/sqlpilot/internal/vectorstore"
)

// ServerConfig contains the dependencies for the API server.
type ServerConfig struct {
	Logger     *slog.Logger
	Projects   ProjectStore      // Required
	Knowledge  vectorstore.Store // Required
	Generator  SQLGenerator      // Required
	Pool       *pgxpool.Pool     // Optional: nil skips the DB ping in /ready
	RateBurst  int               // Rate limiter burst size per IP (0 = default 60)
	TrustProxy bool              // Trust X-Real-IP/X-Forwarded-For headers
}

// Server is the JSON API HTTP server.
type Server struct {
	mux *http.ServeMux
}

// NewServer creates a server with all routes configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Projects == nil {
		return nil, errors.New("project store is required")
	}
	if cfg.Knowledge == nil {
		return nil, errors.New("knowledge store is required")
	}
	if cfg.Generator == nil {
		return nil, errors.New("generator is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ph := &projectHandler{projects: cfg.Projects, knowledge: cfg.Knowledge, logger: logger}
	kh := &knowledgeHandler{store: cfg.Knowledge, logger: logger}
	ch := &chatHandler{projects: cfg.Projects, generator: cfg.Generator, logger: logger}

	mux := http.NewServeMux()

	// Projects
	mux.HandleFunc("POST /api/projects", ph.create)
	mux.HandleFunc("GET /api/projects", ph.list)
	mux.HandleFunc("GET /api/projects/{id}", ph.get)
	mux.HandleFunc("PUT /api/projects/{id}", ph.update)
	mux.HandleFunc("DELETE /api/projects/{id}", ph.delete)
	mux.HandleFunc("PUT /api/projects/{id}/sample-queries", ph.replaceSampleQueries)

	// Knowledge ingestion and listing
	mux.HandleFunc("POST /api/projects/{id}/ddl", kh.addDDL)
	mux.HandleFunc("POST /api/projects/{id}/documentation", kh.addDocumentation)
	mux.HandleFunc("POST /api/projects/{id}/question-sql", kh.addQuestionSQL)
	mux.HandleFunc("GET /api/projects/{id}/ddl", kh.listCategory(vectorstore.CategoryDDL))
	mux.HandleFunc("GET /api/projects/{id}/documentation", kh.listCategory(vectorstore.CategoryDocumentation))
	mux.HandleFunc("GET /api/projects/{id}/question-sql", kh.listCategory(vectorstore.CategorySQL))
	mux.HandleFunc("DELETE /api/knowledge/{recordID}", kh.remove)

	// Chats and the generation loop
	mux.HandleFunc("POST /api/projects/{id}/chats", ch.create)
	mux.HandleFunc("GET /api/projects/{id}/chats", ch.list)
	mux.HandleFunc("GET /api/chats/{id}", ch.get)
	mux.HandleFunc("DELETE /api/chats/{id}", ch.delete)
	mux.HandleFunc("PATCH /api/chats/{id}", ch.patch)
	mux.HandleFunc("POST /api/chats/{id}/generate", ch.generate)
	mux.HandleFunc("POST /api/chats/{id}/feedback", ch.feedback)

	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 60
	}
	rl := newRateLimiter(1.0, burst)

	// Middleware stack, outermost first:
	//   Recovery → RequestID → Logging → RateLimit → Routes
	// RequestID before Logging so request_id appears in log attributes.
	var handler http.Handler = mux
	handler = rateLimitMiddleware(rl, cfg.TrustProxy, logger)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = requestIDMiddleware()(handler)
	handler = recoveryMiddleware(logger)(handler)

	// Health probes bypass the middleware stack.
	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /health", health)
	topMux.Handle("GET /ready", readiness(cfg.Pool))
	topMux.Handle("/", handler)

	return &Server{mux: topMux}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}
