package project

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const projectCols = `id, name, description, sample_queries, created_at, updated_at`

const chatCols = `id, project_id, title, query_history, feedback_enabled, created_at, updated_at`

// Store persists projects and chats in PostgreSQL.
//
// Chat mutations go through enumerated methods (AppendAttempt,
// MarkLastJudgement, SetFeedbackEnabled) that read the row FOR UPDATE
// inside a transaction, so concurrent writers cannot lose history entries.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewStore creates a project Store.
func NewStore(pool *pgxpool.Pool, logger *slog.Logger) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, logger: logger}, nil
}

// CreateProject inserts a new project.
func (s *Store) CreateProject(ctx context.Context, name, description string) (*Project, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: project name", ErrEmptyName)
	}

	row := s.pool.QueryRow(ctx,
		`INSERT INTO projects (name, description)
		 VALUES ($1, $2)
		 RETURNING `+projectCols,
		name, description,
	)
	return scanProject(row)
}

// GetProject returns a project by id. Returns ErrProjectNotFound if absent.
func (s *Store) GetProject(ctx context.Context, id uuid.UUID) (*Project, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+projectCols+` FROM projects WHERE id = $1`, id)
	p, err := scanProject(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrProjectNotFound, id)
	}
	return p, err
}

// ListProjects returns all projects, newest first.
func (s *Store) ListProjects(ctx context.Context) ([]*Project, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+projectCols+` FROM projects ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("listing projects: %w", err)
	}
	defer rows.Close()

	projects := []*Project{}
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating projects: %w", err)
	}
	return projects, nil
}

// UpdateProject changes a project's name and description.
func (s *Store) UpdateProject(ctx context.Context, id uuid.UUID, name, description string) (*Project, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: project name", ErrEmptyName)
	}

	row := s.pool.QueryRow(ctx,
		`UPDATE projects
		 SET name = $2, description = $3, updated_at = now()
		 WHERE id = $1
		 RETURNING `+projectCols,
		id, name, description,
	)
	p, err := scanProject(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrProjectNotFound, id)
	}
	return p, err
}

// ReplaceSampleQueries overwrites a project's curated sample pairs.
func (s *Store) ReplaceSampleQueries(ctx context.Context, id uuid.UUID, pairs []SamplePair) (*Project, error) {
	if pairs == nil {
		pairs = []SamplePair{}
	}
	data, err := json.Marshal(pairs)
	if err != nil {
		return nil, fmt.Errorf("marshaling sample queries: %w", err)
	}

	row := s.pool.QueryRow(ctx,
		`UPDATE projects
		 SET sample_queries = $2, updated_at = now()
		 WHERE id = $1
		 RETURNING `+projectCols,
		id, data,
	)
	p, err := scanProject(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrProjectNotFound, id)
	}
	return p, err
}

// AddSampleQuery appends one curated pair, skipping exact duplicates.
// The project row is read FOR UPDATE so concurrent appends cannot clobber
// each other.
func (s *Store) AddSampleQuery(ctx context.Context, id uuid.UUID, pair SamplePair) (*Project, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			s.logger.Debug("transaction rollback", "error", rbErr)
		}
	}()

	row := tx.QueryRow(ctx,
		`SELECT `+projectCols+` FROM projects WHERE id = $1 FOR UPDATE`, id)
	p, err := scanProject(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrProjectNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	for _, existing := range p.SampleQueries {
		if existing == pair {
			return p, tx.Commit(ctx)
		}
	}
	p.SampleQueries = append(p.SampleQueries, pair)

	data, err := json.Marshal(p.SampleQueries)
	if err != nil {
		return nil, fmt.Errorf("marshaling sample queries: %w", err)
	}
	if err := tx.QueryRow(ctx,
		`UPDATE projects SET sample_queries = $2, updated_at = now()
		 WHERE id = $1
		 RETURNING updated_at`,
		id, data,
	).Scan(&p.UpdatedAt); err != nil {
		return nil, fmt.Errorf("updating sample queries: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing sample query append: %w", err)
	}
	return p, nil
}

// DeleteProject removes a project. Chats cascade at the schema level;
// knowledge records are the vector store's responsibility.
func (s *Store) DeleteProject(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM projects WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting project %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrProjectNotFound, id)
	}
	return nil
}

// ProjectExists reports whether a project exists.
// Satisfies vectorstore.ProjectChecker.
func (s *Store) ProjectExists(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM projects WHERE id = $1)`, id,
	).Scan(&exists); err != nil {
		return false, fmt.Errorf("checking project %s: %w", id, err)
	}
	return exists, nil
}

// CreateChat inserts a new chat under a project.
func (s *Store) CreateChat(ctx context.Context, projectID uuid.UUID, title string) (*Chat, error) {
	exists, err := s.ProjectExists(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrProjectNotFound, projectID)
	}

	row := s.pool.QueryRow(ctx,
		`INSERT INTO chats (project_id, title)
		 VALUES ($1, $2)
		 RETURNING `+chatCols,
		projectID, title,
	)
	return scanChat(row)
}

// GetChat returns a chat by id. Returns ErrChatNotFound if absent.
func (s *Store) GetChat(ctx context.Context, id uuid.UUID) (*Chat, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+chatCols+` FROM chats WHERE id = $1`, id)
	c, err := scanChat(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrChatNotFound, id)
	}
	return c, err
}

// ListChats returns a project's chats, newest first.
func (s *Store) ListChats(ctx context.Context, projectID uuid.UUID) ([]*Chat, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+chatCols+` FROM chats
		 WHERE project_id = $1
		 ORDER BY created_at DESC, id`,
		projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing chats: %w", err)
	}
	defer rows.Close()

	chats := []*Chat{}
	for rows.Next() {
		c, err := scanChat(rows)
		if err != nil {
			return nil, err
		}
		chats = append(chats, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chats: %w", err)
	}
	return chats, nil
}

// DeleteChat removes a chat. Returns ErrChatNotFound if absent.
func (s *Store) DeleteChat(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM chats WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting chat %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrChatNotFound, id)
	}
	return nil
}

// AppendAttempt appends an attempt to a chat's history.
func (s *Store) AppendAttempt(ctx context.Context, chatID uuid.UUID, attempt QueryAttempt) (*Chat, error) {
	if attempt.Timestamp.IsZero() {
		attempt.Timestamp = time.Now().UTC()
	}
	return s.mutateChat(ctx, chatID, func(c *Chat) error {
		c.History = append(c.History, attempt)
		return nil
	})
}

// MarkLastJudgement records the user's verdict on a chat's most recent
// attempt. Returns ErrNoAttempts on an empty history.
func (s *Store) MarkLastJudgement(ctx context.Context, chatID uuid.UUID, isCorrect bool) (*Chat, error) {
	return s.mutateChat(ctx, chatID, func(c *Chat) error {
		last := c.LastAttempt()
		if last == nil {
			return fmt.Errorf("%w: %s", ErrNoAttempts, chatID)
		}
		v := isCorrect
		last.IsCorrect = &v
		return nil
	})
}

// SetFeedbackEnabled sets the chat's feedback flag.
func (s *Store) SetFeedbackEnabled(ctx context.Context, chatID uuid.UUID, enabled bool) (*Chat, error) {
	return s.mutateChat(ctx, chatID, func(c *Chat) error {
		v := enabled
		c.FeedbackEnabled = &v
		return nil
	})
}

// mutateChat applies fn to a chat under SELECT ... FOR UPDATE and writes
// the result back, returning the updated chat.
func (s *Store) mutateChat(ctx context.Context, chatID uuid.UUID, fn func(*Chat) error) (*Chat, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			s.logger.Debug("transaction rollback", "error", rbErr)
		}
	}()

	row := tx.QueryRow(ctx,
		`SELECT `+chatCols+` FROM chats WHERE id = $1 FOR UPDATE`, chatID)
	chat, err := scanChat(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrChatNotFound, chatID)
	}
	if err != nil {
		return nil, err
	}

	if err := fn(chat); err != nil {
		return nil, err
	}

	history, err := json.Marshal(chat.History)
	if err != nil {
		return nil, fmt.Errorf("marshaling query history: %w", err)
	}

	if err := tx.QueryRow(ctx,
		`UPDATE chats
		 SET query_history = $2, feedback_enabled = $3, updated_at = now()
		 WHERE id = $1
		 RETURNING updated_at`,
		chatID, history, chat.FeedbackEnabled,
	).Scan(&chat.UpdatedAt); err != nil {
		return nil, fmt.Errorf("updating chat %s: %w", chatID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing chat update: %w", err)
	}
	return chat, nil
}

// scanProject reads a Project from a row with the standard column set.
func scanProject(row pgx.Row) (*Project, error) {
	p := &Project{}
	var samples []byte
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &samples, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning project: %w", err)
	}
	if err := json.Unmarshal(samples, &p.SampleQueries); err != nil {
		return nil, fmt.Errorf("unmarshaling sample queries: %w", err)
	}
	if p.SampleQueries == nil {
		p.SampleQueries = []SamplePair{}
	}
	return p, nil
}

// scanChat reads a Chat from a row with the standard column set.
func scanChat(row pgx.Row) (*Chat, error) {
	c := &Chat{}
	var history []byte
	if err := row.Scan(&c.ID, &c.ProjectID, &c.Title, &history, &c.FeedbackEnabled, &c.CreatedAt, &c.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning chat: %w", err)
	}
	if err := json.Unmarshal(history, &c.History); err != nil {
		return nil, fmt.Errorf("unmarshaling query history: %w", err)
	}
	if c.History == nil {
		c.History = []QueryAttempt{}
	}
	return c, nil
}
