// Package orchestrator drives the SQL generation loop: retrieve context,
// prompt the model, record the attempt, and process user feedback.
//
// A chat's history is append-only and at most its last attempt is
// unjudged. Feedback on a correct answer closes the loop for that chat
// until a new question arrives; feedback on a wrong answer triggers a
// regeneration carrying the rejected SQL as negative context.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sqlpilot/sqlpilot/internal/llm"
	"github.com/sqlpilot/sqlpilot/internal/project"
	"github.com/sqlpilot/sqlpilot/internal/retrieval"
)

var (
	// ErrEmptyQuery indicates the question is empty or whitespace.
	ErrEmptyQuery = errors.New("empty question")

	// ErrNoHistory indicates feedback was given on a chat with no attempts.
	ErrNoHistory = errors.New("chat has no attempts to judge")

	// ErrFeedbackDisabled indicates the chat's feedback loop is closed;
	// a correct answer was already confirmed for the latest question.
	ErrFeedbackDisabled = errors.New("feedback is disabled for this chat")

	// ErrGeneration wraps model failures. The chat history is untouched
	// when this is returned.
	ErrGeneration = errors.New("sql generation failed")

	// ErrChatMismatch indicates the chat does not belong to the project.
	ErrChatMismatch = errors.New("chat does not belong to project")
)

// ChatStore is the slice of the project store the orchestrator needs.
type ChatStore interface {
	GetProject(ctx context.Context, id uuid.UUID) (*project.Project, error)
	GetChat(ctx context.Context, id uuid.UUID) (*project.Chat, error)
	AppendAttempt(ctx context.Context, chatID uuid.UUID, attempt project.QueryAttempt) (*project.Chat, error)
	MarkLastJudgement(ctx context.Context, chatID uuid.UUID, isCorrect bool) (*project.Chat, error)
	SetFeedbackEnabled(ctx context.Context, chatID uuid.UUID, enabled bool) (*project.Chat, error)
	AddSampleQuery(ctx context.Context, id uuid.UUID, pair project.SamplePair) (*project.Project, error)
}

// ContextRetriever supplies retrieved knowledge for a question.
type ContextRetriever interface {
	RetrieveAll(ctx context.Context, projectID uuid.UUID, question string) (*retrieval.Context, error)
}

// SampleSink persists confirmed question/SQL pairs back into the
// knowledge base.
type SampleSink interface {
	AddQuestionSQL(ctx context.Context, projectID uuid.UUID, question, sql string) (string, error)
}

// Result is the outcome of a generation or regeneration.
type Result struct {
	SQL  string
	Chat *project.Chat
}

// Orchestrator coordinates retrieval, generation, and chat state.
//
// A per-chat in-process mutex serializes the read-retrieve-generate-append
// sequence, so two concurrent requests on one chat cannot interleave their
// attempts.
type Orchestrator struct {
	chats       ChatStore
	retriever   ContextRetriever
	generator   llm.Generator
	samples     SampleSink
	temperature float32
	logger      *slog.Logger

	locks keyedMutex
}

// New creates an Orchestrator. samples may be nil to disable persisting
// confirmed pairs.
func New(chats ChatStore, retriever ContextRetriever, generator llm.Generator, samples SampleSink, temperature float32, logger *slog.Logger) (*Orchestrator, error) {
	if chats == nil {
		return nil, fmt.Errorf("chat store is required")
	}
	if retriever == nil {
		return nil, fmt.Errorf("retriever is required")
	}
	if generator == nil {
		return nil, fmt.Errorf("generator is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		chats:       chats,
		retriever:   retriever,
		generator:   generator,
		samples:     samples,
		temperature: temperature,
		logger:      logger,
	}, nil
}

// Generate answers a new natural-language question in a chat.
//
// On model failure the history is untouched; the pending attempt is
// appended only after a successful response.
func (o *Orchestrator) Generate(ctx context.Context, projectID, chatID uuid.UUID, question string) (*Result, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuery
	}

	unlock := o.locks.lock(chatID)
	defer unlock()

	chat, err := o.chats.GetChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if chat.ProjectID != projectID {
		return nil, fmt.Errorf("%w: chat %s, project %s", ErrChatMismatch, chatID, projectID)
	}

	proj, err := o.chats.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}

	retrieved, err := o.retriever.RetrieveAll(ctx, projectID, question)
	if err != nil {
		return nil, fmt.Errorf("retrieving context: %w", err)
	}

	pc := buildPromptContext(retrieved, proj.SampleQueries)
	pc.history = chat.History

	sql, err := o.generator.Generate(ctx, generateSystemPrompt, buildGeneratePrompt(pc, question), o.temperature)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGeneration, err)
	}

	chat, err = o.chats.AppendAttempt(ctx, chatID, project.QueryAttempt{
		Text:      question,
		SQL:       sql,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("recording attempt: %w", err)
	}

	// A fresh question reopens the feedback loop.
	chat, err = o.chats.SetFeedbackEnabled(ctx, chatID, true)
	if err != nil {
		return nil, fmt.Errorf("enabling feedback: %w", err)
	}

	o.logger.Info("generated sql",
		"chat_id", chatID,
		"project_id", projectID,
		"attempts", len(chat.History))
	return &Result{SQL: sql, Chat: chat}, nil
}

// ProvideFeedback records the user's verdict on the chat's latest attempt.
//
// Correct: the attempt is confirmed, the feedback loop closes, and the pair
// is optionally persisted as a knowledge example and curated sample.
// Incorrect: the attempt is marked wrong and a corrected query is generated
// with all rejected SQL for the question as negative context; the new
// attempt is appended pending judgement.
func (o *Orchestrator) ProvideFeedback(ctx context.Context, chatID uuid.UUID, isCorrect, addToSamples bool) (*Result, error) {
	unlock := o.locks.lock(chatID)
	defer unlock()

	chat, err := o.chats.GetChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	last := chat.LastAttempt()
	if last == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoHistory, chatID)
	}
	if chat.FeedbackEnabled != nil && !*chat.FeedbackEnabled {
		return nil, fmt.Errorf("%w: %s", ErrFeedbackDisabled, chatID)
	}

	if isCorrect {
		return o.confirmCorrect(ctx, chat, *last, addToSamples)
	}
	return o.regenerate(ctx, chat, *last)
}

// confirmCorrect closes the feedback loop on a confirmed answer.
func (o *Orchestrator) confirmCorrect(ctx context.Context, chat *project.Chat, last project.QueryAttempt, addToSamples bool) (*Result, error) {
	if _, err := o.chats.MarkLastJudgement(ctx, chat.ID, true); err != nil {
		return nil, fmt.Errorf("marking attempt correct: %w", err)
	}
	updated, err := o.chats.SetFeedbackEnabled(ctx, chat.ID, false)
	if err != nil {
		return nil, fmt.Errorf("disabling feedback: %w", err)
	}

	if addToSamples {
		if o.samples != nil {
			// Deterministic ids make this idempotent across repeat confirmations.
			if _, err := o.samples.AddQuestionSQL(ctx, chat.ProjectID, last.Text, last.SQL); err != nil {
				o.logger.Warn("persisting confirmed pair to knowledge base", "error", err)
			}
		}
		if _, err := o.chats.AddSampleQuery(ctx, chat.ProjectID, project.SamplePair{Text: last.Text, SQL: last.SQL}); err != nil {
			o.logger.Warn("adding confirmed pair to curated samples", "error", err)
		}
	}

	o.logger.Info("attempt confirmed correct", "chat_id", chat.ID, "add_to_samples", addToSamples)
	return &Result{SQL: last.SQL, Chat: updated}, nil
}

// regenerate produces a corrected query after a rejection.
func (o *Orchestrator) regenerate(ctx context.Context, chat *project.Chat, last project.QueryAttempt) (*Result, error) {
	chat, err := o.chats.MarkLastJudgement(ctx, chat.ID, false)
	if err != nil {
		return nil, fmt.Errorf("marking attempt incorrect: %w", err)
	}

	proj, err := o.chats.GetProject(ctx, chat.ProjectID)
	if err != nil {
		return nil, err
	}
	retrieved, err := o.retriever.RetrieveAll(ctx, chat.ProjectID, last.Text)
	if err != nil {
		return nil, fmt.Errorf("retrieving context: %w", err)
	}

	pc := buildPromptContext(retrieved, proj.SampleQueries)
	// Every rejected attempt at this question, oldest first. Prior
	// rejections are never cleared, so the model sees the full trail.
	for _, a := range chat.History {
		if a.Text == last.Text && a.IsCorrect != nil && !*a.IsCorrect {
			pc.incorrectSQL = append(pc.incorrectSQL, a.SQL)
		}
	}

	sql, err := o.generator.Generate(ctx, regenerateSystemPrompt, buildRegeneratePrompt(pc, last.Text), o.temperature)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGeneration, err)
	}

	updated, err := o.chats.AppendAttempt(ctx, chat.ID, project.QueryAttempt{
		Text:      last.Text,
		SQL:       sql,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("recording attempt: %w", err)
	}

	o.logger.Info("regenerated sql",
		"chat_id", chat.ID,
		"rejected_attempts", len(pc.incorrectSQL))
	return &Result{SQL: sql, Chat: updated}, nil
}

// keyedMutex serializes work per chat id. Entries are reference-counted
// and removed when the last holder unlocks, so the map does not grow with
// the number of chats ever seen.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func (k *keyedMutex) lock(id uuid.UUID) (unlock func()) {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[uuid.UUID]*lockEntry)
	}
	e, ok := k.locks[id]
	if !ok {
		e = &lockEntry{}
		k.locks[id] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, id)
		}
		k.mu.Unlock()
	}
}
