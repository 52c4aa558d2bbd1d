// Package project manages projects and their chats.
//
// A project scopes a knowledge base plus a set of curated sample queries.
// A chat is the conversational unit of SQL generation: it records every
// generation attempt in order and carries the tri-state feedback flag that
// drives the regeneration loop.
package project

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrProjectNotFound indicates no project exists with the given id.
	ErrProjectNotFound = errors.New("project not found")

	// ErrChatNotFound indicates no chat exists with the given id.
	ErrChatNotFound = errors.New("chat not found")

	// ErrNoAttempts indicates a chat has no generation attempts yet.
	ErrNoAttempts = errors.New("chat has no attempts")

	// ErrEmptyName indicates a required name field is empty.
	ErrEmptyName = errors.New("empty name")
)

// SamplePair is one curated question/SQL example attached to a project.
type SamplePair struct {
	Text string `json:"text"`
	SQL  string `json:"sql"`
}

// Project scopes a knowledge base.
type Project struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	// SampleQueries are curated examples shown to the model ahead of
	// retrieved ones, in insertion order.
	SampleQueries []SamplePair `json:"sample_queries"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// QueryAttempt is one generation attempt within a chat.
type QueryAttempt struct {
	// Text is the user's natural-language question, or the feedback text
	// for regeneration attempts.
	Text string `json:"text"`
	// SQL is the generated statement.
	SQL string `json:"sql"`
	// IsCorrect is nil until the user judges the attempt.
	IsCorrect *bool     `json:"is_correct"`
	Timestamp time.Time `json:"timestamp"`
}

// Chat is an ordered sequence of generation attempts on one project.
type Chat struct {
	ID        uuid.UUID      `json:"id"`
	ProjectID uuid.UUID      `json:"project_id"`
	Title     string         `json:"title"`
	History   []QueryAttempt `json:"query_history"`
	// FeedbackEnabled is tri-state: nil means the chat has never been
	// judged; false means a correct answer ended the feedback loop.
	FeedbackEnabled *bool     `json:"feedback_enabled"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// LastAttempt returns the most recent attempt, or nil when History is empty.
func (c *Chat) LastAttempt() *QueryAttempt {
	if len(c.History) == 0 {
		return nil
	}
	return &c.History[len(c.History)-1]
}
