package orchestrator

import (
	"fmt"
	"strings"

	"github.com/sqlpilot/sqlpilot/internal/project"
	"github.com/sqlpilot/sqlpilot/internal/retrieval"
)

const generateSystemPrompt = "You are a SQL expert. Generate accurate SQL queries based on natural language inputs and the provided database schema and context. Return only the SQL query without any explanations or markdown formatting."

const regenerateSystemPrompt = "You are a SQL expert. Generate a corrected SQL query, avoiding the mistakes in previous attempts. Return only the SQL query without any explanations or markdown formatting."

// promptContext is the assembled material for one prompt.
type promptContext struct {
	schema        string
	documentation string
	samples       []project.SamplePair
	history       []project.QueryAttempt
	incorrectSQL  []string
}

// buildPromptContext merges retrieved knowledge with the project's curated
// samples. Schema and documentation take the single best hit each; curated
// samples come first, then retrieved pairs, with exact duplicates dropped.
func buildPromptContext(retrieved *retrieval.Context, curated []project.SamplePair) promptContext {
	var pc promptContext

	if len(retrieved.DDL) > 0 {
		pc.schema = retrieved.DDL[0].Content
	}
	if len(retrieved.Documentation) > 0 {
		pc.documentation = retrieved.Documentation[0].Content
	}

	seen := make(map[project.SamplePair]bool)
	for _, p := range curated {
		if !seen[p] {
			seen[p] = true
			pc.samples = append(pc.samples, p)
		}
	}
	for _, r := range retrieved.QuestionSQL {
		p := project.SamplePair{Text: r.Question, SQL: r.Content}
		if !seen[p] {
			seen[p] = true
			pc.samples = append(pc.samples, p)
		}
	}
	return pc
}

// buildGeneratePrompt renders the first-attempt prompt: schema,
// documentation, sample pairs, the chat's prior attempts oldest-first with
// their correctness, then the new question.
func buildGeneratePrompt(pc promptContext, question string) string {
	var b strings.Builder

	writeCommonContext(&b, pc)

	if len(pc.history) > 0 {
		b.WriteString("Previous queries in this conversation:\n")
		for _, a := range pc.history {
			// Unjudged attempts count as correct context.
			correct := a.IsCorrect == nil || *a.IsCorrect
			fmt.Fprintf(&b, "Text: %s\nSQL: %s\nCorrect: %t\n\n", a.Text, a.SQL, correct)
		}
	}

	fmt.Fprintf(&b, "\nGenerate SQL for: %s\nSQL:", question)
	return b.String()
}

// buildRegeneratePrompt renders the retry prompt: common context plus the
// previously rejected SQL for the same question.
func buildRegeneratePrompt(pc promptContext, question string) string {
	var b strings.Builder

	writeCommonContext(&b, pc)

	if len(pc.incorrectSQL) > 0 {
		b.WriteString("Previous incorrect attempts:\n")
		for _, sql := range pc.incorrectSQL {
			fmt.Fprintf(&b, "Incorrect SQL: %s\n", sql)
		}
	}

	fmt.Fprintf(&b, "\nGenerate a corrected SQL query for: %s\nSQL:", question)
	return b.String()
}

func writeCommonContext(b *strings.Builder, pc promptContext) {
	if strings.TrimSpace(pc.schema) != "" {
		fmt.Fprintf(b, "Database Schema:\n%s\n\n", pc.schema)
	}
	if strings.TrimSpace(pc.documentation) != "" {
		fmt.Fprintf(b, "Documentation:\n%s\n\n", pc.documentation)
	}
	if len(pc.samples) > 0 {
		b.WriteString("Sample Queries:\n")
		for _, p := range pc.samples {
			fmt.Fprintf(b, "Text: %s\nSQL: %s\n\n", p.Text, p.SQL)
		}
	}
}
