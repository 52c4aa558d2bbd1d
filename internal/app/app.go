// Package app assembles the application: config, database, Genkit, stores,
// retriever, orchestrator. Every component is constructor-injected; nothing
// here is a global.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sqlpilot/sqlpilot/db"
	"github.com/sqlpilot/sqlpilot/internal/config"
	"github.com/sqlpilot/sqlpilot/internal/database"
	"github.com/sqlpilot/sqlpilot/internal/embed"
	"github.com/sqlpilot/sqlpilot/internal/llm"
	"github.com/sqlpilot/sqlpilot/internal/orchestrator"
	"github.com/sqlpilot/sqlpilot/internal/project"
	"github.com/sqlpilot/sqlpilot/internal/retrieval"
	"github.com/sqlpilot/sqlpilot/internal/vectorstore"
)

// App holds the assembled application components.
type App struct {
	Config       *config.Config
	Logger       *slog.Logger
	Pool         *pgxpool.Pool
	Genkit       *genkit.Genkit
	Embedder     embed.Embedder
	Projects     *project.Store
	Knowledge    vectorstore.Store
	Retriever    *retrieval.Retriever
	Generator    llm.Generator
	Orchestrator *orchestrator.Orchestrator
	Migrator     *vectorstore.Migrator

	otelCleanup func()
}

// Setup runs migrations and builds the application component graph.
// Call Close to release the database pool.
func Setup(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *App, retErr error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Logger: logger}

	defer func() {
		if retErr != nil {
			a.Close()
		}
	}()

	// Before genkit.Init so the TracerProvider carries the span processor
	// when flows start.
	a.otelCleanup = provideOtelShutdown(ctx, cfg, logger)

	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	pool, err := database.Connect(ctx, cfg.PostgresConnectionString())
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	a.Pool = pool

	g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
	if g == nil {
		return nil, fmt.Errorf("initializing genkit with provider %q", cfg.Provider)
	}
	a.Genkit = g

	aiEmbedder := googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
	if aiEmbedder == nil {
		return nil, fmt.Errorf("embedder %q not found", cfg.EmbedderModel)
	}
	a.Embedder = embed.NewGenkit(aiEmbedder, cfg.EmbedderModel, cfg.EmbedderDimension)

	projects, err := project.NewStore(pool, logger)
	if err != nil {
		return nil, fmt.Errorf("creating project store: %w", err)
	}
	a.Projects = projects

	knowledge, err := provideKnowledgeStore(cfg, pool, a.Embedder, projects, logger)
	if err != nil {
		return nil, err
	}
	a.Knowledge = knowledge

	retriever, err := retrieval.New(knowledge, a.Embedder, retrieval.Limits{
		SQL: cfg.RetrievalSQL,
		DDL: cfg.RetrievalDDL,
		Doc: cfg.RetrievalDoc,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("creating retriever: %w", err)
	}
	a.Retriever = retriever

	generator, err := llm.NewGenkit(g, cfg.FullModelName(), cfg.GenerateRPS, logger)
	if err != nil {
		return nil, fmt.Errorf("creating generator: %w", err)
	}
	a.Generator = generator

	orch, err := orchestrator.New(projects, retriever, generator, knowledge, cfg.Temperature, logger)
	if err != nil {
		return nil, fmt.Errorf("creating orchestrator: %w", err)
	}
	a.Orchestrator = orch

	migrator, err := vectorstore.NewMigrator(knowledge, a.Embedder, logger)
	if err != nil {
		return nil, fmt.Errorf("creating embedding migrator: %w", err)
	}
	a.Migrator = migrator

	if err := a.warnOnEmbedderMismatch(ctx); err != nil {
		return nil, err
	}

	return a, nil
}

// provideKnowledgeStore selects the vector backend from config. Projects and
// chats always live in Postgres; the memory backend only makes knowledge
// records ephemeral.
func provideKnowledgeStore(cfg *config.Config, pool *pgxpool.Pool, embedder embed.Embedder, checker vectorstore.ProjectChecker, logger *slog.Logger) (vectorstore.Store, error) {
	switch cfg.VectorBackend {
	case config.BackendMemory:
		store, err := vectorstore.NewMemory(embedder, checker, logger)
		if err != nil {
			return nil, fmt.Errorf("creating memory vector store: %w", err)
		}
		return store, nil
	default:
		store, err := vectorstore.NewPostgres(pool, embedder, checker, logger)
		if err != nil {
			return nil, fmt.Errorf("creating postgres vector store: %w", err)
		}
		return store, nil
	}
}

// warnOnEmbedderMismatch logs when the stored vectors were produced by a
// different embedder configuration than the one now active. Search quality
// degrades until `sqlpilot reembed` is run.
func (a *App) warnOnEmbedderMismatch(ctx context.Context) error {
	needed, err := a.Migrator.NeedsMigration(ctx)
	if err != nil {
		return fmt.Errorf("checking embedding config: %w", err)
	}
	if needed {
		cfg, err := a.Knowledge.Config(ctx)
		if err != nil {
			return fmt.Errorf("reading store config: %w", err)
		}
		a.Logger.Warn("stored embeddings do not match the configured embedder, run `sqlpilot reembed`",
			"stored_embedder", cfg.EmbedderName,
			"stored_dimension", cfg.Dimension,
			"configured_embedder", a.Embedder.Name(),
			"configured_dimension", a.Embedder.Dimension(),
		)
	}
	return nil
}

// Close flushes pending trace spans and releases the database pool.
func (a *App) Close() {
	if a.Pool != nil {
		a.Pool.Close()
	}
	if a.otelCleanup != nil {
		a.otelCleanup()
	}
}
