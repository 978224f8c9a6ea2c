// Package repotest provides an in-memory database for repository and
// service tests.
package repotest

import (
	"context"
	"testing"
	"time"

	"github.com/AI-Template-SDK/senso-pria/internal/models"
	"github.com/AI-Template-SDK/senso-pria/internal/repositories"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// NewDB returns a migrated in-memory SQLite database that is closed when the
// test ends.
func NewDB(t *testing.T) *sqlx.DB {
	t.Helper()

	db, err := sqlx.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	// Each connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	if err := repositories.Migrate(context.Background(), db); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

// NewManager returns a repository manager over a fresh database.
func NewManager(t *testing.T) *repositories.RepositoryManager {
	t.Helper()
	return repositories.NewRepositoryManager(NewDB(t))
}

// SeedRun stores a pending run with the given prompts and returns both.
func SeedRun(t *testing.T, repos *repositories.RepositoryManager, brand string, competitors []string, prompts ...string) (*models.Run, []*models.Prompt) {
	t.Helper()
	ctx := context.Background()

	now := time.Now().UTC()
	run := &models.Run{
		RunID:        uuid.New(),
		BrandName:    brand,
		BrandAliases: []string{},
		Status:       models.RunStatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	for _, name := range competitors {
		run.Competitors = append(run.Competitors, models.NamedEntity{Name: name, Kind: models.EntityKindCompetitor})
	}
	if err := repos.Runs.Create(ctx, run); err != nil {
		t.Fatalf("failed to seed run: %v", err)
	}

	var seeded []*models.Prompt
	for _, text := range prompts {
		seeded = append(seeded, &models.Prompt{RunID: run.RunID, Text: text, IsActive: true})
	}
	if err := repos.Prompts.BulkCreate(ctx, seeded); err != nil {
		t.Fatalf("failed to seed prompts: %v", err)
	}
	return run, seeded
}
