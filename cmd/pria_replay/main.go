// Command pria_replay re-extracts the stored replies of a run and reports
// where the stored rankings no longer match the current extractor.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/AI-Template-SDK/senso-pria/internal/config"
	"github.com/AI-Template-SDK/senso-pria/internal/models"
	"github.com/AI-Template-SDK/senso-pria/internal/repositories"
	"github.com/AI-Template-SDK/senso-pria/services"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

func main() {
	var (
		runFlag   = flag.String("run", "", "run UUID to replay (required)")
		sqliteDSN = flag.String("sqlite", "", "SQLite DSN to read instead of the configured Postgres database")
		recompute = flag.Bool("recompute", false, "rewrite the stored composite from the current outcomes and overrides")
		asJSON    = flag.Bool("json", false, "print one audit record per outcome as JSON lines")
		timeout   = flag.Duration("timeout", 5*time.Minute, "overall timeout")
	)
	flag.Parse()

	if *runFlag == "" {
		log.Fatalf("--run is required")
	}
	runID, err := uuid.Parse(*runFlag)
	if err != nil {
		log.Fatalf("invalid --run %q: %v", *runFlag, err)
	}

	if err := godotenv.Load(); err != nil {
		_ = godotenv.Load("dev.env")
	}
	cfg := config.Load()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	driver, dsn := "postgres", cfg.Database.ConnString()
	if *sqliteDSN != "" {
		driver, dsn = "sqlite", *sqliteDSN
	}
	db, err := repositories.Connect(ctx, driver, dsn, 2, 2, 0)
	if err != nil {
		log.Fatalf("DB connect failed: %v", err)
	}
	defer db.Close()

	repos := repositories.NewRepositoryManager(db)

	summary, err := replayRun(ctx, repos, runID)
	if err != nil {
		log.Fatalf("Replay failed: %v", err)
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		for _, r := range summary.Results {
			if err := enc.Encode(models.NewOutcomeAuditRecord(r.Outcome)); err != nil {
				log.Fatalf("Failed to encode audit record: %v", err)
			}
		}
	} else {
		printSummary(summary)
	}

	if *recompute {
		composite, err := services.NewCompositeService(repos).Recompute(ctx, runID)
		if err != nil {
			log.Fatalf("Recompute failed: %v", err)
		}
		if composite == nil {
			log.Printf("Run %s has no outcomes; no composite stored", runID)
			return
		}
		log.Printf("Composite of run %s rewritten: %.2f over %d prompts (%d overrides)",
			runID, composite.Overall, composite.PromptCount, composite.OverrideCount)
	}
}

func printSummary(s *replaySummary) {
	fmt.Printf("Run %s  brand=%s  status=%s  model=%s\n", s.Run.RunID, s.Run.BrandName, s.Run.Status, s.Run.Model)
	for _, r := range s.Results {
		marker := "  "
		if r.RankingDrift || r.ScoreDrift {
			marker = "! "
		}
		fmt.Printf("%soutcome %s  category=%s  strategy=%s\n", marker, r.Outcome.OutcomeID, r.Outcome.CategoryID, r.Strategy)
		fmt.Printf("    stored:   [%s] score %.2f\n", formatRanking(r.Outcome.Ranking), r.Outcome.Score)
		fmt.Printf("    replayed: [%s] score %.2f\n", formatRanking(r.Replayed), r.ReplayedScore)
		if r.Overridden {
			fmt.Printf("    override: [%s] score %.2f by %s\n",
				formatRanking(r.Outcome.Override.Ranking), r.Outcome.Override.Score, r.Outcome.Override.AppliedBy)
		}
		if r.Outcome.Truncated {
			fmt.Printf("    note: stored reply was truncated, replay sees a prefix only\n")
		}
	}

	stored := "none"
	if s.StoredComposite != nil {
		stored = fmt.Sprintf("%.2f", s.StoredComposite.Overall)
	}
	fmt.Printf("%d of %d outcomes drifted; composite stored %s, replayed %.2f\n",
		s.Drifted, len(s.Results), stored, s.ReplayedComposite)
}
