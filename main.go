// main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/AI-Template-SDK/senso-pria/internal/config"
	"github.com/AI-Template-SDK/senso-pria/internal/models"
	"github.com/AI-Template-SDK/senso-pria/internal/repositories"
	"github.com/AI-Template-SDK/senso-pria/services"
	"github.com/AI-Template-SDK/senso-pria/workflows"
	"github.com/inngest/inngestgo"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/typesense/typesense-go/v2/typesense"
)

func main() {
	if err := godotenv.Load(); err != nil {
		if err := godotenv.Load("dev.env"); err != nil {
			log.Printf("Note: No .env or dev.env file loaded: %v", err)
		} else {
			log.Printf("Loaded dev.env file for local development")
		}
	} else {
		log.Printf("Loaded .env file")
	}

	cfg := config.Load()

	log.Printf("Environment: %s", cfg.Environment)
	log.Printf("Port: %s", cfg.Port)
	log.Printf("Database Host: %s", cfg.Database.Host)
	log.Printf("Database Name: %s", cfg.Database.Name)
	log.Printf("Default model: %s (temperature %.2f, max tokens %d)",
		cfg.Run.DefaultModel, cfg.Run.DefaultTemperature, cfg.Run.DefaultMaxTokens)

	if cfg.OpenAIAPIKey == "" && cfg.AzureOpenAIKey == "" {
		log.Printf("WARNING: OpenAI API key not loaded!")
	} else {
		log.Printf("OpenAI API key loaded (length: %d)", len(cfg.OpenAIAPIKey)+len(cfg.AzureOpenAIKey))
	}
	if cfg.AnthropicAPIKey == "" {
		log.Printf("WARNING: Anthropic API key not loaded!")
	} else {
		log.Printf("Anthropic API key loaded (length: %d)", len(cfg.AnthropicAPIKey))
	}

	ctx := context.Background()
	db, err := repositories.Connect(ctx, "postgres", cfg.Database.ConnString(),
		cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns,
		time.Duration(cfg.Database.ConnMaxLifetime)*time.Second)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Printf("Successfully connected to database")

	if err := repositories.Migrate(ctx, db); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}
	repoManager := repositories.NewRepositoryManager(db)
	log.Printf("Repository manager initialized")

	if cfg.Environment == "development" || cfg.Environment == "" {
		os.Unsetenv("INNGEST_SIGNING_KEY")
		cfg.InngestSigningKey = ""
		log.Printf("Running in development mode - signing key verification disabled")
	}

	indexer := services.NewNoopIndexer()
	if cfg.Typesense.Enabled {
		log.Println("Attempting to initialize Typesense client...")
		typesenseClient := typesense.NewClient(
			typesense.WithServer(fmt.Sprintf("http://%s:%d", cfg.Typesense.Host, cfg.Typesense.Port)),
			typesense.WithAPIKey(cfg.Typesense.APIKey),
		)
		indexer = services.NewTypesenseIndexer(typesenseClient)
		if err := indexer.EnsureCollection(ctx); err != nil {
			log.Fatalf("Failed to create Typesense collection: %v", err)
		}
		log.Printf("Typesense collection '%s' is ready.", services.OutcomeCollection)
	} else {
		log.Printf("Typesense indexing disabled")
	}

	costService := services.NewCostService()
	providerFactory := services.NewProviderFactory(cfg, costService)
	runLocks := services.NewRunLocks()
	compositeService := services.NewCompositeService(repoManager)
	runService := services.NewRunService(cfg, repoManager, providerFactory, compositeService, indexer, runLocks)
	overrideService := services.NewOverrideService(repoManager, compositeService, indexer, runLocks)
	reportService := services.NewReportService(repoManager)
	alerts := workflows.NewSlackNotifier(cfg.SlackWebhookURL)
	log.Printf("Services initialized")

	client, err := inngestgo.NewClient(
		inngestgo.ClientOpts{
			AppID:    "senso-pria",
			EventKey: inngestgo.StrPtr(cfg.InngestEventKey),
			Env:      inngestgo.StrPtr(cfg.Environment),
		},
	)
	if err != nil {
		log.Fatalf("Failed to create Inngest client: %v", err)
	}

	log.Printf("Initializing and registering workflows...")

	runProcessor := workflows.NewRunProcessor(runService, reportService, alerts)
	runProcessor.SetClient(client)
	runProcessor.CreateRun()
	runProcessor.ExecuteRun()

	overrideProcessor := workflows.NewOverrideProcessor(overrideService)
	overrideProcessor.SetClient(client)
	overrideProcessor.ApplyOverride()
	overrideProcessor.RevertOverride()

	scheduledProcessor := workflows.NewScheduledProcessor(runService, cfg)
	scheduledProcessor.SetClient(client)
	scheduledProcessor.PendingRunDispatcher()

	log.Printf("All processors initialized and functions registered")

	h := client.Serve()
	mux := http.NewServeMux()
	mux.Handle("/api/inngest", h)

	// Root endpoint for ALB health check
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"service":"senso-pria","status":"running"}`))
	})

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unhealthy"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})

	// Published layout of the audit record, for consumers of stored outcomes.
	mux.HandleFunc("/schemas/outcome", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/schema+json")
		if err := json.NewEncoder(w).Encode(models.OutcomeAuditSchema); err != nil {
			log.Printf("Failed to encode outcome schema: %v", err)
		}
	})

	port := cfg.Port
	log.Printf("Starting Senso PRIA service on port %s", port)
	if err := http.ListenAndServe(":"+port, mux); err != nil {
		log.Fatal(err)
	}
}
