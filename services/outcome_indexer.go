package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/AI-Template-SDK/senso-pria/internal/models"
	"github.com/typesense/typesense-go/v2/typesense"
	"github.com/typesense/typesense-go/v2/typesense/api"
)

// OutcomeCollection is the Typesense collection reviewers search for outcomes
// that need attention.
const OutcomeCollection = "prompt_outcomes"

type typesenseIndexer struct {
	client *typesense.Client
}

func NewTypesenseIndexer(client *typesense.Client) OutcomeIndexer {
	return &typesenseIndexer{client: client}
}

func (i *typesenseIndexer) EnsureCollection(ctx context.Context) error {
	facet := true
	sort := true
	optional := true
	defaultSortField := "created_at"
	schema := &api.CollectionSchema{
		Name: OutcomeCollection,
		Fields: []api.Field{
			{Name: "id", Type: "string"},
			{Name: "run_id", Type: "string", Facet: &facet},
			{Name: "prompt_id", Type: "string"},
			{Name: "brand_name", Type: "string", Facet: &facet},
			{Name: "category_id", Type: "string", Facet: &facet},
			{Name: "model", Type: "string", Facet: &facet},
			{Name: "flags", Type: "string[]", Facet: &facet},
			{Name: "ranked_entities", Type: "string[]", Facet: &facet},
			{Name: "brand_position", Type: "int32", Optional: &optional},
			{Name: "score", Type: "float", Sort: &sort},
			{Name: "overridden", Type: "bool", Facet: &facet},
			{Name: "raw_text", Type: "string"},
			{Name: "created_at", Type: "int64", Sort: &sort},
		},
		DefaultSortingField: &defaultSortField,
	}

	_, err := i.client.Collections().Create(ctx, schema)
	if err != nil && !strings.Contains(err.Error(), "already exists") {
		return fmt.Errorf("failed to create Typesense collection %s: %w", OutcomeCollection, err)
	}
	return nil
}

func (i *typesenseIndexer) IndexOutcomes(ctx context.Context, run *models.Run, outcomes []*models.PromptOutcome) error {
	if len(outcomes) == 0 {
		return nil
	}

	docs := make([]interface{}, len(outcomes))
	for n, o := range outcomes {
		docs[n] = outcomeDocument(run, o)
	}

	action := "upsert"
	results, err := i.client.Collection(OutcomeCollection).Documents().Import(ctx, docs, &api.ImportDocumentsParams{Action: &action})
	if err != nil {
		return fmt.Errorf("failed to import outcomes: %w", err)
	}

	failed := 0
	for _, r := range results {
		if r != nil && !r.Success {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d outcome documents were rejected", failed, len(docs))
	}

	fmt.Printf("[IndexOutcomes] Indexed %d outcomes of run %s\n", len(docs), run.RunID)
	return nil
}

// outcomeDocument is the searchable view of an outcome. Score, ranking and
// flags are the effective values.
func outcomeDocument(run *models.Run, o *models.PromptOutcome) map[string]interface{} {
	flags := o.Flags.Names()
	if flags == nil {
		flags = []string{}
	}
	entities := []string{}
	for _, e := range o.EffectiveRanking() {
		entities = append(entities, e.EntityName)
	}

	position := o.BrandPosition
	overridden := o.Override != nil && o.Override.Active
	if overridden {
		position = o.Override.BrandPosition
	}

	doc := map[string]interface{}{
		"id":              o.OutcomeID.String(),
		"run_id":          o.RunID.String(),
		"prompt_id":       o.PromptID.String(),
		"brand_name":      run.BrandName,
		"category_id":     o.CategoryID,
		"model":           o.Model,
		"flags":           flags,
		"ranked_entities": entities,
		"score":           o.EffectiveScore(),
		"overridden":      overridden,
		"raw_text":        o.RawText,
		"created_at":      o.CreatedAt.Unix(),
	}
	if position != nil {
		doc["brand_position"] = *position
	}
	return doc
}

type noopIndexer struct{}

// NewNoopIndexer returns an indexer that does nothing, used when search
// indexing is disabled.
func NewNoopIndexer() OutcomeIndexer {
	return noopIndexer{}
}

func (noopIndexer) EnsureCollection(ctx context.Context) error { return nil }

func (noopIndexer) IndexOutcomes(ctx context.Context, run *models.Run, outcomes []*models.PromptOutcome) error {
	return nil
}
