// internal/models/models.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// EntityKind distinguishes the measured brand from its competitors
type EntityKind string

const (
	EntityKindBrand      EntityKind = "brand"
	EntityKindCompetitor EntityKind = "competitor"
)

// Valid reports whether k is one of the known kinds.
func (k EntityKind) Valid() bool {
	return k == EntityKindBrand || k == EntityKindCompetitor
}

// NamedEntity is the measured brand or a competitor, identified by a
// canonical name plus aliases.
type NamedEntity struct {
	Name    string     `json:"name"`
	Kind    EntityKind `json:"kind"`
	Aliases []string   `json:"aliases,omitempty"`
}

// RankEntry is one slot of an extracted top 3.
type RankEntry struct {
	Position   int        `json:"position"`
	EntityName string     `json:"entity_name"`
	EntityKind EntityKind `json:"entity_kind"`
}

// Ranking is the ordered list of entries extracted from one reply.
type Ranking []RankEntry

// ExtractionFlags are diagnostic markers attached to an outcome. They are not
// mutually exclusive.
type ExtractionFlags struct {
	AmbiguousRanking   bool `json:"ambiguous_ranking"`
	NoRanking          bool `json:"no_ranking"`
	BrandNotDetected   bool `json:"brand_not_detected"`
	CompetitorDetected bool `json:"competitor_detected"`
	ParsingError       bool `json:"parsing_error"`
	IncompleteResponse bool `json:"incomplete_response"`
	ManualOverride     bool `json:"manual_override"`
}

// Names returns the names of all raised flags in a stable order.
func (f ExtractionFlags) Names() []string {
	var names []string
	for _, flag := range []struct {
		set  bool
		name string
	}{
		{f.AmbiguousRanking, "ambiguous_ranking"},
		{f.NoRanking, "no_ranking"},
		{f.BrandNotDetected, "brand_not_detected"},
		{f.CompetitorDetected, "competitor_detected"},
		{f.ParsingError, "parsing_error"},
		{f.IncompleteResponse, "incomplete_response"},
		{f.ManualOverride, "manual_override"},
	} {
		if flag.set {
			names = append(names, flag.name)
		}
	}
	return names
}

// Any reports whether at least one flag is raised.
func (f ExtractionFlags) Any() bool {
	return len(f.Names()) > 0
}

// RunStatus is the lifecycle state of a measurement run
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// UncategorizedCategory is the bucket used for prompts without a category.
const UncategorizedCategory = "uncategorized"

// Run is one measurement session for one brand.
type Run struct {
	RunID        uuid.UUID     `json:"run_id"`
	BrandName    string        `json:"brand_name"`
	BrandAliases []string      `json:"brand_aliases"`
	Competitors  []NamedEntity `json:"competitors"`
	Status       RunStatus     `json:"status"`
	Model        string        `json:"model"`
	Temperature  float64       `json:"temperature"`
	MaxTokens    int           `json:"max_tokens"`
	InputTokens  int           `json:"input_tokens"`
	OutputTokens int           `json:"output_tokens"`
	TotalCost    float64       `json:"total_cost"`
	ErrorMessage *string       `json:"error_message,omitempty"`
	StartedAt    *time.Time    `json:"started_at,omitempty"`
	CompletedAt  *time.Time    `json:"completed_at,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// Brand returns the measured brand as a NamedEntity.
func (r *Run) Brand() NamedEntity {
	return NamedEntity{Name: r.BrandName, Kind: EntityKindBrand, Aliases: r.BrandAliases}
}

// Entities returns the extraction context in priority order: the measured
// brand first, then competitors in their stored order.
func (r *Run) Entities() []NamedEntity {
	entities := make([]NamedEntity, 0, len(r.Competitors)+1)
	entities = append(entities, r.Brand())
	for _, c := range r.Competitors {
		c.Kind = EntityKindCompetitor
		entities = append(entities, c)
	}
	return entities
}

// TokensUsed is the total token count accumulated by the run.
func (r *Run) TokensUsed() int {
	return r.InputTokens + r.OutputTokens
}

// Prompt is one question belonging to a run.
type Prompt struct {
	PromptID   uuid.UUID         `json:"prompt_id"`
	RunID      uuid.UUID         `json:"run_id"`
	Text       string            `json:"text"`
	CategoryID *string           `json:"category_id,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	IsActive   bool              `json:"is_active"`
	CreatedAt  time.Time         `json:"created_at"`
}

// Category returns the prompt's category or the reserved uncategorized bucket.
func (p *Prompt) Category() string {
	if p.CategoryID == nil || *p.CategoryID == "" {
		return UncategorizedCategory
	}
	return *p.CategoryID
}

// Override is a human-supplied replacement ranking. The original ranking of
// the outcome is never modified.
type Override struct {
	OverrideID    uuid.UUID  `json:"override_id"`
	OutcomeID     uuid.UUID  `json:"outcome_id"`
	Ranking       Ranking    `json:"ranking"`
	BrandPosition *int       `json:"brand_position,omitempty"`
	Score         float64    `json:"score"`
	Reason        string     `json:"reason,omitempty"`
	AppliedBy     string     `json:"applied_by,omitempty"`
	Active        bool       `json:"active"`
	CreatedAt     time.Time  `json:"created_at"`
	RevertedAt    *time.Time `json:"reverted_at,omitempty"`
}

// PromptOutcome is the extraction result for one prompt of a run.
type PromptOutcome struct {
	OutcomeID     uuid.UUID       `json:"outcome_id"`
	RunID         uuid.UUID       `json:"run_id"`
	PromptID      uuid.UUID       `json:"prompt_id"`
	CategoryID    string          `json:"category_id"`
	Ranking       Ranking         `json:"ranking"`
	Flags         ExtractionFlags `json:"flags"`
	BrandPosition *int            `json:"brand_position,omitempty"`
	Score         float64         `json:"score"`
	RawText       string          `json:"raw_text"`
	Truncated     bool            `json:"truncated"`
	Model         string          `json:"model"`
	InputTokens   int             `json:"input_tokens"`
	OutputTokens  int             `json:"output_tokens"`
	Cost          float64         `json:"cost"`
	Override      *Override       `json:"override,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// EffectiveRanking is the override ranking when one is active, otherwise the
// original ranking.
func (o *PromptOutcome) EffectiveRanking() Ranking {
	if o.Override != nil && o.Override.Active {
		return o.Override.Ranking
	}
	return o.Ranking
}

// EffectiveScore is the score that feeds the composite.
func (o *PromptOutcome) EffectiveScore() float64 {
	if o.Override != nil && o.Override.Active {
		return o.Override.Score
	}
	return o.Score
}

// CompositeScore is the materialized index of a run.
type CompositeScore struct {
	RunID         uuid.UUID          `json:"run_id"`
	Overall       float64            `json:"overall"`
	ByCategory    map[string]float64 `json:"by_category"`
	PromptCount   int                `json:"prompt_count"`
	OverrideCount int                `json:"override_count"`
	ComputedAt    time.Time          `json:"computed_at"`
}

// Usage is the accounting accumulated across completion calls.
type Usage struct {
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	TotalCost    float64 `json:"total_cost"`
}

// TokensUsed is the sum of input and output tokens.
func (u Usage) TokensUsed() int {
	return u.InputTokens + u.OutputTokens
}
