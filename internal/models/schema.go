package models

import (
	"github.com/invopop/jsonschema"
)

// OutcomeAuditRecord is everything needed to replay how an outcome
// contributed to its run's composite.
type OutcomeAuditRecord struct {
	SchemaVersion   int              `json:"schema_version" jsonschema_description:"Version of the audit record layout"`
	OutcomeID       string           `json:"outcome_id"`
	RunID           string           `json:"run_id"`
	PromptID        string           `json:"prompt_id"`
	CategoryID      string           `json:"category_id"`
	OriginalRanking RankingDocument  `json:"original_ranking" jsonschema_description:"Ranking produced by extraction, never modified"`
	OverrideRanking *RankingDocument `json:"override_ranking,omitempty" jsonschema_description:"Active human override, when present"`
	Flags           ExtractionFlags  `json:"flags"`
	OriginalScore   float64          `json:"original_score" jsonschema:"minimum=0,maximum=1"`
	EffectiveScore  float64          `json:"effective_score" jsonschema:"minimum=0,maximum=1"`
	RawText         string           `json:"raw_text" jsonschema_description:"Stored reply text, possibly truncated"`
	Truncated       bool             `json:"truncated"`
}

// NewOutcomeAuditRecord builds the audit view of an outcome.
func NewOutcomeAuditRecord(o *PromptOutcome) OutcomeAuditRecord {
	record := OutcomeAuditRecord{
		SchemaVersion:   CurrentSchemaVersion,
		OutcomeID:       o.OutcomeID.String(),
		RunID:           o.RunID.String(),
		PromptID:        o.PromptID.String(),
		CategoryID:      o.CategoryID,
		OriginalRanking: RankingDocument{SchemaVersion: CurrentSchemaVersion, Entries: nonNilEntries(o.Ranking)},
		Flags:           o.Flags,
		OriginalScore:   o.Score,
		EffectiveScore:  o.EffectiveScore(),
		RawText:         o.RawText,
		Truncated:       o.Truncated,
	}
	if o.Override != nil && o.Override.Active {
		record.OverrideRanking = &RankingDocument{SchemaVersion: CurrentSchemaVersion, Entries: nonNilEntries(o.Override.Ranking)}
	}
	return record
}

func nonNilEntries(r Ranking) []RankEntry {
	if r == nil {
		return []RankEntry{}
	}
	return []RankEntry(r)
}

// GenerateSchema reflects a JSON schema for T without $ref indirection.
func GenerateSchema[T any]() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	return reflector.Reflect(v)
}

// OutcomeAuditSchema is the published schema of OutcomeAuditRecord.
var OutcomeAuditSchema = GenerateSchema[OutcomeAuditRecord]()
