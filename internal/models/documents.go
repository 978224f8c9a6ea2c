package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// CurrentSchemaVersion is written into every persisted ranking and flags
// document. Version 0 is the legacy bare-array ranking format.
const CurrentSchemaVersion = 1

var (
	ErrMalformedRanking         = errors.New("malformed ranking document")
	ErrMalformedFlags           = errors.New("malformed flags document")
	ErrUnsupportedSchemaVersion = errors.New("unsupported schema version")
)

// RankingDocument is the persisted form of a Ranking.
type RankingDocument struct {
	SchemaVersion int         `json:"schema_version" jsonschema:"minimum=0"`
	Entries       []RankEntry `json:"entries"`
}

// FlagsDocument is the persisted form of ExtractionFlags.
type FlagsDocument struct {
	SchemaVersion int             `json:"schema_version" jsonschema:"minimum=1"`
	Flags         ExtractionFlags `json:"flags"`
}

// EncodeRanking serializes r as a versioned document.
func EncodeRanking(r Ranking) ([]byte, error) {
	entries := []RankEntry(r)
	if entries == nil {
		entries = []RankEntry{}
	}
	return json.Marshal(RankingDocument{SchemaVersion: CurrentSchemaVersion, Entries: entries})
}

// DecodeRanking parses a stored ranking. Bare JSON arrays written before
// documents were versioned are accepted as version 0. Anything else that does
// not parse is a data-integrity error.
func DecodeRanking(data []byte) (Ranking, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty document", ErrMalformedRanking)
	}

	if trimmed[0] == '[' {
		var legacy []RankEntry
		if err := json.Unmarshal(trimmed, &legacy); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedRanking, err)
		}
		return validateStoredRanking(legacy)
	}

	if trimmed[0] != '{' {
		return nil, fmt.Errorf("%w: expected an object or array", ErrMalformedRanking)
	}

	// Pointers tell a missing or null field apart from its zero value.
	var doc struct {
		SchemaVersion *int         `json:"schema_version"`
		Entries       *[]RankEntry `json:"entries"`
	}
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRanking, err)
	}
	if doc.SchemaVersion == nil {
		return nil, fmt.Errorf("%w: missing schema_version", ErrMalformedRanking)
	}
	// Version 0 only exists as a bare array.
	if *doc.SchemaVersion != CurrentSchemaVersion {
		return nil, fmt.Errorf("%w: ranking version %d", ErrUnsupportedSchemaVersion, *doc.SchemaVersion)
	}
	if doc.Entries == nil {
		return nil, fmt.Errorf("%w: missing entries", ErrMalformedRanking)
	}
	return validateStoredRanking(*doc.Entries)
}

func validateStoredRanking(entries []RankEntry) (Ranking, error) {
	for i, e := range entries {
		if e.EntityName == "" {
			return nil, fmt.Errorf("%w: entry %d has no entity name", ErrMalformedRanking, i)
		}
		if !e.EntityKind.Valid() {
			return nil, fmt.Errorf("%w: entry %d has unknown kind %q", ErrMalformedRanking, i, e.EntityKind)
		}
		if e.Position < 1 {
			return nil, fmt.Errorf("%w: entry %d has position %d", ErrMalformedRanking, i, e.Position)
		}
	}
	return Ranking(entries), nil
}

// EncodeFlags serializes f as a versioned document.
func EncodeFlags(f ExtractionFlags) ([]byte, error) {
	return json.Marshal(FlagsDocument{SchemaVersion: CurrentSchemaVersion, Flags: f})
}

// DecodeFlags parses a stored flags document.
func DecodeFlags(data []byte) (ExtractionFlags, error) {
	var doc FlagsDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return ExtractionFlags{}, fmt.Errorf("%w: %v", ErrMalformedFlags, err)
	}
	if doc.SchemaVersion != CurrentSchemaVersion {
		return ExtractionFlags{}, fmt.Errorf("%w: flags version %d", ErrUnsupportedSchemaVersion, doc.SchemaVersion)
	}
	return doc.Flags, nil
}
