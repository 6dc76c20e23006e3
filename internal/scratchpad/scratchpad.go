package scratchpad

import (
	"context"
	"encoding/json"
	"fmt"
)

// Section names a slot of shared investigation state.
type Section string

const (
	ProblemDescription Section = "PROBLEM_DESCRIPTION"
	DataCollected      Section = "DATA_COLLECTED"
	PatternAnalysis    Section = "PATTERN_ANALYSIS"
	CodeInspection     Section = "CODE_INSPECTION"
	FinalDiagnosis     Section = "FINAL_DIAGNOSIS"
)

// Sections lists every known section in pipeline order.
var Sections = []Section{ProblemDescription, DataCollected, PatternAnalysis, CodeInspection, FinalDiagnosis}

// Valid reports whether s is a known section.
func (s Section) Valid() bool {
	for _, known := range Sections {
		if s == known {
			return true
		}
	}
	return false
}

// Scratchpad is the per-investigation shared state read and written by the stages.
// An absent section is reported with ok == false and a nil error.
type Scratchpad interface {
	ReadSection(ctx context.Context, section Section) (payload json.RawMessage, ok bool, err error)
	WriteSection(ctx context.Context, section Section, payload json.RawMessage) error
	// DeleteSection removes a section; deleting an absent section is not an error.
	DeleteSection(ctx context.Context, section Section) error
}

// Store hands out scratchpads keyed by investigation id.
type Store interface {
	Pad(investigationID string) Scratchpad
}

// Load reads and decodes a section into T.
func Load[T any](ctx context.Context, pad Scratchpad, section Section) (T, bool, error) {
	var value T
	payload, ok, err := pad.ReadSection(ctx, section)
	if err != nil || !ok {
		return value, false, err
	}
	if err := json.Unmarshal(payload, &value); err != nil {
		return value, false, fmt.Errorf("decode %s: %w", section, err)
	}
	return value, true, nil
}

// Save encodes value as JSON and writes it to section.
func Save(ctx context.Context, pad Scratchpad, section Section, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", section, err)
	}
	return pad.WriteSection(ctx, section, payload)
}
