package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ProblemStatement is the investigator-supplied description of the incident.
type ProblemStatement struct {
	Title            string   `json:"title,omitempty"`
	Description      string   `json:"description"`
	AffectedServices []string `json:"affected_services,omitempty"`
	ReportedAt       string   `json:"reported_at,omitempty"`
}

// DataCollection is the DATA_COLLECTED section: one entry per collector source.
type DataCollection struct {
	Sources []CollectedDataEntry `json:"sources"`
}

// CollectedDataEntry is a collector's summary of one data source.
type CollectedDataEntry struct {
	SourceName string    `json:"source_name"`
	Summary    string    `json:"summary"`
	Count      int       `json:"count"`
	TimeRange  TimeRange `json:"time_range,omitempty"`
	Status     string    `json:"status,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// Succeeded reports whether the collector produced usable data.
func (e CollectedDataEntry) Succeeded() bool {
	return e.Error == "" && !strings.EqualFold(e.Status, "failed")
}

// rangeSeparator splits the start and end of a collection window.
const rangeSeparator = " - "

// TimeRange is a collection window rendered as "start - end". It decodes from
// either that string form or a two element JSON array.
type TimeRange string

// NewTimeRange joins start and end into a TimeRange.
func NewTimeRange(start, end string) TimeRange {
	return TimeRange(start + rangeSeparator + end)
}

// Start returns the text before the separator, or "" when the range has none.
func (r TimeRange) Start() (string, bool) {
	start, _, ok := strings.Cut(string(r), rangeSeparator)
	if !ok {
		return "", false
	}
	start = strings.TrimSpace(start)
	return start, start != ""
}

// UnmarshalJSON accepts "start - end" or ["start", "end"].
func (r *TimeRange) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" || trimmed == "" {
		*r = ""
		return nil
	}
	if strings.HasPrefix(trimmed, "[") {
		var pair []string
		if err := json.Unmarshal(data, &pair); err != nil {
			return fmt.Errorf("time_range: %w", err)
		}
		if len(pair) != 2 {
			return fmt.Errorf("time_range: expected 2 timestamps, got %d", len(pair))
		}
		*r = NewTimeRange(pair[0], pair[1])
		return nil
	}
	var text string
	if err := json.Unmarshal(data, &text); err != nil {
		return fmt.Errorf("time_range: %w", err)
	}
	*r = TimeRange(text)
	return nil
}

// CodeInspection is the optional CODE_INSPECTION section.
type CodeInspection struct {
	Findings []CodeInspectionFinding `json:"findings"`
}

// CodeInspectionFinding is one suspect location reported by code inspection.
type CodeInspectionFinding struct {
	File     string   `json:"file"`
	Line     int      `json:"line"`
	Function string   `json:"function"`
	Analysis string   `json:"analysis"`
	GitBlame GitBlame `json:"git_blame"`
}

// Location renders the finding as file:line.
func (f CodeInspectionFinding) Location() string {
	return fmt.Sprintf("%s:%d", f.File, f.Line)
}

// GitBlame captures the last change touching a suspect line.
type GitBlame struct {
	Commit  string `json:"commit,omitempty"`
	Author  string `json:"author,omitempty"`
	Date    string `json:"date,omitempty"`
	Message string `json:"message,omitempty"`
}

// InvestigationRequest seeds a new investigation scratchpad.
type InvestigationRequest struct {
	InvestigationID string           `json:"investigation_id,omitempty"`
	Problem         ProblemStatement `json:"problem"`
	Data            DataCollection   `json:"data"`
	CodeInspection  *CodeInspection  `json:"code_inspection,omitempty"`
}

// InvestigationResult is returned once both stages have run.
type InvestigationResult struct {
	InvestigationID string          `json:"investigation_id"`
	Patterns        PatternAnalysis `json:"pattern_analysis"`
	Diagnosis       Diagnosis       `json:"diagnosis"`
}
