package engine

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/wesleyorama2/squall/internal/bench"
	"github.com/wesleyorama2/squall/internal/bench/scoreboard"
)

// Report contains the complete results of a run.
type Report struct {
	RunID       string       `json:"runId"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Timing      bench.Timing `json:"timing"`
	EndTime     time.Time    `json:"endTime"`

	Targets []TargetReport `json:"targets"`

	// Global merges the final cards of every target
	Global scoreboard.CardStatistics `json:"global"`

	// Aggregations merges the final cards per aggregation id
	Aggregations []scoreboard.CardStatistics `json:"aggregations,omitempty"`

	Errors []string `json:"errors,omitempty"`
}

// TargetReport contains the results of one target.
type TargetReport struct {
	Name               string `json:"name"`
	Generator          string `json:"generator"`
	AggregationID      string `json:"aggregationId,omitempty"`
	Agents             int    `json:"agents"`
	OperationsIssued   int64  `json:"operationsIssued"`
	GeneratorErrors    int64  `json:"generatorErrors"`
	LoadCycles         int64  `json:"loadCycles"`
	InvalidDefinitions int64  `json:"invalidDefinitions"`
	AsyncSubmitted     int64  `json:"asyncSubmitted"`
	AsyncRejected      int64  `json:"asyncRejected"`

	Statistics scoreboard.TargetStatistics `json:"statistics"`
}

// Target returns the report of the named target, or nil.
func (r *Report) Target(name string) *TargetReport {
	for i := range r.Targets {
		if r.Targets[i].Name == name {
			return &r.Targets[i]
		}
	}
	return nil
}

// WriteJSON writes the report as indented JSON to path.
func (r *Report) WriteJSON(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}
