package runtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/pithecene-io/juicer/metrics"
)

// RunReport is the structured JSON report written by --report.
type RunReport struct {
	RunID      string  `json:"run_id"`
	Transport  string  `json:"transport"`
	StartedAt  string  `json:"started_at"`
	Outcome    Outcome `json:"outcome"`
	Message    string  `json:"message,omitempty"`
	ExitCode   int     `json:"exit_code"`
	DurationMs int64   `json:"duration_ms"`

	Routed  *ReportRouting    `json:"routed"`
	Metrics *metrics.Snapshot `json:"metrics"`
}

// ReportRouting summarizes what reached the tracker.
type ReportRouting struct {
	Requests  int64 `json:"requests"`
	Responses int64 `json:"responses"`
	Stale     int64 `json:"stale"`
	Failed    int64 `json:"failed"`
}

// BuildRunReport composes a RunReport from a Result.
// The exitCode is the process exit code that will be returned to the caller.
func BuildRunReport(result *Result, exitCode int) *RunReport {
	snap := result.Metrics
	return &RunReport{
		RunID:      result.RunID,
		Transport:  string(result.Transport),
		StartedAt:  result.StartedAt.UTC().Format(time.RFC3339Nano),
		Outcome:    result.Outcome,
		Message:    result.Message,
		ExitCode:   exitCode,
		DurationMs: result.Duration.Milliseconds(),
		Routed: &ReportRouting{
			Requests:  snap.RequestsRouted,
			Responses: snap.ResponsesRouted,
			Stale:     snap.StaleDiscarded,
			Failed:    snap.RuleErrors,
		},
		Metrics: &snap,
	}
}

// WriteRunReport writes the report as JSON to the specified path.
// If path is "-", writes to stderr.
func WriteRunReport(report *RunReport, path string) error {
	if path == "" {
		return errors.New("report path must not be empty")
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	data = append(data, '\n')

	if path == "-" {
		_, err = os.Stderr.Write(data)
		if err != nil {
			return fmt.Errorf("failed to write report to stderr: %w", err)
		}
		return nil
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write report to %s: %w", path, err)
	}
	return nil
}

// writeRunReportTo writes report JSON to any writer (for testing).
func writeRunReportTo(report *RunReport, w io.Writer) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}
