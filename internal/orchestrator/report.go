package orchestrator

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/andybalholm/brotli"

	"github.com/poelzi/music-commander/internal/checker"
	"github.com/poelzi/music-commander/internal/encoder"
)

// CheckSummary tallies per-status counts across a check run, matching
// the wire-visible report envelope's "summary" object.
type CheckSummary struct {
	Total          int `json:"total"`
	OK             int `json:"ok"`
	Warning        int `json:"warning"`
	Error          int `json:"error"`
	NotPresent     int `json:"not_present"`
	CheckerMissing int `json:"checker_missing"`
	Skipped        int `json:"skipped"`
}

// ExportSummary tallies per-status counts across an export run.
type ExportSummary struct {
	Total      int `json:"total"`
	OK         int `json:"ok"`
	Copied     int `json:"copied"`
	Skipped    int `json:"skipped"`
	Error      int `json:"error"`
	NotPresent int `json:"not_present"`
}

// Envelope is the common report header shared by check and export
// reports: version, timestamp, duration, repository, and arguments.
type Envelope struct {
	Version         int      `json:"version"`
	Timestamp       string   `json:"timestamp"`
	DurationSeconds float64  `json:"duration_seconds"`
	Repository      string   `json:"repository"`
	Arguments       []string `json:"arguments"`
}

// CheckReport is the full on-disk shape written by a check run.
type CheckReport struct {
	Envelope
	Summary CheckSummary     `json:"summary"`
	Results []checker.Result `json:"results"`
}

// ExportResultEntry is one file's export outcome as recorded in the
// export report, carrying the preset name and action alongside the
// encoder.Result fields.
type ExportResultEntry struct {
	Source          string  `json:"source"`
	Output          string  `json:"output"`
	Status          string  `json:"status"`
	Preset          string  `json:"preset"`
	Action          string  `json:"action"`
	DurationSeconds float64 `json:"duration_seconds"`
	ErrorMessage    string  `json:"error_message,omitempty"`
}

// ExportReport is the full on-disk shape written by an export run.
type ExportReport struct {
	Envelope
	Summary ExportSummary       `json:"summary"`
	Results []ExportResultEntry `json:"results"`
}

// SummarizeCheck builds a CheckSummary over results.
func SummarizeCheck(results []checker.Result) CheckSummary {
	var s CheckSummary
	for _, r := range results {
		s.Total++
		switch r.Status {
		case checker.StatusOK:
			s.OK++
		case checker.StatusWarning:
			s.Warning++
		case checker.StatusError:
			s.Error++
		case checker.StatusNotPresent:
			s.NotPresent++
		case checker.StatusCheckerMissing:
			s.CheckerMissing++
		case checker.StatusSkipped:
			s.Skipped++
		}
	}
	return s
}

// SummarizeExport builds an ExportSummary over results.
func SummarizeExport(results []ExportResultEntry) ExportSummary {
	var s ExportSummary
	for _, r := range results {
		s.Total++
		switch encoder.Status(r.Status) {
		case encoder.StatusOK:
			s.OK++
		case encoder.StatusCopied:
			s.Copied++
		case encoder.StatusSkipped:
			s.Skipped++
		case encoder.StatusError:
			s.Error++
		case encoder.StatusNotPresent:
			s.NotPresent++
		}
	}
	return s
}

// WriteOptions controls atomic report writing, grounded in
// utils/checkers.py's write_report (temp file in the same directory,
// then rename over the final path).
type WriteOptions struct {
	Compress         bool
	CompressMinBytes int64
}

// WriteReport serializes report as indented JSON to path atomically:
// it writes to a temp file in path's directory, then renames over
// path. When opts.Compress is set and the encoded report is at least
// opts.CompressMinBytes, a "<path>.br" brotli-compressed sibling is
// written the same way.
func WriteReport(path string, report any, opts WriteOptions) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("orchestrator: marshal report: %w", err)
	}

	if err := writeAtomic(path, data); err != nil {
		return err
	}

	if opts.Compress && int64(len(data)) >= opts.CompressMinBytes {
		var buf bytes.Buffer
		w := brotli.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return fmt.Errorf("orchestrator: brotli compress report: %w", err)
		}
		if err := w.Close(); err != nil {
			return fmt.Errorf("orchestrator: brotli close: %w", err)
		}
		if err := writeAtomic(path+".br", buf.Bytes()); err != nil {
			return err
		}
	}
	return nil
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".report-*.tmp")
	if err != nil {
		return fmt.Errorf("orchestrator: create temp report file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("orchestrator: write temp report file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("orchestrator: close temp report file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("orchestrator: chmod temp report file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("orchestrator: rename report into place: %w", err)
	}
	return nil
}

// ReadPreviousCheckReport loads a prior check report for continue
// mode: files whose previous status was ok or warning are returned so
// the caller can skip re-running them; files with any other status
// (error, not_present, checker_missing, skipped) are left out, so they
// are re-checked. A missing or corrupt report yields an empty map,
// forcing a full re-check.
func ReadPreviousCheckReport(path string) (map[string]checker.Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]checker.Result{}, nil
		}
		return nil, fmt.Errorf("orchestrator: read previous report: %w", err)
	}

	var report CheckReport
	if err := json.Unmarshal(data, &report); err != nil {
		return map[string]checker.Result{}, nil
	}

	carried := make(map[string]checker.Result, len(report.Results))
	for _, r := range report.Results {
		if r.Status == checker.StatusOK || r.Status == checker.StatusWarning {
			carried[r.File] = r
		}
	}
	return carried, nil
}
