package orchestrator

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/poelzi/music-commander/internal/checker"
)

func TestSummarizeCheck_countsPerStatus(t *testing.T) {
	results := []checker.Result{
		{Status: checker.StatusOK},
		{Status: checker.StatusOK},
		{Status: checker.StatusWarning},
		{Status: checker.StatusError},
		{Status: checker.StatusNotPresent},
		{Status: checker.StatusCheckerMissing},
		{Status: checker.StatusSkipped},
	}
	s := SummarizeCheck(results)
	if s.Total != 7 || s.OK != 2 || s.Warning != 1 || s.Error != 1 || s.NotPresent != 1 || s.CheckerMissing != 1 || s.Skipped != 1 {
		t.Fatalf("unexpected summary: %+v", s)
	}
}

func TestSummarizeExport_countsPerStatus(t *testing.T) {
	results := []ExportResultEntry{
		{Status: "ok"}, {Status: "copied"}, {Status: "skipped"}, {Status: "error"}, {Status: "not_present"},
	}
	s := SummarizeExport(results)
	if s.Total != 5 || s.OK != 1 || s.Copied != 1 || s.Skipped != 1 || s.Error != 1 || s.NotPresent != 1 {
		t.Fatalf("unexpected summary: %+v", s)
	}
}

func TestWriteReport_atomicWriteAndReadback(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "check.json")

	report := CheckReport{
		Envelope: Envelope{Version: 1, Repository: "/music"},
		Summary:  CheckSummary{Total: 1, OK: 1},
		Results:  []checker.Result{{File: "a.flac", Status: checker.StatusOK}},
	}

	if err := WriteReport(path, report, WriteOptions{}); err != nil {
		t.Fatalf("WriteReport: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.Contains(e.Name(), ".tmp") {
			t.Fatalf("leftover temp file: %s", e.Name())
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var got CheckReport
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if got.Summary.OK != 1 || len(got.Results) != 1 {
		t.Fatalf("roundtrip mismatch: %+v", got)
	}
}

func TestWriteReport_compressesAboveThreshold(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "check.json")

	results := make([]checker.Result, 0, 200)
	for i := 0; i < 200; i++ {
		results = append(results, checker.Result{File: "track.flac", Status: checker.StatusOK, Tools: []string{"flac"}})
	}
	report := CheckReport{Envelope: Envelope{Version: 1}, Results: results}

	if err := WriteReport(path, report, WriteOptions{Compress: true, CompressMinBytes: 100}); err != nil {
		t.Fatalf("WriteReport: %v", err)
	}
	if _, err := os.Stat(path + ".br"); err != nil {
		t.Fatalf("expected compressed sibling, stat error: %v", err)
	}
}

func TestWriteReport_skipsCompressionBelowThreshold(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "check.json")
	report := CheckReport{Envelope: Envelope{Version: 1}}

	if err := WriteReport(path, report, WriteOptions{Compress: true, CompressMinBytes: 1 << 20}); err != nil {
		t.Fatalf("WriteReport: %v", err)
	}
	if _, err := os.Stat(path + ".br"); !os.IsNotExist(err) {
		t.Fatalf("expected no compressed sibling below threshold, err = %v", err)
	}
}

func TestReadPreviousCheckReport_carriesForwardOKAndWarningOnly(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "previous.json")
	report := CheckReport{
		Results: []checker.Result{
			{File: "good.flac", Status: checker.StatusOK},
			{File: "warn.flac", Status: checker.StatusWarning},
			{File: "bad.flac", Status: checker.StatusError},
			{File: "missing.flac", Status: checker.StatusNotPresent},
		},
	}
	data, _ := json.Marshal(report)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}

	carried, err := ReadPreviousCheckReport(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(carried) != 2 {
		t.Fatalf("carried = %d entries, want 2: %+v", len(carried), carried)
	}
	if _, ok := carried["good.flac"]; !ok {
		t.Fatal("expected good.flac carried forward")
	}
	if _, ok := carried["warn.flac"]; !ok {
		t.Fatal("expected warn.flac carried forward")
	}
	if _, ok := carried["bad.flac"]; ok {
		t.Fatal("bad.flac should not be carried forward")
	}
}

func TestReadPreviousCheckReport_missingFileYieldsEmptyMap(t *testing.T) {
	carried, err := ReadPreviousCheckReport(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatal(err)
	}
	if len(carried) != 0 {
		t.Fatalf("expected empty map, got %+v", carried)
	}
}
