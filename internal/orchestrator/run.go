package orchestrator

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/poelzi/music-commander/internal/checker"
	"github.com/poelzi/music-commander/internal/encoder"
	"github.com/poelzi/music-commander/internal/toolhealth"
)

// RunOptions configures a check or export run.
type RunOptions struct {
	RepoRoot               string
	Jobs                   int
	ProcessStartsPerSecond float64
	CheckerTimeout         time.Duration
	EncoderTimeout         time.Duration
	FlacMultichannelCheck  bool
	ProgressOut            io.Writer // nil disables progress rendering
	Metrics                *Metrics  // nil disables instrumentation
	Arguments              []string  // recorded verbatim in the report envelope
}

func (o RunOptions) limiter() *rate.Limiter {
	rps := o.ProcessStartsPerSecond
	if rps <= 0 {
		rps = 8.0
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

func (o RunOptions) jobs() int {
	if o.Jobs < 1 {
		return 1
	}
	return o.Jobs
}

// checkJob adapts one file's checker.CheckFile call to the Job interface.
type checkJob struct {
	path    string
	tools   *toolhealth.Checker
	opts    checker.Options
	metrics *Metrics
}

func (j checkJob) Run(ctx context.Context) JobResult {
	if j.metrics != nil {
		j.metrics.InFlight.Inc()
		defer j.metrics.InFlight.Dec()
	}
	start := time.Now()
	result, err := checker.CheckFile(ctx, j.tools, j.path, j.opts)
	if err != nil {
		result = checker.Result{File: j.path, Status: checker.StatusError, Errors: []checker.ToolResult{{Tool: "checker", Output: err.Error()}}}
	}
	if j.metrics != nil {
		j.metrics.Observe(string(result.Status), time.Since(start))
	}
	return JobResult{Status: string(result.Status), Payload: result}
}

// RunCheck checks every path in paths using up to opts.Jobs concurrent
// workers, skipping any path already carried forward in previous (continue
// mode), and returns the completed (possibly partial) report along with the
// paths abandoned because ctx was cancelled before they ever started. A
// cancelled run still returns a fully-formed report built from whatever
// results were actually collected, mirroring check.py's behavior of
// re-raising KeyboardInterrupt after writing a partial report rather than
// silently reporting success. Callers must check len(cancelled) > 0 (or
// ctx.Err()) to distinguish a cancelled run from a clean one: for every
// call, len(report.Results)+len(cancelled) == len(paths). previous may be
// nil.
func RunCheck(ctx context.Context, paths []string, previous map[string]checker.Result, opts RunOptions) (report CheckReport, cancelled []string) {
	started := time.Now()
	tools := toolhealth.NewChecker()
	limiter := opts.limiter()
	checkerOpts := checker.Options{
		RepoRoot:              opts.RepoRoot,
		Timeout:               opts.CheckerTimeout,
		Limiter:               limiter,
		FlacMultichannelCheck: opts.FlacMultichannelCheck,
	}

	var toRun []string
	results := make([]checker.Result, 0, len(paths))
	for _, p := range paths {
		rel := relOrSelf(opts.RepoRoot, p)
		if carried, ok := previous[rel]; ok {
			results = append(results, carried)
			continue
		}
		toRun = append(toRun, p)
	}

	jobs := make([]Job, len(toRun))
	for i, p := range toRun {
		jobs[i] = checkJob{path: p, tools: tools, opts: checkerOpts, metrics: opts.Metrics}
	}

	progress := newProgressOrNil(opts.ProgressOut, len(jobs))
	if progress != nil {
		progress.Start()
	}

	pool := Pool{Workers: opts.jobs()}
	_, abandoned := pool.Run(ctx, jobs, func(_ int, r JobResult) {
		results = append(results, r.Payload.(checker.Result))
		if progress != nil {
			progress.Advance(r.Status)
		}
	})
	for _, idx := range abandoned {
		cancelled = append(cancelled, toRun[idx])
	}

	report = CheckReport{
		Envelope: Envelope{
			Version:         1,
			Timestamp:       started.UTC().Format(time.RFC3339),
			DurationSeconds: time.Since(started).Seconds(),
			Repository:      opts.RepoRoot,
			Arguments:       opts.Arguments,
		},
		Summary: SummarizeCheck(results),
		Results: results,
	}
	return report, cancelled
}

// exportJob adapts one file's encoder.Encode call to the Job interface.
type exportJob struct {
	sourcePath string
	outputDir  string
	preset     encoder.Preset
	opts       encoder.Options
	metrics    *Metrics
}

func (j exportJob) Run(ctx context.Context) JobResult {
	if j.metrics != nil {
		j.metrics.InFlight.Inc()
		defer j.metrics.InFlight.Dec()
	}
	start := time.Now()
	result := encoder.Encode(ctx, j.sourcePath, j.outputDir, j.preset, j.opts)
	dur := time.Since(start)
	if j.metrics != nil {
		j.metrics.Observe(string(result.Status), dur)
	}
	action := "reencode"
	if result.Status == encoder.StatusCopied {
		action = "stream_copy"
	} else if result.Status == encoder.StatusSkipped {
		action = "skip"
	}
	entry := ExportResultEntry{
		Source:          j.sourcePath,
		Output:          result.OutputPath,
		Status:          string(result.Status),
		Preset:          j.preset.Name,
		Action:          action,
		DurationSeconds: dur.Seconds(),
		ErrorMessage:    result.Error,
	}
	return JobResult{Status: string(result.Status), Payload: entry}
}

// RunExport exports every path in paths into outputDir with preset, using
// up to opts.Jobs concurrent workers. Like RunCheck, it returns the
// completed (possibly partial) report together with the source paths
// abandoned because ctx was cancelled before they started running, so
// len(report.Results)+len(cancelled) == len(paths) always holds.
func RunExport(ctx context.Context, paths []string, outputDir string, preset encoder.Preset, force bool, opts RunOptions) (report ExportReport, cancelled []string) {
	started := time.Now()
	limiter := opts.limiter()
	encoderOpts := encoder.Options{Force: force, Timeout: opts.EncoderTimeout, Limiter: limiter}

	jobs := make([]Job, len(paths))
	for i, p := range paths {
		jobs[i] = exportJob{sourcePath: p, outputDir: outputDir, preset: preset, opts: encoderOpts, metrics: opts.Metrics}
	}

	progress := newProgressOrNil(opts.ProgressOut, len(jobs))
	if progress != nil {
		progress.Start()
	}

	results := make([]ExportResultEntry, 0, len(jobs))
	pool := Pool{Workers: opts.jobs()}
	_, abandoned := pool.Run(ctx, jobs, func(_ int, r JobResult) {
		results = append(results, r.Payload.(ExportResultEntry))
		if progress != nil {
			progress.Advance(r.Status)
		}
	})
	for _, idx := range abandoned {
		cancelled = append(cancelled, paths[idx])
	}

	report = ExportReport{
		Envelope: Envelope{
			Version:         1,
			Timestamp:       started.UTC().Format(time.RFC3339),
			DurationSeconds: time.Since(started).Seconds(),
			Repository:      opts.RepoRoot,
			Arguments:       opts.Arguments,
		},
		Summary: SummarizeExport(results),
		Results: results,
	}
	return report, cancelled
}

// NewRunID mints a correlation identifier for one orchestrator run,
// used in the default report file name (see ReportPath).
func NewRunID() string {
	return uuid.NewString()
}

// ReportPath builds the default report path for a run: reportDir/
// <kind>-<runID>.json, e.g. "reports/check-<uuid>.json".
func ReportPath(reportDir, kind, runID string) string {
	return filepath.Join(reportDir, fmt.Sprintf("%s-%s.json", kind, runID))
}

func relOrSelf(root, path string) string {
	if root == "" {
		return path
	}
	if rel, err := filepath.Rel(root, path); err == nil {
		return rel
	}
	return path
}

func newProgressOrNil(out io.Writer, total int) *Progress {
	if out == nil || total == 0 {
		return nil
	}
	return NewProgress(out, total)
}
