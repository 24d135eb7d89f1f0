// Command music-commander is a thin dispatcher wiring the cache,
// search, checker, encoder, orchestrator, and view packages to a
// flag-based CLI: it carries no business logic beyond argument
// plumbing and exit-code translation.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/poelzi/music-commander/internal/annexrepo"
	"github.com/poelzi/music-commander/internal/cachebuilder"
	"github.com/poelzi/music-commander/internal/cachestore"
	"github.com/poelzi/music-commander/internal/checker"
	"github.com/poelzi/music-commander/internal/config"
	"github.com/poelzi/music-commander/internal/encoder"
	"github.com/poelzi/music-commander/internal/orchestrator"
	"github.com/poelzi/music-commander/internal/search"
	"github.com/poelzi/music-commander/internal/view"
)

// Exit codes shared across commands, per the report/exit-code contract.
const (
	exitOK             = 0
	exitPartialFailure = 1
	exitCacheOrParse   = 2
	exitRepoInvalid    = 3
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		usage()
		return exitRepoInvalid
	}

	cfg, err := config.Load("")
	if err != nil {
		log.Printf("config: %v", err)
		return exitCacheOrParse
	}

	switch args[0] {
	case "cache":
		return runCache(cfg, args[1:])
	case "search":
		return runSearch(cfg, args[1:])
	case "check":
		return runCheck(cfg, args[1:])
	case "export":
		return runExport(cfg, args[1:])
	case "view":
		return runView(cfg, args[1:])
	default:
		usage()
		return exitRepoInvalid
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: music-commander <cache build|cache refresh|search|check|export|view> [flags]")
}

func openStore(repoRoot string) (*cachestore.Store, error) {
	return cachestore.Open(cachestore.DefaultPath(repoRoot))
}

func runCache(cfg config.Config, args []string) int {
	if len(args) == 0 {
		usage()
		return exitRepoInvalid
	}
	sub := args[0]

	fs := flag.NewFlagSet("cache", flag.ExitOnError)
	repo := fs.String("repo", cfg.RepoRoot, "git-annex repository root")
	fs.Parse(args[1:])

	store, err := openStore(*repo)
	if err != nil {
		log.Printf("cache: open store: %v", err)
		return exitCacheOrParse
	}
	defer store.Close()

	gitRepo := annexrepo.NewGitRepository(*repo)
	builder := cachebuilder.New(gitRepo, store)

	ctx := signalContext()
	var count int
	switch sub {
	case "build":
		count, err = builder.Build(ctx)
	case "refresh":
		count, err = builder.Refresh(ctx)
	default:
		usage()
		return exitRepoInvalid
	}
	if err != nil {
		log.Printf("cache %s: %v", sub, err)
		return exitCacheOrParse
	}
	fmt.Printf("cache %s: %d tracks\n", sub, count)
	return exitOK
}

func runSearch(cfg config.Config, args []string) int {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	repo := fs.String("repo", cfg.RepoRoot, "git-annex repository root")
	sortKey := fs.String("sort", "", "override sort field")
	fs.Parse(args)

	if fs.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "search: missing query")
		return exitRepoInvalid
	}
	queryText := fs.Arg(0)

	q, err := search.Parse(queryText)
	if err != nil {
		log.Printf("search: parse query: %v", err)
		return exitCacheOrParse
	}

	store, err := openStore(*repo)
	if err != nil {
		log.Printf("search: open store: %v", err)
		return exitCacheOrParse
	}
	defer store.Close()

	tracks, err := search.Eval(store.DB(), q, search.EvalOptions{SortKey: *sortKey})
	if err != nil {
		log.Printf("search: eval: %v", err)
		return exitCacheOrParse
	}

	for _, t := range tracks {
		fmt.Printf("%s\t%s - %s\n", t.File.String, t.Artist.String, t.Title.String)
	}
	return exitOK
}

func runCheck(cfg config.Config, args []string) int {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	repo := fs.String("repo", cfg.RepoRoot, "git-annex repository root")
	jobs := fs.Int("jobs", cfg.Jobs, "concurrent worker count")
	reportPath := fs.String("report", "", "report output path (default: <report-dir>/check-<run-id>.json)")
	continueFrom := fs.String("continue-from", "", "previous report to carry forward ok/warning results from")
	flacMultichannel := fs.Bool("flac-multichannel-check", cfg.FlacMultichannelCheck, "run the auxiliary FLAC multichannel STREAMINFO check")
	fs.Parse(args)

	paths := fs.Args()
	if len(paths) == 0 {
		fmt.Fprintln(os.Stderr, "check: no files given")
		return exitRepoInvalid
	}
	for i, p := range paths {
		if !filepath.IsAbs(p) {
			paths[i] = filepath.Join(*repo, p)
		}
	}

	carried, err := carriedResults(*continueFrom)
	if err != nil {
		log.Printf("check: read previous report: %v", err)
		return exitCacheOrParse
	}

	runID := orchestrator.NewRunID()
	out := *reportPath
	if out == "" {
		out = orchestrator.ReportPath(cfg.ReportDir, "check", runID)
	}
	if err := os.MkdirAll(filepath.Dir(out), 0755); err != nil {
		log.Printf("check: create report dir: %v", err)
		return exitCacheOrParse
	}

	metrics := orchestrator.NewMetrics()
	ctx := signalContext()
	report, cancelled := orchestrator.RunCheck(ctx, paths, carried, orchestrator.RunOptions{
		RepoRoot:               *repo,
		Jobs:                   *jobs,
		ProcessStartsPerSecond: cfg.ProcessStartsPerSecond,
		CheckerTimeout:         cfg.CheckerTimeout,
		FlacMultichannelCheck:  *flacMultichannel,
		ProgressOut:            os.Stderr,
		Metrics:                metrics,
		Arguments:              args,
	})

	if err := orchestrator.WriteReport(out, report, orchestrator.WriteOptions{
		Compress:         cfg.CompressReports,
		CompressMinBytes: cfg.CompressReportsMinBytes,
	}); err != nil {
		log.Printf("check: write report: %v", err)
		return exitCacheOrParse
	}

	fmt.Printf("checked %d files: %+v\n", report.Summary.Total, report.Summary)
	if len(cancelled) > 0 {
		log.Printf("check: cancelled before completion, %d file(s) never started; partial report written to %s", len(cancelled), out)
		return exitPartialFailure
	}
	if report.Summary.Error > 0 {
		return exitPartialFailure
	}
	return exitOK
}

func runExport(cfg config.Config, args []string) int {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	repo := fs.String("repo", cfg.RepoRoot, "git-annex repository root")
	jobs := fs.Int("jobs", cfg.Jobs, "concurrent worker count")
	outDir := fs.String("out", "", "output directory")
	presetName := fs.String("preset", cfg.DefaultExportPreset, "export preset name")
	force := fs.Bool("force", false, "re-encode even if output is up to date")
	reportPath := fs.String("report", "", "report output path")
	fs.Parse(args)

	preset, ok := encoder.Presets[*presetName]
	if !ok {
		fmt.Fprintf(os.Stderr, "export: unknown preset %q\n", *presetName)
		return exitRepoInvalid
	}
	if *outDir == "" {
		fmt.Fprintln(os.Stderr, "export: -out is required")
		return exitRepoInvalid
	}

	paths := fs.Args()
	if len(paths) == 0 {
		fmt.Fprintln(os.Stderr, "export: no files given")
		return exitRepoInvalid
	}
	for i, p := range paths {
		if !filepath.IsAbs(p) {
			paths[i] = filepath.Join(*repo, p)
		}
	}

	runID := orchestrator.NewRunID()
	out := *reportPath
	if out == "" {
		out = orchestrator.ReportPath(cfg.ReportDir, "export", runID)
	}
	if err := os.MkdirAll(filepath.Dir(out), 0755); err != nil {
		log.Printf("export: create report dir: %v", err)
		return exitCacheOrParse
	}

	metrics := orchestrator.NewMetrics()
	ctx := signalContext()
	report, cancelled := orchestrator.RunExport(ctx, paths, *outDir, preset, *force, orchestrator.RunOptions{
		RepoRoot:               *repo,
		Jobs:                   *jobs,
		ProcessStartsPerSecond: cfg.ProcessStartsPerSecond,
		EncoderTimeout:         0,
		ProgressOut:            os.Stderr,
		Metrics:                metrics,
		Arguments:              args,
	})

	if err := orchestrator.WriteReport(out, report, orchestrator.WriteOptions{
		Compress:         cfg.CompressReports,
		CompressMinBytes: cfg.CompressReportsMinBytes,
	}); err != nil {
		log.Printf("export: write report: %v", err)
		return exitCacheOrParse
	}

	fmt.Printf("exported %d files: %+v\n", report.Summary.Total, report.Summary)
	if len(cancelled) > 0 {
		log.Printf("export: cancelled before completion, %d file(s) never started; partial report written to %s", len(cancelled), out)
		return exitPartialFailure
	}
	if report.Summary.Error > 0 {
		return exitPartialFailure
	}
	return exitOK
}

func runView(cfg config.Config, args []string) int {
	fs := flag.NewFlagSet("view", flag.ExitOnError)
	repo := fs.String("repo", cfg.RepoRoot, "git-annex repository root")
	queryText := fs.String("query", "", "search query selecting tracks to project")
	pattern := fs.String("template", "{{.Artist}}/{{.Title}}", "output path template")
	outDir := fs.String("out", "", "symlink tree output directory (mutually exclusive with -mount)")
	mount := fs.String("mount", cfg.FUSEMountPoint, "FUSE mount point (mutually exclusive with -out)")
	absolute := fs.Bool("absolute", false, "use absolute symlink targets")
	fs.Parse(args)

	q, err := search.Parse(*queryText)
	if err != nil {
		log.Printf("view: parse query: %v", err)
		return exitCacheOrParse
	}

	store, err := openStore(*repo)
	if err != nil {
		log.Printf("view: open store: %v", err)
		return exitCacheOrParse
	}
	defer store.Close()

	tracks, err := search.Eval(store.DB(), q, search.EvalOptions{})
	if err != nil {
		log.Printf("view: eval: %v", err)
		return exitCacheOrParse
	}

	keys := make([]string, len(tracks))
	for i, t := range tracks {
		keys[i] = t.Key
	}
	crates, err := store.LoadCrates(keys)
	if err != nil {
		log.Printf("view: load crates: %v", err)
		return exitCacheOrParse
	}

	entries := view.BuildEntries(tracks, crates, *pattern, *repo)

	switch {
	case *outDir != "":
		created, err := view.Materialize(entries, *outDir, view.MaterializeOptions{Absolute: *absolute})
		if err != nil {
			log.Printf("view: materialize: %v", err)
			return exitCacheOrParse
		}
		fmt.Printf("created %d symlinks\n", created)
		return exitOK
	case *mount != "":
		if err := view.Mount(*mount, entries, false); err != nil {
			log.Printf("view: mount: %v", err)
			return exitCacheOrParse
		}
		return exitOK
	default:
		fmt.Fprintln(os.Stderr, "view: one of -out or -mount is required")
		return exitRepoInvalid
	}
}

func carriedResults(previousReportPath string) (map[string]checker.Result, error) {
	if previousReportPath == "" {
		return nil, nil
	}
	return orchestrator.ReadPreviousCheckReport(previousReportPath)
}

func signalContext() context.Context {
	ctx, _ := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	return ctx
}
