package checker

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/poelzi/music-commander/internal/toolhealth"
)

// Options configures one CheckFile invocation.
type Options struct {
	RepoRoot              string
	Timeout               time.Duration // per-tool bound, at least 5 minutes
	Limiter               *rate.Limiter // process-start throttle, may be nil
	FlacMultichannelCheck bool
}

func (o Options) timeout() time.Duration {
	if o.Timeout < 5*time.Minute {
		return 5 * time.Minute
	}
	return o.Timeout
}

// CheckFile resolves a checker group for absPath and runs it,
// returning the aggregated Result.
func CheckFile(ctx context.Context, tools *toolhealth.Checker, absPath string, opts Options) (Result, error) {
	relPath := absPath
	if opts.RepoRoot != "" {
		if rel, err := filepath.Rel(opts.RepoRoot, absPath); err == nil {
			relPath = rel
		}
	}

	info, err := os.Stat(absPath)
	if err != nil || info.IsDir() {
		return Result{File: relPath, Status: StatusNotPresent}, nil
	}

	ext := strings.ToLower(filepath.Ext(absPath))
	group, ok := GroupForExtension(ext)
	resolvedExt := ext
	if !ok {
		sniffed, isAudio, err := sniffFile(absPath)
		if err != nil {
			return Result{}, err
		}
		switch {
		case sniffed != "":
			group, _ = GroupForExtension(sniffed)
			resolvedExt = sniffed
		case isAudio:
			group = ffmpegFallback
		default:
			return Result{File: relPath, Status: StatusSkipped}, nil
		}
	}

	if group.hasInternalValidator() {
		result, err := group.InternalValidator(absPath)
		if err != nil {
			return Result{}, fmt.Errorf("checker: internal validator: %w", err)
		}
		res := Result{File: relPath, Status: StatusOK, Tools: []string{result.Tool}}
		if !result.Success {
			res.Status = StatusError
			res.Errors = []ToolResult{result}
		}
		return res, nil
	}

	var missing []string
	var available []CheckerSpec
	for _, spec := range group.Specs {
		if tools.Available(spec.Argv[0]) {
			available = append(available, spec)
		} else {
			missing = append(missing, spec.Argv[0])
		}
	}

	if len(available) == 0 {
		sort.Strings(missing)
		return Result{File: relPath, Status: StatusCheckerMissing, Tools: uniqueSorted(missing)}, nil
	}

	var usedTools []string
	var errors, warnings []ToolResult
	for _, spec := range available {
		if opts.Limiter != nil {
			if err := opts.Limiter.Wait(ctx); err != nil {
				return Result{}, fmt.Errorf("checker: rate limiter: %w", err)
			}
		}
		result := runTool(ctx, spec, absPath, opts)
		usedTools = append(usedTools, spec.Name)
		if !result.Success {
			errors = append(errors, result)
		}
	}

	if resolvedExt == ".flac" && opts.FlacMultichannelCheck {
		if warning, triggered := checkFlacMultichannel(absPath); triggered {
			warnings = append(warnings, warning)
		}
	}

	status := StatusOK
	if len(errors) > 0 {
		status = StatusError
	} else if len(warnings) > 0 {
		status = StatusWarning
	}

	return Result{
		File:     relPath,
		Status:   status,
		Tools:    usedTools,
		Errors:   errors,
		Warnings: warnings,
	}, nil
}

func runTool(ctx context.Context, spec CheckerSpec, file string, opts Options) ToolResult {
	runCtx, cancel := context.WithTimeout(ctx, opts.timeout())
	defer cancel()

	name, args := spec.BuildArgv(file)
	cmd := exec.CommandContext(runCtx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if runCtx.Err() != nil {
		return ToolResult{
			Tool:     spec.Name,
			Success:  false,
			ExitCode: -1,
			Output:   fmt.Sprintf("checker timed out after %s", opts.timeout()),
		}
	}

	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return ToolResult{
				Tool:     spec.Name,
				Success:  false,
				ExitCode: -1,
				Output:   fmt.Sprintf("exception running checker: %v", err),
			}
		}
	}

	return spec.Parse(exitCode, replaceInvalidUTF8(stdout.String()), replaceInvalidUTF8(stderr.String()))
}

func replaceInvalidUTF8(s string) string {
	return strings.ToValidUTF8(s, "�")
}

func sniffFile(path string) (ext string, isAudio bool, err error) {
	f, err := os.Open(path)
	if err != nil {
		return "", false, fmt.Errorf("checker: sniff open: %w", err)
	}
	defer f.Close()

	buf := make([]byte, sniffWindow)
	n, _ := f.Read(buf)
	sniffedExt, audio := sniffExtension(buf[:n])
	return sniffedExt, audio, nil
}

func uniqueSorted(items []string) []string {
	set := make(map[string]struct{}, len(items))
	for _, item := range items {
		set[item] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for item := range set {
		out = append(out, item)
	}
	sort.Strings(out)
	return out
}
