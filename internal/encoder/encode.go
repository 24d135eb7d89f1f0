package encoder

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Status is the outcome of one Encode call.
type Status string

const (
	StatusOK         Status = "ok"
	StatusCopied     Status = "copied"
	StatusSkipped    Status = "skipped"
	StatusError      Status = "error"
	StatusNotPresent Status = "not_present"
)

// Result is the outcome of encoding one file.
type Result struct {
	SourcePath string
	OutputPath string
	Status     Status
	Error      string
}

// Options configures one Encode call.
type Options struct {
	Force   bool
	Timeout time.Duration // default 10 minutes, matching the original tool's subprocess timeout
	Limiter *rate.Limiter
	// ExtraMetadata is written as ffmpeg -metadata key=value pairs,
	// e.g. {"comment": releaseURL}.
	ExtraMetadata map[string]string
}

func (o Options) timeout() time.Duration {
	if o.Timeout <= 0 {
		return 10 * time.Minute
	}
	return o.Timeout
}

// Encode transcodes (or stream-copies) sourcePath into outputDir using
// preset, following the lossy-guard/stream-copy/cover-art/incremental-
// skip/atomic-write pipeline.
func Encode(ctx context.Context, sourcePath, outputDir string, preset Preset, opts Options) Result {
	if _, err := os.Stat(sourcePath); err != nil {
		return Result{SourcePath: sourcePath, Status: StatusNotPresent}
	}

	source, err := ProbeSource(ctx, sourcePath)
	if err != nil {
		return Result{SourcePath: sourcePath, Status: StatusError, Error: err.Error()}
	}

	decision := Decide(source, preset)
	actualPreset := decision.Preset

	outputName := strings.TrimSuffix(filepath.Base(sourcePath), filepath.Ext(sourcePath)) + actualPreset.Container
	outputPath := filepath.Join(outputDir, outputName)

	if ShouldSkip(sourcePath, outputPath, opts.Force) {
		return Result{SourcePath: sourcePath, OutputPath: outputPath, Status: StatusSkipped}
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return Result{SourcePath: sourcePath, Status: StatusError, Error: err.Error()}
	}

	var coverPath string
	var haveCover bool
	if actualPreset.SupportsCoverArt {
		coverPath, haveCover = FindCoverArt(sourcePath)
	}

	tempPath := outputPath + ".tmp"
	args := buildFFmpegArgs(sourcePath, tempPath, actualPreset, source, coverPath, haveCover, decision.StreamCopy, opts.ExtraMetadata)

	if opts.Limiter != nil {
		if err := opts.Limiter.Wait(ctx); err != nil {
			return Result{SourcePath: sourcePath, Status: StatusError, Error: err.Error()}
		}
	}

	runCtx, cancel := context.WithTimeout(ctx, opts.timeout())
	defer cancel()

	cmd := exec.CommandContext(runCtx, "ffmpeg", args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		os.Remove(tempPath)
		msg := strings.ToValidUTF8(stderr.String(), "�")
		if len(msg) > 500 {
			msg = msg[:500]
		}
		return Result{SourcePath: sourcePath, Status: StatusError, Error: msg}
	}

	if err := os.Rename(tempPath, outputPath); err != nil {
		os.Remove(tempPath)
		return Result{SourcePath: sourcePath, Status: StatusError, Error: err.Error()}
	}

	for _, post := range actualPreset.PostCommands {
		if err := runPostCommand(ctx, post, outputPath); err != nil {
			return Result{SourcePath: sourcePath, OutputPath: outputPath, Status: StatusError, Error: err.Error()}
		}
	}

	status := StatusOK
	if decision.StreamCopy {
		status = StatusCopied
	}
	return Result{SourcePath: sourcePath, OutputPath: outputPath, Status: status}
}

func buildFFmpegArgs(sourcePath, tempPath string, preset Preset, source SourceInfo, coverPath string, haveCover, streamCopy bool, extraMetadata map[string]string) []string {
	args := []string{"-y", "-i", sourcePath}

	if haveCover {
		args = append(args, "-i", coverPath, "-map", "0:a", "-map", "1:0", "-disposition:v:0", "attached_pic")
	} else if source.HasCoverArt {
		args = append(args, "-map", "0")
	} else {
		args = append(args, "-map", "0:a")
	}

	if streamCopy {
		args = append(args, "-c:a", "copy")
	} else {
		args = append(args, "-c:a", preset.Codec)
		args = append(args, preset.FFmpegArgs...)
	}

	for key, value := range extraMetadata {
		args = append(args, "-metadata", fmt.Sprintf("%s=%s", key, value))
	}

	return append(args, tempPath)
}

func runPostCommand(ctx context.Context, argv []string, file string) error {
	if len(argv) == 0 {
		return nil
	}
	args := append(append([]string(nil), argv[1:]...), file)
	cmd := exec.CommandContext(ctx, argv[0], args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("encoder: post command %s: %w: %s", argv[0], err, stderr.String())
	}
	return nil
}
