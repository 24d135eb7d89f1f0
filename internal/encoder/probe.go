package encoder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// SourceInfo is the probed parameters of a source audio file.
type SourceInfo struct {
	CodecName    string
	SampleRate   int
	BitDepth     int
	Channels     int
	HasCoverArt  bool
}

var sampleFmtBitDepth = map[string]int{
	"s16": 16, "s16p": 16,
	"s24": 24, "s24p": 24,
	"s32": 32, "s32p": 32,
	"flt": 32, "fltp": 32,
}

type ffprobeStream struct {
	CodecName         string `json:"codec_name"`
	BitsPerRawSample  string `json:"bits_per_raw_sample"`
	SampleFmt         string `json:"sample_fmt"`
	SampleRate        string `json:"sample_rate"`
	Channels          int    `json:"channels"`
}

type ffprobeOutput struct {
	Streams []ffprobeStream `json:"streams"`
}

// ProbeSource runs ffprobe against path and returns its audio stream
// parameters plus whether an embedded video (cover art) stream exists.
func ProbeSource(ctx context.Context, path string) (SourceInfo, error) {
	audioCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	audioOut, err := runFFprobe(audioCtx, "-select_streams", "a:0",
		"-show_entries", "stream=codec_name,bits_per_raw_sample,sample_fmt,sample_rate,channels",
		"-print_format", "json", path)
	if err != nil {
		return SourceInfo{}, fmt.Errorf("encoder: ffprobe audio stream: %w", err)
	}

	var parsed ffprobeOutput
	if err := json.Unmarshal(audioOut, &parsed); err != nil || len(parsed.Streams) == 0 {
		return SourceInfo{}, fmt.Errorf("encoder: parse ffprobe output: %w", err)
	}
	stream := parsed.Streams[0]

	sampleRate, _ := strconv.Atoi(stream.SampleRate)

	bitDepth := 16
	if raw, err := strconv.Atoi(stream.BitsPerRawSample); err == nil && raw > 0 {
		bitDepth = raw
	} else if d, ok := sampleFmtBitDepth[stream.SampleFmt]; ok {
		bitDepth = d
	}

	videoCtx, cancel2 := context.WithTimeout(ctx, 30*time.Second)
	defer cancel2()
	videoOut, err := runFFprobe(videoCtx, "-select_streams", "v",
		"-show_entries", "stream=codec_name", "-of", "csv=p=0", path)
	hasCoverArt := err == nil && strings.TrimSpace(string(videoOut)) != ""

	return SourceInfo{
		CodecName:   stream.CodecName,
		SampleRate:  sampleRate,
		BitDepth:    bitDepth,
		Channels:    stream.Channels,
		HasCoverArt: hasCoverArt,
	}, nil
}

func runFFprobe(ctx context.Context, args ...string) ([]byte, error) {
	full := append([]string{"-v", "quiet"}, args...)
	cmd := exec.CommandContext(ctx, "ffprobe", full...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%w: %s", err, stderr.String())
	}
	return stdout.Bytes(), nil
}
