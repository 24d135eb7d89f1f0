package encoder

import (
	"os"
	"path/filepath"
	"strings"
)

// CanCopy reports whether source matches preset closely enough for a
// plain stream copy: codec-equivalent and every constrained parameter
// (sample rate, bit depth, channel count) already satisfied.
func CanCopy(source SourceInfo, preset Preset) bool {
	equivalents, ok := codecCompat[preset.Codec]
	if !ok || !equivalents[source.CodecName] {
		return false
	}
	if preset.SampleRate != 0 && source.SampleRate != preset.SampleRate {
		return false
	}
	if preset.BitDepth != 0 && source.BitDepth != preset.BitDepth {
		return false
	}
	if preset.Channels != 0 && source.Channels != preset.Channels {
		return false
	}
	return true
}

// Decision is the outcome of applying the lossy→lossless guard and
// stream-copy decision to one (source, preset) pair.
type Decision struct {
	Preset     Preset
	StreamCopy bool
}

// Decide resolves the preset actually used and whether the output can
// be produced by stream copy instead of re-encoding.
func Decide(source SourceInfo, requested Preset) Decision {
	if lossyCodecs[source.CodecName] && losslessCodecs[requested.Codec] {
		if fallback := streamCopyFallback(source.CodecName); fallback != nil {
			return Decision{Preset: *fallback, StreamCopy: true}
		}
		return Decision{Preset: requested, StreamCopy: true}
	}

	if CanCopy(source, requested) {
		return Decision{Preset: requested, StreamCopy: true}
	}

	return Decision{Preset: requested, StreamCopy: false}
}

var coverArtCandidates = []string{
	"cover.jpg", "cover.png",
	"folder.jpg", "folder.png",
	"front.jpg", "front.png",
}

// FindCoverArt looks for a sibling cover image next to sourcePath in
// the fixed priority order: cover, folder, then front.
func FindCoverArt(sourcePath string) (string, bool) {
	dir := filepath.Dir(sourcePath)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", false
	}
	byLowerName := make(map[string]string, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		byLowerName[strings.ToLower(e.Name())] = e.Name()
	}
	for _, candidate := range coverArtCandidates {
		if name, ok := byLowerName[candidate]; ok {
			return filepath.Join(dir, name), true
		}
	}
	return "", false
}

// ShouldSkip reports whether the encoder should skip re-producing
// targetPath: it already exists, its mtime is at least as new as
// sourcePath's, and the caller has not forced a rebuild.
func ShouldSkip(sourcePath, targetPath string, force bool) bool {
	if force {
		return false
	}
	srcInfo, err := os.Stat(sourcePath)
	if err != nil {
		return false
	}
	dstInfo, err := os.Stat(targetPath)
	if err != nil {
		return false
	}
	return !dstInfo.ModTime().Before(srcInfo.ModTime())
}
