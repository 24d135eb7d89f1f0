// Package encoder implements the export/transcode pipeline: probing a
// source file, deciding whether it can be stream-copied, rendering
// and sanitizing output paths, and invoking ffmpeg to produce the
// final file via a temp-then-rename write.
package encoder

// Preset names an output target for the encoder pipeline. Fields
// mirror the original tool's FormatPreset one-for-one.
type Preset struct {
	Name               string
	Codec              string // ffmpeg -codec:a value
	Container          string // e.g. ".mp3", ".flac"
	FFmpegArgs         []string
	SampleRate         int // 0 = preserve source
	BitDepth           int // 0 = preserve source
	Channels           int // 0 = preserve source
	PostCommands       [][]string
	SupportsCoverArt   bool
}

var (
	MP3_320 = Preset{
		Name:             "mp3-320",
		Codec:            "libmp3lame",
		Container:        ".mp3",
		FFmpegArgs:       []string{"-b:a", "320k", "-id3v2_version", "3"},
		SupportsCoverArt: true,
	}
	MP3_V0 = Preset{
		Name:             "mp3-v0",
		Codec:            "libmp3lame",
		Container:        ".mp3",
		FFmpegArgs:       []string{"-q:a", "0", "-id3v2_version", "3"},
		SupportsCoverArt: true,
	}
	FLAC = Preset{
		Name:             "flac",
		Codec:            "flac",
		Container:        ".flac",
		FFmpegArgs:       []string{"-compression_level", "8"},
		SupportsCoverArt: true,
	}
	FLACPioneer = Preset{
		Name:             "flac-pioneer",
		Codec:            "flac",
		Container:        ".flac",
		FFmpegArgs:       []string{"-sample_fmt", "s16", "-ar", "44100", "-ac", "2", "-compression_level", "8"},
		SampleRate:       44100,
		BitDepth:         16,
		Channels:         2,
		PostCommands:     [][]string{{"metaflac", "--remove-tag=WAVEFORMATEXTENSIBLE_CHANNEL_MASK"}},
		SupportsCoverArt: true,
	}
	AIFF = Preset{
		Name:             "aiff",
		Codec:            "pcm_s16be",
		Container:        ".aiff",
		FFmpegArgs:       []string{"-write_id3v2", "1"},
		SupportsCoverArt: true,
	}
	AIFFPioneer = Preset{
		Name:             "aiff-pioneer",
		Codec:            "pcm_s16be",
		Container:        ".aiff",
		FFmpegArgs:       []string{"-ar", "44100", "-ac", "2", "-write_id3v2", "1"},
		SampleRate:       44100,
		BitDepth:         16,
		Channels:         2,
		SupportsCoverArt: true,
	}
	WAV = Preset{
		Name:             "wav",
		Codec:            "pcm_s16le",
		Container:        ".wav",
		FFmpegArgs:       []string{"-rf64", "auto"},
		SupportsCoverArt: false,
	}
	WAVPioneer = Preset{
		Name:             "wav-pioneer",
		Codec:            "pcm_s16le",
		Container:        ".wav",
		FFmpegArgs:       []string{"-ar", "44100", "-ac", "2", "-rf64", "auto"},
		SampleRate:       44100,
		BitDepth:         16,
		Channels:         2,
		SupportsCoverArt: false,
	}
)

// Presets is the named registry of all built-in presets.
var Presets = map[string]Preset{
	"mp3-320":      MP3_320,
	"mp3-v0":       MP3_V0,
	"flac":         FLAC,
	"flac-pioneer": FLACPioneer,
	"aiff":         AIFF,
	"aiff-pioneer": AIFFPioneer,
	"wav":          WAV,
	"wav-pioneer":  WAVPioneer,
}

// codecCompat maps an encoder codec to the ffprobe codec names it is
// considered equivalent to, for the stream-copy decision.
var codecCompat = map[string]map[string]bool{
	"libmp3lame": {"mp3": true},
	"flac":       {"flac": true},
	"pcm_s16be":  {"pcm_s16be": true, "pcm_s24be": true},
	"pcm_s16le":  {"pcm_s16le": true, "pcm_s24le": true},
}

// lossyCodecs should never be upconverted to a lossless preset.
var lossyCodecs = map[string]bool{
	"mp3": true, "aac": true, "vorbis": true, "opus": true, "wma": true, "wmav2": true,
}

var losslessCodecs = map[string]bool{
	"flac": true, "pcm_s16be": true, "pcm_s16le": true, "pcm_s24be": true, "pcm_s24le": true,
}

// streamCopyFallback returns a preset matching sourceCodec for
// stream-copying a lossy source instead of upconverting it, or nil if
// no built-in preset matches that codec.
func streamCopyFallback(sourceCodec string) *Preset {
	switch sourceCodec {
	case "mp3":
		p := MP3_320
		return &p
	case "flac":
		p := FLAC
		return &p
	}
	return nil
}
