package checker

import (
	"bytes"
	"fmt"
	"os"
)

const flacChannelMaskTag = "WAVEFORMATEXTENSIBLE_CHANNEL_MASK"

// checkFlacMultichannel is the flac container's auxiliary check: a
// stereo FLAC whose Vorbis comments still carry a
// WAVEFORMATEXTENSIBLE_CHANNEL_MASK tag was likely ripped down from a
// multichannel master without clearing the mask, which some hardware
// players (Pioneer CDJs among them) refuse to play. It never affects
// the success/failure classification, only the warnings list.
func checkFlacMultichannel(path string) (ToolResult, bool) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return ToolResult{}, false
	}

	channels, ok := flacStreamInfoChannels(raw)
	if !ok || channels != 2 {
		return ToolResult{}, false
	}
	if !bytes.Contains(raw, []byte(flacChannelMaskTag)) {
		return ToolResult{}, false
	}

	return ToolResult{
		Tool:     "flac-multichannel-check",
		Success:  true,
		ExitCode: 0,
		Output:   fmt.Sprintf("stereo FLAC carries a %s tag; may be rejected by surround-aware hardware players", flacChannelMaskTag),
	}, true
}

// flacStreamInfoChannels reads the channel count out of the mandatory
// STREAMINFO metadata block that immediately follows the "fLaC"
// magic and its 4-byte block header.
func flacStreamInfoChannels(raw []byte) (int, bool) {
	const streamInfoOffset = 8 // 4-byte magic + 4-byte metadata block header
	if len(raw) < streamInfoOffset+18 || !bytes.HasPrefix(raw, []byte("fLaC")) {
		return 0, false
	}
	// Sample rate (20 bits), channels-1 (3 bits), bits-per-sample-1 (5
	// bits) and total samples (36 bits) start at offset+10 within
	// STREAMINFO (after min/max blocksize and min/max framesize).
	b := raw[streamInfoOffset+10 : streamInfoOffset+18]
	channels := int((b[2]>>1)&0x07) + 1
	return channels, true
}
