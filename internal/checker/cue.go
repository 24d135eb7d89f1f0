package checker

import (
	"fmt"
	"os"
	"strings"
	"unicode/utf8"
)

// validateCueFile is the CUE sheet's internal validator: a valid cue
// sheet must declare at least one FILE and at least one TRACK
// directive. Decoding falls back to Latin-1 when the content is not
// valid UTF-8, since cue sheets in the wild are commonly hand-edited
// in legacy encodings.
func validateCueFile(path string) (ToolResult, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return ToolResult{}, fmt.Errorf("checker: read cue sheet: %w", err)
	}

	text := decodeCueText(raw)
	hasFile, hasTrack := false, false
	for _, line := range strings.Split(text, "\n") {
		fields := strings.Fields(strings.TrimSpace(line))
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "FILE":
			hasFile = true
		case "TRACK":
			hasTrack = true
		}
	}

	success := hasFile && hasTrack
	output := "ok"
	if !success {
		output = "cue sheet must contain at least one FILE and one TRACK directive"
	}
	exitCode := 0
	if !success {
		exitCode = 1
	}
	return ToolResult{Tool: "cue-validator", Success: success, ExitCode: exitCode, Output: output}, nil
}

func decodeCueText(raw []byte) string {
	if utf8.Valid(raw) {
		return string(raw)
	}
	runes := make([]rune, len(raw))
	for i, b := range raw {
		runes[i] = rune(b)
	}
	return string(runes)
}
