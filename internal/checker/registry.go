package checker

import "strings"

// FileArgPosition controls where the target file path is inserted
// into a CheckerSpec's argv.
type FileArgPosition int

const (
	// ArgAppend appends the file path as the last argument.
	ArgAppend FileArgPosition = iota
	// ArgMiddle inserts the file path at FileArgIndex, followed by
	// TrailingArgs.
	ArgMiddle
)

// CheckerSpec names one external tool invocation and how to parse its
// outcome.
type CheckerSpec struct {
	Name         string
	Argv         []string
	Position     FileArgPosition
	FileArgIndex int
	TrailingArgs []string
	Parse        func(exitCode int, stdout, stderr string) ToolResult
}

// BuildArgv renders the full argv for invoking this spec against file.
func (s CheckerSpec) BuildArgv(file string) (name string, args []string) {
	argv := append([]string(nil), s.Argv...)
	switch s.Position {
	case ArgMiddle:
		idx := s.FileArgIndex
		if idx > len(argv) {
			idx = len(argv)
		}
		argv = append(argv[:idx:idx], append([]string{file}, argv[idx:]...)...)
		argv = append(argv, s.TrailingArgs...)
	default:
		argv = append(argv, file)
	}
	return argv[0], argv[1:]
}

// Group is the set of checkers for one file category, plus an
// optional in-process validator; when set, it is used instead of
// external tools.
type Group struct {
	Specs             []CheckerSpec
	InternalValidator func(path string) (ToolResult, error)
}

func (g Group) hasInternalValidator() bool {
	return g.InternalValidator != nil
}

func parseExitOnly(tool string) func(int, string, string) ToolResult {
	return func(exitCode int, stdout, stderr string) ToolResult {
		return ToolResult{Tool: tool, Success: exitCode == 0, ExitCode: exitCode, Output: stderr}
	}
}

func parseMP3Val(exitCode int, stdout, stderr string) ToolResult {
	hasProblems := false
	for _, line := range strings.Split(stdout, "\n") {
		if strings.HasPrefix(line, "WARNING") || strings.HasPrefix(line, "PROBLEM") {
			hasProblems = true
			break
		}
	}
	return ToolResult{Tool: "mp3val", Success: !hasProblems, ExitCode: exitCode, Output: stdout}
}

func parseFFmpeg(exitCode int, stdout, stderr string) ToolResult {
	return ToolResult{
		Tool:     "ffmpeg",
		Success:  exitCode == 0 && strings.TrimSpace(stderr) == "",
		ExitCode: exitCode,
		Output:   stderr,
	}
}

func parseShntool(exitCode int, stdout, stderr string) ToolResult {
	hasProblems := false
	for _, line := range strings.Split(stdout, "\n") {
		lower := strings.ToLower(line)
		if strings.Contains(lower, "problems") || strings.TrimSpace(line) == "---" || strings.TrimSpace(line) == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 5 {
			continue
		}
		problems := fields[4]
		if problems != "-" && strings.ContainsAny(problems, "tijah") {
			hasProblems = true
			break
		}
	}
	return ToolResult{Tool: "shntool", Success: !hasProblems && exitCode == 0, ExitCode: exitCode, Output: stdout}
}

func parseOgginfo(exitCode int, stdout, stderr string) ToolResult {
	return ToolResult{Tool: "ogginfo", Success: exitCode == 0, ExitCode: exitCode, Output: stdout + stderr}
}

var ffmpegMiddle = CheckerSpec{
	Name:         "ffmpeg",
	Argv:         []string{"ffmpeg", "-v", "error", "-i"},
	Position:     ArgMiddle,
	FileArgIndex: 4,
	TrailingArgs: []string{"-f", "null", "-"},
	Parse:        parseFFmpeg,
}

var soxMiddle = CheckerSpec{
	Name:         "sox",
	Argv:         []string{"sox"},
	Position:     ArgMiddle,
	FileArgIndex: 1,
	TrailingArgs: []string{"-n", "stat"},
	Parse:        parseExitOnly("sox"),
}

// Registry maps a lowercased extension (with leading dot) to its
// checker group.
var Registry = map[string]Group{
	".flac": {Specs: []CheckerSpec{{
		Name:     "flac",
		Argv:     []string{"flac", "-t", "-s", "-w"},
		Position: ArgAppend,
		Parse:    parseExitOnly("flac"),
	}}},
	".mp3": {Specs: []CheckerSpec{
		{Name: "mp3val", Argv: []string{"mp3val"}, Position: ArgAppend, Parse: parseMP3Val},
		ffmpegMiddle,
	}},
	".ogg": {Specs: []CheckerSpec{
		{Name: "ogginfo", Argv: []string{"ogginfo"}, Position: ArgAppend, Parse: parseOgginfo},
		ffmpegMiddle,
	}},
	".wav": {Specs: []CheckerSpec{
		{Name: "shntool", Argv: []string{"shntool", "len"}, Position: ArgAppend, Parse: parseShntool},
		soxMiddle,
	}},
	".aiff": {Specs: []CheckerSpec{soxMiddle}},
	".aif":  {Specs: []CheckerSpec{soxMiddle}},
	".m4a":  {Specs: []CheckerSpec{ffmpegMiddle}},
	".cue":  {InternalValidator: validateCueFile},
}

// ffmpegFallback is used for unknown extensions that sniffFile
// classifies as audio without naming a registered extension.
var ffmpegFallback = Group{Specs: []CheckerSpec{ffmpegMiddle}}

// GroupForExtension returns the registered group for ext (the zero
// Group if none), and whether one was found.
func GroupForExtension(ext string) (Group, bool) {
	g, ok := Registry[strings.ToLower(ext)]
	return g, ok
}
