package encoder

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"text/template"
)

var forbiddenChars = regexp.MustCompile(`[<>:"|?*\x00-\x1f/\\]`)

// TemplateFuncs exposes the built-in helpers available to target-path
// templates, e.g. {{roundTo .BPM 5}}.
var TemplateFuncs = template.FuncMap{
	"roundTo": func(value float64, nearest int) int {
		if nearest <= 0 {
			return int(value)
		}
		return int(value/float64(nearest)+0.5) * nearest
	},
}

// RenderPath renders pattern against data, falling back to
// "Artist - Title" (or "Unknown" if those fields are absent) when the
// template itself is malformed or references an undefined field.
func RenderPath(pattern string, data map[string]any) string {
	tmpl, err := template.New("path").Funcs(TemplateFuncs).Option("missingkey=error").Parse(pattern)
	if err != nil {
		return renderFallback(data)
	}
	var sb strings.Builder
	if err := tmpl.Execute(&sb, data); err != nil {
		return renderFallback(data)
	}
	return sb.String()
}

func renderFallback(data map[string]any) string {
	artist, _ := data["Artist"].(string)
	title, _ := data["Title"].(string)
	if artist != "" && title != "" {
		return fmt.Sprintf("%s - %s", artist, title)
	}
	return "Unknown"
}

// SanitizePath splits rendered into path segments and sanitizes each:
// forbidden characters become '-', each segment is capped at 255
// bytes, leading/trailing dots and whitespace are stripped, and an
// empty result becomes "Unknown".
func SanitizePath(rendered string) string {
	parts := strings.Split(filepath.ToSlash(rendered), "/")
	var clean []string
	for _, part := range parts {
		s := sanitizeSegment(part)
		if s != "" {
			clean = append(clean, s)
		}
	}
	if len(clean) == 0 {
		return "Unknown"
	}
	return filepath.Join(clean...)
}

func sanitizeSegment(segment string) string {
	s := forbiddenChars.ReplaceAllString(segment, "-")
	s = strings.Trim(s, ". \t")
	if len(s) > 255 {
		s = s[:255]
	}
	if s == "" {
		return "Unknown"
	}
	return s
}

// Dedup returns path, or path with a "_N" suffix inserted before its
// extension, such that the result is not already present in seen.
// seen is mutated to record the returned path.
func Dedup(seen map[string]bool, path string) string {
	if !seen[path] {
		seen[path] = true
		return path
	}
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s_%d%s", base, i, ext)
		if !seen[candidate] {
			seen[candidate] = true
			return candidate
		}
	}
}
