package encoder

import "testing"

func TestRenderPath_basicSubstitution(t *testing.T) {
	got := RenderPath("{{.Artist}}/{{.Album}}", map[string]any{"Artist": "Radiohead", "Album": "OK Computer"})
	want := "Radiohead/OK Computer"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestRenderPath_roundToHelper(t *testing.T) {
	got := RenderPath("{{roundTo .BPM 5}}", map[string]any{"BPM": 123.0})
	if got != "125" {
		t.Fatalf("got %q, want 125", got)
	}
}

func TestRenderPath_missingFieldFallsBack(t *testing.T) {
	got := RenderPath("{{.Missing}}", map[string]any{"Artist": "Radiohead", "Title": "Airbag"})
	if got != "Radiohead - Airbag" {
		t.Fatalf("got %q", got)
	}
}

func TestRenderPath_malformedTemplateFallsBackToUnknown(t *testing.T) {
	got := RenderPath("{{.Artist", map[string]any{})
	if got != "Unknown" {
		t.Fatalf("got %q, want Unknown", got)
	}
}

func TestSanitizePath_replacesForbiddenChars(t *testing.T) {
	got := SanitizePath(`Artist?/Album:Name`)
	if got == "" {
		t.Fatal("expected non-empty sanitized path")
	}
	for _, c := range []rune{'?', ':'} {
		for _, r := range got {
			if r == c {
				t.Fatalf("sanitized path %q still contains forbidden char %q", got, c)
			}
		}
	}
}

func TestSanitizePath_stripsLeadingTrailingDots(t *testing.T) {
	got := SanitizePath("...Artist...")
	if got != "Artist" {
		t.Fatalf("got %q, want Artist", got)
	}
}

func TestSanitizePath_emptyBecomesUnknown(t *testing.T) {
	got := SanitizePath("")
	if got != "Unknown" {
		t.Fatalf("got %q, want Unknown", got)
	}
}

func TestSanitizePath_truncatesLongSegment(t *testing.T) {
	long := ""
	for i := 0; i < 300; i++ {
		long += "a"
	}
	got := SanitizePath(long)
	if len(got) > 255 {
		t.Fatalf("sanitized segment length = %d, want <=255", len(got))
	}
}

func TestDedup_firstUseUnchanged(t *testing.T) {
	seen := map[string]bool{}
	got := Dedup(seen, "Artist/Track.flac")
	if got != "Artist/Track.flac" {
		t.Fatalf("got %q", got)
	}
}

func TestDedup_appendsSuffixOnCollision(t *testing.T) {
	seen := map[string]bool{}
	first := Dedup(seen, "Artist/Track.flac")
	second := Dedup(seen, "Artist/Track.flac")
	if first == second {
		t.Fatalf("expected distinct paths, got %q twice", first)
	}
	if second != "Artist/Track_1.flac" {
		t.Fatalf("second = %q, want Artist/Track_1.flac", second)
	}
	third := Dedup(seen, "Artist/Track.flac")
	if third != "Artist/Track_2.flac" {
		t.Fatalf("third = %q, want Artist/Track_2.flac", third)
	}
}
