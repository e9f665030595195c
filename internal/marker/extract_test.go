package marker

import "testing"

func TestExtractAndStripZeroArity(t *testing.T) {
	matched, parseErrors, stripped := ExtractAndStrip("on my way\nHEARTBEAT_OK\nsee you soon")
	if len(parseErrors) != 0 {
		t.Fatalf("unexpected parse errors: %v", parseErrors)
	}
	if len(matched) != 1 || matched[0].Name != HeartbeatOK {
		t.Fatalf("expected one HEARTBEAT_OK match, got %+v", matched)
	}
	if stripped != "on my way\nsee you soon" {
		t.Fatalf("stripped text = %q", stripped)
	}
}

func TestExtractAndStripWithFields(t *testing.T) {
	text := "LESSON: billing | always confirm the invoice total before sending"
	matched, parseErrors, stripped := ExtractAndStrip(text)
	if len(parseErrors) != 0 {
		t.Fatalf("unexpected parse errors: %v", parseErrors)
	}
	if len(matched) != 1 {
		t.Fatalf("expected one match, got %d", len(matched))
	}
	got := matched[0]
	if got.Name != Lesson {
		t.Fatalf("name = %q, want LESSON", got.Name)
	}
	want := []string{"billing", "always confirm the invoice total before sending"}
	if len(got.Fields) != 2 || got.Fields[0] != want[0] || got.Fields[1] != want[1] {
		t.Fatalf("fields = %v, want %v", got.Fields, want)
	}
	if stripped != "" {
		t.Fatalf("stripped = %q, want empty", stripped)
	}
}

func TestExtractAndStripArityMismatchIsLeftInPlace(t *testing.T) {
	text := "CANCEL_TASK: abc123 | extra-field"
	matched, parseErrors, stripped := ExtractAndStrip(text)
	if len(matched) != 0 {
		t.Fatalf("expected no matches for arity mismatch, got %+v", matched)
	}
	if len(parseErrors) != 1 {
		t.Fatalf("expected one parse error, got %v", parseErrors)
	}
	if stripped != text {
		t.Fatalf("mismatched line should be left in place, got %q", stripped)
	}
}

func TestExtractAndStripCollapsesBlankLines(t *testing.T) {
	text := "first\nSCHEDULE: call mom | tomorrow 9am\n\nlast"
	_, _, stripped := ExtractAndStrip(text)
	if stripped != "first\n\nlast" {
		t.Fatalf("stripped = %q", stripped)
	}
}

func TestExtractAndStripOptionalArity(t *testing.T) {
	matched, parseErrors, _ := ExtractAndStrip("SCHEDULE: water plants | every day at 8am | daily")
	if len(parseErrors) != 0 {
		t.Fatalf("unexpected parse errors: %v", parseErrors)
	}
	if len(matched) != 1 || len(matched[0].Fields) != 3 {
		t.Fatalf("expected 3-field optional-arity match, got %+v", matched)
	}
}
