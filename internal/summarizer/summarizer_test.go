package summarizer

import "testing"

func TestSplitSummaryAndFacts(t *testing.T) {
	text := "Talked about the Q3 budget and agreed to follow up Friday.\n" +
		`{"facts": {"preferred_meeting_day": "Friday"}}`
	summary, facts := splitSummaryAndFacts(text)
	if summary != "Talked about the Q3 budget and agreed to follow up Friday." {
		t.Fatalf("summary = %q", summary)
	}
	if facts["preferred_meeting_day"] != "Friday" {
		t.Fatalf("facts = %v", facts)
	}
}

func TestSplitSummaryAndFactsNoTrailingJSON(t *testing.T) {
	text := "Just a short chat, nothing durable came up."
	summary, facts := splitSummaryAndFacts(text)
	if summary != text {
		t.Fatalf("summary = %q, want unchanged text", summary)
	}
	if facts != nil {
		t.Fatalf("facts = %v, want nil", facts)
	}
}

func TestSplitSummaryAndFactsEmptyFacts(t *testing.T) {
	text := "Routine check-in.\n{\"facts\": {}}"
	summary, facts := splitSummaryAndFacts(text)
	if summary != "Routine check-in." {
		t.Fatalf("summary = %q", summary)
	}
	if len(facts) != 0 {
		t.Fatalf("facts = %v, want empty", facts)
	}
}
