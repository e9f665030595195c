package scheduler

import (
	"testing"
	"time"

	"github.com/nextlevelbuilder/omegagate/internal/store"
)

func TestParseActionOutcomeSuccess(t *testing.T) {
	text := "Paid the invoice via the billing portal.\nACTION_OUTCOME: success | Paid the electricity bill"
	success, summary, ok := parseActionOutcome(text)
	if !ok {
		t.Fatal("expected sentinel to parse")
	}
	if !success {
		t.Fatal("expected success=true")
	}
	if summary != "Paid the electricity bill" {
		t.Fatalf("summary = %q", summary)
	}
}

func TestParseActionOutcomeFailure(t *testing.T) {
	_, summary, ok := parseActionOutcome("ACTION_OUTCOME: failure | the portal was down")
	if !ok {
		t.Fatal("expected sentinel to parse")
	}
	if summary != "the portal was down" {
		t.Fatalf("summary = %q", summary)
	}
}

func TestParseActionOutcomeMissingSentinel(t *testing.T) {
	_, _, ok := parseActionOutcome("I did the thing, all good.")
	if ok {
		t.Fatal("expected ok=false with no sentinel present")
	}
}

func TestCronExprDaily(t *testing.T) {
	ref := time.Date(2026, 3, 5, 9, 30, 0, 0, time.UTC)
	expr, err := cronExpr(store.RepeatDaily, ref)
	if err != nil {
		t.Fatal(err)
	}
	if expr != "30 9 * * *" {
		t.Fatalf("expr = %q", expr)
	}
}

func TestCronExprWeekdays(t *testing.T) {
	ref := time.Date(2026, 3, 5, 8, 0, 0, 0, time.UTC)
	expr, err := cronExpr(store.RepeatWeekdays, ref)
	if err != nil {
		t.Fatal(err)
	}
	if expr != "0 8 * * 1-5" {
		t.Fatalf("expr = %q", expr)
	}
}

func TestCronExprUnsupportedRepeat(t *testing.T) {
	if _, err := cronExpr(store.RepeatOnce, time.Now()); err == nil {
		t.Fatal("expected an error for a non-repeating rule")
	}
}
