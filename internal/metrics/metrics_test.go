package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestOutcome(t *testing.T) {
	if got := Outcome(nil); got != "success" {
		t.Fatalf("Outcome(nil) = %q, want success", got)
	}
	if got := Outcome(errors.New("boom")); got != "error" {
		t.Fatalf("Outcome(err) = %q, want error", got)
	}
}

func TestFetchesCounter(t *testing.T) {
	before := testutil.ToFloat64(Fetches.WithLabelValues("cameras", "success"))
	Fetches.WithLabelValues("cameras", Outcome(nil)).Inc()
	after := testutil.ToFloat64(Fetches.WithLabelValues("cameras", "success"))
	if after-before != 1 {
		t.Fatalf("cameras/success delta = %v, want 1", after-before)
	}
}
