package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCountersExposed(t *testing.T) {
	m := New()
	m.ObserveTurn("anger")
	m.ObserveTurn("anger")
	m.ObserveGeneration("failed")
	m.ObserveOverride("angry-keyword")
	m.ObserveOverride("")
	m.ObserveClassification(20 * time.Millisecond)

	if got := testutil.ToFloat64(m.turns.WithLabelValues("anger")); got != 2 {
		t.Fatalf("expected 2 anger turns, got %v", got)
	}
	if got := testutil.CollectAndCount(m.overrides); got != 1 {
		t.Fatalf("expected a single override series, got %d", got)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `echosoul_reply_generations_total{outcome="failed"} 1`) {
		t.Fatalf("generation counter missing from exposition:\n%s", rec.Body.String())
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveTurn("joy")
	m.ObserveGeneration("ok")
	m.ObserveRecommendation("ok")
	m.ObserveClassification(time.Second)
}
