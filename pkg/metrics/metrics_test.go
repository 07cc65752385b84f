package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCounter(t *testing.T) {
	r := New()
	c := r.Counter("docs_total", "Total docs")
	c.Inc()
	c.Add(4)
	if c.Value() != 5 {
		t.Fatalf("expected 5, got %d", c.Value())
	}
	// Same name returns the same counter.
	if r.Counter("docs_total", "Total docs") != c {
		t.Fatal("expected identical counter on re-registration")
	}
}

func TestGauge(t *testing.T) {
	r := New()
	g := r.Gauge("active", "Active work")
	g.Set(3)
	g.Inc()
	g.Dec()
	if g.Value() != 3 {
		t.Fatalf("expected 3, got %d", g.Value())
	}
}

func TestHistogram_CumulativeBuckets(t *testing.T) {
	r := New()
	h := r.Histogram("dur_seconds", "Durations", []float64{0.1, 1, 10})
	h.Observe(0.05)
	h.Observe(0.5)
	h.Observe(5)
	h.Observe(50) // beyond last bucket, only counted in +Inf

	out := r.Render()
	for _, want := range []string{
		`dur_seconds_bucket{le="0.1"} 1`,
		`dur_seconds_bucket{le="1"} 2`,
		`dur_seconds_bucket{le="10"} 3`,
		`dur_seconds_bucket{le="+Inf"} 4`,
		"dur_seconds_count 4",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("render missing %q:\n%s", want, out)
		}
	}
}

func TestRender_TypesAndHelp(t *testing.T) {
	r := New()
	r.Counter("a_total", "Help A").Inc()
	r.Gauge("b", "Help B").Set(2)

	out := r.Render()
	for _, want := range []string{
		"# HELP a_total Help A",
		"# TYPE a_total counter",
		"a_total 1",
		"# TYPE b gauge",
		"b 2",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("render missing %q", want)
		}
	}
}

func TestHandler(t *testing.T) {
	r := New()
	r.Counter("hits_total", "Hits").Inc()
	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "hits_total 1") {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
}
