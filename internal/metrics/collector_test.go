package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCounter_IncAndAdd(t *testing.T) {
	c := NewCollector()
	ctr := c.Counter("test_total", "help")
	ctr.Inc()
	ctr.Add(4)
	if got := ctr.Value(); got != 5 {
		t.Errorf("value = %d, want 5", got)
	}
	if again := c.Counter("test_total", "help"); again != ctr {
		t.Error("same name must return the same counter")
	}
}

func TestGauge_SetIncDec(t *testing.T) {
	c := NewCollector()
	g := c.Gauge("test_gauge", "help")
	g.Set(10)
	g.Inc()
	g.Dec()
	g.Dec()
	if got := g.Value(); got != 9 {
		t.Errorf("value = %d, want 9", got)
	}
}

func TestExport_Format(t *testing.T) {
	c := NewCollector()
	c.Counter("zz_total", "last").Inc()
	c.Counter("aa_total", "first").Add(2)
	c.Gauge("mid_gauge", "a gauge").Set(7)

	out := c.Export()
	for _, want := range []string{
		"# HELP aa_total first",
		"# TYPE aa_total counter",
		"aa_total 2",
		"zz_total 1",
		"# TYPE mid_gauge gauge",
		"mid_gauge 7",
		"beeline_uptime_seconds",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("export missing %q:\n%s", want, out)
		}
	}
	if strings.Index(out, "aa_total") > strings.Index(out, "zz_total") {
		t.Error("counters must be sorted by name")
	}
}

func TestHandler_ServesExposition(t *testing.T) {
	c := NewCollector()
	c.Counter("hits_total", "hits").Inc()

	rec := httptest.NewRecorder()
	c.Handler()(rec, httptest.NewRequest("GET", "/metrics", nil))

	if got := rec.Header().Get("Content-Type"); !strings.HasPrefix(got, "text/plain") {
		t.Errorf("content type = %q", got)
	}
	if !strings.Contains(rec.Body.String(), "hits_total 1") {
		t.Errorf("body missing metric:\n%s", rec.Body.String())
	}
}
