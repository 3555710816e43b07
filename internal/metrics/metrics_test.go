package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
)

// value returns the sample of the named family whose labels include match.
func value(t *testing.T, c *Collector, name string, match map[string]string) float64 {
	t.Helper()
	families, err := c.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if !labelsMatch(m, match) {
				continue
			}
			switch {
			case m.GetCounter() != nil:
				return m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				return m.GetGauge().GetValue()
			}
		}
	}
	t.Fatalf("metric %s %v not found", name, match)
	return 0
}

func labelsMatch(m *dto.Metric, match map[string]string) bool {
	found := 0
	for _, lp := range m.GetLabel() {
		if want, ok := match[lp.GetName()]; ok {
			if lp.GetValue() != want {
				return false
			}
			found++
		}
	}
	return found == len(match)
}

func TestCollectorRecords(t *testing.T) {
	c := NewCollector(nil)
	c.ObserveRequest("bus")
	c.ObserveRequest("bus")
	c.ObserveRequest("enumerate")
	c.ObserveOutcome("committed", 4096, 3*time.Millisecond)
	c.ObserveOutcome("deferred", 0, time.Millisecond)
	c.ObserveRescan("watch")
	c.ObserveOverrun()
	c.SetDeferred(2)

	if got := value(t, c, "firmwared_requests_total", map[string]string{"origin": "bus"}); got != 2 {
		t.Fatalf("bus requests = %v", got)
	}
	if got := value(t, c, "firmwared_loaded_bytes_total", nil); got != 4096 {
		t.Fatalf("bytes = %v", got)
	}
	if got := value(t, c, "firmwared_outcomes_total", map[string]string{"outcome": "deferred"}); got != 1 {
		t.Fatalf("deferred outcomes = %v", got)
	}
	if got := value(t, c, "firmwared_deferred_requests", nil); got != 2 {
		t.Fatalf("pending = %v", got)
	}
	if got := value(t, c, "firmwared_bus_overruns_total", nil); got != 1 {
		t.Fatalf("overruns = %v", got)
	}
	if got := value(t, c, "firmwared_rescans_total", map[string]string{"trigger": "watch"}); got != 1 {
		t.Fatalf("rescans = %v", got)
	}
}

func TestNilCollectorIsSafe(t *testing.T) {
	var c *Collector
	c.ObserveRequest("bus")
	c.ObserveOutcome("committed", 1, time.Second)
	c.SetDeferred(1)
	c.ObserveRescan("cron")
	c.ObserveOverrun()
	if err := c.WriteTextfile("/nonexistent/x.prom"); err != nil {
		t.Fatalf("WriteTextfile on nil collector: %v", err)
	}
	if c.Registry() != nil {
		t.Fatal("expected nil registry")
	}
}

func TestRouter(t *testing.T) {
	c := NewCollector(nil)
	c.ObserveOutcome("cancelled", 0, time.Millisecond)

	var ready atomic.Bool
	srv := httptest.NewServer(c.Router(ready.Load))
	defer srv.Close()

	get := func(path string) (int, string) {
		t.Helper()
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, string(body)
	}

	if code, _ := get("/healthz"); code != http.StatusServiceUnavailable {
		t.Fatalf("healthz before ready = %d", code)
	}
	ready.Store(true)
	if code, body := get("/healthz"); code != http.StatusOK || body != "ok\n" {
		t.Fatalf("healthz = %d %q", code, body)
	}
	code, body := get("/metrics")
	if code != http.StatusOK {
		t.Fatalf("metrics = %d", code)
	}
	if !strings.Contains(body, `firmwared_outcomes_total{outcome="cancelled"} 1`) {
		t.Fatalf("metrics body missing outcome counter:\n%s", body)
	}
	if code, _ := get("/nope"); code != http.StatusNotFound {
		t.Fatalf("unknown path = %d", code)
	}
}

func TestServeAndShutdown(t *testing.T) {
	c := NewCollector(nil)
	s, err := c.Serve("127.0.0.1:0", nil, nil)
	if err != nil {
		t.Fatalf("Serve: %v", err)
	}
	resp, err := http.Get("http://" + s.Addr() + "/healthz")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}

func TestWriteTextfile(t *testing.T) {
	c := NewCollector(nil)
	c.ObserveOutcome("committed", 10, time.Millisecond)
	path := filepath.Join(t.TempDir(), "firmwared.prom")
	if err := c.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "firmwared_loaded_bytes_total 10") {
		t.Fatalf("textfile missing bytes counter:\n%s", data)
	}
}
