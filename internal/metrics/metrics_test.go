package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorder_Counters(t *testing.T) {
	r := NewRecorder()

	r.ObserveVerdict("PASS")
	r.ObserveVerdict("FAIL")
	r.ObserveVerdict("FAIL")
	r.ObserveRun("Finalized")
	r.ObserveModelError("timeout")
	r.ObserveExecution("exit_nonzero")

	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"pass", testutil.ToFloat64(r.VerdictsTotal.WithLabelValues("PASS")), 1},
		{"fail", testutil.ToFloat64(r.VerdictsTotal.WithLabelValues("FAIL")), 2},
		{"finalized", testutil.ToFloat64(r.RunsTotal.WithLabelValues("Finalized")), 1},
		{"aborted", testutil.ToFloat64(r.RunsTotal.WithLabelValues("Aborted")), 0},
		{"model timeout", testutil.ToFloat64(r.ModelErrorsTotal.WithLabelValues("timeout")), 1},
		{"exit nonzero", testutil.ToFloat64(r.ExecutionsTotal.WithLabelValues("exit_nonzero")), 1},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}
}

func TestRecorder_ObserveStep(t *testing.T) {
	r := NewRecorder()
	r.ObserveStep(StepGeneration, 2*time.Second)
	r.ObserveStep(StepJudgment, 500*time.Millisecond)

	if n := testutil.CollectAndCount(r.StepDurationSeconds); n != 2 {
		t.Errorf("expected 2 histogram series, got %d", n)
	}
}

func TestRecorder_NilSafe(t *testing.T) {
	var r *Recorder
	r.ObserveStep(StepExecution, time.Second)
	r.ObserveVerdict("PASS")
	r.ObserveRun("Aborted")
	r.ObserveModelError("network")
	r.ObserveExecution("ok")
	if r.Registry() != nil {
		t.Error("nil recorder should have no registry")
	}
	if err := r.Push(context.Background(), "http://unused", "run"); err != nil {
		t.Errorf("nil recorder Push() = %v", err)
	}
}

func TestRecorder_Push(t *testing.T) {
	var mu sync.Mutex
	var paths []string
	var body string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		paths = append(paths, req.Method+" "+req.URL.Path)
		buf := new(strings.Builder)
		_, _ = io.Copy(buf, req.Body)
		body = buf.String()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	r := NewRecorder()
	r.ObserveVerdict("PASS")
	if err := r.Push(context.Background(), server.URL, "run_20250101T000000Z"); err != nil {
		t.Fatalf("Push() error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(paths) != 1 {
		t.Fatalf("expected 1 request, got %v", paths)
	}
	want := "PUT /metrics/job/codeloop/run_id/run_20250101T000000Z"
	if paths[0] != want {
		t.Errorf("request = %q, want %q", paths[0], want)
	}
	if len(body) == 0 {
		t.Error("expected a non-empty metrics payload")
	}
}

func TestRecorder_PushError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer server.Close()

	r := NewRecorder()
	if err := r.Push(context.Background(), server.URL, "run"); err == nil {
		t.Fatal("expected error from failing gateway")
	}
	if err := r.Push(context.Background(), "", "run"); err != nil {
		t.Errorf("empty URL should be a no-op, got %v", err)
	}
}
