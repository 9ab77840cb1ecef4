package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/andywolf/codeloop/internal/memory"
	"github.com/andywolf/codeloop/internal/prompt"
	"github.com/andywolf/codeloop/internal/transcript"
)

func TestFilterRounds(t *testing.T) {
	arts := []transcript.Artifact{
		{Key: transcript.Key{RunID: "r", Feedback: 0, Iteration: 1}},
		{Key: transcript.Key{RunID: "r", Feedback: 1, Iteration: 1}},
		{Key: transcript.Key{RunID: "r", Feedback: 2, Iteration: 1}},
	}

	if got := filterRounds(arts, nil); len(got) != 3 {
		t.Errorf("filterRounds(nil) kept %d, want 3", len(got))
	}
	got := filterRounds(arts, []int{0, 2})
	if len(got) != 2 || got[0].Key.Feedback != 0 || got[1].Key.Feedback != 2 {
		t.Errorf("filterRounds(0,2) = %+v", got)
	}
}

func TestFormatArtifact(t *testing.T) {
	a := transcript.Artifact{
		Key:      transcript.Key{RunID: "r", Feedback: 1, Iteration: 2},
		Kind:     transcript.KindOutput,
		Location: "runs/r_fdbk1_iter2.txt",
		Content:  "hello\nworld\n",
	}

	var buf bytes.Buffer
	formatArtifact(&buf, a, false)
	want := "[fdbk 1 iter 2] output runs/r_fdbk1_iter2.txt\n"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}

	buf.Reset()
	formatArtifact(&buf, a, true)
	want += "    hello\n    world\n"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}
}

func TestFormatTransition(t *testing.T) {
	ts := time.Date(2024, 6, 15, 14, 30, 45, 0, time.UTC)
	tests := []struct {
		name string
		in   transcript.Transition
		want string
	}{
		{
			name: "first transition",
			in:   transcript.Transition{Seq: 1, To: "Generating", Detail: "run started", Timestamp: ts},
			want: "#1 [14:30:45] start -> Generating (fdbk 0 iter 0, PASS 0, FAIL 0): run started\n",
		},
		{
			name: "no detail",
			in:   transcript.Transition{Seq: 4, From: "Judging", To: "AwaitingFeedback", Iteration: 1, Passes: 1, Timestamp: ts},
			want: "#4 [14:30:45] Judging -> AwaitingFeedback (fdbk 0 iter 1, PASS 1, FAIL 0)\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			formatTransition(&buf, tt.in)
			if buf.String() != tt.want {
				t.Errorf("got %q, want %q", buf.String(), tt.want)
			}
		})
	}
}

func TestFileTransitions(t *testing.T) {
	store, err := transcript.NewFileStore(t.TempDir(), transcript.Extensions{})
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.RecordTransition(ctx, transcript.Transition{ID: "a", RunID: "r", Seq: 1, To: "Generating", Timestamp: time.Now()}); err != nil {
		t.Fatalf("RecordTransition() error = %v", err)
	}

	var reader transitionReader = fileTransitions{store}
	got, err := reader.Transitions(ctx, "r")
	if err != nil {
		t.Fatalf("Transitions() error = %v", err)
	}
	if len(got) != 1 || got[0].To != "Generating" {
		t.Errorf("Transitions() = %+v", got)
	}
}

func TestLoadWindow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "r_window.json")
	data, err := json.Marshal(memory.Snapshot{
		Description: "print primes",
		Capacity:    3,
		Attempts: []memory.Attempt{
			{Code: "print(2)", Output: "2", Judgment: "only one prime"},
		},
		Feedback: "print ten of them",
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	w, err := loadWindow(path, prompt.Default())
	if err != nil {
		t.Fatalf("loadWindow() error = %v", err)
	}
	if got := len(w.Attempts()); got != 1 {
		t.Fatalf("attempts = %d, want 1", got)
	}

	var buf bytes.Buffer
	formatWindow(&buf, w)
	for _, want := range []string{"print primes", "print(2)", "print ten of them", "--- assistant"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("window output missing %q:\n%s", want, buf.String())
		}
	}
}

func TestLoadWindow_Missing(t *testing.T) {
	if _, err := loadWindow(filepath.Join(t.TempDir(), "none.json"), prompt.Default()); err == nil {
		t.Error("loadWindow() expected error for a missing file")
	}
}
