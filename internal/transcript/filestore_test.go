package transcript

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newFileStore(t *testing.T) *FileStore {
	t.Helper()
	s, err := NewFileStore(t.TempDir(), Extensions{})
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestFileStore_SaveCodeAndOutput(t *testing.T) {
	s := newFileStore(t)
	ctx := context.Background()
	key := Key{RunID: "run", Feedback: 0, Iteration: 1}

	codePath, err := s.SaveCode(ctx, key, "print('hello')")
	if err != nil {
		t.Fatalf("SaveCode: %v", err)
	}
	if filepath.Base(codePath) != "run_fdbk0_iter1.py" {
		t.Errorf("code path = %s", codePath)
	}
	outPath, err := s.SaveOutput(ctx, key, "hello\n")
	if err != nil {
		t.Fatalf("SaveOutput: %v", err)
	}
	if filepath.Base(outPath) != "run_fdbk0_iter1.txt" {
		t.Errorf("output path = %s", outPath)
	}

	data, err := os.ReadFile(codePath)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "print('hello')" {
		t.Errorf("stored code = %q", data)
	}
}

func TestFileStore_IdempotentRetry(t *testing.T) {
	s := newFileStore(t)
	ctx := context.Background()
	key := Key{RunID: "run", Feedback: 0, Iteration: 1}

	first, err := s.SaveCode(ctx, key, "same")
	if err != nil {
		t.Fatal(err)
	}
	second, err := s.SaveCode(ctx, key, "same")
	if err != nil {
		t.Fatalf("retry with identical content should succeed: %v", err)
	}
	if first != second {
		t.Errorf("locations differ: %s vs %s", first, second)
	}
}

func TestFileStore_ConflictingOverwrite(t *testing.T) {
	s := newFileStore(t)
	ctx := context.Background()
	key := Key{RunID: "run", Feedback: 0, Iteration: 1}

	if _, err := s.SaveOutput(ctx, key, "original"); err != nil {
		t.Fatal(err)
	}
	_, err := s.SaveOutput(ctx, key, "different")
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	arts, err := s.List(ctx, "run")
	if err != nil {
		t.Fatal(err)
	}
	if len(arts) != 1 || arts[0].Content != "original" {
		t.Errorf("original content should be preserved: %+v", arts)
	}
}

func TestFileStore_RejectsInvalidKey(t *testing.T) {
	s := newFileStore(t)
	if _, err := s.SaveCode(context.Background(), Key{RunID: "run", Iteration: 0}, "x"); err == nil {
		t.Fatal("expected error for iteration 0")
	}
}

func TestFileStore_ListOrdersAndFiltersByRun(t *testing.T) {
	s := newFileStore(t)
	ctx := context.Background()

	writes := []struct {
		key  Key
		kind Kind
	}{
		{Key{RunID: "run", Feedback: 1, Iteration: 1}, KindCode},
		{Key{RunID: "run", Feedback: 0, Iteration: 2}, KindOutput},
		{Key{RunID: "run", Feedback: 0, Iteration: 2}, KindCode},
		{Key{RunID: "run", Feedback: 0, Iteration: 1}, KindCode},
		{Key{RunID: "other", Feedback: 0, Iteration: 1}, KindCode},
		{Key{RunID: "run_2", Feedback: 0, Iteration: 1}, KindCode},
	}
	for _, w := range writes {
		var err error
		if w.kind == KindCode {
			_, err = s.SaveCode(ctx, w.key, "c")
		} else {
			_, err = s.SaveOutput(ctx, w.key, "o")
		}
		if err != nil {
			t.Fatal(err)
		}
	}

	arts, err := s.List(ctx, "run")
	if err != nil {
		t.Fatal(err)
	}
	if len(arts) != 4 {
		t.Fatalf("got %d artifacts, want 4: %+v", len(arts), arts)
	}
	want := []string{"run_fdbk0_iter1.py", "run_fdbk0_iter2.py", "run_fdbk0_iter2.txt", "run_fdbk1_iter1.py"}
	for i, w := range want {
		if filepath.Base(arts[i].Location) != w {
			t.Errorf("arts[%d] = %s, want %s", i, filepath.Base(arts[i].Location), w)
		}
	}
}

func TestFileStore_Transitions(t *testing.T) {
	s := newFileStore(t)
	ctx := context.Background()

	for i, to := range []string{"Generating", "Executing", "Judging"} {
		err := s.RecordTransition(ctx, Transition{RunID: "run", Seq: i + 1, To: to, Timestamp: time.Now()})
		if err != nil {
			t.Fatal(err)
		}
	}
	if err := s.RecordTransition(ctx, Transition{RunID: "other", Seq: 1, To: "Generating"}); err != nil {
		t.Fatal(err)
	}

	got, err := s.Transitions("run")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 || got[2].To != "Judging" {
		t.Errorf("transitions = %+v", got)
	}
}

func TestJournal_AppendAfterClose(t *testing.T) {
	j, err := OpenJournal(filepath.Join(t.TempDir(), "j.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	if err := j.Close(); err != nil {
		t.Fatal(err)
	}
	if err := j.Close(); err != nil {
		t.Errorf("second Close should be a no-op: %v", err)
	}
	if err := j.Append(Transition{RunID: "r"}); err == nil {
		t.Error("expected error appending to closed journal")
	}
}

func TestReadTransitions_BadLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "j.jsonl")
	if err := os.WriteFile(path, []byte("{\"run_id\":\"r\"}\nnot json\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadTransitions(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestNewFileStore_DottedExtension(t *testing.T) {
	ctx := context.Background()
	s, err := NewFileStore(t.TempDir(), Extensions{Code: ".py"})
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	defer s.Close()

	key := Key{RunID: "r", Feedback: 0, Iteration: 1}
	loc, err := s.SaveCode(ctx, key, "print(1)")
	if err != nil {
		t.Fatalf("SaveCode: %v", err)
	}
	if filepath.Base(loc) != "r_fdbk0_iter1.py" {
		t.Errorf("code location = %q", loc)
	}
	if _, err := s.SaveOutput(ctx, key, "1"); err != nil {
		t.Fatalf("SaveOutput: %v", err)
	}

	arts, err := s.List(ctx, "r")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(arts) != 2 || arts[0].Kind != KindCode || arts[1].Kind != KindOutput {
		t.Errorf("List = %+v, want code then output", arts)
	}
}

func TestNewFileStore_RejectsOutputExtension(t *testing.T) {
	if _, err := NewFileStore(t.TempDir(), Extensions{Code: "txt"}); err == nil {
		t.Error("NewFileStore accepted a code extension equal to the output extension")
	}
}
