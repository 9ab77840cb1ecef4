package transcript

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func newSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "transcript.db")
	s, err := OpenSQLite(dsn, Extensions{})
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteStore_SaveAndList(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	k1 := Key{RunID: "run", Feedback: 0, Iteration: 1}
	k2 := Key{RunID: "run", Feedback: 0, Iteration: 2}
	if _, err := s.SaveCode(ctx, k2, "code2"); err != nil {
		t.Fatal(err)
	}
	loc, err := s.SaveCode(ctx, k1, "code1")
	if err != nil {
		t.Fatal(err)
	}
	if loc != "sqlite:run_fdbk0_iter1.py" {
		t.Errorf("location = %q", loc)
	}
	if _, err := s.SaveOutput(ctx, k1, "out1"); err != nil {
		t.Fatal(err)
	}

	arts, err := s.List(ctx, "run")
	if err != nil {
		t.Fatal(err)
	}
	if len(arts) != 3 {
		t.Fatalf("got %d artifacts", len(arts))
	}
	if arts[0].Content != "code1" || arts[1].Content != "out1" || arts[2].Content != "code2" {
		t.Errorf("unexpected order: %+v", arts)
	}
}

func TestSQLiteStore_IdempotentAndConflict(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()
	key := Key{RunID: "run", Feedback: 1, Iteration: 1}

	if _, err := s.SaveOutput(ctx, key, "same"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.SaveOutput(ctx, key, "same"); err != nil {
		t.Fatalf("identical retry should succeed: %v", err)
	}
	if _, err := s.SaveOutput(ctx, key, "changed"); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestSQLiteStore_Transitions(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	now := time.Now()
	for i, to := range []string{"Generating", "Executing"} {
		err := s.RecordTransition(ctx, Transition{
			ID: to, RunID: "run", Seq: i + 1, From: "", To: to, Timestamp: now,
		})
		if err != nil {
			t.Fatal(err)
		}
	}
	dup := Transition{ID: "dup", RunID: "run", Seq: 1, To: "Judging", Timestamp: now}
	if err := s.RecordTransition(ctx, dup); err == nil {
		t.Error("expected error for duplicate sequence number")
	}

	got, err := s.Transitions(ctx, "run")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].To != "Generating" || got[1].Seq != 2 {
		t.Errorf("transitions = %+v", got)
	}
}

func TestOpenSQLite_RejectsOutputExtension(t *testing.T) {
	if _, err := OpenSQLite(":memory:", Extensions{Code: ".txt"}); err == nil {
		t.Error("OpenSQLite accepted a code extension equal to the output extension")
	}
}
