package feedback

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"testing"
	"time"
)

func TestLine_ReadsSuccessiveLines(t *testing.T) {
	var out bytes.Buffer
	src := NewLine(strings.NewReader("  add docstrings \n\nlast"), &out, 0)
	ctx := context.Background()

	want := []string{"add docstrings", "", "last"}
	for i, w := range want {
		got, err := src.Request(ctx, DefaultPrompt)
		if err != nil {
			t.Fatalf("request %d: %v", i, err)
		}
		if got != w {
			t.Errorf("request %d = %q, want %q", i, got, w)
		}
	}
	if _, err := src.Request(ctx, DefaultPrompt); !errors.Is(err, io.EOF) {
		t.Errorf("expected io.EOF after input ends, got %v", err)
	}
	if _, err := src.Request(ctx, ""); !errors.Is(err, io.EOF) {
		t.Errorf("expected io.EOF on repeated request, got %v", err)
	}
	if c := strings.Count(out.String(), DefaultPrompt); c != 4 {
		t.Errorf("prompt printed %d times, want 4", c)
	}
}

func TestLine_Timeout(t *testing.T) {
	r, w := io.Pipe()
	defer func() { _ = w.Close() }()

	src := NewLine(r, nil, 20*time.Millisecond)
	if _, err := src.Request(context.Background(), ""); !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}

	// A line written after the timeout is still delivered to the next request.
	go func() { _, _ = w.Write([]byte("late\n")) }()
	src.timeout = 0
	got, err := src.Request(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}
	if got != "late" {
		t.Errorf("got %q, want late", got)
	}
}

func TestLine_ContextCancel(t *testing.T) {
	r, w := io.Pipe()
	defer func() { _ = w.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	src := NewLine(r, nil, 0)
	if _, err := src.Request(ctx, ""); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestStatic(t *testing.T) {
	s := &Static{Responses: []string{"one", "two"}}
	ctx := context.Background()

	for _, want := range []string{"one", "two", "", ""} {
		got, err := s.Request(ctx, "")
		if err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Errorf("got %q, want %q", got, want)
		}
	}
	if s.Asked() != 4 {
		t.Errorf("Asked() = %d, want 4", s.Asked())
	}
}

func TestNew(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "stdin")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = f.Close() }()

	tests := []struct {
		mode    Mode
		want    string
		wantErr bool
	}{
		{ModeAuto, "*feedback.Line", false},
		{"", "*feedback.Line", false},
		{ModeLine, "*feedback.Line", false},
		{ModeForm, "*feedback.Form", false},
		{ModeNone, "*feedback.Static", false},
		{"voice", "", true},
	}
	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			src, err := New(tt.mode, f, io.Discard, 0)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if got := typeName(src); got != tt.want {
				t.Errorf("New(%q) = %s, want %s", tt.mode, got, tt.want)
			}
		})
	}
}

func TestIsTerminal_RegularFile(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "x")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = f.Close() }()
	if IsTerminal(f) {
		t.Error("regular file reported as terminal")
	}
	if IsTerminal(nil) {
		t.Error("nil file reported as terminal")
	}
}

func typeName(s Source) string {
	switch s.(type) {
	case *Line:
		return "*feedback.Line"
	case *Form:
		return "*feedback.Form"
	case *Static:
		return "*feedback.Static"
	}
	return "unknown"
}
