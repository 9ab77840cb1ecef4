package transcript

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// JournalFilename is the transition journal kept next to the artifacts.
const JournalFilename = "transitions.jsonl"

// FileStore writes each artifact to its own file in a directory and appends
// transitions to a JSONL journal in the same directory.
type FileStore struct {
	dir     string
	ext     Extensions
	journal *Journal
	mu      sync.Mutex
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates the directory if needed and opens the journal.
func NewFileStore(dir string, ext Extensions) (*FileStore, error) {
	ext, err := ext.Normalize()
	if err != nil {
		return nil, err
	}
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create transcript dir: %w", err)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve transcript dir: %w", err)
	}
	journal, err := OpenJournal(filepath.Join(abs, JournalFilename))
	if err != nil {
		return nil, err
	}
	return &FileStore{dir: abs, ext: ext, journal: journal}, nil
}

// Dir returns the absolute artifact directory.
func (s *FileStore) Dir() string {
	return s.dir
}

// SaveCode implements Store.
func (s *FileStore) SaveCode(_ context.Context, key Key, source string) (string, error) {
	return s.write(key, KindCode, source)
}

// SaveOutput implements Store.
func (s *FileStore) SaveOutput(_ context.Context, key Key, output string) (string, error) {
	return s.write(key, KindOutput, output)
}

// write creates the artifact exclusively: content goes to a temp file first
// and is hard-linked into place, so a reader never sees a partial artifact
// and an existing one is never replaced.
func (s *FileStore) write(key Key, kind Kind, content string) (string, error) {
	if err := key.Validate(); err != nil {
		return "", err
	}
	path := filepath.Join(s.dir, key.Name(s.ext.forKind(kind)))

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(s.dir, ".pending-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp artifact: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	if _, err := tmp.WriteString(content); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("failed to sync %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to close %s: %w", path, err)
	}

	if err := os.Link(tmpPath, path); err != nil {
		if !errors.Is(err, fs.ErrExist) {
			return "", fmt.Errorf("failed to store %s: %w", path, err)
		}
		existing, rerr := os.ReadFile(path)
		if rerr != nil {
			return "", fmt.Errorf("failed to read existing %s: %w", path, rerr)
		}
		if string(existing) != content {
			return "", fmt.Errorf("%s: %w", path, ErrConflict)
		}
	}
	return path, nil
}

// RecordTransition implements Store.
func (s *FileStore) RecordTransition(_ context.Context, t Transition) error {
	return s.journal.Append(t)
}

// List implements Store.
func (s *FileStore) List(_ context.Context, runID string) ([]Artifact, error) {
	matches, err := filepath.Glob(filepath.Join(s.dir, globEscape(runID)+"_fdbk*_iter*.*"))
	if err != nil {
		return nil, fmt.Errorf("failed to list artifacts: %w", err)
	}

	var arts []Artifact
	for _, m := range matches {
		key, kind, ok := ParseName(filepath.Base(m), s.ext.Output)
		if !ok || key.RunID != runID {
			continue
		}
		data, err := os.ReadFile(m)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", m, err)
		}
		arts = append(arts, Artifact{Key: key, Kind: kind, Location: m, Content: string(data)})
	}
	sortArtifacts(arts)
	return arts, nil
}

// Transitions returns the journal records for runID in append order.
func (s *FileStore) Transitions(runID string) ([]Transition, error) {
	all, err := ReadTransitions(s.journal.Path())
	if err != nil {
		return nil, err
	}
	var out []Transition
	for _, t := range all {
		if t.RunID == runID {
			out = append(out, t)
		}
	}
	return out, nil
}

// Close implements Store.
func (s *FileStore) Close() error {
	return s.journal.Close()
}

func globEscape(s string) string {
	var out []rune
	for _, r := range s {
		switch r {
		case '*', '?', '[', '\\':
			out = append(out, '\\')
		}
		out = append(out, r)
	}
	return string(out)
}
