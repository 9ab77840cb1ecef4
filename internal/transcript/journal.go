package transcript

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// Journal appends Transitions to a JSONL file. It is safe for concurrent use.
type Journal struct {
	path   string
	file   *os.File
	writer *bufio.Writer
	mu     sync.Mutex
}

// OpenJournal opens path for appending, creating it if needed.
func OpenJournal(path string) (*Journal, error) {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open transition journal: %w", err)
	}
	return &Journal{
		path:   path,
		file:   file,
		writer: bufio.NewWriter(file),
	}, nil
}

// Append writes one transition and syncs it to disk before returning.
func (j *Journal) Append(t Transition) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to marshal transition: %w", err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if j.file == nil {
		return fmt.Errorf("transition journal %s is closed", j.path)
	}
	if _, err := j.writer.Write(data); err != nil {
		return fmt.Errorf("failed to write transition: %w", err)
	}
	if err := j.writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}
	if err := j.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush transition: %w", err)
	}
	if err := j.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync transition journal: %w", err)
	}
	return nil
}

// Path returns the journal file path.
func (j *Journal) Path() string {
	return j.path
}

// Close flushes and closes the journal. Closing twice is a no-op.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.file == nil {
		return nil
	}
	if err := j.writer.Flush(); err != nil {
		_ = j.file.Close()
		j.file = nil
		return fmt.Errorf("failed to flush before close: %w", err)
	}
	err := j.file.Close()
	j.file = nil
	if err != nil {
		return fmt.Errorf("failed to close transition journal: %w", err)
	}
	return nil
}

// ReadTransitions reads every record from a journal file.
func ReadTransitions(path string) ([]Transition, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open transition journal: %w", err)
	}
	defer func() { _ = file.Close() }()

	var out []Transition
	scanner := bufio.NewScanner(file)
	const maxLineSize = 1024 * 1024
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var t Transition
		if err := json.Unmarshal(line, &t); err != nil {
			return nil, fmt.Errorf("failed to parse transition on line %d: %w", lineNum, err)
		}
		out = append(out, t)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read transition journal: %w", err)
	}
	return out, nil
}
