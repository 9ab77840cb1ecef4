// Package transcript persists every round's generated code, execution output
// and controller state transitions. Stores are append-only: a key, once
// written, can only be written again with identical content.
package transcript

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ErrConflict is returned when a key is rewritten with different content.
var ErrConflict = errors.New("transcript entry already exists with different content")

// Kind distinguishes the artifacts stored per iteration.
type Kind string

const (
	KindCode   Kind = "code"
	KindOutput Kind = "output"
)

// Key identifies one code iteration within a run.
type Key struct {
	RunID     string
	Feedback  int // zero-based feedback round
	Iteration int // one-based iteration within the round
}

// Validate rejects keys that would produce ambiguous artifact names.
func (k Key) Validate() error {
	if k.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	if k.Feedback < 0 {
		return fmt.Errorf("feedback round must be >= 0, got %d", k.Feedback)
	}
	if k.Iteration < 1 {
		return fmt.Errorf("iteration must be >= 1, got %d", k.Iteration)
	}
	return nil
}

// Name returns the artifact name {runId}_fdbk{N}_iter{M}.{ext}.
func (k Key) Name(ext string) string {
	return fmt.Sprintf("%s_fdbk%d_iter%d.%s", k.RunID, k.Feedback, k.Iteration, ext)
}

// Artifact is one stored code or output entry.
type Artifact struct {
	Key      Key
	Kind     Kind
	Location string
	Content  string
}

// Transition is the durability record written on every controller state change.
type Transition struct {
	ID        string    `json:"id"`
	RunID     string    `json:"run_id"`
	Seq       int       `json:"seq"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Feedback  int       `json:"feedback"`
	Iteration int       `json:"iteration"`
	Passes    int       `json:"passes"`
	Fails     int       `json:"fails"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Store persists transcript entries.
type Store interface {
	// SaveCode stores the generated source for key and returns its location.
	SaveCode(ctx context.Context, key Key, source string) (string, error)
	// SaveOutput stores the captured execution output for key.
	SaveOutput(ctx context.Context, key Key, output string) (string, error)
	// RecordTransition appends a state transition record.
	RecordTransition(ctx context.Context, t Transition) error
	// List returns a run's artifacts ordered by round, iteration, then code
	// before output.
	List(ctx context.Context, runID string) ([]Artifact, error)
	Close() error
}

// artifactPattern parses names produced by Key.Name.
var artifactPattern = regexp.MustCompile(`^(.+)_fdbk(\d+)_iter(\d+)\.([A-Za-z0-9]+)$`)

// ParseName is the inverse of Key.Name. The returned kind is KindOutput for
// the output extension and KindCode otherwise.
func ParseName(name, outputExt string) (Key, Kind, bool) {
	m := artifactPattern.FindStringSubmatch(name)
	if m == nil {
		return Key{}, "", false
	}
	fb, err1 := strconv.Atoi(m[2])
	it, err2 := strconv.Atoi(m[3])
	if err1 != nil || err2 != nil {
		return Key{}, "", false
	}
	kind := KindCode
	if m[4] == outputExt {
		kind = KindOutput
	}
	return Key{RunID: m[1], Feedback: fb, Iteration: it}, kind, true
}

// sortArtifacts orders artifacts by round, iteration, then code before output.
func sortArtifacts(arts []Artifact) {
	sort.SliceStable(arts, func(i, j int) bool {
		a, b := arts[i], arts[j]
		if a.Key.Feedback != b.Key.Feedback {
			return a.Key.Feedback < b.Key.Feedback
		}
		if a.Key.Iteration != b.Key.Iteration {
			return a.Key.Iteration < b.Key.Iteration
		}
		return a.Kind == KindCode && b.Kind == KindOutput
	})
}

// Extensions configures artifact file extensions (without the dot).
type Extensions struct {
	Code   string
	Output string
}

// DefaultExtensions matches Python sources and text output.
var DefaultExtensions = Extensions{Code: "py", Output: "txt"}

// Normalize strips a leading dot from both extensions and fills in the
// defaults. Code and output must differ so that every artifact name is unique.
func (e Extensions) Normalize() (Extensions, error) {
	e.Code = strings.TrimPrefix(e.Code, ".")
	e.Output = strings.TrimPrefix(e.Output, ".")
	if e.Code == "" {
		e.Code = DefaultExtensions.Code
	}
	if e.Output == "" {
		e.Output = DefaultExtensions.Output
	}
	if strings.EqualFold(e.Code, e.Output) {
		return e, fmt.Errorf("code extension %q collides with the output extension", e.Code)
	}
	return e, nil
}

func (e Extensions) forKind(k Kind) string {
	if k == KindOutput {
		return e.Output
	}
	return e.Code
}
