package transcript

import (
	"fmt"
	"time"
)

// RunIDLayout is the UTC timestamp layout embedded in run identifiers.
const RunIDLayout = "20060102T150405Z"

// NewRunID derives a run identifier from name and the start time.
func NewRunID(name string, start time.Time) string {
	ts := start.UTC().Format(RunIDLayout)
	if name == "" {
		return ts
	}
	return fmt.Sprintf("%s_%s", name, ts)
}
