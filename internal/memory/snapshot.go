package memory

// Snapshot is the serialisable state of a Window.
type Snapshot struct {
	Description string    `json:"description"`
	Capacity    int       `json:"capacity"`
	Attempts    []Attempt `json:"attempts"`
	Feedback    string    `json:"feedback,omitempty"`
}

// Snapshot captures the window state.
func (w *Window) Snapshot() Snapshot {
	return Snapshot{
		Description: w.description,
		Capacity:    w.capacity,
		Attempts:    w.Attempts(),
		Feedback:    w.feedback,
	}
}

// Restore replaces the window state with s. Attempts beyond the capacity are
// dropped oldest first.
func (w *Window) Restore(s Snapshot) {
	w.description = s.Description
	if s.Capacity > 0 {
		w.capacity = s.Capacity
	}
	w.attempts = nil
	for _, a := range s.Attempts {
		w.RecordIteration(a.Code, a.Output)
		w.AnnotateLatest(a.Judgment)
	}
	w.feedback = s.Feedback
}
