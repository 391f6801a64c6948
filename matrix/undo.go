package matrix

import "time"

// UndoTimeout is how long the undo affordance stays visible after a push.
const UndoTimeout = 5 * time.Second

// UndoItem records one removed assignment.
type UndoItem struct {
	Key    CellKey `json:"cellKey"`
	TaskID string  `json:"taskId"`
}

// UndoStack holds removed assignments for the lifetime of a session. It only
// grows by Push and shrinks by Pop from the end.
type UndoStack struct {
	items    []UndoItem
	visible  time.Time
	now      func() time.Time
	duration time.Duration
}

// NewUndoStack returns an empty stack. A nil now uses time.Now.
func NewUndoStack(now func() time.Time) *UndoStack {
	if now == nil {
		now = time.Now
	}
	return &UndoStack{now: now, duration: UndoTimeout}
}

// Push appends items in order and restarts the visibility window.
func (s *UndoStack) Push(items ...UndoItem) {
	if len(items) == 0 {
		return
	}
	s.items = append(s.items, items...)
	s.visible = s.now().Add(s.duration)
}

// Pop removes and returns the most recent item.
func (s *UndoStack) Pop() (UndoItem, bool) {
	if len(s.items) == 0 {
		return UndoItem{}, false
	}
	last := s.items[len(s.items)-1]
	s.items = s.items[:len(s.items)-1]
	if len(s.items) == 0 {
		s.visible = time.Time{}
	}
	return last, true
}

// Len returns the stack depth.
func (s *UndoStack) Len() int {
	return len(s.items)
}

// Visible reports whether the undo affordance should be shown.
func (s *UndoStack) Visible() bool {
	return len(s.items) > 0 && s.now().Before(s.visible)
}

// Items returns a copy of the stack, oldest first.
func (s *UndoStack) Items() []UndoItem {
	out := make([]UndoItem, len(s.items))
	copy(out, s.items)
	return out
}
