package domain

// Task is a user-defined category that can be painted onto hour cells.
type Task struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Color    string `json:"color"`
	Shortcut string `json:"shortcut"`
}

// TaskUpdate carries a partial change to a task. Nil fields are left untouched.
type TaskUpdate struct {
	Name     *string `json:"name,omitempty"`
	Color    *string `json:"color,omitempty"`
	Shortcut *string `json:"shortcut,omitempty"`
}

// Apply returns a copy of t with the non-nil fields of u applied.
func (u TaskUpdate) Apply(t Task) Task {
	if u.Name != nil {
		t.Name = *u.Name
	}
	if u.Color != nil {
		t.Color = *u.Color
	}
	if u.Shortcut != nil {
		t.Shortcut = *u.Shortcut
	}
	return t
}

// Empty reports whether the update changes nothing.
func (u TaskUpdate) Empty() bool {
	return u.Name == nil && u.Color == nil && u.Shortcut == nil
}

// DefaultTaskColor is used for tasks created without an explicit color.
const DefaultTaskColor = "#7c3aed"

// TaskColors is the palette cycled through when tasks are added interactively.
var TaskColors = []string{"#f43f5e", "#06b6d4", "#8b5cf6", "#84cc16", "#f97316", "#6366f1"}

// DefaultTasks returns the seed set given to every new account.
func DefaultTasks() []Task {
	return []Task{
		{ID: "deep-work", Name: "Deep Work", Color: "#13b6ec", Shortcut: "1"},
		{ID: "meetings", Name: "Meetings", Color: "#a855f7", Shortcut: "2"},
		{ID: "learning", Name: "Learning", Color: "#10b981", Shortcut: "3"},
		{ID: "rest", Name: "Rest", Color: "#f59e0b", Shortcut: "4"},
		{ID: "creative", Name: "Creative", Color: "#ec4899", Shortcut: "5"},
	}
}
