package domain

// Goal is a user-tracked objective with a completion percentage.
type Goal struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Category  string `json:"category"`
	Progress  int    `json:"progress"`
	Completed bool   `json:"completed"`
}

// GoalUpdate carries a partial change to a goal.
type GoalUpdate struct {
	Title     *string `json:"title,omitempty"`
	Category  *string `json:"category,omitempty"`
	Progress  *int    `json:"progress,omitempty"`
	Completed *bool   `json:"completed,omitempty"`
}

// Apply returns a copy of g with the non-nil fields of u applied. Progress is
// clamped to [0,100].
func (u GoalUpdate) Apply(g Goal) Goal {
	if u.Title != nil {
		g.Title = *u.Title
	}
	if u.Category != nil {
		g.Category = *u.Category
	}
	if u.Progress != nil {
		g.Progress = ClampProgress(*u.Progress)
	}
	if u.Completed != nil {
		g.Completed = *u.Completed
	}
	return g
}

// ClampProgress bounds p to a percentage.
func ClampProgress(p int) int {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	}
	return p
}
