package matrix

import (
	"strconv"
	"strings"

	"github.com/google/uuid"

	"tessera/domain"
)

// Registry is the ordered set of tasks available to a user. Tasks are never
// reordered structurally; the last viewed order is a projection over it.
type Registry struct {
	tasks []domain.Task
	index map[string]int
}

// NewRegistry builds a registry from tasks in the given order. Duplicate ids
// keep the first occurrence.
func NewRegistry(tasks []domain.Task) *Registry {
	r := &Registry{index: make(map[string]int, len(tasks))}
	for _, t := range tasks {
		r.insert(t)
	}
	return r
}

func (r *Registry) insert(t domain.Task) bool {
	if t.ID == "" {
		return false
	}
	if _, ok := r.index[t.ID]; ok {
		return false
	}
	r.index[t.ID] = len(r.tasks)
	r.tasks = append(r.tasks, t)
	return true
}

// Add creates a task named name with the next palette color and shortcut.
func (r *Registry) Add(name string) (domain.Task, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Task{}, false
	}
	pos := len(r.tasks)
	t := domain.Task{
		ID:    uuid.NewString(),
		Name:  name,
		Color: domain.TaskColors[pos%len(domain.TaskColors)],
	}
	if pos < 9 {
		t.Shortcut = strconv.Itoa(pos + 1)
	}
	r.insert(t)
	return t, true
}

// Put inserts t, or replaces the task with the same id in place.
func (r *Registry) Put(t domain.Task) {
	if i, ok := r.index[t.ID]; ok {
		r.tasks[i] = t
		return
	}
	r.insert(t)
}

// Rename changes a task's display name.
func (r *Registry) Rename(id, name string) bool {
	name = strings.TrimSpace(name)
	i, ok := r.index[id]
	if !ok || name == "" {
		return false
	}
	r.tasks[i].Name = name
	return true
}

// Get looks up a task by id.
func (r *Registry) Get(id string) (domain.Task, bool) {
	i, ok := r.index[id]
	if !ok {
		return domain.Task{}, false
	}
	return r.tasks[i], true
}

// ByShortcut finds the task bound to a keyboard shortcut.
func (r *Registry) ByShortcut(key string) (domain.Task, bool) {
	if key == "" {
		return domain.Task{}, false
	}
	for _, t := range r.tasks {
		if t.Shortcut == key {
			return t, true
		}
	}
	return domain.Task{}, false
}

// Len returns the number of tasks.
func (r *Registry) Len() int {
	return len(r.tasks)
}

// Tasks returns a copy of the tasks in registry order.
func (r *Registry) Tasks() []domain.Task {
	out := make([]domain.Task, len(r.tasks))
	copy(out, r.tasks)
	return out
}

// Ordered returns the tasks arranged by order. Ids in order that are unknown
// are skipped; tasks missing from order follow in registry order.
func (r *Registry) Ordered(order []string) []domain.Task {
	out := make([]domain.Task, 0, len(r.tasks))
	seen := make(map[string]bool, len(r.tasks))
	for _, id := range order {
		if i, ok := r.index[id]; ok && !seen[id] {
			out = append(out, r.tasks[i])
			seen[id] = true
		}
	}
	for _, t := range r.tasks {
		if !seen[t.ID] {
			out = append(out, t)
		}
	}
	return out
}
