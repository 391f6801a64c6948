package matrix

import (
	"testing"

	"tessera/domain"
)

func TestRegistryAddAssignsPaletteAndShortcut(t *testing.T) {
	r := NewRegistry(domain.DefaultTasks())

	task, ok := r.Add("  Reading ")
	if !ok {
		t.Fatalf("add failed")
	}
	if task.Name != "Reading" {
		t.Fatalf("name = %q", task.Name)
	}
	if task.Shortcut != "6" {
		t.Fatalf("shortcut = %q, want 6", task.Shortcut)
	}
	if task.Color != domain.TaskColors[5%len(domain.TaskColors)] {
		t.Fatalf("color = %q", task.Color)
	}
	if _, ok := r.Add("   "); ok {
		t.Fatalf("blank name accepted")
	}

	for i := 0; i < 4; i++ {
		r.Add("extra")
	}
	last := r.Tasks()[r.Len()-1]
	if last.Shortcut != "" {
		t.Fatalf("tenth task should have no shortcut, got %q", last.Shortcut)
	}
}

func TestRegistryRenameAndLookup(t *testing.T) {
	r := NewRegistry(domain.DefaultTasks())
	if !r.Rename("rest", "Sleep") {
		t.Fatalf("rename failed")
	}
	if got, _ := r.Get("rest"); got.Name != "Sleep" {
		t.Fatalf("name = %q", got.Name)
	}
	if r.Rename("missing", "x") {
		t.Fatalf("rename of unknown task succeeded")
	}
	if got, ok := r.ByShortcut("2"); !ok || got.ID != "meetings" {
		t.Fatalf("shortcut lookup = %+v, %v", got, ok)
	}
}

func TestRegistryOrderedProjection(t *testing.T) {
	r := NewRegistry(domain.DefaultTasks())
	got := r.Ordered([]string{"rest", "ghost", "deep-work", "rest"})
	ids := make([]string, len(got))
	for i, task := range got {
		ids[i] = task.ID
	}
	want := []string{"rest", "deep-work", "meetings", "learning", "creative"}
	if len(ids) != len(want) {
		t.Fatalf("ids = %v", ids)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("ids = %v, want %v", ids, want)
		}
	}
	if r.Tasks()[0].ID != "deep-work" {
		t.Fatalf("projection mutated registry order")
	}
}
