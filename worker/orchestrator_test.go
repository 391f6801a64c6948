package worker

import (
	"context"
	"testing"

	"tessera/domain"
)

type countingApplier struct{ calls int }

func (c *countingApplier) Apply(context.Context, domain.Event) ([]domain.AchievementUnlocked, error) {
	c.calls++
	return []domain.AchievementUnlocked{{Key: "k"}}, nil
}

func TestOrchestratorRoutesByType(t *testing.T) {
	app := &countingApplier{}
	o := NewOrchestrator(app)
	ctx := context.Background()

	got, err := o.Apply(ctx, domain.Event{UserID: "u", Type: domain.EntriesSaved})
	if err != nil || len(got) != 1 || app.calls != 1 {
		t.Fatalf("saved event: %v %v calls=%d", got, err, app.calls)
	}
	got, err = o.Apply(ctx, domain.Event{UserID: "u", Type: domain.EntriesDeleted})
	if err != nil || got != nil || app.calls != 1 {
		t.Fatalf("deleted event should be acknowledged without work: %v %v calls=%d", got, err, app.calls)
	}
	if _, err := o.Apply(ctx, domain.Event{UserID: "u", Type: "task-created"}); err == nil {
		t.Fatal("expected error for unknown type")
	}
	if _, err := o.Apply(ctx, domain.Event{Type: domain.EntriesSaved}); err == nil {
		t.Fatal("expected error for missing user")
	}
}
