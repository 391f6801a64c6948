package worker

import (
	"context"
	"fmt"

	"tessera/domain"
)

type achievementApplier interface {
	Apply(ctx context.Context, ev domain.Event) ([]domain.AchievementUnlocked, error)
}

// Orchestrator routes events to the projection that handles them.
type Orchestrator struct {
	achievements achievementApplier
}

func NewOrchestrator(achievements achievementApplier) Orchestrator {
	return Orchestrator{achievements: achievements}
}

// Apply delegates ev by type. Deletions cannot unlock anything and only
// unlocks are tracked, so they are acknowledged without work.
func (o Orchestrator) Apply(ctx context.Context, ev domain.Event) ([]domain.AchievementUnlocked, error) {
	if ev.UserID == "" {
		return nil, fmt.Errorf("event %s has no user", ev.ID)
	}
	switch ev.Type {
	case domain.EntriesSaved:
		return o.achievements.Apply(ctx, ev)
	case domain.EntriesDeleted:
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown event type %s", ev.Type)
	}
}
