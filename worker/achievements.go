package worker

import (
	"context"
	"sort"
	"time"

	"tessera/domain"
)

// Store is the persistence the achievement projector needs.
type Store interface {
	FetchEntries(ctx context.Context, userID string, year int) ([]domain.Entry, error)
	FetchAchievements(ctx context.Context, userID string) (map[string]time.Time, error)
	UnlockAchievement(ctx context.Context, userID, key string, at time.Time) (bool, error)
}

// Achievements recomputes a user's yearly totals and unlocks milestones.
// Unlocks are never revoked.
type Achievements struct {
	store Store
	now   func() time.Time
}

func NewAchievements(store Store) *Achievements {
	if store == nil {
		panic("worker.NewAchievements: store is nil")
	}
	return &Achievements{store: store, now: time.Now}
}

// Stats are the figures milestones are measured against.
type Stats struct {
	TotalHours    int
	LongestStreak int
}

// ComputeStats counts hours and the longest run of consecutive active days.
func ComputeStats(entries []domain.Entry) Stats {
	days := make(map[int]struct{}, len(entries))
	for _, e := range entries {
		days[e.DayIndex] = struct{}{}
	}
	return Stats{TotalHours: len(entries), LongestStreak: longestRun(days)}
}

func longestRun(days map[int]struct{}) int {
	if len(days) == 0 {
		return 0
	}
	sorted := make([]int, 0, len(days))
	for d := range days {
		sorted = append(sorted, d)
	}
	sort.Ints(sorted)

	best, run := 1, 1
	for i := 1; i < len(sorted); i++ {
		if sorted[i] == sorted[i-1]+1 {
			run++
		} else {
			run = 1
		}
		if run > best {
			best = run
		}
	}
	return best
}

// Apply evaluates the catalog for the user and year named by ev and returns
// the achievements unlocked by this call.
func (a *Achievements) Apply(ctx context.Context, ev domain.Event) ([]domain.AchievementUnlocked, error) {
	entries, err := a.store.FetchEntries(ctx, ev.UserID, ev.Year)
	if err != nil {
		return nil, err
	}
	have, err := a.store.FetchAchievements(ctx, ev.UserID)
	if err != nil {
		return nil, err
	}
	stats := ComputeStats(entries)

	var unlocked []domain.AchievementUnlocked
	now := a.now().UTC()
	for _, def := range domain.Achievements {
		if _, ok := have[def.Key]; ok {
			continue
		}
		if !def.Met(stats.TotalHours, stats.LongestStreak) {
			continue
		}
		fresh, err := a.store.UnlockAchievement(ctx, ev.UserID, def.Key, now)
		if err != nil {
			return unlocked, err
		}
		if !fresh {
			continue
		}
		unlocked = append(unlocked, domain.AchievementUnlocked{
			UserID: ev.UserID,
			Key:    def.Key,
			Title:  def.Title,
			Time:   now.UnixNano(),
		})
	}
	return unlocked, nil
}
