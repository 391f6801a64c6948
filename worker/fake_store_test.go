package worker

import (
	"context"
	"sync"
	"time"

	"tessera/domain"
)

type fakeStore struct {
	mu       sync.Mutex
	entries  map[int][]domain.Entry
	unlocked map[string]time.Time
	fetchErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{entries: map[int][]domain.Entry{}, unlocked: map[string]time.Time{}}
}

func (f *fakeStore) FetchEntries(_ context.Context, _ string, year int) ([]domain.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return append([]domain.Entry(nil), f.entries[year]...), nil
}

func (f *fakeStore) FetchAchievements(context.Context, string) (map[string]time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]time.Time, len(f.unlocked))
	for k, v := range f.unlocked {
		out[k] = v
	}
	return out, nil
}

func (f *fakeStore) UnlockAchievement(_ context.Context, _ string, key string, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.unlocked[key]; ok {
		return false, nil
	}
	f.unlocked[key] = at
	return true, nil
}

// fill assigns hoursPerDay cells on each of the first days of year.
func (f *fakeStore) fill(year, days, hoursPerDay int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for d := 0; d < days; d++ {
		for h := 0; h < hoursPerDay; h++ {
			f.entries[year] = append(f.entries[year], domain.Entry{TaskID: "t", DayIndex: d, Hour: h, Year: year})
		}
	}
}
