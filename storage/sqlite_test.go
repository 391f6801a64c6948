package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"tessera/domain"
)

var _ Backend = (*SQLite)(nil)
var _ Backend = (*Tables)(nil)
var _ Backend = (*Cache)(nil)

func openTestSQLite(t *testing.T) *SQLite {
	t.Helper()
	s, err := OpenSQLite(context.Background(), ":memory:", DefaultTableNames())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteUsers(t *testing.T) {
	s := openTestSQLite(t)
	ctx := context.Background()

	u := domain.User{ID: "u1", Email: "Ada@Example.com", FullName: "Ada Lovelace", PasswordHash: "h", CreatedAt: time.Now()}
	if err := s.CreateUser(ctx, u); err != nil {
		t.Fatalf("create user: %v", err)
	}
	if err := s.CreateUser(ctx, domain.User{ID: "u2", Email: "ada@example.com"}); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("err = %v, want ErrEmailTaken", err)
	}

	got, err := s.UserByEmail(ctx, " ADA@example.com")
	if err != nil || got == nil || got.ID != "u1" || got.PasswordHash != "h" {
		t.Fatalf("user by email = %+v, %v", got, err)
	}
	missing, err := s.UserByID(ctx, "nope")
	if err != nil || missing != nil {
		t.Fatalf("missing user = %+v, %v", missing, err)
	}

	if err := s.SetLastTaskOrder(ctx, "u1", []string{"b", "a"}); err != nil {
		t.Fatalf("set order: %v", err)
	}
	got, _ = s.UserByID(ctx, "u1")
	if len(got.LastTaskOrder) != 2 || got.LastTaskOrder[0] != "b" {
		t.Fatalf("order = %v", got.LastTaskOrder)
	}
	if err := s.SetLastTaskOrder(ctx, "ghost", nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}

	_ = s.CreateUser(ctx, domain.User{ID: "u3", Email: "grace@example.com", FullName: "Grace Hopper"})
	found, err := s.SearchUsers(ctx, "hopper", 10)
	if err != nil || len(found) != 1 || found[0].ID != "u3" {
		t.Fatalf("search = %+v, %v", found, err)
	}
}

func TestSQLiteTasksKeepCreationOrder(t *testing.T) {
	s := openTestSQLite(t)
	ctx := context.Background()

	if err := s.CreateTasks(ctx, "u1", domain.DefaultTasks()); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := s.CreateTasks(ctx, "u1", []domain.Task{{ID: "extra", Name: "Extra", Color: "#000"}, {ID: "rest", Name: "Sleep", Color: "#111"}}); err != nil {
		t.Fatalf("create: %v", err)
	}
	tasks, err := s.FetchTasks(ctx, "u1")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(tasks) != 6 || tasks[3].Name != "Sleep" || tasks[5].ID != "extra" {
		t.Fatalf("tasks = %+v", tasks)
	}

	name := "Meet"
	updated, err := s.UpdateTask(ctx, "u1", "meetings", domain.TaskUpdate{Name: &name})
	if err != nil || updated.Name != "Meet" || updated.Color != "#a855f7" {
		t.Fatalf("update = %+v, %v", updated, err)
	}
	if _, err := s.UpdateTask(ctx, "u1", "ghost", domain.TaskUpdate{Name: &name}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if err := s.DeleteTask(ctx, "u1", "extra"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.DeleteTask(ctx, "u1", "extra"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestSQLiteEntriesPerYear(t *testing.T) {
	s := openTestSQLite(t)
	ctx := context.Background()

	err := s.SaveEntries(ctx, "u1", []domain.Entry{
		{TaskID: "a", DayIndex: 1, Hour: 2, Year: 2025},
		{TaskID: "a", DayIndex: 1, Hour: 3, Year: 2025},
		{TaskID: "b", DayIndex: 1, Hour: 2, Year: 2025},
		{TaskID: "a", DayIndex: 1, Hour: 2, Year: 2024},
	})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	entries, err := s.FetchEntries(ctx, "u1", 2025)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(entries) != 2 || entries[0].TaskID != "b" {
		t.Fatalf("entries = %+v", entries)
	}

	if err := s.DeleteEntries(ctx, "u1", 2025, []domain.Cell{{DayIndex: 1, Hour: 2}, {DayIndex: 9, Hour: 9}}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	entries, _ = s.FetchEntries(ctx, "u1", 2025)
	if len(entries) != 1 || entries[0].Hour != 3 {
		t.Fatalf("entries after delete = %+v", entries)
	}
	other, _ := s.FetchEntries(ctx, "u1", 2024)
	if len(other) != 1 {
		t.Fatalf("other year touched: %+v", other)
	}
}

func TestSQLiteFriendships(t *testing.T) {
	s := openTestSQLite(t)
	ctx := context.Background()
	now := time.Now().UTC()

	f := domain.Friendship{ID: "f1", RequesterID: "a", AddresseeID: "b", Status: domain.FriendshipPending, CreatedAt: now, UpdatedAt: now}
	if err := s.SaveFriendship(ctx, f); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := s.FriendshipBetween(ctx, "b", "a")
	if err != nil || got == nil || got.ID != "f1" {
		t.Fatalf("between = %+v, %v", got, err)
	}

	f.Status = domain.FriendshipAccepted
	if err := s.SaveFriendship(ctx, f); err != nil {
		t.Fatalf("update: %v", err)
	}
	list, _ := s.FriendshipsFor(ctx, "b")
	if len(list) != 1 || list[0].Status != domain.FriendshipAccepted {
		t.Fatalf("list = %+v", list)
	}

	if err := s.DeleteFriendship(ctx, f); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if got, _ := s.FriendshipBetween(ctx, "a", "b"); got != nil {
		t.Fatalf("friendship still present")
	}
}

func TestSQLiteGoalsAndAchievements(t *testing.T) {
	s := openTestSQLite(t)
	ctx := context.Background()

	_ = s.CreateGoal(ctx, "u1", domain.Goal{ID: "g1", Title: "Read", Progress: 150})
	_ = s.CreateGoal(ctx, "u1", domain.Goal{ID: "g2", Title: "Run"})
	goals, err := s.FetchGoals(ctx, "u1")
	if err != nil || len(goals) != 2 || goals[0].Progress != 100 || goals[1].ID != "g2" {
		t.Fatalf("goals = %+v, %v", goals, err)
	}
	done := true
	g, err := s.UpdateGoal(ctx, "u1", "g2", domain.GoalUpdate{Completed: &done})
	if err != nil || !g.Completed {
		t.Fatalf("update = %+v, %v", g, err)
	}
	if err := s.DeleteGoal(ctx, "u1", "g1"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	at := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	first, err := s.UnlockAchievement(ctx, "u1", domain.AchievementHours100, at)
	if err != nil || !first {
		t.Fatalf("first unlock = %v, %v", first, err)
	}
	again, _ := s.UnlockAchievement(ctx, "u1", domain.AchievementHours100, at.Add(time.Hour))
	if again {
		t.Fatalf("second unlock reported new")
	}
	unlocked, _ := s.FetchAchievements(ctx, "u1")
	if !unlocked[domain.AchievementHours100].Equal(at) {
		t.Fatalf("unlocked = %v", unlocked)
	}
}
