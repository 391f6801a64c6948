package storage

import (
	"context"
	"errors"
	"time"

	"tessera/domain"
)

var (
	// ErrNotFound is returned when an addressed entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrEmailTaken is returned when creating a user whose email is registered.
	ErrEmailTaken = errors.New("email already in use")
)

// Backend is the persistence contract shared by the Azure Tables and SQLite
// stores. Lookups of single records return nil without error when absent.
type Backend interface {
	CreateUser(ctx context.Context, u domain.User) error
	UserByID(ctx context.Context, id string) (*domain.User, error)
	UserByEmail(ctx context.Context, email string) (*domain.User, error)
	SearchUsers(ctx context.Context, query string, limit int) ([]domain.User, error)
	SetLastTaskOrder(ctx context.Context, userID string, order []string) error

	FetchTasks(ctx context.Context, userID string) ([]domain.Task, error)
	CreateTasks(ctx context.Context, userID string, tasks []domain.Task) error
	UpdateTask(ctx context.Context, userID, taskID string, upd domain.TaskUpdate) (domain.Task, error)
	DeleteTask(ctx context.Context, userID, taskID string) error

	FetchEntries(ctx context.Context, userID string, year int) ([]domain.Entry, error)
	SaveEntries(ctx context.Context, userID string, entries []domain.Entry) error
	DeleteEntries(ctx context.Context, userID string, year int, cells []domain.Cell) error

	FriendshipsFor(ctx context.Context, userID string) ([]domain.Friendship, error)
	FriendshipBetween(ctx context.Context, a, b string) (*domain.Friendship, error)
	SaveFriendship(ctx context.Context, f domain.Friendship) error
	DeleteFriendship(ctx context.Context, f domain.Friendship) error

	FetchGoals(ctx context.Context, userID string) ([]domain.Goal, error)
	CreateGoal(ctx context.Context, userID string, g domain.Goal) error
	UpdateGoal(ctx context.Context, userID, goalID string, upd domain.GoalUpdate) (domain.Goal, error)
	DeleteGoal(ctx context.Context, userID, goalID string) error

	FetchAchievements(ctx context.Context, userID string) (map[string]time.Time, error)
	UnlockAchievement(ctx context.Context, userID, key string, at time.Time) (bool, error)
}

// TableNames names the tables (or SQL tables) backing each entity.
type TableNames struct {
	Users        string
	Tasks        string
	Entries      string
	Friendships  string
	Goals        string
	Achievements string
}

// DefaultTableNames returns the conventional names.
func DefaultTableNames() TableNames {
	return TableNames{
		Users:        "users",
		Tasks:        "tasks",
		Entries:      "entries",
		Friendships:  "friendships",
		Goals:        "goals",
		Achievements: "achievements",
	}
}

// All lists the names in a stable order.
func (n TableNames) All() []string {
	return []string{n.Users, n.Tasks, n.Entries, n.Friendships, n.Goals, n.Achievements}
}

// dedupeEntries keeps the last entry for each cell, preserving first-seen order.
func dedupeEntries(entries []domain.Entry) []domain.Entry {
	type cellYear struct {
		year int
		cell domain.Cell
	}
	pos := make(map[cellYear]int, len(entries))
	out := make([]domain.Entry, 0, len(entries))
	for _, e := range entries {
		k := cellYear{year: e.Year, cell: e.Cell()}
		if i, ok := pos[k]; ok {
			out[i] = e
			continue
		}
		pos[k] = len(out)
		out = append(out, e)
	}
	return out
}
