package api

import (
	"context"
	"time"

	"tessera/domain"
)

// Storage abstracts persistence for handlers.
type Storage interface {
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
}

// Authenticator resolves user ids from tokens and issues new ones.
type Authenticator interface {
	UserIDFromAuthHeader(string) (string, error)
	IssueToken(userID, email string) (string, error)
}

// Deduper tracks applied entry batches by client idempotency key.
type Deduper interface {
	// Claim reports whether the batch is new and marks it applied.
	Claim(ctx context.Context, userID string, years []int, key string, cells int) (bool, error)
	// Release undoes a claim when the write fails.
	Release(ctx context.Context, userID string, years []int, key string) error
}

// EventSink receives matrix events for downstream projections.
type EventSink interface {
	Publish(ctx context.Context, ev domain.Event) error
}

type errorResponse struct {
	Error string `json:"error"`
}

type dataResponse struct {
	Data any `json:"data"`
}

type successResponse struct {
	Success bool `json:"success"`
	Count   int  `json:"count,omitempty"`
}
