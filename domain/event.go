package domain

import "encoding/json"

const (
	EntriesSaved   = "entries-saved"
	EntriesDeleted = "entries-deleted"
)

// Event records a change to a user's matrix for downstream projections.
type Event struct {
	ID     string          `json:"id"`
	Type   string          `json:"type"`
	UserID string          `json:"userId"`
	Year   int             `json:"year"`
	Count  int             `json:"count"`
	Data   json.RawMessage `json:"data,omitempty"`
	Time   int64           `json:"time"`
}

// AchievementUnlocked is published when a projection unlocks a milestone.
type AchievementUnlocked struct {
	UserID string `json:"userId"`
	Key    string `json:"key"`
	Title  string `json:"title"`
	Time   int64  `json:"time"`
}
