package domain

import "time"

// Achievement keys.
const (
	AchievementStreak7   = "streak-7"
	AchievementHours100  = "hours-100"
	AchievementHours500  = "hours-500"
	AchievementHours1000 = "hours-1000"
)

// AchievementDef describes an unlockable milestone. Exactly one of
// StreakDays or Hours is non-zero.
type AchievementDef struct {
	Key         string `json:"key"`
	Title       string `json:"title"`
	Description string `json:"description"`
	StreakDays  int    `json:"-"`
	Hours       int    `json:"-"`
}

// Met reports whether the given totals satisfy the definition.
func (d AchievementDef) Met(totalHours, longestStreak int) bool {
	if d.StreakDays > 0 {
		return longestStreak >= d.StreakDays
	}
	return d.Hours > 0 && totalHours >= d.Hours
}

// Achievements is the fixed catalog.
var Achievements = []AchievementDef{
	{Key: AchievementStreak7, Title: "7 Day Streak", Description: "Log time seven days in a row", StreakDays: 7},
	{Key: AchievementHours100, Title: "100 Hours", Description: "Log 100 hours", Hours: 100},
	{Key: AchievementHours500, Title: "500 Hours", Description: "Log 500 hours", Hours: 500},
	{Key: AchievementHours1000, Title: "1000 Hours", Description: "Log 1000 hours", Hours: 1000},
}

// Achievement is a catalog entry annotated with the user's unlock state.
type Achievement struct {
	AchievementDef
	Unlocked   bool       `json:"unlocked"`
	UnlockedAt *time.Time `json:"unlocked_at,omitempty"`
}
