package domain

import "time"

// User is an account holder.
type User struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	FullName      string    `json:"full_name,omitempty"`
	AvatarURL     string    `json:"avatar_url,omitempty"`
	PasswordHash  string    `json:"-"`
	LastTaskOrder []string  `json:"last_task_order,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// DisplayName falls back to the email when no full name is set.
func (u User) DisplayName() string {
	if u.FullName != "" {
		return u.FullName
	}
	return u.Email
}
