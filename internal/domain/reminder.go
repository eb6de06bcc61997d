package domain

import "time"

// Reminder is one reminder delivery addressed to a user.
type Reminder struct {
	UserID  int64     `json:"user_id"`
	Gender  Gender    `json:"gender"`
	FiredAt time.Time `json:"fired_at"`
}
