package models

import "time"

// User is the persisted presence record of a participant.
// Username is the participant identity and never changes for a session.
type User struct {
	Username string `gorm:"primaryKey;size:64" json:"username"`
	// ConnectionID references the most recently registered live connection.
	ConnectionID string     `gorm:"size:64" json:"-"`
	Online       bool       `gorm:"not null;default:false;index" json:"online"`
	LastSeen     *time.Time `json:"lastSeen"`
	CreatedAt    time.Time  `json:"-"`
	UpdatedAt    time.Time  `json:"-"`
}

// Presence is the projection of User broadcast to every connection.
type Presence struct {
	Username string     `json:"username"`
	Online   bool       `json:"online"`
	LastSeen *time.Time `json:"lastSeen"`
}
