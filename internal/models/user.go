package models

import "time"

// User describes a notification recipient. Identity is upserted on join keyed
// by the username+email pair; ConnectionID holds the live websocket connection
// identifier and is empty while the user is offline.
type User struct {
	ID       int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	Username string `gorm:"type:varchar(128);not null;uniqueIndex:idx_users_identity" json:"username"`
	Email    string `gorm:"type:varchar(255);not null;uniqueIndex:idx_users_identity" json:"email"`

	// IsOnline is true iff ConnectionID refers to a connection the directory
	// currently knows about. Both are cleared together on disconnect.
	ConnectionID string `gorm:"type:varchar(64);index" json:"connection_id"`
	IsOnline     bool   `gorm:"default:false;index" json:"is_online"`

	LastSeen  time.Time `json:"last_seen"`
	CreatedAt time.Time `json:"created_at"`
}
