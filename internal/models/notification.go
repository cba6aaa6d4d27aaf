package models

import (
	"time"

	"gorm.io/datatypes"
)

// Notification types accepted by the dispatcher. The column is an open string
// but the closed set is enforced before anything is persisted.
const (
	TypeInfo    = "info"
	TypeSuccess = "success"
	TypeWarning = "warning"
	TypeError   = "error"
)

// KnownType reports whether the supplied notification type belongs to the
// closed set accepted on creation.
func KnownType(value string) bool {
	switch value {
	case TypeInfo, TypeSuccess, TypeWarning, TypeError:
		return true
	}
	return false
}

// Notification is a durable notification record. A row with neither UserID nor
// UserGroup is a broadcast to every subscriber. Rows are immutable after
// creation except for the delivered/read transitions.
type Notification struct {
	ID      int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	Title   string `gorm:"type:varchar(255);not null" json:"title"`
	Message string `gorm:"type:text" json:"message"`
	Type    string `gorm:"type:varchar(32);default:'info'" json:"type"`

	UserID    *int64  `gorm:"index" json:"user_id,omitempty"`
	UserGroup *string `gorm:"type:varchar(128);index" json:"user_group,omitempty"`

	ImageURL   string         `gorm:"type:text" json:"image_url,omitempty"`
	ActionText string         `gorm:"type:varchar(128)" json:"action_text,omitempty"`
	ActionURL  string         `gorm:"type:text" json:"action_url,omitempty"`
	Metadata   datatypes.JSON `json:"metadata,omitempty"`

	// DeliveredAt and ReadAt are set iff their flag is true; read implies delivered.
	IsDelivered bool       `gorm:"default:false" json:"is_delivered"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
	IsRead      bool       `gorm:"default:false;index" json:"is_read"`
	ReadAt      *time.Time `json:"read_at,omitempty"`

	CreatedAt time.Time `gorm:"index" json:"created_at"`
}
