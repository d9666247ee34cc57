package models

import "gorm.io/datatypes"

// NotificationLog records every push notification attempt.
type NotificationLog struct {
	BaseModel
	Transport  string         `gorm:"size:20;not null" json:"transport"`
	Title      string         `gorm:"size:255" json:"title"`
	Payload    datatypes.JSON `json:"payload"`
	Recipients int            `json:"recipients"`
	Error      string         `gorm:"type:text" json:"error,omitempty"`
}
