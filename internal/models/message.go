package models

import (
	"time"
)

// MessageStatus represents the status of a message
type MessageStatus string

const (
	MessageStatusSent MessageStatus = "sent"
	MessageStatusRead MessageStatus = "read"
)

// Message is one entry in the care team chat attached to a patient record.
// PatientID is the hex id of the patient document.
type Message struct {
	BaseModel
	PatientID  string        `gorm:"size:24;index;not null" json:"patientId"`
	SenderID   string        `gorm:"size:36;index" json:"senderId"`
	SenderName string        `gorm:"size:200" json:"senderName"`
	SenderRole Role          `gorm:"size:20" json:"senderRole"`
	Content    string        `gorm:"type:text" json:"content"`
	Status     MessageStatus `gorm:"size:20;default:'sent'" json:"status"`
	ReadAt     *time.Time    `json:"readAt,omitempty"`
}
