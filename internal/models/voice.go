package models

import "time"

// Voice is a dictated audio memo recorded by a doctor about a patient.
// Path holds the blob store identifier, never the audio itself.
type Voice struct {
	BaseModel
	DoctorID    string `gorm:"size:36;not null;index" json:"doctorId"`
	PatientID   string `gorm:"size:36;not null;index" json:"patientId"`
	Path        string `gorm:"size:512;not null" json:"-"`
	Title       string `gorm:"size:255" json:"title"`
	Remarque    string `gorm:"type:text" json:"remarque"`
	FolderID    string `gorm:"size:64" json:"folderId,omitempty"`
	NoteCreated bool   `gorm:"not null;default:false;index" json:"noteCreated"`
}

// Note is the transcription of exactly one Voice.
type Note struct {
	BaseModel
	VoiceID     string     `gorm:"size:36;not null;uniqueIndex" json:"voiceId"`
	AssistantID string     `gorm:"size:36;not null;index" json:"assistantId"`
	ModifierID  *string    `gorm:"size:36;index" json:"modifierId,omitempty"`
	Validated   bool       `gorm:"not null;default:false" json:"validated"`
	Content     string     `gorm:"type:text" json:"content"`
	ModifiedAt  *time.Time `json:"modifiedAt,omitempty"`
}

// RemarqueNote is a review comment attached to a Note.
type RemarqueNote struct {
	BaseModel
	NoteID    string `gorm:"size:36;not null;index" json:"noteId"`
	CreatorID string `gorm:"size:36;not null;index" json:"creatorId"`
	Remarque  string `gorm:"type:text;not null" json:"remarque"`
	Seen      bool   `gorm:"not null;default:false" json:"seen"`
}
