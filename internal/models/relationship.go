package models

import "time"

// DoctorManager links a doctor to a manager who supervises them.
type DoctorManager struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	DoctorID  string    `gorm:"size:36;not null;uniqueIndex:idx_doctor_manager" json:"doctorId"`
	ManagerID string    `gorm:"size:36;not null;uniqueIndex:idx_doctor_manager;index" json:"managerId"`
	CreatedAt time.Time `json:"createdAt"`
}

// DoctorPatient links a doctor to one of their patients.
type DoctorPatient struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	DoctorID  string    `gorm:"size:36;not null;uniqueIndex:idx_doctor_patient" json:"doctorId"`
	PatientID string    `gorm:"size:36;not null;uniqueIndex:idx_doctor_patient;index" json:"patientId"`
	CreatedAt time.Time `json:"createdAt"`
}

// AssistantManager links an assistant to the manager they report to.
type AssistantManager struct {
	ID          string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	AssistantID string    `gorm:"size:36;not null;uniqueIndex:idx_assistant_manager" json:"assistantId"`
	ManagerID   string    `gorm:"size:36;not null;uniqueIndex:idx_assistant_manager;index" json:"managerId"`
	CreatedAt   time.Time `json:"createdAt"`
}
