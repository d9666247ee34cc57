// Package testutil holds helpers shared by package tests: an in-memory
// database, seeded users and relationship edges.
package testutil

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"medical-dictation-server/internal/models"
)

// Password is the plain password given to every seeded user.
const Password = "password123"

// OpenTestDB opens a migrated in-memory SQLite database private to the test.
func OpenTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	// Shared cache so every pooled connection sees the same database.
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := models.InitDB(models.DatabaseConfig{Driver: "sqlite", DSN: dsn, LogLevel: "silent"})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

// Logger returns a logger that discards everything.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// CreateUser inserts an active user with the given role.
func CreateUser(t *testing.T, db *gorm.DB, role models.Role, name string) *models.User {
	t.Helper()
	u := &models.User{
		Email:    name + "-" + uuid.NewString()[:8] + "@example.test",
		FullName: name,
		Role:     role,
		IsActive: true,
	}
	if err := u.SetPassword(Password); err != nil {
		t.Fatalf("hash password: %v", err)
	}
	if err := db.Create(u).Error; err != nil {
		t.Fatalf("create user %s: %v", name, err)
	}
	return u
}

// CreateSuperuser inserts an active superuser.
func CreateSuperuser(t *testing.T, db *gorm.DB, name string) *models.User {
	t.Helper()
	u := CreateUser(t, db, models.RoleAdmin, name)
	if err := db.Model(u).Update("is_superuser", true).Error; err != nil {
		t.Fatalf("promote %s: %v", name, err)
	}
	u.IsSuperuser = true
	return u
}

// LinkDoctorManager inserts a Doctor->Manager edge.
func LinkDoctorManager(t *testing.T, db *gorm.DB, doctorID, managerID string) {
	t.Helper()
	create(t, db, &models.DoctorManager{ID: uuid.NewString(), DoctorID: doctorID, ManagerID: managerID, CreatedAt: time.Now()})
}

// LinkDoctorPatient inserts a Doctor->Patient edge.
func LinkDoctorPatient(t *testing.T, db *gorm.DB, doctorID, patientID string) {
	t.Helper()
	create(t, db, &models.DoctorPatient{ID: uuid.NewString(), DoctorID: doctorID, PatientID: patientID, CreatedAt: time.Now()})
}

// LinkAssistantManager inserts an Assistant->Manager edge.
func LinkAssistantManager(t *testing.T, db *gorm.DB, assistantID, managerID string) {
	t.Helper()
	create(t, db, &models.AssistantManager{ID: uuid.NewString(), AssistantID: assistantID, ManagerID: managerID, CreatedAt: time.Now()})
}

// CreateVoice inserts a voice row directly, bypassing the workflow checks.
func CreateVoice(t *testing.T, db *gorm.DB, doctorID, patientID, title string) *models.Voice {
	t.Helper()
	v := &models.Voice{DoctorID: doctorID, PatientID: patientID, Title: title, Path: uuid.NewString() + "_memo.wav"}
	create(t, db, v)
	return v
}

// CreateNote inserts a note for the voice and flags the voice, bypassing the workflow checks.
func CreateNote(t *testing.T, db *gorm.DB, voice *models.Voice, assistantID, content string) *models.Note {
	t.Helper()
	n := &models.Note{VoiceID: voice.ID, AssistantID: assistantID, Content: content}
	create(t, db, n)
	if err := db.Model(voice).Update("note_created", true).Error; err != nil {
		t.Fatalf("flag voice: %v", err)
	}
	voice.NoteCreated = true
	return n
}

// Scenario is the reference graph: D manages P, M supervises D, A and A2 report to M.
type Scenario struct {
	Doctor, Patient, Manager, Assistant, Assistant2, Superuser *models.User
}

// SeedScenario builds the reference graph.
func SeedScenario(t *testing.T, db *gorm.DB) Scenario {
	t.Helper()
	s := Scenario{
		Doctor:     CreateUser(t, db, models.RoleDoctor, "Doctor D"),
		Patient:    CreateUser(t, db, models.RolePatient, "Patient P"),
		Manager:    CreateUser(t, db, models.RoleManager, "Manager M"),
		Assistant:  CreateUser(t, db, models.RoleAssistant, "Assistant A"),
		Assistant2: CreateUser(t, db, models.RoleAssistant, "Assistant A2"),
		Superuser:  CreateSuperuser(t, db, "Root"),
	}
	LinkDoctorPatient(t, db, s.Doctor.ID, s.Patient.ID)
	LinkDoctorManager(t, db, s.Doctor.ID, s.Manager.ID)
	LinkAssistantManager(t, db, s.Assistant.ID, s.Manager.ID)
	LinkAssistantManager(t, db, s.Assistant2.ID, s.Manager.ID)
	return s
}

func create(t *testing.T, db *gorm.DB, value any) {
	t.Helper()
	if err := db.Create(value).Error; err != nil {
		t.Fatalf("create %T: %v", value, err)
	}
}
