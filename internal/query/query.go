// Package query lists voices, notes and remarques anchored on a doctor,
// manager, assistant or patient. Every list has a count built from the same
// scopes so both always agree.
package query

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"medical-dictation-server/internal/models"
)

// Facets are optional filters; a nil field adds no constraint.
type Facets struct {
	NoteCreated *bool
	Validated   *bool
	Treated     *bool
}

// Page bounds a listing. A non-positive Limit means no limit.
type Page struct {
	Skip  int
	Limit int
}

func (p Page) apply(db *gorm.DB) *gorm.DB {
	if p.Skip > 0 {
		db = db.Offset(p.Skip)
	}
	if p.Limit > 0 {
		db = db.Limit(p.Limit)
	}
	return db
}

type scope = func(*gorm.DB) *gorm.DB

// Subqueries walking the relationship graph. Using IN keeps each voice or
// note at most once even when several paths lead to it.
const (
	doctorsOfManager   = "SELECT doctor_id FROM doctor_managers WHERE manager_id = ?"
	doctorsOfAssistant = "SELECT doctor_managers.doctor_id FROM doctor_managers " +
		"JOIN assistant_managers ON assistant_managers.manager_id = doctor_managers.manager_id " +
		"WHERE assistant_managers.assistant_id = ?"
	assistantsOfManager = "SELECT assistant_id FROM assistant_managers WHERE manager_id = ?"
)

func treated(column string, v *bool) scope {
	return func(db *gorm.DB) *gorm.DB {
		if v == nil {
			return db
		}
		if *v {
			return db.Where(column + " IS NOT NULL")
		}
		return db.Where(column + " IS NULL")
	}
}

func equals(column string, v *bool) scope {
	return func(db *gorm.DB) *gorm.DB {
		if v == nil {
			return db
		}
		return db.Where(column+" = ?", *v)
	}
}

func where(clause string, args ...any) scope {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where(clause, args...)
	}
}

// Store runs the listings.
type Store struct {
	db *gorm.DB
}

// NewStore creates a Store.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) voices(ctx context.Context, anchor scope, f Facets) *gorm.DB {
	q := s.db.WithContext(ctx).Model(&models.Voice{}).Scopes(anchor, equals("voices.note_created", f.NoteCreated))
	if f.Validated != nil || f.Treated != nil {
		q = q.Joins("JOIN notes ON notes.voice_id = voices.id").
			Scopes(equals("notes.validated", f.Validated), treated("notes.modifier_id", f.Treated))
	}
	return q
}

func (s *Store) listVoices(ctx context.Context, anchor scope, f Facets, p Page) ([]models.Voice, error) {
	voices := []models.Voice{}
	err := p.apply(s.voices(ctx, anchor, f)).
		Select("voices.*").
		Order("voices.created_at, voices.id").
		Find(&voices).Error
	if err != nil {
		return nil, fmt.Errorf("list voices: %w", err)
	}
	return voices, nil
}

func (s *Store) countVoices(ctx context.Context, anchor scope, f Facets) (int64, error) {
	var n int64
	if err := s.voices(ctx, anchor, f).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count voices: %w", err)
	}
	return n, nil
}

func byDoctor(id string) scope    { return where("voices.doctor_id = ?", id) }
func byManager(id string) scope   { return where("voices.doctor_id IN ("+doctorsOfManager+")", id) }
func byAssistant(id string) scope { return where("voices.doctor_id IN ("+doctorsOfAssistant+")", id) }

func byPatient(id, doctorID string) scope {
	return func(db *gorm.DB) *gorm.DB {
		db = db.Where("voices.patient_id = ?", id)
		if doctorID != "" {
			db = db.Where("voices.doctor_id = ?", doctorID)
		}
		return db
	}
}

// AllVoices lists every voice.
func (s *Store) AllVoices(ctx context.Context, f Facets, p Page) ([]models.Voice, error) {
	return s.listVoices(ctx, where("1 = 1"), f, p)
}

// CountAllVoices counts every voice.
func (s *Store) CountAllVoices(ctx context.Context, f Facets) (int64, error) {
	return s.countVoices(ctx, where("1 = 1"), f)
}

// VoicesByDoctor lists the voices a doctor recorded.
func (s *Store) VoicesByDoctor(ctx context.Context, doctorID string, f Facets, p Page) ([]models.Voice, error) {
	return s.listVoices(ctx, byDoctor(doctorID), f, p)
}

// CountVoicesByDoctor counts the voices a doctor recorded.
func (s *Store) CountVoicesByDoctor(ctx context.Context, doctorID string, f Facets) (int64, error) {
	return s.countVoices(ctx, byDoctor(doctorID), f)
}

// VoicesByManager lists the voices of the doctors a manager supervises.
func (s *Store) VoicesByManager(ctx context.Context, managerID string, f Facets, p Page) ([]models.Voice, error) {
	return s.listVoices(ctx, byManager(managerID), f, p)
}

// CountVoicesByManager counts the voices of the doctors a manager supervises.
func (s *Store) CountVoicesByManager(ctx context.Context, managerID string, f Facets) (int64, error) {
	return s.countVoices(ctx, byManager(managerID), f)
}

// VoicesByAssistant lists the voices of every doctor reachable through the assistant's managers.
func (s *Store) VoicesByAssistant(ctx context.Context, assistantID string, f Facets, p Page) ([]models.Voice, error) {
	return s.listVoices(ctx, byAssistant(assistantID), f, p)
}

// CountVoicesByAssistant counts the voices VoicesByAssistant lists.
func (s *Store) CountVoicesByAssistant(ctx context.Context, assistantID string, f Facets) (int64, error) {
	return s.countVoices(ctx, byAssistant(assistantID), f)
}

// VoicesByPatient lists the voices about a patient, optionally only one doctor's.
func (s *Store) VoicesByPatient(ctx context.Context, patientID, doctorID string, f Facets, p Page) ([]models.Voice, error) {
	return s.listVoices(ctx, byPatient(patientID, doctorID), f, p)
}

// CountVoicesByPatient counts the voices VoicesByPatient lists.
func (s *Store) CountVoicesByPatient(ctx context.Context, patientID, doctorID string, f Facets) (int64, error) {
	return s.countVoices(ctx, byPatient(patientID, doctorID), f)
}

func (s *Store) notes(ctx context.Context, anchor scope, f Facets) *gorm.DB {
	return s.db.WithContext(ctx).
		Model(&models.Note{}).
		Joins("JOIN voices ON voices.id = notes.voice_id").
		Scopes(anchor, equals("notes.validated", f.Validated), treated("notes.modifier_id", f.Treated))
}

func (s *Store) listNotes(ctx context.Context, anchor scope, f Facets, p Page) ([]models.Note, error) {
	notes := []models.Note{}
	err := p.apply(s.notes(ctx, anchor, f)).
		Select("notes.*").
		Order("notes.created_at, notes.id").
		Find(&notes).Error
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	return notes, nil
}

func (s *Store) countNotes(ctx context.Context, anchor scope, f Facets) (int64, error) {
	var n int64
	if err := s.notes(ctx, anchor, f).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count notes: %w", err)
	}
	return n, nil
}

func notesByManager(id string) scope   { return where("notes.assistant_id IN ("+assistantsOfManager+")", id) }
func notesByAssistant(id string) scope { return where("notes.assistant_id = ?", id) }

// AllNotes lists every note.
func (s *Store) AllNotes(ctx context.Context, f Facets, p Page) ([]models.Note, error) {
	return s.listNotes(ctx, where("1 = 1"), f, p)
}

// CountAllNotes counts every note.
func (s *Store) CountAllNotes(ctx context.Context, f Facets) (int64, error) {
	return s.countNotes(ctx, where("1 = 1"), f)
}

// NotesByDoctor lists the notes on a doctor's voices.
func (s *Store) NotesByDoctor(ctx context.Context, doctorID string, f Facets, p Page) ([]models.Note, error) {
	return s.listNotes(ctx, byDoctor(doctorID), f, p)
}

// CountNotesByDoctor counts the notes on a doctor's voices.
func (s *Store) CountNotesByDoctor(ctx context.Context, doctorID string, f Facets) (int64, error) {
	return s.countNotes(ctx, byDoctor(doctorID), f)
}

// NotesByManager lists the notes written by the manager's assistants.
func (s *Store) NotesByManager(ctx context.Context, managerID string, f Facets, p Page) ([]models.Note, error) {
	return s.listNotes(ctx, notesByManager(managerID), f, p)
}

// CountNotesByManager counts the notes written by the manager's assistants.
func (s *Store) CountNotesByManager(ctx context.Context, managerID string, f Facets) (int64, error) {
	return s.countNotes(ctx, notesByManager(managerID), f)
}

// NotesByAssistant lists the notes an assistant wrote.
func (s *Store) NotesByAssistant(ctx context.Context, assistantID string, f Facets, p Page) ([]models.Note, error) {
	return s.listNotes(ctx, notesByAssistant(assistantID), f, p)
}

// CountNotesByAssistant counts the notes an assistant wrote.
func (s *Store) CountNotesByAssistant(ctx context.Context, assistantID string, f Facets) (int64, error) {
	return s.countNotes(ctx, notesByAssistant(assistantID), f)
}

// NotesByPatient lists the notes about a patient, optionally only one doctor's.
func (s *Store) NotesByPatient(ctx context.Context, patientID, doctorID string, f Facets, p Page) ([]models.Note, error) {
	return s.listNotes(ctx, byPatient(patientID, doctorID), f, p)
}

// CountNotesByPatient counts the notes NotesByPatient lists.
func (s *Store) CountNotesByPatient(ctx context.Context, patientID, doctorID string, f Facets) (int64, error) {
	return s.countNotes(ctx, byPatient(patientID, doctorID), f)
}

// RemarquesByNote lists the remarques of a note, newest first.
func (s *Store) RemarquesByNote(ctx context.Context, noteID string, p Page) ([]models.RemarqueNote, error) {
	remarques := []models.RemarqueNote{}
	err := p.apply(s.db.WithContext(ctx).Where("note_id = ?", noteID)).
		Order("created_at DESC, id DESC").
		Find(&remarques).Error
	if err != nil {
		return nil, fmt.Errorf("list remarques of note %s: %w", noteID, err)
	}
	return remarques, nil
}

// DeviceTokens returns the non-empty device tokens of the given users.
func (s *Store) DeviceTokens(ctx context.Context, userIDs []string) ([]string, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	var tokens []string
	err := s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id IN ? AND device_token <> ''", userIDs).
		Distinct().
		Pluck("device_token", &tokens).Error
	if err != nil {
		return nil, fmt.Errorf("device tokens: %w", err)
	}
	return tokens, nil
}
