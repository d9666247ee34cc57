// Package search builds the role-scoped full-text search over voices and
// their notes.
package search

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

// DefaultAfter is the lower date bound when the caller gives none.
var DefaultAfter = time.Date(1999, time.January, 1, 0, 0, 0, 0, time.UTC)

// Scope limits results to records a set of users takes part in.
// The zero value matches nothing.
type Scope struct {
	unrestricted bool
	ids          []string
}

// Unrestricted matches every record.
func Unrestricted() Scope { return Scope{unrestricted: true} }

// Restricted matches records where one of ids is the doctor, the note
// assistant or the note modifier.
func Restricted(ids ...string) Scope { return Scope{ids: ids} }

// IsUnrestricted reports whether the scope matches every record.
func (s Scope) IsUnrestricted() bool { return s.unrestricted }

// IDs returns the users the scope is restricted to.
func (s Scope) IDs() []string { return s.ids }

// Criteria are the filters of one search.
type Criteria struct {
	Scope       Scope
	Text        string
	PatientName string
	After       *time.Time
	Before      *time.Time
	Validated   *bool
	Treated     *bool
	Skip        int
	Limit       int
}

// Result is one voice with its optional note.
type Result struct {
	VoiceID         string     `json:"voiceId"`
	Title           string     `json:"title"`
	DoctorID        string     `json:"doctorId"`
	PatientID       string     `json:"patientId"`
	PatientFullName string     `json:"patientFullName"`
	VoiceCreatedAt  time.Time  `json:"voiceCreatedAt"`
	NoteCreated     bool       `json:"noteCreated"`
	NoteID          *string    `json:"noteId,omitempty"`
	AssistantID     *string    `json:"assistantId,omitempty"`
	ModifierID      *string    `json:"modifierId,omitempty"`
	Validated       *bool      `json:"validated,omitempty"`
	Content         *string    `json:"content,omitempty"`
	NoteCreatedAt   *time.Time `json:"noteCreatedAt,omitempty"`
}

// Composer runs searches.
type Composer struct {
	db  *gorm.DB
	now func() time.Time
}

// NewComposer creates a Composer.
func NewComposer(db *gorm.DB) *Composer {
	return &Composer{db: db, now: time.Now}
}

func like(s string) string {
	return "%" + strings.ToLower(s) + "%"
}

// Query builds the search statement. The groups are combined as
// (scope AND patient) AND (text AND date) AND (treated AND validated).
func (c *Composer) Query(ctx context.Context, cr Criteria) *gorm.DB {
	q := c.db.WithContext(ctx).
		Table("voices").
		Select(`voices.id AS voice_id, voices.title, voices.doctor_id, voices.patient_id,
			patients.full_name AS patient_full_name, voices.created_at AS voice_created_at,
			voices.note_created, notes.id AS note_id, notes.assistant_id, notes.modifier_id,
			notes.validated, notes.content, notes.created_at AS note_created_at`).
		Joins("LEFT JOIN notes ON notes.voice_id = voices.id").
		Joins("JOIN users patients ON patients.id = voices.patient_id")

	if !cr.Scope.IsUnrestricted() {
		ids := cr.Scope.IDs()
		if len(ids) == 0 {
			return q.Where("1 = 0")
		}
		q = q.Where("(voices.doctor_id IN ? OR notes.assistant_id IN ? OR notes.modifier_id IN ?)", ids, ids, ids)
	}
	if cr.PatientName != "" {
		q = q.Where("LOWER(patients.full_name) LIKE ?", like(cr.PatientName))
	}

	if cr.Text != "" {
		q = q.Where("(LOWER(notes.content) LIKE ? OR LOWER(voices.title) LIKE ?)", like(cr.Text), like(cr.Text))
	}
	after, before := DefaultAfter, c.now()
	if cr.After != nil {
		after = *cr.After
	}
	if cr.Before != nil {
		before = *cr.Before
	}
	q = q.Where("((notes.created_at BETWEEN ? AND ?) OR (voices.created_at BETWEEN ? AND ?))", after, before, after, before)

	if cr.Treated != nil {
		if *cr.Treated {
			q = q.Where("notes.modifier_id IS NOT NULL")
		} else {
			q = q.Where("notes.modifier_id IS NULL")
		}
	}
	if cr.Validated != nil {
		q = q.Where("notes.validated = ?", *cr.Validated)
	}
	return q
}

// Run executes the search, ordered by voice creation.
func (c *Composer) Run(ctx context.Context, cr Criteria) ([]Result, error) {
	q := c.Query(ctx, cr).Order("voices.created_at, voices.id")
	if cr.Skip > 0 {
		q = q.Offset(cr.Skip)
	}
	if cr.Limit > 0 {
		q = q.Limit(cr.Limit)
	}
	results := []Result{}
	if err := q.Scan(&results).Error; err != nil {
		return nil, fmt.Errorf("search voices: %w", err)
	}
	return results, nil
}
