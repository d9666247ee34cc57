package dictation

import (
	"context"
	"fmt"

	"github.com/samber/lo"
	"gorm.io/gorm"

	"medical-dictation-server/internal/access"
	"medical-dictation-server/internal/apperr"
	"medical-dictation-server/internal/models"
)

// NoteInput describes a new transcription. AssistantID defaults to the actor.
type NoteInput struct {
	VoiceID     string
	AssistantID string
	Content     string
}

// NoteUpdate holds the editable note fields; nil leaves a field unchanged.
type NoteUpdate struct {
	Content   *string
	Validated *bool
}

// NoteDetail is a note with the names of the people it concerns.
type NoteDetail struct {
	models.Note
	VoiceTitle      string `json:"voiceTitle"`
	DoctorID        string `json:"doctorId"`
	PatientID       string `json:"patientId"`
	DoctorFullName  string `json:"doctorFullName"`
	PatientFullName string `json:"patientFullName"`
}

func (s *Service) detail(ctx context.Context, n *models.Note, v *models.Voice) (*NoteDetail, error) {
	doctor, err := fullName(ctx, s.db, v.DoctorID)
	if err != nil {
		return nil, err
	}
	patient, err := fullName(ctx, s.db, v.PatientID)
	if err != nil {
		return nil, err
	}
	return &NoteDetail{
		Note:            *n,
		VoiceTitle:      v.Title,
		DoctorID:        v.DoctorID,
		PatientID:       v.PatientID,
		DoctorFullName:  doctor,
		PatientFullName: patient,
	}, nil
}

// CreateNote claims a voice for an assistant. The note insert and the
// voice's note_created flag are written in one transaction; a second note
// for the same voice is a Conflict.
func (s *Service) CreateNote(ctx context.Context, a access.Actor, in NoteInput) (*models.Note, error) {
	if in.VoiceID == "" {
		return nil, apperr.Validation("voice is required")
	}
	if in.AssistantID == "" {
		in.AssistantID = a.ID
	}
	v, err := s.voice(ctx, in.VoiceID)
	if err != nil {
		return nil, err
	}
	if _, err := s.user(ctx, in.AssistantID, models.RoleAssistant); err != nil {
		return nil, err
	}
	d, err := s.access.CanCreateNote(ctx, a, v, in.AssistantID)
	if err != nil {
		return nil, err
	}
	if err := d.Err(); err != nil {
		return nil, err
	}

	note := &models.Note{VoiceID: v.ID, AssistantID: in.AssistantID, Content: in.Content}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Voice{}).
			Where("id = ? AND note_created = ?", v.ID, false).
			Update("note_created", true)
		if res.Error != nil {
			return fmt.Errorf("flag voice: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return apperr.Conflict("voice %s already has a note", v.ID)
		}
		if err := tx.Create(note).Error; err != nil {
			return fmt.Errorf("create note: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, "Transcription started", map[string]string{
		"event":    "note_created",
		"note_id":  note.ID,
		"voice_id": v.ID,
	}, []string{v.DoctorID})
	return note, nil
}

// GetNote returns a note the actor may read.
func (s *Service) GetNote(ctx context.Context, a access.Actor, id string) (*NoteDetail, error) {
	n, err := s.note(ctx, id)
	if err != nil {
		return nil, err
	}
	d, err := s.access.CanReadNote(ctx, a, n)
	if err != nil {
		return nil, err
	}
	if err := d.Err(); err != nil {
		return nil, err
	}
	v, err := s.voice(ctx, n.VoiceID)
	if err != nil {
		return nil, err
	}
	return s.detail(ctx, n, v)
}

// UpdateNote edits a note. The editor becomes the note's modifier. Only the
// doctor and privileged users may change the validated flag.
func (s *Service) UpdateNote(ctx context.Context, a access.Actor, id string, in NoteUpdate) (*models.Note, error) {
	n, err := s.note(ctx, id)
	if err != nil {
		return nil, err
	}
	mode, d, err := s.access.NoteEdit(ctx, a, n)
	if err != nil {
		return nil, err
	}
	if err := d.Err(); err != nil {
		return nil, err
	}
	if mode != access.EditFull && in.Validated != nil && *in.Validated != n.Validated {
		return nil, apperr.Forbidden("only the doctor can change validation")
	}

	now := s.now()
	updates := map[string]any{
		"modifier_id": a.ID,
		"modified_at": now,
	}
	if in.Content != nil {
		updates["content"] = *in.Content
	}
	becameValid := false
	if mode == access.EditFull && in.Validated != nil {
		updates["validated"] = *in.Validated
		becameValid = *in.Validated && !n.Validated
	}
	if err := s.db.WithContext(ctx).Model(n).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("update note %s: %w", id, err)
	}
	updated, err := s.note(ctx, id)
	if err != nil {
		return nil, err
	}

	if becameValid && n.AssistantID != a.ID {
		s.notify(ctx, "Note validated", map[string]string{
			"event":   "note_validated",
			"note_id": n.ID,
		}, []string{n.AssistantID})
	}
	return updated, nil
}

// DeleteNote removes a note and its remarques and releases the voice for a
// new transcription. The voice itself is kept.
func (s *Service) DeleteNote(ctx context.Context, a access.Actor, id string) (*models.Note, error) {
	n, err := s.note(ctx, id)
	if err != nil {
		return nil, err
	}
	d, v, err := s.access.CanDeleteNote(ctx, a, n)
	if err != nil {
		return nil, err
	}
	if err := d.Err(); err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("note_id = ?", n.ID).Delete(&models.RemarqueNote{}).Error; err != nil {
			return fmt.Errorf("delete remarques: %w", err)
		}
		if err := tx.Delete(n).Error; err != nil {
			return fmt.Errorf("delete note: %w", err)
		}
		if err := tx.Model(v).Update("note_created", false).Error; err != nil {
			return fmt.Errorf("release voice: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return n, nil
}

// notePeers returns the users to tell about activity on a note, except the actor.
func notePeers(a access.Actor, scope access.Scope) []string {
	peers := []string{scope.DoctorID}
	peers = append(peers, scope.Assistants...)
	if scope.ModifierID != "" {
		peers = append(peers, scope.ModifierID)
	}
	return lo.Without(lo.Uniq(peers), a.ID)
}
