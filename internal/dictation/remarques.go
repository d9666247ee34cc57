package dictation

import (
	"context"
	"fmt"
	"strings"

	"medical-dictation-server/internal/access"
	"medical-dictation-server/internal/apperr"
	"medical-dictation-server/internal/models"
	"medical-dictation-server/internal/query"
)

// RemarqueInput describes a new remarque. CreatorID, when set, must be the actor.
type RemarqueInput struct {
	NoteID    string
	CreatorID string
	Remarque  string
}

// CreateRemarque attaches a review comment to a note.
func (s *Service) CreateRemarque(ctx context.Context, a access.Actor, in RemarqueInput) (*models.RemarqueNote, error) {
	text := strings.TrimSpace(in.Remarque)
	if text == "" {
		return nil, apperr.Validation("remarque is required")
	}
	n, err := s.note(ctx, in.NoteID)
	if err != nil {
		return nil, err
	}
	d, err := s.access.CanCreateRemarque(ctx, a, n, in.CreatorID)
	if err != nil {
		return nil, err
	}
	if err := d.Err(); err != nil {
		return nil, err
	}

	r := &models.RemarqueNote{NoteID: n.ID, CreatorID: a.ID, Remarque: text}
	if err := s.db.WithContext(ctx).Create(r).Error; err != nil {
		return nil, fmt.Errorf("create remarque: %w", err)
	}

	s.notify(ctx, "New remarque", map[string]string{
		"event":       "remarque_created",
		"note_id":     n.ID,
		"remarque_id": r.ID,
	}, notePeers(a, d.Scope))
	return r, nil
}

// ListRemarques returns the remarques of a note, newest first.
func (s *Service) ListRemarques(ctx context.Context, a access.Actor, noteID string, p query.Page) ([]models.RemarqueNote, error) {
	n, err := s.note(ctx, noteID)
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
	return s.query.RemarquesByNote(ctx, n.ID, p)
}

// MarkRemarqueSeen sets the seen flag of a remarque.
func (s *Service) MarkRemarqueSeen(ctx context.Context, a access.Actor, id string, seen bool) (*models.RemarqueNote, error) {
	r, err := first[models.RemarqueNote](ctx, s.db, "remarque", id)
	if err != nil {
		return nil, err
	}
	n, err := s.note(ctx, r.NoteID)
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
	if err := s.db.WithContext(ctx).Model(r).Update("seen", seen).Error; err != nil {
		return nil, fmt.Errorf("update remarque %s: %w", id, err)
	}
	r.Seen = seen
	return r, nil
}
