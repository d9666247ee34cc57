package dictation

import (
	"context"

	"medical-dictation-server/internal/access"
	"medical-dictation-server/internal/models"
	"medical-dictation-server/internal/query"
	"medical-dictation-server/internal/search"
)

// AllUsers is the anchor of the unanchored listings reserved to privileged users.
var AllUsers = access.Anchor{}

// listScope checks the anchor exists with the expected role, then asks the
// evaluator. Callers outside the scope get an empty listing, not an error.
func (s *Service) listScope(ctx context.Context, a access.Actor, anchor access.Anchor,
	decide func(context.Context, access.Actor, access.Anchor) (access.ListScope, error)) (access.ListScope, error) {
	if anchor.ID != "" {
		if _, err := s.user(ctx, anchor.ID, anchor.Role); err != nil {
			return access.ListScope{}, err
		}
	}
	return decide(ctx, a, anchor)
}

// ListVoices lists the voices anchored on a user.
func (s *Service) ListVoices(ctx context.Context, a access.Actor, anchor access.Anchor, f query.Facets, p query.Page) ([]models.Voice, error) {
	ls, err := s.listScope(ctx, a, anchor, s.access.VoiceListing)
	if err != nil {
		return nil, err
	}
	if !ls.Allowed {
		return []models.Voice{}, nil
	}
	switch anchor.Role {
	case models.RoleDoctor:
		return s.query.VoicesByDoctor(ctx, anchor.ID, f, p)
	case models.RoleManager:
		return s.query.VoicesByManager(ctx, anchor.ID, f, p)
	case models.RoleAssistant:
		return s.query.VoicesByAssistant(ctx, anchor.ID, f, p)
	case models.RolePatient:
		return s.query.VoicesByPatient(ctx, anchor.ID, ls.DoctorID, f, p)
	}
	return s.query.AllVoices(ctx, f, p)
}

// CountVoices counts what ListVoices would return without paging.
func (s *Service) CountVoices(ctx context.Context, a access.Actor, anchor access.Anchor, f query.Facets) (int64, error) {
	ls, err := s.listScope(ctx, a, anchor, s.access.VoiceListing)
	if err != nil || !ls.Allowed {
		return 0, err
	}
	switch anchor.Role {
	case models.RoleDoctor:
		return s.query.CountVoicesByDoctor(ctx, anchor.ID, f)
	case models.RoleManager:
		return s.query.CountVoicesByManager(ctx, anchor.ID, f)
	case models.RoleAssistant:
		return s.query.CountVoicesByAssistant(ctx, anchor.ID, f)
	case models.RolePatient:
		return s.query.CountVoicesByPatient(ctx, anchor.ID, ls.DoctorID, f)
	}
	return s.query.CountAllVoices(ctx, f)
}

// ListNotes lists the notes anchored on a user.
func (s *Service) ListNotes(ctx context.Context, a access.Actor, anchor access.Anchor, f query.Facets, p query.Page) ([]models.Note, error) {
	ls, err := s.listScope(ctx, a, anchor, s.access.NoteListing)
	if err != nil {
		return nil, err
	}
	if !ls.Allowed {
		return []models.Note{}, nil
	}
	switch anchor.Role {
	case models.RoleDoctor:
		return s.query.NotesByDoctor(ctx, anchor.ID, f, p)
	case models.RoleManager:
		return s.query.NotesByManager(ctx, anchor.ID, f, p)
	case models.RoleAssistant:
		return s.query.NotesByAssistant(ctx, anchor.ID, f, p)
	case models.RolePatient:
		return s.query.NotesByPatient(ctx, anchor.ID, ls.DoctorID, f, p)
	}
	return s.query.AllNotes(ctx, f, p)
}

// CountNotes counts what ListNotes would return without paging.
func (s *Service) CountNotes(ctx context.Context, a access.Actor, anchor access.Anchor, f query.Facets) (int64, error) {
	ls, err := s.listScope(ctx, a, anchor, s.access.NoteListing)
	if err != nil || !ls.Allowed {
		return 0, err
	}
	switch anchor.Role {
	case models.RoleDoctor:
		return s.query.CountNotesByDoctor(ctx, anchor.ID, f)
	case models.RoleManager:
		return s.query.CountNotesByManager(ctx, anchor.ID, f)
	case models.RoleAssistant:
		return s.query.CountNotesByAssistant(ctx, anchor.ID, f)
	case models.RolePatient:
		return s.query.CountNotesByPatient(ctx, anchor.ID, ls.DoctorID, f)
	}
	return s.query.CountAllNotes(ctx, f)
}

// Search runs a text search limited to the records the actor may search.
// Any scope set on cr is replaced.
func (s *Service) Search(ctx context.Context, a access.Actor, cr search.Criteria) ([]search.Result, error) {
	scope, err := s.access.SearchScope(ctx, a)
	if err != nil {
		return nil, err
	}
	cr.Scope = scope
	return s.search.Run(ctx, cr)
}
