package access

import (
	"context"
	"errors"
	"fmt"

	"github.com/samber/lo"
	"gorm.io/gorm"

	"medical-dictation-server/internal/apperr"
	"medical-dictation-server/internal/graph"
	"medical-dictation-server/internal/models"
	"medical-dictation-server/internal/search"
)

// SearchMode controls how search results are scoped to the caller.
type SearchMode int

const (
	// SearchByRole gives privileged users everything and managers their team.
	SearchByRole SearchMode = iota
	// SearchSelfOnly scopes every caller to records they are directly part of.
	SearchSelfOnly
)

// Evaluator answers authorization questions.
type Evaluator struct {
	db         *gorm.DB
	graph      *graph.Store
	searchMode SearchMode
}

// NewEvaluator creates an Evaluator.
func NewEvaluator(db *gorm.DB, g *graph.Store, mode SearchMode) *Evaluator {
	return &Evaluator{db: db, graph: g, searchMode: mode}
}

func (e *Evaluator) noteOfVoice(ctx context.Context, voiceID string) (*models.Note, error) {
	var notes []models.Note
	if err := e.db.WithContext(ctx).Where("voice_id = ?", voiceID).Limit(1).Find(&notes).Error; err != nil {
		return nil, fmt.Errorf("load note of voice %s: %w", voiceID, err)
	}
	if len(notes) == 0 {
		return nil, nil
	}
	return &notes[0], nil
}

// VoiceScope resolves the users related to a voice. Until a note exists the
// assistant set is every assistant of the doctor's managers; afterwards it is
// only the note's author.
func (e *Evaluator) VoiceScope(ctx context.Context, v *models.Voice) (Scope, error) {
	scope := Scope{DoctorID: v.DoctorID, PatientID: v.PatientID}

	managers, err := e.graph.ManagersOfDoctor(ctx, v.DoctorID)
	if err != nil {
		return scope, err
	}
	scope.Managers = managers

	note, err := e.noteOfVoice(ctx, v.ID)
	if err != nil {
		return scope, err
	}
	if note != nil {
		scope.Note = note
		scope.Assistants = []string{note.AssistantID}
		scope.ModifierID = lo.FromPtr(note.ModifierID)
		return scope, nil
	}

	assistants, err := e.graph.DoctorAssistants(ctx, v.DoctorID)
	if err != nil {
		return scope, err
	}
	scope.Assistants = assistants
	return scope, nil
}

// NoteScope resolves the users related to a note and loads its voice.
func (e *Evaluator) NoteScope(ctx context.Context, n *models.Note) (Scope, *models.Voice, error) {
	var voice models.Voice
	if err := e.db.WithContext(ctx).First(&voice, "id = ?", n.VoiceID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Scope{}, nil, apperr.NotFound("voice %s of note %s not found", n.VoiceID, n.ID)
		}
		return Scope{}, nil, fmt.Errorf("load voice of note %s: %w", n.ID, err)
	}

	scope := Scope{
		DoctorID:   voice.DoctorID,
		PatientID:  voice.PatientID,
		Assistants: []string{n.AssistantID},
		ModifierID: lo.FromPtr(n.ModifierID),
		Note:       n,
	}
	doctorManagers, err := e.graph.ManagersOfDoctor(ctx, voice.DoctorID)
	if err != nil {
		return scope, nil, err
	}
	assistantManagers, err := e.graph.AssistantManagers(ctx, n.AssistantID)
	if err != nil {
		return scope, nil, err
	}
	scope.Managers = lo.Union(doctorManagers, assistantManagers)
	return scope, &voice, nil
}

func voiceMember(a Actor, s Scope) bool {
	return a.Privileged() ||
		a.Is(s.DoctorID) ||
		a.Is(s.PatientID) ||
		s.HasManager(a.ID) ||
		s.HasAssistant(a.ID)
}

func noteMember(a Actor, s Scope) bool {
	return a.Privileged() ||
		a.Is(s.DoctorID) ||
		s.HasManager(a.ID) ||
		s.HasAssistant(a.ID) ||
		a.Is(s.ModifierID)
}

// CanReadVoice decides read access to a voice and to its note through the voice.
func (e *Evaluator) CanReadVoice(ctx context.Context, a Actor, v *models.Voice) (Decision, error) {
	scope, err := e.VoiceScope(ctx, v)
	if err != nil {
		return Decision{}, err
	}
	if voiceMember(a, scope) {
		return allow(scope), nil
	}
	return deny(scope, "not allowed to read this voice"), nil
}

// CanReadVoiceAudio decides access to the recording. Assistants must claim
// the voice by creating its note first.
func (e *Evaluator) CanReadVoiceAudio(ctx context.Context, a Actor, v *models.Voice) (Decision, error) {
	d, err := e.CanReadVoice(ctx, a, v)
	if err != nil || !d.Allowed {
		return d, err
	}
	if d.Scope.Note == nil && a.Role == models.RoleAssistant && !a.Privileged() {
		return deny(d.Scope, "a note must be created before an assistant can fetch the recording"), nil
	}
	return d, nil
}

// CanModifyVoice decides updates and deletion of a voice.
func (e *Evaluator) CanModifyVoice(a Actor, v *models.Voice) Decision {
	scope := Scope{DoctorID: v.DoctorID, PatientID: v.PatientID}
	if a.Privileged() || (a.Role == models.RoleDoctor && a.Is(v.DoctorID)) {
		return allow(scope)
	}
	return deny(scope, "only the recording doctor can change this voice")
}

// CanCreateVoice decides whether a voice may be recorded for doctorID about patientID.
func (e *Evaluator) CanCreateVoice(ctx context.Context, a Actor, doctorID, patientID string) (Decision, error) {
	scope := Scope{DoctorID: doctorID, PatientID: patientID}
	if !a.Privileged() && !(a.Role == models.RoleDoctor && a.Is(doctorID)) {
		return deny(scope, "only a doctor can record a voice for themself"), nil
	}
	linked, err := e.graph.HasEdge(ctx, graph.DoctorPatient, doctorID, patientID)
	if err != nil {
		return Decision{}, err
	}
	if !linked {
		return deny(scope, "the patient is not a patient of this doctor"), nil
	}
	return allow(scope), nil
}

// CanCreateNote decides whether assistantID may transcribe the voice. The
// actor must be that assistant or privileged, and the assistant must be
// reachable from one of the doctor's managers.
func (e *Evaluator) CanCreateNote(ctx context.Context, a Actor, v *models.Voice, assistantID string) (Decision, error) {
	if !a.Privileged() && !(a.Role == models.RoleAssistant && a.Is(assistantID)) {
		return deny(Scope{DoctorID: v.DoctorID}, "only the assistant can create their own note"), nil
	}
	scope, err := e.VoiceScope(ctx, v)
	if err != nil {
		return Decision{}, err
	}
	if scope.Note != nil || v.NoteCreated {
		return Decision{}, apperr.Conflict("voice %s already has a note", v.ID)
	}
	if !scope.HasAssistant(assistantID) {
		return deny(scope, "the assistant does not work for this doctor"), nil
	}
	return allow(scope), nil
}

// CanReadNote decides read access to a note and its remarques.
func (e *Evaluator) CanReadNote(ctx context.Context, a Actor, n *models.Note) (Decision, error) {
	scope, _, err := e.NoteScope(ctx, n)
	if err != nil {
		return Decision{}, err
	}
	if noteMember(a, scope) {
		return allow(scope), nil
	}
	return deny(scope, "not allowed to read this note"), nil
}

// NoteEdit decides what the actor may change on a note. Once validated, only
// the doctor, privileged users and the last modifier may edit it.
func (e *Evaluator) NoteEdit(ctx context.Context, a Actor, n *models.Note) (EditMode, Decision, error) {
	scope, _, err := e.NoteScope(ctx, n)
	if err != nil {
		return EditNone, Decision{}, err
	}
	switch {
	case a.Privileged() || a.Is(scope.DoctorID):
		return EditFull, allow(scope), nil
	case a.Is(scope.ModifierID):
		return EditContent, allow(scope), nil
	case a.Is(n.AssistantID) || scope.HasManager(a.ID):
		if n.Validated {
			return EditNone, deny(scope, "the note is validated"), nil
		}
		return EditContent, allow(scope), nil
	}
	return EditNone, deny(scope, "not allowed to edit this note"), nil
}

// CanDeleteNote decides deletion of a note.
func (e *Evaluator) CanDeleteNote(ctx context.Context, a Actor, n *models.Note) (Decision, *models.Voice, error) {
	scope, voice, err := e.NoteScope(ctx, n)
	if err != nil {
		return Decision{}, nil, err
	}
	if a.Privileged() || a.Is(scope.DoctorID) {
		return allow(scope), voice, nil
	}
	return deny(scope, "only the recording doctor can delete this note"), voice, nil
}

// CanCreateRemarque decides whether the actor may comment on the note as creatorID.
func (e *Evaluator) CanCreateRemarque(ctx context.Context, a Actor, n *models.Note, creatorID string) (Decision, error) {
	if creatorID != "" && !a.Is(creatorID) {
		return deny(Scope{}, "a remarque can only be created in your own name"), nil
	}
	return e.CanReadNote(ctx, a, n)
}

// CanManageEdge decides who may create or remove a relationship edge.
func (e *Evaluator) CanManageEdge(a Actor, kind graph.EdgeKind, fromID string) Decision {
	if a.Privileged() {
		return allow(Scope{})
	}
	if kind == graph.DoctorPatient && a.Role == models.RoleDoctor && a.Is(fromID) {
		return allow(Scope{DoctorID: fromID})
	}
	return deny(Scope{}, "not allowed to manage this relationship")
}

// VoiceListing decides listing voices anchored on a user.
func (e *Evaluator) VoiceListing(ctx context.Context, a Actor, anchor Anchor) (ListScope, error) {
	if a.Privileged() {
		return ListScope{Allowed: true}, nil
	}
	switch anchor.Role {
	case models.RoleDoctor, models.RoleManager, models.RoleAssistant:
		return ListScope{Allowed: a.Is(anchor.ID) && a.Role == anchor.Role}, nil
	case models.RolePatient:
		return e.patientListing(ctx, a, anchor.ID)
	}
	return ListScope{}, nil
}

// NoteListing decides listing notes anchored on a user.
func (e *Evaluator) NoteListing(ctx context.Context, a Actor, anchor Anchor) (ListScope, error) {
	if a.Privileged() {
		return ListScope{Allowed: true}, nil
	}
	switch anchor.Role {
	case models.RoleDoctor, models.RoleManager:
		return ListScope{Allowed: a.Is(anchor.ID) && a.Role == anchor.Role}, nil
	case models.RoleAssistant:
		if a.Is(anchor.ID) {
			return ListScope{Allowed: true}, nil
		}
		if a.Role != models.RoleManager {
			return ListScope{}, nil
		}
		managers, err := e.graph.AssistantManagers(ctx, anchor.ID)
		if err != nil {
			return ListScope{}, err
		}
		return ListScope{Allowed: lo.Contains(managers, a.ID)}, nil
	case models.RolePatient:
		return e.patientListing(ctx, a, anchor.ID)
	}
	return ListScope{}, nil
}

// patientListing lets a patient see everything about themself and a doctor
// only what they recorded.
func (e *Evaluator) patientListing(ctx context.Context, a Actor, patientID string) (ListScope, error) {
	if a.Is(patientID) {
		return ListScope{Allowed: true}, nil
	}
	if a.Role != models.RoleDoctor {
		return ListScope{}, nil
	}
	doctors, err := e.graph.PatientDoctors(ctx, patientID)
	if err != nil {
		return ListScope{}, err
	}
	if !lo.Contains(doctors, a.ID) {
		return ListScope{}, nil
	}
	return ListScope{Allowed: true, DoctorID: a.ID}, nil
}

// SearchScope returns the set of users whose records the actor may search.
func (e *Evaluator) SearchScope(ctx context.Context, a Actor) (search.Scope, error) {
	if e.searchMode == SearchSelfOnly {
		return search.Restricted(a.ID), nil
	}
	if a.Privileged() {
		return search.Unrestricted(), nil
	}
	if a.Role != models.RoleManager {
		return search.Restricted(a.ID), nil
	}
	doctors, err := e.graph.DoctorsOfManager(ctx, a.ID)
	if err != nil {
		return search.Scope{}, err
	}
	assistants, err := e.graph.ManagerAssistants(ctx, a.ID)
	if err != nil {
		return search.Scope{}, err
	}
	return search.Restricted(lo.Uniq(append(append([]string{a.ID}, doctors...), assistants...))...), nil
}

// PatientView decides how much of a patient record the actor may see.
func (e *Evaluator) PatientView(ctx context.Context, a Actor, patientID string) (PatientView, error) {
	if a.Privileged() || a.Is(patientID) {
		return PatientFull, nil
	}
	switch a.Role {
	case models.RoleDoctor:
		doctors, err := e.graph.PatientDoctors(ctx, patientID)
		if err != nil {
			return PatientHidden, err
		}
		voiceDoctors, err := e.graph.PatientVoiceDoctors(ctx, patientID)
		if err != nil {
			return PatientHidden, err
		}
		if lo.Contains(doctors, a.ID) || lo.Contains(voiceDoctors, a.ID) {
			return PatientFull, nil
		}
	case models.RoleManager:
		managers, err := e.graph.PatientManagers(ctx, patientID)
		if err != nil {
			return PatientHidden, err
		}
		if lo.Contains(managers, a.ID) {
			return PatientSummary, nil
		}
	case models.RoleAssistant:
		assistants, err := e.graph.PatientAssistants(ctx, patientID)
		if err != nil {
			return PatientHidden, err
		}
		if lo.Contains(assistants, a.ID) {
			return PatientSummary, nil
		}
	}
	return PatientHidden, nil
}

// CanEditPatient decides updates to a patient record.
func (e *Evaluator) CanEditPatient(ctx context.Context, a Actor, patientID string) (Decision, error) {
	scope := Scope{PatientID: patientID}
	if a.Privileged() {
		return allow(scope), nil
	}
	if a.Role == models.RoleDoctor {
		doctors, err := e.graph.PatientDoctors(ctx, patientID)
		if err != nil {
			return Decision{}, err
		}
		if lo.Contains(doctors, a.ID) {
			return allow(scope), nil
		}
	}
	return deny(scope, "only the patient's doctors can edit this patient"), nil
}
