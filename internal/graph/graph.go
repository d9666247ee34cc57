// Package graph stores the Doctor->Manager, Doctor->Patient and
// Assistant->Manager relationship edges and answers the traversals
// authorization depends on.
package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"gorm.io/gorm"

	"medical-dictation-server/internal/apperr"
	"medical-dictation-server/internal/models"
)

// EdgeKind names one of the three relationship tables.
type EdgeKind string

const (
	DoctorManager    EdgeKind = "doctor-manager"
	DoctorPatient    EdgeKind = "doctor-patient"
	AssistantManager EdgeKind = "assistant-manager"
)

// Direction selects which endpoint of an edge Neighbors returns.
type Direction int

const (
	// Forward returns the "to" endpoints of edges whose "from" is the anchor.
	Forward Direction = iota
	// Backward returns the "from" endpoints of edges whose "to" is the anchor.
	Backward
)

type edgeSpec struct {
	table    string
	from     string
	to       string
	fromRole models.Role
	toRole   models.Role
	model    func() any
}

var specs = map[EdgeKind]edgeSpec{
	DoctorManager: {"doctor_managers", "doctor_id", "manager_id", models.RoleDoctor, models.RoleManager,
		func() any { return &models.DoctorManager{} }},
	DoctorPatient: {"doctor_patients", "doctor_id", "patient_id", models.RoleDoctor, models.RolePatient,
		func() any { return &models.DoctorPatient{} }},
	AssistantManager: {"assistant_managers", "assistant_id", "manager_id", models.RoleAssistant, models.RoleManager,
		func() any { return &models.AssistantManager{} }},
}

// ParseEdgeKind validates a kind coming from a URL segment.
func ParseEdgeKind(s string) (EdgeKind, error) {
	k := EdgeKind(s)
	if _, ok := specs[k]; !ok {
		return "", apperr.Validation("unknown relationship %q", s)
	}
	return k, nil
}

// Roles returns the roles the from and to endpoints must carry.
func (k EdgeKind) Roles() (from, to models.Role) {
	s := specs[k]
	return s.fromRole, s.toRole
}

// Edge is one relationship row.
type Edge struct {
	ID        string    `json:"id"`
	Kind      EdgeKind  `json:"kind" gorm:"-"`
	FromID    string    `json:"fromId"`
	ToID      string    `json:"toId"`
	CreatedAt time.Time `json:"createdAt"`
}

// Store reads and writes relationship edges.
type Store struct {
	db *gorm.DB
}

// NewStore creates a Store over db.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// WithTx returns a Store bound to the given transaction.
func (s *Store) WithTx(tx *gorm.DB) *Store {
	return &Store{db: tx}
}

func (s *Store) find(ctx context.Context, kind EdgeKind, from, to string) (*Edge, error) {
	spec := specs[kind]
	var edges []Edge
	err := s.db.WithContext(ctx).
		Table(spec.table).
		Select(fmt.Sprintf("id, %s AS from_id, %s AS to_id, created_at", spec.from, spec.to)).
		Where(spec.from+" = ? AND "+spec.to+" = ?", from, to).
		Limit(1).
		Find(&edges).Error
	if err != nil {
		return nil, fmt.Errorf("find %s edge: %w", kind, err)
	}
	if len(edges) == 0 {
		return nil, nil
	}
	edges[0].Kind = kind
	return &edges[0], nil
}

// HasEdge reports whether the edge from -> to exists.
func (s *Store) HasEdge(ctx context.Context, kind EdgeKind, from, to string) (bool, error) {
	e, err := s.find(ctx, kind, from, to)
	return e != nil, err
}

// UpsertEdge returns the existing edge from -> to or creates it.
func (s *Store) UpsertEdge(ctx context.Context, kind EdgeKind, from, to string) (*Edge, error) {
	spec, ok := specs[kind]
	if !ok {
		return nil, apperr.Validation("unknown relationship %q", kind)
	}
	if e, err := s.find(ctx, kind, from, to); err != nil || e != nil {
		return e, err
	}

	e := &Edge{ID: uuid.NewString(), Kind: kind, FromID: from, ToID: to, CreatedAt: time.Now()}
	err := s.db.WithContext(ctx).Model(spec.model()).Create(map[string]any{
		"id":         e.ID,
		spec.from:    from,
		spec.to:      to,
		"created_at": e.CreatedAt,
	}).Error
	if err != nil {
		// A concurrent upsert may have won the unique index.
		if existing, findErr := s.find(ctx, kind, from, to); findErr == nil && existing != nil {
			return existing, nil
		}
		return nil, fmt.Errorf("create %s edge: %w", kind, err)
	}
	return e, nil
}

// RemoveEdge deletes the edge from -> to and returns it.
func (s *Store) RemoveEdge(ctx context.Context, kind EdgeKind, from, to string) (*Edge, error) {
	spec, ok := specs[kind]
	if !ok {
		return nil, apperr.Validation("unknown relationship %q", kind)
	}
	e, err := s.find(ctx, kind, from, to)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, apperr.NotFound("%s relationship %s -> %s does not exist", kind, from, to)
	}
	err = s.db.WithContext(ctx).Where("id = ?", e.ID).Delete(spec.model()).Error
	if err != nil {
		return nil, fmt.Errorf("delete %s edge: %w", kind, err)
	}
	return e, nil
}

// Neighbors returns the deduplicated IDs adjacent to anchor.
func (s *Store) Neighbors(ctx context.Context, kind EdgeKind, anchor string, dir Direction) ([]string, error) {
	spec, ok := specs[kind]
	if !ok {
		return nil, apperr.Validation("unknown relationship %q", kind)
	}
	match, pick := spec.from, spec.to
	if dir == Backward {
		match, pick = spec.to, spec.from
	}
	var ids []string
	err := s.db.WithContext(ctx).
		Table(spec.table).
		Where(match+" = ?", anchor).
		Order(pick).
		Distinct().
		Pluck(pick, &ids).Error
	if err != nil {
		return nil, fmt.Errorf("%s neighbors of %s: %w", kind, anchor, err)
	}
	return lo.Uniq(ids), nil
}

// ManagersOfDoctor returns the managers supervising a doctor.
func (s *Store) ManagersOfDoctor(ctx context.Context, doctorID string) ([]string, error) {
	return s.Neighbors(ctx, DoctorManager, doctorID, Forward)
}

// DoctorsOfManager returns the doctors a manager supervises.
func (s *Store) DoctorsOfManager(ctx context.Context, managerID string) ([]string, error) {
	return s.Neighbors(ctx, DoctorManager, managerID, Backward)
}

// PatientsOfDoctor returns the patients of a doctor.
func (s *Store) PatientsOfDoctor(ctx context.Context, doctorID string) ([]string, error) {
	return s.Neighbors(ctx, DoctorPatient, doctorID, Forward)
}

// PatientDoctors returns the doctors linked to a patient.
func (s *Store) PatientDoctors(ctx context.Context, patientID string) ([]string, error) {
	return s.Neighbors(ctx, DoctorPatient, patientID, Backward)
}

// AssistantManagers returns the managers an assistant reports to.
func (s *Store) AssistantManagers(ctx context.Context, assistantID string) ([]string, error) {
	return s.Neighbors(ctx, AssistantManager, assistantID, Forward)
}

// ManagerAssistants returns the assistants reporting to a manager.
func (s *Store) ManagerAssistants(ctx context.Context, managerID string) ([]string, error) {
	return s.Neighbors(ctx, AssistantManager, managerID, Backward)
}

// DoctorAssistants returns every assistant reachable doctor -> manager -> assistant.
func (s *Store) DoctorAssistants(ctx context.Context, doctorID string) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).
		Table("doctor_managers").
		Joins("JOIN assistant_managers ON assistant_managers.manager_id = doctor_managers.manager_id").
		Where("doctor_managers.doctor_id = ?", doctorID).
		Order("assistant_managers.assistant_id").
		Distinct().
		Pluck("assistant_managers.assistant_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("assistants of doctor %s: %w", doctorID, err)
	}
	return lo.Uniq(ids), nil
}

// PatientManagers returns every manager reachable patient <- doctor -> manager.
func (s *Store) PatientManagers(ctx context.Context, patientID string) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).
		Table("doctor_patients").
		Joins("JOIN doctor_managers ON doctor_managers.doctor_id = doctor_patients.doctor_id").
		Where("doctor_patients.patient_id = ?", patientID).
		Order("doctor_managers.manager_id").
		Distinct().
		Pluck("doctor_managers.manager_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("managers of patient %s: %w", patientID, err)
	}
	return lo.Uniq(ids), nil
}

// PatientAssistants returns the assistants who authored notes on the patient's voices.
func (s *Store) PatientAssistants(ctx context.Context, patientID string) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).
		Table("notes").
		Joins("JOIN voices ON voices.id = notes.voice_id").
		Where("voices.patient_id = ?", patientID).
		Order("notes.assistant_id").
		Distinct().
		Pluck("notes.assistant_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("assistants of patient %s: %w", patientID, err)
	}
	return lo.Uniq(ids), nil
}

// PatientVoiceDoctors returns the doctors who recorded voices about the patient.
func (s *Store) PatientVoiceDoctors(ctx context.Context, patientID string) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).
		Table("voices").
		Where("patient_id = ?", patientID).
		Order("doctor_id").
		Distinct().
		Pluck("doctor_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("voice doctors of patient %s: %w", patientID, err)
	}
	return lo.Uniq(ids), nil
}
