package dictation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"medical-dictation-server/internal/access"
	"medical-dictation-server/internal/apperr"
	"medical-dictation-server/internal/graph"
	"medical-dictation-server/internal/models"
)

// placeholderDomain is used for patients registered without an email.
const placeholderDomain = "patients.invalid"

// PatientInput describes a patient registered by a doctor.
type PatientInput struct {
	DoctorID  string
	FullName  string
	Email     string
	Password  string
	BirthDate *time.Time
}

// PatientUpdate holds the editable patient fields; nil leaves a field unchanged.
type PatientUpdate struct {
	FullName  *string
	Email     *string
	BirthDate *time.Time
}

// CreatePatient registers an inactive patient and links them to the doctor.
func (s *Service) CreatePatient(ctx context.Context, a access.Actor, in PatientInput) (*models.User, error) {
	if in.DoctorID == "" {
		in.DoctorID = a.ID
	}
	if !a.Privileged() && !(a.Role == models.RoleDoctor && a.Is(in.DoctorID)) {
		return nil, apperr.Forbidden("only doctors can register patients")
	}
	in.FullName = strings.TrimSpace(in.FullName)
	if in.FullName == "" {
		return nil, apperr.Validation("full name is required")
	}
	if _, err := s.user(ctx, in.DoctorID, models.RoleDoctor); err != nil {
		return nil, err
	}
	if in.Email == "" {
		in.Email = uuid.NewString() + "@" + placeholderDomain
	}
	if in.Password == "" {
		in.Password = uuid.NewString()
	}

	if err := s.ensureUniquePatient(ctx, "", in.Email, in.FullName, in.BirthDate); err != nil {
		return nil, err
	}

	patient := &models.User{
		Email:     in.Email,
		FullName:  in.FullName,
		BirthDate: in.BirthDate,
		Role:      models.RolePatient,
	}
	if err := patient.SetPassword(in.Password); err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(patient).Error; err != nil {
			return fmt.Errorf("create patient: %w", err)
		}
		_, err := s.graph.WithTx(tx).UpsertEdge(ctx, graph.DoctorPatient, in.DoctorID, patient.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return patient, nil
}

func (s *Service) ensureUniquePatient(ctx context.Context, selfID, email, fullName string, birthDate *time.Time) error {
	var existing models.User
	err := s.db.WithContext(ctx).Where("email = ? AND id <> ?", email, selfID).First(&existing).Error
	if err == nil {
		return apperr.Conflict("a user with this email already exists")
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("check email: %w", err)
	}
	if birthDate == nil {
		return nil
	}
	err = s.db.WithContext(ctx).
		Where("full_name = ? AND birth_date = ? AND id <> ?", fullName, *birthDate, selfID).
		First(&existing).Error
	if err == nil {
		return apperr.Conflict("a user with this name and birth date already exists")
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("check name and birth date: %w", err)
	}
	return nil
}

// GetPatient returns the full record or a summary depending on the actor's relation.
func (s *Service) GetPatient(ctx context.Context, a access.Actor, id string) (any, error) {
	p, err := s.user(ctx, id, models.RolePatient)
	if err != nil {
		return nil, err
	}
	view, err := s.access.PatientView(ctx, a, id)
	if err != nil {
		return nil, err
	}
	switch view {
	case access.PatientFull:
		return p.Sanitize(), nil
	case access.PatientSummary:
		return p.Summary(), nil
	}
	return nil, apperr.Forbidden("not allowed to view this patient")
}

// UpdatePatient edits a patient on behalf of one of their doctors.
func (s *Service) UpdatePatient(ctx context.Context, a access.Actor, id string, in PatientUpdate) (*models.User, error) {
	p, err := s.user(ctx, id, models.RolePatient)
	if err != nil {
		return nil, err
	}
	d, err := s.access.CanEditPatient(ctx, a, id)
	if err != nil {
		return nil, err
	}
	if err := d.Err(); err != nil {
		return nil, err
	}

	name, email, birth := p.FullName, p.Email, p.BirthDate
	if in.FullName != nil {
		name = strings.TrimSpace(*in.FullName)
		if name == "" {
			return nil, apperr.Validation("full name cannot be empty")
		}
	}
	if in.Email != nil {
		email = *in.Email
	}
	if in.BirthDate != nil {
		birth = in.BirthDate
	}
	if err := s.ensureUniquePatient(ctx, p.ID, email, name, birth); err != nil {
		return nil, err
	}
	updates := map[string]any{"full_name": name, "email": email, "birth_date": birth}
	if err := s.db.WithContext(ctx).Model(p).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("update patient %s: %w", id, err)
	}
	return s.user(ctx, id, models.RolePatient)
}
