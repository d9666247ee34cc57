package access

import (
	"github.com/samber/lo"

	"medical-dictation-server/internal/apperr"
	"medical-dictation-server/internal/models"
)

// Scope is the set of users related to a voice or a note.
type Scope struct {
	DoctorID   string
	PatientID  string
	Managers   []string
	Assistants []string
	ModifierID string
	Note       *models.Note
}

// HasManager reports whether id supervises the resource.
func (s Scope) HasManager(id string) bool { return lo.Contains(s.Managers, id) }

// HasAssistant reports whether id is in the resource's assistant set.
func (s Scope) HasAssistant(id string) bool { return lo.Contains(s.Assistants, id) }

// Decision is the outcome of an authorization check.
type Decision struct {
	Allowed bool
	Reason  string
	Scope   Scope
}

func allow(scope Scope) Decision {
	return Decision{Allowed: true, Scope: scope}
}

func deny(scope Scope, reason string) Decision {
	return Decision{Allowed: false, Reason: reason, Scope: scope}
}

// Err returns a Forbidden error when the decision denies access.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return apperr.Forbidden("%s", d.Reason)
}

// EditMode is what an actor may change on a note.
type EditMode int

const (
	EditNone EditMode = iota
	// EditContent allows changing the text; the validated flag is kept.
	EditContent
	// EditFull also allows changing the validated flag.
	EditFull
)

// ListScope says whether a listing may run and how it is narrowed.
type ListScope struct {
	Allowed bool
	// DoctorID, when set, restricts a patient listing to one doctor's voices.
	DoctorID string
}

// Anchor is the user a listing is centred on.
type Anchor struct {
	Role models.Role
	ID   string
}

// PatientView is how much of a patient record an actor may see.
type PatientView int

const (
	PatientHidden PatientView = iota
	PatientSummary
	PatientFull
)
