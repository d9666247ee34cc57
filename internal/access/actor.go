// Package access decides who may read or change voices, notes and
// remarques, based on the relationship graph and the dynamic assistant
// scope of each voice.
package access

import "medical-dictation-server/internal/models"

// Actor is the authenticated user making a request.
type Actor struct {
	ID        string
	Role      models.Role
	Superuser bool
}

// ActorFromUser builds the actor for an authenticated user.
func ActorFromUser(u *models.User) Actor {
	return Actor{ID: u.ID, Role: u.Role, Superuser: u.IsSuperuser}
}

// Privileged reports whether the actor bypasses relationship checks.
func (a Actor) Privileged() bool {
	return a.Superuser || a.Role == models.RoleAdmin
}

// Is reports whether the actor is the user with the given id.
func (a Actor) Is(id string) bool {
	return id != "" && a.ID == id
}
