package dictation

import (
	"context"
	"fmt"

	"medical-dictation-server/internal/access"
	"medical-dictation-server/internal/apperr"
	"medical-dictation-server/internal/graph"
	"medical-dictation-server/internal/models"
)

// Link creates the edge from -> to, checking both endpoints carry the right role.
func (s *Service) Link(ctx context.Context, a access.Actor, kind graph.EdgeKind, from, to string) (*graph.Edge, error) {
	if err := s.access.CanManageEdge(a, kind, from).Err(); err != nil {
		return nil, err
	}
	fromRole, toRole := kind.Roles()
	if _, err := s.user(ctx, from, fromRole); err != nil {
		return nil, err
	}
	if _, err := s.user(ctx, to, toRole); err != nil {
		return nil, err
	}
	return s.graph.UpsertEdge(ctx, kind, from, to)
}

// Unlink removes the edge from -> to.
func (s *Service) Unlink(ctx context.Context, a access.Actor, kind graph.EdgeKind, from, to string) (*graph.Edge, error) {
	if err := s.access.CanManageEdge(a, kind, from).Err(); err != nil {
		return nil, err
	}
	return s.graph.RemoveEdge(ctx, kind, from, to)
}

// Related lists the users on the other side of anchor's edges of one kind.
// Only the anchor and privileged users may look.
func (s *Service) Related(ctx context.Context, a access.Actor, kind graph.EdgeKind, anchor string, dir graph.Direction) ([]models.User, error) {
	fromRole, toRole := kind.Roles()
	anchorRole := fromRole
	if dir == graph.Backward {
		anchorRole = toRole
	}
	if !a.Privileged() && !(a.Is(anchor) && a.Role == anchorRole) {
		return nil, apperr.Forbidden("not allowed to list relationships of %s", anchor)
	}
	if _, err := s.user(ctx, anchor, anchorRole); err != nil {
		return nil, err
	}
	ids, err := s.graph.Neighbors(ctx, kind, anchor, dir)
	if err != nil {
		return nil, err
	}
	users := []models.User{}
	if len(ids) == 0 {
		return users, nil
	}
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Order("full_name").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("load related users: %w", err)
	}
	return users, nil
}
