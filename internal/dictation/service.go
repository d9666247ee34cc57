// Package dictation implements the voice, note and remarque workflows:
// authorization first, then the transactional write, then best-effort
// notifications once the write is committed.
package dictation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"medical-dictation-server/internal/access"
	"medical-dictation-server/internal/apperr"
	"medical-dictation-server/internal/graph"
	"medical-dictation-server/internal/models"
	"medical-dictation-server/internal/notify"
	"medical-dictation-server/internal/query"
	"medical-dictation-server/internal/search"
	"medical-dictation-server/internal/storage"
)

// Service runs dictation workflows.
type Service struct {
	db       *gorm.DB
	graph    *graph.Store
	access   *access.Evaluator
	query    *query.Store
	search   *search.Composer
	blobs    storage.Store
	notifier *notify.Dispatcher
	log      *slog.Logger
	maxAudio int
	now      func() time.Time
}

// Deps are the collaborators of a Service.
type Deps struct {
	DB            *gorm.DB
	Graph         *graph.Store
	Access        *access.Evaluator
	Query         *query.Store
	Search        *search.Composer
	Blobs         storage.Store
	Notifier      *notify.Dispatcher
	Log           *slog.Logger
	MaxAudioBytes int
}

// NewService creates a Service.
func NewService(d Deps) *Service {
	return &Service{
		db:       d.DB,
		graph:    d.Graph,
		access:   d.Access,
		query:    d.Query,
		search:   d.Search,
		blobs:    d.Blobs,
		notifier: d.Notifier,
		log:      d.Log,
		maxAudio: d.MaxAudioBytes,
		now:      time.Now,
	}
}

func first[T any](ctx context.Context, db *gorm.DB, what, id string) (*T, error) {
	var v T
	if err := db.WithContext(ctx).First(&v, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("%s %s not found", what, id)
		}
		return nil, fmt.Errorf("load %s %s: %w", what, id, err)
	}
	return &v, nil
}

func (s *Service) user(ctx context.Context, id string, role models.Role) (*models.User, error) {
	u, err := first[models.User](ctx, s.db, string(role), id)
	if err != nil {
		return nil, err
	}
	if u.Role != role {
		return nil, apperr.NotFound("%s %s not found", role, id)
	}
	return u, nil
}

func (s *Service) voice(ctx context.Context, id string) (*models.Voice, error) {
	return first[models.Voice](ctx, s.db, "voice", id)
}

func (s *Service) note(ctx context.Context, id string) (*models.Note, error) {
	return first[models.Note](ctx, s.db, "note", id)
}

// notify resolves device tokens for userIDs and dispatches in the background.
func (s *Service) notify(ctx context.Context, title string, body map[string]string, userIDs []string) {
	tokens, err := s.query.DeviceTokens(ctx, userIDs)
	if err != nil {
		s.log.Warn("resolve device tokens", slog.String("title", title), slog.Any("error", err))
		return
	}
	s.notifier.Dispatch(notify.Notification{Title: title, Body: body, Tokens: tokens})
}

// fullName returns "" for an unknown user.
func fullName(ctx context.Context, db *gorm.DB, id string) (string, error) {
	var names []string
	err := db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Limit(1).Pluck("full_name", &names).Error
	if err != nil {
		return "", fmt.Errorf("load name of user %s: %w", id, err)
	}
	if len(names) == 0 {
		return "", nil
	}
	return names[0], nil
}
