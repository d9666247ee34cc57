package dictation

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"medical-dictation-server/internal/access"
	"medical-dictation-server/internal/apperr"
	"medical-dictation-server/internal/models"
	"medical-dictation-server/internal/storage"
)

// VoiceInput describes a new recording. Audio is base64 encoded.
type VoiceInput struct {
	DoctorID    string
	PatientID   string
	Title       string
	Remarque    string
	FolderID    string
	Filename    string
	AudioBase64 string
}

// VoiceUpdate holds the editable voice fields; nil leaves a field unchanged.
type VoiceUpdate struct {
	Title    *string
	Remarque *string
	FolderID *string
}

// Audio is a downloaded recording.
type Audio struct {
	Filename    string
	ContentType string
	Data        []byte
}

func (s *Service) decodeAudio(encoded string) ([]byte, error) {
	if encoded == "" {
		return nil, apperr.Validation("audio is required")
	}
	if s.maxAudio > 0 && base64.StdEncoding.DecodedLen(len(encoded)) > s.maxAudio+2 {
		return nil, apperr.Validation("audio exceeds %d bytes", s.maxAudio)
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, apperr.Validation("audio is not valid base64: %v", err)
	}
	if len(data) == 0 {
		return nil, apperr.Validation("audio is empty")
	}
	if s.maxAudio > 0 && len(data) > s.maxAudio {
		return nil, apperr.Validation("audio exceeds %d bytes", s.maxAudio)
	}
	return data, nil
}

func contentType(filename string) string {
	if ct := mime.TypeByExtension(filepath.Ext(filename)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// blobFilename strips the "<uuid>_" prefix added when the recording was stored.
func blobFilename(path string) string {
	base := filepath.Base(path)
	if i := strings.IndexByte(base, '_'); i >= 0 {
		return base[i+1:]
	}
	return base
}

// CreateVoice stores a recording and notifies the assistants who may transcribe it.
func (s *Service) CreateVoice(ctx context.Context, a access.Actor, in VoiceInput) (*models.Voice, error) {
	if in.DoctorID == "" {
		in.DoctorID = a.ID
	}
	if in.PatientID == "" {
		return nil, apperr.Validation("patient is required")
	}
	audio, err := s.decodeAudio(in.AudioBase64)
	if err != nil {
		return nil, err
	}
	doctor, err := s.user(ctx, in.DoctorID, models.RoleDoctor)
	if err != nil {
		return nil, err
	}
	if _, err := s.user(ctx, in.PatientID, models.RolePatient); err != nil {
		return nil, err
	}
	d, err := s.access.CanCreateVoice(ctx, a, in.DoctorID, in.PatientID)
	if err != nil {
		return nil, err
	}
	if err := d.Err(); err != nil {
		return nil, err
	}

	filename := filepath.Base(strings.TrimSpace(in.Filename))
	if filename == "" || filename == "." || filename == "/" {
		filename = "voice.wav"
	}
	path, err := s.blobs.Put(ctx, uuid.NewString()+"_"+filename, audio, contentType(filename))
	if err != nil {
		return nil, fmt.Errorf("store recording: %w", err)
	}

	voice := &models.Voice{
		DoctorID:  in.DoctorID,
		PatientID: in.PatientID,
		Path:      path,
		Title:     in.Title,
		Remarque:  in.Remarque,
		FolderID:  in.FolderID,
	}
	if err := s.db.WithContext(ctx).Create(voice).Error; err != nil {
		if delErr := s.blobs.Delete(ctx, path); delErr != nil {
			s.log.Warn("remove orphaned recording", slog.String("path", path), slog.Any("error", delErr))
		}
		return nil, fmt.Errorf("create voice: %w", err)
	}

	assistants, err := s.graph.DoctorAssistants(ctx, voice.DoctorID)
	if err != nil {
		s.log.Warn("resolve assistants for notification", slog.String("voice_id", voice.ID), slog.Any("error", err))
		return voice, nil
	}
	s.notify(ctx, "New dictation from "+doctor.FullName, map[string]string{
		"event":     "voice_created",
		"voice_id":  voice.ID,
		"doctor_id": voice.DoctorID,
		"title":     voice.Title,
	}, assistants)
	return voice, nil
}

// GetVoice returns a voice the actor may read.
func (s *Service) GetVoice(ctx context.Context, a access.Actor, id string) (*models.Voice, error) {
	v, err := s.voice(ctx, id)
	if err != nil {
		return nil, err
	}
	d, err := s.access.CanReadVoice(ctx, a, v)
	if err != nil {
		return nil, err
	}
	if err := d.Err(); err != nil {
		return nil, err
	}
	return v, nil
}

// GetVoiceNote returns the note of a voice the actor may read.
func (s *Service) GetVoiceNote(ctx context.Context, a access.Actor, voiceID string) (*NoteDetail, error) {
	v, err := s.voice(ctx, voiceID)
	if err != nil {
		return nil, err
	}
	d, err := s.access.CanReadVoice(ctx, a, v)
	if err != nil {
		return nil, err
	}
	if err := d.Err(); err != nil {
		return nil, err
	}
	if d.Scope.Note == nil {
		return nil, apperr.NotFound("voice %s has no note yet", voiceID)
	}
	return s.detail(ctx, d.Scope.Note, v)
}

// GetVoiceAudio loads the recording of a voice.
func (s *Service) GetVoiceAudio(ctx context.Context, a access.Actor, id string) (*Audio, error) {
	v, err := s.voice(ctx, id)
	if err != nil {
		return nil, err
	}
	d, err := s.access.CanReadVoiceAudio(ctx, a, v)
	if err != nil {
		return nil, err
	}
	if err := d.Err(); err != nil {
		return nil, err
	}
	data, err := s.blobs.Get(ctx, v.Path)
	if err != nil {
		if errors.Is(err, storage.ErrNoObject) {
			return nil, apperr.NotFound("recording of voice %s not found", id)
		}
		return nil, fmt.Errorf("load recording: %w", err)
	}
	name := blobFilename(v.Path)
	return &Audio{Filename: name, ContentType: contentType(name), Data: data}, nil
}

// UpdateVoice changes the title, remarque or folder of a voice.
func (s *Service) UpdateVoice(ctx context.Context, a access.Actor, id string, in VoiceUpdate) (*models.Voice, error) {
	v, err := s.voice(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.access.CanModifyVoice(a, v).Err(); err != nil {
		return nil, err
	}
	updates := map[string]any{}
	if in.Title != nil {
		updates["title"] = *in.Title
	}
	if in.Remarque != nil {
		updates["remarque"] = *in.Remarque
	}
	if in.FolderID != nil {
		updates["folder_id"] = *in.FolderID
	}
	if len(updates) == 0 {
		return v, nil
	}
	if err := s.db.WithContext(ctx).Model(v).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("update voice %s: %w", id, err)
	}
	return s.voice(ctx, id)
}

// DeleteVoice removes a voice with its note and remarques, then its recording.
func (s *Service) DeleteVoice(ctx context.Context, a access.Actor, id string) (*models.Voice, error) {
	v, err := s.voice(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.access.CanModifyVoice(a, v).Err(); err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		noteIDs := tx.Model(&models.Note{}).Select("id").Where("voice_id = ?", v.ID)
		if err := tx.Where("note_id IN (?)", noteIDs).Delete(&models.RemarqueNote{}).Error; err != nil {
			return fmt.Errorf("delete remarques: %w", err)
		}
		if err := tx.Where("voice_id = ?", v.ID).Delete(&models.Note{}).Error; err != nil {
			return fmt.Errorf("delete notes: %w", err)
		}
		if err := tx.Delete(v).Error; err != nil {
			return fmt.Errorf("delete voice: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.blobs.Delete(ctx, v.Path); err != nil && !errors.Is(err, storage.ErrNoObject) {
		s.log.Warn("delete recording", slog.String("voice_id", v.ID), slog.String("path", v.Path), slog.Any("error", err))
	}
	return v, nil
}
