package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"

	"medical-dictation-server/internal/access"
	"medical-dictation-server/internal/dictation"
	"medical-dictation-server/internal/middleware"
	"medical-dictation-server/internal/models"
	"medical-dictation-server/internal/utils"
)

const defaultVoiceLimit = 5

// VoiceHandler handles dictated recordings.
type VoiceHandler struct {
	Service *dictation.Service
}

// NewVoiceHandler creates a new VoiceHandler.
func NewVoiceHandler(svc *dictation.Service) *VoiceHandler {
	return &VoiceHandler{Service: svc}
}

// CreateVoiceRequest is the body of a new recording. Audio is base64 encoded.
type CreateVoiceRequest struct {
	DoctorID  string `json:"doctorId"`
	PatientID string `json:"patientId" binding:"required"`
	Title     string `json:"title" validate:"max=255"`
	Remarque  string `json:"remarque"`
	FolderID  string `json:"folderId"`
	Filename  string `json:"filename"`
	Audio     string `json:"audio" binding:"required"`
}

// CreateVoice stores a new recording.
func (h *VoiceHandler) CreateVoice(c *gin.Context) {
	var req CreateVoiceRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}
	actor, _ := middleware.CurrentActor(c)

	voice, err := h.Service.CreateVoice(c.Request.Context(), actor, dictation.VoiceInput{
		DoctorID:    req.DoctorID,
		PatientID:   req.PatientID,
		Title:       req.Title,
		Remarque:    req.Remarque,
		FolderID:    req.FolderID,
		Filename:    req.Filename,
		AudioBase64: req.Audio,
	})
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.Created(c, "Voice created successfully", voice)
}

// GetVoice returns one voice.
func (h *VoiceHandler) GetVoice(c *gin.Context) {
	actor, _ := middleware.CurrentActor(c)
	voice, err := h.Service.GetVoice(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.Success(c, "Voice fetched successfully", voice)
}

// GetVoiceNote returns the note transcribing a voice.
func (h *VoiceHandler) GetVoiceNote(c *gin.Context) {
	actor, _ := middleware.CurrentActor(c)
	note, err := h.Service.GetVoiceNote(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.Success(c, "Note fetched successfully", note)
}

// GetVoiceAudio streams the recording as an attachment.
func (h *VoiceHandler) GetVoiceAudio(c *gin.Context) {
	actor, _ := middleware.CurrentActor(c)
	audio, err := h.Service.GetVoiceAudio(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	c.Header("Content-Disposition", "attachment; filename="+strconv.Quote(audio.Filename))
	c.Data(http.StatusOK, audio.ContentType, audio.Data)
}

// UpdateVoiceRequest holds the editable voice fields.
type UpdateVoiceRequest struct {
	Title    *string `json:"title" validate:"omitempty,max=255"`
	Remarque *string `json:"remarque"`
	FolderID *string `json:"folderId"`
}

// UpdateVoice edits a voice.
func (h *VoiceHandler) UpdateVoice(c *gin.Context) {
	var req UpdateVoiceRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}
	actor, _ := middleware.CurrentActor(c)

	voice, err := h.Service.UpdateVoice(c.Request.Context(), actor, c.Param("id"), dictation.VoiceUpdate{
		Title:    req.Title,
		Remarque: req.Remarque,
		FolderID: req.FolderID,
	})
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.Success(c, "Voice updated successfully", voice)
}

// DeleteVoice deletes a voice with its note and remarques.
func (h *VoiceHandler) DeleteVoice(c *gin.Context) {
	actor, _ := middleware.CurrentActor(c)
	voice, err := h.Service.DeleteVoice(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.Success(c, "Voice deleted successfully", voice)
}

// ListVoices returns a handler listing voices anchored on the :id user of
// the given role. An empty role lists every voice.
func (h *VoiceHandler) ListVoices(role models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, _ := middleware.CurrentActor(c)
		anchor := access.Anchor{Role: role, ID: c.Param("id")}
		facets, err := utils.QueryFacets(c)
		if err != nil {
			utils.HandleError(c, err)
			return
		}
		// The assistant listing is their queue of voices still to transcribe.
		if role == models.RoleAssistant && facets.NoteCreated == nil {
			facets.NoteCreated = lo.ToPtr(false)
		}

		if utils.WantCount(c) {
			total, err := h.Service.CountVoices(c.Request.Context(), actor, anchor, facets)
			if err != nil {
				utils.HandleError(c, err)
				return
			}
			utils.Success(c, "Voices counted successfully", gin.H{"count": total})
			return
		}

		page, err := utils.QueryPage(c, defaultVoiceLimit)
		if err != nil {
			utils.HandleError(c, err)
			return
		}
		voices, err := h.Service.ListVoices(c.Request.Context(), actor, anchor, facets, page)
		if err != nil {
			utils.HandleError(c, err)
			return
		}
		utils.Success(c, "Voices fetched successfully", voices)
	}
}
