package handlers

import (
	"github.com/gin-gonic/gin"

	"medical-dictation-server/internal/access"
	"medical-dictation-server/internal/dictation"
	"medical-dictation-server/internal/middleware"
	"medical-dictation-server/internal/models"
	"medical-dictation-server/internal/search"
	"medical-dictation-server/internal/utils"
)

const (
	defaultNoteLimit     = 5
	defaultRemarqueLimit = 20
)

// NoteHandler handles transcriptions, their remarques and search.
type NoteHandler struct {
	Service *dictation.Service
}

// NewNoteHandler creates a new NoteHandler.
func NewNoteHandler(svc *dictation.Service) *NoteHandler {
	return &NoteHandler{Service: svc}
}

// CreateNoteRequest claims a voice for transcription.
type CreateNoteRequest struct {
	VoiceID     string `json:"voiceId" binding:"required"`
	AssistantID string `json:"assistantId"`
	Content     string `json:"content"`
}

// CreateNote creates the note of a voice.
func (h *NoteHandler) CreateNote(c *gin.Context) {
	var req CreateNoteRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}
	actor, _ := middleware.CurrentActor(c)

	note, err := h.Service.CreateNote(c.Request.Context(), actor, dictation.NoteInput{
		VoiceID:     req.VoiceID,
		AssistantID: req.AssistantID,
		Content:     req.Content,
	})
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.Created(c, "Note created successfully", note)
}

// GetNote returns one note with the doctor and patient names.
func (h *NoteHandler) GetNote(c *gin.Context) {
	actor, _ := middleware.CurrentActor(c)
	note, err := h.Service.GetNote(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.Success(c, "Note fetched successfully", note)
}

// UpdateNoteRequest holds the editable note fields.
type UpdateNoteRequest struct {
	Content   *string `json:"content"`
	Validated *bool   `json:"validated"`
}

// UpdateNote edits a note.
func (h *NoteHandler) UpdateNote(c *gin.Context) {
	var req UpdateNoteRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}
	actor, _ := middleware.CurrentActor(c)

	note, err := h.Service.UpdateNote(c.Request.Context(), actor, c.Param("id"), dictation.NoteUpdate{
		Content:   req.Content,
		Validated: req.Validated,
	})
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.Success(c, "Note updated successfully", note)
}

// DeleteNote deletes a note and releases its voice.
func (h *NoteHandler) DeleteNote(c *gin.Context) {
	actor, _ := middleware.CurrentActor(c)
	note, err := h.Service.DeleteNote(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.Success(c, "Note deleted successfully", note)
}

// ListNotes returns a handler listing notes anchored on the :id user of
// the given role. An empty role lists every note.
func (h *NoteHandler) ListNotes(role models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, _ := middleware.CurrentActor(c)
		anchor := access.Anchor{Role: role, ID: c.Param("id")}
		facets, err := utils.QueryFacets(c)
		if err != nil {
			utils.HandleError(c, err)
			return
		}

		if utils.WantCount(c) {
			total, err := h.Service.CountNotes(c.Request.Context(), actor, anchor, facets)
			if err != nil {
				utils.HandleError(c, err)
				return
			}
			utils.Success(c, "Notes counted successfully", gin.H{"count": total})
			return
		}

		page, err := utils.QueryPage(c, defaultNoteLimit)
		if err != nil {
			utils.HandleError(c, err)
			return
		}
		notes, err := h.Service.ListNotes(c.Request.Context(), actor, anchor, facets, page)
		if err != nil {
			utils.HandleError(c, err)
			return
		}
		utils.Success(c, "Notes fetched successfully", notes)
	}
}

// Search finds voices and notes by text, patient name, date and status.
func (h *NoteHandler) Search(c *gin.Context) {
	actor, _ := middleware.CurrentActor(c)
	cr := search.Criteria{
		Text:        c.Query("text"),
		PatientName: c.Query("patient_name"),
	}
	var err error
	if cr.After, err = utils.QueryTime(c, "after"); err != nil {
		utils.HandleError(c, err)
		return
	}
	if cr.Before, err = utils.QueryTime(c, "before"); err != nil {
		utils.HandleError(c, err)
		return
	}
	if cr.Validated, err = utils.QueryBool(c, "validated"); err != nil {
		utils.HandleError(c, err)
		return
	}
	if cr.Treated, err = utils.QueryBool(c, "treated"); err != nil {
		utils.HandleError(c, err)
		return
	}
	page, err := utils.QueryPage(c, defaultNoteLimit)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	cr.Skip, cr.Limit = page.Skip, page.Limit

	results, err := h.Service.Search(c.Request.Context(), actor, cr)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.Success(c, "Search completed successfully", results)
}

// CreateRemarqueRequest is a review comment on a note.
type CreateRemarqueRequest struct {
	NoteID    string `json:"noteId" binding:"required"`
	CreatorID string `json:"creatorId"`
	Remarque  string `json:"remarque" binding:"required"`
}

// CreateRemarque adds a remarque to a note.
func (h *NoteHandler) CreateRemarque(c *gin.Context) {
	var req CreateRemarqueRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}
	actor, _ := middleware.CurrentActor(c)

	remarque, err := h.Service.CreateRemarque(c.Request.Context(), actor, dictation.RemarqueInput{
		NoteID:    req.NoteID,
		CreatorID: req.CreatorID,
		Remarque:  req.Remarque,
	})
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.Created(c, "Remarque created successfully", remarque)
}

// ListRemarques returns the remarques of a note, newest first.
func (h *NoteHandler) ListRemarques(c *gin.Context) {
	actor, _ := middleware.CurrentActor(c)
	page, err := utils.QueryPage(c, defaultRemarqueLimit)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	remarques, err := h.Service.ListRemarques(c.Request.Context(), actor, c.Param("id"), page)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.Success(c, "Remarques fetched successfully", remarques)
}

// SeenRequest sets the seen flag of a remarque.
type SeenRequest struct {
	Seen *bool `json:"seen" binding:"required"`
}

// MarkRemarqueSeen marks a remarque as seen or unseen.
func (h *NoteHandler) MarkRemarqueSeen(c *gin.Context) {
	var req SeenRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}
	actor, _ := middleware.CurrentActor(c)

	remarque, err := h.Service.MarkRemarqueSeen(c.Request.Context(), actor, c.Param("id"), *req.Seen)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.Success(c, "Remarque updated successfully", remarque)
}
