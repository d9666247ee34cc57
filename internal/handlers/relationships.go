package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/samber/lo"

	"medical-dictation-server/internal/dictation"
	"medical-dictation-server/internal/graph"
	"medical-dictation-server/internal/middleware"
	"medical-dictation-server/internal/models"
	"medical-dictation-server/internal/utils"
)

// RelationshipHandler manages the doctor, patient, manager and assistant edges.
type RelationshipHandler struct {
	Service *dictation.Service
}

// NewRelationshipHandler creates a new RelationshipHandler.
func NewRelationshipHandler(svc *dictation.Service) *RelationshipHandler {
	return &RelationshipHandler{Service: svc}
}

// Link creates an edge of :kind between :from and :to.
func (h *RelationshipHandler) Link(c *gin.Context) {
	kind, err := graph.ParseEdgeKind(c.Param("kind"))
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	actor, _ := middleware.CurrentActor(c)
	edge, err := h.Service.Link(c.Request.Context(), actor, kind, c.Param("from"), c.Param("to"))
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.Created(c, "Relationship created successfully", edge)
}

// Unlink removes the edge of :kind between :from and :to.
func (h *RelationshipHandler) Unlink(c *gin.Context) {
	kind, err := graph.ParseEdgeKind(c.Param("kind"))
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	actor, _ := middleware.CurrentActor(c)
	edge, err := h.Service.Unlink(c.Request.Context(), actor, kind, c.Param("from"), c.Param("to"))
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.Success(c, "Relationship removed successfully", edge)
}

// Related returns a handler listing the users linked to :id by kind in direction dir.
func (h *RelationshipHandler) Related(kind graph.EdgeKind, dir graph.Direction) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, _ := middleware.CurrentActor(c)
		users, err := h.Service.Related(c.Request.Context(), actor, kind, c.Param("id"), dir)
		if err != nil {
			utils.HandleError(c, err)
			return
		}
		utils.Success(c, "Users fetched successfully", lo.Map(users, func(u models.User, _ int) models.UserSanitized {
			return u.Sanitize()
		}))
	}
}
