package handler

import (
	"net/http"
	"strconv"

	"gamehub/backend/internal/container"
	"gamehub/backend/internal/models"

	"github.com/gin-gonic/gin"
)

// AdminContainerHandler exposes the moderation surface: hidden containers
// are visible, host/admin checks are bypassed, and hostless lobbies can be
// provisioned for matchmaking.
type AdminContainerHandler struct {
	svc *container.Service
}

func NewAdminContainerHandler(svc *container.Service) *AdminContainerHandler {
	return &AdminContainerHandler{svc: svc}
}

func parseKind(c *gin.Context) (models.ContainerKind, bool) {
	kind := models.ContainerKind(c.Query("kind"))
	switch kind {
	case models.KindLobby, models.KindParty, models.KindGroup:
		return kind, true
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "kind must be lobby, party or group"})
		return "", false
	}
}

// List godoc
// @Summary      List containers of a kind, hidden included (admin only)
// @Produce      json
// @Security     BearerAuth
// @Param        kind      query string true  "lobby, party or group"
// @Param        q         query string false "Title substring"
// @Param        page      query int    false "Page number" default(1)
// @Param        page_size query int    false "Items per page" default(10)
// @Success      200 {object} PaginatedResponse[container.Projection]
// @Failure      403 {object} ErrorResponse "Admin access required"
// @Router       /admin/containers [get]
func (h *AdminContainerHandler) List(c *gin.Context) {
	kind, ok := parseKind(c)
	if !ok {
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 10
	}
	if pageSize > 100 {
		pageSize = 100
	}

	result, err := h.svc.List(c.Request.Context(), container.ListFilter{
		Kind:          kind,
		Title:         c.Query("q"),
		IncludeHidden: true,
		Page:          page,
		PageSize:      pageSize,
	})
	if err != nil {
		respondContainerError(c, err)
		return
	}

	items := make([]container.Projection, 0, len(result.Items))
	for i := range result.Items {
		items = append(items, container.Project(&result.Items[i]))
	}
	c.JSON(http.StatusOK, NewPaginatedResponse(items, result.TotalCount, page, pageSize))
}

// CreateHostlessLobby godoc
// @Summary      Create a hostless lobby (admin only)
// @Description  Provisions a system-managed lobby with no host and no host invariants.
// @Tags         admin
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        input body ContainerInput true "Lobby Info"
// @Success      201 {object} container.Projection
// @Failure      403 {object} ErrorResponse "Admin access required"
// @Router       /admin/lobbies [post]
func (h *AdminContainerHandler) CreateHostlessLobby(c *gin.Context) {
	userID, _ := c.Get("userID")

	var input ContainerInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	created, err := h.svc.CreateContainer(c.Request.Context(), userID.(uint), models.KindLobby, container.CreateAttrs{
		Title:       input.Title,
		Description: input.Description,
		GameID:      input.GameID,
		MaxMembers:  input.MaxMembers,
		Hidden:      input.Hidden,
		Hostless:    true,
		Password:    input.Password,
		Metadata:    input.Metadata,
	})
	if err != nil {
		respondContainerError(c, err)
		return
	}
	c.JSON(http.StatusCreated, container.Project(created))
}

// Update godoc
// @Summary      Update any container (admin only)
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id    path int                  true "Container ID"
// @Param        input body ContainerUpdateInput true "New attributes"
// @Success      200 {object} container.Projection
// @Failure      403 {object} ErrorResponse "Admin access required"
// @Router       /admin/containers/{id} [put]
func (h *AdminContainerHandler) Update(c *gin.Context) {
	userID, _ := c.Get("userID")
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var input ContainerUpdateInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updated, err := h.svc.AdminUpdate(c.Request.Context(), userID.(uint), id, container.UpdateAttrs{
		Title:       input.Title,
		Description: input.Description,
		GameID:      input.GameID,
		MaxMembers:  input.MaxMembers,
		Hidden:      input.Hidden,
		Password:    input.Password,
		Metadata:    input.Metadata,
	})
	if err != nil {
		respondContainerError(c, err)
		return
	}
	c.JSON(http.StatusOK, container.Project(updated))
}

// Delete godoc
// @Summary      Delete any container (admin only)
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Container ID"
// @Success      200 {object} map[string]string
// @Failure      403 {object} ErrorResponse "Admin access required"
// @Router       /admin/containers/{id} [delete]
func (h *AdminContainerHandler) Delete(c *gin.Context) {
	userID, _ := c.Get("userID")
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.svc.AdminDelete(c.Request.Context(), userID.(uint), id); err != nil {
		respondContainerError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Deleted successfully"})
}

// Kick godoc
// @Summary      Remove a member from any container (admin only)
// @Produce      json
// @Security     BearerAuth
// @Param        id     path int true "Container ID"
// @Param        userID path int true "Member to remove"
// @Success      200 {object} map[string]string
// @Failure      403 {object} ErrorResponse "Admin access required"
// @Router       /admin/containers/{id}/members/{userID} [delete]
func (h *AdminContainerHandler) Kick(c *gin.Context) {
	userID, _ := c.Get("userID")
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	targetID, ok := pathID(c, "userID")
	if !ok {
		return
	}
	if err := h.svc.AdminKick(c.Request.Context(), userID.(uint), id, targetID); err != nil {
		respondContainerError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Member removed successfully"})
}
