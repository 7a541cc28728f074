package handler

import (
	"errors"
	"net/http"
	"strconv"

	"gamehub/backend/internal/container"
	"gamehub/backend/internal/models"

	"github.com/gin-gonic/gin"
)

// region --- DTOs ---

type ContainerInput struct {
	Title       string            `json:"title" binding:"required"`
	Description string            `json:"description"`
	GameID      *uint             `json:"game_id"`
	MaxMembers  int               `json:"max_members" binding:"required,min=1,max=1000"`
	Hidden      bool              `json:"hidden"`
	GroupType   string            `json:"group_type"`
	Password    string            `json:"password"`
	Metadata    map[string]string `json:"metadata"`
}

type ContainerUpdateInput struct {
	Title       *string           `json:"title"`
	Description *string           `json:"description"`
	GameID      *uint             `json:"game_id"`
	MaxMembers  *int              `json:"max_members"`
	Hidden      *bool             `json:"hidden"`
	Password    *string           `json:"password"`
	Metadata    map[string]string `json:"metadata"`
}

type JoinInput struct {
	Password string `json:"password"`
}

type JoinRequestResponse struct {
	ID       uint   `json:"id"`
	UserID   uint   `json:"user_id"`
	Nickname string `json:"nickname,omitempty"`
	Status   string `json:"status"`
}

func newJoinRequestResponse(r models.JoinRequest) JoinRequestResponse {
	return JoinRequestResponse{
		ID:       r.ID,
		UserID:   r.UserID,
		Nickname: r.User.Nickname,
		Status:   string(r.Status),
	}
}

// endregion

// ContainerHandler serves one container kind's route group. The same
// handler backs /lobbies, /parties and /groups with kind-specific routes
// mounted per group.
type ContainerHandler struct {
	svc  *container.Service
	kind models.ContainerKind
}

func NewContainerHandler(svc *container.Service, kind models.ContainerKind) *ContainerHandler {
	return &ContainerHandler{svc: svc, kind: kind}
}

// respondContainerError maps engine sentinels onto HTTP statuses.
func respondContainerError(c *gin.Context, err error) {
	var hookErr *container.HookRejectedError
	switch {
	case errors.Is(err, container.ErrNotFound), errors.Is(err, container.ErrNotMember):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, container.ErrNotHost),
		errors.Is(err, container.ErrNotAdmin),
		errors.Is(err, container.ErrCannotKickSelf),
		errors.Is(err, container.ErrCannotPromoteSelf),
		errors.Is(err, container.ErrCannotDemoteSelf):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, container.ErrFull),
		errors.Is(err, container.ErrAlreadyInLobby),
		errors.Is(err, container.ErrAlreadyInParty),
		errors.Is(err, container.ErrAlreadyMember),
		errors.Is(err, container.ErrMaxMembersTooLow),
		errors.Is(err, container.ErrLastAdmin),
		errors.Is(err, container.ErrRequestPending):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, container.ErrPasswordRequired),
		errors.Is(err, container.ErrInvalidPassword):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, container.ErrInvalidAttrs):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.As(err, &hookErr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "hook_rejected", "reason": hookErr.Reason})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

func pathID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + name})
		return 0, false
	}
	return uint(id), true
}

// Create godoc
// @Summary      Create a container
// @Description  Creates a lobby/party/group, making the creator its host or admin.
// @Tags         containers
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        input body ContainerInput true "Container Info"
// @Success      201 {object} container.Projection
// @Failure      400 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse "Already in a container of this kind"
func (h *ContainerHandler) Create(c *gin.Context) {
	userID, _ := c.Get("userID")

	var input ContainerInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	created, err := h.svc.CreateContainer(c.Request.Context(), userID.(uint), h.kind, container.CreateAttrs{
		Title:       input.Title,
		Description: input.Description,
		GameID:      input.GameID,
		MaxMembers:  input.MaxMembers,
		Hidden:      input.Hidden,
		GroupType:   models.GroupType(input.GroupType),
		Password:    input.Password,
		Metadata:    input.Metadata,
	})
	if err != nil {
		respondContainerError(c, err)
		return
	}
	c.JSON(http.StatusCreated, container.Project(created))
}

// List godoc
// @Summary      Search containers
// @Description  Paginated listing with title and metadata filters. Hidden containers are excluded.
// @Tags         containers
// @Produce      json
// @Security     BearerAuth
// @Param        q          query string false "Title substring"
// @Param        meta_key   query string false "Metadata key filter"
// @Param        meta_value query string false "Metadata value prefix (requires meta_key)"
// @Param        game_id    query int    false "Filter by game"
// @Param        page       query int    false "Page number" default(1)
// @Param        page_size  query int    false "Items per page" default(10)
// @Success      200 {object} PaginatedResponse[container.Projection]
func (h *ContainerHandler) List(c *gin.Context) {
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

	filter := container.ListFilter{
		Kind:      h.kind,
		Title:     c.Query("q"),
		MetaKey:   c.Query("meta_key"),
		MetaValue: c.Query("meta_value"),
		Page:      page,
		PageSize:  pageSize,
	}
	if gameID := c.Query("game_id"); gameID != "" {
		id, err := strconv.ParseUint(gameID, 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid game_id"})
			return
		}
		gid := uint(id)
		filter.GameID = &gid
	}

	result, err := h.svc.List(c.Request.Context(), filter)
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

// Get godoc
// @Summary      Get a container by ID
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Container ID"
// @Success      200 {object} container.Projection
// @Failure      404 {object} ErrorResponse
func (h *ContainerHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	found, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		respondContainerError(c, err)
		return
	}
	c.JSON(http.StatusOK, container.Project(found))
}

// Update godoc
// @Summary      Update a container (host/admin only)
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id    path int                  true "Container ID"
// @Param        input body ContainerUpdateInput true "New attributes"
// @Success      200 {object} container.Projection
// @Failure      403 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse "max_members below member count"
func (h *ContainerHandler) Update(c *gin.Context) {
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

	updated, err := h.svc.Update(c.Request.Context(), userID.(uint), id, container.UpdateAttrs{
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
// @Summary      Delete a container (host/admin only)
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Container ID"
// @Success      200 {object} map[string]string
// @Failure      403 {object} ErrorResponse
func (h *ContainerHandler) Delete(c *gin.Context) {
	userID, _ := c.Get("userID")
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.svc.Delete(c.Request.Context(), userID.(uint), id); err != nil {
		respondContainerError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Deleted successfully"})
}

// Join godoc
// @Summary      Join a container
// @Description  Joins if not full. Private/hidden groups file a join request instead.
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id    path int       true  "Container ID"
// @Param        input body JoinInput false "Password for locked containers"
// @Success      200 {object} container.Projection
// @Success      202 {object} JoinRequestResponse "Join request filed"
// @Failure      409 {object} ErrorResponse "Full or already joined"
func (h *ContainerHandler) Join(c *gin.Context) {
	userID, _ := c.Get("userID")
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var input JoinInput
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	joined, err := h.svc.Join(c.Request.Context(), userID.(uint), id, input.Password)
	if errors.Is(err, container.ErrRequestRequired) {
		req, reqErr := h.svc.RequestJoin(c.Request.Context(), userID.(uint), id)
		if reqErr != nil {
			respondContainerError(c, reqErr)
			return
		}
		c.JSON(http.StatusAccepted, newJoinRequestResponse(*req))
		return
	}
	if err != nil {
		respondContainerError(c, err)
		return
	}
	c.JSON(http.StatusOK, container.Project(joined))
}

// Leave godoc
// @Summary      Leave a container
// @Description  Leaves the container; host role migrates to the earliest joined member.
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Container ID"
// @Success      200 {object} map[string]string
// @Failure      404 {object} ErrorResponse "Not a member"
func (h *ContainerHandler) Leave(c *gin.Context) {
	userID, _ := c.Get("userID")
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.svc.Leave(c.Request.Context(), userID.(uint), id); err != nil {
		respondContainerError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Left successfully"})
}

// Kick godoc
// @Summary      Kick a member (host/admin only)
// @Produce      json
// @Security     BearerAuth
// @Param        id     path int true "Container ID"
// @Param        userID path int true "Member to kick"
// @Success      200 {object} map[string]string
// @Failure      403 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse "Member not found"
func (h *ContainerHandler) Kick(c *gin.Context) {
	userID, _ := c.Get("userID")
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	targetID, ok := pathID(c, "userID")
	if !ok {
		return
	}
	if err := h.svc.Kick(c.Request.Context(), userID.(uint), id, targetID); err != nil {
		respondContainerError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Member kicked successfully"})
}

// Promote godoc
// @Summary      Grant admin role to a group member (admin only)
// @Produce      json
// @Security     BearerAuth
// @Param        id     path int true "Group ID"
// @Param        userID path int true "Member to promote"
// @Success      200 {object} map[string]string
// @Failure      403 {object} ErrorResponse
func (h *ContainerHandler) Promote(c *gin.Context) {
	userID, _ := c.Get("userID")
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	targetID, ok := pathID(c, "userID")
	if !ok {
		return
	}
	if err := h.svc.Promote(c.Request.Context(), userID.(uint), id, targetID); err != nil {
		respondContainerError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Member promoted"})
}

// Demote godoc
// @Summary      Revoke a group member's admin role (admin only)
// @Produce      json
// @Security     BearerAuth
// @Param        id     path int true "Group ID"
// @Param        userID path int true "Admin to demote"
// @Success      200 {object} map[string]string
// @Failure      403 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse "Last admin"
func (h *ContainerHandler) Demote(c *gin.Context) {
	userID, _ := c.Get("userID")
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	targetID, ok := pathID(c, "userID")
	if !ok {
		return
	}
	if err := h.svc.Demote(c.Request.Context(), userID.(uint), id, targetID); err != nil {
		respondContainerError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Member demoted"})
}

// ListRequests godoc
// @Summary      List pending join requests (admin only)
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Group ID"
// @Success      200 {array} JoinRequestResponse
// @Failure      403 {object} ErrorResponse
func (h *ContainerHandler) ListRequests(c *gin.Context) {
	userID, _ := c.Get("userID")
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	reqs, err := h.svc.ListRequests(c.Request.Context(), userID.(uint), id)
	if err != nil {
		respondContainerError(c, err)
		return
	}
	response := make([]JoinRequestResponse, 0, len(reqs))
	for _, r := range reqs {
		response = append(response, newJoinRequestResponse(r))
	}
	c.JSON(http.StatusOK, response)
}

// ApproveRequest godoc
// @Summary      Approve a join request (admin only)
// @Produce      json
// @Security     BearerAuth
// @Param        id        path int true "Group ID"
// @Param        requestID path int true "Request ID"
// @Success      200 {object} map[string]string
// @Failure      409 {object} ErrorResponse "Group is full"
func (h *ContainerHandler) ApproveRequest(c *gin.Context) {
	userID, _ := c.Get("userID")
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	requestID, ok := pathID(c, "requestID")
	if !ok {
		return
	}
	if err := h.svc.ApproveRequest(c.Request.Context(), userID.(uint), id, requestID); err != nil {
		respondContainerError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Request approved"})
}

// RejectRequest godoc
// @Summary      Reject a join request (admin only)
// @Produce      json
// @Security     BearerAuth
// @Param        id        path int true "Group ID"
// @Param        requestID path int true "Request ID"
// @Success      200 {object} map[string]string
func (h *ContainerHandler) RejectRequest(c *gin.Context) {
	userID, _ := c.Get("userID")
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	requestID, ok := pathID(c, "requestID")
	if !ok {
		return
	}
	if err := h.svc.RejectRequest(c.Request.Context(), userID.(uint), id, requestID); err != nil {
		respondContainerError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Request rejected"})
}
