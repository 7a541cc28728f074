package handler

import (
	"errors"
	"net/http"

	"gamehub/backend/internal/database"
	"gamehub/backend/internal/models"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// relationPeers loads the users on the far side of subjectID's relation edges,
// filtered by status and direction. An empty direction matches both sides.
func relationPeers(subjectID uint, status, direction string) ([]models.User, error) {
	query := database.DB
	switch direction {
	case "incoming":
		query = query.Where("to_user_id = ?", subjectID).Preload("FromUser")
	case "outgoing":
		query = query.Where("from_user_id = ?", subjectID).Preload("ToUser")
	default:
		query = query.Where("from_user_id = ? OR to_user_id = ?", subjectID, subjectID).
			Preload("FromUser").Preload("ToUser")
	}
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var relations []models.UserRelation
	if err := query.Find(&relations).Error; err != nil {
		return nil, err
	}

	peers := make([]models.User, 0, len(relations))
	for _, r := range relations {
		peer := r.FromUser
		if r.FromUserID == subjectID {
			peer = r.ToUser
		}
		if peer.ID == 0 {
			continue
		}
		peers = append(peers, peer)
	}
	return peers, nil
}

func respondRelationPeers(c *gin.Context, subjectID, viewerID uint, direction string) {
	peers, err := relationPeers(subjectID, c.Query("status"), direction)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch relations"})
		return
	}

	responses := make([]PublicUserResponse, 0, len(peers))
	for _, peer := range peers {
		responses = append(responses, buildPublicUserResponse(peer, viewerID))
	}
	c.JSON(http.StatusOK, responses)
}

// GetUserRelationsByID godoc
// @Summary      Get a specific user's relations
// @Description  Lists another user's relations filtered by status and direction.
// @Tags         friendship
// @Produce      json
// @Security     BearerAuth
// @Param        id        path      int     true   "Target User ID"
// @Param        status    query     string  false  "Filter by status (pending, accepted)"
// @Param        direction query     string  true   "Filter by direction (incoming, outgoing)"
// @Success      200       {array}   PublicUserResponse
// @Failure      400       {object}  ErrorResponse
// @Failure      401       {object}  ErrorResponse
// @Router         /users/{id}/relations [get]
func GetUserRelationsByID(c *gin.Context) {
	viewerID, _ := c.Get("userID")
	targetUserID, ok := pathID(c, "id")
	if !ok {
		return
	}

	direction := c.Query("direction")
	if direction != "incoming" && direction != "outgoing" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "A 'direction' query parameter (incoming or outgoing) is required"})
		return
	}

	respondRelationPeers(c, targetUserID, viewerID.(uint), direction)
}

// GetRelations godoc
// @Summary      Get the caller's relations
// @Description  Lists the caller's relations filtered by status and direction.
// @Tags         friendship
// @Produce      json
// @Security     BearerAuth
// @Param        status    query     string  false  "Filter by status (pending, accepted)"
// @Param        direction query     string  false  "Filter by direction (incoming, outgoing)"
// @Success      200       {array}   PublicUserResponse
// @Failure      400       {object}  ErrorResponse
// @Failure      401       {object}  ErrorResponse
// @Router         /users/me/relations [get]
func GetRelations(c *gin.Context) {
	viewerID, _ := c.Get("userID")
	respondRelationPeers(c, viewerID.(uint), viewerID.(uint), c.Query("direction"))
}

// SendRequest godoc
// @Summary      Send friend request
// @Description  Sends a friend request to another user and queues a notification for them.
// @Tags         friendship
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      int  true  "Target User ID"
// @Success      201  {object}  map[string]string "{"message": "Request sent successfully"}"
// @Failure      400  {object}  ErrorResponse
// @Failure      401  {object}  ErrorResponse
// @Failure      409  {object}  ErrorResponse "Relation already exists"
// @Failure      500  {object}  ErrorResponse
// @Router       /users/{id}/request [post]
func SendRequest(c *gin.Context) {
	viewerID, _ := c.Get("userID")
	targetUserID, ok := pathID(c, "id")
	if !ok {
		return
	}

	if viewerID.(uint) == targetUserID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot send request to yourself"})
		return
	}

	var existing models.UserRelation
	err := database.DB.Where("from_user_id = ? AND to_user_id = ?", viewerID, targetUserID).First(&existing).Error
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusConflict, gin.H{"error": "Relation already exists or another error occurred"})
		return
	}

	relation := models.UserRelation{
		FromUserID: viewerID.(uint),
		ToUserID:   targetUserID,
		Status:     models.StatusPending,
	}
	if err := database.DB.Create(&relation).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create relation"})
		return
	}

	notifyRelation(c.Request.Context(), targetUserID, viewerID.(uint), models.NotificationFriendRequest)

	c.JSON(http.StatusCreated, gin.H{"message": "Request sent successfully"})
}

// AcceptRequest godoc
// @Summary      Accept friend request
// @Description  Accepts a pending friend request and notifies the requester.
// @Tags         friendship
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      int  true  "Requesting User ID"
// @Success      200  {object}  map[string]string "{"message": "Request accepted"}"
// @Failure      400  {object}  ErrorResponse
// @Failure      401  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse "Request not found"
// @Failure      500  {object}  ErrorResponse
// @Router       /users/{id}/accept [post]
func AcceptRequest(c *gin.Context) {
	viewerID, _ := c.Get("userID")
	requesterID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var request models.UserRelation
	err := database.DB.
		Where("from_user_id = ? AND to_user_id = ? AND status = ?", requesterID, viewerID, models.StatusPending).
		First(&request).Error
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Pending request not found"})
		return
	}

	if err := database.DB.Model(&request).Update("status", models.StatusAccepted).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to accept request"})
		return
	}

	notifyRelation(c.Request.Context(), requesterID, viewerID.(uint), models.NotificationFriendAccepted)

	c.JSON(http.StatusOK, gin.H{"message": "Request accepted"})
}

// DeclineRequest godoc
// @Summary      Decline friend request
// @Description  Declines a pending friend request from another user.
// @Tags         friendship
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      int  true  "Requesting User ID"
// @Success      200  {object}  map[string]string "{"message": "Request declined"}"
// @Failure      400  {object}  ErrorResponse
// @Failure      401  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse "Request not found"
// @Failure      500  {object}  ErrorResponse
// @Router       /users/{id}/decline [post]
func DeclineRequest(c *gin.Context) {
	viewerID, _ := c.Get("userID")
	requesterID, ok := pathID(c, "id")
	if !ok {
		return
	}

	result := database.DB.
		Where("from_user_id = ? AND to_user_id = ? AND status = ?", requesterID, viewerID, models.StatusPending).
		Delete(&models.UserRelation{})
	if result.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to decline request"})
		return
	}
	if result.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Pending request not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Request declined"})
}

// RemoveRelation godoc
// @Summary      Remove relation
// @Description  Cancels a sent request, or removes a user from friends.
// @Tags         friendship
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      int  true  "Target User ID"
// @Success      200  {object}  map[string]string "{"message": "Relation removed"}"
// @Failure      400  {object}  ErrorResponse
// @Failure      401  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse "Relation not found"
// @Failure      500  {object}  ErrorResponse
// @Router       /users/{id}/remove [post]
func RemoveRelation(c *gin.Context) {
	viewerID, _ := c.Get("userID")
	targetUserID, ok := pathID(c, "id")
	if !ok {
		return
	}

	result := database.DB.
		Where("from_user_id = ? AND to_user_id = ?", viewerID, targetUserID).
		Delete(&models.UserRelation{})
	if result.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to remove relation"})
		return
	}
	if result.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Relation not found to remove"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Relation removed"})
}
