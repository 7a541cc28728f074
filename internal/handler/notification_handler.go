package handler

import (
	"net/http"
	"strconv"
	"time"

	"gamehub/backend/internal/database"
	"gamehub/backend/internal/models"

	"github.com/gin-gonic/gin"
)

type NotificationResponse struct {
	ID        uint              `json:"id"`
	Kind      string            `json:"kind"`
	Payload   map[string]string `json:"payload,omitempty"`
	Delivered bool              `json:"delivered"`
	CreatedAt time.Time         `json:"created_at"`
}

// GetNotifications godoc
// @Summary      List the caller's notifications
// @Description  Paginated notification history, newest first. Pass unread=true to restrict to undelivered ones.
// @Tags         notifications
// @Produce      json
// @Security     BearerAuth
// @Param        unread    query bool false "Only undelivered notifications"
// @Param        page      query int  false "Page number" default(1)
// @Param        page_size query int  false "Items per page" default(20)
// @Success      200 {object} PaginatedResponse[NotificationResponse]
// @Router       /notifications [get]
func GetNotifications(c *gin.Context) {
	userID, _ := c.Get("userID")

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	query := database.DB.Where("user_id = ?", userID).Order("created_at DESC")
	if c.Query("unread") == "true" {
		query = query.Where("delivered_at IS NULL")
	}

	result, err := Paginate[models.Notification](query, page, pageSize)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch notifications"})
		return
	}

	items := make([]NotificationResponse, 0, len(result.Data))
	for _, n := range result.Data {
		items = append(items, NotificationResponse{
			ID:        n.ID,
			Kind:      string(n.Kind),
			Payload:   n.Payload,
			Delivered: n.DeliveredAt != nil,
			CreatedAt: n.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, NewPaginatedResponse(items, result.Meta.TotalItems, page, pageSize))
}

// MarkNotificationsRead godoc
// @Summary      Mark all notifications delivered
// @Produce      json
// @Security     BearerAuth
// @Success      200 {object} map[string]interface{}
// @Router       /notifications/read [post]
func MarkNotificationsRead(c *gin.Context) {
	userID, _ := c.Get("userID")

	now := time.Now()
	res := database.DB.Model(&models.Notification{}).
		Where("user_id = ? AND delivered_at IS NULL", userID).
		Update("delivered_at", now)
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update notifications"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"marked": res.RowsAffected})
}
