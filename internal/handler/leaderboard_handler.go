package handler

import (
	"errors"
	"net/http"
	"strconv"

	"gamehub/backend/internal/database"
	"gamehub/backend/internal/models"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type ScoreInput struct {
	Score int64 `json:"score" binding:"required,min=0"`
}

type LeaderboardEntryResponse struct {
	Rank     int    `json:"rank"`
	UserID   uint   `json:"user_id"`
	Nickname string `json:"nickname"`
	Score    int64  `json:"score"`
}

// SubmitScore godoc
// @Summary      Submit a score for a game
// @Description  Records the caller's score. Only improvements over the stored best are kept.
// @Tags         leaderboards
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id    path int        true "Game ID"
// @Param        input body ScoreInput true "Score"
// @Success      200 {object} map[string]interface{}
// @Failure      403 {object} ErrorResponse "Leaderboard disabled"
// @Failure      404 {object} ErrorResponse "Game not found"
// @Router       /games/{id}/scores [post]
func SubmitScore(c *gin.Context) {
	userID, _ := c.Get("userID")
	gameID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var input ScoreInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var game models.Game
	if err := database.DB.First(&game, gameID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Game not found"})
		return
	}
	if !game.LeaderboardEnabled {
		c.JSON(http.StatusForbidden, gin.H{"error": "Leaderboard is disabled for this game"})
		return
	}

	improved := false
	err := database.DB.Transaction(func(tx *gorm.DB) error {
		var entry models.LeaderboardEntry
		err := tx.Where("game_id = ? AND user_id = ?", gameID, userID).First(&entry).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			improved = true
			return tx.Create(&models.LeaderboardEntry{
				GameID: gameID,
				UserID: userID.(uint),
				Score:  input.Score,
			}).Error
		}
		if err != nil {
			return err
		}
		// Guarded against a concurrent submission raising the score first.
		res := tx.Model(&models.LeaderboardEntry{}).
			Where("id = ? AND score < ?", entry.ID, input.Score).
			Update("score", input.Score)
		improved = res.RowsAffected > 0
		return res.Error
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to submit score"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"improved": improved})
}

// GetLeaderboard godoc
// @Summary      Get a game's leaderboard
// @Description  Paginated best scores for a game, highest first.
// @Tags         leaderboards
// @Produce      json
// @Param        id        path  int true "Game ID"
// @Param        page      query int false "Page number" default(1)
// @Param        page_size query int false "Items per page" default(10)
// @Success      200 {object} PaginatedResponse[LeaderboardEntryResponse]
// @Failure      404 {object} ErrorResponse "Game not found"
// @Router       /games/{id}/leaderboard [get]
func GetLeaderboard(c *gin.Context) {
	gameID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var game models.Game
	if err := database.DB.First(&game, gameID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Game not found"})
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

	query := database.DB.
		Preload("User").
		Where("game_id = ?", gameID).
		Order("score DESC, updated_at ASC")

	result, err := Paginate[models.LeaderboardEntry](query, page, pageSize)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch leaderboard"})
		return
	}

	entries := make([]LeaderboardEntryResponse, 0, len(result.Data))
	for i, e := range result.Data {
		entries = append(entries, LeaderboardEntryResponse{
			Rank:     (page-1)*pageSize + i + 1,
			UserID:   e.UserID,
			Nickname: e.User.Nickname,
			Score:    e.Score,
		})
	}
	c.JSON(http.StatusOK, NewPaginatedResponse(entries, result.Meta.TotalItems, page, pageSize))
}

// GetMyRank godoc
// @Summary      Get the caller's leaderboard position
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Game ID"
// @Success      200 {object} LeaderboardEntryResponse
// @Failure      404 {object} ErrorResponse "No score submitted"
// @Router       /games/{id}/leaderboard/me [get]
func GetMyRank(c *gin.Context) {
	userID, _ := c.Get("userID")
	gameID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var entry models.LeaderboardEntry
	err := database.DB.Preload("User").
		Where("game_id = ? AND user_id = ?", gameID, userID).
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "No score submitted for this game"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch rank"})
		return
	}

	var ahead int64
	if err := database.DB.Model(&models.LeaderboardEntry{}).
		Where("game_id = ? AND score > ?", gameID, entry.Score).
		Count(&ahead).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch rank"})
		return
	}

	c.JSON(http.StatusOK, LeaderboardEntryResponse{
		Rank:     int(ahead) + 1,
		UserID:   entry.UserID,
		Nickname: entry.User.Nickname,
		Score:    entry.Score,
	})
}
