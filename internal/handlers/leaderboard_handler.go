package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "cryptosim/internal/errors"
	"cryptosim/internal/models"
	"cryptosim/internal/services"
	"cryptosim/internal/uuid"
)

// LeaderboardHandler serves precomputed rankings.
type LeaderboardHandler struct {
	leaderboardService services.LeaderboardServicer
}

// NewLeaderboardHandler creates a new LeaderboardHandler
func NewLeaderboardHandler(leaderboardService services.LeaderboardServicer) *LeaderboardHandler {
	return &LeaderboardHandler{leaderboardService: leaderboardService}
}

// leaderboardQuery binds GET /leaderboard query parameters.
type leaderboardQuery struct {
	Period       string `form:"period" binding:"omitempty,leaderboard_period"`
	CollectionID string `form:"collection_id"`
	Limit        int    `form:"limit" binding:"omitempty,min=1,max=100"`
}

// List handles GET /leaderboard?period=all_time&collection_id=&limit=25
func (h *LeaderboardHandler) List(c *gin.Context) {
	var query leaderboardQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, "period must be all_time or weekly and limit between 1 and 100"))
		return
	}

	period := models.LeaderboardPeriodAllTime
	if query.Period != "" {
		period = models.LeaderboardPeriod(query.Period)
	}

	var collectionID *string
	if query.CollectionID != "" {
		if !uuid.IsValid(query.CollectionID) {
			respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, "Invalid collection_id"))
			return
		}
		collectionID = &query.CollectionID
	}

	limit := query.Limit
	if limit == 0 {
		limit = 25
	}

	entries, err := h.leaderboardService.ListTop(period, collectionID, limit)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"period":  period,
		"entries": entries,
	})
}
