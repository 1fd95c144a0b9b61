package handlers

import (
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"cryptosim/internal/models"
	"cryptosim/internal/services"
	"cryptosim/internal/uuid"
)

// --- mock leaderboard service ---

type mockLeaderboardService struct {
	recomputeFn func(period models.LeaderboardPeriod, at time.Time) (int, error)
	listTopFn   func(period models.LeaderboardPeriod, collectionID *string, limit int) ([]models.LeaderboardEntry, error)
}

func (m *mockLeaderboardService) Recompute(period models.LeaderboardPeriod, at time.Time) (int, error) {
	if m.recomputeFn != nil {
		return m.recomputeFn(period, at)
	}
	return 0, nil
}

func (m *mockLeaderboardService) ListTop(period models.LeaderboardPeriod, collectionID *string, limit int) ([]models.LeaderboardEntry, error) {
	if m.listTopFn != nil {
		return m.listTopFn(period, collectionID, limit)
	}
	return []models.LeaderboardEntry{}, nil
}

var _ services.LeaderboardServicer = (*mockLeaderboardService)(nil)

func setupLeaderboardRouter(handler *LeaderboardHandler) *gin.Engine {
	r := gin.New()
	r.GET("/leaderboard", injectUserID(testUserID), handler.List)
	return r
}

func TestLeaderboardHandler_List(t *testing.T) {
	t.Run("defaults to all_time with limit 25", func(t *testing.T) {
		var gotPeriod models.LeaderboardPeriod
		var gotLimit int
		svc := &mockLeaderboardService{
			listTopFn: func(period models.LeaderboardPeriod, _ *string, limit int) ([]models.LeaderboardEntry, error) {
				gotPeriod = period
				gotLimit = limit
				return []models.LeaderboardEntry{{
					ID:       uuid.New(),
					Period:   period,
					Rank:     1,
					TotalPnL: decimal.NewFromInt(5000),
				}}, nil
			},
		}
		r := setupLeaderboardRouter(NewLeaderboardHandler(svc))

		rec := doRequest(r, "GET", "/leaderboard", "")

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if gotPeriod != models.LeaderboardPeriodAllTime {
			t.Errorf("expected all_time, got %s", gotPeriod)
		}
		if gotLimit != 25 {
			t.Errorf("expected limit 25, got %d", gotLimit)
		}
		result := parseJSON(t, rec)
		entries := result["entries"].([]interface{})
		if len(entries) != 1 {
			t.Errorf("expected 1 entry, got %d", len(entries))
		}
	})

	t.Run("scopes to a collection", func(t *testing.T) {
		collectionID := uuid.New()
		var gotCollection *string
		svc := &mockLeaderboardService{
			listTopFn: func(_ models.LeaderboardPeriod, cid *string, _ int) ([]models.LeaderboardEntry, error) {
				gotCollection = cid
				return []models.LeaderboardEntry{}, nil
			},
		}
		r := setupLeaderboardRouter(NewLeaderboardHandler(svc))

		rec := doRequest(r, "GET", "/leaderboard?period=weekly&collection_id="+collectionID, "")

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if gotCollection == nil || *gotCollection != collectionID {
			t.Errorf("expected collection %s, got %v", collectionID, gotCollection)
		}
	})

	t.Run("rejects unknown period", func(t *testing.T) {
		r := setupLeaderboardRouter(NewLeaderboardHandler(&mockLeaderboardService{}))

		rec := doRequest(r, "GET", "/leaderboard?period=daily", "")

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
		assertErrorCode(t, parseJSON(t, rec), "INVALID_INPUT")
	})

	t.Run("rejects out of range limit", func(t *testing.T) {
		r := setupLeaderboardRouter(NewLeaderboardHandler(&mockLeaderboardService{}))

		rec := doRequest(r, "GET", "/leaderboard?limit=500", "")

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("rejects malformed collection_id", func(t *testing.T) {
		r := setupLeaderboardRouter(NewLeaderboardHandler(&mockLeaderboardService{}))

		rec := doRequest(r, "GET", "/leaderboard?collection_id=teamrocket", "")

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})
}
