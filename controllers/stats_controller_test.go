package controllers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/emberlabs/emberhub/models"
	"github.com/emberlabs/emberhub/services"
)

func newStatsTestRouter(db *gorm.DB, rewards *services.RewardService) *gin.Engine {
	r := gin.New()
	statsController := NewStatsController(db, rewards)
	r.GET("/stats", statsController.GetStats)
	r.GET("/posts/:id/stats", statsController.GetPostStats)
	return r
}

// The claims-today count follows reward cycles, not UTC calendar dates:
// before the configured reset hour the live cycle still carries the
// previous day's key.
func TestStatsRewardClaimsFollowCycleKey(t *testing.T) {
	db := setupTestDB(t)
	require.NoError(t, db.AutoMigrate(&models.PageView{}))
	user := seedTestUser(t, db, "streaker")

	// 08:30 UTC with a 09:00 reset hour: still inside the 2026-03-09 cycle.
	now := time.Date(2026, 3, 10, 8, 30, 0, 0, time.UTC)
	rewards := services.NewRewardService(db, 9, []int{10, 10, 20, 20, 30, 30, 30},
		services.WithClock(func() time.Time { return now }))

	claims := []models.RewardClaim{
		{UserID: user.ID, CycleKey: "2026-03-09", DayNumber: 1, Points: 10, ClaimedAt: now},
		{UserID: user.ID, CycleKey: "2026-03-10", DayNumber: 2, Points: 10, ClaimedAt: now},
	}
	require.NoError(t, db.Create(&claims).Error)

	r := newStatsTestRouter(db, rewards)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeResponse(t, w)
	require.Equal(t, 0, resp.Code)

	var data struct {
		UserCount         int64 `json:"user_count"`
		RewardClaimsToday int64 `json:"reward_claims_today"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &data))
	require.Equal(t, int64(1), data.UserCount)
	require.Equal(t, int64(1), data.RewardClaimsToday, "only the live cycle's claim counts")
}
