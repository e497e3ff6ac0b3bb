package controllers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/emberlabs/emberhub/config"
	"github.com/emberlabs/emberhub/middleware"
	"github.com/emberlabs/emberhub/models"
	"github.com/emberlabs/emberhub/services"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	config.SetForTest(config.AppConfig{
		AdminUsernames:     []string{"admin"},
		RewardResetHourUTC: 0,
		RewardPointsTable:  []int{10, 10, 20, 20, 30, 30, 30},
	})
	os.Exit(m.Run())
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(
		&models.User{}, &models.Follow{}, &models.Topic{}, &models.Post{},
		&models.Comment{}, &models.Article{}, &models.Notification{},
		&models.RewardState{}, &models.RewardClaim{},
		&models.BurnArchive{}, &models.BurnRecord{},
		&models.PushSubscription{}, &models.ContactMessage{},
	); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return db
}

func seedTestUser(t *testing.T, db *gorm.DB, username string) *models.User {
	t.Helper()
	user := models.User{Username: username, Email: username + "@example.com", PasswordHash: "hashed"}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("failed to seed user %q: %v", username, err)
	}
	return &user
}

// asUser injects the authenticated identity the way AuthRequired does,
// without going through JWT parsing.
func asUser(user *models.User) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		ctx.Set(middleware.ContextUserIDKey, user.ID)
		ctx.Set(middleware.ContextUsernameKey, user.Username)
		ctx.Next()
	}
}

type apiResponse struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) apiResponse {
	t.Helper()
	var resp apiResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response %q: %v", w.Body.String(), err)
	}
	return resp
}

func newRewardTestRouter(t *testing.T, db *gorm.DB, user *models.User, now func() time.Time) *gin.Engine {
	t.Helper()

	svc := services.NewRewardService(db, 0, []int{10, 10, 20, 20, 30, 30, 30}, services.WithClock(now))
	rc := NewRewardController(svc)

	r := gin.New()
	g := r.Group("/api/v1", asUser(user))
	g.GET("/rewards/status", rc.Status)
	g.POST("/rewards/claim", rc.Claim)
	g.GET("/rewards/history", rc.History)
	g.DELETE("/rewards/claims", rc.Clear)
	return r
}

func TestRewardStatusEndpoint(t *testing.T) {
	db := setupTestDB(t)
	user := seedTestUser(t, db, "alice")
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	r := newRewardTestRouter(t, db, user, func() time.Time { return now })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/rewards/status", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeResponse(t, w)
	require.Equal(t, 0, resp.Code)

	var status services.RewardStatus
	require.NoError(t, json.Unmarshal(resp.Data, &status))
	assert.Equal(t, "2026-03-10", status.CycleKey)
	assert.True(t, status.CanClaim)
	assert.Equal(t, 1, status.StreakDayToClaim)
	assert.Equal(t, 10, status.PointsIfClaimNow)
	assert.Equal(t, int64(0), status.PointsBalance)
}

func TestRewardClaimEndpoint(t *testing.T) {
	db := setupTestDB(t)
	user := seedTestUser(t, db, "bob")
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	r := newRewardTestRouter(t, db, user, func() time.Time { return now })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/rewards/claim", nil))
	require.Equal(t, http.StatusOK, w.Code)

	resp := decodeResponse(t, w)
	var result services.ClaimResult
	require.NoError(t, json.Unmarshal(resp.Data, &result))
	assert.Equal(t, 1, result.Awarded.DayNumber)
	assert.Equal(t, 10, result.Awarded.Points)
	assert.Equal(t, "2026-03-10", result.Awarded.CycleKey)
	assert.Equal(t, int64(10), result.PointsBalance)
	assert.Equal(t, 2, result.NextDayToClaim)

	// Second claim for the same cycle conflicts.
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/rewards/claim", nil))
	assert.Equal(t, http.StatusConflict, w.Code)
	resp = decodeResponse(t, w)
	assert.Equal(t, 40910, resp.Code)
}

func TestRewardHistoryEndpoint(t *testing.T) {
	db := setupTestDB(t)
	user := seedTestUser(t, db, "carol")
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r := newRewardTestRouter(t, db, user, func() time.Time { return now })

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/rewards/claim", nil))
		require.Equal(t, http.StatusOK, w.Code)
		now = now.Add(24 * time.Hour)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/rewards/history?limit=2", nil))
	require.Equal(t, http.StatusOK, w.Code)

	resp := decodeResponse(t, w)
	var data struct {
		Items []models.RewardClaim `json:"items"`
		Count int                  `json:"count"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &data))
	assert.Equal(t, 2, data.Count)
	require.Len(t, data.Items, 2)
	assert.Equal(t, "2026-03-03", data.Items[0].CycleKey, "newest first")

	// Non-numeric limit is rejected.
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/rewards/history?limit=abc", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRewardClearEndpoint(t *testing.T) {
	db := setupTestDB(t)
	user := seedTestUser(t, db, "dave")
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r := newRewardTestRouter(t, db, user, func() time.Time { return now })

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/rewards/claim", nil))
		require.Equal(t, http.StatusOK, w.Code)
		now = now.Add(24 * time.Hour)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/v1/rewards/claims", nil))
	require.Equal(t, http.StatusOK, w.Code)

	resp := decodeResponse(t, w)
	var result services.ClearResult
	require.NoError(t, json.Unmarshal(resp.Data, &result))
	assert.Equal(t, int64(2), result.DeletedClaimsCount)
	assert.True(t, result.StateReset)
	assert.Equal(t, int64(0), result.PointsBalance)

	// Status afterwards is pristine.
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/rewards/status", nil))
	require.Equal(t, http.StatusOK, w.Code)
	resp = decodeResponse(t, w)
	var status services.RewardStatus
	require.NoError(t, json.Unmarshal(resp.Data, &status))
	assert.True(t, status.CanClaim)
	assert.Equal(t, 1, status.StreakDayToClaim)
	assert.Equal(t, int64(0), status.PointsBalance)
}

func TestRewardEndpointsRequireAuth(t *testing.T) {
	db := setupTestDB(t)
	svc := services.NewRewardService(db, 0, nil)
	rc := NewRewardController(svc)

	r := gin.New()
	r.GET("/api/v1/rewards/status", rc.Status)
	r.POST("/api/v1/rewards/claim", rc.Claim)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/rewards/status", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/rewards/claim", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
