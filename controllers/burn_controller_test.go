package controllers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/emberlabs/emberhub/models"
)

func newBurnTestRouter(t *testing.T, db *gorm.DB, user *models.User) *gin.Engine {
	t.Helper()
	bc := NewBurnController(db)

	r := gin.New()
	api := r.Group("/api/v1")
	api.GET("/burn/archives", bc.ListArchives)
	api.GET("/burn/:currency/records", bc.ListRecords)

	g := api.Group("", asUser(user))
	g.POST("/burn/records", bc.CreateRecord)
	g.PUT("/burn/records/:id", bc.UpdateRecord)
	g.DELETE("/burn/records/:id", bc.DeleteRecord)
	return r
}

func TestBurnRecordCreateRequiresAdmin(t *testing.T) {
	db := setupTestDB(t)
	user := seedTestUser(t, db, "regular")
	r := newBurnTestRouter(t, db, user)

	w := postJSON(r, http.MethodPost, "/api/v1/burn/records", gin.H{
		"currency":   "LUNC",
		"date":       "2026-03-10",
		"burn_count": 1000,
	})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestBurnRecordUniquePerCurrencyAndDate(t *testing.T) {
	db := setupTestDB(t)
	admin := seedTestUser(t, db, "admin")
	r := newBurnTestRouter(t, db, admin)

	body := gin.H{
		"currency":        "lunc",
		"date":            "2026-03-10",
		"burn_count":      5000,
		"transaction_ref": "tx-abc",
	}
	w := postJSON(r, http.MethodPost, "/api/v1/burn/records", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := decodeResponse(t, w)
	var created struct {
		Record models.BurnRecord `json:"record"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &created))
	assert.Equal(t, "LUNC", created.Record.Currency, "currency is normalized to upper case")

	// Same currency and date again conflicts.
	w = postJSON(r, http.MethodPost, "/api/v1/burn/records", body)
	assert.Equal(t, http.StatusConflict, w.Code)

	// Same date for the other currency is fine.
	w = postJSON(r, http.MethodPost, "/api/v1/burn/records", gin.H{
		"currency":   "SHIB",
		"date":       "2026-03-10",
		"burn_count": 777,
	})
	assert.Equal(t, http.StatusOK, w.Code)

	var archives int64
	require.NoError(t, db.Model(&models.BurnArchive{}).Count(&archives).Error)
	assert.Equal(t, int64(2), archives, "one archive row per currency")
}

func TestBurnRecordValidation(t *testing.T) {
	db := setupTestDB(t)
	admin := seedTestUser(t, db, "admin")
	r := newBurnTestRouter(t, db, admin)

	w := postJSON(r, http.MethodPost, "/api/v1/burn/records", gin.H{
		"currency":   "DOGE",
		"date":       "2026-03-10",
		"burn_count": 10,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code, "unsupported currency")

	w = postJSON(r, http.MethodPost, "/api/v1/burn/records", gin.H{
		"currency":   "LUNC",
		"date":       "10/03/2026",
		"burn_count": 10,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code, "date must be YYYY-MM-DD")

	w = postJSON(r, http.MethodPost, "/api/v1/burn/records", gin.H{
		"currency":   "LUNC",
		"date":       "2026-03-10",
		"burn_count": -5,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code, "negative burn count")
}

func TestBurnMonthlyQuery(t *testing.T) {
	db := setupTestDB(t)
	admin := seedTestUser(t, db, "admin")
	r := newBurnTestRouter(t, db, admin)

	dates := []string{"2026-02-27", "2026-03-01", "2026-03-15", "2026-03-31", "2026-04-01"}
	for i, d := range dates {
		w := postJSON(r, http.MethodPost, "/api/v1/burn/records", gin.H{
			"currency":   "LUNC",
			"date":       d,
			"burn_count": (i + 1) * 100,
		})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/burn/LUNC/records?month=2026-03", nil))
	require.Equal(t, http.StatusOK, w.Code)

	resp := decodeResponse(t, w)
	var data struct {
		Currency    string              `json:"currency"`
		Items       []models.BurnRecord `json:"items"`
		Count       int                 `json:"count"`
		TotalBurned int64               `json:"total_burned"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &data))
	assert.Equal(t, "LUNC", data.Currency)
	assert.Equal(t, 3, data.Count, "only March records")
	assert.Equal(t, int64(200+300+400), data.TotalBurned)
	require.Len(t, data.Items, 3)
	assert.True(t, data.Items[0].Date.After(data.Items[2].Date), "newest date first")

	// Invalid month format.
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/burn/LUNC/records?month=March", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
