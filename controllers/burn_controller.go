package controllers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/emberlabs/emberhub/models"
	"github.com/emberlabs/emberhub/utils"
)

const burnDateLayout = "2006-01-02"

// BurnController manages the per-currency burn archives and their daily
// records. Writes are admin only; reads are public.
type BurnController struct {
	db *gorm.DB
}

// NewBurnController creates a new BurnController instance.
func NewBurnController(db *gorm.DB) *BurnController {
	return &BurnController{db: db}
}

func normalizeCurrency(raw string) (string, bool) {
	cur := strings.ToUpper(strings.TrimSpace(raw))
	switch cur {
	case models.CurrencyLUNC, models.CurrencySHIB:
		return cur, true
	}
	return "", false
}

// ensureArchive returns the archive row for the currency, creating it
// on first use.
func (b *BurnController) ensureArchive(currency string) (*models.BurnArchive, error) {
	var archive models.BurnArchive
	err := b.db.Where("currency = ?", currency).First(&archive).Error
	if err == nil {
		return &archive, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	archive = models.BurnArchive{Currency: currency}
	if err := b.db.Create(&archive).Error; err != nil {
		if utils.IsDuplicateKeyError(err) {
			if err := b.db.Where("currency = ?", currency).First(&archive).Error; err != nil {
				return nil, err
			}
			return &archive, nil
		}
		return nil, err
	}
	return &archive, nil
}

// ListArchives returns every currency archive with record counts and totals.
func (b *BurnController) ListArchives(ctx *gin.Context) {
	var archives []models.BurnArchive
	if err := b.db.Order("currency ASC").Find(&archives).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50110, "failed to list burn archives")
		return
	}

	items := make([]gin.H, 0, len(archives))
	for _, a := range archives {
		var count int64
		var total struct{ Total int64 }
		_ = b.db.Model(&models.BurnRecord{}).Where("archive_id = ?", a.ID).Count(&count).Error
		_ = b.db.Model(&models.BurnRecord{}).
			Select("COALESCE(SUM(burn_count), 0) AS total").
			Where("archive_id = ?", a.ID).
			Scan(&total).Error
		items = append(items, gin.H{
			"id":           a.ID,
			"currency":     a.Currency,
			"record_count": count,
			"total_burned": total.Total,
			"updated_at":   a.UpdatedAt,
		})
	}

	utils.Success(ctx, gin.H{"items": items})
}

// CreateRecord stores a burn amount for one currency on one date
// (admin only). A second record for the same currency and date is
// rejected as a conflict.
func (b *BurnController) CreateRecord(ctx *gin.Context) {
	if !isAdmin(ctx) {
		utils.Error(ctx, http.StatusForbidden, 40350, "admin access required")
		return
	}

	var req struct {
		Currency       string `json:"currency" binding:"required"`
		Date           string `json:"date" binding:"required"`
		BurnCount      int64  `json:"burn_count" binding:"required"`
		TransactionRef string `json:"transaction_ref"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40130, "invalid request payload")
		return
	}

	currency, ok := normalizeCurrency(req.Currency)
	if !ok {
		utils.Error(ctx, http.StatusBadRequest, 40131, "unsupported currency")
		return
	}

	date, err := time.ParseInLocation(burnDateLayout, strings.TrimSpace(req.Date), time.UTC)
	if err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40132, "date must be YYYY-MM-DD")
		return
	}
	if req.BurnCount <= 0 {
		utils.Error(ctx, http.StatusBadRequest, 40133, "burn_count must be positive")
		return
	}

	archive, err := b.ensureArchive(currency)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50111, "failed to load burn archive")
		return
	}

	record := models.BurnRecord{
		ArchiveID:      archive.ID,
		Currency:       currency,
		Date:           date,
		BurnCount:      req.BurnCount,
		TransactionRef: strings.TrimSpace(req.TransactionRef),
	}
	if err := b.db.Create(&record).Error; err != nil {
		if utils.IsDuplicateKeyError(err) {
			utils.Error(ctx, http.StatusConflict, 40930, "a record for this currency and date already exists")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50112, "failed to create burn record")
		return
	}

	utils.InvalidateByPrefix("cache:burn:")
	utils.Success(ctx, gin.H{"record": record})
}

// UpdateRecord changes the amount or transaction ref of an existing
// record (admin only). Currency and date are immutable.
func (b *BurnController) UpdateRecord(ctx *gin.Context) {
	if !isAdmin(ctx) {
		utils.Error(ctx, http.StatusForbidden, 40350, "admin access required")
		return
	}

	var req struct {
		BurnCount      *int64  `json:"burn_count"`
		TransactionRef *string `json:"transaction_ref"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40134, "invalid request payload")
		return
	}

	var record models.BurnRecord
	if err := b.db.First(&record, ctx.Param("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40440, "burn record not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50113, "failed to load burn record")
		return
	}

	if req.BurnCount != nil {
		if *req.BurnCount <= 0 {
			utils.Error(ctx, http.StatusBadRequest, 40133, "burn_count must be positive")
			return
		}
		record.BurnCount = *req.BurnCount
	}
	if req.TransactionRef != nil {
		record.TransactionRef = strings.TrimSpace(*req.TransactionRef)
	}

	if err := b.db.Save(&record).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50114, "failed to update burn record")
		return
	}

	utils.InvalidateByPrefix("cache:burn:")
	utils.Success(ctx, gin.H{"record": record})
}

// DeleteRecord removes one burn record (admin only).
func (b *BurnController) DeleteRecord(ctx *gin.Context) {
	if !isAdmin(ctx) {
		utils.Error(ctx, http.StatusForbidden, 40350, "admin access required")
		return
	}

	var record models.BurnRecord
	if err := b.db.First(&record, ctx.Param("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40440, "burn record not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50115, "failed to load burn record")
		return
	}

	if err := b.db.Delete(&record).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50116, "failed to delete burn record")
		return
	}

	utils.InvalidateByPrefix("cache:burn:")
	utils.Success(ctx, gin.H{"message": "burn record deleted"})
}

// ListRecords returns records for one currency, optionally restricted
// to a month (month=YYYY-MM), newest date first.
func (b *BurnController) ListRecords(ctx *gin.Context) {
	currency, ok := normalizeCurrency(ctx.Param("currency"))
	if !ok {
		utils.Error(ctx, http.StatusBadRequest, 40131, "unsupported currency")
		return
	}
	month := strings.TrimSpace(ctx.Query("month"))

	cacheKey := "cache:burn:" + currency + ":month=" + month
	if b2, ok := utils.CacheGetBytes(cacheKey); ok {
		ctx.Data(200, "application/json", b2)
		return
	}

	query := b.db.Where("currency = ?", currency)
	if month != "" {
		start, err := time.ParseInLocation("2006-01", month, time.UTC)
		if err != nil {
			utils.Error(ctx, http.StatusBadRequest, 40135, "month must be YYYY-MM")
			return
		}
		end := start.AddDate(0, 1, 0)
		query = query.Where("date >= ? AND date < ?", start, end)
	}

	var records []models.BurnRecord
	if err := query.Order("date DESC").Find(&records).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50117, "failed to list burn records")
		return
	}

	var totalBurned int64
	for _, r := range records {
		totalBurned += r.BurnCount
	}

	payload := gin.H{
		"currency":     currency,
		"items":        records,
		"count":        len(records),
		"total_burned": totalBurned,
	}
	wrapper := utils.JSONResponse{Code: 0, Message: "success", Data: payload}
	utils.CacheSetJSON(cacheKey, wrapper, 10*time.Minute)
	utils.Success(ctx, payload)
}
