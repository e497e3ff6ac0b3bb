package controllers

import (
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/emberlabs/emberhub/models"
	"github.com/emberlabs/emberhub/services"
	"github.com/emberlabs/emberhub/utils"
)

// StatsController provides aggregate community statistics.
type StatsController struct {
	db      *gorm.DB
	rewards *services.RewardService
}

// NewStatsController creates a new StatsController instance.
func NewStatsController(db *gorm.DB, rewards *services.RewardService) *StatsController {
	return &StatsController{db: db, rewards: rewards}
}

// GetStats returns aggregate counts for the community.
func (s *StatsController) GetStats(ctx *gin.Context) {
	var userCount int64
	var topicCount int64
	var postCount int64
	var commentCount int64
	var claimsToday int64
	var dailyActive int64

	// Fallback to 0 instead of failing the whole endpoint
	if err := s.db.Model(&models.User{}).Count(&userCount).Error; err != nil {
		userCount = 0
	}
	if err := s.db.Model(&models.Topic{}).Count(&topicCount).Error; err != nil {
		topicCount = 0
	}
	if err := s.db.Model(&models.Post{}).Count(&postCount).Error; err != nil {
		postCount = 0
	}
	if err := s.db.Model(&models.Comment{}).Count(&commentCount).Error; err != nil {
		commentCount = 0
	}

	var totalBurned int64
	if err := s.db.Model(&models.BurnRecord{}).
		Select("COALESCE(SUM(burn_count),0)").
		Scan(&totalBurned).Error; err != nil {
		totalBurned = 0
	}

	// Claims belong to reward cycles, not calendar dates; before the reset
	// hour the current cycle still carries yesterday's key.
	if err := s.db.Model(&models.RewardClaim{}).
		Where("cycle_key = ?", s.rewards.CurrentCycleKey()).
		Count(&claimsToday).Error; err != nil {
		claimsToday = 0
	}

	// Daily active (PV-based): sum of today's page views across all paths.
	// String date equality avoids timezone/type mismatches with DATE column.
	today := time.Now().In(time.Local).Format("2006-01-02")
	if err := s.db.Model(&models.PageView{}).
		Where("date = ?", today).
		Select("COALESCE(SUM(count),0)").
		Scan(&dailyActive).Error; err != nil {
		dailyActive = 0
	}

	utils.Success(ctx, gin.H{
		"user_count":          userCount,
		"topic_count":         topicCount,
		"post_count":          postCount,
		"comment_count":       commentCount,
		"total_burned":        totalBurned,
		"reward_claims_today": claimsToday,
		"daily_active_count":  dailyActive,
	})
}

// GetPostStats returns PV and comment count for a given post id.
func (s *StatsController) GetPostStats(ctx *gin.Context) {
	id := ctx.Param("id")

	var pv int64
	path1 := "/api/v1/posts/" + id
	path2 := "/posts/" + id
	if err := s.db.Model(&models.PageView{}).
		Where("path IN ?", []string{path1, path2}).
		Select("COALESCE(SUM(count),0)").
		Scan(&pv).Error; err != nil {
		pv = 0
	}

	var commentsCount int64
	if err := s.db.Model(&models.Comment{}).Where("post_id = ?", id).Count(&commentsCount).Error; err != nil {
		commentsCount = 0
	}

	utils.Success(ctx, gin.H{
		"post_id":        id,
		"page_views":     pv,
		"comments_count": commentsCount,
	})
}
