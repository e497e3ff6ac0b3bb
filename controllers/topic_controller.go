package controllers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/emberlabs/emberhub/models"
	"github.com/emberlabs/emberhub/utils"
)

// TopicController manages community topics.
type TopicController struct {
	db *gorm.DB
}

// NewTopicController creates a new TopicController instance.
func NewTopicController(db *gorm.DB) *TopicController {
	return &TopicController{db: db}
}

// CreateTopic allows authenticated users to create a new topic.
func (t *TopicController) CreateTopic(ctx *gin.Context) {
	var req struct {
		Title       string `json:"title" binding:"required,min=1"`
		Description string `json:"description"`
		ImageURL    string `json:"image_url"`
	}

	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40080, "invalid request payload")
		return
	}

	title := utils.Sanitize(strings.TrimSpace(req.Title))
	if title == "" {
		utils.Error(ctx, http.StatusBadRequest, 40081, "title cannot be empty")
		return
	}

	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	topic := models.Topic{
		AuthorID:    userID,
		Title:       title,
		Description: utils.Sanitize(strings.TrimSpace(req.Description)),
		ImageURL:    strings.TrimSpace(req.ImageURL),
	}

	if err := t.db.Create(&topic).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50080, "failed to create topic")
		return
	}

	utils.InvalidateByPrefix("cache:topics:list:")
	utils.Success(ctx, gin.H{"topic": topic})
}

// ListTopics returns paginated topics with author info and post counts.
func (t *TopicController) ListTopics(ctx *gin.Context) {
	page, pageSize := parsePagination(ctx.Query("page"), ctx.Query("page_size"))
	search := strings.TrimSpace(ctx.Query("search"))
	authorID := strings.TrimSpace(ctx.Query("author_id"))

	cacheKey := fmt.Sprintf("cache:topics:list:author=%s:page=%d:size=%d", authorID, page, pageSize)
	if search == "" {
		if b, ok := utils.CacheGetBytes(cacheKey); ok {
			ctx.Data(200, "application/json", b)
			return
		}
	}

	var topics []models.Topic
	var total int64

	query := t.db.Preload("Author").Order("created_at DESC")
	if search != "" {
		query = query.Where("title LIKE ? OR description LIKE ?", "%"+search+"%", "%"+search+"%")
	}
	if authorID != "" {
		query = query.Where("author_id = ?", authorID)
	}
	if err := query.Model(&models.Topic{}).Count(&total).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50081, "failed to count topics")
		return
	}
	if err := query.Offset((page - 1) * pageSize).Limit(pageSize).Find(&topics).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50082, "failed to list topics")
		return
	}

	items := make([]gin.H, 0, len(topics))
	for _, topic := range topics {
		var postCount int64
		_ = t.db.Model(&models.Post{}).Where("topic_id = ?", topic.ID).Count(&postCount).Error
		items = append(items, gin.H{
			"id":          topic.ID,
			"title":       topic.Title,
			"description": topic.Description,
			"image_url":   topic.ImageURL,
			"author":      topic.Author,
			"post_count":  postCount,
			"created_at":  topic.CreatedAt,
		})
	}

	payload := gin.H{
		"items":      items,
		"pagination": paginationMeta(page, pageSize, total),
	}
	if search == "" {
		wrapper := utils.JSONResponse{Code: 0, Message: "success", Data: payload}
		utils.CacheSetJSON(cacheKey, wrapper, 30*time.Minute)
	}
	utils.Success(ctx, payload)
}

// GetTopic returns a single topic with its recent posts.
func (t *TopicController) GetTopic(ctx *gin.Context) {
	topicID := ctx.Param("id")

	var topic models.Topic
	if err := t.db.Preload("Author").First(&topic, topicID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40410, "topic not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50083, "failed to load topic")
		return
	}

	var posts []models.Post
	if err := t.db.Where("topic_id = ?", topic.ID).
		Preload("User").Order("created_at DESC").Limit(20).
		Find(&posts).Error; err == nil {
		topic.Posts = posts
	}

	utils.Success(ctx, gin.H{"topic": topic})
}

// UpdateTopic allows the topic author or an admin to edit the topic.
func (t *TopicController) UpdateTopic(ctx *gin.Context) {
	var req struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		ImageURL    string `json:"image_url"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40082, "invalid request payload")
		return
	}

	var topic models.Topic
	if err := t.db.First(&topic, ctx.Param("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40410, "topic not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50084, "failed to load topic")
		return
	}

	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	if topic.AuthorID != userID && !isAdmin(ctx) {
		utils.Error(ctx, http.StatusForbidden, 40330, "you can only update your own topics")
		return
	}

	if title := utils.Sanitize(strings.TrimSpace(req.Title)); title != "" {
		topic.Title = title
	}
	if strings.TrimSpace(req.Description) != "" {
		topic.Description = utils.Sanitize(strings.TrimSpace(req.Description))
	}
	if strings.TrimSpace(req.ImageURL) != "" {
		topic.ImageURL = strings.TrimSpace(req.ImageURL)
	}

	if err := t.db.Save(&topic).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50085, "failed to update topic")
		return
	}

	utils.InvalidateByPrefix("cache:topics:list:")
	utils.Success(ctx, gin.H{"topic": topic})
}

// DeleteTopic allows the topic author or an admin to delete the topic
// along with its posts and their comments.
func (t *TopicController) DeleteTopic(ctx *gin.Context) {
	var topic models.Topic
	if err := t.db.First(&topic, ctx.Param("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40410, "topic not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50086, "failed to load topic")
		return
	}

	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	if topic.AuthorID != userID && !isAdmin(ctx) {
		utils.Error(ctx, http.StatusForbidden, 40331, "you can only delete your own topics")
		return
	}

	err := t.db.Transaction(func(tx *gorm.DB) error {
		var postIDs []uint
		if err := tx.Model(&models.Post{}).Where("topic_id = ?", topic.ID).Pluck("id", &postIDs).Error; err != nil {
			return err
		}
		if len(postIDs) > 0 {
			if err := tx.Where("post_id IN ?", postIDs).Delete(&models.Comment{}).Error; err != nil {
				return err
			}
			if err := tx.Where("topic_id = ?", topic.ID).Delete(&models.Post{}).Error; err != nil {
				return err
			}
		}
		return tx.Delete(&topic).Error
	})
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50087, "failed to delete topic")
		return
	}

	utils.InvalidateByPrefix("cache:topics:list:")
	utils.InvalidateByPrefix("cache:posts:list:")
	utils.Success(ctx, gin.H{"message": "topic deleted"})
}
