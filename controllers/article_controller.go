package controllers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/emberlabs/emberhub/models"
	"github.com/emberlabs/emberhub/utils"
)

// ArticleController manages editorial articles. Creation and editing are
// restricted to admins; reading and commenting are open to users.
type ArticleController struct {
	db *gorm.DB
}

// NewArticleController creates a new ArticleController instance.
func NewArticleController(db *gorm.DB) *ArticleController {
	return &ArticleController{db: db}
}

// CreateArticle publishes a new article (admin only).
func (a *ArticleController) CreateArticle(ctx *gin.Context) {
	if !isAdmin(ctx) {
		utils.Error(ctx, http.StatusForbidden, 40340, "admin access required")
		return
	}

	var req struct {
		Title    string `json:"title" binding:"required,min=1"`
		Content  string `json:"content" binding:"required"`
		ImageURL string `json:"image_url"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40090, "invalid request payload")
		return
	}

	title := utils.Sanitize(strings.TrimSpace(req.Title))
	content := utils.Sanitize(req.Content)
	if title == "" || content == "" {
		utils.Error(ctx, http.StatusBadRequest, 40091, "title and content cannot be empty")
		return
	}

	article := models.Article{
		Title:    title,
		Content:  content,
		ImageURL: strings.TrimSpace(req.ImageURL),
	}
	if err := a.db.Create(&article).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50090, "failed to create article")
		return
	}

	utils.InvalidateByPrefix("cache:articles:list:")
	utils.Success(ctx, gin.H{"article": article})
}

// ListArticles returns paginated articles, newest first.
func (a *ArticleController) ListArticles(ctx *gin.Context) {
	page, pageSize := parsePagination(ctx.Query("page"), ctx.Query("page_size"))

	cacheKey := fmt.Sprintf("cache:articles:list:page=%d:size=%d", page, pageSize)
	if b, ok := utils.CacheGetBytes(cacheKey); ok {
		ctx.Data(200, "application/json", b)
		return
	}

	var articles []models.Article
	var total int64
	if err := a.db.Model(&models.Article{}).Count(&total).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50091, "failed to count articles")
		return
	}
	if err := a.db.Order("created_at DESC").
		Offset((page - 1) * pageSize).Limit(pageSize).
		Find(&articles).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50092, "failed to list articles")
		return
	}

	payload := gin.H{
		"items":      articles,
		"pagination": paginationMeta(page, pageSize, total),
	}
	wrapper := utils.JSONResponse{Code: 0, Message: "success", Data: payload}
	utils.CacheSetJSON(cacheKey, wrapper, time.Hour)
	utils.Success(ctx, payload)
}

// GetArticle returns a single article with its comments.
func (a *ArticleController) GetArticle(ctx *gin.Context) {
	articleID := ctx.Param("id")

	if b, ok := utils.CacheGetBytes("cache:article:detail:" + articleID); ok {
		ctx.Data(200, "application/json", b)
		return
	}

	var article models.Article
	if err := a.db.First(&article, articleID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40430, "article not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50093, "failed to load article")
		return
	}

	var comments []models.Comment
	if err := a.db.Where("article_id = ?", article.ID).
		Preload("User").Order("created_at ASC").
		Find(&comments).Error; err == nil {
		article.Comments = comments
	}

	payload := gin.H{"article": article}
	wrapper := utils.JSONResponse{Code: 0, Message: "success", Data: payload}
	utils.CacheSetJSON("cache:article:detail:"+articleID, wrapper, time.Hour)
	utils.Success(ctx, payload)
}

// UpdateArticle edits an existing article (admin only).
func (a *ArticleController) UpdateArticle(ctx *gin.Context) {
	if !isAdmin(ctx) {
		utils.Error(ctx, http.StatusForbidden, 40340, "admin access required")
		return
	}

	var req struct {
		Title    string `json:"title"`
		Content  string `json:"content"`
		ImageURL string `json:"image_url"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40092, "invalid request payload")
		return
	}

	articleID := ctx.Param("id")
	var article models.Article
	if err := a.db.First(&article, articleID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40430, "article not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50094, "failed to load article")
		return
	}

	if title := utils.Sanitize(strings.TrimSpace(req.Title)); title != "" {
		article.Title = title
	}
	if strings.TrimSpace(req.Content) != "" {
		article.Content = utils.Sanitize(req.Content)
	}
	if strings.TrimSpace(req.ImageURL) != "" {
		article.ImageURL = strings.TrimSpace(req.ImageURL)
	}

	if err := a.db.Save(&article).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50095, "failed to update article")
		return
	}

	utils.InvalidateByPrefix("cache:articles:list:")
	utils.InvalidateByPrefix("cache:article:detail:" + articleID)
	utils.Success(ctx, gin.H{"article": article})
}

// DeleteArticle removes an article and its comments (admin only).
func (a *ArticleController) DeleteArticle(ctx *gin.Context) {
	if !isAdmin(ctx) {
		utils.Error(ctx, http.StatusForbidden, 40340, "admin access required")
		return
	}

	articleID := ctx.Param("id")
	var article models.Article
	if err := a.db.First(&article, articleID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40430, "article not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50096, "failed to load article")
		return
	}

	err := a.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("article_id = ?", article.ID).Delete(&models.Comment{}).Error; err != nil {
			return err
		}
		return tx.Delete(&article).Error
	})
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50097, "failed to delete article")
		return
	}

	utils.InvalidateByPrefix("cache:articles:list:")
	utils.InvalidateByPrefix("cache:article:detail:" + articleID)
	utils.Success(ctx, gin.H{"message": "article deleted"})
}

// CreateArticleComment allows authenticated users to comment on an article.
func (a *ArticleController) CreateArticleComment(ctx *gin.Context) {
	var req struct {
		Content string `json:"content" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40093, "invalid request payload")
		return
	}

	content := utils.Sanitize(req.Content)
	if content == "" {
		utils.Error(ctx, http.StatusBadRequest, 40094, "content cannot be empty")
		return
	}

	var article models.Article
	if err := a.db.First(&article, ctx.Param("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40430, "article not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50098, "failed to load article")
		return
	}

	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	comment := models.Comment{
		ArticleID: &article.ID,
		UserID:    userID,
		Content:   content,
	}
	if err := a.db.Create(&comment).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50099, "failed to create comment")
		return
	}
	if err := a.db.Preload("User").First(&comment, comment.ID).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50099, "failed to load comment")
		return
	}

	utils.InvalidateByPrefix("cache:article:detail:" + strconv.Itoa(int(article.ID)))
	utils.Success(ctx, gin.H{"comment": comment})
}
