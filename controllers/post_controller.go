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
	"github.com/emberlabs/emberhub/services"
	"github.com/emberlabs/emberhub/utils"
)

// PostController manages CRUD operations for posts and their comments.
type PostController struct {
	db     *gorm.DB
	notify *services.NotifyService
}

// NewPostController creates a new PostController instance.
func NewPostController(db *gorm.DB, notify *services.NotifyService) *PostController {
	return &PostController{db: db, notify: notify}
}

// CreatePost allows authenticated users to create a new post under a topic.
func (p *PostController) CreatePost(ctx *gin.Context) {
	var req struct {
		TopicID  uint   `json:"topic_id" binding:"required"`
		Content  string `json:"content" binding:"required"`
		ImageURL string `json:"image_url"`
	}

	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40020, "invalid request payload")
		return
	}

	content := utils.Sanitize(strings.TrimSpace(req.Content))
	if content == "" {
		utils.Error(ctx, http.StatusBadRequest, 40021, "content cannot be empty")
		return
	}

	var topic models.Topic
	if err := p.db.First(&topic, req.TopicID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40410, "topic not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50020, "failed to load topic")
		return
	}

	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	post := models.Post{
		UserID:   userID,
		TopicID:  topic.ID,
		Content:  content,
		ImageURL: strings.TrimSpace(req.ImageURL),
	}

	if err := p.db.Create(&post).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50021, "failed to create post")
		return
	}

	utils.InvalidateByPrefix("cache:posts:list:")
	utils.InvalidateByPrefix("cache:user:" + strconv.Itoa(int(userID)) + ":posts:")

	utils.Success(ctx, gin.H{"post": post})
}

// ListPosts returns paginated posts including author information,
// optionally filtered by topic or search term.
func (p *PostController) ListPosts(ctx *gin.Context) {
	page, pageSize := parsePagination(ctx.Query("page"), ctx.Query("page_size"))
	search := strings.TrimSpace(ctx.Query("search"))
	topicID := strings.TrimSpace(ctx.Query("topic_id"))

	// Cache topic/homepage lists when no search term to avoid cache key explosion
	cacheKey := fmt.Sprintf("cache:posts:list:topic=%s:page=%d:size=%d", topicID, page, pageSize)
	if search == "" {
		if b, ok := utils.CacheGetBytes(cacheKey); ok {
			ctx.Data(200, "application/json", b)
			return
		}
	}

	var posts []models.Post
	var total int64

	query := p.db.Preload("User").Order("created_at DESC")
	if search != "" {
		query = query.Where("content LIKE ?", "%"+search+"%")
	}
	if topicID != "" {
		query = query.Where("topic_id = ?", topicID)
	}
	if err := query.Model(&models.Post{}).Count(&total).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50022, "failed to count posts")
		return
	}

	offset := (page - 1) * pageSize
	if err := query.Offset(offset).Limit(pageSize).Find(&posts).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50023, "failed to list posts")
		return
	}

	payload := gin.H{
		"items":      posts,
		"pagination": paginationMeta(page, pageSize, total),
	}
	if search == "" {
		wrapper := utils.JSONResponse{Code: 0, Message: "success", Data: payload}
		utils.CacheSetJSON(cacheKey, wrapper, time.Hour)
	}
	utils.Success(ctx, payload)
}

// GetPost returns a single post with its comments.
func (p *PostController) GetPost(ctx *gin.Context) {
	postID := ctx.Param("id")

	if b, ok := utils.CacheGetBytes("cache:post:detail:" + postID); ok {
		ctx.Data(200, "application/json", b)
		return
	}

	var post models.Post
	if err := p.db.Preload("User").First(&post, postID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40401, "post not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50024, "failed to load post")
		return
	}

	var comments []models.Comment
	if err := p.db.Where("post_id = ?", post.ID).Order("created_at ASC").Find(&comments).Error; err != nil {
		if utils.Sugar != nil {
			utils.Sugar.Warnf("failed to load comments for post %d: %v", post.ID, err)
		}
	} else {
		post.Comments = comments
	}

	if len(post.Comments) > 0 {
		var userIDs []uint
		for _, c := range post.Comments {
			userIDs = append(userIDs, c.UserID)
		}
		userIDs = utils.UniqueUint(userIDs)

		var users []models.User
		if err := p.db.Find(&users, userIDs).Error; err == nil {
			userMap := make(map[uint]models.User)
			for _, u := range users {
				userMap[u.ID] = u
			}
			for i := range post.Comments {
				if user, ok := userMap[post.Comments[i].UserID]; ok {
					post.Comments[i].User = user
				}
			}
		} else if utils.Sugar != nil {
			utils.Sugar.Warnf("failed to load users for comments on post %d: %v", post.ID, err)
		}
	}

	payload := gin.H{"post": post}
	wrapper := utils.JSONResponse{Code: 0, Message: "success", Data: payload}
	utils.CacheSetJSON("cache:post:detail:"+postID, wrapper, time.Hour)
	utils.Success(ctx, payload)
}

// ListMyPosts returns posts created by the authenticated user.
func (p *PostController) ListMyPosts(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	page, pageSize := parsePagination(ctx.Query("page"), ctx.Query("page_size"))
	var posts []models.Post
	var total int64
	q := p.db.Where("user_id = ?", userID).Preload("User").Order("created_at DESC")
	if err := q.Model(&models.Post{}).Count(&total).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50027, "failed to count user posts")
		return
	}
	if err := q.Offset((page - 1) * pageSize).Limit(pageSize).Find(&posts).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50028, "failed to list user posts")
		return
	}
	utils.Success(ctx, gin.H{
		"items":      posts,
		"pagination": paginationMeta(page, pageSize, total),
	})
}

// ListUserPosts returns posts created by a specific user (public).
func (p *PostController) ListUserPosts(ctx *gin.Context) {
	userID := strings.TrimSpace(ctx.Param("id"))
	if userID == "" {
		utils.Error(ctx, http.StatusBadRequest, 40060, "missing user id")
		return
	}
	page, pageSize := parsePagination(ctx.Query("page"), ctx.Query("page_size"))
	cacheKey := fmt.Sprintf("cache:user:%s:posts:page=%d:size=%d", userID, page, pageSize)
	if b, ok := utils.CacheGetBytes(cacheKey); ok {
		ctx.Data(200, "application/json", b)
		return
	}
	var posts []models.Post
	var total int64
	q := p.db.Where("user_id = ?", userID).Preload("User").Order("created_at DESC")
	if err := q.Model(&models.Post{}).Count(&total).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50060, "failed to count user posts")
		return
	}
	if err := q.Offset((page - 1) * pageSize).Limit(pageSize).Find(&posts).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50061, "failed to list user posts")
		return
	}
	payload := gin.H{
		"items":      posts,
		"pagination": paginationMeta(page, pageSize, total),
	}
	wrapper := utils.JSONResponse{Code: 0, Message: "success", Data: payload}
	utils.CacheSetJSON(cacheKey, wrapper, time.Hour)
	utils.Success(ctx, payload)
}

// CreateComment allows authenticated users to comment on a post. The
// post author is notified unless they are commenting on their own post.
func (p *PostController) CreateComment(ctx *gin.Context) {
	var req struct {
		Content string `json:"content" binding:"required"`
	}

	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40022, "invalid request payload")
		return
	}

	content := utils.Sanitize(req.Content)
	if content == "" {
		utils.Error(ctx, http.StatusBadRequest, 40023, "content cannot be empty")
		return
	}

	postID := ctx.Param("id")
	var post models.Post
	if err := p.db.First(&post, postID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40402, "post not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50024, "failed to load post")
		return
	}

	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	comment := models.Comment{
		PostID:  &post.ID,
		UserID:  userID,
		Content: content,
	}

	if err := p.db.Create(&comment).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50025, "failed to create comment")
		return
	}

	if err := p.db.Preload("User").First(&comment, comment.ID).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50026, "failed to load comment")
		return
	}

	utils.InvalidateByPrefix("cache:post:detail:" + strconv.Itoa(int(post.ID)))

	if p.notify != nil {
		_, _ = p.notify.Notify(post.UserID, userID, models.NotificationComment,
			fmt.Sprintf("%s commented on your post", comment.User.Username), &post.ID)
	}

	utils.Success(ctx, gin.H{"comment": comment})
}

// UpdateComment allows the comment owner to edit their comment.
func (p *PostController) UpdateComment(ctx *gin.Context) {
	var req struct {
		Content string `json:"content" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40071, "invalid request payload")
		return
	}

	content := utils.Sanitize(req.Content)
	if content == "" {
		utils.Error(ctx, http.StatusBadRequest, 40072, "content cannot be empty")
		return
	}

	var cmt models.Comment
	if err := p.db.First(&cmt, strings.TrimSpace(ctx.Param("commentId"))).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40420, "comment not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50072, "failed to load comment")
		return
	}

	uid, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40120, "unauthorized")
		return
	}
	if cmt.UserID != uid {
		utils.Error(ctx, http.StatusForbidden, 40321, "you can only edit your own comment")
		return
	}

	cmt.Content = content
	if err := p.db.Save(&cmt).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50073, "failed to update comment")
		return
	}
	if cmt.PostID != nil {
		utils.InvalidateByPrefix("cache:post:detail:" + strconv.Itoa(int(*cmt.PostID)))
	}
	if cmt.ArticleID != nil {
		utils.InvalidateByPrefix("cache:article:detail:" + strconv.Itoa(int(*cmt.ArticleID)))
	}
	utils.Success(ctx, gin.H{"comment": cmt})
}

// DeleteComment allows the comment owner or an admin to delete a comment.
func (p *PostController) DeleteComment(ctx *gin.Context) {
	cid := strings.TrimSpace(ctx.Param("commentId"))
	if cid == "" {
		utils.Error(ctx, http.StatusBadRequest, 40070, "missing comment id")
		return
	}
	var cmt models.Comment
	if err := p.db.First(&cmt, cid).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40420, "comment not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50070, "failed to load comment")
		return
	}

	uid, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40120, "unauthorized")
		return
	}
	if cmt.UserID != uid && !isAdmin(ctx) {
		utils.Error(ctx, http.StatusForbidden, 40320, "you can only delete your own comment")
		return
	}
	if err := p.db.Delete(&cmt).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50071, "failed to delete comment")
		return
	}
	if cmt.PostID != nil {
		utils.InvalidateByPrefix("cache:post:detail:" + strconv.Itoa(int(*cmt.PostID)))
	}
	if cmt.ArticleID != nil {
		utils.InvalidateByPrefix("cache:article:detail:" + strconv.Itoa(int(*cmt.ArticleID)))
	}
	utils.Success(ctx, gin.H{"message": "comment deleted"})
}

// UpdatePost allows the author to update their post.
func (p *PostController) UpdatePost(ctx *gin.Context) {
	var req struct {
		Content  string `json:"content" binding:"required"`
		ImageURL string `json:"image_url"`
	}

	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40024, "invalid request payload")
		return
	}

	content := utils.Sanitize(strings.TrimSpace(req.Content))
	if content == "" {
		utils.Error(ctx, http.StatusBadRequest, 40025, "content cannot be empty")
		return
	}

	postID := ctx.Param("id")
	var post models.Post
	if err := p.db.First(&post, postID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40403, "post not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50025, "failed to load post")
		return
	}

	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40111, "unauthorized")
		return
	}

	if post.UserID != userID {
		utils.Error(ctx, http.StatusForbidden, 40301, "you can only update your own posts")
		return
	}

	post.Content = content
	post.ImageURL = strings.TrimSpace(req.ImageURL)
	if err := p.db.Save(&post).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50026, "failed to update post")
		return
	}

	utils.InvalidateByPrefix("cache:posts:list:")
	utils.InvalidateByPrefix("cache:post:detail:" + postID)
	utils.Success(ctx, gin.H{"post": post})
}

// DeletePost allows the author or an admin to delete a post and its comments.
func (p *PostController) DeletePost(ctx *gin.Context) {
	postID := ctx.Param("id")
	var post models.Post
	if err := p.db.First(&post, postID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40404, "post not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50029, "failed to load post")
		return
	}

	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40112, "unauthorized")
		return
	}

	if post.UserID != userID && !isAdmin(ctx) {
		utils.Error(ctx, http.StatusForbidden, 40302, "you can only delete your own posts")
		return
	}

	err := p.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("post_id = ?", post.ID).Delete(&models.Comment{}).Error; err != nil {
			return err
		}
		return tx.Delete(&post).Error
	})
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50030, "failed to delete post")
		return
	}

	utils.InvalidateByPrefix("cache:posts:list:")
	utils.InvalidateByPrefix("cache:post:detail:" + postID)
	utils.InvalidateByPrefix("cache:user:" + strconv.Itoa(int(post.UserID)) + ":posts:")
	utils.Success(ctx, gin.H{"message": "post deleted"})
}
