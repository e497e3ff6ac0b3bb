package controllers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/emberlabs/emberhub/models"
	"github.com/emberlabs/emberhub/services"
)

func newContentTestRouter(t *testing.T, db *gorm.DB, user *models.User) *gin.Engine {
	t.Helper()

	notify := services.NewNotifyService(db, nil, nil, nil)
	tc := NewTopicController(db)
	pc := NewPostController(db, notify)

	r := gin.New()
	api := r.Group("/api/v1")
	api.GET("/posts", pc.ListPosts)
	api.GET("/posts/:id", pc.GetPost)
	api.GET("/topics", tc.ListTopics)
	api.GET("/topics/:id", tc.GetTopic)

	g := api.Group("", asUser(user))
	g.POST("/topics", tc.CreateTopic)
	g.POST("/posts", pc.CreatePost)
	g.PUT("/posts/:id", pc.UpdatePost)
	g.DELETE("/posts/:id", pc.DeletePost)
	g.POST("/posts/:id/comments", pc.CreateComment)
	g.DELETE("/comments/:commentId", pc.DeleteComment)
	return r
}

func postJSON(r *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	b, _ := json.Marshal(body)
	req := httptest.NewRequest(method, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func createTestTopic(t *testing.T, r *gin.Engine) uint {
	t.Helper()
	w := postJSON(r, http.MethodPost, "/api/v1/topics", gin.H{
		"title":       "Burn mechanics",
		"description": "Everything about token burns",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := decodeResponse(t, w)
	var data struct {
		Topic models.Topic `json:"topic"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &data))
	return data.Topic.ID
}

func TestCreateAndGetPost(t *testing.T) {
	db := setupTestDB(t)
	user := seedTestUser(t, db, "poster")
	r := newContentTestRouter(t, db, user)
	topicID := createTestTopic(t, r)

	w := postJSON(r, http.MethodPost, "/api/v1/posts", gin.H{
		"topic_id": topicID,
		"content":  "First post in this topic",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := decodeResponse(t, w)
	var created struct {
		Post models.Post `json:"post"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &created))
	assert.Equal(t, user.ID, created.Post.UserID)
	assert.Equal(t, topicID, created.Post.TopicID)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/v1/posts/%d", created.Post.ID), nil))
	require.Equal(t, http.StatusOK, w.Code)

	resp = decodeResponse(t, w)
	var got struct {
		Post models.Post `json:"post"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &got))
	assert.Equal(t, "First post in this topic", got.Post.Content)
	assert.Equal(t, "poster", got.Post.User.Username)
}

func TestCreatePostValidation(t *testing.T) {
	db := setupTestDB(t)
	user := seedTestUser(t, db, "poster")
	r := newContentTestRouter(t, db, user)
	topicID := createTestTopic(t, r)

	// Missing content.
	w := postJSON(r, http.MethodPost, "/api/v1/posts", gin.H{"topic_id": topicID})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Unknown topic.
	w = postJSON(r, http.MethodPost, "/api/v1/posts", gin.H{
		"topic_id": 9999,
		"content":  "orphan",
	})
	assert.Equal(t, http.StatusNotFound, w.Code)

	// Script content is sanitized away, leaving nothing.
	w = postJSON(r, http.MethodPost, "/api/v1/posts", gin.H{
		"topic_id": topicID,
		"content":  "<script>alert(1)</script>",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCommentNotifiesPostAuthor(t *testing.T) {
	db := setupTestDB(t)
	author := seedTestUser(t, db, "author")
	commenter := seedTestUser(t, db, "commenter")

	authorRouter := newContentTestRouter(t, db, author)
	topicID := createTestTopic(t, authorRouter)

	w := postJSON(authorRouter, http.MethodPost, "/api/v1/posts", gin.H{
		"topic_id": topicID,
		"content":  "Discuss",
	})
	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeResponse(t, w)
	var created struct {
		Post models.Post `json:"post"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &created))

	commenterRouter := newContentTestRouter(t, db, commenter)
	w = postJSON(commenterRouter, http.MethodPost,
		fmt.Sprintf("/api/v1/posts/%d/comments", created.Post.ID),
		gin.H{"content": "Nice post"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var notifs []models.Notification
	require.NoError(t, db.Where("user_id = ?", author.ID).Find(&notifs).Error)
	require.Len(t, notifs, 1)
	assert.Equal(t, models.NotificationComment, notifs[0].Type)
	assert.Equal(t, commenter.ID, notifs[0].SenderID)
	require.NotNil(t, notifs[0].PostID)
	assert.Equal(t, created.Post.ID, *notifs[0].PostID)

	// Commenting on your own post produces no notification.
	w = postJSON(authorRouter, http.MethodPost,
		fmt.Sprintf("/api/v1/posts/%d/comments", created.Post.ID),
		gin.H{"content": "Replying to myself"})
	require.Equal(t, http.StatusOK, w.Code)

	var count int64
	require.NoError(t, db.Model(&models.Notification{}).Where("user_id = ?", author.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestUpdatePostOwnership(t *testing.T) {
	db := setupTestDB(t)
	owner := seedTestUser(t, db, "owner")
	other := seedTestUser(t, db, "other")

	ownerRouter := newContentTestRouter(t, db, owner)
	topicID := createTestTopic(t, ownerRouter)

	w := postJSON(ownerRouter, http.MethodPost, "/api/v1/posts", gin.H{
		"topic_id": topicID,
		"content":  "Original",
	})
	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeResponse(t, w)
	var created struct {
		Post models.Post `json:"post"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &created))
	path := fmt.Sprintf("/api/v1/posts/%d", created.Post.ID)

	otherRouter := newContentTestRouter(t, db, other)
	w = postJSON(otherRouter, http.MethodPut, path, gin.H{"content": "Hijacked"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = postJSON(ownerRouter, http.MethodPut, path, gin.H{"content": "Edited"})
	require.Equal(t, http.StatusOK, w.Code)

	var post models.Post
	require.NoError(t, db.First(&post, created.Post.ID).Error)
	assert.Equal(t, "Edited", post.Content)
}

func TestDeletePostRemovesComments(t *testing.T) {
	db := setupTestDB(t)
	user := seedTestUser(t, db, "owner")
	r := newContentTestRouter(t, db, user)
	topicID := createTestTopic(t, r)

	w := postJSON(r, http.MethodPost, "/api/v1/posts", gin.H{
		"topic_id": topicID,
		"content":  "To be deleted",
	})
	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeResponse(t, w)
	var created struct {
		Post models.Post `json:"post"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &created))

	w = postJSON(r, http.MethodPost,
		fmt.Sprintf("/api/v1/posts/%d/comments", created.Post.ID),
		gin.H{"content": "Doomed comment"})
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, fmt.Sprintf("/api/v1/posts/%d", created.Post.ID), nil))
	require.Equal(t, http.StatusOK, w.Code)

	var posts, comments int64
	require.NoError(t, db.Model(&models.Post{}).Count(&posts).Error)
	require.NoError(t, db.Model(&models.Comment{}).Where("post_id = ?", created.Post.ID).Count(&comments).Error)
	assert.Equal(t, int64(0), posts)
	assert.Equal(t, int64(0), comments)
}
