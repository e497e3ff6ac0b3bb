package controllers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/emberlabs/emberhub/config"
	"github.com/emberlabs/emberhub/models"
	"github.com/emberlabs/emberhub/utils"
)

// ContactController accepts contact-us submissions and relays them to
// the configured support inbox.
type ContactController struct {
	db *gorm.DB
}

// NewContactController creates a new ContactController instance.
func NewContactController(db *gorm.DB) *ContactController {
	return &ContactController{db: db}
}

// Submit stores the message and best-effort relays it by email. The
// submission succeeds even when the SMTP relay fails.
func (c *ContactController) Submit(ctx *gin.Context) {
	var req struct {
		Name    string `json:"name" binding:"required,min=1,max=128"`
		Email   string `json:"email" binding:"required,email"`
		Subject string `json:"subject"`
		Message string `json:"message" binding:"required,min=1"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40170, "invalid request payload")
		return
	}

	msg := models.ContactMessage{
		Name:    utils.Sanitize(strings.TrimSpace(req.Name)),
		Email:   strings.TrimSpace(req.Email),
		Subject: utils.Sanitize(strings.TrimSpace(req.Subject)),
		Message: utils.Sanitize(strings.TrimSpace(req.Message)),
	}
	if msg.Message == "" {
		utils.Error(ctx, http.StatusBadRequest, 40171, "message cannot be empty")
		return
	}

	if err := c.db.Create(&msg).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50140, "failed to save message")
		return
	}

	inbox := config.Get().ContactInbox
	if inbox != "" {
		subject := msg.Subject
		if subject == "" {
			subject = "New contact message"
		}
		body := fmt.Sprintf("From: %s <%s>\n\n%s", msg.Name, msg.Email, msg.Message)
		if err := utils.SendMail(inbox, subject, body); err != nil {
			if utils.Sugar != nil {
				utils.Sugar.Warnf("contact relay failed for message %d: %v", msg.ID, err)
			}
		} else {
			_ = c.db.Model(&msg).Update("relayed", true).Error
		}
	}

	utils.Success(ctx, gin.H{"id": msg.ID, "message": "thanks, we will get back to you"})
}

// List returns submitted messages, newest first (admin only).
func (c *ContactController) List(ctx *gin.Context) {
	if !isAdmin(ctx) {
		utils.Error(ctx, http.StatusForbidden, 40370, "admin access required")
		return
	}
	page, pageSize := parsePagination(ctx.Query("page"), ctx.Query("page_size"))

	var messages []models.ContactMessage
	var total int64
	if err := c.db.Model(&models.ContactMessage{}).Count(&total).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50141, "failed to count messages")
		return
	}
	if err := c.db.Order("created_at DESC").
		Offset((page - 1) * pageSize).Limit(pageSize).
		Find(&messages).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50142, "failed to list messages")
		return
	}

	utils.Success(ctx, gin.H{
		"items":      messages,
		"pagination": paginationMeta(page, pageSize, total),
	})
}
