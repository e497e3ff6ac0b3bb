package controllers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/emberlabs/emberhub/realtime"
	"github.com/emberlabs/emberhub/services"
	"github.com/emberlabs/emberhub/utils"
)

// NotificationController serves the persisted notification feed and the
// realtime websocket endpoint.
type NotificationController struct {
	notify *services.NotifyService
	hub    *realtime.Hub
}

// NewNotificationController creates a new NotificationController instance.
func NewNotificationController(notify *services.NotifyService, hub *realtime.Hub) *NotificationController {
	return &NotificationController{notify: notify, hub: hub}
}

// List returns the authenticated user's notifications, newest first,
// with total and unread counts.
func (n *NotificationController) List(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	page, pageSize := parsePagination(ctx.Query("page"), ctx.Query("page_size"))

	items, total, unread, err := n.notify.ListForUser(userID, page, pageSize)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50130, "failed to list notifications")
		return
	}

	utils.Success(ctx, gin.H{
		"items":      items,
		"unread":     unread,
		"pagination": paginationMeta(page, pageSize, total),
	})
}

// MarkRead marks one notification as read.
func (n *NotificationController) MarkRead(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	notifID, err := strconv.ParseUint(strings.TrimSpace(ctx.Param("id")), 10, 32)
	if err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40150, "invalid notification id")
		return
	}

	if err := n.notify.MarkRead(userID, uint(notifID)); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40460, "notification not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50131, "failed to mark notification read")
		return
	}

	utils.Success(ctx, gin.H{"message": "marked read"})
}

// MarkAllRead marks every unread notification as read.
func (n *NotificationController) MarkAllRead(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	updated, err := n.notify.MarkAllRead(userID)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50132, "failed to mark notifications read")
		return
	}

	utils.Success(ctx, gin.H{"updated": updated})
}

// Websocket upgrades the connection and streams realtime events to the
// user. Browsers cannot set the Authorization header on websocket
// requests, so the JWT is also accepted as a token query parameter.
func (n *NotificationController) Websocket(ctx *gin.Context) {
	token := strings.TrimSpace(ctx.Query("token"))
	if token == "" {
		authHeader := ctx.GetHeader("Authorization")
		if parts := strings.SplitN(authHeader, " ", 2); len(parts) == 2 {
			token = strings.TrimSpace(parts[1])
		}
	}
	if token == "" {
		utils.Error(ctx, http.StatusUnauthorized, 40160, "missing token")
		return
	}
	if utils.IsTokenBlacklisted(token) {
		utils.Error(ctx, http.StatusUnauthorized, 40161, "token revoked")
		return
	}

	claims, err := utils.ParseToken(token)
	if err != nil {
		utils.Error(ctx, http.StatusUnauthorized, 40162, "invalid token")
		return
	}

	if err := n.hub.Serve(ctx.Writer, ctx.Request, claims.UserID); err != nil {
		// The upgrader already wrote the HTTP error response.
		if utils.Sugar != nil {
			utils.Sugar.Warnf("websocket upgrade failed for user %d: %v", claims.UserID, err)
		}
	}
}
