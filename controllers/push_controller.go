package controllers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/emberlabs/emberhub/models"
	"github.com/emberlabs/emberhub/services"
	"github.com/emberlabs/emberhub/utils"
)

// PushController manages web-push subscriptions for the authenticated user.
type PushController struct {
	push *services.PushSender
}

// NewPushController creates a new PushController instance.
func NewPushController(push *services.PushSender) *PushController {
	return &PushController{push: push}
}

// Subscribe registers (or reassigns) a web-push subscription.
func (p *PushController) Subscribe(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	var req struct {
		Endpoint string `json:"endpoint" binding:"required"`
		Keys     struct {
			P256dh string `json:"p256dh" binding:"required"`
			Auth   string `json:"auth" binding:"required"`
		} `json:"keys" binding:"required"`
		Platform   string `json:"platform"`
		DeviceID   string `json:"device_id"`
		AppVersion string `json:"app_version"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40140, "invalid subscription payload")
		return
	}

	endpoint := strings.TrimSpace(req.Endpoint)
	if len(endpoint) > 1024 {
		utils.Error(ctx, http.StatusBadRequest, 40141, "endpoint too long")
		return
	}

	sub, err := p.push.UpsertSubscription(userID, models.PushSubscription{
		UserID:     userID,
		Endpoint:   endpoint,
		P256dh:     req.Keys.P256dh,
		Auth:       req.Keys.Auth,
		Platform:   strings.TrimSpace(req.Platform),
		DeviceID:   strings.TrimSpace(req.DeviceID),
		AppVersion: strings.TrimSpace(req.AppVersion),
	})
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50120, "failed to save subscription")
		return
	}

	utils.Success(ctx, gin.H{"subscription": sub})
}

// Unsubscribe disables the subscription for the given endpoint.
func (p *PushController) Unsubscribe(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	var req struct {
		Endpoint string `json:"endpoint" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40142, "invalid request payload")
		return
	}

	err := p.push.DisableSubscription(userID, strings.TrimSpace(req.Endpoint))
	if err != nil {
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			utils.Error(ctx, http.StatusNotFound, 40450, "subscription not found")
		case errors.Is(err, services.ErrSubscriptionNotOwned):
			utils.Error(ctx, http.StatusForbidden, 40360, "subscription belongs to another user")
		default:
			utils.Error(ctx, http.StatusInternalServerError, 50121, "failed to disable subscription")
		}
		return
	}

	utils.Success(ctx, gin.H{"message": "unsubscribed"})
}

// ListSubscriptions returns the authenticated user's active subscriptions.
func (p *PushController) ListSubscriptions(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	subs, err := p.push.ListSubscriptions(userID)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50122, "failed to list subscriptions")
		return
	}

	utils.Success(ctx, gin.H{"items": subs, "count": len(subs)})
}
