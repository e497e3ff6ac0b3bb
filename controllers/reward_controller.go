package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/emberlabs/emberhub/services"
	"github.com/emberlabs/emberhub/utils"
)

// RewardController exposes the daily rewards engine over HTTP. All
// endpoints operate on the authenticated user.
type RewardController struct {
	rewards *services.RewardService
}

// NewRewardController creates a new RewardController instance.
func NewRewardController(rewards *services.RewardService) *RewardController {
	return &RewardController{rewards: rewards}
}

// Status returns the current cycle, claimability and streak position.
func (r *RewardController) Status(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	status, err := r.rewards.Status(userID)
	if err != nil {
		if errors.Is(err, services.ErrRewardUserNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40401, "user not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50100, "failed to load reward status")
		return
	}

	utils.Success(ctx, status)
}

// Claim performs the daily claim for the current cycle. A repeated
// claim within the same cycle returns 409.
func (r *RewardController) Claim(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	result, err := r.rewards.Claim(userID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrAlreadyClaimed):
			utils.Error(ctx, http.StatusConflict, 40910, "already claimed for this cycle")
		case errors.Is(err, services.ErrRewardUserNotFound):
			utils.Error(ctx, http.StatusNotFound, 40401, "user not found")
		default:
			utils.Error(ctx, http.StatusInternalServerError, 50101, "failed to claim reward")
		}
		return
	}

	utils.Success(ctx, result)
}

// History returns the most recent claims, newest first. The limit
// query parameter is clamped by the service.
func (r *RewardController) History(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	limit := 0
	if raw := ctx.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			utils.Error(ctx, http.StatusBadRequest, 40100, "invalid limit")
			return
		}
		limit = n
	}

	claims, err := r.rewards.History(userID, limit)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50102, "failed to load reward history")
		return
	}

	utils.Success(ctx, gin.H{"items": claims, "count": len(claims)})
}

// Clear wipes the authenticated user's claim rows, resets streak state
// and zeroes the balance. Intended for support and test environments.
func (r *RewardController) Clear(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	result, err := r.rewards.ClearClaims(userID)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50103, "failed to clear reward claims")
		return
	}

	utils.Success(ctx, result)
}
