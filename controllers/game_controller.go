package controllers

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/emberlabs/emberhub/models"
	"github.com/emberlabs/emberhub/utils"
)

const (
	gameLeaderboardKey = "game:leaderboard:"
	gameScoreTimeout   = 2 * time.Second
)

var validGames = []string{"flappy", "runner", "match3"}

// GameController keeps per-game high scores in a Redis sorted set.
type GameController struct {
	db *gorm.DB
}

// NewGameController creates a new GameController instance.
func NewGameController(db *gorm.DB) *GameController {
	return &GameController{db: db}
}

func validGame(name string) bool {
	for _, g := range validGames {
		if g == name {
			return true
		}
	}
	return false
}

// SubmitScore records the score, keeping only the user's best.
func (g *GameController) SubmitScore(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	game := strings.ToLower(strings.TrimSpace(ctx.Param("game")))
	if !validGame(game) {
		utils.Error(ctx, http.StatusBadRequest, 40180, "unknown game")
		return
	}

	var req struct {
		Score int64 `json:"score" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil || req.Score <= 0 {
		utils.Error(ctx, http.StatusBadRequest, 40181, "score must be a positive number")
		return
	}

	rctx, cancel := context.WithTimeout(context.Background(), gameScoreTimeout)
	defer cancel()

	member := strconv.Itoa(int(userID))
	key := gameLeaderboardKey + game

	// ZADD GT keeps the existing score when the new one is lower.
	if err := utils.GetRedis().ZAddGT(rctx, key, redis.Z{
		Score:  float64(req.Score),
		Member: member,
	}).Err(); err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50150, "failed to record score")
		return
	}

	best, err := utils.GetRedis().ZScore(rctx, key, member).Result()
	if err != nil {
		best = float64(req.Score)
	}
	rank, err := utils.GetRedis().ZRevRank(rctx, key, member).Result()
	if err != nil {
		rank = -1
	}

	utils.Success(ctx, gin.H{
		"game":  game,
		"score": req.Score,
		"best":  int64(best),
		"rank":  rank + 1,
	})
}

// Leaderboard returns the top scores for a game with usernames resolved.
func (g *GameController) Leaderboard(ctx *gin.Context) {
	game := strings.ToLower(strings.TrimSpace(ctx.Param("game")))
	if !validGame(game) {
		utils.Error(ctx, http.StatusBadRequest, 40180, "unknown game")
		return
	}

	limit := 10
	if raw := ctx.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}

	rctx, cancel := context.WithTimeout(context.Background(), gameScoreTimeout)
	defer cancel()

	entries, err := utils.GetRedis().ZRevRangeWithScores(rctx, gameLeaderboardKey+game, 0, int64(limit-1)).Result()
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50151, "failed to load leaderboard")
		return
	}

	var userIDs []uint
	for _, e := range entries {
		if id, err := strconv.Atoi(e.Member.(string)); err == nil {
			userIDs = append(userIDs, uint(id))
		}
	}

	userMap := make(map[uint]models.User)
	if len(userIDs) > 0 {
		var users []models.User
		if err := g.db.Find(&users, userIDs).Error; err == nil {
			for _, u := range users {
				userMap[u.ID] = u
			}
		}
	}

	items := make([]gin.H, 0, len(entries))
	for i, e := range entries {
		id, _ := strconv.Atoi(e.Member.(string))
		entry := gin.H{
			"rank":    i + 1,
			"user_id": id,
			"score":   int64(e.Score),
		}
		if u, ok := userMap[uint(id)]; ok {
			entry["username"] = u.Username
			entry["avatar_url"] = u.AvatarURL
		}
		items = append(items, entry)
	}

	utils.Success(ctx, gin.H{"game": game, "items": items})
}
