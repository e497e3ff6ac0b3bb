package routes

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/emberlabs/emberhub/config"
	"github.com/emberlabs/emberhub/controllers"
	"github.com/emberlabs/emberhub/middleware"
	"github.com/emberlabs/emberhub/realtime"
	"github.com/emberlabs/emberhub/services"
	"github.com/emberlabs/emberhub/utils"
)

// SetupRouter wires routes, middlewares, services and controllers.
func SetupRouter(db *gorm.DB) *gin.Engine {
	cfg := config.Get()
	switch strings.ToLower(cfg.GinMode) {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	// Replace default console logger with file-based zap logger
	gl, err := utils.NewRollingFileLogger(cfg.GinPath, cfg.LogLevel, cfg.LogMaxSizeMB, cfg.LogMaxBackups, cfg.LogMaxAgeDays, cfg.LogCompress)
	if err == nil {
		r.Use(utils.Ginzap(gl, time.RFC3339, true))
		r.Use(utils.RecoveryWithZap(gl, false))
	} else {
		r.Use(gin.Recovery())
	}

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*" {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}
	r.Use(cors.New(corsCfg))

	// Record PV after each request
	r.Use(middleware.PageViewRecorder(db))

	r.GET("/health", func(ctx *gin.Context) {
		utils.Success(ctx, gin.H{"status": "ok"})
	})

	hub := realtime.NewHub(utils.Sugar)
	pushSender := services.NewPushSender(db, utils.Sugar)
	notifyService := services.NewNotifyService(db, hub, pushSender, utils.Sugar)
	rewardService := services.NewRewardService(db, cfg.RewardResetHourUTC, cfg.RewardPointsTable,
		services.WithRewardLogger(utils.Sugar))

	authController := controllers.NewAuthController(db, notifyService)
	topicController := controllers.NewTopicController(db)
	postController := controllers.NewPostController(db, notifyService)
	articleController := controllers.NewArticleController(db)
	rewardController := controllers.NewRewardController(rewardService)
	burnController := controllers.NewBurnController(db)
	pushController := controllers.NewPushController(pushSender)
	notificationController := controllers.NewNotificationController(notifyService, hub)
	contactController := controllers.NewContactController(db)
	gameController := controllers.NewGameController(db)
	statsController := controllers.NewStatsController(db, rewardService)

	api := r.Group("/api/v1")

	authGroup := api.Group("/auth")
	authGroup.Use(middleware.RateLimitMiddleware())
	authGroup.POST("/register", authController.Register)
	authGroup.POST("/login", authController.Login)
	authGroup.POST("/send-email-code", authController.SendEmailCode)
	authGroup.GET("/oauth/:provider/login", authController.OAuthRedirect)
	authGroup.GET("/oauth/:provider/callback", authController.OAuthCallback)
	authGroup.POST("/logout", middleware.AuthRequired(), authController.Logout)
	authGroup.GET("/me", middleware.AuthRequired(), authController.Me)
	authGroup.PATCH("/profile", middleware.AuthRequired(), authController.UpdateProfile)

	// Public reads
	api.GET("/topics", topicController.ListTopics)
	api.GET("/topics/:id", topicController.GetTopic)
	api.GET("/posts", postController.ListPosts)
	api.GET("/posts/:id", postController.GetPost)
	api.GET("/articles", articleController.ListArticles)
	api.GET("/articles/:id", articleController.GetArticle)
	api.GET("/stats", statsController.GetStats)
	api.GET("/posts/:id/stats", statsController.GetPostStats)
	api.GET("/users/:id", authController.GetUserPublic)
	api.GET("/users/:id/posts", postController.ListUserPosts)
	api.GET("/users/:id/followers", authController.ListFollowers)
	api.GET("/users/:id/following", authController.ListFollowing)
	api.GET("/user/by-username/:username", authController.GetUserPublicByUsername)
	api.GET("/burn/archives", burnController.ListArchives)
	api.GET("/burn/:currency/records", burnController.ListRecords)
	api.GET("/games/:game/leaderboard", gameController.Leaderboard)
	api.POST("/contact", middleware.RateLimitMiddleware(), contactController.Submit)

	// Websocket does its own token auth: browsers cannot set headers here.
	api.GET("/ws", notificationController.Websocket)

	protected := api.Group("")
	protected.Use(middleware.AuthRequired(), middleware.RateLimitMiddleware())

	protected.GET("/users", authController.ListUsers)
	protected.POST("/users/:id/follow", authController.ToggleFollow)

	protected.POST("/topics", topicController.CreateTopic)
	protected.PUT("/topics/:id", topicController.UpdateTopic)
	protected.DELETE("/topics/:id", topicController.DeleteTopic)

	protected.POST("/posts", postController.CreatePost)
	protected.PUT("/posts/:id", postController.UpdatePost)
	protected.DELETE("/posts/:id", postController.DeletePost)
	protected.POST("/posts/:id/comments", postController.CreateComment)
	protected.PUT("/comments/:commentId", postController.UpdateComment)
	protected.DELETE("/comments/:commentId", postController.DeleteComment)
	protected.GET("/users/me/posts", postController.ListMyPosts)

	protected.POST("/articles", articleController.CreateArticle)
	protected.PUT("/articles/:id", articleController.UpdateArticle)
	protected.DELETE("/articles/:id", articleController.DeleteArticle)
	protected.POST("/articles/:id/comments", articleController.CreateArticleComment)

	protected.GET("/rewards/status", rewardController.Status)
	protected.POST("/rewards/claim", rewardController.Claim)
	protected.GET("/rewards/history", rewardController.History)
	protected.DELETE("/rewards/claims", rewardController.Clear)

	protected.POST("/burn/records", burnController.CreateRecord)
	protected.PUT("/burn/records/:id", burnController.UpdateRecord)
	protected.DELETE("/burn/records/:id", burnController.DeleteRecord)

	protected.POST("/push/subscribe", pushController.Subscribe)
	protected.POST("/push/unsubscribe", pushController.Unsubscribe)
	protected.GET("/push/subscriptions", pushController.ListSubscriptions)

	protected.GET("/notifications", notificationController.List)
	protected.PATCH("/notifications/:id/read", notificationController.MarkRead)
	protected.POST("/notifications/read-all", notificationController.MarkAllRead)

	protected.POST("/games/:game/scores", gameController.SubmitScore)

	protected.GET("/contact/messages", contactController.List)

	r.NoRoute(func(ctx *gin.Context) {
		if strings.HasPrefix(ctx.Request.URL.Path, "/api/") {
			utils.Error(ctx, http.StatusNotFound, 40400, "api route not found")
			return
		}
		ctx.JSON(http.StatusNotFound, gin.H{"message": "not found"})
	})

	return r
}
