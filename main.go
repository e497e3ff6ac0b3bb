package main

import (
	"github.com/emberlabs/emberhub/config"
	"github.com/emberlabs/emberhub/models"
	"github.com/emberlabs/emberhub/routes"
	"github.com/emberlabs/emberhub/utils"
)

func main() {
	cfg := config.Load()

	// Initialize logger early
	if err := utils.InitLogger(cfg); err != nil {
		panic(err)
	}

	db := config.InitDatabase(
		&models.User{},
		&models.Follow{},
		&models.Topic{},
		&models.Post{},
		&models.Comment{},
		&models.Article{},
		&models.Notification{},
		&models.RewardState{},
		&models.RewardClaim{},
		&models.BurnArchive{},
		&models.BurnRecord{},
		&models.PushSubscription{},
		&models.ContactMessage{},
		&models.PageView{},
	)

	r := routes.SetupRouter(db)

	utils.Sugar.Infof("Starting server on port %s (graceful)", cfg.AppPort)
	if err := utils.GraceServer(":"+cfg.AppPort, r); err != nil {
		utils.Sugar.Fatalf("server stopped with error: %v", err)
	}
}
