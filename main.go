package main

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/petos/forum/config"
	"github.com/petos/forum/controllers"
	"github.com/petos/forum/models"
	"github.com/petos/forum/routes"
	"github.com/petos/forum/services"
	"github.com/petos/forum/templates"
	"github.com/petos/forum/utils"
)

func main() {
	cfg := config.Load()

	// Initialize logger early
	if err := utils.InitLogger(cfg); err != nil {
		panic(err)
	}
	defer utils.Logger.Sync() //nolint:errcheck

	db := config.InitDatabase(models.All()...)
	ctx := context.Background()

	storage, err := utils.NewStorage(ctx, cfg)
	if err != nil {
		utils.Sugar.Fatalf("storage init failed: %v", err)
	}

	redisClient := utils.GetRedis()
	sessions := utils.NewSessionStore(redisClient)

	attachments := services.NewAttachmentService(db)
	deps := &controllers.Deps{
		Config:      cfg,
		Identity:    services.NewIdentityService(db),
		Content:     services.NewContentService(db, storage, utils.Logger),
		Listing:     services.NewListingService(db),
		Tags:        services.NewTagService(db),
		Attachments: attachments,
		Stats:       services.NewStatsService(db),
		Sessions:    sessions,
		Storage:     storage,
		Guard:       utils.NewRegistrationGuard(redisClient, cfg.RegisterAttemptCooldownSec, cfg.RegisterMaxPerIPPerDay),
		Log:         utils.Logger,
	}

	promoteAdmins(ctx, deps.Identity, cfg.AdminUsernames)
	seedDefaultIcons(ctx, storage, attachments)

	renderer, err := templates.New(cfg.UploadURLPrefix)
	if err != nil {
		utils.Sugar.Fatalf("templates: %v", err)
	}
	r := routes.SetupRouter(deps, renderer)

	utils.Sugar.Infof("Starting server on port %s (graceful)", cfg.AppPort)
	if err := utils.GraceServer(":"+cfg.AppPort, r); err != nil {
		utils.Sugar.Fatalf("server stopped with error: %v", err)
	}
}

func promoteAdmins(ctx context.Context, identity *services.IdentityService, names []string) {
	for _, name := range names {
		err := identity.SetRole(ctx, name, models.RoleAdmin)
		switch {
		case err == nil:
			utils.Logger.Info("admin role granted", zap.String("name", name))
		case errors.Is(err, services.ErrNotFound):
			utils.Logger.Warn("configured admin does not exist yet", zap.String("name", name))
		default:
			utils.Logger.Error("grant admin role failed", zap.String("name", name), zap.Error(err))
		}
	}
}

func seedDefaultIcons(ctx context.Context, storage utils.Storage, attachments *services.AttachmentService) {
	names, err := storage.List(ctx, "default_ico/")
	if err != nil {
		utils.Logger.Warn("list default icons failed", zap.Error(err))
		return
	}
	added, err := attachments.SeedDefaultIcons(ctx, names)
	if err != nil {
		utils.Logger.Warn("seed default icons failed", zap.Error(err))
		return
	}
	if added > 0 {
		utils.Logger.Info("default icons seeded", zap.Int("count", added))
	}
}
