package routes

import (
	"mime"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/render"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/petos/forum/controllers"
	"github.com/petos/forum/middleware"
	"github.com/petos/forum/utils"
)

// SetupRouter wires routes, middlewares, and controllers.
func SetupRouter(deps *controllers.Deps, html render.HTMLRender) *gin.Engine {
	cfg := deps.Config
	switch strings.ToLower(cfg.GinMode) {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.HTMLRender = html

	// Access log goes to its own rolling file; fall back to the app logger.
	gl, err := utils.NewRollingFileLogger(cfg.GinPath, cfg.LogLevel, cfg.LogMaxSizeMB, cfg.LogMaxBackups, cfg.LogMaxAgeDays, cfg.LogCompress)
	if err != nil {
		gl = utils.L()
	}
	r.Use(utils.Ginzap(gl, time.RFC3339, true))
	r.Use(utils.RecoveryWithZap(gl, true))
	r.Use(middleware.Metrics())

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.AllowedOrigins) == 0 || (len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*") {
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}
	r.Use(cors.New(corsCfg))
	excluded := []string{"/metrics"}
	if cfg.UploadURLPrefix != "" {
		excluded = append(excluded, cfg.UploadURLPrefix)
	}
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths(excluded)))

	r.Use(middleware.SessionLoader(deps.Sessions, cfg.SessionSecret))
	r.Use(middleware.PageViewRecorder(deps.Stats, cfg.UploadURLPrefix))

	r.Static("/static", "./static")
	serveUploads(r, deps)

	stats := controllers.NewStatsController(deps)
	r.GET("/health", stats.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/about", controllers.About)

	auth := controllers.NewAuthController(deps)
	users := controllers.NewUserController(deps)
	posts := controllers.NewPostController(deps)
	comments := controllers.NewCommentController(deps)

	r.GET("/", posts.Index)
	r.GET("/posts", posts.Index)
	r.GET("/posts/leaders", posts.Leaders)
	r.GET("/posts/:id", posts.Show)

	authed := r.Group("", middleware.AuthRequired())
	authed.GET("/posts/builders", posts.NewPage)
	authed.POST("/posts", posts.Create)
	authed.GET("/posts/delete/:id", posts.DeleteConfirm)
	authed.POST("/posts/delete/:id/initial", posts.Delete)
	authed.POST("/posts/:id/comments", comments.Create)
	authed.GET("/posts/delete/:id/comments/:cid", comments.DeleteConfirm)
	authed.POST("/posts/delete/:id/comments/:cid/initial", comments.Delete)

	limiter := middleware.NewIPRateLimiter(cfg.RateLimitPerMinute)
	userGroup := r.Group("/user", middleware.RateLimitMiddleware(limiter))
	userGroup.GET("/login", auth.LoginPage)
	userGroup.POST("/login", auth.Login)
	userGroup.GET("/registration", auth.RegistrationPage)
	userGroup.POST("/registration", auth.Register)

	member := userGroup.Group("", middleware.AuthRequired())
	member.GET("", users.Cabinet)
	member.GET("/logout", auth.Logout)
	member.GET("/UserEditor", users.EditorPage)
	member.POST("/UserEditor", users.UpdateProfile)
	member.GET("/icons/default", users.DefaultIconsPage)
	member.POST("/icons/default", users.ChooseDefaultIcon)
	member.GET("/posts/PostEditor/:id", posts.EditPage)
	member.POST("/posts/PostEditor/:id", posts.Update)
	member.GET("/posts/CommentEditor/:id/:cid", comments.EditPage)
	member.POST("/posts/CommentEditor/:id/:cid", comments.Update)

	r.GET("/admin", middleware.AdminRequired(deps.Identity), stats.Admin)

	r.NoRoute(controllers.NoRoute)
	return r
}

// serveUploads exposes stored files under the upload prefix. Local storage is
// served from disk; other backends are streamed through the Storage interface.
func serveUploads(r *gin.Engine, deps *controllers.Deps) {
	prefix := deps.Config.UploadURLPrefix
	if prefix == "" || deps.Storage == nil {
		return
	}
	if local, ok := deps.Storage.(*utils.LocalStorage); ok {
		r.Static(prefix, local.Dir())
		return
	}
	r.GET(prefix+"/*name", func(ctx *gin.Context) {
		name := strings.TrimPrefix(ctx.Param("name"), "/")
		rc, size, err := deps.Storage.Open(ctx.Request.Context(), name)
		if err != nil {
			utils.L().Debug("upload not served", zap.String("name", name), zap.Error(err))
			ctx.Status(http.StatusNotFound)
			return
		}
		defer rc.Close()
		contentType := mime.TypeByExtension(path.Ext(name))
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		ctx.DataFromReader(http.StatusOK, size, contentType, rc, nil)
	})
}
