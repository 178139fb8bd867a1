package controllers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/petos/forum/config"
	"github.com/petos/forum/middleware"
	"github.com/petos/forum/models"
	"github.com/petos/forum/services"
	"github.com/petos/forum/utils"
)

// Deps bundles the services and collaborators shared by every controller.
type Deps struct {
	Config      config.AppConfig
	Identity    *services.IdentityService
	Content     *services.ContentService
	Listing     *services.ListingService
	Tags        *services.TagService
	Attachments *services.AttachmentService
	Stats       *services.StatsService
	Sessions    utils.SessionStore
	Storage     utils.Storage
	Guard       *utils.RegistrationGuard
	Log         *zap.Logger
}

func (d *Deps) logger() *zap.Logger {
	if d.Log == nil {
		return utils.L()
	}
	return d.Log
}

// render executes a page with the caller's identity added.
func render(ctx *gin.Context, status int, page string, data gin.H) {
	if data == nil {
		data = gin.H{}
	}
	if _, ok := data["User"]; !ok {
		data["User"] = middleware.CurrentUser(ctx)
	}
	ctx.HTML(status, page, data)
}

func notFound(ctx *gin.Context) {
	render(ctx, http.StatusNotFound, "not_found", nil)
}

// uintParam parses a positive id path parameter.
func uintParam(ctx *gin.Context, name string) (uint, bool) {
	n, err := strconv.ParseUint(ctx.Param(name), 10, 64)
	if err != nil || n == 0 {
		return 0, false
	}
	return uint(n), true
}

func optionalUint(raw string) *uint {
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || n == 0 {
		return nil
	}
	v := uint(n)
	return &v
}

// startSession stores the identity under a fresh session id and sets the signed cookie.
func (d *Deps) startSession(ctx *gin.Context, ident models.SessionIdentity) error {
	sid := utils.NewSessionID()
	if err := d.Sessions.Put(ctx.Request.Context(), sid, ident, d.Config.SessionTTL); err != nil {
		return err
	}
	token, err := utils.IssueSessionToken(d.Config.SessionSecret, sid, d.Config.SessionTTL)
	if err != nil {
		return err
	}
	ctx.SetSameSite(http.SameSiteLaxMode)
	ctx.SetCookie(utils.SessionCookie, token, int(d.Config.SessionTTL/time.Second), "/", "", false, true)
	return nil
}

// refreshSession rewrites the identity of the current session, e.g. after an icon change.
func (d *Deps) refreshSession(ctx *gin.Context, userID uint) {
	sid := middleware.SessionID(ctx)
	if sid == "" {
		return
	}
	user, err := d.Identity.FindByID(ctx.Request.Context(), userID)
	if err != nil || user == nil {
		return
	}
	ident, err := d.Identity.SessionIdentity(ctx.Request.Context(), user, d.Attachments)
	if err != nil {
		d.logger().Warn("resolve session identity failed", zap.Uint("user_id", userID), zap.Error(err))
	}
	if err := d.Sessions.Put(ctx.Request.Context(), sid, ident, d.Config.SessionTTL); err != nil {
		d.logger().Warn("refresh session failed", zap.Error(err))
	}
}

// endSession drops the stored session and clears the cookie.
func (d *Deps) endSession(ctx *gin.Context) {
	if sid := middleware.SessionID(ctx); sid != "" {
		if err := d.Sessions.Invalidate(ctx.Request.Context(), sid); err != nil {
			d.logger().Warn("invalidate session failed", zap.Error(err))
		}
	}
	ctx.SetSameSite(http.SameSiteLaxMode)
	ctx.SetCookie(utils.SessionCookie, "", -1, "/", "", false, true)
}

// saveUpload stores an optional multipart file; a missing field yields "".
func (d *Deps) saveUpload(ctx *gin.Context, field string) (string, error) {
	fh, err := ctx.FormFile(field)
	if err != nil {
		return "", nil
	}
	if fh.Size == 0 && fh.Filename == "" {
		return "", nil
	}
	return utils.StoreUpload(ctx.Request.Context(), d.Storage, fh, int64(d.Config.UploadMaxMB)<<20)
}
