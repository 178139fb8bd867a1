package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/petos/forum/models"
	"github.com/petos/forum/services"
	"github.com/petos/forum/utils"
)

const (
	// ContextUserKey stores the *models.SessionIdentity of the caller.
	ContextUserKey = "session_user"
	// ContextSessionIDKey stores the id of the caller's session.
	ContextSessionIDKey = "session_id"
)

// SessionLoader resolves the session cookie into an identity. Missing, forged or
// expired sessions leave the request anonymous.
func SessionLoader(store utils.SessionStore, secret string) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		token, err := ctx.Cookie(utils.SessionCookie)
		if err != nil || token == "" {
			ctx.Next()
			return
		}
		sid, err := utils.ParseSessionToken(secret, token)
		if err != nil {
			ctx.Next()
			return
		}
		ident, err := store.Get(ctx.Request.Context(), sid)
		if err != nil {
			utils.L().Warn("session lookup failed", zap.Error(err))
		}
		if ident != nil {
			ctx.Set(ContextUserKey, ident)
			ctx.Set(ContextSessionIDKey, sid)
		}
		ctx.Next()
	}
}

// CurrentUser returns the caller's session identity, or nil for anonymous requests.
func CurrentUser(ctx *gin.Context) *models.SessionIdentity {
	v, ok := ctx.Get(ContextUserKey)
	if !ok {
		return nil
	}
	ident, _ := v.(*models.SessionIdentity)
	return ident
}

// CurrentUserID is 0 for anonymous requests.
func CurrentUserID(ctx *gin.Context) uint {
	if u := CurrentUser(ctx); u != nil {
		return u.ID
	}
	return 0
}

// SessionID returns the id of the caller's session if any.
func SessionID(ctx *gin.Context) string {
	return ctx.GetString(ContextSessionIDKey)
}

// AuthRequired redirects anonymous callers to the login page.
func AuthRequired() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if CurrentUser(ctx) == nil {
			ctx.Redirect(http.StatusSeeOther, "/user/login")
			ctx.Abort()
			return
		}
		ctx.Next()
	}
}

// AdminRequired checks the persisted role on every request.
func AdminRequired(identity *services.IdentityService) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		user := CurrentUser(ctx)
		if user == nil {
			ctx.Redirect(http.StatusSeeOther, "/user/login")
			ctx.Abort()
			return
		}
		isAdmin, err := identity.IsAdmin(ctx.Request.Context(), user.ID)
		if err != nil {
			utils.L().Error("admin role check failed", zap.Uint("user_id", user.ID), zap.Error(err))
		}
		if !isAdmin {
			ctx.HTML(http.StatusForbidden, "forbidden", gin.H{"User": user})
			ctx.Abort()
			return
		}
		ctx.Next()
	}
}
