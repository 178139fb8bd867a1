package controllers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/petos/forum/services"
	"github.com/petos/forum/utils"
)

// mutationFailed maps a service error on a write route. Unauthorized goes to login,
// Forbidden to the safe parent page without saying why. It reports whether the
// error was handled; validation errors are left to the caller.
func (d *Deps) mutationFailed(ctx *gin.Context, err error, safeParent string) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, services.ErrUnauthorized):
		utils.SeeOther(ctx, "/user/login")
	case errors.Is(err, services.ErrForbidden):
		utils.SeeOther(ctx, safeParent)
	case errors.Is(err, services.ErrNotFound):
		notFound(ctx)
	case errors.Is(err, services.ErrValidation):
		return false
	default:
		d.logger().Error("mutation failed", zap.String("path", ctx.Request.URL.Path), zap.Error(err))
		render(ctx, http.StatusServiceUnavailable, "error", gin.H{"Error": "The forum is temporarily unavailable. Please try again."})
	}
	return true
}

// readFailed logs a degraded read; the page is still rendered with what was loaded.
func (d *Deps) readFailed(ctx *gin.Context, what string, err error) {
	if err != nil {
		d.logger().Warn("read degraded", zap.String("what", what), zap.String("path", ctx.Request.URL.Path), zap.Error(err))
	}
}

// validationMessage strips the kind prefix for display.
func validationMessage(err error) string {
	msg := strings.TrimPrefix(err.Error(), services.ErrValidation.Error()+": ")
	if msg == "" {
		return "Invalid input"
	}
	return strings.ToUpper(msg[:1]) + msg[1:]
}
