package controllers

import (
	"errors"
	"html/template"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/petos/forum/middleware"
	"github.com/petos/forum/models"
	"github.com/petos/forum/services"
	"github.com/petos/forum/utils"
)

const (
	msgInvalidCredentials = "Invalid username or password"
	msgTryAgain           = "The service is temporarily unavailable, please try again"
)

// AuthController handles login, registration and logout.
type AuthController struct {
	*Deps
}

func NewAuthController(d *Deps) *AuthController {
	return &AuthController{Deps: d}
}

// LoginPage renders the login form.
func (a *AuthController) LoginPage(ctx *gin.Context) {
	if middleware.CurrentUser(ctx) != nil {
		utils.SeeOther(ctx, "/posts")
		return
	}
	render(ctx, http.StatusOK, "login", nil)
}

// Login verifies credentials and opens a session. Unknown names and wrong
// passwords produce the same message.
func (a *AuthController) Login(ctx *gin.Context) {
	name := strings.TrimSpace(ctx.PostForm("name"))
	password := ctx.PostForm("password")

	user, err := a.Identity.FindByName(ctx.Request.Context(), name)
	if err != nil {
		a.logger().Error("login lookup failed", zap.Error(err))
		render(ctx, http.StatusServiceUnavailable, "login", gin.H{"Error": msgTryAgain, "Name": name})
		return
	}
	if user == nil || !a.Identity.VerifyPassword(user, password) {
		render(ctx, http.StatusUnauthorized, "login", gin.H{"Error": msgInvalidCredentials, "Name": name})
		return
	}

	ident, err := a.Identity.SessionIdentity(ctx.Request.Context(), user, a.Attachments)
	if err != nil {
		a.logger().Warn("icon lookup failed at login", zap.Uint("user_id", user.ID), zap.Error(err))
	}
	if err := a.startSession(ctx, ident); err != nil {
		a.logger().Error("session start failed", zap.Error(err))
		render(ctx, http.StatusServiceUnavailable, "login", gin.H{"Error": msgTryAgain, "Name": name})
		return
	}
	if err := a.Identity.UpdateLastVisit(ctx.Request.Context(), user.ID); err != nil {
		a.logger().Warn("update last visit failed", zap.Uint("user_id", user.ID), zap.Error(err))
	}
	utils.SeeOther(ctx, "/posts")
}

// RegistrationPage renders the registration form, with a captcha when enabled.
func (a *AuthController) RegistrationPage(ctx *gin.Context) {
	if middleware.CurrentUser(ctx) != nil {
		utils.SeeOther(ctx, "/posts")
		return
	}
	render(ctx, http.StatusOK, "registration", a.registrationData(gin.H{}))
}

func (a *AuthController) registrationData(data gin.H) gin.H {
	if !a.Config.RegisterCaptchaEnabled {
		return data
	}
	id, image, err := utils.GenerateCaptcha()
	if err != nil {
		a.logger().Warn("captcha generation failed", zap.Error(err))
		return data
	}
	data["CaptchaID"] = id
	// a data URI; html/template would otherwise refuse it in src
	data["CaptchaImage"] = template.URL(image)
	return data
}

// Register creates a User-role account and sends the caller to the login page.
func (a *AuthController) Register(ctx *gin.Context) {
	name := strings.TrimSpace(ctx.PostForm("name"))
	password := ctx.PostForm("password")
	reqCtx := ctx.Request.Context()
	ip := ctx.ClientIP()

	fail := func(status int, msg string) {
		render(ctx, status, "registration", a.registrationData(gin.H{"Error": msg, "Name": name}))
	}

	if !a.Guard.CooldownTry(reqCtx, ip) {
		fail(http.StatusTooManyRequests, "Too many attempts, please wait a few seconds")
		return
	}
	if !a.Guard.DailyLimitCheck(reqCtx, ip) {
		fail(http.StatusTooManyRequests, "Registration limit reached for today")
		return
	}
	if a.Config.RegisterCaptchaEnabled && !utils.VerifyCaptcha(ctx.PostForm("captcha_id"), ctx.PostForm("captcha")) {
		fail(http.StatusBadRequest, "Wrong captcha code")
		return
	}

	_, err := a.Identity.Create(reqCtx, name, password, models.RoleUser)
	switch {
	case err == nil:
	case errors.Is(err, services.ErrValidation):
		fail(http.StatusBadRequest, validationMessage(err))
		return
	case errors.Is(err, services.ErrConflict):
		fail(http.StatusConflict, "This name is already taken")
		return
	default:
		a.logger().Error("registration failed", zap.Error(err))
		fail(http.StatusServiceUnavailable, msgTryAgain)
		return
	}

	a.Guard.DailyIncrement(reqCtx, ip)
	a.logger().Info("user registered", zap.String("name", name))
	utils.SeeOther(ctx, "/user/login")
}

// Logout clears the session.
func (a *AuthController) Logout(ctx *gin.Context) {
	a.endSession(ctx)
	utils.SeeOther(ctx, "/posts")
}
