package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/petos/forum/middleware"
	"github.com/petos/forum/models"
	"github.com/petos/forum/services"
	"github.com/petos/forum/utils"
)

// UserController serves the personal cabinet and profile editing.
type UserController struct {
	*Deps
}

func NewUserController(d *Deps) *UserController {
	return &UserController{Deps: d}
}

// Cabinet shows the caller's profile summary.
func (u *UserController) Cabinet(ctx *gin.Context) {
	userID := middleware.CurrentUserID(ctx)
	info, err := u.Identity.UserInfo(ctx.Request.Context(), userID)
	if err != nil {
		u.readFailed(ctx, "user info", err)
	}
	if info == nil {
		ident := middleware.CurrentUser(ctx)
		info = &models.UserInfo{UserID: ident.ID, Name: ident.Name}
	}
	isAdmin, err := u.Identity.IsAdmin(ctx.Request.Context(), userID)
	u.readFailed(ctx, "role", err)

	render(ctx, http.StatusOK, "cabinet", gin.H{"Info": info, "IsAdmin": isAdmin})
}

// EditorPage renders the profile form prefilled with the stored values.
func (u *UserController) EditorPage(ctx *gin.Context) {
	user, err := u.Identity.FindByID(ctx.Request.Context(), middleware.CurrentUserID(ctx))
	u.readFailed(ctx, "profile", err)
	if user == nil {
		user = &models.User{Name: middleware.CurrentUser(ctx).Name}
	}
	render(ctx, http.StatusOK, "user_editor", gin.H{"Profile": user})
}

// UpdateProfile applies the non-empty fields. A new name ends the session so
// the cached identity cannot go stale.
func (u *UserController) UpdateProfile(ctx *gin.Context) {
	userID := middleware.CurrentUserID(ctx)
	reqCtx := ctx.Request.Context()

	patch := services.ProfilePatch{
		Name:     nonEmpty(ctx.PostForm("name")),
		Password: nonEmpty(ctx.PostForm("password")),
	}
	if moto, ok := ctx.GetPostForm("moto"); ok {
		patch.Moto = &moto
	}

	renamed, err := u.Identity.UpdateProfile(reqCtx, userID, patch)
	if errors.Is(err, services.ErrConflict) {
		u.profileError(ctx, userID, "This name is already taken")
		return
	}
	if err != nil {
		if !u.mutationFailed(ctx, err, "/user") {
			u.profileError(ctx, userID, validationMessage(err))
		}
		return
	}

	if name, err := u.saveUpload(ctx, "avatar"); err != nil {
		u.logger().Warn("avatar upload failed", zap.Uint("user_id", userID), zap.Error(err))
	} else if name != "" {
		if _, err := u.Attachments.AttachToUserIcon(reqCtx, name, userID, false); err != nil {
			u.logger().Warn("avatar link failed", zap.Uint("user_id", userID), zap.Error(err))
		}
	}

	if renamed {
		u.endSession(ctx)
		utils.SeeOther(ctx, "/user/login")
		return
	}
	u.refreshSession(ctx, userID)
	utils.SeeOther(ctx, "/user")
}

func (u *UserController) profileError(ctx *gin.Context, userID uint, msg string) {
	user, _ := u.Identity.FindByID(ctx.Request.Context(), userID)
	if user == nil {
		user = &models.User{Name: middleware.CurrentUser(ctx).Name}
	}
	render(ctx, http.StatusBadRequest, "user_editor", gin.H{"Profile": user, "Error": msg})
}

// DefaultIconsPage lists the system avatars a user may pick.
func (u *UserController) DefaultIconsPage(ctx *gin.Context) {
	icons, err := u.Attachments.DefaultIcons(ctx.Request.Context())
	u.readFailed(ctx, "default icons", err)
	render(ctx, http.StatusOK, "icons_default", gin.H{"Icons": icons})
}

// ChooseDefaultIcon applies the selected system avatar.
func (u *UserController) ChooseDefaultIcon(ctx *gin.Context) {
	userID := middleware.CurrentUserID(ctx)
	iconID := optionalUint(ctx.PostForm("icon_id"))
	if iconID == nil {
		utils.SeeOther(ctx, "/user/icons/default")
		return
	}
	err := u.Attachments.ChooseDefaultIcon(ctx.Request.Context(), userID, *iconID)
	if errors.Is(err, services.ErrNotFound) {
		utils.SeeOther(ctx, "/user/icons/default")
		return
	}
	if u.mutationFailed(ctx, err, "/user") {
		return
	}
	u.refreshSession(ctx, userID)
	utils.SeeOther(ctx, "/user")
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
