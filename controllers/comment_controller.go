package controllers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/petos/forum/middleware"
	"github.com/petos/forum/models"
	"github.com/petos/forum/utils"
)

// CommentController handles comment creation, editing and deletion.
type CommentController struct {
	*Deps
}

func NewCommentController(d *Deps) *CommentController {
	return &CommentController{Deps: d}
}

func postPath(id uint) string {
	return fmt.Sprintf("/posts/%d", id)
}

// Create adds a comment to the post; the attachment is best-effort.
func (c *CommentController) Create(ctx *gin.Context) {
	postID, ok := uintParam(ctx, "id")
	if !ok {
		notFound(ctx)
		return
	}
	reqCtx := ctx.Request.Context()
	comment, err := c.Content.CreateComment(reqCtx, middleware.CurrentUserID(ctx), postID, ctx.PostForm("content"))
	if err != nil {
		// an empty comment just returns to the thread
		if !c.mutationFailed(ctx, err, postPath(postID)) {
			utils.SeeOther(ctx, postPath(postID))
		}
		return
	}

	if name, err := c.saveUpload(ctx, "attachment"); err != nil {
		c.logger().Warn("comment attachment upload failed", zap.Uint("comment_id", comment.ID), zap.Error(err))
	} else if name != "" {
		if _, err := c.Attachments.AttachToComment(reqCtx, name, comment.ID); err != nil {
			c.logger().Warn("comment attachment link failed", zap.Uint("comment_id", comment.ID), zap.Error(err))
		}
	}
	utils.SeeOther(ctx, fmt.Sprintf("/posts/%d#comment-%d", postID, comment.ID))
}

// ownComment loads the comment addressed by :id/:cid for its author. A comment
// that belongs to another post reads as not found.
func (c *CommentController) ownComment(ctx *gin.Context) (*models.Comment, bool) {
	postID, ok := uintParam(ctx, "id")
	commentID, ok2 := uintParam(ctx, "cid")
	if !ok || !ok2 {
		notFound(ctx)
		return nil, false
	}
	comment, err := c.Content.FindComment(ctx.Request.Context(), commentID)
	if err != nil {
		c.readFailed(ctx, "comment", err)
	}
	if comment == nil || comment.PostID != postID {
		notFound(ctx)
		return nil, false
	}
	if comment.AuthorID != middleware.CurrentUserID(ctx) {
		utils.SeeOther(ctx, postPath(postID))
		return nil, false
	}
	return comment, true
}

func (c *CommentController) EditPage(ctx *gin.Context) {
	comment, ok := c.ownComment(ctx)
	if !ok {
		return
	}
	render(ctx, http.StatusOK, "comment_edit", gin.H{"PostID": comment.PostID, "Comment": comment})
}

func (c *CommentController) Update(ctx *gin.Context) {
	comment, ok := c.ownComment(ctx)
	if !ok {
		return
	}
	postID, commentID := comment.PostID, comment.ID
	content := ctx.PostForm("content")
	err := c.Content.UpdateComment(ctx.Request.Context(), middleware.CurrentUserID(ctx), commentID, content)
	if err != nil {
		if !c.mutationFailed(ctx, err, postPath(postID)) {
			draft := models.Comment{ID: commentID, PostID: postID, Content: content}
			render(ctx, http.StatusBadRequest, "comment_edit", gin.H{"PostID": postID, "Comment": draft, "Error": validationMessage(err)})
		}
		return
	}
	utils.SeeOther(ctx, fmt.Sprintf("/posts/%d#comment-%d", postID, commentID))
}

func (c *CommentController) DeleteConfirm(ctx *gin.Context) {
	comment, ok := c.ownComment(ctx)
	if !ok {
		return
	}
	render(ctx, http.StatusOK, "comment_delete", gin.H{"PostID": comment.PostID, "Comment": comment})
}

func (c *CommentController) Delete(ctx *gin.Context) {
	comment, ok := c.ownComment(ctx)
	if !ok {
		return
	}
	postID := comment.PostID
	err := c.Content.DeleteComment(ctx.Request.Context(), middleware.CurrentUserID(ctx), comment.ID)
	if c.mutationFailed(ctx, err, postPath(postID)) {
		return
	}
	utils.SeeOther(ctx, postPath(postID))
}
