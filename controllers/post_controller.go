package controllers

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/petos/forum/middleware"
	"github.com/petos/forum/models"
	"github.com/petos/forum/services"
	"github.com/petos/forum/utils"
)

// PostController serves the post index, single posts and post editing.
type PostController struct {
	*Deps
}

func NewPostController(d *Deps) *PostController {
	return &PostController{Deps: d}
}

type postForm struct {
	Title   string
	Content string
	Tags    string
}

type pageLink struct {
	Number  int
	URL     string
	Current bool
}

// pageLinks keeps the filter query and swaps only the page number.
func pageLinks(base string, query url.Values, p models.Pagination) []pageLink {
	if p.PagesCount <= 1 {
		return nil
	}
	links := make([]pageLink, 0, p.PagesCount)
	for n := 1; n <= p.PagesCount; n++ {
		q := url.Values{}
		for k, v := range query {
			q[k] = v
		}
		q.Set("page", strconv.Itoa(n))
		links = append(links, pageLink{Number: n, URL: base + "?" + q.Encode(), Current: n == p.Current})
	}
	return links
}

func pageParam(ctx *gin.Context) int {
	page, err := strconv.Atoi(ctx.Query("page"))
	if err != nil {
		return 1
	}
	return page
}

// Index lists posts with the author, search and tag filters applied.
// Store failures degrade to an empty listing.
func (p *PostController) Index(ctx *gin.Context) {
	reqCtx := ctx.Request.Context()
	filters := services.Filters{
		AuthorID: optionalUint(ctx.Query("author")),
		Search:   strings.TrimSpace(ctx.Query("search")),
		TagID:    optionalUint(ctx.Query("tags")),
	}

	query := url.Values{}
	if filters.AuthorID != nil {
		query.Set("author", strconv.FormatUint(uint64(*filters.AuthorID), 10))
	}
	if filters.Search != "" {
		query.Set("search", filters.Search)
	}
	var tagID uint
	if filters.TagID != nil {
		tagID = *filters.TagID
		query.Set("tags", strconv.FormatUint(uint64(tagID), 10))
	}

	items, pagination, err := p.Listing.ListPosts(reqCtx, pageParam(ctx), filters)
	p.readFailed(ctx, "list posts", err)
	posts, err := p.Tags.WithTags(reqCtx, items)
	if err != nil {
		p.readFailed(ctx, "post tags", err)
		posts = make([]models.PostWithTags, 0, len(items))
		for _, item := range items {
			posts = append(posts, models.PostWithTags{PostWithAuthor: item})
		}
	}
	tags, err := p.Tags.All(reqCtx)
	p.readFailed(ctx, "tags", err)

	render(ctx, http.StatusOK, "index", gin.H{
		"Posts":     posts,
		"Tags":      tags,
		"TagID":     tagID,
		"Search":    filters.Search,
		"PageLinks": pageLinks("/posts", query, pagination),
	})
}

// Show assembles a post with its author, tags, attachments and comments.
func (p *PostController) Show(ctx *gin.Context) {
	id, ok := uintParam(ctx, "id")
	if !ok {
		notFound(ctx)
		return
	}
	reqCtx := ctx.Request.Context()
	post, err := p.Content.FindPostWithAuthor(reqCtx, id)
	if err != nil {
		p.readFailed(ctx, "post", err)
	}
	if post == nil {
		notFound(ctx)
		return
	}

	withTags, err := p.Tags.WithTags(reqCtx, []models.PostWithAuthor{*post})
	p.readFailed(ctx, "post tags", err)
	view := models.PostWithTags{PostWithAuthor: *post}
	if len(withTags) == 1 {
		view = withTags[0]
	}

	attachments, err := p.Attachments.PostAttachments(reqCtx, id)
	p.readFailed(ctx, "post attachments", err)

	comments, err := p.Content.CommentsByPost(reqCtx, id)
	p.readFailed(ctx, "comments", err)
	ids := make([]uint, 0, len(comments))
	for _, c := range comments {
		ids = append(ids, c.ID)
	}
	byComment, err := p.Attachments.CommentAttachments(reqCtx, ids...)
	p.readFailed(ctx, "comment attachments", err)
	threaded := make([]models.CommentWithAttachments, 0, len(comments))
	for _, c := range comments {
		threaded = append(threaded, models.CommentWithAttachments{CommentWithAuthor: c, Attachments: byComment[c.ID]})
	}

	render(ctx, http.StatusOK, "post", gin.H{
		"Post":            view,
		"Views":           p.Stats.PostViews(reqCtx, ctx.Request.URL.Path),
		"PostAttachments": attachments,
		"IsOwner":         middleware.CurrentUserID(ctx) == post.AuthorID,
		"Comments":        threaded,
	})
}

// NewPage renders the empty create form.
func (p *PostController) NewPage(ctx *gin.Context) {
	render(ctx, http.StatusOK, "post_new", gin.H{"Form": postForm{}})
}

// Create stores the post, then links tags and the optional attachment on a
// best-effort basis.
func (p *PostController) Create(ctx *gin.Context) {
	form := postForm{
		Title:   ctx.PostForm("title"),
		Content: ctx.PostForm("content"),
		Tags:    ctx.PostForm("tags"),
	}
	userID := middleware.CurrentUserID(ctx)
	reqCtx := ctx.Request.Context()

	post, err := p.Content.CreatePost(reqCtx, userID, form.Title, form.Content)
	if err != nil {
		if !p.mutationFailed(ctx, err, "/posts") {
			render(ctx, http.StatusBadRequest, "post_new", gin.H{"Form": form, "Error": validationMessage(err)})
		}
		return
	}

	if _, err := p.Tags.TagPost(reqCtx, post.ID, form.Tags); err != nil {
		p.logger().Warn("tagging post failed", zap.Uint("post_id", post.ID), zap.Error(err))
	}
	if name, err := p.saveUpload(ctx, "attachment"); err != nil {
		p.logger().Warn("post attachment upload failed", zap.Uint("post_id", post.ID), zap.Error(err))
	} else if name != "" {
		if _, err := p.Attachments.AttachToPost(reqCtx, name, post.ID); err != nil {
			p.logger().Warn("post attachment link failed", zap.Uint("post_id", post.ID), zap.Error(err))
		}
	}

	utils.SeeOther(ctx, fmt.Sprintf("/posts/%d", post.ID))
}

// ownPost loads a post for an edit or delete page. Non-owners are sent back
// to the post without further detail.
func (p *PostController) ownPost(ctx *gin.Context) (*models.Post, bool) {
	id, ok := uintParam(ctx, "id")
	if !ok {
		notFound(ctx)
		return nil, false
	}
	post, err := p.Content.FindPost(ctx.Request.Context(), id)
	if err != nil {
		p.readFailed(ctx, "post", err)
	}
	if post == nil {
		notFound(ctx)
		return nil, false
	}
	if post.AuthorID != middleware.CurrentUserID(ctx) {
		utils.SeeOther(ctx, fmt.Sprintf("/posts/%d", post.ID))
		return nil, false
	}
	return post, true
}

func (p *PostController) EditPage(ctx *gin.Context) {
	post, ok := p.ownPost(ctx)
	if !ok {
		return
	}
	render(ctx, http.StatusOK, "post_edit", gin.H{"Post": post})
}

func (p *PostController) Update(ctx *gin.Context) {
	id, ok := uintParam(ctx, "id")
	if !ok {
		notFound(ctx)
		return
	}
	title, content := ctx.PostForm("title"), ctx.PostForm("content")
	parent := fmt.Sprintf("/posts/%d", id)

	err := p.Content.UpdatePost(ctx.Request.Context(), middleware.CurrentUserID(ctx), id, title, content)
	if err != nil {
		if !p.mutationFailed(ctx, err, parent) {
			draft := models.Post{ID: id, Title: title, Content: content}
			render(ctx, http.StatusBadRequest, "post_edit", gin.H{"Post": draft, "Error": validationMessage(err)})
		}
		return
	}
	utils.SeeOther(ctx, parent)
}

func (p *PostController) DeleteConfirm(ctx *gin.Context) {
	post, ok := p.ownPost(ctx)
	if !ok {
		return
	}
	render(ctx, http.StatusOK, "post_delete", gin.H{"Post": post})
}

// Delete removes the post together with its comments.
func (p *PostController) Delete(ctx *gin.Context) {
	id, ok := uintParam(ctx, "id")
	if !ok {
		notFound(ctx)
		return
	}
	err := p.Content.DeletePost(ctx.Request.Context(), middleware.CurrentUserID(ctx), id)
	if p.mutationFailed(ctx, err, fmt.Sprintf("/posts/%d", id)) {
		return
	}
	utils.SeeOther(ctx, "/posts")
}

// Leaders shows every user ranked by number of posts.
func (p *PostController) Leaders(ctx *gin.Context) {
	leaders, err := p.Identity.KarmaLeaders(ctx.Request.Context())
	p.readFailed(ctx, "karma leaders", err)
	render(ctx, http.StatusOK, "leaders", gin.H{"Leaders": leaders})
}
