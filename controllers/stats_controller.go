package controllers

import (
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"github.com/petos/forum/utils"
)

// StatsController serves the admin panel and the liveness probe.
type StatsController struct {
	*Deps
}

func NewStatsController(d *Deps) *StatsController {
	return &StatsController{Deps: d}
}

// Admin shows forum counters and the newest registrations.
func (s *StatsController) Admin(ctx *gin.Context) {
	reqCtx := ctx.Request.Context()
	users, pagination, err := s.Stats.NewestUsers(reqCtx, pageParam(ctx))
	s.readFailed(ctx, "newest users", err)

	render(ctx, http.StatusOK, "admin", gin.H{
		"Stats":     s.Stats.Overview(reqCtx),
		"Users":     users,
		"PageLinks": pageLinks("/admin", url.Values{}, pagination),
	})
}

// Health reports liveness along with the headline counters.
func (s *StatsController) Health(ctx *gin.Context) {
	st := s.Stats.Overview(ctx.Request.Context())
	utils.Success(ctx, gin.H{
		"status":        "ok",
		"user_count":    st.UserCount,
		"post_count":    st.PostCount,
		"comment_count": st.CommentCount,
	})
}

// About renders the static about page.
func About(ctx *gin.Context) {
	render(ctx, http.StatusOK, "about", nil)
}

// NoRoute renders the generic not-found page for unknown paths.
func NoRoute(ctx *gin.Context) {
	notFound(ctx)
}
