package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/petos/forum/services"
	"github.com/petos/forum/utils"
)

// PageViewRecorder records successful page views per day and path.
func PageViewRecorder(stats *services.StatsService, skipPrefixes ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Request.Method != http.MethodGet {
			return
		}
		status := c.Writer.Status()
		if status < 200 || status >= 300 {
			return
		}
		path := c.Request.URL.Path
		if path == "/health" || path == "/metrics" || strings.HasPrefix(path, "/static/") {
			return
		}
		for _, p := range skipPrefixes {
			if p != "" && strings.HasPrefix(path, p) {
				return
			}
		}
		if err := stats.RecordPageView(c.Request.Context(), path); err != nil {
			utils.L().Debug("page view not recorded", zap.String("path", path), zap.Error(err))
		}
	}
}
