package middleware

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/petos/forum/models"
	"github.com/petos/forum/services"
	"github.com/petos/forum/utils"
)

const secret = "middleware-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

func sessionCookie(t *testing.T, store utils.SessionStore, ident models.SessionIdentity) *http.Cookie {
	t.Helper()
	sid := utils.NewSessionID()
	require.NoError(t, store.Put(context.Background(), sid, ident, time.Hour))
	token, err := utils.IssueSessionToken(secret, sid, time.Hour)
	require.NoError(t, err)
	return &http.Cookie{Name: utils.SessionCookie, Value: token}
}

func TestSessionLoaderAndAuthRequired(t *testing.T) {
	store := utils.NewMemorySessionStore()
	r := gin.New()
	r.Use(SessionLoader(store, secret))
	r.GET("/open", func(c *gin.Context) {
		c.String(http.StatusOK, "id=%d", CurrentUserID(c))
	})
	r.GET("/closed", AuthRequired(), func(c *gin.Context) {
		c.String(http.StatusOK, "hello %s sid=%t", CurrentUser(c).Name, SessionID(c) != "")
	})

	cases := []struct {
		name   string
		cookie *http.Cookie
		status int
		body   string
	}{
		{"anonymous", nil, http.StatusSeeOther, ""},
		{"forged", &http.Cookie{Name: utils.SessionCookie, Value: "not-a-token"}, http.StatusSeeOther, ""},
		{"valid", sessionCookie(t, store, models.SessionIdentity{ID: 3, Name: "alice"}), http.StatusOK, "hello alice sid=true"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/closed", nil)
			if tc.cookie != nil {
				req.AddCookie(tc.cookie)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tc.status, w.Code)
			if tc.status == http.StatusSeeOther {
				assert.Equal(t, "/user/login", w.Header().Get("Location"))
			} else {
				assert.Equal(t, tc.body, w.Body.String())
			}
		})
	}

	// an invalidated session is anonymous again
	cookie := sessionCookie(t, store, models.SessionIdentity{ID: 9, Name: "bob"})
	sid, err := utils.ParseSessionToken(secret, cookie.Value)
	require.NoError(t, err)
	require.NoError(t, store.Invalidate(context.Background(), sid))
	req := httptest.NewRequest(http.MethodGet, "/open", nil)
	req.AddCookie(cookie)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "id=0", w.Body.String())
}

func TestRateLimitCountsPostsOnly(t *testing.T) {
	r := gin.New()
	r.Use(RateLimitMiddleware(NewIPRateLimiter(2)))
	r.GET("/form", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.POST("/form", func(c *gin.Context) { c.Status(http.StatusOK) })

	do := func(method string) int {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(method, "/form", nil))
		return w.Code
	}
	// burst of one for two per minute
	assert.Equal(t, http.StatusOK, do(http.MethodPost))
	assert.Equal(t, http.StatusTooManyRequests, do(http.MethodPost))
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, do(http.MethodGet))
	}
}

func TestPageViewRecorder(t *testing.T) {
	name := strings.ReplaceAll(t.Name(), "/", "_")
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&models.PageView{}))

	stats := services.NewStatsService(db)
	r := gin.New()
	r.Use(PageViewRecorder(stats, "/public/images"))
	ok := func(c *gin.Context) { c.Status(http.StatusOK) }
	r.GET("/posts/:id", ok)
	r.POST("/posts/:id", ok)
	r.GET("/health", ok)
	r.GET("/public/images/*name", ok)

	for _, req := range []struct{ method, path string }{
		{http.MethodGet, "/posts/1"},
		{http.MethodGet, "/posts/1"},
		{http.MethodPost, "/posts/1"},
		{http.MethodGet, "/posts/2"},
		{http.MethodGet, "/health"},
		{http.MethodGet, "/public/images/a.png"},
		{http.MethodGet, "/missing"},
	} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(req.method, req.path, nil))
	}

	ctx := context.Background()
	assert.Equal(t, int64(2), stats.PostViews(ctx, "/posts/1"))
	assert.Equal(t, int64(1), stats.PostViews(ctx, "/posts/2"))
	assert.Zero(t, stats.PostViews(ctx, "/health"))
	assert.Zero(t, stats.PostViews(ctx, "/missing"))
}
