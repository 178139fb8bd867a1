package controllers_test

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/petos/forum/config"
	"github.com/petos/forum/controllers"
	"github.com/petos/forum/models"
	"github.com/petos/forum/routes"
	"github.com/petos/forum/services"
	"github.com/petos/forum/templates"
	"github.com/petos/forum/utils"
)

type forum struct {
	srv  *httptest.Server
	db   *gorm.DB
	deps *controllers.Deps
}

func newForum(t *testing.T) *forum {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(models.All()...))

	cfg := config.Defaults()
	cfg.GinMode = "test"
	cfg.GinPath = ""
	cfg.SessionSecret = "test-secret"
	cfg.RateLimitPerMinute = 1000
	cfg.UploadDir = t.TempDir()

	storage, err := utils.NewLocalStorage(cfg.UploadDir)
	require.NoError(t, err)

	deps := &controllers.Deps{
		Config:      cfg,
		Identity:    services.NewIdentityService(db),
		Content:     services.NewContentService(db, storage, nil),
		Listing:     services.NewListingService(db),
		Tags:        services.NewTagService(db),
		Attachments: services.NewAttachmentService(db),
		Stats:       services.NewStatsService(db),
		Sessions:    utils.NewMemorySessionStore(),
		Storage:     storage,
	}
	renderer, err := templates.New(cfg.UploadURLPrefix)
	require.NoError(t, err)

	srv := httptest.NewServer(routes.SetupRouter(deps, renderer))
	t.Cleanup(srv.Close)
	return &forum{srv: srv, db: db, deps: deps}
}

// client keeps its own cookies and never follows redirects.
func (f *forum) client(t *testing.T) *http.Client {
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func (f *forum) get(t *testing.T, c *http.Client, path string) (int, string) {
	t.Helper()
	resp, err := c.Get(f.srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

// post submits a form and returns the status, redirect target and body.
func (f *forum) post(t *testing.T, c *http.Client, path string, form url.Values) (int, string, string) {
	t.Helper()
	resp, err := c.PostForm(f.srv.URL+path, form)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, resp.Header.Get("Location"), string(body)
}

func (f *forum) signUp(t *testing.T, c *http.Client, name, password string) {
	t.Helper()
	status, loc, _ := f.post(t, c, "/user/registration", url.Values{"name": {name}, "password": {password}})
	require.Equal(t, http.StatusSeeOther, status)
	require.Equal(t, "/user/login", loc)
	status, loc, _ = f.post(t, c, "/user/login", url.Values{"name": {name}, "password": {password}})
	require.Equal(t, http.StatusSeeOther, status)
	require.Equal(t, "/posts", loc)
}

func TestPostLifecycle(t *testing.T) {
	f := newForum(t)
	alice := f.client(t)
	f.signUp(t, alice, "alice", "pw123456")

	status, loc, _ := f.post(t, alice, "/posts", url.Values{
		"title":   {"Hello"},
		"content": {"World"},
		"tags":    {"intro,rust"},
	})
	require.Equal(t, http.StatusSeeOther, status)
	require.True(t, strings.HasPrefix(loc, "/posts/"), loc)
	postPath := loc

	status, body := f.get(t, alice, "/posts?page=1")
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "Hello")
	assert.Contains(t, body, "#intro")
	assert.Contains(t, body, "#rust")

	status, body = f.get(t, alice, postPath)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "Comments (0)")

	status, _, _ = f.post(t, alice, postPath+"/comments", url.Values{"content": {"Nice!"}})
	require.Equal(t, http.StatusSeeOther, status)

	_, body = f.get(t, alice, postPath)
	assert.Contains(t, body, "Comments (1)")
	assert.Contains(t, body, "Nice!")
	assert.Contains(t, body, `<span class="author">alice</span>`)

	id := strings.TrimPrefix(postPath, "/posts/")
	status, body = f.get(t, alice, "/posts/delete/"+id)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "/posts/delete/"+id+"/initial")

	status, loc, _ = f.post(t, alice, "/posts/delete/"+id+"/initial", nil)
	require.Equal(t, http.StatusSeeOther, status)
	assert.Equal(t, "/posts", loc)

	_, body = f.get(t, alice, "/posts")
	assert.NotContains(t, body, "Hello")
	status, _ = f.get(t, alice, postPath)
	assert.Equal(t, http.StatusNotFound, status)

	var comments int64
	require.NoError(t, f.db.Model(&models.Comment{}).Count(&comments).Error)
	assert.Zero(t, comments)
}

func TestLoginFailuresShareOneMessage(t *testing.T) {
	f := newForum(t)
	c := f.client(t)
	f.signUp(t, c, "alice", "pw123456")

	anon := f.client(t)
	status, _, body := f.post(t, anon, "/user/login", url.Values{"name": {"alice"}, "password": {"wrong"}})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Contains(t, body, "Invalid username or password")

	status, _, body = f.post(t, anon, "/user/login", url.Values{"name": {"nobody"}, "password": {"pw123456"}})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Contains(t, body, "Invalid username or password")
}

func TestRegistrationConflictAndValidation(t *testing.T) {
	f := newForum(t)
	c := f.client(t)
	f.signUp(t, c, "alice", "pw123456")

	anon := f.client(t)
	status, _, body := f.post(t, anon, "/user/registration", url.Values{"name": {"alice"}, "password": {"x"}})
	assert.Equal(t, http.StatusConflict, status)
	assert.Contains(t, body, "already taken")

	status, _, body = f.post(t, anon, "/user/registration", url.Values{"name": {strings.Repeat("n", 33)}, "password": {"x"}})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, body, "Name must be at most 32 characters")
}

func TestAnonymousMutationsRedirectToLogin(t *testing.T) {
	f := newForum(t)
	anon := f.client(t)

	for _, path := range []string{"/posts", "/posts/1/comments", "/posts/delete/1/initial", "/user/UserEditor"} {
		status, loc, _ := f.post(t, anon, path, url.Values{"title": {"x"}, "content": {"y"}})
		assert.Equal(t, http.StatusSeeOther, status, path)
		assert.Equal(t, "/user/login", loc, path)
	}
	status, _ := f.get(t, anon, "/user")
	assert.Equal(t, http.StatusSeeOther, status)
}

func TestNonOwnerIsSentBackToThePost(t *testing.T) {
	f := newForum(t)
	alice, bob := f.client(t), f.client(t)
	f.signUp(t, alice, "alice", "pw123456")
	f.signUp(t, bob, "bob", "pw123456")

	_, postPath, _ := f.post(t, alice, "/posts", url.Values{"title": {"Mine"}, "content": {"text"}})
	id := strings.TrimPrefix(postPath, "/posts/")

	status, loc, _ := f.post(t, bob, "/user/posts/PostEditor/"+id, url.Values{"title": {"Stolen"}, "content": {"x"}})
	assert.Equal(t, http.StatusSeeOther, status)
	assert.Equal(t, postPath, loc)

	status, loc, _ = f.post(t, bob, "/posts/delete/"+id+"/initial", nil)
	assert.Equal(t, http.StatusSeeOther, status)
	assert.Equal(t, postPath, loc)

	status, _ = f.get(t, bob, "/user/posts/PostEditor/"+id)
	assert.Equal(t, http.StatusSeeOther, status)

	_, body := f.get(t, bob, postPath)
	assert.Contains(t, body, "Mine")
	assert.NotContains(t, body, "Stolen")

	status, loc, _ = f.post(t, alice, "/user/posts/PostEditor/"+id, url.Values{"title": {"Renamed"}, "content": {"text"}})
	assert.Equal(t, http.StatusSeeOther, status)
	assert.Equal(t, postPath, loc)
	_, body = f.get(t, alice, postPath)
	assert.Contains(t, body, "Renamed")
}

func TestCommentEditAndDelete(t *testing.T) {
	f := newForum(t)
	alice, bob := f.client(t), f.client(t)
	f.signUp(t, alice, "alice", "pw123456")
	f.signUp(t, bob, "bob", "pw123456")

	_, postPath, _ := f.post(t, alice, "/posts", url.Values{"title": {"Thread"}, "content": {"text"}})
	id := strings.TrimPrefix(postPath, "/posts/")
	_, _, _ = f.post(t, bob, postPath+"/comments", url.Values{"content": {"first"}})

	var comment models.Comment
	require.NoError(t, f.db.First(&comment).Error)
	cid := fmt.Sprint(comment.ID)

	status, loc, _ := f.post(t, alice, "/user/posts/CommentEditor/"+id+"/"+cid, url.Values{"content": {"hijacked"}})
	assert.Equal(t, http.StatusSeeOther, status)
	assert.Equal(t, postPath, loc)

	status, _, _ = f.post(t, bob, "/user/posts/CommentEditor/"+id+"/"+cid, url.Values{"content": {"edited"}})
	assert.Equal(t, http.StatusSeeOther, status)
	_, body := f.get(t, bob, postPath)
	assert.Contains(t, body, "edited")
	assert.NotContains(t, body, "hijacked")

	_, otherPath, _ := f.post(t, alice, "/posts", url.Values{"title": {"Other"}, "content": {"text"}})
	other := strings.TrimPrefix(otherPath, "/posts/")
	status, _, _ = f.post(t, bob, "/user/posts/CommentEditor/"+other+"/"+cid, url.Values{"content": {"moved"}})
	assert.Equal(t, http.StatusNotFound, status)
	status, _, _ = f.post(t, bob, "/posts/delete/"+other+"/comments/"+cid+"/initial", nil)
	assert.Equal(t, http.StatusNotFound, status)
	_, body = f.get(t, bob, postPath)
	assert.Contains(t, body, "edited")
	assert.NotContains(t, body, "moved")

	status, loc, _ = f.post(t, bob, "/posts/delete/"+id+"/comments/"+cid+"/initial", nil)
	assert.Equal(t, http.StatusSeeOther, status)
	assert.Equal(t, postPath, loc)
	_, body = f.get(t, bob, postPath)
	assert.Contains(t, body, "Comments (0)")
}

func TestRenameForcesLogin(t *testing.T) {
	f := newForum(t)
	c := f.client(t)
	f.signUp(t, c, "alice", "pw123456")

	status, loc, _ := f.post(t, c, "/user/UserEditor", url.Values{"moto": {"hi there"}})
	assert.Equal(t, http.StatusSeeOther, status)
	assert.Equal(t, "/user", loc)

	status, loc, _ = f.post(t, c, "/user/UserEditor", url.Values{"name": {"alicia"}})
	assert.Equal(t, http.StatusSeeOther, status)
	assert.Equal(t, "/user/login", loc)

	status, _ = f.get(t, c, "/user")
	assert.Equal(t, http.StatusSeeOther, status)

	status, loc, _ = f.post(t, c, "/user/login", url.Values{"name": {"alicia"}, "password": {"pw123456"}})
	assert.Equal(t, http.StatusSeeOther, status)
	assert.Equal(t, "/posts", loc)
	status, body := f.get(t, c, "/user")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "hi there")
}

func TestAdminPanelChecksStoredRole(t *testing.T) {
	f := newForum(t)
	c := f.client(t)
	f.signUp(t, c, "alice", "pw123456")

	status, _ := f.get(t, c, "/admin")
	assert.Equal(t, http.StatusForbidden, status)

	require.NoError(t, f.deps.Identity.SetRole(context.Background(), "alice", models.RoleAdmin))
	status, body := f.get(t, c, "/admin")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "Admin panel")
	assert.Contains(t, body, "alice")
}

func TestPublicPages(t *testing.T) {
	f := newForum(t)
	anon := f.client(t)

	status, body := f.get(t, anon, "/posts/leaders")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "Nobody here yet.")

	status, _ = f.get(t, anon, "/")
	assert.Equal(t, http.StatusOK, status)

	status, _ = f.get(t, anon, "/posts/999")
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = f.get(t, anon, "/no/such/page")
	assert.Equal(t, http.StatusNotFound, status)

	status, body = f.get(t, anon, "/health")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, `"status":"ok"`)
}
