package services

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/petos/forum/models"
)

// newTestDB opens a private in-memory sqlite database with the full schema.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(models.All()...))
	return db
}

type fixture struct {
	db          *gorm.DB
	identity    *IdentityService
	content     *ContentService
	listing     *ListingService
	tags        *TagService
	attachments *AttachmentService
	stats       *StatsService
	removed     *recordingRemover
}

type recordingRemover struct {
	names []string
}

func (r *recordingRemover) Remove(_ context.Context, name string) error {
	r.names = append(r.names, name)
	return nil
}

func newFixture(t *testing.T) *fixture {
	db := newTestDB(t)
	removed := &recordingRemover{}
	return &fixture{
		db:          db,
		identity:    NewIdentityService(db),
		content:     NewContentService(db, removed, nil),
		listing:     NewListingService(db),
		tags:        NewTagService(db),
		attachments: NewAttachmentService(db),
		stats:       NewStatsService(db),
		removed:     removed,
	}
}

func (f *fixture) user(t *testing.T, name string) uint {
	t.Helper()
	id, err := f.identity.Create(context.Background(), name, "secret-"+name, models.RoleUser)
	require.NoError(t, err)
	return id
}

func (f *fixture) post(t *testing.T, author uint, title string) uint {
	t.Helper()
	p, err := f.content.CreatePost(context.Background(), author, title, "body of "+title)
	require.NoError(t, err)
	return p.ID
}
