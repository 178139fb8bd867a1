package services

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/petos/forum/models"
	"github.com/petos/forum/utils"
)

// Stats are the aggregate counters shown on the admin panel.
type Stats struct {
	UserCount      int64
	PostCount      int64
	CommentCount   int64
	TagCount       int64
	TodayPageViews int64
}

// StatsService aggregates forum counters and page views.
type StatsService struct {
	db *gorm.DB
}

func NewStatsService(db *gorm.DB) *StatsService {
	return &StatsService{db: db}
}

// Overview counts the main entities; a failing counter is logged and reads as zero.
func (s *StatsService) Overview(ctx context.Context) Stats {
	var st Stats
	db := s.db.WithContext(ctx)
	counters := []struct {
		name  string
		model interface{}
		dst   *int64
	}{
		{"users", &models.User{}, &st.UserCount},
		{"posts", &models.Post{}, &st.PostCount},
		{"comments", &models.Comment{}, &st.CommentCount},
		{"tags", &models.Tag{}, &st.TagCount},
	}
	for _, c := range counters {
		if err := db.Model(c.model).Count(c.dst).Error; err != nil {
			*c.dst = 0
			utils.L().Warn("stats counter failed", zap.String("counter", c.name), zap.Error(err))
		}
	}
	from := localMidnight(time.Now())
	if err := db.Model(&models.PageView{}).
		Where("date >= ? AND date < ?", from, from.AddDate(0, 0, 1)).
		Select("COALESCE(SUM(count),0)").
		Scan(&st.TodayPageViews).Error; err != nil {
		st.TodayPageViews = 0
		utils.L().Warn("stats counter failed", zap.String("counter", "page_views"), zap.Error(err))
	}
	return st
}

// NewestUsers pages through users by registration, newest first.
func (s *StatsService) NewestUsers(ctx context.Context, page int) ([]models.User, models.Pagination, error) {
	if page < 1 {
		page = 1
	}
	pagination := models.Pagination{Current: page}
	db := s.db.WithContext(ctx)
	if err := db.Model(&models.User{}).Count(&pagination.Total).Error; err != nil {
		return nil, pagination, storeErr("count users", err)
	}
	pagination.PagesCount = PagesCount(pagination.Total)

	users := []models.User{}
	if page > pagination.PagesCount {
		return users, pagination, nil
	}
	err := db.Order("registration_date DESC").Order("id DESC").
		Offset((page - 1) * PageSize).Limit(PageSize).
		Find(&users).Error
	if err != nil {
		return nil, pagination, storeErr("list users", err)
	}
	return users, pagination, nil
}

// RecordPageView bumps today's counter for the path with an atomic upsert.
func (s *StatsService) RecordPageView(ctx context.Context, path string) error {
	now := time.Now()
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "date"}, {Name: "path"}},
		DoUpdates: clause.Assignments(map[string]interface{}{"count": gorm.Expr("page_views.count + 1"), "updated_at": now}),
	}).Create(&models.PageView{Date: localMidnight(now), Path: path, Count: 1}).Error
	return storeErr("record page view", err)
}

// PostViews sums every recorded view of a post page.
func (s *StatsService) PostViews(ctx context.Context, postPath string) int64 {
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.PageView{}).
		Where("path = ?", postPath).
		Select("COALESCE(SUM(count),0)").
		Scan(&n).Error; err != nil {
		return 0
	}
	return n
}

func localMidnight(t time.Time) time.Time {
	t = t.In(time.Local)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
