package services

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/petos/forum/models"
)

// PageSize is shared by the count and the fetch of every listing.
const PageSize = 3

// Filters narrow a listing; all set filters apply together.
type Filters struct {
	AuthorID *uint
	Search   string
	TagID    *uint
}

// ListingService computes paginated post listings.
type ListingService struct {
	db *gorm.DB
}

func NewListingService(db *gorm.DB) *ListingService {
	return &ListingService{db: db}
}

// ListPosts returns one page of posts newest first with the matching pagination.
// Pages below 1 are treated as 1; pages past the end yield no items.
func (s *ListingService) ListPosts(ctx context.Context, page int, f Filters) ([]models.PostWithAuthor, models.Pagination, error) {
	if page < 1 {
		page = 1
	}
	pagination := models.Pagination{Current: page}

	var total int64
	if err := s.filtered(ctx, f).Count(&total).Error; err != nil {
		return nil, pagination, storeErr("count posts", err)
	}
	pagination.Total = total
	pagination.PagesCount = PagesCount(total)

	items := []models.PostWithAuthor{}
	if page > pagination.PagesCount {
		return items, pagination, nil
	}
	err := s.filtered(ctx, f).
		Select(postAuthorColumns).
		Joins("LEFT JOIN attachments ON attachments.id = users.icon_id").
		Order("posts.created_at DESC").
		Order("posts.id DESC").
		Offset((page - 1) * PageSize).
		Limit(PageSize).
		Scan(&items).Error
	if err != nil {
		return nil, pagination, storeErr("list posts", err)
	}
	return items, pagination, nil
}

// filtered is the single predicate builder behind both count and fetch.
func (s *ListingService) filtered(ctx context.Context, f Filters) *gorm.DB {
	q := s.db.WithContext(ctx).Table("posts").
		Joins("JOIN users ON users.id = posts.author_id")
	if f.AuthorID != nil {
		q = q.Where("posts.author_id = ?", *f.AuthorID)
	}
	if term := strings.TrimSpace(f.Search); term != "" {
		// both sides folded by the store so LOWER rules match
		q = q.Where("LOWER(posts.title) LIKE LOWER(?) ESCAPE '!'", "%"+escapeLike(term)+"%")
	}
	if f.TagID != nil {
		q = q.Where("EXISTS (SELECT 1 FROM post_tags WHERE post_tags.post_id = posts.id AND post_tags.tag_id = ?)", *f.TagID)
	}
	return q
}

// PagesCount is ceil(total / PageSize).
func PagesCount(total int64) int {
	return int((total + PageSize - 1) / PageSize)
}

var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

func escapeLike(term string) string {
	return likeEscaper.Replace(term)
}
