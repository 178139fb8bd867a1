package services

import (
	"context"
	"strings"
	"unicode/utf8"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/petos/forum/models"
	"github.com/petos/forum/utils"
)

const maxTagLength = 64

// TagService owns the tag vocabulary and post associations.
type TagService struct {
	db *gorm.DB
}

func NewTagService(db *gorm.DB) *TagService {
	return &TagService{db: db}
}

// FindOrCreate returns the id of the tag with exactly this name, creating it if needed.
// A concurrent insert of the same name surfaces as a duplicate key and is retried as a lookup.
func (s *TagService) FindOrCreate(ctx context.Context, name string) (uint, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, validationf("tag name is required")
	}
	if utf8.RuneCountInString(name) > maxTagLength {
		return 0, validationf("tag name must be at most %d characters", maxTagLength)
	}

	if id, err := s.lookup(ctx, name); err != nil || id != 0 {
		return id, err
	}
	tag := models.Tag{Name: name}
	err := s.db.WithContext(ctx).Create(&tag).Error
	if err == nil {
		return tag.ID, nil
	}
	if !isDuplicate(err) {
		return 0, storeErr("create tag", err)
	}
	id, err := s.lookup(ctx, name)
	if err == nil && id == 0 {
		return 0, storeErr("create tag", gorm.ErrRecordNotFound)
	}
	return id, err
}

func (s *TagService) lookup(ctx context.Context, name string) (uint, error) {
	var tags []models.Tag
	if err := s.db.WithContext(ctx).Where("name = ?", name).Limit(1).Find(&tags).Error; err != nil {
		return 0, storeErr("find tag", err)
	}
	if len(tags) == 0 {
		return 0, nil
	}
	return tags[0].ID, nil
}

// AddToPost links a tag to a post; repeating the call is a no-op.
func (s *TagService) AddToPost(ctx context.Context, tagID, postID uint) error {
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.PostTag{PostID: postID, TagID: tagID}).Error
	return storeErr("add tag to post", err)
}

// TagPost splits a comma separated list and attaches every tag to the post.
func (s *TagService) TagPost(ctx context.Context, postID uint, list string) ([]uint, error) {
	var ids []uint
	for _, name := range utils.SplitList(list) {
		id, err := s.FindOrCreate(ctx, name)
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	ids = utils.Unique(ids)
	for _, id := range ids {
		if err := s.AddToPost(ctx, id, postID); err != nil {
			return ids, err
		}
	}
	return ids, nil
}

// ByPost returns the tags of a post. Order is by name for display only.
func (s *TagService) ByPost(ctx context.Context, postID uint) ([]models.Tag, error) {
	byPost, err := s.ByPosts(ctx, postID)
	if err != nil {
		return nil, err
	}
	return byPost[postID], nil
}

// ByPosts loads tags for several posts in one query.
func (s *TagService) ByPosts(ctx context.Context, postIDs ...uint) (map[uint][]models.Tag, error) {
	out := make(map[uint][]models.Tag)
	postIDs = utils.Unique(postIDs)
	if len(postIDs) == 0 {
		return out, nil
	}
	var rows []struct {
		PostID uint
		ID     uint
		Name   string
	}
	err := s.db.WithContext(ctx).Table("post_tags").
		Select("post_tags.post_id, tags.id, tags.name").
		Joins("JOIN tags ON tags.id = post_tags.tag_id").
		Where("post_tags.post_id IN ?", postIDs).
		Order("tags.name ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, storeErr("tags by post", err)
	}
	for _, r := range rows {
		out[r.PostID] = append(out[r.PostID], models.Tag{ID: r.ID, Name: r.Name})
	}
	return out, nil
}

// All lists the whole tag vocabulary.
func (s *TagService) All(ctx context.Context) ([]models.Tag, error) {
	var tags []models.Tag
	if err := s.db.WithContext(ctx).Order("name ASC").Find(&tags).Error; err != nil {
		return nil, storeErr("list tags", err)
	}
	return tags, nil
}

// WithTags pairs each post with its tags.
func (s *TagService) WithTags(ctx context.Context, posts []models.PostWithAuthor) ([]models.PostWithTags, error) {
	ids := make([]uint, 0, len(posts))
	for _, p := range posts {
		ids = append(ids, p.ID)
	}
	byPost, err := s.ByPosts(ctx, ids...)
	if err != nil {
		return nil, err
	}
	out := make([]models.PostWithTags, 0, len(posts))
	for _, p := range posts {
		out = append(out, models.PostWithTags{PostWithAuthor: p, Tags: byPost[p.ID]})
	}
	return out, nil
}
