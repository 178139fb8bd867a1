package services

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/petos/forum/models"
	"github.com/petos/forum/utils"
)

const maxTitleLength = 255

// FileRemover deletes stored upload files by name.
type FileRemover interface {
	Remove(ctx context.Context, name string) error
}

// ContentService owns post and comment lifecycle and enforces ownership.
type ContentService struct {
	db    *gorm.DB
	files FileRemover
	log   *zap.Logger
}

func NewContentService(db *gorm.DB, files FileRemover, log *zap.Logger) *ContentService {
	if log == nil {
		log = zap.NewNop()
	}
	return &ContentService{db: db, files: files, log: log}
}

const postAuthorColumns = "posts.id, posts.title, posts.content, posts.created_at, posts.author_id, users.name AS author_name, attachments.name AS author_icon_name"

const commentAuthorColumns = "comments.id, comments.content, comments.created_at, comments.post_id, comments.author_id, users.name AS author_name, attachments.name AS author_icon_name"

func (s *ContentService) CreatePost(ctx context.Context, callerID uint, title, content string) (*models.Post, error) {
	if callerID == 0 {
		return nil, ErrUnauthorized
	}
	title, content, err := validatePost(title, content)
	if err != nil {
		return nil, err
	}
	post := models.Post{Title: title, Content: content, AuthorID: callerID}
	if err := s.db.WithContext(ctx).Create(&post).Error; err != nil {
		return nil, storeErr("create post", err)
	}
	return &post, nil
}

func (s *ContentService) UpdatePost(ctx context.Context, callerID, postID uint, title, content string) error {
	if _, err := s.ownedPost(ctx, callerID, postID); err != nil {
		return err
	}
	title, content, err := validatePost(title, content)
	if err != nil {
		return err
	}
	err = s.db.WithContext(ctx).Model(&models.Post{}).Where("id = ?", postID).
		Updates(map[string]interface{}{"title": title, "content": content}).Error
	return storeErr("update post", err)
}

// DeletePost removes the post together with its comments, tags and attachments in a
// single transaction. Stored files are removed after commit on a best-effort basis.
func (s *ContentService) DeletePost(ctx context.Context, callerID, postID uint) error {
	if _, err := s.ownedPost(ctx, callerID, postID); err != nil {
		return err
	}

	var orphaned []string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var commentIDs []uint
		if err := tx.Model(&models.Comment{}).Where("post_id = ?", postID).Pluck("id", &commentIDs).Error; err != nil {
			return err
		}
		names, err := detachAll(tx, &models.CommentAttachment{}, "comment_id", commentIDs)
		if err != nil {
			return err
		}
		orphaned = append(orphaned, names...)
		names, err = detachAll(tx, &models.PostAttachment{}, "post_id", []uint{postID})
		if err != nil {
			return err
		}
		orphaned = append(orphaned, names...)
		if err := tx.Where("post_id = ?", postID).Delete(&models.PostTag{}).Error; err != nil {
			return err
		}
		if err := tx.Where("post_id = ?", postID).Delete(&models.Comment{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Post{}, postID).Error
	})
	if err != nil {
		return storeErr("delete post", err)
	}
	s.removeFiles(ctx, orphaned)
	return nil
}

func (s *ContentService) CreateComment(ctx context.Context, callerID, postID uint, content string) (*models.Comment, error) {
	if callerID == 0 {
		return nil, ErrUnauthorized
	}
	post, err := s.FindPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post == nil {
		return nil, fmt.Errorf("%w: post %d", ErrNotFound, postID)
	}
	content, err = validateBody(content)
	if err != nil {
		return nil, err
	}
	comment := models.Comment{Content: content, AuthorID: callerID, PostID: postID}
	if err := s.db.WithContext(ctx).Create(&comment).Error; err != nil {
		return nil, storeErr("create comment", err)
	}
	return &comment, nil
}

func (s *ContentService) UpdateComment(ctx context.Context, callerID, commentID uint, content string) error {
	if _, err := s.ownedComment(ctx, callerID, commentID); err != nil {
		return err
	}
	content, err := validateBody(content)
	if err != nil {
		return err
	}
	err = s.db.WithContext(ctx).Model(&models.Comment{}).Where("id = ?", commentID).Update("content", content).Error
	return storeErr("update comment", err)
}

// DeleteComment removes one comment and its attachments.
func (s *ContentService) DeleteComment(ctx context.Context, callerID, commentID uint) error {
	if _, err := s.ownedComment(ctx, callerID, commentID); err != nil {
		return err
	}
	var orphaned []string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		names, err := detachAll(tx, &models.CommentAttachment{}, "comment_id", []uint{commentID})
		if err != nil {
			return err
		}
		orphaned = names
		return tx.Delete(&models.Comment{}, commentID).Error
	})
	if err != nil {
		return storeErr("delete comment", err)
	}
	s.removeFiles(ctx, orphaned)
	return nil
}

// FindPost returns nil without error when the post does not exist.
func (s *ContentService) FindPost(ctx context.Context, postID uint) (*models.Post, error) {
	var post models.Post
	err := s.db.WithContext(ctx).First(&post, postID).Error
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("find post", err)
	}
	return &post, nil
}

func (s *ContentService) FindPostWithAuthor(ctx context.Context, postID uint) (*models.PostWithAuthor, error) {
	var posts []models.PostWithAuthor
	err := s.db.WithContext(ctx).Table("posts").
		Select(postAuthorColumns).
		Joins("JOIN users ON users.id = posts.author_id").
		Joins("LEFT JOIN attachments ON attachments.id = users.icon_id").
		Where("posts.id = ?", postID).
		Limit(1).
		Scan(&posts).Error
	if err != nil {
		return nil, storeErr("find post with author", err)
	}
	if len(posts) == 0 {
		return nil, nil
	}
	return &posts[0], nil
}

func (s *ContentService) FindComment(ctx context.Context, commentID uint) (*models.Comment, error) {
	var comment models.Comment
	err := s.db.WithContext(ctx).First(&comment, commentID).Error
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("find comment", err)
	}
	return &comment, nil
}

// CommentsByPost returns the conversation oldest first.
func (s *ContentService) CommentsByPost(ctx context.Context, postID uint) ([]models.CommentWithAuthor, error) {
	var comments []models.CommentWithAuthor
	err := s.db.WithContext(ctx).Table("comments").
		Select(commentAuthorColumns).
		Joins("JOIN users ON users.id = comments.author_id").
		Joins("LEFT JOIN attachments ON attachments.id = users.icon_id").
		Where("comments.post_id = ?", postID).
		Order("comments.created_at ASC").
		Order("comments.id ASC").
		Scan(&comments).Error
	if err != nil {
		return nil, storeErr("comments by post", err)
	}
	return comments, nil
}

// ownedPost loads the post and checks that the caller wrote it.
func (s *ContentService) ownedPost(ctx context.Context, callerID, postID uint) (*models.Post, error) {
	if callerID == 0 {
		return nil, ErrUnauthorized
	}
	post, err := s.FindPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post == nil {
		return nil, fmt.Errorf("%w: post %d", ErrNotFound, postID)
	}
	if post.AuthorID != callerID {
		return nil, fmt.Errorf("%w: post %d", ErrForbidden, postID)
	}
	return post, nil
}

func (s *ContentService) ownedComment(ctx context.Context, callerID, commentID uint) (*models.Comment, error) {
	if callerID == 0 {
		return nil, ErrUnauthorized
	}
	comment, err := s.FindComment(ctx, commentID)
	if err != nil {
		return nil, err
	}
	if comment == nil {
		return nil, fmt.Errorf("%w: comment %d", ErrNotFound, commentID)
	}
	if comment.AuthorID != callerID {
		return nil, fmt.Errorf("%w: comment %d", ErrForbidden, commentID)
	}
	return comment, nil
}

func (s *ContentService) removeFiles(ctx context.Context, names []string) {
	if s.files == nil {
		return
	}
	for _, name := range names {
		if err := s.files.Remove(ctx, name); err != nil {
			s.log.Warn("remove upload failed", zap.String("name", name), zap.Error(err))
		}
	}
}

func validatePost(title, content string) (string, string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", "", validationf("title is required")
	}
	if utf8.RuneCountInString(title) > maxTitleLength {
		return "", "", validationf("title must be at most %d characters", maxTitleLength)
	}
	content, err := validateBody(content)
	if err != nil {
		return "", "", err
	}
	return title, content, nil
}

// validateBody sanitizes user HTML; a body that sanitizes to nothing is empty.
func validateBody(content string) (string, error) {
	content = strings.TrimSpace(utils.Sanitize(content))
	if content == "" {
		return "", validationf("content is required")
	}
	return content, nil
}
