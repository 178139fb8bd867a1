package services

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/petos/forum/models"
)

// DefaultAvatar is the stored name rendered when a user has no icon.
const DefaultAvatar = "default_ico/default-avatar.png"

// AttachmentService binds stored files to exactly one owner.
type AttachmentService struct {
	db *gorm.DB
}

func NewAttachmentService(db *gorm.DB) *AttachmentService {
	return &AttachmentService{db: db}
}

// AttachToPost inserts the attachment and its post association in one transaction.
func (s *AttachmentService) AttachToPost(ctx context.Context, fileRef string, postID uint) (uint, error) {
	return s.attach(ctx, fileRef, func(tx *gorm.DB, attachmentID uint) error {
		return tx.Create(&models.PostAttachment{AttachmentID: attachmentID, PostID: postID}).Error
	})
}

func (s *AttachmentService) AttachToComment(ctx context.Context, fileRef string, commentID uint) (uint, error) {
	return s.attach(ctx, fileRef, func(tx *gorm.DB, attachmentID uint) error {
		return tx.Create(&models.CommentAttachment{AttachmentID: attachmentID, CommentID: commentID}).Error
	})
}

// AttachToUserIcon designates a stored file as an icon. A zero userID with isDefault
// registers a system default icon; otherwise the user's current icon is switched to it.
func (s *AttachmentService) AttachToUserIcon(ctx context.Context, fileRef string, userID uint, isDefault bool) (uint, error) {
	if userID == 0 && !isDefault {
		return 0, ErrUnauthorized
	}
	return s.attach(ctx, fileRef, func(tx *gorm.DB, attachmentID uint) error {
		icon := models.UserIcon{AttachmentID: attachmentID, IsDefault: isDefault}
		if userID != 0 {
			uid := userID
			icon.UserID = &uid
		}
		if err := tx.Create(&icon).Error; err != nil {
			return err
		}
		if userID == 0 {
			return nil
		}
		return tx.Model(&models.User{}).Where("id = ?", userID).Update("icon_id", attachmentID).Error
	})
}

func (s *AttachmentService) attach(ctx context.Context, fileRef string, link func(tx *gorm.DB, attachmentID uint) error) (uint, error) {
	fileRef = strings.TrimSpace(fileRef)
	if fileRef == "" {
		return 0, validationf("attachment name is required")
	}
	var id uint
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		att := models.Attachment{Name: fileRef}
		if err := tx.Create(&att).Error; err != nil {
			return err
		}
		id = att.ID
		return link(tx, att.ID)
	})
	if err != nil {
		return 0, storeErr("attach file", err)
	}
	return id, nil
}

// PostAttachments lists the files of a post with the post title and author.
func (s *AttachmentService) PostAttachments(ctx context.Context, postID uint) ([]models.PostAttachmentView, error) {
	var out []models.PostAttachmentView
	err := s.db.WithContext(ctx).Table("post_attachments").
		Select("attachments.id, attachments.name AS attachment_name, posts.id AS post_id, posts.title AS post_title, users.id AS author_id, users.name AS author_name").
		Joins("JOIN attachments ON attachments.id = post_attachments.attachment_id").
		Joins("JOIN posts ON posts.id = post_attachments.post_id").
		Joins("JOIN users ON users.id = posts.author_id").
		Where("post_attachments.post_id = ?", postID).
		Order("attachments.id ASC").
		Scan(&out).Error
	if err != nil {
		return nil, storeErr("post attachments", err)
	}
	return out, nil
}

// CommentAttachments lists the files of the given comments, keyed by comment id.
func (s *AttachmentService) CommentAttachments(ctx context.Context, commentIDs ...uint) (map[uint][]models.CommentAttachmentView, error) {
	out := make(map[uint][]models.CommentAttachmentView)
	if len(commentIDs) == 0 {
		return out, nil
	}
	var rows []models.CommentAttachmentView
	err := s.db.WithContext(ctx).Table("comment_attachments").
		Select("attachments.id, attachments.name AS attachment_name, comments.id AS comment_id, users.id AS author_id, users.name AS author_name, comments.post_id").
		Joins("JOIN attachments ON attachments.id = comment_attachments.attachment_id").
		Joins("JOIN comments ON comments.id = comment_attachments.comment_id").
		Joins("JOIN users ON users.id = comments.author_id").
		Where("comment_attachments.comment_id IN ?", commentIDs).
		Order("attachments.id ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, storeErr("comment attachments", err)
	}
	for _, r := range rows {
		out[r.CommentID] = append(out[r.CommentID], r)
	}
	return out, nil
}

func (s *AttachmentService) iconViews(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).Table("user_icons").
		Select("user_icons.id, user_icons.attachment_id, attachments.name AS icon_name, user_icons.is_default, user_icons.user_id").
		Joins("JOIN attachments ON attachments.id = user_icons.attachment_id")
}

// UserIcon returns the user's newest uploaded icon, falling back to their newest
// default designation, or nil.
func (s *AttachmentService) UserIcon(ctx context.Context, userID uint) (*models.UserIconView, error) {
	var icons []models.UserIconView
	err := s.iconViews(ctx).
		Where("user_icons.user_id = ?", userID).
		Order("user_icons.is_default ASC").
		Order("user_icons.id DESC").
		Limit(1).
		Scan(&icons).Error
	if err != nil {
		return nil, storeErr("user icon", err)
	}
	if len(icons) == 0 {
		return nil, nil
	}
	return &icons[0], nil
}

// DefaultIcons lists the system-provided icons.
func (s *AttachmentService) DefaultIcons(ctx context.Context) ([]models.UserIconView, error) {
	var icons []models.UserIconView
	err := s.iconViews(ctx).
		Where("user_icons.is_default = ? AND user_icons.user_id IS NULL", true).
		Order("user_icons.id ASC").
		Scan(&icons).Error
	if err != nil {
		return nil, storeErr("default icons", err)
	}
	return icons, nil
}

// ChooseDefaultIcon points the user's icon at one of the system defaults.
func (s *AttachmentService) ChooseDefaultIcon(ctx context.Context, userID, attachmentID uint) error {
	if userID == 0 {
		return ErrUnauthorized
	}
	var n int64
	err := s.db.WithContext(ctx).Model(&models.UserIcon{}).
		Where("attachment_id = ? AND is_default = ? AND user_id IS NULL", attachmentID, true).
		Count(&n).Error
	if err != nil {
		return storeErr("find default icon", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: default icon %d", ErrNotFound, attachmentID)
	}
	err = s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Update("icon_id", attachmentID).Error
	return storeErr("choose default icon", err)
}

// IconName resolves the file rendered as the user's avatar: the chosen icon,
// else their designated icon. Empty means the default avatar applies.
func (s *AttachmentService) IconName(ctx context.Context, user *models.User) (string, error) {
	if user.IconID != nil {
		var att models.Attachment
		err := s.db.WithContext(ctx).First(&att, *user.IconID).Error
		if err == nil {
			return att.Name, nil
		}
		if !isNotFound(err) {
			return "", storeErr("load icon", err)
		}
	}
	icon, err := s.UserIcon(ctx, user.ID)
	if err != nil || icon == nil {
		return "", err
	}
	return icon.IconName, nil
}

// SeedDefaultIcons registers each name as a default icon unless already present.
func (s *AttachmentService) SeedDefaultIcons(ctx context.Context, names []string) (int, error) {
	existing, err := s.DefaultIcons(ctx)
	if err != nil {
		return 0, err
	}
	known := make(map[string]bool, len(existing))
	for _, icon := range existing {
		known[icon.IconName] = true
	}
	added := 0
	for _, name := range names {
		if known[name] {
			continue
		}
		if _, err := s.AttachToUserIcon(ctx, name, 0, true); err != nil {
			return added, err
		}
		known[name] = true
		added++
	}
	return added, nil
}

// detachAll removes the association rows of the given owners and their attachments,
// returning the stored names so files can be removed after commit.
func detachAll(tx *gorm.DB, assoc interface{}, ownerColumn string, ownerIDs []uint) ([]string, error) {
	if len(ownerIDs) == 0 {
		return nil, nil
	}
	var attachmentIDs []uint
	if err := tx.Model(assoc).Where(ownerColumn+" IN ?", ownerIDs).Pluck("attachment_id", &attachmentIDs).Error; err != nil {
		return nil, err
	}
	if len(attachmentIDs) == 0 {
		return nil, nil
	}
	var names []string
	if err := tx.Model(&models.Attachment{}).Where("id IN ?", attachmentIDs).Pluck("name", &names).Error; err != nil {
		return nil, err
	}
	if err := tx.Where(ownerColumn+" IN ?", ownerIDs).Delete(assoc).Error; err != nil {
		return nil, err
	}
	if err := tx.Where("id IN ?", attachmentIDs).Delete(&models.Attachment{}).Error; err != nil {
		return nil, err
	}
	return names, nil
}
