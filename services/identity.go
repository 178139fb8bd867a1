package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/petos/forum/models"
	"github.com/petos/forum/utils"
)

const maxNameLength = 32

// IdentityService stores users and verifies their credentials.
type IdentityService struct {
	db *gorm.DB
}

func NewIdentityService(db *gorm.DB) *IdentityService {
	return &IdentityService{db: db}
}

// ProfilePatch lists the profile fields to change; nil fields are left untouched.
type ProfilePatch struct {
	Name     *string
	Password *string
	Moto     *string
}

// FindByName returns nil without error when no user has this exact name.
func (s *IdentityService) FindByName(ctx context.Context, name string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("name = ?", name).First(&user).Error
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("find user by name", err)
	}
	return &user, nil
}

func (s *IdentityService) FindByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).First(&user, id).Error
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("find user by id", err)
	}
	return &user, nil
}

// Create registers a user. Name uniqueness is enforced by the store.
func (s *IdentityService) Create(ctx context.Context, name, password string, role models.Role) (uint, error) {
	name, err := validateName(name)
	if err != nil {
		return 0, err
	}
	if password == "" {
		return 0, validationf("password is required")
	}
	hash, err := utils.HashPassword(password)
	if err != nil {
		return 0, fmt.Errorf("hash password: %w", err)
	}
	if role == 0 {
		role = models.RoleUser
	}

	user := models.User{Name: name, PasswordHash: hash, RoleID: role}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		if isDuplicate(err) {
			return 0, fmt.Errorf("%w: name %q is already taken", ErrConflict, name)
		}
		return 0, storeErr("create user", err)
	}
	return user.ID, nil
}

// VerifyPassword never fails loudly: a nil user or malformed hash simply does not match.
func (s *IdentityService) VerifyPassword(user *models.User, plaintext string) bool {
	if user == nil || user.PasswordHash == "" {
		return false
	}
	return utils.CheckPassword(user.PasswordHash, plaintext)
}

// UpdateProfile applies the patch and reports whether the display name changed.
func (s *IdentityService) UpdateProfile(ctx context.Context, userID uint, patch ProfilePatch) (bool, error) {
	if userID == 0 {
		return false, ErrUnauthorized
	}
	user, err := s.FindByID(ctx, userID)
	if err != nil {
		return false, err
	}
	if user == nil {
		return false, fmt.Errorf("%w: user %d", ErrNotFound, userID)
	}

	updates := map[string]interface{}{}
	renamed := false
	if patch.Name != nil {
		name, err := validateName(*patch.Name)
		if err != nil {
			return false, err
		}
		if name != user.Name {
			updates["name"] = name
			renamed = true
		}
	}
	if patch.Password != nil && *patch.Password != "" {
		hash, err := utils.HashPassword(*patch.Password)
		if err != nil {
			return false, fmt.Errorf("hash password: %w", err)
		}
		updates["password_hash"] = hash
	}
	if patch.Moto != nil {
		moto := strings.TrimSpace(*patch.Moto)
		if utf8.RuneCountInString(moto) > 255 {
			return false, validationf("moto must be at most 255 characters")
		}
		updates["moto"] = moto
	}
	if len(updates) == 0 {
		return false, nil
	}

	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Updates(updates).Error; err != nil {
		if isDuplicate(err) {
			return false, fmt.Errorf("%w: name is already taken", ErrConflict)
		}
		return false, storeErr("update profile", err)
	}
	return renamed, nil
}

// UpdateLastVisit stamps the current time. Callers treat failures as non-fatal.
func (s *IdentityService) UpdateLastVisit(ctx context.Context, userID uint) error {
	err := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).
		Update("last_visit_date", time.Now()).Error
	return storeErr("update last visit", err)
}

// SetRole changes the role of the named user.
func (s *IdentityService) SetRole(ctx context.Context, name string, role models.Role) error {
	res := s.db.WithContext(ctx).Model(&models.User{}).Where("name = ?", name).Update("role_id", role)
	if res.Error != nil {
		return storeErr("set role", res.Error)
	}
	if res.RowsAffected == 0 {
		user, err := s.FindByName(ctx, name)
		if err != nil {
			return err
		}
		if user == nil {
			return fmt.Errorf("%w: user %q", ErrNotFound, name)
		}
	}
	return nil
}

// IsAdmin reads the persisted role; session snapshots are not trusted for this.
func (s *IdentityService) IsAdmin(ctx context.Context, userID uint) (bool, error) {
	user, err := s.FindByID(ctx, userID)
	if err != nil || user == nil {
		return false, err
	}
	return user.RoleID == models.RoleAdmin, nil
}

func (s *IdentityService) userInfoQuery(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).Table("users").
		Select("users.id AS user_id, users.name, users.role_id, users.registration_date, users.last_visit_date, users.moto, COUNT(posts.id) AS total").
		Joins("LEFT JOIN posts ON posts.author_id = users.id").
		Group("users.id, users.name, users.role_id, users.registration_date, users.last_visit_date, users.moto")
}

// KarmaLeaders lists every user with their post count, most prolific first.
func (s *IdentityService) KarmaLeaders(ctx context.Context) ([]models.UserInfo, error) {
	var leaders []models.UserInfo
	if err := s.userInfoQuery(ctx).Order("total DESC").Order("users.id ASC").Scan(&leaders).Error; err != nil {
		return nil, storeErr("karma leaders", err)
	}
	return leaders, nil
}

// UserInfo returns the cabinet projection of one user, or nil when absent.
func (s *IdentityService) UserInfo(ctx context.Context, userID uint) (*models.UserInfo, error) {
	var infos []models.UserInfo
	if err := s.userInfoQuery(ctx).Where("users.id = ?", userID).Scan(&infos).Error; err != nil {
		return nil, storeErr("user info", err)
	}
	if len(infos) == 0 {
		return nil, nil
	}
	return &infos[0], nil
}

// SessionIdentity builds the session snapshot for a user, resolving the icon name.
func (s *IdentityService) SessionIdentity(ctx context.Context, user *models.User, icons *AttachmentService) (models.SessionIdentity, error) {
	ident := models.SessionIdentity{ID: user.ID, Name: user.Name, IconName: DefaultAvatar}
	if icons == nil {
		return ident, nil
	}
	name, err := icons.IconName(ctx, user)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return ident, err
	}
	if name != "" {
		ident.IconName = name
	}
	return ident, nil
}

func validateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", validationf("name is required")
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return "", validationf("name must be at most %d characters", maxNameLength)
	}
	return name, nil
}
