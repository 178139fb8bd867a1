package models

import (
	"time"

	"gorm.io/gorm"
)

// Role is the persisted permission level of a user.
type Role int16

const (
	RoleAdmin Role = 1
	RoleUser  Role = 2
)

func (r Role) String() string {
	switch r {
	case RoleAdmin:
		return "Admin"
	case RoleUser:
		return "User"
	default:
		return "Unknown"
	}
}

// User represents a forum user. Passwords are stored as bcrypt hashes only; the hash embeds its salt.
type User struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	Name             string     `gorm:"size:32;not null;uniqueIndex:uni_users_name" json:"name"`
	PasswordHash     string     `gorm:"size:255;not null" json:"-"`
	RoleID           Role       `gorm:"not null;default:2" json:"role_id"`
	IconID           *uint      `json:"icon_id"`
	RegistrationDate time.Time  `gorm:"not null" json:"registration_date"`
	LastVisitDate    *time.Time `json:"last_visit_date"`
	Moto             string     `gorm:"size:255;not null;default:''" json:"moto"`
}

// BeforeCreate hook ensures the registration timestamp and role are set even when not provided.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.RegistrationDate.IsZero() {
		u.RegistrationDate = time.Now()
	}
	if u.RoleID == 0 {
		u.RoleID = RoleUser
	}
	return nil
}

// UserInfo is the profile/leaderboard projection: a user with role and authored-post count.
type UserInfo struct {
	UserID           uint       `json:"user_id"`
	Name             string     `json:"name"`
	RoleID           Role       `json:"role_id"`
	RegistrationDate time.Time  `json:"registration_date"`
	LastVisitDate    *time.Time `json:"last_visit_date"`
	Moto             string     `json:"moto"`
	Total            int64      `json:"total"`
}

// SessionIdentity is the minimal user snapshot kept in the session store.
type SessionIdentity struct {
	ID       uint   `json:"id"`
	Name     string `json:"name"`
	IconName string `json:"icon_name"`
}
