package users

import (
	"strings"
	"time"
)

// Account timestamps share the canonical stored form used by tree records.
const timestampLayout = "2006-01-02T15:04:05.000Z"

func formatTimestamp(instant time.Time) string {
	return instant.UTC().Format(timestampLayout)
}

// User is a registered account. The password hash never leaves the package.
type User struct {
	ID           int64  `gorm:"column:id;primaryKey;autoIncrement"`
	Username     string `gorm:"column:username;size:190;uniqueIndex;not null"`
	PasswordHash string `gorm:"column:password_hash;not null"`
	Email        string `gorm:"column:email;size:320;uniqueIndex;not null"`
	FullName     string `gorm:"column:full_name;size:320;not null"`
	IsAdmin      bool   `gorm:"column:is_admin;not null;default:false"`
	LastLogin    string `gorm:"column:last_login;size:32"`
	CreatedAt    string `gorm:"column:created_at;size:32;not null"`
}

// TableName provides the explicit table binding for GORM.
func (User) TableName() string {
	return "users"
}

// PublicUser is the account shape exposed to API callers.
type PublicUser struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	FullName  string `json:"fullName"`
	IsAdmin   bool   `json:"isAdmin"`
	LastLogin string `json:"lastLogin,omitempty"`
	CreatedAt string `json:"createdAt"`
}

// Public strips credential material from the account.
func (u User) Public() PublicUser {
	return PublicUser{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		FullName:  u.FullName,
		IsAdmin:   u.IsAdmin,
		LastLogin: u.LastLogin,
		CreatedAt: u.CreatedAt,
	}
}

func normalize(value string) string {
	return strings.TrimSpace(value)
}
