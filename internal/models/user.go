package models

import "time"

type User struct {
	ID            uint64 `gorm:"primaryKey"`
	Email         string `gorm:"type:varchar(255);uniqueIndex;not null"`
	Username      string `gorm:"type:varchar(32);uniqueIndex;not null"`
	DisplayName   string `gorm:"type:varchar(50)"`
	PasswordHash  string `gorm:"type:varchar(255);not null" json:"-"`
	EmailVerified bool   `gorm:"not null;default:false"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
	ThemeAuto  Theme = "auto"
)

// Profile holds the user-editable settings shown in the profile dialog.
type Profile struct {
	ID              uint64    `gorm:"primaryKey" json:"-"`
	UserID          uint64    `gorm:"uniqueIndex;not null" json:"user_id"`
	DisplayName     string    `gorm:"type:varchar(50)" json:"display_name"`
	Bio             string    `gorm:"type:text" json:"bio"`
	AvatarURL       string    `gorm:"type:varchar(512)" json:"avatar_url"`
	ThemePreference Theme     `gorm:"type:varchar(8);not null;default:auto" json:"theme_preference"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}
