package models

import (
	"time"

	"gorm.io/datatypes"
)

// LinkedProvider associates an OAuth provider account with a user.
// A (provider, subject) pair belongs to at most one user.
type LinkedProvider struct {
	BaseModel

	UserID   string `gorm:"type:varchar(36);index;not null" json:"-"`
	Provider string `gorm:"size:32;not null;uniqueIndex:idx_linked_provider_subject" json:"provider"`
	Subject  string `gorm:"size:255;not null;uniqueIndex:idx_linked_provider_subject" json:"-"`
	Email    string `gorm:"size:320" json:"email"`

	Claims      datatypes.JSONMap `json:"-"`
	LastLoginAt *time.Time        `json:"last_login_at"`
}
