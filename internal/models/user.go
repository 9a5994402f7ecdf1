package models

import "time"

// User is the canonical identity record. Email is the identity key and is stored lower-cased.
type User struct {
	BaseModel

	Email       string `gorm:"uniqueIndex;size:320;not null" json:"email"`
	DisplayName string `gorm:"size:255" json:"display_name"`
	AvatarURL   string `gorm:"size:2048" json:"avatar_url"`

	LastLoginAt *time.Time `json:"last_login_at"`

	Providers []LinkedProvider `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"providers,omitempty"`
}

// HasProvider reports whether the (provider, subject) pair is linked to the user.
func (u *User) HasProvider(provider, subject string) bool {
	for _, link := range u.Providers {
		if link.Provider == provider && link.Subject == subject {
			return true
		}
	}
	return false
}

// ProviderNames lists the distinct providers linked to the user in link order.
func (u *User) ProviderNames() []string {
	seen := make(map[string]struct{}, len(u.Providers))
	names := make([]string, 0, len(u.Providers))
	for _, link := range u.Providers {
		if _, ok := seen[link.Provider]; ok {
			continue
		}
		seen[link.Provider] = struct{}{}
		names = append(names, link.Provider)
	}
	return names
}
