package models

import "time"

// PendingOTP is the single live one-time passcode challenge for an email.
// Challenge changes on every issuance so a stale consumer cannot remove a newer challenge.
type PendingOTP struct {
	Email             string    `gorm:"primaryKey;size:320"`
	Challenge         string    `gorm:"size:36;not null"`
	CodeDigest        string    `gorm:"size:64;not null"`
	ExpiresAt         time.Time `gorm:"index;not null"`
	AttemptsRemaining int       `gorm:"not null"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
