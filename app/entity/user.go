package entity

import (
	"database/sql"
	"time"
)

type User struct {
	ID           uint64
	Handle       string
	Email        string
	PasswordHash string
	IsAdmin      bool
	Active       bool
	RowVersion   string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// RefreshToken's ID doubles as the bearer secret handed to the client.
type RefreshToken struct {
	ID        string
	UserID    uint64
	ExpiresAt time.Time
	CreatedAt time.Time
	RevokedAt sql.NullTime
	IP        sql.NullString
	UserAgent sql.NullString
}

func (t *RefreshToken) IsActive(now time.Time) bool {
	return !t.RevokedAt.Valid && now.Before(t.ExpiresAt)
}

type PasswordResetToken struct {
	ID        string
	UserID    uint64
	ExpiresAt time.Time
	CreatedAt time.Time
	Used      bool
	IP        sql.NullString
	UserAgent sql.NullString
}

func (t *PasswordResetToken) IsValid(now time.Time) bool {
	return !t.Used && now.Before(t.ExpiresAt)
}
