package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/vibast-solutions/ms-go-users/app/entity"
)

const refreshTokenColumns = `id, user_id, expires_at, created_at, revoked_at, ip, user_agent`

type RefreshTokenRepository struct {
	db DBTX
}

func NewRefreshTokenRepository(db DBTX) *RefreshTokenRepository {
	return &RefreshTokenRepository{db: db}
}

func (r *RefreshTokenRepository) WithTx(tx *sql.Tx) *RefreshTokenRepository {
	return &RefreshTokenRepository{db: tx}
}

func (r *RefreshTokenRepository) Create(ctx context.Context, token *entity.RefreshToken) error {
	query := `
		INSERT INTO refresh_tokens (id, user_id, expires_at, created_at, ip, user_agent)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		token.ID,
		token.UserID,
		token.ExpiresAt,
		token.CreatedAt,
		token.IP,
		token.UserAgent,
	)
	return err
}

// FindActive returns nil for missing, revoked and expired tokens alike;
// callers must treat all three as the same authentication failure.
func (r *RefreshTokenRepository) FindActive(ctx context.Context, id string) (*entity.RefreshToken, error) {
	query := `SELECT ` + refreshTokenColumns + ` FROM refresh_tokens WHERE id = ?`
	return r.findActive(ctx, query, id)
}

// FindActiveForUpdate locks the row for the duration of the enclosing
// transaction so rotation cannot race a concurrent refresh.
func (r *RefreshTokenRepository) FindActiveForUpdate(ctx context.Context, id string) (*entity.RefreshToken, error) {
	query := `SELECT ` + refreshTokenColumns + ` FROM refresh_tokens WHERE id = ? FOR UPDATE`
	return r.findActive(ctx, query, id)
}

func (r *RefreshTokenRepository) findActive(ctx context.Context, query, id string) (*entity.RefreshToken, error) {
	token := &entity.RefreshToken{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&token.ID,
		&token.UserID,
		&token.ExpiresAt,
		&token.CreatedAt,
		&token.RevokedAt,
		&token.IP,
		&token.UserAgent,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !token.IsActive(time.Now()) {
		return nil, nil
	}
	return token, nil
}

func (r *RefreshTokenRepository) Revoke(ctx context.Context, id string) (int64, error) {
	query := `UPDATE refresh_tokens SET revoked_at = ? WHERE id = ? AND revoked_at IS NULL`
	result, err := r.db.ExecContext(ctx, query, time.Now(), id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *RefreshTokenRepository) RevokeAllForUser(ctx context.Context, userID uint64) error {
	query := `UPDATE refresh_tokens SET revoked_at = ? WHERE user_id = ? AND revoked_at IS NULL`
	_, err := r.db.ExecContext(ctx, query, time.Now(), userID)
	return err
}

const resetTokenColumns = `id, user_id, expires_at, created_at, used, ip, user_agent`

type PasswordResetTokenRepository struct {
	db DBTX
}

func NewPasswordResetTokenRepository(db DBTX) *PasswordResetTokenRepository {
	return &PasswordResetTokenRepository{db: db}
}

func (r *PasswordResetTokenRepository) WithTx(tx *sql.Tx) *PasswordResetTokenRepository {
	return &PasswordResetTokenRepository{db: tx}
}

func (r *PasswordResetTokenRepository) Create(ctx context.Context, token *entity.PasswordResetToken) error {
	query := `
		INSERT INTO password_reset_tokens (id, user_id, expires_at, created_at, used, ip, user_agent)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		token.ID,
		token.UserID,
		token.ExpiresAt,
		token.CreatedAt,
		token.Used,
		token.IP,
		token.UserAgent,
	)
	return err
}

// FindValid returns nil for missing, used and expired tokens alike.
func (r *PasswordResetTokenRepository) FindValid(ctx context.Context, id string) (*entity.PasswordResetToken, error) {
	query := `SELECT ` + resetTokenColumns + ` FROM password_reset_tokens WHERE id = ?`
	return r.findValid(ctx, query, id)
}

func (r *PasswordResetTokenRepository) FindValidForUpdate(ctx context.Context, id string) (*entity.PasswordResetToken, error) {
	query := `SELECT ` + resetTokenColumns + ` FROM password_reset_tokens WHERE id = ? FOR UPDATE`
	return r.findValid(ctx, query, id)
}

func (r *PasswordResetTokenRepository) findValid(ctx context.Context, query, id string) (*entity.PasswordResetToken, error) {
	token := &entity.PasswordResetToken{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&token.ID,
		&token.UserID,
		&token.ExpiresAt,
		&token.CreatedAt,
		&token.Used,
		&token.IP,
		&token.UserAgent,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !token.IsValid(time.Now()) {
		return nil, nil
	}
	return token, nil
}

// MarkUsed consumes the token exactly once; a zero row count means a
// concurrent reset already claimed it.
func (r *PasswordResetTokenRepository) MarkUsed(ctx context.Context, id string) (int64, error) {
	query := `UPDATE password_reset_tokens SET used = 1 WHERE id = ? AND used = 0`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
