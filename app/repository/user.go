package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/vibast-solutions/ms-go-users/app/entity"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
)

var (
	// ErrDuplicate reports a handle or email collision, active rows and
	// soft-deleted rows alike.
	ErrDuplicate = errors.New("handle or email already exists")
	// ErrVersionConflict reports a stale optimistic-concurrency stamp.
	ErrVersionConflict = errors.New("row version conflict")
)

// DBTX is satisfied by both *sql.DB and *sql.Tx so repositories can run
// inside a caller-owned transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const userColumns = `id, handle, email, password_hash, is_admin, active, row_version, created_at, updated_at`

type UserRepository struct {
	db DBTX
}

func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) WithTx(tx *sql.Tx) *UserRepository {
	return &UserRepository{db: tx}
}

func (r *UserRepository) Create(ctx context.Context, user *entity.User) error {
	query := `
		INSERT INTO users (handle, email, password_hash, is_admin, active, row_version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	user.RowVersion = uuid.NewString()
	result, err := r.db.ExecContext(ctx, query,
		user.Handle,
		user.Email,
		user.PasswordHash,
		user.IsAdmin,
		user.Active,
		user.RowVersion,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		return mapDuplicate(err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	user.ID = uint64(id)
	return nil
}

func (r *UserRepository) FindByID(ctx context.Context, id uint64, includeInactive bool) (*entity.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = ?`
	if !includeInactive {
		query += ` AND active = 1`
	}
	return r.findOne(ctx, query, id)
}

func (r *UserRepository) FindByHandle(ctx context.Context, handle string, includeInactive bool) (*entity.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE handle = ?`
	if !includeInactive {
		query += ` AND active = 1`
	}
	return r.findOne(ctx, query, handle)
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string, includeInactive bool) (*entity.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = ?`
	if !includeInactive {
		query += ` AND active = 1`
	}
	return r.findOne(ctx, query, email)
}

// ExistsByHandleOrEmail checks identity uniqueness across every row,
// soft-deleted ones included, so a deleted identity can never be reused
// by a new signup.
func (r *UserRepository) ExistsByHandleOrEmail(ctx context.Context, handle, email string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM users WHERE handle = ? OR email = ?)`
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, handle, email).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// Update writes the mutable columns guarded by the caller's last observed
// row version. The stamp is regenerated on every successful write; a zero
// row count means the stamp was stale.
func (r *UserRepository) Update(ctx context.Context, user *entity.User, expectedVersion string) error {
	query := `
		UPDATE users SET
			handle = ?,
			email = ?,
			password_hash = ?,
			is_admin = ?,
			active = ?,
			row_version = ?,
			updated_at = ?
		WHERE id = ? AND row_version = ?
	`
	newVersion := uuid.NewString()
	user.UpdatedAt = time.Now()
	result, err := r.db.ExecContext(ctx, query,
		user.Handle,
		user.Email,
		user.PasswordHash,
		user.IsAdmin,
		user.Active,
		newVersion,
		user.UpdatedAt,
		user.ID,
		expectedVersion,
	)
	if err != nil {
		return mapDuplicate(err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrVersionConflict
	}
	user.RowVersion = newVersion
	return nil
}

// SetActive flips the soft-delete flag without a version guard; it still
// bumps the row version so concurrent editors observe the change.
func (r *UserRepository) SetActive(ctx context.Context, id uint64, active bool) error {
	query := `UPDATE users SET active = ?, row_version = ?, updated_at = ? WHERE id = ?`
	result, err := r.db.ExecContext(ctx, query, active, uuid.NewString(), time.Now(), id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// List returns a page of active users ordered by handle, optionally
// filtered by a case-insensitive substring match on handle or email.
func (r *UserRepository) List(ctx context.Context, page, pageSize int, search string) ([]*entity.User, int, error) {
	where := `WHERE active = 1`
	args := []any{}
	if s := strings.ToLower(strings.TrimSpace(search)); s != "" {
		where += ` AND (LOWER(handle) LIKE ? OR LOWER(email) LIKE ?)`
		pattern := "%" + s + "%"
		args = append(args, pattern, pattern)
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM users ` + where
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + userColumns + ` FROM users ` + where + ` ORDER BY handle ASC LIMIT ? OFFSET ?`
	args = append(args, pageSize, (page-1)*pageSize)
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var users []*entity.User
	for rows.Next() {
		user := &entity.User{}
		if err := scanUser(rows, user); err != nil {
			return nil, 0, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

func (r *UserRepository) findOne(ctx context.Context, query string, arg any) (*entity.User, error) {
	user := &entity.User{}
	err := scanUser(r.db.QueryRowContext(ctx, query, arg), user)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner, user *entity.User) error {
	return row.Scan(
		&user.ID,
		&user.Handle,
		&user.Email,
		&user.PasswordHash,
		&user.IsAdmin,
		&user.Active,
		&user.RowVersion,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
}

func mapDuplicate(err error) error {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
		return ErrDuplicate
	}
	return err
}
