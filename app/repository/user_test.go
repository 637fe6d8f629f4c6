package repository_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/vibast-solutions/ms-go-users/app/entity"
	"github.com/vibast-solutions/ms-go-users/app/repository"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
)

const (
	insertUserQuery        = `(?s)INSERT INTO users \(handle, email, password_hash, is_admin, active, row_version, created_at, updated_at\)\s+VALUES \(\?, \?, \?, \?, \?, \?, \?, \?\)`
	findUserByIDQuery      = `(?s)SELECT id, handle, email, password_hash, is_admin, active, row_version, created_at, updated_at FROM users WHERE id = \?$`
	findActiveUserByID     = `(?s)SELECT id, handle, email, password_hash, is_admin, active, row_version, created_at, updated_at FROM users WHERE id = \? AND active = 1`
	findActiveUserByHandle = `(?s)SELECT id, handle, email, password_hash, is_admin, active, row_version, created_at, updated_at FROM users WHERE handle = \? AND active = 1`
	existsByHandleOrEmail  = `(?s)SELECT EXISTS\(SELECT 1 FROM users WHERE handle = \? OR email = \?\)`
	updateUserQuery        = `(?s)UPDATE users SET\s+handle = \?,\s+email = \?,\s+password_hash = \?,\s+is_admin = \?,\s+active = \?,\s+row_version = \?,\s+updated_at = \?\s+WHERE id = \? AND row_version = \?`
	setActiveQuery         = `(?s)UPDATE users SET active = \?, row_version = \?, updated_at = \? WHERE id = \?`
	countActiveUsersQuery  = `(?s)SELECT COUNT\(\*\) FROM users WHERE active = 1`
	listActiveUsersQuery   = `(?s)SELECT id, handle, email, password_hash, is_admin, active, row_version, created_at, updated_at FROM users WHERE active = 1 ORDER BY handle ASC LIMIT \? OFFSET \?`
	countSearchUsersQuery  = `(?s)SELECT COUNT\(\*\) FROM users WHERE active = 1 AND \(LOWER\(handle\) LIKE \? OR LOWER\(email\) LIKE \?\)`
	listSearchUsersQuery   = `(?s)SELECT id, handle, email, password_hash, is_admin, active, row_version, created_at, updated_at FROM users WHERE active = 1 AND \(LOWER\(handle\) LIKE \? OR LOWER\(email\) LIKE \?\) ORDER BY handle ASC LIMIT \? OFFSET \?`
)

var userColumns = []string{
	"id",
	"handle",
	"email",
	"password_hash",
	"is_admin",
	"active",
	"row_version",
	"created_at",
	"updated_at",
}

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, func()) {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	return db, mock, func() { _ = db.Close() }
}

func userRows(now time.Time) *sqlmock.Rows {
	return sqlmock.NewRows(userColumns).AddRow(
		uint64(1),
		"alice",
		"alice@example.com",
		"hash",
		false,
		true,
		"11111111-1111-1111-1111-111111111111",
		now,
		now,
	)
}

func TestUserRepository_Create(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()

	repo := repository.NewUserRepository(db)
	now := time.Now()
	user := &entity.User{
		Handle:       "alice",
		Email:        "alice@example.com",
		PasswordHash: "hash",
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	mock.ExpectExec(insertUserQuery).
		WithArgs(
			user.Handle,
			user.Email,
			user.PasswordHash,
			user.IsAdmin,
			user.Active,
			sqlmock.AnyArg(),
			user.CreatedAt,
			user.UpdatedAt,
		).
		WillReturnResult(sqlmock.NewResult(7, 1))

	if err := repo.Create(context.Background(), user); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if user.ID != 7 {
		t.Fatalf("expected ID 7, got %d", user.ID)
	}
	if user.RowVersion == "" {
		t.Fatal("expected a row version to be assigned")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUserRepository_CreateDuplicate(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()

	repo := repository.NewUserRepository(db)
	now := time.Now()
	user := &entity.User{
		Handle:       "alice",
		Email:        "alice@example.com",
		PasswordHash: "hash",
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	mock.ExpectExec(insertUserQuery).
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "duplicate entry"})

	err := repo.Create(context.Background(), user)
	if !errors.Is(err, repository.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUserRepository_FindByIDExcludesInactive(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()

	repo := repository.NewUserRepository(db)

	mock.ExpectQuery(findActiveUserByID).
		WithArgs(uint64(1)).
		WillReturnError(sql.ErrNoRows)

	user, err := repo.FindByID(context.Background(), 1, false)
	if err != nil {
		t.Fatalf("find failed: %v", err)
	}
	if user != nil {
		t.Fatalf("expected nil for inactive user, got %+v", user)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUserRepository_FindByIDIncludesInactive(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()

	repo := repository.NewUserRepository(db)
	now := time.Now()

	mock.ExpectQuery(findUserByIDQuery).
		WithArgs(uint64(1)).
		WillReturnRows(userRows(now))

	user, err := repo.FindByID(context.Background(), 1, true)
	if err != nil {
		t.Fatalf("find failed: %v", err)
	}
	if user == nil || user.Handle != "alice" {
		t.Fatalf("unexpected user: %+v", user)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUserRepository_FindByHandle(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()

	repo := repository.NewUserRepository(db)
	now := time.Now()

	mock.ExpectQuery(findActiveUserByHandle).
		WithArgs("alice").
		WillReturnRows(userRows(now))

	user, err := repo.FindByHandle(context.Background(), "alice", false)
	if err != nil {
		t.Fatalf("find failed: %v", err)
	}
	if user == nil || user.ID != 1 {
		t.Fatalf("unexpected user: %+v", user)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUserRepository_ExistsByHandleOrEmail(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()

	repo := repository.NewUserRepository(db)

	mock.ExpectQuery(existsByHandleOrEmail).
		WithArgs("alice", "alice@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := repo.ExistsByHandleOrEmail(context.Background(), "alice", "alice@example.com")
	if err != nil {
		t.Fatalf("exists check failed: %v", err)
	}
	if !exists {
		t.Fatal("expected exists to be true")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUserRepository_Update(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()

	repo := repository.NewUserRepository(db)
	now := time.Now()
	user := &entity.User{
		ID:           1,
		Handle:       "alice",
		Email:        "alice@example.com",
		PasswordHash: "hash",
		Active:       true,
		RowVersion:   "11111111-1111-1111-1111-111111111111",
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	mock.ExpectExec(updateUserQuery).
		WithArgs(
			user.Handle,
			user.Email,
			user.PasswordHash,
			user.IsAdmin,
			user.Active,
			sqlmock.AnyArg(),
			sqlmock.AnyArg(),
			user.ID,
			"11111111-1111-1111-1111-111111111111",
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Update(context.Background(), user, "11111111-1111-1111-1111-111111111111"); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if user.RowVersion == "11111111-1111-1111-1111-111111111111" {
		t.Fatal("expected row version to be regenerated")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUserRepository_UpdateStaleVersion(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()

	repo := repository.NewUserRepository(db)
	user := &entity.User{
		ID:         1,
		Handle:     "alice",
		Email:      "alice@example.com",
		RowVersion: "22222222-2222-2222-2222-222222222222",
	}

	mock.ExpectExec(updateUserQuery).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Update(context.Background(), user, "11111111-1111-1111-1111-111111111111")
	if !errors.Is(err, repository.ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUserRepository_SetActiveMissing(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()

	repo := repository.NewUserRepository(db)

	mock.ExpectExec(setActiveQuery).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.SetActive(context.Background(), 99, false)
	if !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUserRepository_List(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()

	repo := repository.NewUserRepository(db)
	now := time.Now()

	mock.ExpectQuery(countActiveUsersQuery).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(listActiveUsersQuery).
		WithArgs(20, 0).
		WillReturnRows(userRows(now))

	users, total, err := repo.List(context.Background(), 1, 20, "")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if total != 1 || len(users) != 1 {
		t.Fatalf("expected one user, got total=%d len=%d", total, len(users))
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUserRepository_ListWithSearch(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()

	repo := repository.NewUserRepository(db)
	now := time.Now()

	mock.ExpectQuery(countSearchUsersQuery).
		WithArgs("%ali%", "%ali%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(listSearchUsersQuery).
		WithArgs("%ali%", "%ali%", 20, 20).
		WillReturnRows(userRows(now))

	users, total, err := repo.List(context.Background(), 2, 20, " Ali ")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if total != 1 || len(users) != 1 {
		t.Fatalf("expected one user, got total=%d len=%d", total, len(users))
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
