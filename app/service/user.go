package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vibast-solutions/ms-go-users/app/dto"
	"github.com/vibast-solutions/ms-go-users/app/entity"
	"github.com/vibast-solutions/ms-go-users/app/repository"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// UserPatch carries the optional fields of an admin update; nil means
// "leave as is".
type UserPatch struct {
	Handle *string
	Email  *string
	Active *bool
}

type UserService struct {
	userRepo *repository.UserRepository
}

func NewUserService(userRepo *repository.UserRepository) *UserService {
	return &UserService{userRepo: userRepo}
}

func (s *UserService) List(ctx context.Context, page, pageSize int, search string) (*dto.PagedUsers, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	users, total, err := s.userRepo.List(ctx, page, pageSize, search)
	if err != nil {
		return nil, err
	}
	return &dto.PagedUsers{
		Items:    users,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	}, nil
}

// GetByID also returns soft-deleted users; admin reads need to see them.
func (s *UserService) GetByID(ctx context.Context, id uint64) (*entity.User, error) {
	user, err := s.userRepo.FindByID(ctx, id, true)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

func (s *UserService) Create(ctx context.Context, handle, email, password string) (*entity.User, error) {
	handle = strings.TrimSpace(handle)
	email = NormalizeEmail(email)

	fields := fieldErrors{}
	if len(handle) < minHandleLength {
		fields.add("handle", fmt.Sprintf("handle must be at least %d characters", minHandleLength))
	}
	if !strings.Contains(email, "@") {
		fields.add("email", "email must be a valid address")
	}
	if len(password) < minPasswordLength {
		fields.add("password", fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}
	if err := fields.err(); err != nil {
		return nil, err
	}

	exists, err := s.userRepo.ExistsByHandleOrEmail(ctx, handle, email)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrDuplicateIdentity
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	user := &entity.User{
		Handle:       handle,
		Email:        email,
		PasswordHash: hash,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrDuplicateIdentity
		}
		return nil, err
	}
	return user, nil
}

// Update applies a patch under optimistic concurrency: the caller must
// present the version stamp it last observed, and a stale stamp fails
// even when the patch would change nothing.
func (s *UserService) Update(ctx context.Context, id uint64, patch UserPatch, expectedVersion string) (*entity.User, error) {
	fields := fieldErrors{}
	if strings.TrimSpace(expectedVersion) == "" {
		fields.add("version", "version is required")
	}
	if patch.Handle != nil && len(strings.TrimSpace(*patch.Handle)) < minHandleLength {
		fields.add("handle", fmt.Sprintf("handle must be at least %d characters", minHandleLength))
	}
	if patch.Email != nil && !strings.Contains(NormalizeEmail(*patch.Email), "@") {
		fields.add("email", "email must be a valid address")
	}
	if err := fields.err(); err != nil {
		return nil, err
	}

	user, err := s.userRepo.FindByID(ctx, id, true)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	if patch.Handle != nil {
		user.Handle = strings.TrimSpace(*patch.Handle)
	}
	if patch.Email != nil {
		user.Email = NormalizeEmail(*patch.Email)
	}
	if patch.Active != nil {
		user.Active = *patch.Active
	}

	if err := s.userRepo.Update(ctx, user, expectedVersion); err != nil {
		switch {
		case errors.Is(err, repository.ErrVersionConflict):
			return nil, ErrVersionConflict
		case errors.Is(err, repository.ErrDuplicate):
			return nil, ErrDuplicateIdentity
		}
		return nil, err
	}
	return user, nil
}

// ChangePassword lets a user rotate their own password or an admin set
// anyone's. Only non-admin callers prove knowledge of the current one.
func (s *UserService) ChangePassword(ctx context.Context, id, callerID uint64, isAdmin bool, currentPassword, newPassword, confirmPassword string) error {
	if callerID != id && !isAdmin {
		return ErrForbidden
	}

	user, err := s.userRepo.FindByID(ctx, id, false)
	if err != nil {
		return err
	}
	if user == nil {
		return ErrUserNotFound
	}

	if !isAdmin && !VerifyPassword(currentPassword, user.PasswordHash) {
		return ErrPasswordMismatch
	}

	fields := fieldErrors{}
	if len(newPassword) < minPasswordLength {
		fields.add("newPassword", fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}
	if newPassword != confirmPassword {
		fields.add("confirmPassword", "confirmation does not match the new password")
	}
	if err := fields.err(); err != nil {
		return err
	}

	if !isAdmin && VerifyPassword(newPassword, user.PasswordHash) {
		return ErrSamePassword
	}

	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	user.PasswordHash = hash
	if err := s.userRepo.Update(ctx, user, user.RowVersion); err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			return ErrVersionConflict
		}
		return err
	}
	return nil
}

// SoftDelete hides the user from listings and login but keeps the row,
// so the handle and email stay reserved.
func (s *UserService) SoftDelete(ctx context.Context, id uint64) error {
	user, err := s.userRepo.FindByID(ctx, id, false)
	if err != nil {
		return err
	}
	if user == nil {
		return ErrUserNotFound
	}
	return s.setActive(ctx, id, false)
}

func (s *UserService) Restore(ctx context.Context, id uint64) error {
	user, err := s.userRepo.FindByID(ctx, id, true)
	if err != nil {
		return err
	}
	if user == nil {
		return ErrUserNotFound
	}
	return s.setActive(ctx, id, true)
}

func (s *UserService) setActive(ctx context.Context, id uint64, active bool) error {
	if err := s.userRepo.SetActive(ctx, id, active); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrUserNotFound
		}
		return err
	}
	return nil
}
