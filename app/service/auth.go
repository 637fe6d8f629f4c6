package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/vibast-solutions/ms-go-users/app/dto"
	"github.com/vibast-solutions/ms-go-users/app/entity"
	"github.com/vibast-solutions/ms-go-users/app/repository"
	"github.com/vibast-solutions/ms-go-users/config"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	minHandleLength   = 2
	minPasswordLength = 8
)

type Claims struct {
	UserID uint64 `json:"user_id"`
	Handle string `json:"handle"`
	Admin  bool   `json:"admin"`
	jwt.RegisteredClaims
}

// RequestMeta is advisory issuing context recorded alongside tokens; it
// is never security-enforced.
type RequestMeta struct {
	IP        string
	UserAgent string
}

// Mailer delivers notification email; the transport behind it is opaque
// to the auth flows.
type Mailer interface {
	Send(to, subject, htmlBody string) error
}

// AsyncRunner dispatches fire-and-forget work, mainly outbound email.
type AsyncRunner func(task func())

type AuthService struct {
	db          *sql.DB
	userRepo    *repository.UserRepository
	refreshRepo *repository.RefreshTokenRepository
	resetRepo   *repository.PasswordResetTokenRepository
	mailer      Mailer
	cfg         *config.Config
	async       AsyncRunner
}

func NewAuthService(
	db *sql.DB,
	userRepo *repository.UserRepository,
	refreshRepo *repository.RefreshTokenRepository,
	resetRepo *repository.PasswordResetTokenRepository,
	mailer Mailer,
	cfg *config.Config,
) *AuthService {
	return &AuthService{
		db:          db,
		userRepo:    userRepo,
		refreshRepo: refreshRepo,
		resetRepo:   resetRepo,
		mailer:      mailer,
		cfg:         cfg,
		async:       func(task func()) { go task() },
	}
}

// WithAsyncRunner overrides the dispatcher used for outbound email;
// tests use it to run sends inline.
func (s *AuthService) WithAsyncRunner(runner AsyncRunner) *AuthService {
	s.async = runner
	return s
}

// Login never tells the caller whether the handle or the password was
// wrong.
func (s *AuthService) Login(ctx context.Context, handle, password string, meta RequestMeta) (*dto.AuthResult, error) {
	user, err := s.userRepo.FindByHandle(ctx, strings.TrimSpace(handle), false)
	if err != nil {
		return nil, err
	}
	if user == nil || !VerifyPassword(password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	accessToken, expiresIn, err := s.mintAccessToken(user)
	if err != nil {
		return nil, err
	}

	refreshToken, err := s.issueRefreshToken(ctx, s.refreshRepo, user.ID, meta)
	if err != nil {
		return nil, err
	}

	return &dto.AuthResult{
		AccessToken:  accessToken,
		ExpiresIn:    expiresIn,
		RefreshToken: refreshToken,
		User:         user,
	}, nil
}

func (s *AuthService) Signup(ctx context.Context, handle, email, password string) (*entity.User, error) {
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

// Refresh rotates the presented token: revoke and reissue commit in the
// same transaction, so a crash can never leave both tokens usable.
func (s *AuthService) Refresh(ctx context.Context, rawToken string, meta RequestMeta) (*dto.AuthResult, error) {
	tokenID, err := uuid.Parse(strings.TrimSpace(rawToken))
	if err != nil {
		return nil, ErrInvalidToken
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	txRefreshRepo := s.refreshRepo.WithTx(tx)
	token, err := txRefreshRepo.FindActiveForUpdate(ctx, tokenID.String())
	if err != nil {
		return nil, err
	}
	if token == nil {
		return nil, ErrInvalidToken
	}

	user, err := s.userRepo.WithTx(tx).FindByID(ctx, token.UserID, false)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrInvalidToken
	}

	revoked, err := txRefreshRepo.Revoke(ctx, token.ID)
	if err != nil {
		return nil, err
	}
	if revoked == 0 {
		return nil, ErrInvalidToken
	}

	newRefreshToken, err := s.issueRefreshToken(ctx, txRefreshRepo, user.ID, meta)
	if err != nil {
		return nil, err
	}

	accessToken, expiresIn, err := s.mintAccessToken(user)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return &dto.AuthResult{
		AccessToken:  accessToken,
		ExpiresIn:    expiresIn,
		RefreshToken: newRefreshToken,
		User:         user,
	}, nil
}

// Logout is idempotent and reports nothing about whether the token
// existed.
func (s *AuthService) Logout(ctx context.Context, rawToken string) error {
	tokenID, err := uuid.Parse(strings.TrimSpace(rawToken))
	if err != nil {
		return nil
	}
	_, err = s.refreshRepo.Revoke(ctx, tokenID.String())
	return err
}

// ForgotPassword issues a reset token and mails the link. An unknown or
// inactive email takes the same success path as a known one.
func (s *AuthService) ForgotPassword(ctx context.Context, email string, meta RequestMeta) error {
	user, err := s.userRepo.FindByEmail(ctx, NormalizeEmail(email), false)
	if err != nil {
		return err
	}
	if user == nil {
		return nil
	}

	now := time.Now()
	token := &entity.PasswordResetToken{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		ExpiresAt: now.Add(s.cfg.ResetTokenTTL),
		CreatedAt: now,
		IP:        nullString(meta.IP),
		UserAgent: nullString(meta.UserAgent),
	}
	if err := s.resetRepo.Create(ctx, token); err != nil {
		return err
	}

	link := fmt.Sprintf("%s?token=%s", s.cfg.ResetURL, token.ID)
	to := user.Email
	s.async(func() {
		if err := s.mailer.Send(to, "Password reset", resetEmailBody(link, s.cfg.ResetTokenTTL)); err != nil {
			logrus.WithError(err).WithField("user_id", token.UserID).Error("Failed to send password reset email")
		}
	})
	return nil
}

// ResetPassword consumes the token, stores the new hash and revokes all
// of the user's refresh tokens in a single transaction.
func (s *AuthService) ResetPassword(ctx context.Context, rawToken, newPassword, confirmPassword string) error {
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

	tokenID, err := uuid.Parse(strings.TrimSpace(rawToken))
	if err != nil {
		return ErrInvalidResetToken
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	txResetRepo := s.resetRepo.WithTx(tx)
	token, err := txResetRepo.FindValidForUpdate(ctx, tokenID.String())
	if err != nil {
		return err
	}
	if token == nil {
		return ErrInvalidResetToken
	}

	txUserRepo := s.userRepo.WithTx(tx)
	user, err := txUserRepo.FindByID(ctx, token.UserID, false)
	if err != nil {
		return err
	}
	if user == nil {
		return ErrInvalidResetToken
	}

	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	user.PasswordHash = hash
	if err := txUserRepo.Update(ctx, user, user.RowVersion); err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			return ErrVersionConflict
		}
		return err
	}

	used, err := txResetRepo.MarkUsed(ctx, token.ID)
	if err != nil {
		return err
	}
	if used == 0 {
		return ErrInvalidResetToken
	}

	if err := s.refreshRepo.WithTx(tx).RevokeAllForUser(ctx, user.ID); err != nil {
		return err
	}

	return tx.Commit()
}

// Me resolves the authenticated user; soft-deleted accounts are treated
// as gone.
func (s *AuthService) Me(ctx context.Context, userID uint64) (*entity.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID, false)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// VerifyAccessToken collapses every failure mode into ErrInvalidToken so
// the response cannot be used as an oracle.
func (s *AuthService) VerifyAccessToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.cfg.JWTSecret), nil
	},
		jwt.WithIssuer(s.cfg.JWTIssuer),
		jwt.WithAudience(s.cfg.JWTAudience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (s *AuthService) mintAccessToken(user *entity.User) (string, int64, error) {
	ttl := s.cfg.AccessTokenTTL
	now := time.Now()
	claims := &Claims{
		UserID: user.ID,
		Handle: user.Handle,
		Admin:  user.IsAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.cfg.JWTIssuer,
			Audience:  jwt.ClaimStrings{s.cfg.JWTAudience},
			Subject:   strconv.FormatUint(user.ID, 10),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return "", 0, err
	}
	return signed, int64(ttl.Seconds()), nil
}

func (s *AuthService) issueRefreshToken(ctx context.Context, repo *repository.RefreshTokenRepository, userID uint64, meta RequestMeta) (string, error) {
	now := time.Now()
	token := &entity.RefreshToken{
		ID:        uuid.NewString(),
		UserID:    userID,
		ExpiresAt: now.Add(s.cfg.RefreshTokenTTL),
		CreatedAt: now,
		IP:        nullString(meta.IP),
		UserAgent: nullString(meta.UserAgent),
	}
	if err := repo.Create(ctx, token); err != nil {
		return "", err
	}
	return token.ID, nil
}

// NormalizeEmail trims and lowercases an address; uniqueness checks and
// lookups always run on the normalized form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func nullString(value string) sql.NullString {
	if value == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}

func resetEmailBody(link string, ttl time.Duration) string {
	return fmt.Sprintf(`<p>We received a request to reset the password for your account.</p>
<p>If you made this request, open the link below to choose a new password:</p>
<p><a href="%s">%s</a></p>
<p>The link expires in %s. If you did not ask for a reset you can ignore this message.</p>`,
		link, link, ttl)
}
