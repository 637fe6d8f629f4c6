package controller

import (
	"errors"
	"net/http"

	dto "github.com/vibast-solutions/ms-go-users/app/dto/http"
	"github.com/vibast-solutions/ms-go-users/app/middleware"
	"github.com/vibast-solutions/ms-go-users/app/service"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

type AuthController struct {
	authService *service.AuthService
}

func NewAuthController(authService *service.AuthService) *AuthController {
	return &AuthController{authService: authService}
}

func (c *AuthController) Login(ctx echo.Context) error {
	var req dto.LoginRequest
	if err := ctx.Bind(&req); err != nil {
		return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid request body"})
	}

	if req.Handle == "" || req.Password == "" {
		return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "handle and password are required"})
	}

	result, err := c.authService.Login(ctx.Request().Context(), req.Handle, req.Password, requestMeta(ctx))
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			logrus.WithField("handle", req.Handle).Debug("Login rejected")
			return ctx.JSON(http.StatusUnauthorized, dto.ErrorResponse{Error: "invalid credentials"})
		}
		logrus.WithError(err).Error("Login failed")
		return ctx.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "internal server error"})
	}

	return ctx.JSON(http.StatusOK, dto.AuthResponse{
		AccessToken:  result.AccessToken,
		ExpiresIn:    result.ExpiresIn,
		RefreshToken: result.RefreshToken,
		User:         dto.NewUserSummary(result.User),
	})
}

func (c *AuthController) Signup(ctx echo.Context) error {
	var req dto.SignupRequest
	if err := ctx.Bind(&req); err != nil {
		return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid request body"})
	}

	user, err := c.authService.Signup(ctx.Request().Context(), req.Handle, req.Email, req.Password)
	if err != nil {
		if resp, ok := validationResponse(err); ok {
			return ctx.JSON(http.StatusBadRequest, resp)
		}
		if errors.Is(err, service.ErrDuplicateIdentity) {
			return ctx.JSON(http.StatusConflict, dto.ErrorResponse{Error: "handle or email already registered"})
		}
		logrus.WithError(err).Error("Signup failed")
		return ctx.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "internal server error"})
	}

	logrus.WithFields(logrus.Fields{
		"user_id": user.ID,
		"handle":  user.Handle,
	}).Info("User signed up")
	return ctx.JSON(http.StatusCreated, dto.NewUserSummary(user))
}

func (c *AuthController) Refresh(ctx echo.Context) error {
	var req dto.RefreshRequest
	if err := ctx.Bind(&req); err != nil {
		return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid request body"})
	}

	result, err := c.authService.Refresh(ctx.Request().Context(), req.RefreshToken, requestMeta(ctx))
	if err != nil {
		if errors.Is(err, service.ErrInvalidToken) {
			return ctx.JSON(http.StatusUnauthorized, dto.ErrorResponse{Error: "invalid or expired refresh token"})
		}
		logrus.WithError(err).Error("Refresh failed")
		return ctx.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "internal server error"})
	}

	return ctx.JSON(http.StatusOK, dto.AuthResponse{
		AccessToken:  result.AccessToken,
		ExpiresIn:    result.ExpiresIn,
		RefreshToken: result.RefreshToken,
		User:         dto.NewUserSummary(result.User),
	})
}

func (c *AuthController) Logout(ctx echo.Context) error {
	var req dto.LogoutRequest
	if err := ctx.Bind(&req); err != nil {
		return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid request body"})
	}

	if err := c.authService.Logout(ctx.Request().Context(), req.RefreshToken); err != nil {
		logrus.WithError(err).Error("Logout failed")
		return ctx.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "internal server error"})
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (c *AuthController) Me(ctx echo.Context) error {
	userID, ok := ctx.Get(middleware.ContextKeyUserID).(uint64)
	if !ok {
		return ctx.JSON(http.StatusUnauthorized, dto.ErrorResponse{Error: "unauthorized"})
	}

	user, err := c.authService.Me(ctx.Request().Context(), userID)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			return ctx.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "user not found"})
		}
		logrus.WithError(err).Error("Me lookup failed")
		return ctx.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "internal server error"})
	}
	return ctx.JSON(http.StatusOK, dto.NewUserSummary(user))
}

// Forgot answers 204 whether or not the address belongs to an account.
func (c *AuthController) Forgot(ctx echo.Context) error {
	var req dto.ForgotPasswordRequest
	if err := ctx.Bind(&req); err != nil {
		return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid request body"})
	}

	if err := c.authService.ForgotPassword(ctx.Request().Context(), req.Email, requestMeta(ctx)); err != nil {
		logrus.WithError(err).Error("Forgot password failed")
		return ctx.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "internal server error"})
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (c *AuthController) Reset(ctx echo.Context) error {
	var req dto.ResetPasswordRequest
	if err := ctx.Bind(&req); err != nil {
		return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid request body"})
	}

	err := c.authService.ResetPassword(ctx.Request().Context(), req.Token, req.NewPassword, req.ConfirmPassword)
	if err != nil {
		if resp, ok := validationResponse(err); ok {
			return ctx.JSON(http.StatusBadRequest, resp)
		}
		if errors.Is(err, service.ErrInvalidResetToken) {
			return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid or expired reset token"})
		}
		logrus.WithError(err).Error("Password reset failed")
		return ctx.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "internal server error"})
	}
	return ctx.NoContent(http.StatusNoContent)
}

func requestMeta(ctx echo.Context) service.RequestMeta {
	return service.RequestMeta{
		IP:        ctx.RealIP(),
		UserAgent: ctx.Request().UserAgent(),
	}
}

func validationResponse(err error) (*dto.ErrorResponse, bool) {
	var vErr *service.ValidationError
	if errors.As(err, &vErr) {
		return &dto.ErrorResponse{Error: "validation failed", Fields: vErr.Fields}, true
	}
	return nil, false
}
