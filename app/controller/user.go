package controller

import (
	"errors"
	"net/http"
	"strconv"

	dto "github.com/vibast-solutions/ms-go-users/app/dto/http"
	"github.com/vibast-solutions/ms-go-users/app/middleware"
	"github.com/vibast-solutions/ms-go-users/app/service"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

type UsersController struct {
	userService *service.UserService
}

func NewUsersController(userService *service.UserService) *UsersController {
	return &UsersController{userService: userService}
}

func (c *UsersController) List(ctx echo.Context) error {
	page, _ := strconv.Atoi(ctx.QueryParam("page"))
	pageSize, _ := strconv.Atoi(ctx.QueryParam("pageSize"))
	search := ctx.QueryParam("search")

	result, err := c.userService.List(ctx.Request().Context(), page, pageSize, search)
	if err != nil {
		logrus.WithError(err).Error("User listing failed")
		return ctx.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "internal server error"})
	}

	items := make([]dto.UserSummary, 0, len(result.Items))
	for _, user := range result.Items {
		items = append(items, dto.NewUserSummary(user))
	}
	return ctx.JSON(http.StatusOK, dto.PagedUsersResponse{
		Items:    items,
		Total:    result.Total,
		Page:     result.Page,
		PageSize: result.PageSize,
	})
}

func (c *UsersController) GetByID(ctx echo.Context) error {
	id, err := pathID(ctx)
	if err != nil {
		return ctx.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "user not found"})
	}

	user, err := c.userService.GetByID(ctx.Request().Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			return ctx.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "user not found"})
		}
		logrus.WithError(err).Error("User lookup failed")
		return ctx.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "internal server error"})
	}
	return ctx.JSON(http.StatusOK, dto.NewUserSummary(user))
}

func (c *UsersController) Create(ctx echo.Context) error {
	var req dto.CreateUserRequest
	if err := ctx.Bind(&req); err != nil {
		return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid request body"})
	}

	user, err := c.userService.Create(ctx.Request().Context(), req.Handle, req.Email, req.Password)
	if err != nil {
		if resp, ok := validationResponse(err); ok {
			return ctx.JSON(http.StatusBadRequest, resp)
		}
		if errors.Is(err, service.ErrDuplicateIdentity) {
			return ctx.JSON(http.StatusConflict, dto.ErrorResponse{Error: "handle or email already registered"})
		}
		logrus.WithError(err).Error("User creation failed")
		return ctx.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "internal server error"})
	}

	logrus.WithFields(logrus.Fields{
		"user_id": user.ID,
		"handle":  user.Handle,
	}).Info("User created")
	return ctx.JSON(http.StatusCreated, dto.NewUserSummary(user))
}

func (c *UsersController) Update(ctx echo.Context) error {
	id, err := pathID(ctx)
	if err != nil {
		return ctx.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "user not found"})
	}

	var req dto.UpdateUserRequest
	if err := ctx.Bind(&req); err != nil {
		return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid request body"})
	}

	patch := service.UserPatch{
		Handle: req.Handle,
		Email:  req.Email,
		Active: req.Active,
	}
	user, err := c.userService.Update(ctx.Request().Context(), id, patch, req.Version)
	if err != nil {
		if resp, ok := validationResponse(err); ok {
			return ctx.JSON(http.StatusBadRequest, resp)
		}
		switch {
		case errors.Is(err, service.ErrUserNotFound):
			return ctx.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "user not found"})
		case errors.Is(err, service.ErrVersionConflict):
			return ctx.JSON(http.StatusConflict, dto.ErrorResponse{Error: "the record was modified by someone else, reload and retry"})
		case errors.Is(err, service.ErrDuplicateIdentity):
			return ctx.JSON(http.StatusConflict, dto.ErrorResponse{Error: "handle or email already registered"})
		}
		logrus.WithError(err).Error("User update failed")
		return ctx.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "internal server error"})
	}
	return ctx.JSON(http.StatusOK, dto.NewUserSummary(user))
}

func (c *UsersController) ChangePassword(ctx echo.Context) error {
	id, err := pathID(ctx)
	if err != nil {
		return ctx.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "user not found"})
	}

	callerID, ok := ctx.Get(middleware.ContextKeyUserID).(uint64)
	if !ok {
		return ctx.JSON(http.StatusUnauthorized, dto.ErrorResponse{Error: "unauthorized"})
	}
	isAdmin, _ := ctx.Get(middleware.ContextKeyAdmin).(bool)

	var req dto.ChangePasswordRequest
	if err := ctx.Bind(&req); err != nil {
		return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid request body"})
	}

	err = c.userService.ChangePassword(ctx.Request().Context(), id, callerID, isAdmin,
		req.CurrentPassword, req.NewPassword, req.ConfirmPassword)
	if err != nil {
		if resp, ok := validationResponse(err); ok {
			return ctx.JSON(http.StatusBadRequest, resp)
		}
		switch {
		case errors.Is(err, service.ErrForbidden):
			return ctx.JSON(http.StatusForbidden, dto.ErrorResponse{Error: "forbidden"})
		case errors.Is(err, service.ErrUserNotFound):
			return ctx.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "user not found"})
		case errors.Is(err, service.ErrPasswordMismatch):
			return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "current password is incorrect"})
		case errors.Is(err, service.ErrSamePassword):
			return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "new password must differ from the current one"})
		case errors.Is(err, service.ErrVersionConflict):
			return ctx.JSON(http.StatusConflict, dto.ErrorResponse{Error: "the record was modified by someone else, reload and retry"})
		}
		logrus.WithError(err).Error("Password change failed")
		return ctx.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "internal server error"})
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (c *UsersController) Delete(ctx echo.Context) error {
	id, err := pathID(ctx)
	if err != nil {
		return ctx.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "user not found"})
	}

	if err := c.userService.SoftDelete(ctx.Request().Context(), id); err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			return ctx.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "user not found"})
		}
		logrus.WithError(err).Error("User delete failed")
		return ctx.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "internal server error"})
	}

	logrus.WithField("user_id", id).Info("User soft-deleted")
	return ctx.NoContent(http.StatusNoContent)
}

func (c *UsersController) Restore(ctx echo.Context) error {
	id, err := pathID(ctx)
	if err != nil {
		return ctx.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "user not found"})
	}

	if err := c.userService.Restore(ctx.Request().Context(), id); err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			return ctx.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "user not found"})
		}
		logrus.WithError(err).Error("User restore failed")
		return ctx.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "internal server error"})
	}

	logrus.WithField("user_id", id).Info("User restored")
	return ctx.NoContent(http.StatusNoContent)
}

func pathID(ctx echo.Context) (uint64, error) {
	return strconv.ParseUint(ctx.Param("id"), 10, 64)
}
