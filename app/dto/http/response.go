package http

import "github.com/vibast-solutions/ms-go-users/app/entity"

// UserSummary is the only user shape that ever leaves the service; it
// carries the opaque version stamp and never the password hash.
type UserSummary struct {
	ID      uint64 `json:"id"`
	Handle  string `json:"handle"`
	Email   string `json:"email"`
	Active  bool   `json:"active"`
	Version string `json:"version"`
}

func NewUserSummary(user *entity.User) UserSummary {
	return UserSummary{
		ID:      user.ID,
		Handle:  user.Handle,
		Email:   user.Email,
		Active:  user.Active,
		Version: user.RowVersion,
	}
}

type AuthResponse struct {
	AccessToken  string      `json:"accessToken"`
	ExpiresIn    int64       `json:"expiresIn"`
	RefreshToken string      `json:"refreshToken"`
	User         UserSummary `json:"user"`
}

type PagedUsersResponse struct {
	Items    []UserSummary `json:"items"`
	Total    int           `json:"total"`
	Page     int           `json:"page"`
	PageSize int           `json:"pageSize"`
}

type ErrorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}
