package dto

import "github.com/vibast-solutions/ms-go-users/app/entity"

type AuthResult struct {
	AccessToken  string
	ExpiresIn    int64
	RefreshToken string
	User         *entity.User
}

type PagedUsers struct {
	Items    []*entity.User
	Total    int
	Page     int
	PageSize int
}
