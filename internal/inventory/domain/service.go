package domain

import (
	"context"
	"errors"

	"github.com/smallbiznis/vendora/pkg/db/pagination"
)

type AddAccountRequest struct {
	Username    string `json:"username"`
	Password    string `json:"password"`
	PackageSize int    `json:"package_size"`
}

type BulkAddRequest struct {
	Accounts []AddAccountRequest `json:"accounts"`
}

type Service interface {
	AddAccount(ctx context.Context, req AddAccountRequest) (*GameAccount, error)
	BulkAdd(ctx context.Context, req BulkAddRequest) (int, error)
	DeleteAccount(ctx context.Context, id string) error
	ListAccounts(ctx context.Context, page pagination.Pagination) ([]GameAccount, pagination.PageInfo, error)
	StockCounts(ctx context.Context) ([]StockCount, error)
}

var (
	ErrNotFound           = errors.New("account_not_found")
	ErrAccountClaimed     = errors.New("account_claimed")
	ErrInvalidAccount     = errors.New("invalid_account")
	ErrInvalidPackageSize = errors.New("invalid_package_size")
)
