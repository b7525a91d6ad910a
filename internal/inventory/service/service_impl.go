package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/vendora/internal/clock"
	"github.com/smallbiznis/vendora/internal/config"
	inventorydomain "github.com/smallbiznis/vendora/internal/inventory/domain"
	"github.com/smallbiznis/vendora/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	repo    inventorydomain.Repository
	catalog *config.CatalogHolder
}

type ServiceParam struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Repo    inventorydomain.Repository
	Catalog *config.CatalogHolder
}

func NewService(p ServiceParam) inventorydomain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("inventory.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		repo:    p.Repo,
		catalog: p.Catalog,
	}
}

func (s *Service) AddAccount(ctx context.Context, req inventorydomain.AddAccountRequest) (*inventorydomain.GameAccount, error) {
	account, err := s.buildAccount(req)
	if err != nil {
		return nil, err
	}

	if err := s.repo.Insert(ctx, s.db, account); err != nil {
		return nil, err
	}

	s.log.Info("account added to pool",
		zap.Int64("account_id", int64(account.ID)),
		zap.Int("package_size", account.PackageSize),
	)
	return account, nil
}

func (s *Service) BulkAdd(ctx context.Context, req inventorydomain.BulkAddRequest) (int, error) {
	if len(req.Accounts) == 0 {
		return 0, inventorydomain.ErrInvalidAccount
	}

	accounts := make([]inventorydomain.GameAccount, 0, len(req.Accounts))
	for _, item := range req.Accounts {
		account, err := s.buildAccount(item)
		if err != nil {
			return 0, err
		}
		accounts = append(accounts, *account)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.repo.BulkInsert(ctx, tx, accounts)
	})
	if err != nil {
		return 0, err
	}

	s.log.Info("accounts bulk added", zap.Int("count", len(accounts)))
	return len(accounts), nil
}

func (s *Service) DeleteAccount(ctx context.Context, id string) error {
	accountID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil {
		return inventorydomain.ErrInvalidAccount
	}

	account, err := s.repo.FindByID(ctx, s.db, accountID)
	if err != nil {
		return err
	}
	if account == nil {
		return inventorydomain.ErrNotFound
	}
	if account.IsClaimed {
		return inventorydomain.ErrAccountClaimed
	}

	affected, err := s.repo.DeleteUnclaimed(ctx, s.db, accountID)
	if err != nil {
		return err
	}
	if affected == 0 {
		// Claimed between the read and the delete.
		return inventorydomain.ErrAccountClaimed
	}
	return nil
}

func (s *Service) ListAccounts(ctx context.Context, page pagination.Pagination) ([]inventorydomain.GameAccount, pagination.PageInfo, error) {
	limit := page.PageSize
	if limit <= 0 {
		limit = 25
	}
	if limit > 250 {
		limit = 250
	}

	var afterID snowflake.ID
	if page.PageToken != "" {
		cursor, err := pagination.DecodeCursor(page.PageToken)
		if err != nil {
			return nil, pagination.PageInfo{}, inventorydomain.ErrInvalidAccount
		}
		id, err := snowflake.ParseString(cursor.ID)
		if err != nil {
			return nil, pagination.PageInfo{}, inventorydomain.ErrInvalidAccount
		}
		afterID = id
	}

	accounts, err := s.repo.List(ctx, s.db, afterID, limit+1)
	if err != nil {
		return nil, pagination.PageInfo{}, err
	}

	accounts, pageInfo := pagination.BuildPageInfo(accounts, limit, func(a inventorydomain.GameAccount) string {
		token, _ := pagination.EncodeCursor(pagination.Cursor{ID: a.ID.String()})
		return token
	})
	return accounts, pageInfo, nil
}

func (s *Service) StockCounts(ctx context.Context) ([]inventorydomain.StockCount, error) {
	return s.repo.StockCounts(ctx, s.db)
}

func (s *Service) buildAccount(req inventorydomain.AddAccountRequest) (*inventorydomain.GameAccount, error) {
	username := strings.TrimSpace(req.Username)
	if username == "" || req.Password == "" {
		return nil, inventorydomain.ErrInvalidAccount
	}
	if !s.catalog.KnownSize(req.PackageSize) {
		return nil, inventorydomain.ErrInvalidPackageSize
	}

	return &inventorydomain.GameAccount{
		ID:          s.genID.Generate(),
		Username:    username,
		Password:    req.Password,
		PackageSize: req.PackageSize,
		IsClaimed:   false,
		CreatedAt:   s.clock.Now(),
	}, nil
}
