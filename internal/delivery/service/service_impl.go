package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/vendora/internal/clock"
	deliverydomain "github.com/smallbiznis/vendora/internal/delivery/domain"
	inventorydomain "github.com/smallbiznis/vendora/internal/inventory/domain"
	"github.com/smallbiznis/vendora/internal/observability/metrics"
	purchasedomain "github.com/smallbiznis/vendora/internal/purchase/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db            *gorm.DB
	log           *zap.Logger
	genID         *snowflake.Node
	clock         clock.Clock
	repo          deliverydomain.Repository
	purchaseRepo  purchasedomain.Repository
	inventoryRepo inventorydomain.Repository
	metrics       *metrics.Metrics
}

type ServiceParam struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	GenID         *snowflake.Node
	Clock         clock.Clock
	Repo          deliverydomain.Repository
	PurchaseRepo  purchasedomain.Repository
	InventoryRepo inventorydomain.Repository
	Metrics       *metrics.Metrics `optional:"true"`
}

func NewService(p ServiceParam) deliverydomain.Service {
	return &Service{
		db:            p.DB,
		log:           p.Log.Named("delivery.service"),
		genID:         p.GenID,
		clock:         p.Clock,
		repo:          p.Repo,
		purchaseRepo:  p.PurchaseRepo,
		inventoryRepo: p.InventoryRepo,
		metrics:       p.Metrics,
	}
}

func (s *Service) DeliverAccounts(ctx context.Context, purchaseID string) ([]deliverydomain.Credential, error) {
	id, err := parsePurchaseID(purchaseID)
	if err != nil {
		return nil, err
	}

	purchase, err := s.purchaseRepo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if purchase == nil {
		return nil, deliverydomain.ErrPurchaseNotFound
	}
	if purchase.AccountsDelivered {
		return s.deliveredCredentials(ctx, purchase.ID, deliverydomain.ErrAlreadyDelivered)
	}
	if purchase.PackageSize <= 0 {
		return nil, deliverydomain.ErrInvalidPurchase
	}

	size := purchase.PackageSize
	now := s.clock.Now()

	// Cheap stock check before opening the transaction; the claim
	// update still re-verifies under concurrency.
	available, err := s.inventoryRepo.CountUnclaimed(ctx, s.db, size)
	if err != nil {
		return nil, err
	}
	if available < int64(size) {
		s.log.Warn("insufficient stock",
			zap.Int("package_size", size),
			zap.Int64("available", available),
		)
		return nil, deliverydomain.ErrInsufficientStock
	}

	var claimedIDs []snowflake.ID
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ids, err := s.inventoryRepo.SelectUnclaimedIDs(ctx, tx, size, size)
		if err != nil {
			return err
		}
		if len(ids) < size {
			return deliverydomain.ErrInsufficientStock
		}

		claimed, err := s.inventoryRepo.Claim(ctx, tx, ids, purchase.CustomerID, now)
		if err != nil {
			return err
		}
		if claimed != int64(size) {
			// Some candidate rows were claimed by a concurrent
			// delivery between select and update.
			return deliverydomain.ErrInsufficientStock
		}

		deliveries := make([]deliverydomain.AccountDelivery, 0, size)
		for _, accountID := range ids {
			deliveries = append(deliveries, deliverydomain.AccountDelivery{
				ID:         s.genID.Generate(),
				PurchaseID: purchase.ID,
				AccountID:  accountID,
				CreatedAt:  now,
			})
		}
		if err := s.repo.BulkInsert(ctx, tx, deliveries); err != nil {
			return err
		}

		affected, err := s.purchaseRepo.MarkDelivered(ctx, tx, purchase.ID)
		if err != nil {
			return err
		}
		if affected == 0 {
			return deliverydomain.ErrAlreadyDelivered
		}

		claimedIDs = ids
		return nil
	})
	if err != nil {
		if err == deliverydomain.ErrAlreadyDelivered {
			return s.deliveredCredentials(ctx, purchase.ID, deliverydomain.ErrAlreadyDelivered)
		}
		return nil, err
	}

	accounts, err := s.inventoryRepo.ListByIDs(ctx, s.db, claimedIDs)
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordDelivery(ctx, size)
		s.metrics.RecordAccountsClaimed(ctx, size, len(accounts))
	}
	s.log.Info("accounts delivered",
		zap.Int64("purchase_id", int64(purchase.ID)),
		zap.Int("package_size", size),
		zap.Int("count", len(accounts)),
	)
	return credentials(accounts), nil
}

func (s *Service) DeliveredAccounts(ctx context.Context, purchaseID string) ([]deliverydomain.Credential, error) {
	id, err := parsePurchaseID(purchaseID)
	if err != nil {
		return nil, err
	}

	purchase, err := s.purchaseRepo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if purchase == nil {
		return nil, deliverydomain.ErrPurchaseNotFound
	}

	creds, err := s.deliveredCredentials(ctx, purchase.ID, nil)
	if err != nil {
		return nil, err
	}
	return creds, nil
}

// deliveredCredentials loads the credentials recorded for the purchase
// and returns them together with tail, which callers set to
// ErrAlreadyDelivered when the set accompanies a rejected delivery.
func (s *Service) deliveredCredentials(ctx context.Context, purchaseID snowflake.ID, tail error) ([]deliverydomain.Credential, error) {
	accountIDs, err := s.repo.ListAccountIDs(ctx, s.db, purchaseID)
	if err != nil {
		return nil, err
	}
	accounts, err := s.inventoryRepo.ListByIDs(ctx, s.db, accountIDs)
	if err != nil {
		return nil, err
	}
	return credentials(accounts), tail
}

func credentials(accounts []inventorydomain.GameAccount) []deliverydomain.Credential {
	creds := make([]deliverydomain.Credential, 0, len(accounts))
	for _, a := range accounts {
		creds = append(creds, deliverydomain.Credential{
			ID:       a.ID,
			Username: a.Username,
			Password: a.Password,
		})
	}
	return creds
}

func parsePurchaseID(raw string) (snowflake.ID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, deliverydomain.ErrInvalidPurchase
	}
	id, err := snowflake.ParseString(raw)
	if err != nil {
		return 0, deliverydomain.ErrInvalidPurchase
	}
	return id, nil
}
