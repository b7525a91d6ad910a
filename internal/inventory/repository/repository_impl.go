package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	inventorydomain "github.com/smallbiznis/vendora/internal/inventory/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() inventorydomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, account *inventorydomain.GameAccount) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO game_accounts (
			id, username, password, package_size, is_claimed, claimed_by, claimed_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		account.ID,
		account.Username,
		account.Password,
		account.PackageSize,
		account.IsClaimed,
		account.ClaimedBy,
		account.ClaimedAt,
		account.CreatedAt,
	).Error
}

func (r *repo) BulkInsert(ctx context.Context, db *gorm.DB, accounts []inventorydomain.GameAccount) error {
	for i := range accounts {
		if err := r.Insert(ctx, db, &accounts[i]); err != nil {
			return err
		}
	}
	return nil
}

func (r *repo) SelectUnclaimedIDs(ctx context.Context, db *gorm.DB, packageSize, limit int) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	err := db.WithContext(ctx).Raw(
		`SELECT id FROM game_accounts
		 WHERE package_size = ? AND is_claimed = FALSE
		 ORDER BY created_at ASC, id ASC
		 LIMIT ?`,
		packageSize,
		limit,
	).Scan(&ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *repo) Claim(ctx context.Context, db *gorm.DB, ids []snowflake.ID, claimedBy *snowflake.ID, claimedAt time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	res := db.WithContext(ctx).Exec(
		`UPDATE game_accounts
		 SET is_claimed = TRUE, claimed_by = ?, claimed_at = ?
		 WHERE id IN ? AND is_claimed = FALSE`,
		claimedBy,
		claimedAt,
		ids,
	)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *repo) ListByIDs(ctx context.Context, db *gorm.DB, ids []snowflake.ID) ([]inventorydomain.GameAccount, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var accounts []inventorydomain.GameAccount
	err := db.WithContext(ctx).Raw(
		`SELECT id, username, password, package_size, is_claimed, claimed_by, claimed_at, created_at
		 FROM game_accounts
		 WHERE id IN ?
		 ORDER BY created_at ASC, id ASC`,
		ids,
	).Scan(&accounts).Error
	if err != nil {
		return nil, err
	}
	return accounts, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, afterID snowflake.ID, limit int) ([]inventorydomain.GameAccount, error) {
	var accounts []inventorydomain.GameAccount
	err := db.WithContext(ctx).Raw(
		`SELECT id, username, password, package_size, is_claimed, claimed_by, claimed_at, created_at
		 FROM game_accounts
		 WHERE id > ?
		 ORDER BY id ASC
		 LIMIT ?`,
		afterID,
		limit,
	).Scan(&accounts).Error
	if err != nil {
		return nil, err
	}
	return accounts, nil
}

func (r *repo) StockCounts(ctx context.Context, db *gorm.DB) ([]inventorydomain.StockCount, error) {
	var counts []inventorydomain.StockCount
	err := db.WithContext(ctx).Raw(
		`SELECT package_size, COUNT(*) AS count
		 FROM game_accounts
		 WHERE is_claimed = FALSE
		 GROUP BY package_size
		 ORDER BY package_size ASC`,
	).Scan(&counts).Error
	if err != nil {
		return nil, err
	}
	return counts, nil
}

func (r *repo) CountUnclaimed(ctx context.Context, db *gorm.DB, packageSize int) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(*) FROM game_accounts
		 WHERE package_size = ? AND is_claimed = FALSE`,
		packageSize,
	).Scan(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *repo) DeleteUnclaimed(ctx context.Context, db *gorm.DB, id snowflake.ID) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`DELETE FROM game_accounts WHERE id = ? AND is_claimed = FALSE`,
		id,
	)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*inventorydomain.GameAccount, error) {
	var account inventorydomain.GameAccount
	err := db.WithContext(ctx).Raw(
		`SELECT id, username, password, package_size, is_claimed, claimed_by, claimed_at, created_at
		 FROM game_accounts WHERE id = ?`,
		id,
	).Scan(&account).Error
	if err != nil {
		return nil, err
	}
	if account.ID == 0 {
		return nil, nil
	}
	return &account, nil
}
