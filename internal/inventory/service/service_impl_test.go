package service_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/vendora/internal/clock"
	"github.com/smallbiznis/vendora/internal/config"
	inventorydomain "github.com/smallbiznis/vendora/internal/inventory/domain"
	inventoryrepo "github.com/smallbiznis/vendora/internal/inventory/repository"
	inventoryservice "github.com/smallbiznis/vendora/internal/inventory/service"
	"github.com/smallbiznis/vendora/pkg/db/pagination"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_inventory_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	schema := []string{
		`CREATE TABLE game_accounts (
			id BIGINT PRIMARY KEY,
			username TEXT NOT NULL,
			password TEXT NOT NULL,
			package_size INT NOT NULL,
			is_claimed BOOLEAN NOT NULL DEFAULT FALSE,
			claimed_by BIGINT,
			claimed_at TIMESTAMP,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX idx_game_accounts_pool ON game_accounts(package_size, is_claimed, created_at)`,
	}
	for _, stmt := range schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("schema exec failed: %v", err)
		}
	}
	return db
}

func newService(t *testing.T, db *gorm.DB) inventorydomain.Service {
	t.Helper()

	node, err := snowflake.NewNode(20)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	return inventoryservice.NewService(inventoryservice.ServiceParam{
		DB:      db,
		Log:     zap.NewNop(),
		GenID:   node,
		Clock:   clock.NewFakeClock(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)),
		Repo:    inventoryrepo.Provide(),
		Catalog: config.NewStaticCatalogHolder(config.DefaultCatalogConfig()),
	})
}

func TestAddAccountValidatesPackageSize(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	svc := newService(t, db)

	_, err := svc.AddAccount(ctx, inventorydomain.AddAccountRequest{
		Username:    "acct1",
		Password:    "pw",
		PackageSize: 33,
	})
	if err != inventorydomain.ErrInvalidPackageSize {
		t.Fatalf("expected ErrInvalidPackageSize, got %v", err)
	}

	account, err := svc.AddAccount(ctx, inventorydomain.AddAccountRequest{
		Username:    "acct1",
		Password:    "pw",
		PackageSize: 25,
	})
	if err != nil {
		t.Fatalf("add account: %v", err)
	}
	if account.IsClaimed {
		t.Fatalf("new account must start unclaimed")
	}

	var count int64
	if err := db.Raw("SELECT COUNT(1) FROM game_accounts").Scan(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 row, got %d", count)
	}
}

func TestAddAccountRejectsEmptyFields(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	svc := newService(t, db)

	_, err := svc.AddAccount(ctx, inventorydomain.AddAccountRequest{
		Username:    "  ",
		Password:    "pw",
		PackageSize: 25,
	})
	if err != inventorydomain.ErrInvalidAccount {
		t.Fatalf("expected ErrInvalidAccount for blank username, got %v", err)
	}

	_, err = svc.AddAccount(ctx, inventorydomain.AddAccountRequest{
		Username:    "acct",
		Password:    "",
		PackageSize: 25,
	})
	if err != inventorydomain.ErrInvalidAccount {
		t.Fatalf("expected ErrInvalidAccount for empty password, got %v", err)
	}
}

func TestBulkAddIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	svc := newService(t, db)

	_, err := svc.BulkAdd(ctx, inventorydomain.BulkAddRequest{
		Accounts: []inventorydomain.AddAccountRequest{
			{Username: "a", Password: "pw", PackageSize: 25},
			{Username: "b", Password: "pw", PackageSize: 999},
		},
	})
	if err != inventorydomain.ErrInvalidPackageSize {
		t.Fatalf("expected ErrInvalidPackageSize, got %v", err)
	}

	var count int64
	if err := db.Raw("SELECT COUNT(1) FROM game_accounts").Scan(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no rows after failed bulk add, got %d", count)
	}

	n, err := svc.BulkAdd(ctx, inventorydomain.BulkAddRequest{
		Accounts: []inventorydomain.AddAccountRequest{
			{Username: "a", Password: "pw", PackageSize: 25},
			{Username: "b", Password: "pw", PackageSize: 50},
			{Username: "c", Password: "pw", PackageSize: 50},
		},
	})
	if err != nil {
		t.Fatalf("bulk add: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 inserted, got %d", n)
	}
}

func TestDeleteAccountRefusesClaimedRows(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	svc := newService(t, db)

	account, err := svc.AddAccount(ctx, inventorydomain.AddAccountRequest{
		Username:    "acct",
		Password:    "pw",
		PackageSize: 50,
	})
	if err != nil {
		t.Fatalf("add account: %v", err)
	}

	if err := db.Exec("UPDATE game_accounts SET is_claimed = TRUE WHERE id = ?", account.ID).Error; err != nil {
		t.Fatalf("mark claimed: %v", err)
	}

	if err := svc.DeleteAccount(ctx, account.ID.String()); err != inventorydomain.ErrAccountClaimed {
		t.Fatalf("expected ErrAccountClaimed, got %v", err)
	}

	if err := svc.DeleteAccount(ctx, "not-an-id"); err != inventorydomain.ErrInvalidAccount {
		t.Fatalf("expected ErrInvalidAccount, got %v", err)
	}

	node, _ := snowflake.NewNode(21)
	if err := svc.DeleteAccount(ctx, node.Generate().String()); err != inventorydomain.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListAccountsPagesInInsertionOrder(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	svc := newService(t, db)

	if _, err := svc.BulkAdd(ctx, inventorydomain.BulkAddRequest{
		Accounts: []inventorydomain.AddAccountRequest{
			{Username: "a", Password: "pw", PackageSize: 25},
			{Username: "b", Password: "pw", PackageSize: 25},
			{Username: "c", Password: "pw", PackageSize: 50},
		},
	}); err != nil {
		t.Fatalf("bulk add: %v", err)
	}

	first, info, err := svc.ListAccounts(ctx, pagination.Pagination{PageSize: 2})
	if err != nil {
		t.Fatalf("list accounts: %v", err)
	}
	if len(first) != 2 {
		t.Fatalf("expected 2 accounts on first page, got %d", len(first))
	}
	if !info.HasMore || info.NextPageToken == "" {
		t.Fatalf("expected a next page, got %+v", info)
	}

	second, info, err := svc.ListAccounts(ctx, pagination.Pagination{PageSize: 2, PageToken: info.NextPageToken})
	if err != nil {
		t.Fatalf("list second page: %v", err)
	}
	if len(second) != 1 {
		t.Fatalf("expected 1 account on second page, got %d", len(second))
	}
	if info.HasMore {
		t.Fatalf("second page must be the last page")
	}
	if second[0].Username != "c" {
		t.Fatalf("expected account c on second page, got %s", second[0].Username)
	}

	if _, _, err := svc.ListAccounts(ctx, pagination.Pagination{PageToken: "%%%"}); err != inventorydomain.ErrInvalidAccount {
		t.Fatalf("expected ErrInvalidAccount for bad token, got %v", err)
	}
}

func TestStockCountsOnlyCountUnclaimed(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	svc := newService(t, db)

	if _, err := svc.BulkAdd(ctx, inventorydomain.BulkAddRequest{
		Accounts: []inventorydomain.AddAccountRequest{
			{Username: "a", Password: "pw", PackageSize: 25},
			{Username: "b", Password: "pw", PackageSize: 25},
			{Username: "c", Password: "pw", PackageSize: 100},
		},
	}); err != nil {
		t.Fatalf("bulk add: %v", err)
	}

	if err := db.Exec("UPDATE game_accounts SET is_claimed = TRUE WHERE username = 'b'").Error; err != nil {
		t.Fatalf("mark claimed: %v", err)
	}

	counts, err := svc.StockCounts(ctx)
	if err != nil {
		t.Fatalf("stock counts: %v", err)
	}

	got := make(map[int]int64, len(counts))
	for _, c := range counts {
		got[c.PackageSize] = c.Count
	}
	if got[25] != 1 || got[100] != 1 {
		t.Fatalf("unexpected counts: %+v", got)
	}
}
