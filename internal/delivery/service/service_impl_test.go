package service_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/vendora/internal/clock"
	deliverydomain "github.com/smallbiznis/vendora/internal/delivery/domain"
	deliveryrepo "github.com/smallbiznis/vendora/internal/delivery/repository"
	deliveryservice "github.com/smallbiznis/vendora/internal/delivery/service"
	inventoryrepo "github.com/smallbiznis/vendora/internal/inventory/repository"
	purchaserepo "github.com/smallbiznis/vendora/internal/purchase/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_delivery_%d?mode=memory&cache=shared", time.Now().UnixNano())
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
		`CREATE TABLE purchases (
			id BIGINT PRIMARY KEY,
			payment_id TEXT NOT NULL,
			payment_type TEXT NOT NULL DEFAULT 'onetime',
			package_size INT NOT NULL DEFAULT 0,
			amount NUMERIC(12,2) NOT NULL DEFAULT 0,
			currency TEXT NOT NULL DEFAULT 'USD',
			status TEXT NOT NULL DEFAULT 'completed',
			customer_email TEXT,
			access_key TEXT,
			accounts_delivered BOOLEAN NOT NULL DEFAULT FALSE,
			customer_id BIGINT,
			provider_data TEXT,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE UNIQUE INDEX ux_purchases_payment_id ON purchases(payment_id)`,
		`CREATE TABLE account_deliveries (
			id BIGINT PRIMARY KEY,
			purchase_id BIGINT NOT NULL,
			account_id BIGINT NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE UNIQUE INDEX ux_account_deliveries_purchase_account ON account_deliveries(purchase_id, account_id)`,
	}
	for _, stmt := range schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("schema exec failed: %v", err)
		}
	}
	return db
}

type deliveryFixture struct {
	svc  deliverydomain.Service
	db   *gorm.DB
	node *snowflake.Node
}

func newFixture(t *testing.T) *deliveryFixture {
	t.Helper()

	db := setupTestDB(t)
	node, err := snowflake.NewNode(30)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}

	svc := deliveryservice.NewService(deliveryservice.ServiceParam{
		DB:            db,
		Log:           zap.NewNop(),
		GenID:         node,
		Clock:         clock.NewFakeClock(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)),
		Repo:          deliveryrepo.Provide(),
		PurchaseRepo:  purchaserepo.Provide(),
		InventoryRepo: inventoryrepo.Provide(),
	})
	return &deliveryFixture{svc: svc, db: db, node: node}
}

func (f *deliveryFixture) seedAccounts(t *testing.T, packageSize, n int) {
	t.Helper()

	base := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		err := f.db.Exec(
			`INSERT INTO game_accounts (id, username, password, package_size, is_claimed, created_at)
			 VALUES (?, ?, ?, ?, FALSE, ?)`,
			f.node.Generate(),
			fmt.Sprintf("acct_%d_%d", packageSize, i),
			"pw",
			packageSize,
			base.Add(time.Duration(i)*time.Second),
		).Error
		if err != nil {
			t.Fatalf("seed account: %v", err)
		}
	}
}

func (f *deliveryFixture) seedPurchase(t *testing.T, packageSize int) snowflake.ID {
	t.Helper()

	id := f.node.Generate()
	err := f.db.Exec(
		`INSERT INTO purchases (id, payment_id, payment_type, package_size, amount, currency, status, accounts_delivered, created_at)
		 VALUES (?, ?, 'onetime', ?, 9.99, 'USD', 'completed', FALSE, ?)`,
		id,
		fmt.Sprintf("PAY-%d", id),
		packageSize,
		time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
	).Error
	if err != nil {
		t.Fatalf("seed purchase: %v", err)
	}
	return id
}

func countWhere(t *testing.T, db *gorm.DB, query string, args ...any) int64 {
	t.Helper()

	var count int64
	if err := db.Raw(query, args...).Scan(&count).Error; err != nil {
		t.Fatalf("count query: %v", err)
	}
	return count
}

func TestDeliverAccountsClaimsExactlyPackageSize(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedAccounts(t, 25, 30)
	purchaseID := f.seedPurchase(t, 25)

	creds, err := f.svc.DeliverAccounts(ctx, purchaseID.String())
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if len(creds) != 25 {
		t.Fatalf("expected 25 credentials, got %d", len(creds))
	}

	if got := countWhere(t, f.db, "SELECT COUNT(1) FROM game_accounts WHERE is_claimed = TRUE"); got != 25 {
		t.Fatalf("expected 25 claimed accounts, got %d", got)
	}
	if got := countWhere(t, f.db, "SELECT COUNT(1) FROM game_accounts WHERE is_claimed = FALSE"); got != 5 {
		t.Fatalf("expected 5 unclaimed accounts, got %d", got)
	}
	if got := countWhere(t, f.db, "SELECT COUNT(1) FROM account_deliveries WHERE purchase_id = ?", purchaseID); got != 25 {
		t.Fatalf("expected 25 delivery rows, got %d", got)
	}
	if got := countWhere(t, f.db, "SELECT COUNT(1) FROM purchases WHERE id = ? AND accounts_delivered = TRUE", purchaseID); got != 1 {
		t.Fatalf("purchase not marked delivered")
	}
}

func TestDeliverAccountsIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedAccounts(t, 25, 30)
	purchaseID := f.seedPurchase(t, 25)

	first, err := f.svc.DeliverAccounts(ctx, purchaseID.String())
	if err != nil {
		t.Fatalf("first deliver: %v", err)
	}

	second, err := f.svc.DeliverAccounts(ctx, purchaseID.String())
	if !errors.Is(err, deliverydomain.ErrAlreadyDelivered) {
		t.Fatalf("expected ErrAlreadyDelivered, got %v", err)
	}
	if len(second) != len(first) {
		t.Fatalf("expected same size set, got %d vs %d", len(second), len(first))
	}

	firstSet := make(map[string]bool, len(first))
	for _, c := range first {
		firstSet[c.Username] = true
	}
	for _, c := range second {
		if !firstSet[c.Username] {
			t.Fatalf("second delivery returned account %s outside the first set", c.Username)
		}
	}

	// No additional accounts were claimed by the repeat call.
	if got := countWhere(t, f.db, "SELECT COUNT(1) FROM game_accounts WHERE is_claimed = TRUE"); got != 25 {
		t.Fatalf("expected 25 claimed accounts after repeat, got %d", got)
	}
}

func TestDeliverAccountsInsufficientStockClaimsNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedAccounts(t, 50, 49)
	purchaseID := f.seedPurchase(t, 50)

	_, err := f.svc.DeliverAccounts(ctx, purchaseID.String())
	if !errors.Is(err, deliverydomain.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}

	if got := countWhere(t, f.db, "SELECT COUNT(1) FROM game_accounts WHERE is_claimed = TRUE"); got != 0 {
		t.Fatalf("expected no claimed accounts, got %d", got)
	}
	if got := countWhere(t, f.db, "SELECT COUNT(1) FROM account_deliveries"); got != 0 {
		t.Fatalf("expected no delivery rows, got %d", got)
	}
	if got := countWhere(t, f.db, "SELECT COUNT(1) FROM purchases WHERE accounts_delivered = TRUE"); got != 0 {
		t.Fatalf("purchase must stay undelivered")
	}
}

func TestDeliverAccountsLostClaimRaceRollsBack(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedAccounts(t, 25, 25)
	purchaseID := f.seedPurchase(t, 25)

	// A competing delivery grabs part of the candidate set before this
	// purchase's conditional update runs.
	err := f.db.Exec(
		`UPDATE game_accounts SET is_claimed = TRUE, claimed_at = ?
		 WHERE id IN (SELECT id FROM game_accounts ORDER BY created_at ASC LIMIT 5)`,
		time.Now().UTC(),
	).Error
	if err != nil {
		t.Fatalf("simulate competing claim: %v", err)
	}

	_, err = f.svc.DeliverAccounts(ctx, purchaseID.String())
	if !errors.Is(err, deliverydomain.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}

	// Only the competing claimant's 5 rows stay claimed.
	if got := countWhere(t, f.db, "SELECT COUNT(1) FROM game_accounts WHERE is_claimed = TRUE"); got != 5 {
		t.Fatalf("expected 5 claimed accounts, got %d", got)
	}
	if got := countWhere(t, f.db, "SELECT COUNT(1) FROM account_deliveries"); got != 0 {
		t.Fatalf("expected no delivery rows, got %d", got)
	}
}

func TestSequentialDeliveriesClaimDisjointSets(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedAccounts(t, 25, 55)
	firstPurchase := f.seedPurchase(t, 25)
	secondPurchase := f.seedPurchase(t, 25)

	first, err := f.svc.DeliverAccounts(ctx, firstPurchase.String())
	if err != nil {
		t.Fatalf("first deliver: %v", err)
	}
	second, err := f.svc.DeliverAccounts(ctx, secondPurchase.String())
	if err != nil {
		t.Fatalf("second deliver: %v", err)
	}

	seen := make(map[string]bool, len(first))
	for _, c := range first {
		seen[c.Username] = true
	}
	for _, c := range second {
		if seen[c.Username] {
			t.Fatalf("account %s delivered to both purchases", c.Username)
		}
	}

	if got := countWhere(t, f.db, "SELECT COUNT(1) FROM game_accounts WHERE is_claimed = FALSE"); got != 5 {
		t.Fatalf("expected 5 unclaimed accounts left, got %d", got)
	}

	// A third delivery cannot be satisfied and must not disturb stock.
	thirdPurchase := f.seedPurchase(t, 25)
	_, err = f.svc.DeliverAccounts(ctx, thirdPurchase.String())
	if !errors.Is(err, deliverydomain.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
	if got := countWhere(t, f.db, "SELECT COUNT(1) FROM game_accounts WHERE is_claimed = FALSE"); got != 5 {
		t.Fatalf("stock disturbed by failed delivery, got %d unclaimed", got)
	}
}

func TestDeliverAccountsUnknownPurchase(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.DeliverAccounts(ctx, f.node.Generate().String())
	if !errors.Is(err, deliverydomain.ErrPurchaseNotFound) {
		t.Fatalf("expected ErrPurchaseNotFound, got %v", err)
	}

	_, err = f.svc.DeliverAccounts(ctx, "")
	if !errors.Is(err, deliverydomain.ErrInvalidPurchase) {
		t.Fatalf("expected ErrInvalidPurchase, got %v", err)
	}
}

func TestDeliveredAccountsReturnsRecordedSet(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedAccounts(t, 25, 25)
	purchaseID := f.seedPurchase(t, 25)

	delivered, err := f.svc.DeliverAccounts(ctx, purchaseID.String())
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}

	fetched, err := f.svc.DeliveredAccounts(ctx, purchaseID.String())
	if err != nil {
		t.Fatalf("delivered accounts: %v", err)
	}
	if len(fetched) != len(delivered) {
		t.Fatalf("expected %d credentials, got %d", len(delivered), len(fetched))
	}

	wantPasswords := make(map[string]string, len(delivered))
	for _, c := range delivered {
		wantPasswords[c.Username] = c.Password
	}
	for _, c := range fetched {
		if wantPasswords[c.Username] != c.Password {
			t.Fatalf("credential mismatch for %s", c.Username)
		}
	}
}

func TestCredentialsCarryAccountIDs(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedAccounts(t, 25, 25)
	purchaseID := f.seedPurchase(t, 25)

	creds, err := f.svc.DeliverAccounts(ctx, purchaseID.String())
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}

	for _, c := range creds {
		if c.ID == 0 {
			t.Fatalf("credential for %s missing account id", c.Username)
		}
		got := countWhere(t, f.db,
			"SELECT COUNT(1) FROM game_accounts WHERE id = ? AND username = ? AND is_claimed = TRUE", c.ID, c.Username)
		if got != 1 {
			t.Fatalf("credential id %d does not match a claimed account row", c.ID)
		}
	}
}
