package service_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/vendora/internal/accesskey"
	"github.com/smallbiznis/vendora/internal/clock"
	"github.com/smallbiznis/vendora/internal/config"
	customerrepo "github.com/smallbiznis/vendora/internal/customer/repository"
	purchaserepo "github.com/smallbiznis/vendora/internal/purchase/repository"
	subscriptionrepo "github.com/smallbiznis/vendora/internal/subscription/repository"
	webhookdomain "github.com/smallbiznis/vendora/internal/webhook/domain"
	webhookrepo "github.com/smallbiznis/vendora/internal/webhook/repository"
	webhookservice "github.com/smallbiznis/vendora/internal/webhook/service"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fakeVerifier struct {
	ok    bool
	err   error
	calls int
}

func (f *fakeVerifier) VerifyWebhookSignature(ctx context.Context, payload []byte, headers http.Header) (bool, error) {
	f.calls++
	return f.ok, f.err
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_webhook_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	schema := []string{
		`CREATE TABLE payment_events (
			id BIGINT PRIMARY KEY,
			provider TEXT NOT NULL,
			provider_event_id TEXT NOT NULL,
			event_type TEXT NOT NULL,
			payload TEXT,
			received_at TIMESTAMP NOT NULL,
			processed_at TIMESTAMP
		)`,
		`CREATE UNIQUE INDEX ux_payment_events_provider_event ON payment_events(provider, provider_event_id)`,
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
		`CREATE TABLE subscriptions (
			id BIGINT PRIMARY KEY,
			subscription_id TEXT NOT NULL,
			plan_id TEXT,
			status TEXT NOT NULL DEFAULT 'active',
			customer_email TEXT,
			access_key TEXT,
			next_billing_date TIMESTAMP,
			last_payment_date TIMESTAMP,
			customer_id BIGINT,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE UNIQUE INDEX ux_subscriptions_subscription_id ON subscriptions(subscription_id)`,
		`CREATE TABLE customers (
			id BIGINT PRIMARY KEY,
			email TEXT NOT NULL,
			role TEXT NOT NULL DEFAULT 'member',
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE UNIQUE INDEX ux_customers_email ON customers(email)`,
	}
	for _, stmt := range schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("schema exec failed: %v", err)
		}
	}
	return db
}

type webhookFixture struct {
	svc      webhookdomain.Service
	db       *gorm.DB
	node     *snowflake.Node
	verifier *fakeVerifier
	clock    *clock.FakeClock
}

func newFixture(t *testing.T, cfg config.Config) *webhookFixture {
	t.Helper()

	db := setupTestDB(t)
	node, err := snowflake.NewNode(40)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}

	verifier := &fakeVerifier{ok: true}
	fc := clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	svc := webhookservice.NewService(webhookservice.Params{
		DB:               db,
		Log:              zap.NewNop(),
		GenID:            node,
		Clock:            fc,
		Cfg:              cfg,
		Verifier:         verifier,
		Repo:             webhookrepo.Provide(),
		PurchaseRepo:     purchaserepo.Provide(),
		SubscriptionRepo: subscriptionrepo.Provide(),
		CustomerRepo:     customerrepo.Provide(),
	})
	return &webhookFixture{svc: svc, db: db, node: node, verifier: verifier, clock: fc}
}

func count(t *testing.T, db *gorm.DB, query string, args ...any) int64 {
	t.Helper()

	var n int64
	if err := db.Raw(query, args...).Scan(&n).Error; err != nil {
		t.Fatalf("count query: %v", err)
	}
	return n
}

func TestOrderApprovedRecordsPurchase(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, config.Config{})

	payload := []byte(`{
		"id": "WH-1",
		"event_type": "CHECKOUT.ORDER.APPROVED",
		"resource": {
			"id": "ORDER-100",
			"payer": {"email_address": "Buyer@Example.com"},
			"purchase_units": [{"custom_id": "25", "amount": {"value": "9.99", "currency_code": "USD"}}]
		}
	}`)

	if err := f.svc.IngestWebhook(ctx, payload, http.Header{}); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	if got := count(t, f.db, "SELECT COUNT(1) FROM purchases WHERE payment_id = 'ORDER-100'"); got != 1 {
		t.Fatalf("expected 1 purchase, got %d", got)
	}

	var row struct {
		PackageSize   int
		Amount        float64
		CustomerEmail string
		AccessKey     string
		PaymentType   string
	}
	err := f.db.Raw(
		"SELECT package_size, amount, customer_email, access_key, payment_type FROM purchases WHERE payment_id = 'ORDER-100'",
	).Scan(&row).Error
	if err != nil {
		t.Fatalf("scan purchase: %v", err)
	}
	if row.PackageSize != 25 {
		t.Fatalf("expected package size 25, got %d", row.PackageSize)
	}
	if row.Amount != 9.99 {
		t.Fatalf("expected amount 9.99, got %v", row.Amount)
	}
	if row.CustomerEmail != "buyer@example.com" {
		t.Fatalf("email not normalized: %q", row.CustomerEmail)
	}
	if !accesskey.Valid(row.AccessKey) {
		t.Fatalf("invalid access key %q", row.AccessKey)
	}
	if row.PaymentType != "onetime" {
		t.Fatalf("expected onetime payment type, got %q", row.PaymentType)
	}
}

func TestReplayedEventWritesOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, config.Config{})

	payload := []byte(`{
		"id": "WH-2",
		"event_type": "CHECKOUT.ORDER.APPROVED",
		"resource": {
			"id": "ORDER-200",
			"payer": {"email_address": "a@b.c"},
			"purchase_units": [{"custom_id": "50", "amount": {"value": "17.99", "currency_code": "USD"}}]
		}
	}`)

	if err := f.svc.IngestWebhook(ctx, payload, http.Header{}); err != nil {
		t.Fatalf("first ingest: %v", err)
	}
	err := f.svc.IngestWebhook(ctx, payload, http.Header{})
	if !errors.Is(err, webhookdomain.ErrEventAlreadyProcessed) {
		t.Fatalf("expected ErrEventAlreadyProcessed, got %v", err)
	}

	if got := count(t, f.db, "SELECT COUNT(1) FROM purchases"); got != 1 {
		t.Fatalf("expected exactly 1 purchase after replay, got %d", got)
	}
	if got := count(t, f.db, "SELECT COUNT(1) FROM payment_events"); got != 1 {
		t.Fatalf("expected exactly 1 event row after replay, got %d", got)
	}
}

func TestFailedDispatchRetriedOnRedelivery(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, config.Config{})

	payload := []byte(`{
		"id": "WH-13",
		"event_type": "CHECKOUT.ORDER.APPROVED",
		"resource": {
			"id": "ORDER-400",
			"payer": {"email_address": "a@b.c"},
			"purchase_units": [{"custom_id": "25", "amount": {"value": "9.99", "currency_code": "USD"}}]
		}
	}`)

	// Take the purchase store away so dispatch fails after the event
	// row is recorded.
	if err := f.db.Exec("ALTER TABLE purchases RENAME TO purchases_hidden").Error; err != nil {
		t.Fatalf("hide table: %v", err)
	}
	if err := f.svc.IngestWebhook(ctx, payload, http.Header{}); err == nil {
		t.Fatalf("expected store failure to surface")
	}
	if err := f.db.Exec("ALTER TABLE purchases_hidden RENAME TO purchases").Error; err != nil {
		t.Fatalf("restore table: %v", err)
	}

	if got := count(t, f.db, "SELECT COUNT(1) FROM payment_events WHERE provider_event_id = 'WH-13' AND processed_at IS NULL"); got != 1 {
		t.Fatalf("failed event must stay unprocessed, got %d", got)
	}

	// The provider redelivers; the unprocessed event gets another run
	// instead of a duplicate ack.
	if err := f.svc.IngestWebhook(ctx, payload, http.Header{}); err != nil {
		t.Fatalf("redelivery of unprocessed event must succeed, got %v", err)
	}
	if got := count(t, f.db, "SELECT COUNT(1) FROM purchases WHERE payment_id = 'ORDER-400'"); got != 1 {
		t.Fatalf("expected purchase row after redelivery, got %d", got)
	}
	if got := count(t, f.db, "SELECT COUNT(1) FROM payment_events WHERE provider_event_id = 'WH-13' AND processed_at IS NOT NULL"); got != 1 {
		t.Fatalf("redelivered event must be marked processed, got %d", got)
	}

	// A third delivery after success is a plain replay.
	err := f.svc.IngestWebhook(ctx, payload, http.Header{})
	if !errors.Is(err, webhookdomain.ErrEventAlreadyProcessed) {
		t.Fatalf("expected ErrEventAlreadyProcessed after success, got %v", err)
	}
	if got := count(t, f.db, "SELECT COUNT(1) FROM purchases"); got != 1 {
		t.Fatalf("replay must not duplicate the purchase, got %d", got)
	}
}

func TestSameOrderDifferentEventIDWritesOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, config.Config{})

	template := `{
		"id": "%s",
		"event_type": "CHECKOUT.ORDER.APPROVED",
		"resource": {
			"id": "ORDER-300",
			"payer": {"email_address": "a@b.c"},
			"purchase_units": [{"custom_id": "25", "amount": {"value": "9.99", "currency_code": "USD"}}]
		}
	}`

	if err := f.svc.IngestWebhook(ctx, []byte(fmt.Sprintf(template, "WH-3a")), http.Header{}); err != nil {
		t.Fatalf("first ingest: %v", err)
	}
	if err := f.svc.IngestWebhook(ctx, []byte(fmt.Sprintf(template, "WH-3b")), http.Header{}); err != nil {
		t.Fatalf("second ingest: %v", err)
	}

	// Resource-level dedup on payment_id holds even when the provider
	// assigns fresh event ids.
	if got := count(t, f.db, "SELECT COUNT(1) FROM purchases WHERE payment_id = 'ORDER-300'"); got != 1 {
		t.Fatalf("expected 1 purchase, got %d", got)
	}
}

func TestSubscriptionActivatedRegistersNewBuyer(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, config.Config{})

	payload := []byte(`{
		"id": "WH-4",
		"event_type": "BILLING.SUBSCRIPTION.ACTIVATED",
		"resource": {
			"id": "I-SUB1",
			"plan_id": "P-PLAN1",
			"subscriber": {"email_address": "First@Example.com"},
			"billing_info": {"next_billing_time": "2025-07-01T00:00:00Z"}
		}
	}`)

	if err := f.svc.IngestWebhook(ctx, payload, http.Header{}); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	var row struct {
		Status          string
		AccessKey       string
		CustomerID      *int64
		LastPaymentDate *time.Time
	}
	err := f.db.Raw(
		"SELECT status, access_key, customer_id, last_payment_date FROM subscriptions WHERE subscription_id = 'I-SUB1'",
	).Scan(&row).Error
	if err != nil {
		t.Fatalf("scan subscription: %v", err)
	}
	if row.Status != "active" {
		t.Fatalf("expected active status, got %q", row.Status)
	}
	if !accesskey.Valid(row.AccessKey) {
		t.Fatalf("invalid access key %q", row.AccessKey)
	}
	if row.CustomerID == nil {
		t.Fatalf("first-time buyer must be registered and linked")
	}
	if row.LastPaymentDate == nil {
		t.Fatalf("activation implies a successful first payment, last_payment_date must be set")
	}

	var registered struct {
		ID   int64
		Role string
	}
	err = f.db.Raw(
		"SELECT id, role FROM customers WHERE email = 'first@example.com'",
	).Scan(&registered).Error
	if err != nil {
		t.Fatalf("scan customer: %v", err)
	}
	if registered.ID != *row.CustomerID {
		t.Fatalf("subscription linked to %d, customer row is %d", *row.CustomerID, registered.ID)
	}
	if registered.Role != "member" {
		t.Fatalf("new buyers must get the member role, got %q", registered.Role)
	}
}

func TestSubscriptionActivatedLinksKnownBuyer(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, config.Config{})

	customerID := f.node.Generate()
	err := f.db.Exec(
		"INSERT INTO customers (id, email, role, created_at) VALUES (?, 'known@example.com', 'member', ?)",
		customerID, time.Now().UTC(),
	).Error
	if err != nil {
		t.Fatalf("seed customer: %v", err)
	}

	payload := []byte(`{
		"id": "WH-5",
		"event_type": "BILLING.SUBSCRIPTION.ACTIVATED",
		"resource": {
			"id": "I-SUB2",
			"plan_id": "P-PLAN1",
			"subscriber": {"email_address": "Known@Example.com"}
		}
	}`)
	if err := f.svc.IngestWebhook(ctx, payload, http.Header{}); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	var linked int64
	err = f.db.Raw(
		"SELECT customer_id FROM subscriptions WHERE subscription_id = 'I-SUB2'",
	).Scan(&linked).Error
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if linked != int64(customerID) {
		t.Fatalf("expected customer %d linked, got %d", customerID, linked)
	}
}

func TestCancellationBeforeActivationIsNoOp(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, config.Config{})

	payload := []byte(`{
		"id": "WH-6",
		"event_type": "BILLING.SUBSCRIPTION.CANCELLED",
		"resource": {"id": "I-NEVER-SEEN"}
	}`)

	if err := f.svc.IngestWebhook(ctx, payload, http.Header{}); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if got := count(t, f.db, "SELECT COUNT(1) FROM subscriptions"); got != 0 {
		t.Fatalf("status change must not create subscriptions, got %d", got)
	}
}

func TestPaymentCompletedUpdatesSubscription(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, config.Config{})

	subID := f.node.Generate()
	err := f.db.Exec(
		`INSERT INTO subscriptions (id, subscription_id, plan_id, status, customer_email, created_at)
		 VALUES (?, 'I-SUB3', 'P-PLAN1', 'suspended', 'payer@example.com', ?)`,
		subID, time.Now().UTC(),
	).Error
	if err != nil {
		t.Fatalf("seed subscription: %v", err)
	}

	payload := []byte(`{
		"id": "WH-7",
		"event_type": "PAYMENT.SALE.COMPLETED",
		"resource": {
			"id": "SALE-1",
			"billing_agreement_id": "I-SUB3",
			"amount": {"total": "5.99", "currency": "USD"}
		}
	}`)
	if err := f.svc.IngestWebhook(ctx, payload, http.Header{}); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	var row struct {
		Status          string
		LastPaymentDate *time.Time
	}
	if err := f.db.Raw("SELECT status, last_payment_date FROM subscriptions WHERE subscription_id = 'I-SUB3'").Scan(&row).Error; err != nil {
		t.Fatalf("scan: %v", err)
	}
	if row.Status != "active" {
		t.Fatalf("payment must reset status to active, got %q", row.Status)
	}
	if row.LastPaymentDate == nil {
		t.Fatalf("last_payment_date not stamped")
	}

	var purchase struct {
		CustomerEmail string
		AccessKey     string
	}
	err = f.db.Raw(
		"SELECT customer_email, access_key FROM purchases WHERE payment_id = 'SALE-1' AND payment_type = 'subscription'",
	).Scan(&purchase).Error
	if err != nil {
		t.Fatalf("scan purchase: %v", err)
	}
	if purchase.CustomerEmail != "payer@example.com" {
		t.Fatalf("payerless sale must fall back to the subscription buyer, got %q", purchase.CustomerEmail)
	}
	if !accesskey.Valid(purchase.AccessKey) {
		t.Fatalf("invalid access key %q", purchase.AccessKey)
	}
}

func TestOneTimeSaleRecordsPurchase(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, config.Config{})

	payload := []byte(`{
		"id": "WH-12",
		"event_type": "PAYMENT.SALE.COMPLETED",
		"resource": {
			"id": "SALE-2",
			"payer": {"email_address": "Once@Example.com"},
			"amount": {"total": "9.99", "currency": "USD"}
		}
	}`)
	if err := f.svc.IngestWebhook(ctx, payload, http.Header{}); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	var row struct {
		PaymentType   string
		CustomerEmail string
		AccessKey     string
		CustomerID    *int64
	}
	err := f.db.Raw(
		"SELECT payment_type, customer_email, access_key, customer_id FROM purchases WHERE payment_id = 'SALE-2'",
	).Scan(&row).Error
	if err != nil {
		t.Fatalf("scan purchase: %v", err)
	}
	if row.PaymentType != "onetime" {
		t.Fatalf("sale without billing agreement must be onetime, got %q", row.PaymentType)
	}
	if row.CustomerEmail != "once@example.com" {
		t.Fatalf("payer email not recorded, got %q", row.CustomerEmail)
	}
	if !accesskey.Valid(row.AccessKey) {
		t.Fatalf("invalid access key %q", row.AccessKey)
	}
	if row.CustomerID == nil {
		t.Fatalf("payer must be registered and linked")
	}
	if got := count(t, f.db, "SELECT COUNT(1) FROM subscriptions"); got != 0 {
		t.Fatalf("one-time sale must not touch subscriptions, got %d rows", got)
	}
}

func TestUnknownEventAcknowledgedWithoutWrites(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, config.Config{})

	payload := []byte(`{
		"id": "WH-8",
		"event_type": "CUSTOMER.DISPUTE.CREATED",
		"resource": {"id": "D-1"}
	}`)

	if err := f.svc.IngestWebhook(ctx, payload, http.Header{}); err != nil {
		t.Fatalf("unknown events must be acknowledged, got %v", err)
	}
	if got := count(t, f.db, "SELECT COUNT(1) FROM purchases"); got != 0 {
		t.Fatalf("unexpected purchase rows: %d", got)
	}
	if got := count(t, f.db, "SELECT COUNT(1) FROM subscriptions"); got != 0 {
		t.Fatalf("unexpected subscription rows: %d", got)
	}
	// The event itself is still recorded for audit.
	if got := count(t, f.db, "SELECT COUNT(1) FROM payment_events"); got != 1 {
		t.Fatalf("expected event row, got %d", got)
	}
}

func TestInvalidSignatureLeavesStoreUntouched(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, config.Config{
		Environment: "production",
		PayPal:      config.PayPalConfig{WebhookID: "WHID-1"},
	})
	f.verifier.ok = false

	payload := []byte(`{
		"id": "WH-9",
		"event_type": "CHECKOUT.ORDER.APPROVED",
		"resource": {
			"id": "ORDER-900",
			"purchase_units": [{"custom_id": "25", "amount": {"value": "9.99", "currency_code": "USD"}}]
		}
	}`)

	err := f.svc.IngestWebhook(ctx, payload, http.Header{})
	if !errors.Is(err, webhookdomain.ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
	if f.verifier.calls != 1 {
		t.Fatalf("expected verifier call, got %d", f.verifier.calls)
	}

	for _, table := range []string{"payment_events", "purchases", "subscriptions"} {
		if got := count(t, f.db, "SELECT COUNT(1) FROM "+table); got != 0 {
			t.Fatalf("rejected event wrote to %s", table)
		}
	}
}

func TestVerificationSkippedOutsideProduction(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, config.Config{
		Environment: "development",
		PayPal:      config.PayPalConfig{WebhookID: "WHID-1"},
	})
	f.verifier.ok = false

	payload := []byte(`{
		"id": "WH-10",
		"event_type": "CHECKOUT.ORDER.APPROVED",
		"resource": {
			"id": "ORDER-1000",
			"purchase_units": [{"custom_id": "25", "amount": {"value": "9.99", "currency_code": "USD"}}]
		}
	}`)

	if err := f.svc.IngestWebhook(ctx, payload, http.Header{}); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if f.verifier.calls != 0 {
		t.Fatalf("verifier must not be called outside production")
	}
	if got := count(t, f.db, "SELECT COUNT(1) FROM purchases"); got != 1 {
		t.Fatalf("expected purchase row, got %d", got)
	}
}

func TestMalformedPayloadAcknowledgedWithoutWrites(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, config.Config{})

	// The provider retries on non-2xx, so bodies that can never become
	// parsable are acknowledged instead of errored.
	if err := f.svc.IngestWebhook(ctx, []byte("not json"), http.Header{}); err != nil {
		t.Fatalf("malformed body must be acknowledged, got %v", err)
	}
	if err := f.svc.IngestWebhook(ctx, []byte(`{"resource": {}}`), http.Header{}); err != nil {
		t.Fatalf("body without event_type must be acknowledged, got %v", err)
	}

	payload := []byte(`{
		"id": "WH-11",
		"event_type": "CHECKOUT.ORDER.APPROVED",
		"resource": {}
	}`)
	if err := f.svc.IngestWebhook(ctx, payload, http.Header{}); err != nil {
		t.Fatalf("recognized event with unusable resource must be acknowledged, got %v", err)
	}

	for _, table := range []string{"purchases", "subscriptions", "customers"} {
		if got := count(t, f.db, "SELECT COUNT(1) FROM "+table); got != 0 {
			t.Fatalf("expected no %s rows, got %d", table, got)
		}
	}
	// The resource-less event still lands in the ledger for forensics.
	if got := count(t, f.db, "SELECT COUNT(1) FROM payment_events WHERE provider_event_id = 'WH-11'"); got != 1 {
		t.Fatalf("expected the unusable event to be recorded, got %d", got)
	}
}
