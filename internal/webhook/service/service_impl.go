package service

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/vendora/internal/accesskey"
	"github.com/smallbiznis/vendora/internal/clock"
	"github.com/smallbiznis/vendora/internal/config"
	customerdomain "github.com/smallbiznis/vendora/internal/customer/domain"
	"github.com/smallbiznis/vendora/internal/observability/metrics"
	purchasedomain "github.com/smallbiznis/vendora/internal/purchase/domain"
	subscriptiondomain "github.com/smallbiznis/vendora/internal/subscription/domain"
	webhookdomain "github.com/smallbiznis/vendora/internal/webhook/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const provider = "paypal"

type Service struct {
	db               *gorm.DB
	log              *zap.Logger
	genID            *snowflake.Node
	clock            clock.Clock
	cfg              config.Config
	verifier         webhookdomain.Verifier
	repo             webhookdomain.Repository
	purchaseRepo     purchasedomain.Repository
	subscriptionRepo subscriptiondomain.Repository
	customerRepo     customerdomain.Repository
	metrics          *metrics.Metrics
}

type Params struct {
	fx.In

	DB               *gorm.DB
	Log              *zap.Logger
	GenID            *snowflake.Node
	Clock            clock.Clock
	Cfg              config.Config
	Verifier         webhookdomain.Verifier
	Repo             webhookdomain.Repository
	PurchaseRepo     purchasedomain.Repository
	SubscriptionRepo subscriptiondomain.Repository
	CustomerRepo     customerdomain.Repository
	Metrics          *metrics.Metrics `optional:"true"`
}

func NewService(p Params) webhookdomain.Service {
	return &Service{
		db:               p.DB,
		log:              p.Log.Named("payment.webhook"),
		genID:            p.GenID,
		clock:            p.Clock,
		cfg:              p.Cfg,
		verifier:         p.Verifier,
		repo:             p.Repo,
		purchaseRepo:     p.PurchaseRepo,
		subscriptionRepo: p.SubscriptionRepo,
		customerRepo:     p.CustomerRepo,
		metrics:          p.Metrics,
	}
}

func (s *Service) IngestWebhook(ctx context.Context, payload []byte, headers http.Header) error {
	// Signature check comes before any write. Skipped outside
	// production and when no webhook id is configured, matching the
	// provider sandbox behavior.
	if s.cfg.VerifyWebhooks() {
		ok, err := s.verifier.VerifyWebhookSignature(ctx, payload, headers)
		if err != nil {
			return err
		}
		if !ok {
			return webhookdomain.ErrInvalidSignature
		}
	}

	// Malformed bodies are acknowledged, not errored. The provider
	// retries on non-2xx and an unparsable body never becomes parsable.
	var envelope webhookdomain.Envelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		s.log.Warn("malformed webhook payload acknowledged", zap.Error(err))
		return nil
	}
	if envelope.EventType == "" {
		s.log.Warn("webhook payload without event_type acknowledged")
		return nil
	}

	kind := webhookdomain.KindFromEventType(envelope.EventType)
	if s.metrics != nil {
		s.metrics.RecordWebhookEvent(ctx, provider, envelope.EventType)
	}

	var record *webhookdomain.EventRecord
	if envelope.ID != "" {
		record = &webhookdomain.EventRecord{
			ID:              s.genID.Generate(),
			Provider:        provider,
			ProviderEventID: envelope.ID,
			EventType:       envelope.EventType,
			Payload:         datatypes.JSON(payload),
			ReceivedAt:      s.clock.Now(),
		}
		inserted, err := s.repo.InsertEvent(ctx, s.db, record)
		if err != nil {
			return err
		}
		if !inserted {
			// A redelivery. Events whose dispatch failed last time are
			// still unprocessed and get another attempt; the handlers'
			// resource-level dedup keeps that safe.
			existing, err := s.repo.FindEvent(ctx, s.db, provider, envelope.ID)
			if err != nil {
				return err
			}
			if existing == nil || existing.ProcessedAt != nil {
				s.log.Info("webhook event replayed, ignoring",
					zap.String("provider_event_id", envelope.ID),
					zap.String("event_type", envelope.EventType),
				)
				return webhookdomain.ErrEventAlreadyProcessed
			}
			s.log.Info("retrying unprocessed webhook event",
				zap.String("provider_event_id", envelope.ID),
				zap.String("event_type", envelope.EventType),
			)
			record = existing
		}
	}

	var err error
	switch kind {
	case webhookdomain.KindSubscriptionActivated:
		err = s.handleSubscriptionActivated(ctx, envelope.Resource)
	case webhookdomain.KindPaymentCompleted:
		err = s.handlePaymentCompleted(ctx, envelope.Resource)
	case webhookdomain.KindSubscriptionCancelled:
		err = s.handleStatusChange(ctx, envelope.Resource, subscriptiondomain.StatusCancelled)
	case webhookdomain.KindSubscriptionSuspended:
		err = s.handleStatusChange(ctx, envelope.Resource, subscriptiondomain.StatusSuspended)
	case webhookdomain.KindOrderApproved:
		err = s.handleOrderApproved(ctx, envelope.Resource)
	default:
		s.log.Info("unhandled webhook event type acknowledged",
			zap.String("event_type", envelope.EventType),
		)
	}
	if err != nil {
		return err
	}

	if record != nil {
		if err := s.repo.MarkProcessed(ctx, s.db, record.ID, s.clock.Now()); err != nil {
			s.log.Warn("failed to mark event processed", zap.Error(err))
		}
	}
	return nil
}

func (s *Service) handleSubscriptionActivated(ctx context.Context, raw json.RawMessage) error {
	var resource webhookdomain.SubscriptionResource
	if err := json.Unmarshal(raw, &resource); err != nil || resource.ID == "" {
		s.log.Warn("subscription activation with unusable resource, ignoring")
		return nil
	}

	now := s.clock.Now()
	email := normalizeEmail(resource.Subscriber.EmailAddress)
	sub := &subscriptiondomain.Subscription{
		ID:              s.genID.Generate(),
		SubscriptionID:  resource.ID,
		PlanID:          resource.PlanID,
		Status:          subscriptiondomain.StatusActive,
		CustomerEmail:   email,
		AccessKey:       accesskey.New(),
		NextBillingDate: resource.BillingInfo.NextBillingTime,
		LastPaymentDate: &now,
		CustomerID:      s.resolveCustomer(ctx, email),
		CreatedAt:       now,
	}

	inserted, err := s.subscriptionRepo.InsertIgnoreDuplicate(ctx, s.db, sub)
	if err != nil {
		return err
	}
	if !inserted {
		s.log.Info("subscription already recorded",
			zap.String("subscription_id", resource.ID),
		)
		return nil
	}

	s.log.Info("subscription activated",
		zap.String("subscription_id", resource.ID),
		zap.String("plan_id", resource.PlanID),
	)
	return nil
}

func (s *Service) handlePaymentCompleted(ctx context.Context, raw json.RawMessage) error {
	var resource webhookdomain.SaleResource
	if err := json.Unmarshal(raw, &resource); err != nil || resource.ID == "" {
		s.log.Warn("payment completed event with unusable resource, ignoring")
		return nil
	}

	now := s.clock.Now()

	paymentType := purchasedomain.PaymentTypeOneTime
	if resource.BillingAgreementID != "" {
		paymentType = purchasedomain.PaymentTypeSubscription
		if err := s.subscriptionRepo.RecordPayment(ctx, s.db, resource.BillingAgreementID, now); err != nil {
			return err
		}
	}

	email := normalizeEmail(resource.Payer.EmailAddress)
	customerID := s.resolveCustomer(ctx, email)
	if email == "" && resource.BillingAgreementID != "" {
		// Some providers omit the payer on recurring sales; fall back
		// to the subscription's buyer.
		sub, err := s.subscriptionRepo.FindBySubscriptionID(ctx, s.db, resource.BillingAgreementID)
		if err != nil {
			return err
		}
		if sub != nil {
			email = sub.CustomerEmail
			customerID = sub.CustomerID
		}
	}

	purchase := &purchasedomain.Purchase{
		ID:            s.genID.Generate(),
		PaymentID:     resource.ID,
		PaymentType:   paymentType,
		Amount:        parseAmount(resource.Amount.Total),
		Currency:      defaultCurrency(resource.Amount.Currency),
		Status:        purchasedomain.StatusCompleted,
		CustomerEmail: email,
		AccessKey:     accesskey.New(),
		CustomerID:    customerID,
		ProviderData:  datatypes.JSON(raw),
		CreatedAt:     now,
	}
	inserted, err := s.purchaseRepo.InsertIgnoreDuplicate(ctx, s.db, purchase)
	if err != nil {
		return err
	}
	if !inserted {
		s.log.Info("payment already recorded", zap.String("payment_id", resource.ID))
	}
	return nil
}

func (s *Service) handleStatusChange(ctx context.Context, raw json.RawMessage, status subscriptiondomain.Status) error {
	var resource webhookdomain.SubscriptionResource
	if err := json.Unmarshal(raw, &resource); err != nil || resource.ID == "" {
		s.log.Warn("status change with unusable resource, ignoring",
			zap.String("status", string(status)),
		)
		return nil
	}

	// Unknown subscription ids are a deliberate no-op. A cancellation
	// can race ahead of its activation.
	if err := s.subscriptionRepo.UpdateStatus(ctx, s.db, resource.ID, status); err != nil {
		return err
	}

	s.log.Info("subscription status updated",
		zap.String("subscription_id", resource.ID),
		zap.String("status", string(status)),
	)
	return nil
}

func (s *Service) handleOrderApproved(ctx context.Context, raw json.RawMessage) error {
	var resource webhookdomain.OrderResource
	if err := json.Unmarshal(raw, &resource); err != nil || resource.ID == "" {
		s.log.Warn("order approval with unusable resource, ignoring")
		return nil
	}

	var packageSize int
	var amount float64
	currency := "USD"
	if len(resource.PurchaseUnits) > 0 {
		unit := resource.PurchaseUnits[0]
		if n, err := strconv.Atoi(strings.TrimSpace(unit.CustomID)); err == nil && n > 0 {
			packageSize = n
		}
		amount = parseAmount(unit.Amount.Value)
		currency = defaultCurrency(unit.Amount.CurrencyCode)
	}

	email := normalizeEmail(resource.Payer.EmailAddress)
	purchase := &purchasedomain.Purchase{
		ID:            s.genID.Generate(),
		PaymentID:     resource.ID,
		PaymentType:   purchasedomain.PaymentTypeOneTime,
		PackageSize:   packageSize,
		Amount:        amount,
		Currency:      currency,
		Status:        purchasedomain.StatusCompleted,
		CustomerEmail: email,
		AccessKey:     accesskey.New(),
		CustomerID:    s.resolveCustomer(ctx, email),
		ProviderData:  datatypes.JSON(raw),
		CreatedAt:     s.clock.Now(),
	}

	inserted, err := s.purchaseRepo.InsertIgnoreDuplicate(ctx, s.db, purchase)
	if err != nil {
		return err
	}
	if !inserted {
		s.log.Info("order already recorded", zap.String("payment_id", resource.ID))
		return nil
	}

	s.log.Info("order approved",
		zap.String("payment_id", resource.ID),
		zap.Int("package_size", packageSize),
	)
	return nil
}

// resolveCustomer looks the buyer up by email, registering first-time
// buyers in the directory. Failures only log so an event is never lost
// over a missing link.
func (s *Service) resolveCustomer(ctx context.Context, email string) *snowflake.ID {
	if email == "" {
		return nil
	}
	customer, err := s.customerRepo.FindByEmail(ctx, s.db, email)
	if err != nil {
		s.log.Warn("customer lookup failed", zap.Error(err))
		return nil
	}
	if customer != nil {
		return &customer.ID
	}

	customer = &customerdomain.Customer{
		ID:        s.genID.Generate(),
		Email:     email,
		Role:      customerdomain.RoleMember,
		CreatedAt: s.clock.Now(),
	}
	if err := s.customerRepo.Insert(ctx, s.db, customer); err != nil {
		s.log.Warn("customer insert failed", zap.Error(err))
		return nil
	}
	return &customer.ID
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func parseAmount(raw string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0
	}
	return v
}

func defaultCurrency(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return "USD"
	}
	return code
}
