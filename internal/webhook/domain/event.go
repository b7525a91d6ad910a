// Package domain defines the payment provider event model and the
// boundary mapping from raw provider event types.
package domain

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// EventKind is the closed set of provider events the ingestor acts on.
// Anything else maps to KindUnknown and is acknowledged without writes.
type EventKind string

const (
	KindSubscriptionActivated EventKind = "subscription_activated"
	KindPaymentCompleted      EventKind = "payment_completed"
	KindSubscriptionCancelled EventKind = "subscription_cancelled"
	KindSubscriptionSuspended EventKind = "subscription_suspended"
	KindOrderApproved         EventKind = "order_approved"
	KindUnknown               EventKind = "unknown"
)

// KindFromEventType maps the provider's event_type string to an
// EventKind at the ingestion boundary.
func KindFromEventType(eventType string) EventKind {
	switch eventType {
	case "BILLING.SUBSCRIPTION.ACTIVATED":
		return KindSubscriptionActivated
	case "PAYMENT.SALE.COMPLETED":
		return KindPaymentCompleted
	case "BILLING.SUBSCRIPTION.CANCELLED":
		return KindSubscriptionCancelled
	case "BILLING.SUBSCRIPTION.SUSPENDED":
		return KindSubscriptionSuspended
	case "CHECKOUT.ORDER.APPROVED":
		return KindOrderApproved
	default:
		return KindUnknown
	}
}

// Envelope is the outer shape of every provider webhook body.
type Envelope struct {
	ID        string          `json:"id"`
	EventType string          `json:"event_type"`
	Resource  json.RawMessage `json:"resource"`
}

// SubscriptionResource is the resource of subscription lifecycle events.
type SubscriptionResource struct {
	ID          string `json:"id"`
	PlanID      string `json:"plan_id"`
	Subscriber  Payer  `json:"subscriber"`
	BillingInfo struct {
		NextBillingTime *time.Time `json:"next_billing_time"`
	} `json:"billing_info"`
}

// SaleResource is the resource of completed payment events. A billing
// agreement id ties the sale back to its subscription; sales without
// one are one-time payments.
type SaleResource struct {
	ID                 string `json:"id"`
	BillingAgreementID string `json:"billing_agreement_id"`
	Payer              Payer  `json:"payer"`
	Amount             struct {
		Total    string `json:"total"`
		Currency string `json:"currency"`
	} `json:"amount"`
}

// OrderResource is the resource of one-time checkout approvals.
type OrderResource struct {
	ID            string `json:"id"`
	Payer         Payer  `json:"payer"`
	PurchaseUnits []struct {
		CustomID string `json:"custom_id"`
		Amount   struct {
			Value        string `json:"value"`
			CurrencyCode string `json:"currency_code"`
		} `json:"amount"`
	} `json:"purchase_units"`
}

type Payer struct {
	EmailAddress string `json:"email_address"`
}

// EventRecord is the processed-event ledger row. The unique
// (provider, provider_event_id) pair makes replayed deliveries
// collapse into the first row.
type EventRecord struct {
	ID              snowflake.ID   `json:"id" gorm:"primaryKey"`
	Provider        string         `json:"provider" gorm:"type:text;not null;uniqueIndex:ux_payment_events_provider_event"`
	ProviderEventID string         `json:"provider_event_id" gorm:"type:text;not null;uniqueIndex:ux_payment_events_provider_event"`
	EventType       string         `json:"event_type" gorm:"type:text;not null"`
	Payload         datatypes.JSON `json:"payload,omitempty"`
	ReceivedAt      time.Time      `json:"received_at" gorm:"not null"`
	ProcessedAt     *time.Time     `json:"processed_at,omitempty"`
}

func (EventRecord) TableName() string { return "payment_events" }

// Verifier is the signature oracle. The production implementation
// calls the provider's verification endpoint.
type Verifier interface {
	VerifyWebhookSignature(ctx context.Context, payload []byte, headers http.Header) (bool, error)
}

type Service interface {
	// IngestWebhook verifies, deduplicates and dispatches one provider
	// event. Verification failure must leave the store untouched.
	IngestWebhook(ctx context.Context, payload []byte, headers http.Header) error
}

var (
	ErrInvalidSignature      = errors.New("invalid_webhook_signature")
	ErrEventAlreadyProcessed = errors.New("event_already_processed")
)
