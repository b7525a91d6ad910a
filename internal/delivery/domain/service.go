package domain

import "context"

type Service interface {
	// DeliverAccounts claims one unclaimed account per unit of the
	// purchase's package size and records the delivery. On
	// ErrAlreadyDelivered the previously delivered credentials are
	// returned alongside the error so repeated calls observe the same
	// set.
	DeliverAccounts(ctx context.Context, purchaseID string) ([]Credential, error)

	// DeliveredAccounts returns the credentials already delivered for
	// the purchase without claiming anything.
	DeliveredAccounts(ctx context.Context, purchaseID string) ([]Credential, error)
}
