// Package tenant resolves a tenant id to a handle whose every read and
// write is confined to that tenant's partition.
package tenant

import (
	"context"
	"time"

	"github.com/dwarvesf/treasury-settlement/internal/model"
	"github.com/dwarvesf/treasury-settlement/internal/treasury"
)

type IResolver interface {
	// Resolve fails with ErrTenantNotFound or ErrTenantInactive before any
	// tenant data is touched.
	Resolve(ctx context.Context, tenantID string) (IHandle, error)
	// CreatePartition is idempotent and creates either every table or none.
	CreatePartition(ctx context.Context, tenantID string) error
	PartitionExists(ctx context.Context, tenantID string) (bool, error)
	// Onboard stores the tenant row and builds its partition in one transaction.
	Onboard(ctx context.Context, t *model.Tenant) error
	ListActive(ctx context.Context) ([]model.Tenant, error)
}

// IHandle is bound to one tenant. Records passed in are stamped with the
// handle's tenant id regardless of what the caller set.
type IHandle interface {
	Tenant() model.Tenant

	ActiveRule(ctx context.Context) (*model.TreasuryRule, error)
	ReplaceRule(ctx context.Context, cfg treasury.RuleConfig) (*model.TreasuryRule, error)

	// RecordPayment stores the payment and its conversion decision in one
	// transaction. A payment seen before returns its stored decision.
	RecordPayment(ctx context.Context, p *model.Payment) (*PaymentOutcome, error)
	EvaluateScheduled(ctx context.Context) (treasury.Decision, error)

	// ReservePurchase inserts a pending purchase, or returns the row that
	// already holds its idempotency key or external payment id.
	ReservePurchase(ctx context.Context, p *model.BitcoinPurchase) (*model.BitcoinPurchase, bool, error)
	SavePurchase(ctx context.Context, p *model.BitcoinPurchase) error
	GetPurchaseByIdempotencyKey(ctx context.Context, key string) (*model.BitcoinPurchase, error)

	ListPayments(ctx context.Context, start, end time.Time) ([]model.Payment, error)
	ListPurchases(ctx context.Context, start, end time.Time) ([]model.BitcoinPurchase, error)
	LookupPayments(ctx context.Context, externalPaymentIDs []string) ([]model.Payment, error)
	LookupPurchases(ctx context.Context, externalPaymentIDs []string) ([]model.BitcoinPurchase, error)

	AppendReconciliationRecords(ctx context.Context, records []model.ReconciliationRecord) error
	ListReconciliationRecords(ctx context.Context, sweepID string) ([]model.ReconciliationRecord, error)
}

type PaymentOutcome struct {
	Payment  *model.Payment
	Decision treasury.Decision
	// Existing is set when the payment had already been recorded.
	Existing bool
}
