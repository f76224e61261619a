package controller

import (
	"context"

	"github.com/dwarvesf/treasury-settlement/internal/model"
	"github.com/dwarvesf/treasury-settlement/internal/treasury"
	"github.com/dwarvesf/treasury-settlement/internal/webhook"
)

type IController interface {
	// IngestEvent runs a verified event through dedup, tenant resolution,
	// rule evaluation and order execution. Exchange failures end up in the
	// purchase row, not in the returned error.
	IngestEvent(ctx context.Context, event *webhook.InboundEvent) (*IngestResult, error)

	// TriggerScheduledConversion evaluates the tenant's FIXED_AMOUNT or DCA
	// rule for one timer run. The same runID never buys twice.
	TriggerScheduledConversion(ctx context.Context, tenantID, runID string) (*ConversionResult, error)
}

type Outcome string

const (
	// OutcomeDuplicate is a redelivery of a completed event. Not an error.
	OutcomeDuplicate Outcome = "duplicate"
	// OutcomeIgnored is an event type that carries no payment.
	OutcomeIgnored Outcome = "ignored"
	// OutcomeNoConversion means the rule decided not to buy.
	OutcomeNoConversion Outcome = "no_conversion"
	// OutcomeConverted means a purchase reached a terminal or pending state.
	OutcomeConverted Outcome = "converted"
)

type IngestResult struct {
	Outcome   Outcome                `json:"outcome"`
	EventID   string                 `json:"eventId"`
	Provider  string                 `json:"provider"`
	TenantID  string                 `json:"tenantId,omitempty"`
	Degraded  bool                   `json:"degraded,omitempty"`
	PaymentID string                 `json:"paymentId,omitempty"`
	Decision  *treasury.Decision     `json:"decision,omitempty"`
	Purchase  *model.BitcoinPurchase `json:"purchase,omitempty"`
}

type ConversionResult struct {
	TenantID string                 `json:"tenantId"`
	RunID    string                 `json:"runId"`
	Decision treasury.Decision      `json:"decision"`
	Purchase *model.BitcoinPurchase `json:"purchase,omitempty"`
}

// MetricsRecorder is the subset of business metrics the pipeline reports.
type MetricsRecorder interface {
	RecordIngest(provider, outcome string, duration float64)
	RecordPurchase(trigger, status string, duration float64)
	RecordScheduledRun(status string, duration float64)
}

type noopRecorder struct{}

func (noopRecorder) RecordIngest(string, string, float64)   {}
func (noopRecorder) RecordPurchase(string, string, float64) {}
func (noopRecorder) RecordScheduledRun(string, float64)     {}
