// Package reconciliation compares each tenant's payments against the
// purchases they triggered and appends what it finds. It never changes a
// payment or a purchase.
package reconciliation

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/dwarvesf/treasury-settlement/internal/model"
	"github.com/dwarvesf/treasury-settlement/internal/utils/webhook"
)

const AlertKindAnomaly = "reconciliation_anomaly"

var ErrInvalidWindow = errors.New("reconciliation window start must be before end")

type ILedger interface {
	RunSweep(ctx context.Context, window Window) (*Report, error)
	ListRecords(ctx context.Context, tenantID, sweepID string) ([]model.ReconciliationRecord, error)
}

type Window struct {
	Start time.Time `json:"windowStart"`
	End   time.Time `json:"windowEnd"`
}

// Trailing is the window of length d ending at now.
func Trailing(now time.Time, d time.Duration) Window {
	return Window{Start: now.Add(-d), End: now}
}

func (w Window) Validate() error {
	if w.Start.IsZero() || w.End.IsZero() || !w.Start.Before(w.End) {
		return ErrInvalidWindow
	}
	return nil
}

type Metrics interface {
	RecordReconciliationSweep(status string, duration float64)
	RecordReconciliationFinding(classification string)
}

type PendingGauge interface {
	SetPendingPurchases(tenantID string, count int)
}

type Alerter interface {
	Notify(ctx context.Context, alert webhook.Alert)
}

type noopMetrics struct{}

func (noopMetrics) RecordReconciliationSweep(string, float64) {}
func (noopMetrics) RecordReconciliationFinding(string)        {}
func (noopMetrics) SetPendingPurchases(string, int)           {}

type noopAlerter struct{}

func (noopAlerter) Notify(context.Context, webhook.Alert) {}
