package reconciliation

import (
	"github.com/dwarvesf/treasury-settlement/internal/model"
)

const (
	SweepStatusSuccess = "success"
	SweepStatusPartial = "partial"
	SweepStatusFailed  = "failed"
)

// Report is the outcome of one sweep across every active tenant.
type Report struct {
	SweepID           string                       `json:"sweepId"`
	Status            string                       `json:"status"`
	Matched           int                          `json:"matched"`
	OrphanedPayments  []model.ReconciliationRecord `json:"orphanedPayments"`
	OrphanedPurchases []model.ReconciliationRecord `json:"orphanedPurchases"`
	AmountMismatches  []model.ReconciliationRecord `json:"amountMismatches"`
	FailedPurchases   []FailedPurchase             `json:"failedPurchases"`
	// Skipped counts rows left unclassified: scheduled or in-flight
	// purchases and payments still inside the grace period.
	Skipped int `json:"skipped"`
	Window
	Tenants []TenantSummary `json:"tenants"`
}

type FailedPurchase struct {
	TenantID          string  `json:"tenantId"`
	PurchaseID        string  `json:"purchaseId"`
	IdempotencyKey    string  `json:"idempotencyKey"`
	ExternalPaymentID *string `json:"externalPaymentId,omitempty"`
	FailureReason     string  `json:"failureReason"`
}

type TenantSummary struct {
	TenantID         string `json:"tenantId"`
	Matched          int    `json:"matched"`
	Anomalies        int    `json:"anomalies"`
	PendingPurchases int    `json:"pendingPurchases"`
	Error            string `json:"error,omitempty"`
}

// Anomalies is the number of records that need an operator.
func (r *Report) Anomalies() int {
	return len(r.OrphanedPayments) + len(r.OrphanedPurchases) + len(r.AmountMismatches)
}

func newReport(sweepID string, w Window) *Report {
	return &Report{
		SweepID:           sweepID,
		Status:            SweepStatusSuccess,
		OrphanedPayments:  []model.ReconciliationRecord{},
		OrphanedPurchases: []model.ReconciliationRecord{},
		AmountMismatches:  []model.ReconciliationRecord{},
		FailedPurchases:   []FailedPurchase{},
		Window:            w,
		Tenants:           []TenantSummary{},
	}
}

func (r *Report) add(summary TenantSummary, c *classification) {
	r.Tenants = append(r.Tenants, summary)
	if c == nil {
		r.Status = SweepStatusPartial
		return
	}
	r.Skipped += c.skipped
	r.FailedPurchases = append(r.FailedPurchases, c.failed...)
	for _, rec := range c.records {
		switch rec.Classification {
		case model.ClassificationMatched:
			r.Matched++
		case model.ClassificationOrphanedPayment:
			r.OrphanedPayments = append(r.OrphanedPayments, rec)
		case model.ClassificationOrphanedPurchase:
			r.OrphanedPurchases = append(r.OrphanedPurchases, rec)
		case model.ClassificationAmountMismatch:
			r.AmountMismatches = append(r.AmountMismatches, rec)
		}
	}
}
