package reconciliation

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/dwarvesf/treasury-settlement/internal/model"
)

// snapshot is one tenant's rows for a window plus the counterparts of those
// rows that fell outside it.
type snapshot struct {
	payments       []model.Payment
	purchases      []model.BitcoinPurchase
	extraPayments  []model.Payment
	extraPurchases []model.BitcoinPurchase
}

type classification struct {
	records []model.ReconciliationRecord
	failed  []FailedPurchase
	pending int
	skipped int
}

func (c *classification) anomalies() int {
	n := 0
	for _, rec := range c.records {
		if rec.Classification != model.ClassificationMatched {
			n++
		}
	}
	return n
}

func (c *classification) matched() int {
	return len(c.records) - c.anomalies()
}

type classifier struct {
	gracePeriod time.Duration
	tolerance   decimal.Decimal
	now         time.Time
}

func (cl classifier) classify(tenantID string, s snapshot) *classification {
	out := &classification{}

	payments := make(map[string]model.Payment, len(s.payments)+len(s.extraPayments))
	for _, p := range s.extraPayments {
		payments[p.ExternalPaymentID] = p
	}
	for _, p := range s.payments {
		payments[p.ExternalPaymentID] = p
	}
	purchases := make(map[string]model.BitcoinPurchase, len(s.purchases)+len(s.extraPurchases))
	for _, p := range s.extraPurchases {
		if p.ExternalPaymentID != nil {
			purchases[*p.ExternalPaymentID] = p
		}
	}
	for _, p := range s.purchases {
		if p.ExternalPaymentID != nil {
			purchases[*p.ExternalPaymentID] = p
		}
	}

	seen := make(map[string]bool, len(s.purchases))
	for _, purchase := range s.purchases {
		if purchase.ExternalPaymentID == nil {
			// scheduled conversions have no payment to join against
			out.skipped++
			if purchase.Status == model.PurchaseStatusPending {
				out.pending++
			}
			if purchase.Status == model.PurchaseStatusFailed {
				out.failed = append(out.failed, failedPurchase(tenantID, purchase))
			}
			continue
		}
		ext := *purchase.ExternalPaymentID
		seen[ext] = true
		cl.classifyPurchase(tenantID, purchase, payments, out)
	}

	for _, payment := range s.payments {
		if seen[payment.ExternalPaymentID] {
			continue
		}
		if purchase, ok := purchases[payment.ExternalPaymentID]; ok {
			cl.classifyPurchase(tenantID, purchase, payments, out)
			continue
		}
		if payment.Status != model.PaymentStatusSucceeded || !payment.ShouldConvert {
			continue
		}
		if cl.now.Sub(payment.CreatedAt) <= cl.gracePeriod {
			out.skipped++
			continue
		}
		paymentID := payment.ID
		out.records = append(out.records, model.ReconciliationRecord{
			TenantID:          tenantID,
			PaymentID:         &paymentID,
			ExternalPaymentID: payment.ExternalPaymentID,
			Classification:    model.ClassificationOrphanedPayment,
			ExpectedAmount:    decimal.NewNullDecimal(payment.ConversionAmount),
			DetectedAt:        cl.now,
		})
	}
	return out
}

func (cl classifier) classifyPurchase(tenantID string, purchase model.BitcoinPurchase, payments map[string]model.Payment, out *classification) {
	switch purchase.Status {
	case model.PurchaseStatusPending:
		out.pending++
		out.skipped++
		return
	case model.PurchaseStatusFailed:
		out.failed = append(out.failed, failedPurchase(tenantID, purchase))
		return
	}

	ext := *purchase.ExternalPaymentID
	purchaseID := purchase.ID
	rec := model.ReconciliationRecord{
		TenantID:          tenantID,
		PurchaseID:        &purchaseID,
		ExternalPaymentID: ext,
		ActualAmount:      decimal.NewNullDecimal(purchase.FiatAmount),
		DetectedAt:        cl.now,
	}

	payment, ok := payments[ext]
	if !ok {
		rec.Classification = model.ClassificationOrphanedPurchase
		out.records = append(out.records, rec)
		return
	}

	paymentID := payment.ID
	expected := ExpectedNet(payment, purchase)
	rec.PaymentID = &paymentID
	rec.ExpectedAmount = decimal.NewNullDecimal(expected)
	rec.Classification = model.ClassificationMatched
	if purchase.FiatAmount.Sub(expected).Abs().GreaterThan(cl.tolerance) {
		rec.Classification = model.ClassificationAmountMismatch
	}
	out.records = append(out.records, rec)
}

// ExpectedNet is the fiat amount that should have reached the exchange:
// the decided conversion minus the fee the purchase paid.
func ExpectedNet(payment model.Payment, purchase model.BitcoinPurchase) decimal.Decimal {
	gross := payment.ConversionAmount
	if !gross.IsPositive() {
		gross = payment.Amount()
	}
	return gross.Sub(purchase.Fees)
}

func failedPurchase(tenantID string, p model.BitcoinPurchase) FailedPurchase {
	return FailedPurchase{
		TenantID:          tenantID,
		PurchaseID:        p.ID,
		IdempotencyKey:    p.IdempotencyKey,
		ExternalPaymentID: p.ExternalPaymentID,
		FailureReason:     p.FailureReason,
	}
}
