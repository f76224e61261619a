package treasury

import (
	"github.com/shopspring/decimal"

	"github.com/dwarvesf/treasury-settlement/internal/model"
)

// Trigger says who asked for an evaluation.
type Trigger string

const (
	TriggerPayment  Trigger = "payment"
	TriggerSchedule Trigger = "schedule"
)

// Reasons recorded on every decision.
const (
	ReasonNoActiveRule         = "no_active_rule"
	ReasonPaymentNotSucceeded  = "payment_not_succeeded"
	ReasonMissingPayment       = "missing_payment"
	ReasonInvalidRule          = "invalid_rule"
	ReasonPercentage           = "percentage"
	ReasonPercentageCapped     = "percentage_capped_at_maximum"
	ReasonBelowMinimum         = "below_minimum_transaction_amount"
	ReasonThresholdReached     = "threshold_reached"
	ReasonThresholdAccumulated = "threshold_not_reached"
	ReasonFixedAmount          = "fixed_amount"
	ReasonDCA                  = "dca"
	ReasonDCAScheduleOnly      = "dca_runs_on_schedule_only"
	ReasonPerTransactionLimit  = "per_transaction_limit_exceeded"
	ReasonDailyLimit           = "daily_volume_limit_exceeded"
	ReasonMonthlyLimit         = "monthly_volume_limit_exceeded"
)

// State is the tenant data an evaluation depends on, read inside the same
// transaction that records the outcome.
type State struct {
	// AccumulatedBalance is the THRESHOLD balance before this payment.
	AccumulatedBalance decimal.Decimal
	ConvertedToday     decimal.Decimal
	ConvertedThisMonth decimal.Decimal
	Limits             model.VolumeLimits
}

type Input struct {
	// Payment is nil for scheduled evaluations.
	Payment *model.Payment
	Rule    *model.TreasuryRule
	State   State
	Trigger Trigger
}

// Decision is either a conversion of Amount or a no-op carrying Reason.
type Decision struct {
	Convert bool
	Amount  decimal.Decimal
	Reason  string
	// AccumulatedBalance is the THRESHOLD balance after this evaluation.
	AccumulatedBalance decimal.Decimal
	// ResetAccumulator is set when the accumulated balance was converted.
	ResetAccumulator bool
}

func noConversion(reason string) Decision {
	return Decision{Amount: decimal.Zero, Reason: reason}
}

func convert(amount decimal.Decimal, reason string) Decision {
	return Decision{Convert: true, Amount: amount, Reason: reason}
}
