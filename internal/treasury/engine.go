package treasury

import (
	"github.com/shopspring/decimal"

	"github.com/dwarvesf/treasury-settlement/internal/consts"
	"github.com/dwarvesf/treasury-settlement/internal/model"
)

// IEngine evaluates a tenant's rule. Implementations must be pure: the
// same Input always yields the same Decision.
type IEngine interface {
	Evaluate(in Input) Decision
}

type engine struct{}

func New() IEngine {
	return engine{}
}

var hundred = decimal.NewFromInt(100)

func (engine) Evaluate(in Input) Decision {
	return Evaluate(in)
}

// Evaluate applies the rule, then the tenant volume limits.
func Evaluate(in Input) Decision {
	rule := in.Rule
	if rule == nil || !rule.IsActive {
		return noConversion(ReasonNoActiveRule)
	}
	if in.Trigger == TriggerPayment {
		if in.Payment == nil {
			return noConversion(ReasonMissingPayment)
		}
		if in.Payment.Status != model.PaymentStatusSucceeded {
			return noConversion(ReasonPaymentNotSucceeded)
		}
	}

	var d Decision
	switch rule.Type {
	case model.RuleTypePercentage:
		d = evaluatePercentage(in.Payment, rule)
	case model.RuleTypeThreshold:
		d = evaluateThreshold(in.Payment, rule, in.State)
	case model.RuleTypeFixedAmount:
		d = evaluateFixed(rule, ReasonFixedAmount)
	case model.RuleTypeDCA:
		if in.Trigger != TriggerSchedule {
			return noConversion(ReasonDCAScheduleOnly)
		}
		d = evaluateFixed(rule, ReasonDCA)
	default:
		return noConversion(ReasonInvalidRule)
	}

	if !d.Convert {
		return d
	}
	return applyLimits(d, in.State)
}

func evaluatePercentage(p *model.Payment, rule *model.TreasuryRule) Decision {
	if p == nil || !rule.Percentage.Valid {
		return noConversion(ReasonInvalidRule)
	}

	raw := p.Amount().Mul(rule.Percentage.Decimal).Div(hundred).RoundBank(consts.FIAT_DECIMALS)
	if raw.LessThan(rule.MinTransactionAmount) || raw.IsZero() {
		return noConversion(ReasonBelowMinimum)
	}
	if rule.MaxTransactionAmount.IsPositive() && raw.GreaterThan(rule.MaxTransactionAmount) {
		return convert(rule.MaxTransactionAmount, ReasonPercentageCapped)
	}
	return convert(raw, ReasonPercentage)
}

func evaluateThreshold(p *model.Payment, rule *model.TreasuryRule, state State) Decision {
	if p == nil || !rule.ThresholdAmount.Valid || !rule.ThresholdAmount.Decimal.IsPositive() {
		return noConversion(ReasonInvalidRule)
	}

	total := state.AccumulatedBalance.Add(p.Amount())
	if total.LessThan(rule.ThresholdAmount.Decimal) {
		d := noConversion(ReasonThresholdAccumulated)
		d.AccumulatedBalance = total
		return d
	}

	d := convert(total, ReasonThresholdReached)
	d.ResetAccumulator = true
	d.AccumulatedBalance = decimal.Zero
	return d
}

func evaluateFixed(rule *model.TreasuryRule, reason string) Decision {
	if !rule.FixedAmount.Valid || !rule.FixedAmount.Decimal.IsPositive() {
		return noConversion(ReasonInvalidRule)
	}
	return convert(rule.FixedAmount.Decimal, reason)
}

// applyLimits turns a conversion into a no-op when it would break a tenant
// cap. A blocked THRESHOLD conversion keeps its balance for next time.
func applyLimits(d Decision, state State) Decision {
	blocked := ""
	limits := state.Limits
	switch {
	case limits.PerTransaction.Valid && d.Amount.GreaterThan(limits.PerTransaction.Decimal):
		blocked = ReasonPerTransactionLimit
	case limits.Daily.Valid && state.ConvertedToday.Add(d.Amount).GreaterThan(limits.Daily.Decimal):
		blocked = ReasonDailyLimit
	case limits.Monthly.Valid && state.ConvertedThisMonth.Add(d.Amount).GreaterThan(limits.Monthly.Decimal):
		blocked = ReasonMonthlyLimit
	}
	if blocked == "" {
		return d
	}

	out := noConversion(blocked)
	if d.ResetAccumulator {
		out.AccumulatedBalance = d.Amount
	}
	return out
}
