package treasury_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	"github.com/dwarvesf/treasury-settlement/internal/model"
	"github.com/dwarvesf/treasury-settlement/internal/treasury"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func payment(minor int64) *model.Payment {
	return &model.Payment{
		TenantID:          "acme",
		ExternalPaymentID: "pi_1",
		AmountMinorUnits:  minor,
		Currency:          "AUD",
		Status:            model.PaymentStatusSucceeded,
	}
}

func percentageRule(pct, min, max string) *model.TreasuryRule {
	return &model.TreasuryRule{
		Type:                 model.RuleTypePercentage,
		Percentage:           decimal.NewNullDecimal(dec(pct)),
		MinTransactionAmount: dec(min),
		MaxTransactionAmount: dec(max),
		IsActive:             true,
	}
}

var _ = Describe("Evaluate", func() {
	Context("PERCENTAGE", func() {
		It("converts the percentage of the payment", func() {
			d := treasury.Evaluate(treasury.Input{
				Payment: payment(100000),
				Rule:    percentageRule("10", "10", "0"),
				Trigger: treasury.TriggerPayment,
			})
			Expect(d.Convert).To(BeTrue())
			Expect(d.Amount.Equal(dec("100"))).To(BeTrue())
			Expect(d.Reason).To(Equal(treasury.ReasonPercentage))
		})

		It("skips amounts below the minimum", func() {
			d := treasury.Evaluate(treasury.Input{
				Payment: payment(5000),
				Rule:    percentageRule("10", "10", "0"),
				Trigger: treasury.TriggerPayment,
			})
			Expect(d.Convert).To(BeFalse())
			Expect(d.Amount.IsZero()).To(BeTrue())
			Expect(d.Reason).To(Equal(treasury.ReasonBelowMinimum))
		})

		It("caps at the maximum", func() {
			d := treasury.Evaluate(treasury.Input{
				Payment: payment(1000000),
				Rule:    percentageRule("50", "10", "2000"),
				Trigger: treasury.TriggerPayment,
			})
			Expect(d.Convert).To(BeTrue())
			Expect(d.Amount.Equal(dec("2000"))).To(BeTrue())
			Expect(d.Reason).To(Equal(treasury.ReasonPercentageCapped))
		})

		It("is deterministic", func() {
			in := treasury.Input{
				Payment: payment(123457),
				Rule:    percentageRule("12.5", "1", "0"),
				Trigger: treasury.TriggerPayment,
			}
			first := treasury.Evaluate(in)
			for i := 0; i < 20; i++ {
				Expect(treasury.Evaluate(in)).To(Equal(first))
			}
		})
	})

	Context("THRESHOLD", func() {
		rule := &model.TreasuryRule{
			Type:            model.RuleTypeThreshold,
			ThresholdAmount: decimal.NewNullDecimal(dec("1000")),
			IsActive:        true,
		}

		It("accumulates until the threshold and then converts the total", func() {
			balance := decimal.Zero
			var decisions []treasury.Decision
			for i := 0; i < 3; i++ {
				d := treasury.Evaluate(treasury.Input{
					Payment: payment(40000),
					Rule:    rule,
					State:   treasury.State{AccumulatedBalance: balance},
					Trigger: treasury.TriggerPayment,
				})
				decisions = append(decisions, d)
				balance = d.AccumulatedBalance
			}

			Expect(decisions[0].Convert).To(BeFalse())
			Expect(decisions[0].AccumulatedBalance.Equal(dec("400"))).To(BeTrue())
			Expect(decisions[1].Convert).To(BeFalse())
			Expect(decisions[1].AccumulatedBalance.Equal(dec("800"))).To(BeTrue())
			Expect(decisions[2].Convert).To(BeTrue())
			Expect(decisions[2].Amount.Equal(dec("1200"))).To(BeTrue())
			Expect(decisions[2].ResetAccumulator).To(BeTrue())
			Expect(balance.IsZero()).To(BeTrue())
		})

		It("keeps the balance when a volume limit blocks the conversion", func() {
			d := treasury.Evaluate(treasury.Input{
				Payment: payment(40000),
				Rule:    rule,
				State: treasury.State{
					AccumulatedBalance: dec("800"),
					Limits:             model.VolumeLimits{PerTransaction: decimal.NewNullDecimal(dec("500"))},
				},
				Trigger: treasury.TriggerPayment,
			})
			Expect(d.Convert).To(BeFalse())
			Expect(d.Reason).To(Equal(treasury.ReasonPerTransactionLimit))
			Expect(d.ResetAccumulator).To(BeFalse())
			Expect(d.AccumulatedBalance.Equal(dec("1200"))).To(BeTrue())
		})
	})

	Context("FIXED_AMOUNT and DCA", func() {
		It("converts the fixed amount regardless of payment size", func() {
			d := treasury.Evaluate(treasury.Input{
				Payment: payment(999),
				Rule: &model.TreasuryRule{
					Type:        model.RuleTypeFixedAmount,
					FixedAmount: decimal.NewNullDecimal(dec("250")),
					IsActive:    true,
				},
				Trigger: treasury.TriggerPayment,
			})
			Expect(d.Convert).To(BeTrue())
			Expect(d.Amount.Equal(dec("250"))).To(BeTrue())
		})

		It("runs DCA only on the schedule", func() {
			rule := &model.TreasuryRule{
				Type:        model.RuleTypeDCA,
				FixedAmount: decimal.NewNullDecimal(dec("100")),
				IsActive:    true,
			}

			onPayment := treasury.Evaluate(treasury.Input{Payment: payment(50000), Rule: rule, Trigger: treasury.TriggerPayment})
			Expect(onPayment.Convert).To(BeFalse())
			Expect(onPayment.Reason).To(Equal(treasury.ReasonDCAScheduleOnly))

			onSchedule := treasury.Evaluate(treasury.Input{Rule: rule, Trigger: treasury.TriggerSchedule})
			Expect(onSchedule.Convert).To(BeTrue())
			Expect(onSchedule.Amount.Equal(dec("100"))).To(BeTrue())
		})
	})

	Context("guards", func() {
		It("does nothing without an active rule", func() {
			d := treasury.Evaluate(treasury.Input{Payment: payment(100000), Trigger: treasury.TriggerPayment})
			Expect(d.Convert).To(BeFalse())
			Expect(d.Reason).To(Equal(treasury.ReasonNoActiveRule))

			inactive := percentageRule("10", "0", "0")
			inactive.IsActive = false
			d = treasury.Evaluate(treasury.Input{Payment: payment(100000), Rule: inactive, Trigger: treasury.TriggerPayment})
			Expect(d.Reason).To(Equal(treasury.ReasonNoActiveRule))
		})

		It("ignores payments that did not succeed", func() {
			p := payment(100000)
			p.Status = model.PaymentStatusFailed
			d := treasury.Evaluate(treasury.Input{Payment: p, Rule: percentageRule("10", "0", "0"), Trigger: treasury.TriggerPayment})
			Expect(d.Convert).To(BeFalse())
			Expect(d.Reason).To(Equal(treasury.ReasonPaymentNotSucceeded))
		})

		It("enforces the daily and monthly limits", func() {
			in := treasury.Input{
				Payment: payment(100000),
				Rule:    percentageRule("10", "0", "0"),
				State: treasury.State{
					ConvertedToday: dec("950"),
					Limits:         model.VolumeLimits{Daily: decimal.NewNullDecimal(dec("1000"))},
				},
				Trigger: treasury.TriggerPayment,
			}
			Expect(treasury.Evaluate(in).Reason).To(Equal(treasury.ReasonDailyLimit))

			in.State = treasury.State{
				ConvertedThisMonth: dec("9950"),
				Limits:             model.VolumeLimits{Monthly: decimal.NewNullDecimal(dec("10000"))},
			}
			Expect(treasury.Evaluate(in).Reason).To(Equal(treasury.ReasonMonthlyLimit))

			in.State.ConvertedThisMonth = dec("9900")
			Expect(treasury.Evaluate(in).Convert).To(BeTrue())
		})
	})
})
