package treasury_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/dwarvesf/treasury-settlement/internal/model"
	"github.com/dwarvesf/treasury-settlement/internal/treasury"
)

var _ = Describe("ParseRuleConfig", func() {
	It("accepts a valid percentage rule", func() {
		cfg, err := treasury.ParseRuleConfig([]byte(`{"type":"PERCENTAGE","percentage":"10","minTransactionAmount":"10","maxTransactionAmount":"5000","isActive":true}`))
		Expect(err).NotTo(HaveOccurred())

		rule := cfg.ToRule("acme")
		Expect(rule.TenantID).To(Equal("acme"))
		Expect(rule.Type).To(Equal(model.RuleTypePercentage))
		Expect(rule.Percentage.Valid).To(BeTrue())
		Expect(rule.ThresholdAmount.Valid).To(BeFalse())
	})

	DescribeTable("rejects invalid rules",
		func(raw string) {
			_, err := treasury.ParseRuleConfig([]byte(raw))
			Expect(err).To(MatchError(treasury.ErrInvalidRuleConfig))
		},
		Entry("unknown type", `{"type":"MOON"}`),
		Entry("percentage above 100", `{"type":"PERCENTAGE","percentage":"150"}`),
		Entry("missing percentage", `{"type":"PERCENTAGE"}`),
		Entry("missing threshold", `{"type":"THRESHOLD"}`),
		Entry("non-positive fixed amount", `{"type":"DCA","fixedAmount":"0"}`),
		Entry("max below min", `{"type":"PERCENTAGE","percentage":"5","minTransactionAmount":"100","maxTransactionAmount":"50"}`),
		Entry("malformed json", `{"type":`),
	)
})
