package treasury

import (
	"encoding/json"
	"reflect"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/dwarvesf/treasury-settlement/internal/model"
)

var ErrInvalidRuleConfig = errors.New("invalid treasury rule configuration")

// RuleConfig is the rule JSON the tenant admin surface sends.
type RuleConfig struct {
	Type                 model.RuleType   `json:"type" validate:"required,oneof=PERCENTAGE THRESHOLD FIXED_AMOUNT DCA"`
	Percentage           *decimal.Decimal `json:"percentage,omitempty" validate:"omitempty,gt=0,lte=100"`
	ThresholdAmount      *decimal.Decimal `json:"thresholdAmount,omitempty" validate:"omitempty,gt=0"`
	FixedAmount          *decimal.Decimal `json:"fixedAmount,omitempty" validate:"omitempty,gt=0"`
	MinTransactionAmount decimal.Decimal  `json:"minTransactionAmount" validate:"gte=0"`
	MaxTransactionAmount decimal.Decimal  `json:"maxTransactionAmount" validate:"gte=0"`
	IsActive             bool             `json:"isActive"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// numeric tags compare decimals through their float value
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
	return v
}

// ParseRuleConfig decodes and validates rule JSON.
func ParseRuleConfig(raw []byte) (*RuleConfig, error) {
	var cfg RuleConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, errors.Wrap(ErrInvalidRuleConfig, err.Error())
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c RuleConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(ErrInvalidRuleConfig, err.Error())
	}

	switch c.Type {
	case model.RuleTypePercentage:
		if c.Percentage == nil || !c.Percentage.IsPositive() {
			return errors.Wrap(ErrInvalidRuleConfig, "a positive percentage is required for PERCENTAGE rules")
		}
	case model.RuleTypeThreshold:
		if c.ThresholdAmount == nil || !c.ThresholdAmount.IsPositive() {
			return errors.Wrap(ErrInvalidRuleConfig, "a positive thresholdAmount is required for THRESHOLD rules")
		}
	case model.RuleTypeFixedAmount, model.RuleTypeDCA:
		if c.FixedAmount == nil || !c.FixedAmount.IsPositive() {
			return errors.Wrap(ErrInvalidRuleConfig, "a positive fixedAmount is required for "+string(c.Type)+" rules")
		}
	}

	if c.MaxTransactionAmount.IsPositive() && c.MaxTransactionAmount.LessThan(c.MinTransactionAmount) {
		return errors.Wrap(ErrInvalidRuleConfig, "maxTransactionAmount is below minTransactionAmount")
	}
	return nil
}

// ToRule builds the stored rule for a tenant. ID and timestamps are left
// to the caller.
func (c RuleConfig) ToRule(tenantID string) *model.TreasuryRule {
	return &model.TreasuryRule{
		TenantID:             tenantID,
		Type:                 c.Type,
		Percentage:           nullable(c.Percentage),
		ThresholdAmount:      nullable(c.ThresholdAmount),
		FixedAmount:          nullable(c.FixedAmount),
		MinTransactionAmount: c.MinTransactionAmount,
		MaxTransactionAmount: c.MaxTransactionAmount,
		IsActive:             c.IsActive,
	}
}

func nullable(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(*d)
}
