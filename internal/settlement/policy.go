package settlement

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/jeoahs/marketplace/internal/money"
)

// Split is the financial decomposition of one line subtotal. The three
// parts always sum back to the subtotal exactly; rounding remainder is
// absorbed by VendorNet so the platform and affiliate never gain from
// rounding.
type Split struct {
	Commission money.Money
	Fee        money.Money
	VendorNet  money.Money
}

// FeeSchedule maps vendor subscription plans to platform fee rates. A
// schedule is validated once at construction so settlement never has to
// re-check that a configured rate can drive vendor revenue negative.
type FeeSchedule struct {
	defaultRate decimal.Decimal
	planRates   map[string]decimal.Decimal
}

// NewFeeSchedule validates the default rate and every per-plan override.
// Each rate must lie in [0,1).
func NewFeeSchedule(defaultRate decimal.Decimal, planRates map[string]decimal.Decimal) (*FeeSchedule, error) {
	if err := validateRate("default", defaultRate); err != nil {
		return nil, err
	}
	for plan, rate := range planRates {
		if err := validateRate(plan, rate); err != nil {
			return nil, err
		}
	}
	return &FeeSchedule{defaultRate: defaultRate, planRates: planRates}, nil
}

func validateRate(plan string, rate decimal.Decimal) error {
	if rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("fee schedule: plan %q rate %s outside [0,1)", plan, rate)
	}
	return nil
}

// RateFor returns the platform fee rate for a vendor plan, falling back
// to the default rate for unknown or empty plans.
func (s *FeeSchedule) RateFor(plan string) decimal.Decimal {
	if rate, ok := s.planRates[plan]; ok {
		return rate
	}
	return s.defaultRate
}

// ComputeSplit derives the commission, platform fee and vendor net for
// one line. Commission and fee are each rounded half-up exactly once;
// the vendor net takes whatever remains. When commission and fee round
// up against a subtotal they exactly exhaust, the fee yields the
// contested minor unit so the vendor never nets below zero.
func ComputeSplit(lineSubtotal money.Money, commissionPercent int, hasAffiliate bool, feeRate decimal.Decimal) Split {
	var commission money.Money
	if hasAffiliate {
		commission = lineSubtotal.ApplyPercent(int64(commissionPercent))
	}
	fee := lineSubtotal.ApplyRate(feeRate)

	if commission.Add(fee) > lineSubtotal {
		fee = lineSubtotal.Sub(commission)
	}

	return Split{
		Commission: commission,
		Fee:        fee,
		VendorNet:  lineSubtotal.Sub(commission).Sub(fee),
	}
}
