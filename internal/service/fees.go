package service

import (
	"fmt"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// FeeSchedule splits a gross payment into platform fee and seller amount
type FeeSchedule struct {
	percent decimal.Decimal
}

// NewFeeSchedule builds a schedule charging percent (0-100) of every payment
func NewFeeSchedule(percent decimal.Decimal) (FeeSchedule, error) {
	if percent.IsNegative() || percent.GreaterThan(hundred) {
		return FeeSchedule{}, fmt.Errorf("platform fee percent must be between 0 and 100, got %s", percent)
	}
	return FeeSchedule{percent: percent}, nil
}

// Percent returns the configured fee percentage
func (f FeeSchedule) Percent() decimal.Decimal {
	return f.percent
}

// Split returns the platform fee, rounded half-up to the minor unit, and the
// seller amount. fee + seller always equals gross.
func (f FeeSchedule) Split(gross int64) (fee, seller int64) {
	fee = decimal.NewFromInt(gross).Mul(f.percent).Div(hundred).Round(0).IntPart()
	return fee, gross - fee
}
