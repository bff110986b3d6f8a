package fees

import (
	"fmt"

	"github.com/shopspring/decimal"

	pkgerrors "github.com/atelierworks/atelier-backend/pkg/errors"
)

// Split is the deterministic fee division for one captured amount. The net
// is always derived by subtraction from the gross, so
// PlatformFeeCents + NetAmountCents == GrossCents holds by construction.
type Split struct {
	GrossCents       int64
	PlatformFeeCents int64
	NetAmountCents   int64
}

// Calculator computes the platform/seller split for a gross amount. It is
// pure: no clock, no I/O, no state beyond the configured rate.
type Calculator struct {
	rate decimal.Decimal
}

// DefaultRate is the platform's share when no rate is configured.
var DefaultRate = decimal.RequireFromString("0.15")

// NewCalculator validates the rate and returns a calculator.
func NewCalculator(rate decimal.Decimal) (*Calculator, error) {
	if rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("platform fee rate %s must be in [0, 1)", rate)
	}
	return &Calculator{rate: rate}, nil
}

// Rate returns the configured platform rate.
func (c *Calculator) Rate() decimal.Decimal {
	return c.rate
}

// Split divides grossCents into the platform fee and the seller net. The fee
// is gross x rate rounded half-to-even to the minor unit, applied exactly
// once; the net is the remainder.
func (c *Calculator) Split(grossCents int64) (Split, error) {
	if grossCents <= 0 {
		return Split{}, pkgerrors.New(pkgerrors.CodeValidation, "gross amount must be positive")
	}

	gross := decimal.NewFromInt(grossCents)
	fee := gross.Mul(c.rate).RoundBank(0)
	feeCents := fee.IntPart()

	return Split{
		GrossCents:       grossCents,
		PlatformFeeCents: feeCents,
		NetAmountCents:   grossCents - feeCents,
	}, nil
}
