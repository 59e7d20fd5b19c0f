package payouts

import (
	"fmt"

	"github.com/ariefcatur/gift-orders/internal/config"
	"github.com/ariefcatur/gift-orders/internal/orders"
	"github.com/shopspring/decimal"
)

// Policy is the single configured rule for a driver's share of an order.
type Policy struct {
	Mode      string
	FlatCents int64
	Percent   decimal.Decimal
}

func PolicyFromConfig(c config.PayoutConfig) Policy {
	return Policy{Mode: c.Mode, FlatCents: c.FlatCents, Percent: c.Percent}
}

// Amount returns the payout in minor units. Percent mode rounds half away
// from zero to the nearest minor unit.
func (p Policy) Amount(o orders.Order) (int64, error) {
	switch p.Mode {
	case config.PayoutFlat:
		return p.FlatCents, nil
	case config.PayoutPercent:
		return decimal.NewFromInt(o.TotalCents).Mul(p.Percent).Round(0).IntPart(), nil
	default:
		return 0, fmt.Errorf("payouts: unknown policy mode %q", p.Mode)
	}
}
