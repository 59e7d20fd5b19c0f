package orders

import (
	"fmt"
	"strings"
)

// PaymentStatus is the payment-side vocabulary used by the payment review
// screen. Each value drives exactly one order status.
type PaymentStatus string

const (
	PaymentUnpaid    PaymentStatus = "unpaid"
	PaymentSubmitted PaymentStatus = "submitted"
	PaymentVerified  PaymentStatus = "verified"
	PaymentRejected  PaymentStatus = "rejected"
	PaymentRefunded  PaymentStatus = "refunded"
)

var paymentToOrder = map[PaymentStatus]Status{
	PaymentUnpaid:    StatusAwaitingPayment,
	PaymentSubmitted: StatusVerifying,
	PaymentVerified:  StatusPaid,
	PaymentRejected:  StatusCanceled,
	PaymentRefunded:  StatusRefunded,
}

func ParsePaymentStatus(raw string) (PaymentStatus, error) {
	p := PaymentStatus(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := paymentToOrder[p]; !ok {
		return "", fmt.Errorf("%w: unknown payment status %q", ErrValidation, raw)
	}
	return p, nil
}

func (p PaymentStatus) OrderStatus() Status {
	return paymentToOrder[p]
}
