package orders

import (
	"fmt"
	"strings"
)

type Status string

const (
	StatusPending         Status = "pending"
	StatusAwaitingPayment Status = "awaiting_payment"
	StatusVerifying       Status = "verifying"
	StatusPaid            Status = "paid"
	StatusAssigned        Status = "assigned"
	StatusDelivered       Status = "delivered"
	StatusUndelivered     Status = "undelivered"
	StatusRefunded        Status = "refunded"
	StatusCanceled        Status = "canceled"
)

var allStatuses = []Status{
	StatusPending,
	StatusAwaitingPayment,
	StatusVerifying,
	StatusPaid,
	StatusAssigned,
	StatusDelivered,
	StatusUndelivered,
	StatusRefunded,
	StatusCanceled,
}

var validNext = map[Status]map[Status]bool{
	StatusPending:         {StatusAwaitingPayment: true, StatusVerifying: true},
	StatusAwaitingPayment: {StatusPending: true, StatusVerifying: true, StatusPaid: true, StatusCanceled: true},
	StatusVerifying:       {StatusAwaitingPayment: true, StatusPaid: true, StatusRefunded: true, StatusCanceled: true},
	StatusPaid:            {StatusVerifying: true, StatusAssigned: true, StatusRefunded: true, StatusCanceled: true},
	StatusAssigned:        {StatusPaid: true, StatusDelivered: true, StatusUndelivered: true, StatusRefunded: true, StatusCanceled: true},
	StatusDelivered:       {StatusAssigned: true, StatusRefunded: true},
	StatusUndelivered:     {StatusAssigned: true, StatusDelivered: true, StatusRefunded: true, StatusCanceled: true},
	StatusRefunded:        {StatusVerifying: true, StatusPaid: true},
	StatusCanceled:        {StatusAwaitingPayment: true, StatusVerifying: true},
}

// aliases maps the spellings used by older dashboard endpoints and the
// payment provider callbacks onto the canonical set.
var aliases = map[string]Status{
	"cancelled":        StatusCanceled,
	"cancel":           StatusCanceled,
	"awaiting":         StatusAwaitingPayment,
	"payment_pending":  StatusAwaitingPayment,
	"pending_payment":  StatusAwaitingPayment,
	"verify":           StatusVerifying,
	"verification":     StatusVerifying,
	"out_for_delivery": StatusAssigned,
	"failed_delivery":  StatusUndelivered,
	"not_delivered":    StatusUndelivered,
	"refund":           StatusRefunded,
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

// AllowedTargets returns the statuses reachable from s in table order.
func AllowedTargets(s Status) []Status {
	next := validNext[s]
	out := make([]Status, 0, len(next))
	for _, st := range allStatuses {
		if next[st] {
			out = append(out, st)
		}
	}
	return out
}

func AllStatuses() []Status {
	out := make([]Status, len(allStatuses))
	copy(out, allStatuses)
	return out
}

// RequiresReason reports whether entering s needs an operator reason.
func RequiresReason(s Status) bool {
	switch s {
	case StatusUndelivered, StatusRefunded, StatusCanceled:
		return true
	}
	return false
}

func (s Status) Valid() bool {
	_, ok := validNext[s]
	return ok
}

func (s Status) String() string { return string(s) }

// ParseStatus normalizes case, spacing and hyphens and resolves known aliases.
func ParseStatus(raw string) (Status, error) {
	key := strings.ToLower(strings.TrimSpace(raw))
	key = strings.NewReplacer("-", "_", " ", "_").Replace(key)
	if key == "" {
		return "", fmt.Errorf("%w: status is required", ErrValidation)
	}
	if s := Status(key); s.Valid() {
		return s, nil
	}
	if s, ok := aliases[key]; ok {
		return s, nil
	}
	return "", fmt.Errorf("%w: unknown status %q", ErrValidation, raw)
}
