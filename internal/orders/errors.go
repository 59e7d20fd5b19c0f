package orders

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidTransition  = errors.New("order: invalid status transition")
	ErrPreconditionFailed = errors.New("order: precondition failed")
	ErrValidation         = errors.New("order: validation failed")
	ErrInsufficientStock  = errors.New("order: insufficient stock")
	ErrNotFound           = errors.New("not found")
	// ErrPersistence means the final status write or commit failed.
	ErrPersistence = errors.New("order: persistence failure")
)

type Code string

const (
	CodeInvalidTransition  Code = "invalid_transition"
	CodePreconditionFailed Code = "precondition_failed"
	CodeValidation         Code = "validation_error"
	CodeInsufficientStock  Code = "insufficient_stock"
	CodeNotFound           Code = "not_found"
	CodePersistence        Code = "persistence_failure"
	CodeInternal           Code = "internal"
)

// ShortItem describes one product that could not cover the requested quantity.
type ShortItem struct {
	ProductID string `json:"product_id"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
}

// InsufficientStockError lists every short item, not only the first one found.
type InsufficientStockError struct {
	Items []ShortItem
}

func (e *InsufficientStockError) Error() string {
	if e == nil || len(e.Items) == 0 {
		return ErrInsufficientStock.Error()
	}
	parts := make([]string, 0, len(e.Items))
	for _, it := range e.Items {
		parts = append(parts, fmt.Sprintf("%s (requested %d, available %d)", it.ProductID, it.Requested, it.Available))
	}
	return ErrInsufficientStock.Error() + ": " + strings.Join(parts, ", ")
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// ShortItems extracts the short item list from err, if any.
func ShortItems(err error) []ShortItem {
	var se *InsufficientStockError
	if errors.As(err, &se) {
		return se.Items
	}
	return nil
}

// CodeOf maps err onto the stable code surfaced to callers.
func CodeOf(err error) Code {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrPersistence):
		return CodePersistence
	case errors.Is(err, ErrInsufficientStock):
		return CodeInsufficientStock
	case errors.Is(err, ErrInvalidTransition):
		return CodeInvalidTransition
	case errors.Is(err, ErrPreconditionFailed):
		return CodePreconditionFailed
	case errors.Is(err, ErrValidation):
		return CodeValidation
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	default:
		return CodeInternal
	}
}
