package orders

import "time"

type Order struct {
	ID               string    `json:"id"`
	ShortCode        string    `json:"short_code"`
	Status           Status    `json:"status"`
	SubtotalCents    int64     `json:"subtotal_cents"`
	DeliveryFeeCents int64     `json:"delivery_fee_cents"`
	TotalCents       int64     `json:"total_cents"`
	DriverID         string    `json:"driver_id,omitempty"`
	InventoryHeld    bool      `json:"inventory_held"` // items currently decremented from stock
	Items            []Item    `json:"items"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func (o Order) HasDriver() bool { return o.DriverID != "" }

// Item is the checkout-time snapshot of one order line.
type Item struct {
	ProductID      string `json:"product_id"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents"`
}

type InventoryRecord struct {
	ProductID         string    `json:"product_id"`
	Stock             int       `json:"stock"`
	LowStockThreshold int       `json:"low_stock_threshold"`
	AllowBackorder    bool      `json:"allow_backorder"`
	Available         bool      `json:"available"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func (r InventoryRecord) LowStock() bool {
	return r.Stock <= r.LowStockThreshold
}

type PayoutStatus string

const (
	PayoutPending  PayoutStatus = "pending"
	PayoutQueued   PayoutStatus = "queued"
	PayoutBlocked  PayoutStatus = "blocked"
	PayoutReverted PayoutStatus = "reverted"
	PayoutPaid     PayoutStatus = "paid"
)

func (s PayoutStatus) Valid() bool {
	switch s {
	case PayoutPending, PayoutQueued, PayoutBlocked, PayoutReverted, PayoutPaid:
		return true
	}
	return false
}

// Open reports whether the payout has not been settled or stopped yet.
func (s PayoutStatus) Open() bool {
	return s == PayoutQueued || s == PayoutPending
}

type Payout struct {
	ID          string       `json:"id"`
	OrderID     string       `json:"order_id"`
	DriverID    string       `json:"driver_id"`
	AmountCents int64        `json:"amount_cents"`
	Status      PayoutStatus `json:"status"`
	Reason      string       `json:"reason,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// AuditEntry is append-only.
type AuditEntry struct {
	ID        string         `json:"id"`
	OrderID   string         `json:"order_id"`
	OldStatus Status         `json:"old_status"`
	NewStatus Status         `json:"new_status"`
	Reason    string         `json:"reason,omitempty"`
	Actor     string         `json:"actor"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

type Driver struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// Origin tags where a transition request came from.
type Origin string

const (
	OriginSingle  Origin = "single"
	OriginBulk    Origin = "bulk"
	OriginDriver  Origin = "driver_assignment"
	OriginPayment Origin = "payment"
)
