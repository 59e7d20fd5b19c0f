package memstore

import "github.com/ariefcatur/gift-orders/internal/orders"

// SeedDemo loads a small catalogue for STORE=memory runs.
func SeedDemo(s *Store) {
	s.PutProduct(orders.InventoryRecord{ProductID: "print-a3", Stock: 12, LowStockThreshold: 3})
	s.PutProduct(orders.InventoryRecord{ProductID: "frame-oak", Stock: 4, LowStockThreshold: 2})
	s.PutProduct(orders.InventoryRecord{ProductID: "choc-box", Stock: 0, AllowBackorder: true})

	s.PutDriver(orders.Driver{ID: "drv-1", Name: "Sari", Phone: "+62811000001"})
	s.PutDriver(orders.Driver{ID: "drv-2", Name: "Bima", Phone: "+62811000002"})

	s.PutOrder(orders.Order{
		ID: "ord-1", ShortCode: "GF-1001", Status: orders.StatusVerifying,
		SubtotalCents: 250000, DeliveryFeeCents: 20000, TotalCents: 270000,
		Items: []orders.Item{{ProductID: "print-a3", Quantity: 1, UnitPriceCents: 150000}, {ProductID: "frame-oak", Quantity: 1, UnitPriceCents: 100000}},
	})
	s.PutOrder(orders.Order{
		ID: "ord-2", ShortCode: "GF-1002", Status: orders.StatusAwaitingPayment,
		SubtotalCents: 90000, DeliveryFeeCents: 20000, TotalCents: 110000,
		Items: []orders.Item{{ProductID: "choc-box", Quantity: 2, UnitPriceCents: 45000}},
	})
}
