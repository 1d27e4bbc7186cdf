// Package models contains GORM persistence models that map to database tables.
// Domain entities stay free of ORM tags; repositories convert with ToDomain and
// the *FromDomain constructors.
//
//   - order.go: orders and order_items
//   - inventory.go: product_variants, carts and cart_items
//   - sync_queue.go: crm_sync_queue, the CRM sync outbox
package models

// All lists every model, in dependency order, for AutoMigrate in tests and
// local tooling. Production schemas come from the SQL migrations.
func All() []any {
	return []any{
		&ProductVariantModel{},
		&CartModel{},
		&CartItemModel{},
		&OrderModel{},
		&OrderItemModel{},
		&SyncQueueItemModel{},
	}
}
