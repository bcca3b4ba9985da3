// Package models contains GORM-specific persistence models that map to database tables.
// These models are separate from domain entities to keep the domain layer free
// from ORM concerns.
//
// Structure:
//   - base.go: BaseModel shared by mirrored records
//   - accounting.go: customers, invoices with their items, orders
//   - sync.go: sync runs, the append-only sync log and the sync state row
package models
