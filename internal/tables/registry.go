// Package tables is the static registry of syncable entity tables and the
// authorization policy the sync endpoint applies to them.
//
// Every sync decision (cursor column, who may mutate, which field carries the
// owner, soft or hard delete) is read from here. Table is a closed enum, so a
// new table cannot be added without giving it a Spec.
package tables

import "fmt"

// Table identifies one syncable entity table.
type Table uint8

const (
	Categories Table = iota + 1
	Products
	Customers
	Suppliers
	Sales
	SaleItems
	SupplierOrders
	SupplierOrderItems
	CustomerOrders
	CustomerOrderItems
	StockMovements
	CreditTransactions
	AuditLog
	Expenses
	PriceHistory
	Users

	numTables = iota
)

// Cursor selects which timestamp drives incremental pulls.
type Cursor uint8

const (
	// CursorUpdated tables are mutable; pulls compare the last write time.
	CursorUpdated Cursor = iota
	// CursorCreated tables are append-only; pulls compare the insert time.
	CursorCreated
)

// Scope is the mutation scope of a table.
type Scope uint8

const (
	ScopeOpen Scope = iota
	ScopeElevated
)

// Spec is the static classification of one table.
type Spec struct {
	Name       string
	Cursor     Cursor
	Scope      Scope
	OwnerField string
	SoftDelete bool
}

// OwnerScoped reports whether mutations are restricted to the record owner.
func (s Spec) OwnerScoped() bool { return s.OwnerField != "" }

var registry = [numTables + 1]Spec{
	Categories:         {Name: "categories", Scope: ScopeElevated, SoftDelete: true},
	Products:           {Name: "products", Scope: ScopeElevated, SoftDelete: true},
	Customers:          {Name: "customers", SoftDelete: true},
	Suppliers:          {Name: "suppliers", Scope: ScopeElevated, SoftDelete: true},
	Sales:              {Name: "sales", OwnerField: "cashierId", SoftDelete: true},
	SaleItems:          {Name: "sale_items"},
	SupplierOrders:     {Name: "supplier_orders", Scope: ScopeElevated, SoftDelete: true},
	SupplierOrderItems: {Name: "supplier_order_items", Scope: ScopeElevated},
	CustomerOrders:     {Name: "customer_orders", OwnerField: "createdBy", SoftDelete: true},
	CustomerOrderItems: {Name: "customer_order_items"},
	StockMovements:     {Name: "stock_movements", Cursor: CursorCreated, SoftDelete: true},
	CreditTransactions: {Name: "credit_transactions", Cursor: CursorCreated, SoftDelete: true},
	AuditLog:           {Name: "audit_log", Cursor: CursorCreated, OwnerField: "userId"},
	Expenses:           {Name: "expenses", Scope: ScopeElevated, OwnerField: "createdBy", SoftDelete: true},
	PriceHistory:       {Name: "price_history", Cursor: CursorCreated, Scope: ScopeElevated, SoftDelete: true},
	Users:              {Name: "users", SoftDelete: true},
}

var byName = func() map[string]Table {
	m := make(map[string]Table, numTables)
	for _, t := range All() {
		m[t.Spec().Name] = t
	}
	return m
}()

// All returns every registered table in declaration order.
func All() []Table {
	out := make([]Table, 0, numTables)
	for t := Table(1); t <= numTables; t++ {
		out = append(out, t)
	}
	return out
}

// Parse resolves a wire name. Unknown names report false.
func Parse(name string) (Table, bool) {
	t, ok := byName[name]
	return t, ok
}

// Valid reports whether t is a registered table.
func (t Table) Valid() bool { return t >= 1 && t <= numTables }

// Spec returns the classification of t. It panics on an unregistered value.
func (t Table) Spec() Spec {
	if !t.Valid() {
		panic(fmt.Sprintf("tables: unregistered table %d", uint8(t)))
	}
	return registry[t]
}

func (t Table) String() string {
	if !t.Valid() {
		return fmt.Sprintf("Table(%d)", uint8(t))
	}
	return registry[t].Name
}
