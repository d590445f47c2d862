package schema

import "time"

// DefaultDB returns a fresh, fully-populated database at CurrentVersion.
func DefaultDB(now time.Time) *Database {
	stamp := now.UTC().Format(time.RFC3339Nano)
	return &Database{
		SchemaVersion:  int(CurrentVersion),
		Meta:           Meta{CreatedAt: stamp, UpdatedAt: stamp},
		Estoque:        []Product{},
		Vendas:         []Sale{},
		Caixa:          CashRegister{},
		CashSessions:   []CashSession{},
		Devedores:      []Debtor{},
		AuditLog:       []AuditEntry{},
		StockMovements: []StockMovement{},
		SaleVoids:      []SaleVoid{},
		FiscalQueue:    []map[string]any{},
		Settings:       map[string]any{},
	}
}

// FormatTime renders t the way every timestamp in the database is stored.
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
