package schema

// MovementType classifies a stock movement.
type MovementType string

const (
	MovementEntrada   MovementType = "entrada"
	MovementSaida     MovementType = "saida"
	MovementAjuste    MovementType = "ajuste"
	MovementPerda     MovementType = "perda"
	MovementDevolucao MovementType = "devolucao"
)

// Valid reports whether t is one of the known movement types.
func (t MovementType) Valid() bool {
	switch t {
	case MovementEntrada, MovementSaida, MovementAjuste, MovementPerda, MovementDevolucao:
		return true
	}
	return false
}

// SignedDelta forces the sign of delta to the convention of t:
// saida and perda are negative, entrada and devolucao positive, ajuste free.
func (t MovementType) SignedDelta(delta int64) int64 {
	abs := delta
	if abs < 0 {
		abs = -abs
	}
	switch t {
	case MovementSaida, MovementPerda:
		return -abs
	case MovementEntrada, MovementDevolucao:
		return abs
	}
	return delta
}

// CashMovementType classifies a cash session movement.
type CashMovementType string

const (
	CashVenda   CashMovementType = "venda"
	CashEstorno CashMovementType = "estorno"
	CashSangria CashMovementType = "sangria"
	CashReforco CashMovementType = "reforco"
)

// Valid reports whether t is one of the known cash movement types.
func (t CashMovementType) Valid() bool {
	switch t {
	case CashVenda, CashEstorno, CashSangria, CashReforco:
		return true
	}
	return false
}

// Sale statuses.
const (
	SaleActive    = "ativa"
	SaleCancelled = "cancelada"
)

// Database is the root aggregate persisted under the storage key.
type Database struct {
	SchemaVersion  int              `json:"schemaVersion"`
	Meta           Meta             `json:"meta"`
	Estoque        []Product        `json:"estoque"`
	Vendas         []Sale           `json:"vendas"`
	Caixa          CashRegister     `json:"caixa"`
	CashSessions   []CashSession    `json:"cashSessions"`
	Devedores      []Debtor         `json:"devedores"`
	AuditLog       []AuditEntry     `json:"auditLog"`
	StockMovements []StockMovement  `json:"stockMovements"`
	SaleVoids      []SaleVoid       `json:"saleVoids"`
	FiscalQueue    []map[string]any `json:"fiscalQueue"`
	Settings       map[string]any   `json:"settings"`
}

// Meta carries bookkeeping timestamps and sync state.
type Meta struct {
	CreatedAt      string `json:"createdAt"`
	UpdatedAt      string `json:"updatedAt"`
	DeviceID       string `json:"deviceId,omitempty"`
	RemoteRev      int64  `json:"remoteRev,omitempty"`
	RemoteSyncedAt string `json:"remoteSyncedAt,omitempty"`
}

// Product is a stock item identified by Cod.
// Monetary fields are integer centavos.
type Product struct {
	Cod       string  `json:"cod"`
	Nome      string  `json:"nome"`
	Qtd       int64   `json:"qtd"`
	Min       int64   `json:"min"`
	CustoC    int64   `json:"custo_c"`
	PrecoC    int64   `json:"preco_c"`
	LucroP    float64 `json:"lucro_p"`
	Barcode   string  `json:"barcode,omitempty"`
	Categoria string  `json:"categoria,omitempty"`
	UpdatedAt string  `json:"updatedAt,omitempty"`
}

// SaleItem is one line of a sale.
type SaleItem struct {
	Cod    string `json:"cod" validate:"required"`
	Nome   string `json:"nome,omitempty"`
	Qtd    int64  `json:"qtd" validate:"gt=0"`
	PrecoC int64  `json:"preco_c" validate:"gte=0"`
}

// Sale is created once at checkout and only ever mutated by cancellation.
type Sale struct {
	ID                 string     `json:"id"`
	DataISO            string     `json:"dataIso"`
	Itens              []SaleItem `json:"itens"`
	SubtotalC          int64      `json:"subtotal_c"`
	DescontoC          int64      `json:"desconto_c"`
	TotalC             int64      `json:"total_c"`
	Status             string     `json:"status"`
	Pagamento          string     `json:"pagamento,omitempty"`
	CashSessionID      string     `json:"cashSessionId,omitempty"`
	CanceladaEm        string     `json:"canceladaEm,omitempty"`
	MotivoCancelamento string     `json:"motivoCancelamento,omitempty"`
	CanceladaPor       string     `json:"canceladaPor,omitempty"`
}

// StockMovement is an immutable stock ledger entry.
type StockMovement struct {
	ID         string         `json:"id"`
	AtISO      string         `json:"atIso"`
	Type       MovementType   `json:"type"`
	ProductCod string         `json:"productCod"`
	QtyDelta   int64          `json:"qtyDelta"`
	Reason     string         `json:"reason"`
	Actor      string         `json:"actor,omitempty"`
	Meta       map[string]any `json:"meta,omitempty"`
}

// CashMovement is one signed entry of a cash session.
type CashMovement struct {
	ID      string           `json:"id"`
	AtISO   string           `json:"atIso"`
	Type    CashMovementType `json:"type"`
	AmountC int64            `json:"amount_c"`
	Meta    map[string]any   `json:"meta,omitempty"`
}

// CashSession is a register shift. ClosedAtISO, CountedC and DiffC stay nil
// while the session is open and never change once set.
type CashSession struct {
	ID          string         `json:"id"`
	OpenedAtISO string         `json:"openedAtIso"`
	ClosedAtISO *string        `json:"closedAtIso"`
	InitialC    int64          `json:"initial_c"`
	ExpectedC   int64          `json:"expected_c"`
	CountedC    *int64         `json:"counted_c"`
	DiffC       *int64         `json:"diff_c"`
	Movements   []CashMovement `json:"movements"`
	OpenedBy    string         `json:"openedBy,omitempty"`
	ClosedBy    string         `json:"closedBy,omitempty"`
}

// Open reports whether the session has not been closed.
func (s *CashSession) Open() bool {
	return s.ClosedAtISO == nil
}

// CashRegister points at the open session, if any.
type CashRegister struct {
	OpenSessionID       string `json:"openSessionId"`
	LastClosedSessionID string `json:"lastClosedSessionId,omitempty"`
}

// SaleVoid records the cancellation of one sale. At most one per SaleID.
type SaleVoid struct {
	ID          string   `json:"id"`
	SaleID      string   `json:"saleId"`
	AtISO       string   `json:"atIso"`
	Reason      string   `json:"reason"`
	Restock     bool     `json:"restock"`
	MovementIDs []string `json:"movementIds"`
	RefundC     int64    `json:"refund_c"`
	Actor       string   `json:"actor,omitempty"`
}

// Debtor is a customer carrying an open balance.
type Debtor struct {
	ID        string `json:"id"`
	Nome      string `json:"nome"`
	Telefone  string `json:"telefone,omitempty"`
	Doc       string `json:"doc,omitempty"`
	SaldoC    int64  `json:"saldo_c"`
	UpdatedAt string `json:"updatedAt,omitempty"`
}

// AuditEntry is one line of the audit trail.
type AuditEntry struct {
	ID       string         `json:"id"`
	AtISO    string         `json:"atIso"`
	Action   string         `json:"action"`
	Actor    string         `json:"actor"`
	Entity   string         `json:"entity,omitempty"`
	EntityID string         `json:"entityId,omitempty"`
	Details  map[string]any `json:"details,omitempty"`
}

// MaxAuditEntries bounds the audit log; older entries are dropped first.
const MaxAuditEntries = 5000

// Collection keys of the root object.
const (
	KeyEstoque        = "estoque"
	KeyVendas         = "vendas"
	KeyCaixa          = "caixa"
	KeyCashSessions   = "cashSessions"
	KeyDevedores      = "devedores"
	KeyAuditLog       = "auditLog"
	KeyStockMovements = "stockMovements"
	KeySaleVoids      = "saleVoids"
	KeyFiscalQueue    = "fiscalQueue"
	KeySettings       = "settings"
	KeyMeta           = "meta"
	KeySchemaVersion  = "schemaVersion"
)

// FindProduct returns the index of the product with cod, or -1.
func (db *Database) FindProduct(cod string) int {
	for i := range db.Estoque {
		if db.Estoque[i].Cod == cod {
			return i
		}
	}
	return -1
}

// FindSale returns the index of the sale with id, or -1.
func (db *Database) FindSale(id string) int {
	for i := range db.Vendas {
		if db.Vendas[i].ID == id {
			return i
		}
	}
	return -1
}

// FindCashSession returns the index of the cash session with id, or -1.
func (db *Database) FindCashSession(id string) int {
	for i := range db.CashSessions {
		if db.CashSessions[i].ID == id {
			return i
		}
	}
	return -1
}

// OpenSession returns the session the register points at, or nil.
func (db *Database) OpenSession() *CashSession {
	if db.Caixa.OpenSessionID == "" {
		return nil
	}
	i := db.FindCashSession(db.Caixa.OpenSessionID)
	if i < 0 || !db.CashSessions[i].Open() {
		return nil
	}
	return &db.CashSessions[i]
}

// Counts summarizes collection sizes for listings and import previews.
func (db *Database) Counts() map[string]int {
	return map[string]int{
		KeyEstoque:        len(db.Estoque),
		KeyVendas:         len(db.Vendas),
		KeyCashSessions:   len(db.CashSessions),
		KeyDevedores:      len(db.Devedores),
		KeyAuditLog:       len(db.AuditLog),
		KeyStockMovements: len(db.StockMovements),
		KeySaleVoids:      len(db.SaleVoids),
		KeyFiscalQueue:    len(db.FiscalQueue),
	}
}
