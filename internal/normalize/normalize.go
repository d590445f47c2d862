package normalize

import (
	"fmt"
	"strings"
	"time"

	"github.com/roach88/erpstore/internal/canonical"
	"github.com/roach88/erpstore/internal/schema"
)

// NormalizeDB coerces v into a database satisfying every record invariant.
// v is usually the generic value produced by canonical.Decode; typed
// databases are accepted too. Anything that is not an object is replaced by
// schema.DefaultDB.
func NormalizeDB(v any, now time.Time) (*schema.Database, []string) {
	n := &normalizer{now: now}

	switch v.(type) {
	case *schema.Database, schema.Database:
		generic, err := canonical.ToValue(v)
		if err != nil {
			n.warnf("database could not be serialized (%v); replaced with defaults", err)
			return schema.DefaultDB(now), n.warnings
		}
		v = generic
	}

	raw, ok := v.(map[string]any)
	if !ok {
		n.warnf("database is not an object (%s); replaced with defaults", kindOf(v))
		return schema.DefaultDB(now), n.warnings
	}

	db := schema.DefaultDB(now)
	n.schemaVersion(raw, db)
	n.meta(raw, db)
	db.Estoque = n.products(n.array(raw, schema.KeyEstoque))
	db.Vendas = n.sales(n.array(raw, schema.KeyVendas))
	db.Devedores = n.debtors(n.array(raw, schema.KeyDevedores))
	db.StockMovements = n.movements(n.array(raw, schema.KeyStockMovements))
	db.CashSessions = n.sessions(n.array(raw, schema.KeyCashSessions))
	n.register(n.object(raw, schema.KeyCaixa), db)
	db.SaleVoids = n.voids(n.array(raw, schema.KeySaleVoids))
	db.AuditLog = n.audit(n.array(raw, schema.KeyAuditLog))
	db.FiscalQueue = n.fiscalQueue(n.array(raw, schema.KeyFiscalQueue))
	db.Settings = n.object(raw, schema.KeySettings)
	return db, n.warnings
}

// Checksum32 is canonical.Checksum32, exposed next to the validation it
// usually accompanies.
func Checksum32(text string) string {
	return canonical.Checksum32(text)
}

type normalizer struct {
	now      time.Time
	warnings []string
}

func (n *normalizer) warnf(format string, args ...any) {
	n.warnings = append(n.warnings, fmt.Sprintf(format, args...))
}

// intField coerces v like ToInt, warning about values out of the int64
// range and strings that read like dot-decimal numbers. field names the
// value in warnings.
func (n *normalizer) intField(v any, field string) (int64, bool) {
	if s, ok := v.(string); ok && LooksDotDecimal(s) {
		n.warnf("%s %q read as BR locale with \".\" as thousands separator", field, s)
	}
	x, ok := ToInt(v)
	if !ok {
		if d, isNum := toDecimal(v); isNum {
			n.warnf("%s %s is out of range; ignored", field, d.String())
		}
	}
	return x, ok
}

// array returns raw[key] as an array, warning when it had another type.
func (n *normalizer) array(raw map[string]any, key string) []any {
	v, present := raw[key]
	if arr, ok := v.([]any); ok {
		return arr
	}
	if present && v != nil {
		n.warnf("%s is not a list (%s); replaced with an empty list", key, kindOf(v))
	}
	return nil
}

// object returns raw[key] as an object, warning when it had another type.
func (n *normalizer) object(raw map[string]any, key string) map[string]any {
	v, present := raw[key]
	if obj, ok := v.(map[string]any); ok {
		return obj
	}
	if present && v != nil {
		n.warnf("%s is not an object (%s); replaced with an empty object", key, kindOf(v))
	}
	return map[string]any{}
}

func (n *normalizer) schemaVersion(raw map[string]any, db *schema.Database) {
	if v := schema.DetectVersion(raw); v != schema.CurrentVersion {
		n.warnf("schemaVersion %d set to %d", v, schema.CurrentVersion)
	}
	db.SchemaVersion = int(schema.CurrentVersion)
}

func (n *normalizer) meta(raw map[string]any, db *schema.Database) {
	m := n.object(raw, schema.KeyMeta)
	stamp := schema.FormatTime(n.now)

	if s, ok := m["createdAt"].(string); ok && s != "" {
		db.Meta.CreatedAt = s
	} else {
		n.warnf("meta.createdAt missing; set to %s", stamp)
	}
	if s, ok := m["updatedAt"].(string); ok && s != "" {
		db.Meta.UpdatedAt = s
	} else {
		db.Meta.UpdatedAt = db.Meta.CreatedAt
	}
	db.Meta.DeviceID = str(m, "deviceId")
	db.Meta.RemoteSyncedAt = str(m, "remoteSyncedAt")
	if rev, ok := n.intField(m["remoteRev"], "meta remoteRev"); ok && rev > 0 {
		db.Meta.RemoteRev = rev
	}
}

func (n *normalizer) fiscalQueue(items []any) []map[string]any {
	out := make([]map[string]any, 0, len(items))
	for i, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			n.warnf("fiscalQueue[%d] is not an object; dropped", i)
			continue
		}
		out = append(out, obj)
	}
	return out
}

func (n *normalizer) audit(items []any) []schema.AuditEntry {
	out := make([]schema.AuditEntry, 0, len(items))
	for i, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			n.warnf("auditLog[%d] is not an object; dropped", i)
			continue
		}
		out = append(out, schema.AuditEntry{
			ID:       n.id(obj, "audit"),
			AtISO:    str(obj, "atIso"),
			Action:   str(obj, "action"),
			Actor:    str(obj, "actor"),
			Entity:   str(obj, "entity"),
			EntityID: str(obj, "entityId"),
			Details:  objectOrNil(obj["details"]),
		})
	}
	if len(out) > schema.MaxAuditEntries {
		n.warnf("auditLog has %d entries; oldest %d dropped", len(out), len(out)-schema.MaxAuditEntries)
		out = out[len(out)-schema.MaxAuditEntries:]
	}
	return out
}

// id returns obj["id"], or a deterministic id derived from the content when
// the record has none.
func (n *normalizer) id(obj map[string]any, prefix string) string {
	if s, ok := toString(obj["id"]); ok && strings.TrimSpace(s) != "" {
		return strings.TrimSpace(s)
	}
	data, err := canonical.Marshal(obj)
	if err != nil {
		data = []byte(fmt.Sprint(obj))
	}
	id := prefix + "-" + canonical.Checksum32(string(data))
	n.warnf("%s without id; assigned %s", prefix, id)
	return id
}

// str reads a string field, accepting numbers. Missing or other types
// yield "".
func str(obj map[string]any, key string) string {
	s, _ := toString(obj[key])
	return s
}

func objectOrNil(v any) map[string]any {
	obj, ok := v.(map[string]any)
	if !ok || len(obj) == 0 {
		return nil
	}
	return obj
}

func kindOf(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case string:
		return "string"
	case []any:
		return "list"
	case map[string]any:
		return "object"
	}
	if _, ok := toDecimal(v); ok {
		return "number"
	}
	return fmt.Sprintf("%T", v)
}
