package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Version identifies a persisted schema shape.
//
// Version history:
//
//	0 - unversioned data (no schemaVersion field)
//	1 - estoque, vendas, caixa, devedores, settings
//	2 - meta timestamps, auditLog
//	3 - stockMovements, cashSessions, caixa.openSessionId
//	4 - saleVoids, fiscalQueue, explicit sale status
type Version int

const (
	V0 Version = iota
	V1
	V2
	V3
	V4
)

// CurrentVersion is the version written by this release.
const CurrentVersion = V4

// MigrationRecord describes one applied step.
type MigrationRecord struct {
	From Version `json:"from"`
	To   Version `json:"to"`
	At   string  `json:"at"`
}

// MigrationReport accumulates applied steps and non-fatal notes.
type MigrationReport struct {
	Migrations []MigrationRecord `json:"migrations"`
	Warnings   []string          `json:"warnings,omitempty"`
}

// step upgrades a raw database from one version to the next.
type step struct {
	from, to Version
	apply    func(raw map[string]any, now time.Time)
}

// steps is ordered and contiguous: steps[i].from == Version(i).
var steps = []step{
	{from: V0, to: V1, apply: migrateToV1},
	{from: V1, to: V2, apply: migrateToV2},
	{from: V2, to: V3, apply: migrateToV3},
	{from: V3, to: V4, apply: migrateToV4},
}

// Migrate upgrades raw from version from to version to, one step at a time.
// Each applied step is appended to report (which may be nil).
//
// A nil raw map is replaced by an empty one. Migrating to the same or an
// older version is a no-op; a target beyond CurrentVersion is clamped and
// noted in the report. The returned map is raw itself, mutated in place.
func Migrate(raw map[string]any, from, to Version, report *MigrationReport, now time.Time) map[string]any {
	if raw == nil {
		raw = map[string]any{}
	}
	if report == nil {
		report = &MigrationReport{}
	}
	if to > CurrentVersion {
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("target version %d is newer than supported version %d", to, CurrentVersion))
		to = CurrentVersion
	}
	if from < V0 {
		from = V0
	}
	if from > CurrentVersion {
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("data version %d is newer than supported version %d; left unchanged", from, CurrentVersion))
		return raw
	}

	for v := from; v < to; v++ {
		s := steps[v]
		s.apply(raw, now)
		raw[KeySchemaVersion] = json.Number(strconv.Itoa(int(s.to)))
		report.Migrations = append(report.Migrations, MigrationRecord{
			From: s.from,
			To:   s.to,
			At:   now.UTC().Format(time.RFC3339Nano),
		})
	}
	return raw
}

// DetectVersion reads schemaVersion leniently. Missing, negative or
// unparsable values yield V0.
func DetectVersion(raw map[string]any) Version {
	if raw == nil {
		return V0
	}
	var n float64
	switch v := raw[KeySchemaVersion].(type) {
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return V0
		}
		n = f
	case float64:
		n = v
	case int:
		n = float64(v)
	case int64:
		n = float64(v)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return V0
		}
		n = f
	default:
		return V0
	}
	if n < 0 || math.IsNaN(n) || math.IsInf(n, 0) {
		return V0
	}
	return Version(int(n))
}

func migrateToV1(raw map[string]any, _ time.Time) {
	ensureArray(raw, KeyEstoque)
	ensureArray(raw, KeyVendas)
	ensureObject(raw, KeyCaixa)
	ensureArray(raw, KeyDevedores)
	ensureObject(raw, KeySettings)
}

func migrateToV2(raw map[string]any, now time.Time) {
	meta := ensureObject(raw, KeyMeta)
	stamp := now.UTC().Format(time.RFC3339Nano)
	if _, ok := meta["createdAt"].(string); !ok {
		meta["createdAt"] = stamp
	}
	if _, ok := meta["updatedAt"].(string); !ok {
		meta["updatedAt"] = stamp
	}
	ensureArray(raw, KeyAuditLog)
}

func migrateToV3(raw map[string]any, _ time.Time) {
	ensureArray(raw, KeyStockMovements)
	ensureArray(raw, KeyCashSessions)
	caixa := ensureObject(raw, KeyCaixa)
	if _, ok := caixa["openSessionId"].(string); !ok {
		caixa["openSessionId"] = ""
	}
}

func migrateToV4(raw map[string]any, _ time.Time) {
	ensureArray(raw, KeySaleVoids)
	ensureArray(raw, KeyFiscalQueue)
	vendas, _ := raw[KeyVendas].([]any)
	for _, v := range vendas {
		sale, ok := v.(map[string]any)
		if !ok {
			continue
		}
		if s, ok := sale["status"].(string); !ok || s == "" {
			sale["status"] = SaleActive
		}
	}
}

// ensureArray guarantees raw[key] is an array, replacing wrong types.
func ensureArray(raw map[string]any, key string) []any {
	if arr, ok := raw[key].([]any); ok {
		return arr
	}
	arr := []any{}
	raw[key] = arr
	return arr
}

// ensureObject guarantees raw[key] is an object, replacing wrong types.
func ensureObject(raw map[string]any, key string) map[string]any {
	if obj, ok := raw[key].(map[string]any); ok {
		return obj
	}
	obj := map[string]any{}
	raw[key] = obj
	return obj
}
