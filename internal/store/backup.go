package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/roach88/erpstore/internal/canonical"
	"github.com/roach88/erpstore/internal/normalize"
	"github.com/roach88/erpstore/internal/schema"
)

// Envelope keys.
const (
	envelopeMeta = "__meta"
	envelopeDB   = "db"
	checksumKey  = "checksum32"
)

// ExportOptions controls ExportDB.
type ExportOptions struct {
	Pretty bool
}

// ImportOptions controls ImportDB.
type ImportOptions struct {
	// Merge requests reconciliation instead of replacement. It is rejected
	// with ErrMergeImportUnsupported.
	Merge bool
}

// Preview summarizes a backup without touching the store.
type Preview struct {
	SchemaVersion int            `json:"schemaVersion"`
	ExportedAt    string         `json:"exportedAt,omitempty"`
	Checksum      string         `json:"checksum,omitempty"`
	ChecksumOK    bool           `json:"checksumOk"`
	Counts        map[string]int `json:"counts"`
	Warnings      []string       `json:"warnings,omitempty"`
}

// ImportResult reports a completed import.
type ImportResult struct {
	SaveResult
	Preview    Preview                  `json:"preview"`
	Migrations []schema.MigrationRecord `json:"migrations,omitempty"`
	BackupID   string                   `json:"backupId,omitempty"`
}

// BackupInfo describes one pre-import backup.
type BackupInfo struct {
	ID       string `json:"id"`
	At       string `json:"at"`
	Bytes    int    `json:"bytes"`
	Checksum string `json:"checksum"`
}

// Export renders db as a backup envelope stamped with exportedAt.
//
// The checksum covers the canonical serialization of the envelope with
// checksum32 absent. Pretty output only re-indents that serialization, so
// verifying against the canonical form of the parsed file always matches.
func Export(db *schema.Database, exportedAt time.Time, opts ExportOptions) ([]byte, error) {
	dbValue, err := canonical.ToValue(db)
	if err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}
	meta := map[string]any{
		"type":          schema.BackupType,
		"schemaVersion": db.SchemaVersion,
		"exportedAt":    schema.FormatTime(exportedAt),
	}
	envelope := map[string]any{envelopeMeta: meta, envelopeDB: dbValue}

	unsigned, err := canonical.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}
	meta[checksumKey] = canonical.Checksum32(string(unsigned))

	out, err := canonical.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}
	if !opts.Pretty {
		return out, nil
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, out, "", "  "); err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}
	return buf.Bytes(), nil
}

// ExportDB renders db as a backup envelope stamped with the Manager clock.
func (m *Manager) ExportDB(db *schema.Database, opts ExportOptions) ([]byte, error) {
	return Export(db, m.opts.Clock(), opts)
}

// PreviewImport inspects a backup. It never writes.
func PreviewImport(text string) (Preview, error) {
	_, p, err := parseBackup(text)
	return p, err
}

// parseBackup decodes and verifies a backup envelope. Integrity problems are
// warnings; only structural problems are errors.
func parseBackup(text string) (map[string]any, Preview, error) {
	p := Preview{Counts: map[string]int{}}

	v, err := canonical.Decode([]byte(text))
	if err != nil {
		return nil, p, fmt.Errorf("%w: %v", ErrInvalidBackup, err)
	}
	envelope, ok := v.(map[string]any)
	if !ok {
		return nil, p, fmt.Errorf("%w: not a JSON object", ErrInvalidBackup)
	}
	rawDB, ok := envelope[envelopeDB].(map[string]any)
	if !ok {
		return nil, p, fmt.Errorf("%w: missing db", ErrInvalidBackup)
	}

	for key, val := range rawDB {
		if arr, ok := val.([]any); ok {
			p.Counts[key] = len(arr)
		}
	}
	p.SchemaVersion = int(schema.DetectVersion(rawDB))

	meta, ok := envelope[envelopeMeta].(map[string]any)
	if !ok {
		p.Warnings = append(p.Warnings, "backup has no __meta; integrity cannot be verified")
		return rawDB, p, nil
	}
	if err := schema.ValidateEnvelopeMeta(meta); err != nil {
		p.Warnings = append(p.Warnings, err.Error())
	}
	if n, ok := normalize.ToInt(meta["schemaVersion"]); ok {
		p.SchemaVersion = int(n)
	}
	p.ExportedAt, _ = meta["exportedAt"].(string)
	if p.SchemaVersion > int(schema.CurrentVersion) {
		p.Warnings = append(p.Warnings, fmt.Sprintf(
			"backup schema version %d is newer than supported version %d", p.SchemaVersion, schema.CurrentVersion))
	}

	p.Checksum, _ = meta[checksumKey].(string)
	if p.Checksum == "" {
		p.Warnings = append(p.Warnings, "backup has no checksum; integrity cannot be verified")
		return rawDB, p, nil
	}

	stripped := canonical.Clone(envelope).(map[string]any)
	delete(stripped[envelopeMeta].(map[string]any), checksumKey)
	unsigned, err := canonical.Marshal(stripped)
	if err != nil {
		return nil, p, fmt.Errorf("%w: %v", ErrInvalidBackup, err)
	}
	if got := canonical.Checksum32(string(unsigned)); got != p.Checksum {
		p.Warnings = append(p.Warnings, fmt.Sprintf("checksum mismatch: backup says %s, content hashes to %s", p.Checksum, got))
	} else {
		p.ChecksumOK = true
	}
	return rawDB, p, nil
}

// ImportDB replaces the stored database with the one in a backup. The
// current database is first exported into the backups list.
func (m *Manager) ImportDB(ctx context.Context, text string, opts ImportOptions) (ImportResult, error) {
	if opts.Merge {
		return ImportResult{}, ErrMergeImportUnsupported
	}

	rawDB, preview, err := parseBackup(text)
	if err != nil {
		return ImportResult{Preview: preview}, fmt.Errorf("import: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.opts.Clock()

	res := ImportResult{Preview: preview}
	res.BackupID, err = m.backupCurrent(ctx, now)
	if err != nil {
		return res, fmt.Errorf("import: %w", err)
	}

	report := &schema.MigrationReport{}
	if from := schema.Version(preview.SchemaVersion); from != schema.CurrentVersion {
		rawDB = schema.Migrate(rawDB, from, schema.CurrentVersion, report, now)
	}
	res.Migrations = report.Migrations

	db, warnings := normalize.NormalizeDB(rawDB, now)
	res.SaveResult, err = m.save(ctx, db, SaveOptions{ForceSnapshot: true, SkipNormalize: true}, now)
	res.Warnings = append(append(append(preview.Warnings, report.Warnings...), warnings...), res.Warnings...)
	if err != nil {
		return res, fmt.Errorf("import: %w", err)
	}
	m.log.Info().
		Str("backup", res.BackupID).
		Int("migrations", len(res.Migrations)).
		Int("warnings", len(res.Warnings)).
		Msg("database imported")
	return res, nil
}

// backupCurrent exports the stored database into the backups list. An
// absent or unreadable current value is not backed up.
func (m *Manager) backupCurrent(ctx context.Context, now time.Time) (string, error) {
	lr, err := m.load(ctx, now)
	if err != nil {
		return "", err
	}
	if lr.missing || lr.corrupted != nil {
		return "", nil
	}
	text, err := Export(lr.db, now, ExportOptions{})
	if err != nil {
		return "", err
	}

	id := m.opts.IDs.NewID()
	entry := map[string]any{
		"id":       id,
		"at":       schema.FormatTime(now),
		"checksum": canonical.Checksum32(string(text)),
		"text":     string(text),
	}
	list, err := m.readList(ctx, m.backupsKey())
	if err != nil {
		return "", err
	}
	list = append([]map[string]any{entry}, list...)
	if len(list) > m.opts.MaxBackups {
		list = list[:m.opts.MaxBackups]
	}
	if err := m.writeList(ctx, m.backupsKey(), list); err != nil {
		return "", err
	}
	return id, nil
}

// ListBackups returns pre-import backups, most recent first.
func (m *Manager) ListBackups(ctx context.Context) ([]BackupInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	list, err := m.readList(ctx, m.backupsKey())
	if err != nil {
		return nil, err
	}
	out := make([]BackupInfo, 0, len(list))
	for _, item := range list {
		out = append(out, BackupInfo{
			ID:       str(item, "id"),
			At:       str(item, "at"),
			Bytes:    len(str(item, "text")),
			Checksum: str(item, "checksum"),
		})
	}
	return out, nil
}

// ReadBackup returns the export text of backup id, suitable for ImportDB.
func (m *Manager) ReadBackup(ctx context.Context, id string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	list, err := m.readList(ctx, m.backupsKey())
	if err != nil {
		return "", err
	}
	for _, item := range list {
		if str(item, "id") == id {
			return str(item, "text"), nil
		}
	}
	return "", fmt.Errorf("read backup %s: %w", id, ErrBackupNotFound)
}
