package store

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/erpstore/internal/canonical"
	"github.com/roach88/erpstore/internal/normalize"
	"github.com/roach88/erpstore/internal/schema"
)

// SnapshotInfo is the listing view of a snapshot, without its data.
type SnapshotInfo struct {
	ID            string         `json:"id"`
	At            string         `json:"at"`
	SchemaVersion int            `json:"schemaVersion"`
	Counts        map[string]int `json:"counts"`
}

// CreateSnapshot pushes a copy of db to the front of the snapshot list and
// returns its id.
func (m *Manager) CreateSnapshot(ctx context.Context, db *schema.Database) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createSnapshot(ctx, db, m.opts.Clock())
}

// ListSnapshots returns snapshot metadata, most recent first.
func (m *Manager) ListSnapshots(ctx context.Context) ([]SnapshotInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	list, err := m.readList(ctx, m.snapshotsKey())
	if err != nil {
		return nil, err
	}
	out := make([]SnapshotInfo, 0, len(list))
	for _, item := range list {
		out = append(out, snapshotInfo(item))
	}
	return out, nil
}

// RestoreSnapshot normalizes the data of snapshot id and saves it as the
// current database.
func (m *Manager) RestoreSnapshot(ctx context.Context, id string) (SaveResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	list, err := m.readList(ctx, m.snapshotsKey())
	if err != nil {
		return SaveResult{}, err
	}
	for _, item := range list {
		if str(item, "id") != id {
			continue
		}
		now := m.opts.Clock()
		data := item["data"]
		if raw, ok := data.(map[string]any); ok {
			if from := schema.DetectVersion(raw); from != schema.CurrentVersion {
				data = schema.Migrate(raw, from, schema.CurrentVersion, nil, now)
			}
		}
		db, warnings := normalize.NormalizeDB(data, now)
		res, err := m.save(ctx, db, SaveOptions{ForceSnapshot: true, SkipNormalize: true}, now)
		res.Warnings = append(warnings, res.Warnings...)
		if err != nil {
			return res, fmt.Errorf("restore snapshot %s: %w", id, err)
		}
		m.log.Info().Str("snapshot", id).Msg("snapshot restored")
		return res, nil
	}
	return SaveResult{}, fmt.Errorf("restore snapshot %s: %w", id, ErrSnapshotNotFound)
}

func (m *Manager) createSnapshot(ctx context.Context, db *schema.Database, now time.Time) (string, error) {
	data, err := canonical.ToValue(db)
	if err != nil {
		return "", fmt.Errorf("create snapshot: %w", err)
	}
	id := m.opts.IDs.NewID()
	counts := make(map[string]any, len(db.Counts()))
	for k, v := range db.Counts() {
		counts[k] = v
	}
	snap := map[string]any{
		"id":            id,
		"at":            schema.FormatTime(now),
		"schemaVersion": db.SchemaVersion,
		"counts":        counts,
		"data":          data,
	}

	list, err := m.readList(ctx, m.snapshotsKey())
	if err != nil {
		return "", fmt.Errorf("create snapshot: %w", err)
	}
	list = append([]map[string]any{snap}, list...)
	if len(list) > m.opts.MaxSnapshots {
		list = list[:m.opts.MaxSnapshots]
	}
	if err := m.writeList(ctx, m.snapshotsKey(), list); err != nil {
		return "", fmt.Errorf("create snapshot: %w", err)
	}
	m.lastSnapshot = now
	return id, nil
}

// readList decodes a stored list of objects. A missing key is an empty list;
// an unreadable one is logged and treated as empty so it gets overwritten.
func (m *Manager) readList(ctx context.Context, key string) ([]map[string]any, error) {
	text, ok, err := m.kv.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	if !ok {
		return nil, nil
	}
	v, err := canonical.Decode([]byte(text))
	if err != nil {
		m.log.Warn().Str("key", key).Err(err).Msg("discarding unreadable list")
		return nil, nil
	}
	items, _ := v.([]any)
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		if obj, ok := item.(map[string]any); ok {
			out = append(out, obj)
		}
	}
	return out, nil
}

func (m *Manager) writeList(ctx context.Context, key string, list []map[string]any) error {
	items := make([]any, len(list))
	for i, obj := range list {
		items[i] = obj
	}
	data, err := canonical.Marshal(items)
	if err != nil {
		return fmt.Errorf("serialize %s: %w", key, err)
	}
	return m.kv.Set(ctx, key, string(data))
}

func snapshotInfo(item map[string]any) SnapshotInfo {
	info := SnapshotInfo{
		ID:     str(item, "id"),
		At:     str(item, "at"),
		Counts: map[string]int{},
	}
	if n, ok := normalize.ToInt(item["schemaVersion"]); ok {
		info.SchemaVersion = int(n)
	}
	counts, _ := item["counts"].(map[string]any)
	for k, v := range counts {
		if n, ok := normalize.ToInt(v); ok {
			info.Counts[k] = int(n)
		}
	}
	return info
}

func str(obj map[string]any, key string) string {
	s, _ := obj[key].(string)
	return s
}
