package store

import (
	"context"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/erpstore/internal/canonical"
	"github.com/roach88/erpstore/internal/schema"
)

func sampleDB() *schema.Database {
	db := schema.DefaultDB(testStart)
	db.Estoque = []schema.Product{
		{Cod: "A1", Nome: "Arroz 5kg", Qtd: 12, Min: 2, CustoC: 1800, PrecoC: 2490},
		{Cod: "F2", Nome: "Feijão", Qtd: 3, PrecoC: 899},
	}
	db.Vendas = []schema.Sale{{
		ID: "s1", DataISO: "2024-03-01T11:00:00Z",
		Itens:     []schema.SaleItem{{Cod: "A1", Qtd: 1, PrecoC: 2490}},
		SubtotalC: 2490, TotalC: 2490, Status: schema.SaleActive,
	}}
	return db
}

func TestExport_Golden(t *testing.T) {
	out, err := Export(schema.DefaultDB(testStart), testStart, ExportOptions{Pretty: true})
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "export_default", out)
}

func TestExport_PrettyAndCompactShareChecksum(t *testing.T) {
	compact, err := Export(sampleDB(), testStart, ExportOptions{})
	require.NoError(t, err)
	pretty, err := Export(sampleDB(), testStart, ExportOptions{Pretty: true})
	require.NoError(t, err)

	a, err := canonical.Decode(compact)
	require.NoError(t, err)
	b, err := canonical.Decode(pretty)
	require.NoError(t, err)
	assert.True(t, canonical.Equal(a, b))
	assert.Contains(t, string(pretty), "\n  ")
}

func TestPreviewImport_UnmodifiedExportVerifies(t *testing.T) {
	for _, pretty := range []bool{false, true} {
		out, err := Export(sampleDB(), testStart, ExportOptions{Pretty: pretty})
		require.NoError(t, err)

		p, err := PreviewImport(string(out))
		require.NoError(t, err)
		assert.True(t, p.ChecksumOK)
		assert.Empty(t, p.Warnings)
		assert.Equal(t, 2, p.Counts[schema.KeyEstoque])
		assert.Equal(t, 1, p.Counts[schema.KeyVendas])
		assert.Equal(t, int(schema.CurrentVersion), p.SchemaVersion)
		assert.Equal(t, "2024-03-01T12:00:00Z", p.ExportedAt)
	}
}

func TestPreviewImport_ByteFlipDetected(t *testing.T) {
	out, err := Export(sampleDB(), testStart, ExportOptions{})
	require.NoError(t, err)
	text := string(out)

	dbStart := strings.Index(text, `"db":`)
	require.Positive(t, dbStart)
	// Flip every letter of the db payload, one at a time.
	for i := dbStart + 5; i < len(text); i++ {
		c := text[i]
		if c < 'a' || c > 'z' {
			continue
		}
		flipped := text[:i] + string(c^0x20) + text[i+1:]
		p, err := PreviewImport(flipped)
		require.NoError(t, err)
		assert.False(t, p.ChecksumOK, "offset %d", i)
		assert.Contains(t, strings.Join(p.Warnings, "\n"), "checksum mismatch", "offset %d", i)
	}
}

func TestPreviewImport_Errors(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"not json", "{"},
		{"not object", "[1,2]"},
		{"missing db", `{"__meta":{"type":"erp_backup"}}`},
		{"db not object", `{"db":[]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := PreviewImport(tt.text)
			assert.ErrorIs(t, err, ErrInvalidBackup)
		})
	}
}

func TestPreviewImport_Warnings(t *testing.T) {
	p, err := PreviewImport(`{"db":{"estoque":[{"cod":"A"}]}}`)
	require.NoError(t, err)
	assert.Contains(t, p.Warnings[0], "no __meta")
	assert.Equal(t, 1, p.Counts[schema.KeyEstoque])

	p, err = PreviewImport(`{"__meta":{"type":"erp_backup","schemaVersion":4,"exportedAt":"x"},"db":{}}`)
	require.NoError(t, err)
	assert.Contains(t, strings.Join(p.Warnings, "\n"), "no checksum")

	p, err = PreviewImport(`{"__meta":{"type":"other","schemaVersion":9,"exportedAt":"x","checksum32":"00000000"},"db":{}}`)
	require.NoError(t, err)
	joined := strings.Join(p.Warnings, "\n")
	assert.Contains(t, joined, "backup meta")
	assert.Contains(t, joined, "newer than supported")
	assert.Contains(t, joined, "checksum mismatch")
}

func TestImportDB_MergeRejected(t *testing.T) {
	env := newTestManager(t, Options{})

	_, err := env.mgr.ImportDB(context.Background(), "{}", ImportOptions{Merge: true})
	assert.ErrorIs(t, err, ErrMergeImportUnsupported)
}

func TestImportDB_ReplacesAndBacksUp(t *testing.T) {
	env := newTestManager(t, Options{})
	ctx := context.Background()
	_, err := env.mgr.Init(ctx)
	require.NoError(t, err)

	out, err := Export(sampleDB(), testStart, ExportOptions{})
	require.NoError(t, err)

	res, err := env.mgr.ImportDB(ctx, string(out), ImportOptions{})
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.True(t, res.SnapshotCreated)
	assert.NotEmpty(t, res.BackupID)
	assert.Empty(t, res.Migrations)

	db, err := env.mgr.Get(ctx)
	require.NoError(t, err)
	require.Len(t, db.Estoque, 2)
	assert.Equal(t, "Feijão", db.Estoque[1].Nome)

	backups, err := env.mgr.ListBackups(ctx)
	require.NoError(t, err)
	require.Len(t, backups, 1)
	assert.Equal(t, res.BackupID, backups[0].ID)

	text, err := env.mgr.ReadBackup(ctx, res.BackupID)
	require.NoError(t, err)
	p, err := PreviewImport(text)
	require.NoError(t, err)
	assert.True(t, p.ChecksumOK)
	assert.Equal(t, 0, p.Counts[schema.KeyEstoque])

	_, err = env.mgr.ReadBackup(ctx, "missing")
	assert.ErrorIs(t, err, ErrBackupNotFound)
}

func TestImportDB_MigratesOldBackup(t *testing.T) {
	env := newTestManager(t, Options{})
	ctx := context.Background()

	old := `{"__meta":{"type":"erp_backup","schemaVersion":1,"exportedAt":"2023-01-01T00:00:00Z"},
		"db":{"schemaVersion":1,"estoque":[{"cod":"A","qtd":"1.500"}],"vendas":[{"id":"s1","total_c":5}]}}`

	res, err := env.mgr.ImportDB(ctx, old, ImportOptions{})
	require.NoError(t, err)
	assert.Len(t, res.Migrations, 3)
	assert.Empty(t, res.BackupID, "nothing stored yet")
	assert.Equal(t, int64(1500), res.DB.Estoque[0].Qtd)
	assert.Equal(t, schema.SaleActive, res.DB.Vendas[0].Status)
	assert.Contains(t, strings.Join(res.Warnings, "\n"), "no checksum")
}

func TestImportDB_BackupsCapped(t *testing.T) {
	env := newTestManager(t, Options{MaxBackups: 2})
	ctx := context.Background()
	_, err := env.mgr.Init(ctx)
	require.NoError(t, err)

	out, err := Export(sampleDB(), testStart, ExportOptions{})
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		_, err := env.mgr.ImportDB(ctx, string(out), ImportOptions{})
		require.NoError(t, err)
	}

	backups, err := env.mgr.ListBackups(ctx)
	require.NoError(t, err)
	assert.Len(t, backups, 2)
}

func TestExportDB_UsesManagerClock(t *testing.T) {
	env := newTestManager(t, Options{})
	out, err := env.mgr.ExportDB(schema.DefaultDB(testStart), ExportOptions{})
	require.NoError(t, err)
	assert.Contains(t, string(out), `"exportedAt":"2024-03-01T12:00:00Z"`)
}
