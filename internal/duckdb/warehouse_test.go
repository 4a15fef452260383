package duckdb

import (
	"context"
	"encoding/json"
	"math/big"
	"path/filepath"
	"testing"
	"time"

	duckdb "github.com/duckdb/duckdb-go/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kcidb/internal/dbschema"
	"kcidb/pkg/errors"
	"kcidb/pkg/models"
)

func openMemory(t *testing.T) *Warehouse {
	t.Helper()
	w, err := Open(context.Background(), "", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })
	return w
}

func lookup(t *testing.T, name string) dbschema.Table {
	t.Helper()
	table, ok := dbschema.Lookup(name)
	require.True(t, ok)
	return table
}

func TestCreateAndDeleteTable(t *testing.T) {
	ctx := context.Background()
	w := openMemory(t)
	table := lookup(t, models.Revisions)

	require.NoError(t, w.CreateTable(ctx, "kernelci", table))

	err := w.CreateTable(ctx, "kernelci", table)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeTableExists))

	require.NoError(t, w.DeleteTable(ctx, "kernelci", table))

	err = w.DeleteTable(ctx, "kernelci", table)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeTableNotFound))
}

func TestLoadAndSelect(t *testing.T) {
	ctx := context.Background()
	w := openMemory(t)
	table := lookup(t, models.Builds)
	require.NoError(t, w.CreateTable(ctx, "ci", table))

	rows := []map[string]interface{}{
		{
			"revision_origin":    "kernelci",
			"revision_origin_id": "r1",
			"origin":             "kernelci",
			"origin_id":          "b1",
			"start_time":         "2019-10-05T12:00:00Z",
			"duration":           json.Number("312.5"),
			"valid":              true,
			"misc":               `{"cmd":"make && make install"}`,
		},
		{
			"revision_origin":    "kernelci",
			"revision_origin_id": "r1",
			"origin":             "kernelci",
			"origin_id":          "b2",
		},
	}

	result, err := w.LoadJSON(ctx, "ci", table, rows)
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.RowsLoaded)

	got, err := w.SelectAll(ctx, "ci", table)
	require.NoError(t, err)
	require.Len(t, got, 2)

	byID := map[interface{}]map[string]interface{}{}
	for _, r := range got {
		byID[r["origin_id"]] = r
	}

	b1 := byID["b1"]
	assert.Equal(t, 0, big.NewRat(625, 2).Cmp(b1["duration"].(*big.Rat)))
	assert.True(t, time.Date(2019, 10, 5, 12, 0, 0, 0, time.UTC).Equal(b1["start_time"].(time.Time)))
	assert.Equal(t, true, b1["valid"])
	assert.Equal(t, `{"cmd":"make && make install"}`, b1["misc"])

	b2 := byID["b2"]
	assert.Nil(t, b2["duration"])
	assert.Nil(t, b2["misc"])
}

func TestLoadRejectsBadRows(t *testing.T) {
	ctx := context.Background()
	w := openMemory(t)
	table := lookup(t, models.Environments)
	require.NoError(t, w.CreateTable(ctx, "ci", table))

	_, err := w.LoadJSON(ctx, "ci", table, []map[string]interface{}{
		{"origin": "kernelci", "origin_id": "ok"},
		{"origin": "kernelci"},
	})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeLoadFailed))
	assert.Contains(t, err.(*errors.AppError).Message, "ERROR: ")

	got, err := w.SelectAll(ctx, "ci", table)
	require.NoError(t, err)
	assert.Empty(t, got, "a failed load leaves nothing behind")
}

func TestLoadMissingTable(t *testing.T) {
	w := openMemory(t)
	_, err := w.LoadJSON(context.Background(), "ci", lookup(t, models.Tests), []map[string]interface{}{{"origin": "x"}})
	assert.True(t, errors.HasCode(err, errors.ErrCodeTableNotFound))
}

func TestOpenFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "db", "kcidb.duckdb")

	w, err := Open(ctx, path, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, w.CreateTable(ctx, "ci", lookup(t, models.Environments)))
	require.NoError(t, w.Close())

	w, err = Open(ctx, path, zerolog.Nop())
	require.NoError(t, err)
	defer w.Close()
	err = w.CreateTable(ctx, "ci", lookup(t, models.Environments))
	assert.True(t, errors.HasCode(err, errors.ErrCodeTableExists), "tables persist across opens")
}

func TestInsertSQL(t *testing.T) {
	query := insertSQL("ci", lookup(t, models.Environments), "/tmp/it's.ndjson")
	assert.Equal(t,
		`INSERT INTO "ci"."environments" BY NAME SELECT * FROM read_json('/tmp/it''s.ndjson', format = 'newline_delimited', `+
			`columns = {'origin': 'VARCHAR', 'origin_id': 'VARCHAR', 'description': 'VARCHAR', 'misc': 'VARCHAR'})`,
		query)
}

func TestDecodeDecimal(t *testing.T) {
	r, err := DecodeDecimal(duckdb.Decimal{Width: 38, Scale: 9, Value: big.NewInt(312500000000)})
	require.NoError(t, err)
	assert.Equal(t, "625/2", r.String())

	r, err = DecodeDecimal("1.5")
	require.NoError(t, err)
	assert.Equal(t, "3/2", r.String())

	_, err = DecodeDecimal(duckdb.Decimal{Scale: 2})
	assert.Error(t, err)
}
