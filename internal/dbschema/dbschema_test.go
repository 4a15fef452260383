package dbschema

import (
	"database/sql/driver"
	"math/big"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kcidb/pkg/models"
)

func TestTablesCoverEveryKind(t *testing.T) {
	require.Len(t, Tables, len(models.Kinds))
	for i, kind := range models.Kinds {
		assert.Equal(t, kind, Tables[i].Name)

		table, ok := Lookup(kind)
		require.True(t, ok)
		assert.Contains(t, table.ColumnNames(), "origin")
		assert.Contains(t, table.ColumnNames(), "origin_id")

		col, ok := table.Column(MiscColumn)
		require.True(t, ok)
		assert.Equal(t, String, col.Type)
		assert.Equal(t, Nullable, col.Mode)
	}

	_, ok := Lookup("patches")
	assert.False(t, ok)
}

func TestValidateDataset(t *testing.T) {
	tests := []struct {
		name    string
		dataset string
		valid   bool
	}{
		{"simple", "kernelci", true},
		{"underscore and digits", "_kcidb_01", true},
		{"dollar", "ds$1", true},
		{"empty", "", false},
		{"leading digit", "1kcidb", false},
		{"quote injection", `ds"; DROP TABLE x; --`, false},
		{"dotted", "db.schema", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDataset(tt.dataset)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestCreateSQL(t *testing.T) {
	table, _ := Lookup(models.Environments)

	snowflake := table.CreateSQL(Snowflake, "kernelci")
	assert.Contains(t, snowflake, `CREATE TABLE "kernelci"."environments"`)
	assert.Contains(t, snowflake, `"origin" STRING NOT NULL COMMENT`)
	assert.Contains(t, snowflake, `"misc" STRING COMMENT`)
	assert.NotContains(t, snowflake, "IF NOT EXISTS")

	duck := table.CreateSQL(DuckDB, "kernelci")
	assert.Contains(t, duck, `"origin" VARCHAR NOT NULL`)
	assert.NotContains(t, duck, "COMMENT")

	builds, _ := Lookup(models.Builds)
	assert.Contains(t, builds.CreateSQL(Snowflake, "ds"), `"start_time" TIMESTAMP_TZ`)
	assert.Contains(t, builds.CreateSQL(DuckDB, "ds"), `"duration" NUMERIC(38, 9)`)
}

func TestStatements(t *testing.T) {
	table, _ := Lookup(models.Environments)
	assert.Equal(t, `DROP TABLE "ds"."environments"`, table.DropSQL("ds"))
	assert.Equal(t, `SELECT "origin", "origin_id", "description", "misc" FROM "ds"."environments"`, table.SelectSQL("ds"))
	assert.Equal(t, `"a""b"`, Quote(`a"b`))
}

func TestDecodeNumeric(t *testing.T) {
	tests := []struct {
		name  string
		input interface{}
		want  string
		error bool
	}{
		{"decimal string", "312.500000000", "625/2", false},
		{"bytes", []byte("7"), "7/1", false},
		{"float", 0.25, "1/4", false},
		{"int64", int64(42), "42/1", false},
		{"big int", big.NewInt(3), "3/1", false},
		{"garbage", "abc", "", true},
		{"unsupported", struct{}{}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := DecodeNumeric(tt.input)
			if tt.error {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, r.String())
		})
	}
}

func TestScanRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	table, _ := Lookup(models.Builds)
	started := time.Date(2019, 10, 5, 12, 0, 0, 0, time.UTC)

	columns := table.ColumnNames()
	values := map[string]interface{}{
		"revision_origin":    "kernelci",
		"revision_origin_id": "r1",
		"origin":             "kernelci",
		"origin_id":          "b1",
		"start_time":         started,
		"duration":           "12.500000000",
		"valid":              true,
		"misc":               `{"a":1}`,
	}
	row := make([]driver.Value, len(columns))
	for i, c := range columns {
		row[i] = values[c]
	}

	mock.ExpectQuery("SELECT").WillReturnRows(sqlmock.NewRows(columns).AddRow(row...))

	rows, err := db.Query(table.SelectSQL("ds"))
	require.NoError(t, err)
	defer rows.Close()

	result, err := ScanRows(rows, table, nil)
	require.NoError(t, err)
	require.Len(t, result, 1)

	got := result[0]
	assert.Equal(t, "b1", got["origin_id"])
	assert.Equal(t, started, got["start_time"])
	assert.Equal(t, true, got["valid"])
	assert.Equal(t, `{"a":1}`, got["misc"])
	assert.Equal(t, "25/2", got["duration"].(*big.Rat).String())
	assert.Nil(t, got["architecture"])
	assert.Contains(t, got, "architecture")
}

func TestScanRowsUnknownColumn(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	table, _ := Lookup(models.Environments)
	mock.ExpectQuery("SELECT").WillReturnRows(sqlmock.NewRows([]string{"origin", "board"}).AddRow("k", "x"))

	rows, err := db.Query("SELECT 1")
	require.NoError(t, err)
	defer rows.Close()

	_, err = ScanRows(rows, table, nil)
	assert.ErrorContains(t, err, `unexpected column "board"`)
}
