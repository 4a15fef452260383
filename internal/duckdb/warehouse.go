// Package duckdb implements the kcidb warehouse contract on an embedded
// DuckDB database file, for local development and CI.
package duckdb

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"time"

	duckdb "github.com/duckdb/duckdb-go/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"kcidb/internal/common"
	"kcidb/internal/dbschema"
	"kcidb/pkg/errors"
	"kcidb/pkg/models"
)

// Warehouse is a DuckDB-backed warehouse
type Warehouse struct {
	db     *sql.DB
	path   string
	logger zerolog.Logger
}

// Open opens (creating if needed) a DuckDB database. An empty path opens
// an in-memory database.
func Open(ctx context.Context, path string, logger zerolog.Logger) (*Warehouse, error) {
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), common.DataDirMode); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeConnectionFailed, "Failed to create database directory").
				WithContext("path", path)
		}
	}

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, errors.ConnectionError("Failed to open DuckDB", err).WithContext("path", path)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.ConnectionError("Failed to open DuckDB", err).WithContext("path", path)
	}

	return &Warehouse{
		db:     db,
		path:   path,
		logger: logger.With().Str("warehouse", "duckdb").Logger(),
	}, nil
}

// Close closes the database
func (w *Warehouse) Close() error {
	return w.db.Close()
}

// CreateTable creates the dataset schema if needed, then the table
func (w *Warehouse) CreateTable(ctx context.Context, dataset string, table dbschema.Table) error {
	if err := dbschema.ValidateDataset(dataset); err != nil {
		return errors.ValidationError("dataset", dataset, err.Error())
	}

	schemaSQL := "CREATE SCHEMA IF NOT EXISTS " + dbschema.Quote(dataset)
	if _, err := w.db.ExecContext(ctx, schemaSQL); err != nil {
		return errors.SQLError("Failed to create schema", schemaSQL, err)
	}

	query := table.CreateSQL(dbschema.DuckDB, dataset)
	if _, err := w.db.ExecContext(ctx, query); err != nil {
		return classify(err, dataset, table.Name, query)
	}
	w.logger.Debug().Str("table", table.QualifiedName(dataset)).Msg("Table created")
	return nil
}

// DeleteTable drops a table
func (w *Warehouse) DeleteTable(ctx context.Context, dataset string, table dbschema.Table) error {
	if err := dbschema.ValidateDataset(dataset); err != nil {
		return errors.ValidationError("dataset", dataset, err.Error())
	}

	query := table.DropSQL(dataset)
	if _, err := w.db.ExecContext(ctx, query); err != nil {
		return classify(err, dataset, table.Name, query)
	}
	w.logger.Debug().Str("table", table.QualifiedName(dataset)).Msg("Table dropped")
	return nil
}

// SelectAll reads every row of a table
func (w *Warehouse) SelectAll(ctx context.Context, dataset string, table dbschema.Table) ([]map[string]interface{}, error) {
	if err := dbschema.ValidateDataset(dataset); err != nil {
		return nil, errors.ValidationError("dataset", dataset, err.Error())
	}

	query := table.SelectSQL(dataset)
	rows, err := w.db.QueryContext(ctx, query)
	if err != nil {
		return nil, classify(err, dataset, table.Name, query)
	}
	defer rows.Close()

	result, err := dbschema.ScanRows(rows, table, DecodeDecimal)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeResultParsing, "Failed to read rows").
			WithContext("table", table.Name)
	}
	return result, nil
}

// LoadJSON writes rows as newline-delimited JSON and inserts them with a
// single read_json statement, so a bad row rejects the whole load.
func (w *Warehouse) LoadJSON(ctx context.Context, dataset string, table dbschema.Table, rows []map[string]interface{}) (*models.LoadResult, error) {
	if err := dbschema.ValidateDataset(dataset); err != nil {
		return nil, errors.ValidationError("dataset", dataset, err.Error())
	}

	start := time.Now()
	file, err := writeNDJSON(table.Name, rows)
	if err != nil {
		return nil, err
	}
	defer os.Remove(file)

	query := insertSQL(dataset, table, file)
	res, err := w.db.ExecContext(ctx, query)
	if err != nil {
		if isCatalogError(err, "does not exist") {
			return nil, errors.TableNotFoundError(dataset, table.Name, err)
		}
		return nil, errors.LoadError(table.Name, []string{err.Error()}).
			WithContext("dataset", dataset)
	}

	loaded, err := res.RowsAffected()
	if err != nil {
		loaded = int64(len(rows))
	}

	w.logger.Debug().
		Str("table", table.QualifiedName(dataset)).
		Int64("rows_loaded", loaded).
		Dur("elapsed", time.Since(start)).
		Msg("Rows inserted")
	return &models.LoadResult{
		Table:      table.Name,
		RowsParsed: int64(len(rows)),
		RowsLoaded: loaded,
	}, nil
}

// insertSQL renders the INSERT reading a staged file with the table's
// column types, so absent keys load as NULL
func insertSQL(dataset string, table dbschema.Table, file string) string {
	columns := make([]string, len(table.Columns))
	for i, col := range table.Columns {
		columns[i] = fmt.Sprintf("'%s': '%s'", col.Name, col.SQLType(dbschema.DuckDB))
	}
	return fmt.Sprintf(
		"INSERT INTO %s BY NAME SELECT * FROM read_json('%s', format = 'newline_delimited', columns = {%s})",
		table.QualifiedName(dataset),
		strings.ReplaceAll(file, "'", "''"),
		strings.Join(columns, ", "),
	)
}

func writeNDJSON(table string, rows []map[string]interface{}) (string, error) {
	name := filepath.Join(os.TempDir(), fmt.Sprintf("kcidb_%s_%s.ndjson", table, uuid.New().String()))
	f, err := os.OpenFile(name, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeStagingFailed, "Failed to create temp file")
	}

	w := bufio.NewWriter(f)
	encoder := json.NewEncoder(w)
	encoder.SetEscapeHTML(false)
	for _, row := range rows {
		if err = encoder.Encode(row); err != nil {
			break
		}
	}
	if err == nil {
		err = w.Flush()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(name)
		return "", errors.Wrap(err, errors.ErrCodeStagingFailed, "Failed to write temp file")
	}
	return name, nil
}

// DecodeDecimal converts the driver's DECIMAL representation to a rational
func DecodeDecimal(v interface{}) (*big.Rat, error) {
	d, ok := v.(duckdb.Decimal)
	if !ok {
		return dbschema.DecodeNumeric(v)
	}
	if d.Value == nil {
		return nil, fmt.Errorf("decimal without a value")
	}
	denom := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(d.Scale)), nil)
	return new(big.Rat).SetFrac(d.Value, denom), nil
}

func classify(err error, dataset, table, query string) error {
	switch {
	case isCatalogError(err, "already exists"):
		return errors.TableExistsError(dataset, table, err)
	case isCatalogError(err, "does not exist"):
		return errors.TableNotFoundError(dataset, table, err)
	default:
		return errors.SQLError("Statement failed", query, err).
			WithContext("table", table)
	}
}

func isCatalogError(err error, fragment string) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "catalog error") && strings.Contains(msg, fragment)
}
