package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"kcidb/internal/dbschema"
	"kcidb/pkg/errors"
	"kcidb/pkg/models"
)

// MockWarehouse is an in-memory warehouse holding typed rows. It coerces
// loaded values the way a real warehouse does (NUMERIC to *big.Rat,
// TIMESTAMP to time.Time) so conversions are exercised end to end.
type MockWarehouse struct {
	mu sync.Mutex

	// dataset -> table -> rows
	datasets map[string]map[string][]map[string]interface{}

	// Operation tracking
	Calls  []string
	Closed bool

	// Behavior control, keyed by table name
	SelectErrors map[string]error
	LoadErrors   map[string]error
}

// NewMockWarehouse creates an empty mock warehouse
func NewMockWarehouse() *MockWarehouse {
	return &MockWarehouse{
		datasets:     make(map[string]map[string][]map[string]interface{}),
		SelectErrors: make(map[string]error),
		LoadErrors:   make(map[string]error),
	}
}

func (m *MockWarehouse) record(format string, args ...interface{}) {
	m.Calls = append(m.Calls, fmt.Sprintf(format, args...))
}

// CreateTable creates an empty table
func (m *MockWarehouse) CreateTable(ctx context.Context, dataset string, table dbschema.Table) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("create %s.%s", dataset, table.Name)

	if err := ctx.Err(); err != nil {
		return err
	}
	tables, ok := m.datasets[dataset]
	if !ok {
		tables = make(map[string][]map[string]interface{})
		m.datasets[dataset] = tables
	}
	if _, exists := tables[table.Name]; exists {
		return errors.TableExistsError(dataset, table.Name, nil)
	}
	tables[table.Name] = []map[string]interface{}{}
	return nil
}

// DeleteTable drops a table and its rows
func (m *MockWarehouse) DeleteTable(ctx context.Context, dataset string, table dbschema.Table) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("delete %s.%s", dataset, table.Name)

	if err := ctx.Err(); err != nil {
		return err
	}
	if _, exists := m.datasets[dataset][table.Name]; !exists {
		return errors.TableNotFoundError(dataset, table.Name, nil)
	}
	delete(m.datasets[dataset], table.Name)
	return nil
}

// SelectAll returns every row with every column, NULLs included
func (m *MockWarehouse) SelectAll(ctx context.Context, dataset string, table dbschema.Table) ([]map[string]interface{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("select %s.%s", dataset, table.Name)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := m.SelectErrors[table.Name]; err != nil {
		return nil, err
	}
	rows, exists := m.datasets[dataset][table.Name]
	if !exists {
		return nil, errors.TableNotFoundError(dataset, table.Name, nil)
	}

	result := make([]map[string]interface{}, len(rows))
	for i, row := range rows {
		out := make(map[string]interface{}, len(table.Columns))
		for _, col := range table.Columns {
			out[col.Name] = row[col.Name]
		}
		result[i] = out
	}
	return result, nil
}

// LoadJSON appends rows atomically: a single bad row rejects the whole load
func (m *MockWarehouse) LoadJSON(ctx context.Context, dataset string, table dbschema.Table, rows []map[string]interface{}) (*models.LoadResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("load %s.%s %d", dataset, table.Name, len(rows))

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := m.LoadErrors[table.Name]; err != nil {
		return nil, err
	}
	existing, exists := m.datasets[dataset][table.Name]
	if !exists {
		return nil, errors.TableNotFoundError(dataset, table.Name, nil)
	}

	var failures []string
	loaded := make([]map[string]interface{}, 0, len(rows))
	for i, row := range rows {
		typed, err := coerceRow(table, row)
		if err != nil {
			failures = append(failures, fmt.Sprintf("row %d: %v", i+1, err))
			continue
		}
		loaded = append(loaded, typed)
	}
	if len(failures) > 0 {
		return nil, errors.LoadError(table.Name, failures)
	}

	m.datasets[dataset][table.Name] = append(existing, loaded...)
	return &models.LoadResult{
		Table:      table.Name,
		RowsParsed: int64(len(rows)),
		RowsLoaded: int64(len(loaded)),
	}, nil
}

// Close marks the warehouse closed
func (m *MockWarehouse) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Closed = true
	return nil
}

// Rows returns the stored rows of a table
func (m *MockWarehouse) Rows(dataset, table string) []map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.datasets[dataset][table]
}

// HasTable reports whether a table exists
func (m *MockWarehouse) HasTable(dataset, table string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.datasets[dataset][table]
	return ok
}

func coerceRow(table dbschema.Table, row map[string]interface{}) (map[string]interface{}, error) {
	for name := range row {
		if _, ok := table.Column(name); !ok {
			return nil, fmt.Errorf("unknown column %q", name)
		}
	}

	typed := make(map[string]interface{}, len(row))
	for _, col := range table.Columns {
		v, present := row[col.Name]
		if !present || v == nil {
			if col.Mode == dbschema.Required {
				return nil, fmt.Errorf("NULL result in a non-nullable column %s", col.Name)
			}
			continue
		}
		c, err := coerce(col, v)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", col.Name, err)
		}
		typed[col.Name] = c
	}
	return typed, nil
}

func coerce(col dbschema.Column, v interface{}) (interface{}, error) {
	switch col.Type {
	case dbschema.Numeric:
		switch n := v.(type) {
		case json.Number:
			return dbschema.DecodeNumeric(string(n))
		default:
			return dbschema.DecodeNumeric(v)
		}
	case dbschema.Timestamp:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("expected timestamp string, got %T", v)
		}
		return time.Parse(time.RFC3339Nano, s)
	case dbschema.Boolean:
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("expected boolean, got %T", v)
		}
		return b, nil
	default:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %T", v)
		}
		return s, nil
	}
}
