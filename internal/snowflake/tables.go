package snowflake

import (
	"context"
	stderrors "errors"
	"strings"
	"time"

	"github.com/snowflakedb/gosnowflake"

	"kcidb/internal/dbschema"
	"kcidb/pkg/errors"
)

// Snowflake SQL compilation error numbers
const (
	errObjectExists   = 2002
	errObjectNotFound = 2003
)

// CreateTable creates a kcidb table in the dataset schema
func (s *Service) CreateTable(ctx context.Context, dataset string, table dbschema.Table) error {
	if err := s.connected(); err != nil {
		return err
	}
	if err := dbschema.ValidateDataset(dataset); err != nil {
		return errors.ValidationError("dataset", dataset, err.Error())
	}

	ctx, cancel := s.getContext(ctx)
	defer cancel()

	query := table.CreateSQL(dbschema.Snowflake, dataset)
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return classify(err, dataset, table.Name, query)
	}
	s.logger.Debug().Str("table", table.QualifiedName(dataset)).Msg("Table created")
	return nil
}

// DeleteTable drops a kcidb table from the dataset schema
func (s *Service) DeleteTable(ctx context.Context, dataset string, table dbschema.Table) error {
	if err := s.connected(); err != nil {
		return err
	}
	if err := dbschema.ValidateDataset(dataset); err != nil {
		return errors.ValidationError("dataset", dataset, err.Error())
	}

	ctx, cancel := s.getContext(ctx)
	defer cancel()

	query := table.DropSQL(dataset)
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return classify(err, dataset, table.Name, query)
	}
	s.logger.Debug().Str("table", table.QualifiedName(dataset)).Msg("Table dropped")
	return nil
}

// SelectAll reads every row of a table
func (s *Service) SelectAll(ctx context.Context, dataset string, table dbschema.Table) ([]map[string]interface{}, error) {
	if err := s.connected(); err != nil {
		return nil, err
	}
	if err := dbschema.ValidateDataset(dataset); err != nil {
		return nil, errors.ValidationError("dataset", dataset, err.Error())
	}

	ctx, cancel := s.getContext(ctx)
	defer cancel()

	start := time.Now()
	query := table.SelectSQL(dataset)
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, classify(err, dataset, table.Name, query)
	}
	defer rows.Close()

	result, err := dbschema.ScanRows(rows, table, dbschema.DecodeNumeric)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeResultParsing, "Failed to read rows").
			WithContext("table", table.Name)
	}

	s.logger.Debug().
		Str("table", table.QualifiedName(dataset)).
		Int("rows", len(result)).
		Dur("elapsed", time.Since(start)).
		Msg("Table scanned")
	return result, nil
}

// classify maps a statement failure to the kcidb error taxonomy
func classify(err error, dataset, table, query string) error {
	switch {
	case isObjectError(err, errObjectExists, "already exists"):
		return errors.TableExistsError(dataset, table, err)
	case isObjectError(err, errObjectNotFound, "does not exist"):
		return errors.TableNotFoundError(dataset, table, err)
	default:
		return errors.SQLError("Statement failed", query, err).
			WithContext("table", table)
	}
}

func isObjectError(err error, number int, fragment string) bool {
	var sfErr *gosnowflake.SnowflakeError
	if stderrors.As(err, &sfErr) {
		return sfErr.Number == number
	}
	return strings.Contains(strings.ToLower(err.Error()), fragment)
}
