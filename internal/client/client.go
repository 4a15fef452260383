// Package client implements the kcidb database client: initializing and
// cleaning up a dataset, and moving schema-validated report data in and
// out of it.
package client

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"kcidb/internal/convert"
	"kcidb/internal/dbschema"
	"kcidb/internal/ioschema"
	"kcidb/pkg/errors"
	"kcidb/pkg/models"
)

// Warehouse is the storage backend a Client talks to. Every call is a
// single blocking round trip; implementations do not retry.
type Warehouse interface {
	// CreateTable creates a table, failing with ErrCodeTableExists if it is present
	CreateTable(ctx context.Context, dataset string, table dbschema.Table) error
	// DeleteTable drops a table, failing with ErrCodeTableNotFound if it is missing
	DeleteTable(ctx context.Context, dataset string, table dbschema.Table) error
	// SelectAll reads every row of a table
	SelectAll(ctx context.Context, dataset string, table dbschema.Table) ([]map[string]interface{}, error)
	// LoadJSON bulk-loads storage-form rows. Row-level failures are
	// reported as an ErrCodeLoadFailed error listing each of them.
	LoadJSON(ctx context.Context, dataset string, table dbschema.Table, rows []map[string]interface{}) (*models.LoadResult, error)
	Close() error
}

// Client is a kcidb database client bound to one dataset
type Client struct {
	warehouse       Warehouse
	dataset         string
	logger          zerolog.Logger
	checkReferences bool
}

// Option configures a Client
type Option func(*Client)

// WithLogger sets the logger used to report progress
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithReferenceCheck makes Submit reject documents whose records refer to
// records missing from the same document
func WithReferenceCheck(enabled bool) Option {
	return func(c *Client) {
		c.checkReferences = enabled
	}
}

// New creates a client for a dataset in the given warehouse
func New(warehouse Warehouse, dataset string, opts ...Option) (*Client, error) {
	if err := dbschema.ValidateDataset(dataset); err != nil {
		return nil, errors.ValidationError("dataset", dataset, err.Error())
	}

	c := &Client{
		warehouse: warehouse,
		dataset:   dataset,
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With().Str("dataset", dataset).Logger()
	return c, nil
}

// Dataset returns the dataset name
func (c *Client) Dataset() string {
	return c.dataset
}

// Close releases the warehouse connection
func (c *Client) Close() error {
	return c.warehouse.Close()
}

// Init initializes the database. The dataset must not hold any kcidb table.
func (c *Client) Init(ctx context.Context) error {
	for _, table := range dbschema.Tables {
		if err := c.warehouse.CreateTable(ctx, c.dataset, table); err != nil {
			return err
		}
		c.logger.Debug().Str("table", table.Name).Msg("Created table")
	}
	c.logger.Info().Int("tables", len(dbschema.Tables)).Msg("Dataset initialized")
	return nil
}

// Cleanup empties the database, removing every table and all data.
func (c *Client) Cleanup(ctx context.Context) error {
	for _, table := range dbschema.Tables {
		if err := c.warehouse.DeleteTable(ctx, c.dataset, table); err != nil {
			return err
		}
		c.logger.Debug().Str("table", table.Name).Msg("Deleted table")
	}
	c.logger.Info().Msg("Dataset cleaned up")
	return nil
}

// Query retrieves all data from the database. The result adheres to the
// I/O schema.
func (c *Client) Query(ctx context.Context) (models.Document, error) {
	doc := models.Document{"version": ioschema.Version}

	for _, table := range dbschema.Tables {
		start := time.Now()
		rows, err := c.warehouse.SelectAll(ctx, c.dataset, table)
		if err != nil {
			return nil, err
		}

		records, err := convert.RowsFromStorage(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeResultParsing,
				fmt.Sprintf("Failed to convert rows of table %s", table.Name)).
				WithContext("table", table.Name)
		}
		doc[table.Name] = records

		c.logger.Debug().
			Str("table", table.Name).
			Int("rows", len(records)).
			Dur("elapsed", time.Since(start)).
			Msg("Queried table")
	}

	if err := ioschema.Validate(doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Submit validates data against the I/O schema and loads every record
// kind present, one bulk load per kind. Loads are not transactional across
// kinds: a failure leaves the kinds loaded before it in place.
func (c *Client) Submit(ctx context.Context, doc models.Document) ([]*models.LoadResult, error) {
	if err := ioschema.Validate(doc); err != nil {
		return nil, err
	}
	if c.checkReferences {
		if err := CheckReferences(doc); err != nil {
			return nil, err
		}
	}

	var results []*models.LoadResult
	for _, table := range dbschema.Tables {
		if _, present := doc[table.Name]; !present {
			continue
		}
		records := models.Records(doc, table.Name)
		if len(records) == 0 {
			continue
		}

		rows, err := convert.RecordsToStorage(records)
		if err != nil {
			return results, errors.Wrap(err, errors.ErrCodeInvalidInput,
				fmt.Sprintf("Failed to convert %s for loading", table.Name))
		}

		start := time.Now()
		result, err := c.warehouse.LoadJSON(ctx, c.dataset, table, rows)
		if err != nil {
			c.logger.Error().Err(err).Str("table", table.Name).Msg("Load failed")
			return results, err
		}
		results = append(results, result)

		c.logger.Info().
			Str("table", table.Name).
			Int64("rows", result.RowsLoaded).
			Dur("elapsed", time.Since(start)).
			Msg("Loaded records")
	}
	return results, nil
}

// Summarize counts the records of each kind in a document
func Summarize(doc models.Document) map[string]int {
	counts := make(map[string]int, len(models.Kinds))
	for _, kind := range models.Kinds {
		counts[kind] = len(models.Records(doc, kind))
	}
	return counts
}
