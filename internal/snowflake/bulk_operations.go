package snowflake

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"kcidb/internal/dbschema"
	"kcidb/pkg/errors"
	"kcidb/pkg/models"
)

// LoadJSON bulk-loads storage-form rows into a table. The rows are staged
// as a single JSON file in the table stage and copied in one statement
// with ON_ERROR = ABORT_STATEMENT. When the copy aborts, every rejected row
// is collected with VALIDATE on the failed job.
func (s *Service) LoadJSON(ctx context.Context, dataset string, table dbschema.Table, rows []map[string]interface{}) (*models.LoadResult, error) {
	if err := s.connected(); err != nil {
		return nil, err
	}
	if err := dbschema.ValidateDataset(dataset); err != nil {
		return nil, errors.ValidationError("dataset", dataset, err.Error())
	}

	ctx, cancel := s.getContext(ctx)
	defer cancel()

	start := time.Now()
	loadID := uuid.New().String()
	log := s.logger.With().Str("table", table.QualifiedName(dataset)).Str("load_id", loadID).Logger()

	file, err := writeStagingFile(table.Name, loadID, rows)
	if err != nil {
		return nil, err
	}
	defer os.Remove(file)

	// JOB_ID => '_last' refers to the session, so every statement shares one connection
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, errors.ConnectionError("Failed to acquire warehouse session", err)
	}
	defer conn.Close()

	stage := tableStage(dataset, table)
	staged := filepath.Base(file) + ".gz"

	putSQL := fmt.Sprintf("PUT 'file://%s' %s AUTO_COMPRESS = TRUE OVERWRITE = TRUE",
		filepath.ToSlash(file), stage)
	if _, err := conn.ExecContext(ctx, putSQL); err != nil {
		if isObjectError(err, errObjectNotFound, "does not exist") {
			return nil, errors.TableNotFoundError(dataset, table.Name, err)
		}
		return nil, errors.Wrap(err, errors.ErrCodeStagingFailed, "Failed to PUT file").
			WithContext("file", file).
			WithContext("stage", stage)
	}
	log.Debug().Int("rows", len(rows)).Msg("Rows staged")

	copySQL := buildCopyIntoSQL(dataset, table, stage, staged, "ON_ERROR = ABORT_STATEMENT PURGE = TRUE")
	result := &models.LoadResult{Table: table.Name}
	copyRows, err := conn.QueryContext(ctx, copySQL)
	if err != nil {
		rowErrors := s.rejectedRows(ctx, conn, dataset, table)
		removeStaged(ctx, conn, stage, staged, log)
		if len(rowErrors) == 0 {
			return nil, errors.SQLError("Failed to execute COPY INTO", copySQL, err).
				WithContext("table", table.Name)
		}
		log.Error().Int("errors", len(rowErrors)).Msg("Rows rejected")
		loadErr := errors.LoadError(table.Name, rowErrors)
		loadErr.Cause = err
		return nil, loadErr
	}
	err = parseCopyResults(copyRows, result)
	copyRows.Close()
	if err != nil {
		return nil, err
	}
	if len(result.Errors) > 0 {
		removeStaged(ctx, conn, stage, staged, log)
		return nil, errors.LoadError(table.Name, result.Errors)
	}

	log.Debug().
		Int64("rows_loaded", result.RowsLoaded).
		Dur("elapsed", time.Since(start)).
		Msg("COPY INTO completed")
	return result, nil
}

// rejectedRows returns one message per row rejected by the last COPY of the
// session. Nothing is returned when the failure was not row-level.
func (s *Service) rejectedRows(ctx context.Context, conn *sql.Conn, dataset string, table dbschema.Table) []string {
	validateSQL := buildValidateSQL(dataset, table)
	rows, err := conn.QueryContext(ctx, validateSQL)
	if err != nil {
		s.logger.Warn().Err(err).Str("table", table.Name).Msg("Failed to collect rejected rows")
		return nil
	}
	defer rows.Close()

	records, err := readRecords(rows)
	if err != nil {
		s.logger.Warn().Err(err).Str("table", table.Name).Msg("Failed to parse rejected rows")
		return nil
	}

	var messages []string
	for _, r := range records {
		msg := stringValue(r["error"])
		if msg == "" {
			continue
		}
		if column := stringValue(r["column_name"]); column != "" {
			msg = fmt.Sprintf("%s (column %s)", msg, column)
		}
		if row := stringValue(r["row_number"]); row != "" {
			msg = fmt.Sprintf("row %s: %s", row, msg)
		}
		messages = append(messages, msg)
	}
	return messages
}

// removeStaged drops a staged file that PURGE left behind after a failed copy
func removeStaged(ctx context.Context, conn *sql.Conn, stage, staged string, log zerolog.Logger) {
	removeSQL := fmt.Sprintf("REMOVE %s/%s", stage, staged)
	if _, err := conn.ExecContext(ctx, removeSQL); err != nil {
		log.Warn().Err(err).Msg("Failed to remove staged file")
	}
}

// tableStage names the internal stage of a table
func tableStage(dataset string, table dbschema.Table) string {
	return fmt.Sprintf("@%s.%%%s", dbschema.Quote(dataset), dbschema.Quote(table.Name))
}

// buildValidateSQL lists the rows rejected by the last COPY INTO of the session
func buildValidateSQL(dataset string, table dbschema.Table) string {
	return fmt.Sprintf("SELECT * FROM TABLE(VALIDATE(%s, JOB_ID => '_last'))", table.QualifiedName(dataset))
}

// buildCopyIntoSQL builds COPY INTO SQL statement
func buildCopyIntoSQL(dataset string, table dbschema.Table, stage, staged, options string) string {
	return fmt.Sprintf(
		"COPY INTO %s FROM %s FILES = ('%s') "+
			"FILE_FORMAT = (TYPE = JSON STRIP_OUTER_ARRAY = TRUE) "+
			"MATCH_BY_COLUMN_NAME = CASE_SENSITIVE %s",
		table.QualifiedName(dataset), stage, staged, options,
	)
}

// writeStagingFile writes rows as a JSON array to a uniquely named temp file
func writeStagingFile(table, loadID string, rows []map[string]interface{}) (string, error) {
	name := filepath.Join(os.TempDir(), fmt.Sprintf("kcidb_%s_%s.json", table, loadID))
	f, err := os.OpenFile(name, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeStagingFailed, "Failed to create temp file")
	}

	w := bufio.NewWriter(f)
	encoder := json.NewEncoder(w)
	encoder.SetEscapeHTML(false)
	if rows == nil {
		rows = []map[string]interface{}{}
	}
	if err := encoder.Encode(rows); err != nil {
		f.Close()
		os.Remove(name)
		return "", errors.Wrap(err, errors.ErrCodeStagingFailed, "Failed to write temp file")
	}
	if err := w.Flush(); err != nil {
		f.Close()
		os.Remove(name)
		return "", errors.Wrap(err, errors.ErrCodeStagingFailed, "Failed to write temp file")
	}
	if err := f.Close(); err != nil {
		os.Remove(name)
		return "", errors.Wrap(err, errors.ErrCodeStagingFailed, "Failed to write temp file")
	}
	return name, nil
}

// parseCopyResults parses COPY INTO command results
func parseCopyResults(rows *sql.Rows, result *models.LoadResult) error {
	records, err := readRecords(rows)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeResultParsing, "Failed to parse COPY results")
	}

	for _, r := range records {
		parsed, err := int64Value(r["rows_parsed"])
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeResultParsing, "Failed to parse COPY results")
		}
		loaded, err := int64Value(r["rows_loaded"])
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeResultParsing, "Failed to parse COPY results")
		}
		result.RowsParsed += parsed
		result.RowsLoaded += loaded

		status := strings.ToUpper(stringValue(r["status"]))
		if status != "" && status != "LOADED" {
			msg := stringValue(r["first_error"])
			if msg == "" {
				msg = fmt.Sprintf("file %s: %s", stringValue(r["file"]), status)
			}
			result.Errors = append(result.Errors, msg)
		}
	}
	return nil
}

// readRecords reads every row into a map keyed by lower-cased column name.
// COPY result layouts differ between modes, so columns are looked up by name.
func readRecords(rows *sql.Rows) ([]map[string]interface{}, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var records []map[string]interface{}
	for rows.Next() {
		values := make([]interface{}, len(columns))
		dest := make([]interface{}, len(columns))
		for i := range values {
			dest[i] = &values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}

		record := make(map[string]interface{}, len(columns))
		for i, c := range columns {
			record[strings.ToLower(c)] = values[i]
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func stringValue(v interface{}) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case []byte:
		return string(s)
	default:
		return fmt.Sprint(s)
	}
}

func int64Value(v interface{}) (int64, error) {
	switch n := v.(type) {
	case nil:
		return 0, nil
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case float64:
		return int64(n), nil
	case string:
		return strconv.ParseInt(n, 10, 64)
	case []byte:
		return strconv.ParseInt(string(n), 10, 64)
	default:
		return 0, fmt.Errorf("unexpected count of type %T", v)
	}
}
