// Package dbschema declares the warehouse layout of each record kind: one
// table per kind, with the open-ended "misc" object kept in a string column.
package dbschema

import (
	"fmt"
	"regexp"
	"strings"

	"kcidb/pkg/models"
)

// ColumnType is a warehouse-neutral column type
type ColumnType string

const (
	String    ColumnType = "STRING"
	Boolean   ColumnType = "BOOLEAN"
	Numeric   ColumnType = "NUMERIC"
	Timestamp ColumnType = "TIMESTAMP"
)

// Mode tells whether a column accepts nulls
type Mode string

const (
	Required Mode = "REQUIRED"
	Nullable Mode = "NULLABLE"
)

// Dialect selects the SQL flavor DDL is rendered in
type Dialect int

const (
	Snowflake Dialect = iota
	DuckDB
)

// Column describes a single table column
type Column struct {
	Name        string
	Type        ColumnType
	Mode        Mode
	Description string
}

// Table describes the table holding one record kind
type Table struct {
	Name    string
	Columns []Column
}

// MiscColumn names the column holding serialized origin-specific data
const MiscColumn = "misc"

func required(name, desc string) Column {
	return Column{Name: name, Type: String, Mode: Required, Description: desc}
}

func nullable(name string, t ColumnType, desc string) Column {
	return Column{Name: name, Type: t, Mode: Nullable, Description: desc}
}

var misc = nullable(MiscColumn, String, "Miscellaneous extra data about the object, serialized JSON")

// Tables lists every table in submission order
var Tables = []Table{
	{
		Name: models.Revisions,
		Columns: []Column{
			required("origin", "The name of the CI system which submitted the revision"),
			required("origin_id", "Origin-specific ID of the revision"),
			nullable("git_repository_url", String, "URL of the Git repository which contains the revision"),
			nullable("git_repository_commit_hash", String, "Full commit hash of the revision"),
			nullable("description", String, "Human-readable description of the revision"),
			nullable("publishing_time", Timestamp, "The time the revision was made public"),
			nullable("discovery_time", Timestamp, "The time the revision was discovered by the CI system"),
			nullable("valid", Boolean, "True if the revision is valid"),
			misc,
		},
	},
	{
		Name: models.Builds,
		Columns: []Column{
			required("revision_origin", "The origin of the built revision"),
			required("revision_origin_id", "Origin-specific ID of the built revision"),
			required("origin", "The name of the CI system which submitted the build"),
			required("origin_id", "Origin-specific ID of the build"),
			nullable("description", String, "Human-readable description of the build"),
			nullable("start_time", Timestamp, "The time the build was started"),
			nullable("duration", Numeric, "The number of seconds it took to complete the build"),
			nullable("architecture", String, "Target architecture of the build"),
			nullable("command", String, "Full shell command line used to make the build"),
			nullable("compiler", String, "Name and version of the compiler used"),
			nullable("config_name", String, "Name of the kernel configuration used"),
			nullable("log_url", String, "URL of the build log file"),
			nullable("valid", Boolean, "True if the build is valid"),
			misc,
		},
	},
	{
		Name: models.Environments,
		Columns: []Column{
			required("origin", "The name of the CI system which submitted the environment"),
			required("origin_id", "Origin-specific ID of the environment"),
			nullable("description", String, "Human-readable description of the environment"),
			misc,
		},
	},
	{
		Name: models.Tests,
		Columns: []Column{
			required("build_origin", "The origin of the tested build"),
			required("build_origin_id", "Origin-specific ID of the tested build"),
			required("environment_origin", "The origin of the test environment"),
			required("environment_origin_id", "Origin-specific ID of the test environment"),
			required("origin", "The name of the CI system which submitted the test run"),
			required("origin_id", "Origin-specific ID of the test run"),
			nullable("path", String, "Dot-separated path to the test in the catalog"),
			nullable("description", String, "Human-readable description of the test run"),
			nullable("status", String, "The test status string"),
			nullable("waived", Boolean, "True if the test status should be ignored"),
			nullable("start_time", Timestamp, "The time the test run was started"),
			nullable("duration", Numeric, "The number of seconds it took to run the test"),
			misc,
		},
	},
}

// Lookup returns the table for a record kind
func Lookup(name string) (Table, bool) {
	for _, t := range Tables {
		if t.Name == name {
			return t, true
		}
	}
	return Table{}, false
}

// Column returns the named column
func (t Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// ColumnNames returns the column names in declaration order
func (t Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$]*$`)

// ValidateDataset checks that a dataset name is a plain SQL identifier
func ValidateDataset(name string) error {
	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("invalid dataset name %q: must start with a letter or underscore and contain only letters, digits, '_' or '$'", name)
	}
	return nil
}

// Quote double-quotes an identifier
func Quote(identifier string) string {
	return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`
}

// QualifiedName returns the quoted dataset-qualified table name
func (t Table) QualifiedName(dataset string) string {
	return Quote(dataset) + "." + Quote(t.Name)
}

// SQLType renders a column type for a dialect
func (c Column) SQLType(d Dialect) string {
	switch c.Type {
	case Boolean:
		return "BOOLEAN"
	case Numeric:
		return "NUMERIC(38, 9)"
	case Timestamp:
		if d == Snowflake {
			return "TIMESTAMP_TZ"
		}
		return "TIMESTAMPTZ"
	default:
		if d == Snowflake {
			return "STRING"
		}
		return "VARCHAR"
	}
}

// CreateSQL renders the CREATE TABLE statement. It deliberately has no
// IF NOT EXISTS clause: creating an existing table must fail.
func (t Table) CreateSQL(d Dialect, dataset string) string {
	defs := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		def := Quote(c.Name) + " " + c.SQLType(d)
		if c.Mode == Required {
			def += " NOT NULL"
		}
		if d == Snowflake && c.Description != "" {
			def += " COMMENT '" + strings.ReplaceAll(c.Description, "'", "''") + "'"
		}
		defs[i] = def
	}
	return fmt.Sprintf("CREATE TABLE %s (\n  %s\n)", t.QualifiedName(dataset), strings.Join(defs, ",\n  "))
}

// DropSQL renders the DROP TABLE statement, failing on a missing table
func (t Table) DropSQL(dataset string) string {
	return "DROP TABLE " + t.QualifiedName(dataset)
}

// SelectSQL renders the full-table read. Columns are listed explicitly so
// scan destinations line up with the declared layout.
func (t Table) SelectSQL(dataset string) string {
	cols := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		cols[i] = Quote(c.Name)
	}
	return fmt.Sprintf("SELECT %s FROM %s", strings.Join(cols, ", "), t.QualifiedName(dataset))
}
