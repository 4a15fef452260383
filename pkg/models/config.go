package models

// Config is the content of the credentials file named by KCIDB_CREDENTIALS
type Config struct {
	Warehouse Warehouse `yaml:"warehouse" mapstructure:"warehouse"`
	Snowflake Snowflake `yaml:"snowflake" mapstructure:"snowflake"`
	DuckDB    DuckDB    `yaml:"duckdb" mapstructure:"duckdb"`
	Log       Log       `yaml:"log" mapstructure:"log"`
}

// Warehouse selects the warehouse backend
type Warehouse struct {
	Driver string `yaml:"driver" mapstructure:"driver"` // "snowflake" or "duckdb"
}

type Snowflake struct {
	Account   string `yaml:"account" mapstructure:"account"`
	User      string `yaml:"user" mapstructure:"user"`
	Password  string `yaml:"password" mapstructure:"password"` // plain, ENC[...] or empty for keyring
	Role      string `yaml:"role" mapstructure:"role"`
	Warehouse string `yaml:"warehouse" mapstructure:"warehouse"`
	Database  string `yaml:"database" mapstructure:"database"`
	Timeout   string `yaml:"timeout" mapstructure:"timeout"` // e.g. "5m"
}

type DuckDB struct {
	Path string `yaml:"path" mapstructure:"path"`
}

type Log struct {
	Level string `yaml:"level" mapstructure:"level"`
	File  string `yaml:"file" mapstructure:"file"`
}
