package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"kcidb/internal/common"
	"kcidb/pkg/errors"
	"kcidb/pkg/models"
)

const (
	// CredentialsEnv names the YAML credentials file
	CredentialsEnv = "KCIDB_CREDENTIALS"
	// EnvPrefix prefixes environment overrides, e.g. KCIDB_SNOWFLAKE_ACCOUNT
	EnvPrefix = "KCIDB"

	DriverSnowflake = "snowflake"
	DriverDuckDB    = "duckdb"
)

func GetConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".kcidb")
}

// GetConfigFile returns the credentials file path, honoring KCIDB_CREDENTIALS
func GetConfigFile() string {
	if file := os.Getenv(CredentialsEnv); file != "" {
		return filepath.Clean(file)
	}
	return filepath.Join(GetConfigPath(), "config.yaml")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("warehouse.driver", DriverSnowflake)
	v.SetDefault("snowflake.account", "")
	v.SetDefault("snowflake.user", "")
	v.SetDefault("snowflake.password", "")
	v.SetDefault("snowflake.role", "")
	v.SetDefault("snowflake.warehouse", "")
	v.SetDefault("snowflake.database", "")
	v.SetDefault("snowflake.timeout", "5m")
	v.SetDefault("duckdb.path", filepath.Join(GetConfigPath(), "kcidb.duckdb"))
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
}

// Load reads the credentials file into v and returns the resolved
// configuration. KCIDB_* environment variables override file values.
// A missing default file is not an error; a missing file named by
// KCIDB_CREDENTIALS is.
func Load(v *viper.Viper) (*models.Config, error) {
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	file := GetConfigFile()
	if _, err := os.Stat(file); err == nil {
		v.SetConfigFile(file)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "Failed to read credentials file").
				WithContext("file", file)
		}
	} else if os.Getenv(CredentialsEnv) != "" {
		return nil, errors.New(errors.ErrCodeConfigNotFound, "Credentials file not found").
			WithContext("file", file).
			WithSuggestions(fmt.Sprintf("Check the path in %s", CredentialsEnv))
	}

	var config models.Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "Failed to decode configuration")
	}

	if err := Validate(&config); err != nil {
		return nil, err
	}
	if err := ResolvePassword(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate checks the configuration values that do not depend on the
// command being run
func Validate(config *models.Config) error {
	switch config.Warehouse.Driver {
	case DriverSnowflake, DriverDuckDB:
	default:
		return errors.ConfigError(
			fmt.Sprintf("Unknown warehouse driver %q", config.Warehouse.Driver), "warehouse.driver").
			WithSuggestions("Use 'snowflake' or 'duckdb'")
	}
	if _, err := SnowflakeTimeout(config); err != nil {
		return errors.ConfigError(fmt.Sprintf("Invalid timeout %q", config.Snowflake.Timeout), "snowflake.timeout")
	}
	return nil
}

// SnowflakeTimeout parses the configured statement timeout
func SnowflakeTimeout(config *models.Config) (time.Duration, error) {
	if config.Snowflake.Timeout == "" {
		return 0, nil
	}
	return time.ParseDuration(config.Snowflake.Timeout)
}

// ResolvePassword decrypts an ENC[...] password, or looks an empty one
// up in the OS keyring
func ResolvePassword(config *models.Config) error {
	if config.Warehouse.Driver != DriverSnowflake {
		return nil
	}

	switch {
	case IsEncrypted(config.Snowflake.Password):
		decrypted, err := DecryptPassword(config.Snowflake.Password)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeConfigInvalid, "Failed to decrypt Snowflake password").
				WithContext("field", "snowflake.password")
		}
		config.Snowflake.Password = decrypted
	case config.Snowflake.Password == "" && config.Snowflake.Account != "":
		password, err := LookupPassword(config.Snowflake.Account, config.Snowflake.User)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeConfigInvalid, "Failed to read Snowflake password from keyring")
		}
		config.Snowflake.Password = password
	}
	return nil
}

// Save writes config as YAML to path
func Save(config *models.Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), common.SecureDirMode); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	return common.WriteFile(path, data, common.SecureFileMode)
}

// ReadFile parses a credentials file without applying defaults or
// environment overrides
func ReadFile(path string) (*models.Config, error) {
	data, err := os.ReadFile(path) // #nosec G304 - path comes from the operator
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config models.Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &config, nil
}
