package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	"kcidb/pkg/errors"
	"kcidb/pkg/models"
)

const sampleConfig = `warehouse:
  driver: snowflake
snowflake:
  account: test123.us-east-1
  user: kcidb
  password: secret
  database: KCIDB
  warehouse: COMPUTE_WH
  timeout: 2m
log:
  level: debug
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "credentials.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestGetConfigFile(t *testing.T) {
	t.Setenv(CredentialsEnv, "")
	home, _ := os.UserHomeDir()
	assert.Equal(t, filepath.Join(home, ".kcidb", "config.yaml"), GetConfigFile())

	t.Setenv(CredentialsEnv, "/etc/kcidb/../kcidb/creds.yaml")
	assert.Equal(t, "/etc/kcidb/creds.yaml", GetConfigFile())
}

func TestLoad(t *testing.T) {
	t.Setenv(CredentialsEnv, writeConfig(t, sampleConfig))

	config, err := Load(viper.New())
	require.NoError(t, err)
	assert.Equal(t, DriverSnowflake, config.Warehouse.Driver)
	assert.Equal(t, "test123.us-east-1", config.Snowflake.Account)
	assert.Equal(t, "secret", config.Snowflake.Password)
	assert.Equal(t, "2m", config.Snowflake.Timeout)
	assert.Equal(t, "debug", config.Log.Level)
	assert.NotEmpty(t, config.DuckDB.Path, "defaults fill unset keys")
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv(CredentialsEnv, writeConfig(t, sampleConfig))
	t.Setenv("KCIDB_SNOWFLAKE_WAREHOUSE", "LOAD_WH")
	t.Setenv("KCIDB_WAREHOUSE_DRIVER", "duckdb")
	t.Setenv("KCIDB_DUCKDB_PATH", "/tmp/ci.duckdb")

	config, err := Load(viper.New())
	require.NoError(t, err)
	assert.Equal(t, "LOAD_WH", config.Snowflake.Warehouse)
	assert.Equal(t, DriverDuckDB, config.Warehouse.Driver)
	assert.Equal(t, "/tmp/ci.duckdb", config.DuckDB.Path)
}

func TestLoadMissingFile(t *testing.T) {
	t.Setenv(CredentialsEnv, filepath.Join(t.TempDir(), "absent.yaml"))

	_, err := Load(viper.New())
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeConfigNotFound))
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		field   string
	}{
		{"unknown driver", "warehouse:\n  driver: bigquery\n", "warehouse.driver"},
		{"bad timeout", "warehouse:\n  driver: duckdb\nsnowflake:\n  timeout: soon\n", "snowflake.timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(CredentialsEnv, writeConfig(t, tt.content))
			_, err := Load(viper.New())
			require.Error(t, err)
			assert.True(t, errors.HasCode(err, errors.ErrCodeConfigInvalid))
			assert.Equal(t, tt.field, err.(*errors.AppError).Context["field"])
		})
	}
}

func TestEncryptDecryptPassword(t *testing.T) {
	t.Setenv(EncryptionKeyEnv, "correct horse battery staple")

	encrypted, err := EncryptPassword("s3cret")
	require.NoError(t, err)
	assert.True(t, IsEncrypted(encrypted))
	assert.NotContains(t, encrypted, "s3cret")

	again, err := EncryptPassword(encrypted)
	require.NoError(t, err)
	assert.Equal(t, encrypted, again, "encrypted values are left alone")

	decrypted, err := DecryptPassword(encrypted)
	require.NoError(t, err)
	assert.Equal(t, "s3cret", decrypted)

	plain, err := DecryptPassword("plain")
	require.NoError(t, err)
	assert.Equal(t, "plain", plain)

	t.Setenv(EncryptionKeyEnv, "wrong key")
	_, err = DecryptPassword(encrypted)
	assert.ErrorContains(t, err, "failed to decrypt password")

	t.Setenv(EncryptionKeyEnv, "")
	_, err = EncryptPassword("s3cret")
	assert.ErrorContains(t, err, EncryptionKeyEnv)
}

func TestLoadEncryptedPassword(t *testing.T) {
	t.Setenv(EncryptionKeyEnv, "passphrase")
	encrypted, err := EncryptPassword("from-file")
	require.NoError(t, err)

	t.Setenv(CredentialsEnv, writeConfig(t,
		"snowflake:\n  account: acct\n  user: kcidb\n  password: "+encrypted+"\n"))

	config, err := Load(viper.New())
	require.NoError(t, err)
	assert.Equal(t, "from-file", config.Snowflake.Password)
}

func TestKeyringPassword(t *testing.T) {
	keyring.MockInit()

	password, err := LookupPassword("acct", "kcidb")
	require.NoError(t, err)
	assert.Empty(t, password)

	require.NoError(t, StorePassword("acct", "kcidb", "from-keyring"))

	config := &models.Config{
		Warehouse: models.Warehouse{Driver: DriverSnowflake},
		Snowflake: models.Snowflake{Account: "acct", User: "kcidb"},
	}
	require.NoError(t, ResolvePassword(config))
	assert.Equal(t, "from-keyring", config.Snowflake.Password)

	require.NoError(t, DeletePassword("acct", "kcidb"))
	password, err = LookupPassword("acct", "kcidb")
	require.NoError(t, err)
	assert.Empty(t, password)

	assert.Error(t, StorePassword("", "kcidb", "x"))
}

func TestSaveAndReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	config := &models.Config{
		Warehouse: models.Warehouse{Driver: DriverDuckDB},
		DuckDB:    models.DuckDB{Path: "/var/lib/kcidb.duckdb"},
	}
	require.NoError(t, Save(config, path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, config, loaded)
}
