package snowflake

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/snowflakedb/gosnowflake"

	"kcidb/pkg/errors"
)

// Service provides the Snowflake warehouse operations kcidb needs
type Service struct {
	db     *sql.DB
	config Config
	logger zerolog.Logger
}

// Config holds Snowflake connection configuration
type Config struct {
	Account   string
	Username  string
	Password  string
	Database  string
	Warehouse string
	Role      string
	Timeout   time.Duration
}

// NewService creates a new Snowflake service
func NewService(config Config, logger zerolog.Logger) *Service {
	return &Service{
		config: config,
		logger: logger.With().Str("warehouse", "snowflake").Logger(),
	}
}

// DSN renders the gosnowflake connection string for the configuration
func (c Config) DSN() (string, error) {
	return gosnowflake.DSN(&gosnowflake.Config{
		Account:      c.Account,
		User:         c.Username,
		Password:     c.Password,
		Database:     c.Database,
		Warehouse:    c.Warehouse,
		Role:         c.Role,
		LoginTimeout: c.Timeout,
	})
}

// Connect establishes a connection to Snowflake
func (s *Service) Connect(ctx context.Context) error {
	if s.db != nil {
		return nil
	}
	if err := ValidateConfig(s.config); err != nil {
		return errors.Wrap(err, errors.ErrCodeConfigInvalid, "Invalid Snowflake configuration")
	}

	dsn, err := s.config.DSN()
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeConfigInvalid, "Failed to build Snowflake DSN").
			WithContext("account", s.config.Account)
	}

	db, err := sql.Open("snowflake", dsn)
	if err != nil {
		return errors.ConnectionError("Failed to open Snowflake connection", err).
			WithContext("account", s.config.Account).
			WithContext("warehouse", s.config.Warehouse)
	}

	// Statements run one at a time; PUT needs a stable session
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(10 * time.Minute)

	connCtx, cancel := s.getContext(ctx)
	defer cancel()

	if err := db.PingContext(connCtx); err != nil {
		db.Close()
		return errors.ConnectionError("Failed to connect to Snowflake", err).
			WithContext("account", s.config.Account).
			WithContext("user", s.config.Username)
	}

	s.db = db
	s.logger.Debug().Str("account", s.config.Account).Msg("Connected")
	return nil
}

// Close closes the database connection
func (s *Service) Close() error {
	if s.db == nil {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close connection: %w", err)
	}
	s.db = nil
	return nil
}

func (s *Service) getContext(parent context.Context) (context.Context, context.CancelFunc) {
	timeout := s.config.Timeout
	if timeout == 0 {
		timeout = 5 * time.Minute
	}
	return context.WithTimeout(parent, timeout)
}

func (s *Service) connected() error {
	if s.db == nil {
		return errors.New(errors.ErrCodeConnectionFailed, "Not connected to Snowflake").
			WithSuggestions("Call Connect() before issuing statements")
	}
	return nil
}

// ValidateConfig validates the Snowflake configuration
func ValidateConfig(config Config) error {
	if config.Account == "" {
		return fmt.Errorf("account is required")
	}
	if config.Username == "" {
		return fmt.Errorf("user is required")
	}
	if config.Password == "" {
		return fmt.Errorf("password is required")
	}
	if config.Database == "" {
		return fmt.Errorf("database is required")
	}
	if config.Warehouse == "" {
		return fmt.Errorf("warehouse is required")
	}
	return nil
}
