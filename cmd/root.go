package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"kcidb/internal/client"
	"kcidb/internal/config"
	"kcidb/internal/dbschema"
	"kcidb/internal/duckdb"
	"kcidb/internal/observability"
	"kcidb/internal/snowflake"
	"kcidb/internal/ui"
	"kcidb/pkg/errors"
	"kcidb/pkg/models"
)

var (
	logLevel string
	timeout  time.Duration

	// Loaded by initConfig. Commands that need a warehouse fail with
	// configErr; the others run without configuration.
	appConfig *models.Config
	configErr error

	logger *observability.Logger

	// openWarehouse is replaced in tests
	openWarehouse = openConfiguredWarehouse

	rootCmd = &cobra.Command{
		Use:   "kcidb",
		Short: "Kernel CI reporting database client",
		Long: `kcidb - A client for the Kernel CI reporting database.

Reports are JSON documents holding revisions, builds, environments and
tests. They are validated against the I/O schema and stored in a Snowflake
or DuckDB dataset.

The credentials file is read from $KCIDB_CREDENTIALS (default
~/.kcidb/config.yaml). Any of its keys can be overridden with a KCIDB_
environment variable, e.g. KCIDB_SNOWFLAKE_WAREHOUSE.`,
		SilenceErrors:     true,
		PersistentPreRunE: setupLogging,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				_ = logger.Close()
			}
		},
	}
)

// Execute runs the root command and exits non-zero on failure
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if logger != nil {
			logger.Debug().
				Str("code", string(errors.GetErrorCode(err))).
				Err(err).
				Msg("Command failed")
			_ = logger.Close()
		}
		ui.ShowError(rootCmd.ErrOrStderr(), err)
		stop()
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (default from log.level)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 0, "Abort the command after this long (0 means no limit)")
}

func initConfig() {
	appConfig, configErr = config.Load(viper.New())
}

// setupLogging builds the logger once flags and configuration are known.
// Usage is printed for argument and flag errors only.
func setupLogging(cmd *cobra.Command, args []string) error {
	if err := cmd.ValidateRequiredFlags(); err != nil {
		return err
	}
	cmd.SilenceUsage = true

	loggerConfig := observability.LoggerConfig{
		Level:     logLevel,
		Output:    cmd.ErrOrStderr(),
		Component: "kcidb",
		Version:   Version,
	}
	if appConfig != nil {
		if loggerConfig.Level == "" {
			loggerConfig.Level = appConfig.Log.Level
		}
		loggerConfig.File = appConfig.Log.File
	}

	l, err := observability.NewLogger(loggerConfig)
	if err != nil {
		return errors.ValidationError("log-level", loggerConfig.Level, err.Error())
	}
	logger = l
	return nil
}

// commandContext bounds the command context by --timeout
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if timeout > 0 {
		return context.WithTimeout(ctx, timeout)
	}
	return context.WithCancel(ctx)
}

func openConfiguredWarehouse(ctx context.Context, cfg *models.Config, log zerolog.Logger) (client.Warehouse, error) {
	if cfg.Warehouse.Driver == config.DriverDuckDB {
		warehouse, err := duckdb.Open(ctx, cfg.DuckDB.Path, log)
		if err != nil {
			return nil, err
		}
		return warehouse, nil
	}

	statementTimeout, err := config.SnowflakeTimeout(cfg)
	if err != nil {
		return nil, err
	}
	service := snowflake.NewService(snowflake.Config{
		Account:   cfg.Snowflake.Account,
		Username:  cfg.Snowflake.User,
		Password:  cfg.Snowflake.Password,
		Database:  cfg.Snowflake.Database,
		Warehouse: cfg.Snowflake.Warehouse,
		Role:      cfg.Snowflake.Role,
		Timeout:   statementTimeout,
	}, log)
	if err := service.Connect(ctx); err != nil {
		return nil, err
	}
	return service, nil
}

// newClient opens the configured warehouse and binds a client to dataset
func newClient(ctx context.Context, dataset string, opts ...client.Option) (*client.Client, error) {
	if err := dbschema.ValidateDataset(dataset); err != nil {
		return nil, errors.ValidationError("dataset", dataset, err.Error())
	}
	if configErr != nil {
		return nil, configErr
	}

	log := logger.Logger
	warehouse, err := openWarehouse(ctx, appConfig, log)
	if err != nil {
		return nil, err
	}

	opts = append([]client.Option{client.WithLogger(log)}, opts...)
	c, err := client.New(warehouse, dataset, opts...)
	if err != nil {
		_ = warehouse.Close()
		return nil, err
	}
	return c, nil
}

// datasetFlag registers the required -d/--dataset flag on cmd
func datasetFlag(cmd *cobra.Command, target *string) {
	cmd.Flags().StringVarP(target, "dataset", "d", "", "Dataset name (required)")
	_ = cmd.MarkFlagRequired("dataset")
}
