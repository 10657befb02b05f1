package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/feral-file/ff-options/internal/adapter"
	"github.com/feral-file/ff-options/internal/config"
	"github.com/feral-file/ff-options/internal/logger"
	"github.com/feral-file/ff-options/internal/options"
	"github.com/feral-file/ff-options/internal/store"
)

const (
	outputText = "text"
	outputJSON = "json"
)

// app carries the state shared by every command
type app struct {
	configFile string
	envPath    string
	output     string

	out     io.Writer
	fs      adapter.FileSystem
	options *options.Options
	close   func() error
}

func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "optionsctl <command>",
		Short:         "Read and write Feral File options",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if a.output != outputText && a.output != outputJSON {
				return fmt.Errorf("unknown output %q (must be text or json)", a.output)
			}
			a.out = cmd.OutOrStdout()
			if a.options != nil {
				return nil
			}
			return a.connect(cmd.Context())
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.close != nil {
				_ = a.close()
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&a.configFile, "config", "", "path to configuration file")
	rootCmd.PersistentFlags().StringVar(&a.envPath, "env", "config/", "path to environment files")
	rootCmd.PersistentFlags().StringVarP(&a.output, "output", "o", outputText, "output format (text or json)")

	rootCmd.AddCommand(
		newGetCmd(a),
		newSetCmd(a),
		newDeleteCmd(a),
		newExistsCmd(a),
		newListCmd(a),
		newImportCmd(a),
		newExportCmd(a),
	)

	return rootCmd
}

// connect opens the database and builds the options facade from configuration
func (a *app) connect(ctx context.Context) error {
	config.ChdirRepoRoot()
	cfg, err := config.LoadCLIConfig(a.configFile, a.envPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	err = logger.Initialize(logger.Config{
		Debug:           cfg.Debug,
		SentryDSN:       cfg.SentryDSN,
		BreadcrumbLevel: zapcore.InfoLevel,
		Tags: map[string]string{
			"service": "optionsctl",
		},
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	db, err := gorm.Open(postgres.Open(cfg.Database.DSN()), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := store.ConfigureConnectionPool(db, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns, cfg.Database.ConnMaxLifetime, cfg.Database.ConnMaxIdleTime); err != nil {
		return fmt.Errorf("failed to configure connection pool: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}
	a.close = func() error {
		logger.Flush(2 * time.Second)
		return sqlDB.Close()
	}

	clock := adapter.NewClock()
	optionStore := store.NewOptionStore(db, clock,
		store.WithTable(cfg.Options.Schema, cfg.Options.TablePrefix),
		store.WithWriteConcurrency(cfg.Options.WriteConcurrency),
		store.WithLogger(logger.Default()),
	)
	if cfg.Options.ProvisionOnStart {
		if err := store.InitWithRetry(ctx, optionStore, cfg.Options.ProvisionTimeout); err != nil {
			return fmt.Errorf("failed to provision options table: %w", err)
		}
	}

	logger.Debug("Connected to options store", zap.String("host", cfg.Database.Host))
	a.options = options.New(optionStore,
		options.WithLogger(logger.Default()),
		options.WithClock(clock),
	)
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := &app{fs: adapter.NewFileSystem()}
	if err := newRootCmd(a).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
