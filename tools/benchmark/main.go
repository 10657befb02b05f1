package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/feral-file/ff-options/internal/adapter"
	"github.com/feral-file/ff-options/internal/config"
	"github.com/feral-file/ff-options/internal/store"
	"github.com/feral-file/ff-options/internal/store/schema"
)

// Config holds the benchmark flags
type Config struct {
	ConfigFile  string
	EnvPath     string
	TablePrefix string
	Keys        int
	Operations  int
	Concurrency int
	ValueSize   int
	JSONRatio   float64
	OutputFile  string // Output markdown file path (optional)
	Keep        bool   // Keep the benchmark table after the run
}

func main() {
	cfg := parseFlags()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\n\nReceived interrupt signal, shutting down...")
		cancel()
	}()

	dbCfg, err := config.LoadCLIConfig(cfg.ConfigFile, cfg.EnvPath)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	db, err := gorm.Open(postgres.Open(dbCfg.Database.DSN()), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		fmt.Printf("Error connecting to database: %v\n", err)
		os.Exit(1)
	}
	if err := store.ConfigureConnectionPool(db, max(cfg.Concurrency*2, dbCfg.Database.MaxOpenConns), cfg.Concurrency, 0, 0); err != nil {
		fmt.Printf("Error configuring connection pool: %v\n", err)
		os.Exit(1)
	}

	table := cfg.TablePrefix + schema.DefaultOptionTable
	if dbCfg.Options.Schema != "" {
		table = dbCfg.Options.Schema + "." + table
	}

	s := store.NewOptionStore(db, adapter.NewClock(),
		store.WithTable(dbCfg.Options.Schema, cfg.TablePrefix),
		store.WithWriteConcurrency(cfg.Concurrency),
	)
	if err := s.Init(ctx); err != nil {
		fmt.Printf("Error provisioning %s: %v\n", table, err)
		os.Exit(1)
	}

	fmt.Printf("Connected to %s (table: %s)\n", dbCfg.Database.Host, table)
	fmt.Printf("Running %d keys, %d operations per phase, concurrency %d\n", cfg.Keys, cfg.Operations, cfg.Concurrency)

	report := &Report{
		Table:       table,
		Keys:        cfg.Keys,
		Operations:  cfg.Operations,
		Concurrency: cfg.Concurrency,
		ValueSize:   cfg.ValueSize,
		JSONRatio:   cfg.JSONRatio,
	}
	w := workload{keys: cfg.Keys, valueSize: cfg.ValueSize, jsonRatio: cfg.JSONRatio}
	for _, p := range phases(s, w, cfg.Operations) {
		if ctx.Err() != nil {
			break
		}
		fmt.Printf("\r⏳ %-20s", p.name)
		report.Phases = append(report.Phases, runPhase(ctx, p.name, p.n, cfg.Concurrency, p.op))
	}
	fmt.Printf("\r✓ %-20s\n", "done")

	title := "BENCHMARK RESULTS"
	if ctx.Err() != nil {
		title = "INTERRUPTED - PARTIAL RESULTS"
	}
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println(title)
	fmt.Println(strings.Repeat("=", 80))
	printReport(os.Stdout, report)

	if cfg.OutputFile != "" {
		if err := writeReportFile(cfg.OutputFile, report); err != nil {
			fmt.Printf("\n⚠️  Warning: Failed to write markdown file: %v\n", err)
		} else {
			fmt.Printf("\n✓ Report written to: %s\n", cfg.OutputFile)
		}
	}

	if !cfg.Keep {
		if err := db.Exec("DROP TABLE IF EXISTS ?", clause.Table{Name: table}).Error; err != nil {
			fmt.Printf("⚠️  Warning: Failed to drop %s: %v\n", table, err)
		}
	}
}

func parseFlags() *Config {
	cfg := &Config{}

	flag.StringVar(&cfg.ConfigFile, "config", "", "Path to configuration file")
	flag.StringVar(&cfg.EnvPath, "env", "config/", "Path to environment files")
	flag.StringVar(&cfg.TablePrefix, "table-prefix", "bench_", "Table prefix of the benchmark table")
	flag.IntVar(&cfg.Keys, "keys", 1000, "Number of distinct option keys")
	flag.IntVar(&cfg.Operations, "ops", 5000, "Operations per read/update phase")
	flag.IntVar(&cfg.Concurrency, "concurrency", 16, "Number of concurrent workers")
	flag.IntVar(&cfg.ValueSize, "value-size", 256, "Payload size of each value in bytes")
	flag.Float64Var(&cfg.JSONRatio, "json-ratio", 0.5, "Share of keys holding JSON values (0-1)")
	flag.StringVar(&cfg.OutputFile, "output", "", "Output markdown file path (optional)")
	flag.BoolVar(&cfg.Keep, "keep", false, "Keep the benchmark table after the run")

	flag.Parse()

	if cfg.TablePrefix == "" {
		fmt.Println("Error: table-prefix must not be empty, the benchmark drops its table")
		flag.Usage()
		os.Exit(1)
	}
	cfg.Keys = max(cfg.Keys, 1)
	cfg.Operations = max(cfg.Operations, 1)
	cfg.Concurrency = min(max(cfg.Concurrency, 1), 256)
	cfg.JSONRatio = min(max(cfg.JSONRatio, 0), 1)

	return cfg
}

func writeReportFile(path string, r *Report) (err error) {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := file.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	writeMarkdownReport(file, r, time.Now())
	return nil
}
