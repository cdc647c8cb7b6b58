package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"

	"github.com/abuiliazeed/financial-projections/internal/config"
	"github.com/abuiliazeed/financial-projections/internal/storage/sqlstore"
)

func main() {
	_ = godotenv.Load()

	if err := run(context.Background(), os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("migrator", flag.ContinueOnError)
	fs.SetOutput(stderr)

	configPath := fs.String("config", os.Getenv("CONFIG_PATH"), "path to config file (defaults to CONFIG_PATH or the environment)")
	driver := fs.String("driver", "", "storage driver, sqlite or postgres (overrides config)")
	dsn := fs.String("dsn", "", "sqlite path or postgres URL (overrides config)")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if *driver == "" || *dsn == "" {
		cfg, err := config.LoadStorage(*configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if *driver == "" {
			*driver = cfg.Storage.Driver
		}
		if *dsn == "" {
			*dsn = cfg.DSN()
		}
	}

	if err := sqlstore.Migrate(ctx, *driver, *dsn); err != nil {
		return err
	}

	fmt.Fprintln(stdout, "migrations applied successfully")
	return nil
}
