package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/kowloon-quant/tradeengine/internal/config"
	"github.com/kowloon-quant/tradeengine/internal/store"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the stop/order/queue schema to the configured database",
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(_ *cobra.Command, _ []string) error {
	log := newLogger(true, "info")
	_, cfg, err := config.New(configPath, log)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	if _, err := pool.Exec(ctx, store.Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	fmt.Println("schema applied")
	return nil
}
