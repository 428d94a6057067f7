package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/kowloon-quant/tradeengine/internal/analytics"
	"github.com/kowloon-quant/tradeengine/internal/calendar"
	"github.com/kowloon-quant/tradeengine/internal/config"
	"github.com/kowloon-quant/tradeengine/internal/store"
)

var (
	queueYes        bool
	queueReport     bool
	queueReportSince time.Duration
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect and manage the durable signal queue",
}

var queueStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print pending/processing/failed counts and success rate",
	RunE:  runQueueStats,
}

var queueRetryFailedCmd = &cobra.Command{
	Use:   "retry-failed",
	Short: "Move all failed entries back to pending with attempts reset",
	RunE:  runQueueRetryFailed,
}

var queueClearCmd = &cobra.Command{
	Use:       "clear {pending|processing|failed}",
	Short:     "Delete all queue entries in the given status",
	Args:      cobra.ExactValidArgs(1),
	ValidArgs: []string{"pending", "processing", "failed"},
	RunE:      runQueueClear,
}

func init() {
	queueClearCmd.Flags().BoolVar(&queueYes, "yes", false, "skip the interactive confirmation prompt")
	queueStatsCmd.Flags().BoolVar(&queueReport, "report", false, "also print a closed-position performance report")
	queueStatsCmd.Flags().DurationVar(&queueReportSince, "since", 30*24*time.Hour, "how far back --report looks for closed trades")
	queueCmd.AddCommand(queueStatsCmd, queueRetryFailedCmd, queueClearCmd)
	rootCmd.AddCommand(queueCmd)
}

func withQueue(fn func(ctx context.Context, q *store.Queue, cfg config.Config) error) error {
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

	q := store.NewQueue(pool, cfg.Database.URL, log)
	defer q.Close()

	return fn(ctx, q, cfg)
}

func runQueueStats(_ *cobra.Command, _ []string) error {
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

	q := store.NewQueue(pool, cfg.Database.URL, log)
	defer q.Close()

	stats, err := q.Stats(ctx, cfg.AccountID)
	if err != nil {
		return err
	}
	fmt.Printf("account:     %s\n", cfg.AccountID)
	fmt.Printf("pending:     %d\n", stats.Pending)
	fmt.Printf("processing:  %d\n", stats.Processing)
	fmt.Printf("failed:      %d\n", stats.Failed)
	fmt.Printf("success rate: %.1f%%\n", stats.SuccessRate*100)

	if !queueReport {
		return nil
	}

	orders := store.NewOrderStore(pool)
	filled, err := orders.FilledOrders(ctx, cfg.AccountID, time.Now().Add(-queueReportSince))
	if err != nil {
		return fmt.Errorf("load filled orders: %w", err)
	}

	trades := analytics.BuildClosedTrades(filled, currencyForSymbol)
	report := analytics.Analyze(trades, map[string]float64{"USD": 100000, "HKD": 780000})
	fmt.Println()
	fmt.Print(analytics.FormatReport(report))
	return nil
}

// currencyForSymbol maps a traded symbol to its settlement currency
// via the market it lists on; the engine never nets P&L across HKD
// and USD.
func currencyForSymbol(symbol string) string {
	market, ok := calendar.MarketForSymbol(symbol)
	if ok && market == calendar.HK {
		return "HKD"
	}
	return "USD"
}

func runQueueRetryFailed(_ *cobra.Command, _ []string) error {
	return withQueue(func(ctx context.Context, q *store.Queue, cfg config.Config) error {
		n, err := q.RetryFailed(ctx, cfg.AccountID)
		if err != nil {
			return err
		}
		fmt.Printf("requeued %d failed entries to pending\n", n)
		return nil
	})
}

func runQueueClear(_ *cobra.Command, args []string) error {
	status := args[0]
	if !queueYes && !confirm(fmt.Sprintf("delete all %s queue entries? this cannot be undone", status)) {
		fmt.Println("aborted")
		return nil
	}
	return withQueue(func(ctx context.Context, q *store.Queue, cfg config.Config) error {
		var n int64
		var err error
		switch status {
		case "pending":
			n, err = q.ClearPending(ctx, cfg.AccountID)
		case "processing":
			n, err = q.ClearProcessing(ctx, cfg.AccountID)
		case "failed":
			n, err = q.ClearFailed(ctx, cfg.AccountID)
		}
		if err != nil {
			return err
		}
		fmt.Printf("cleared %d %s entries\n", n, status)
		return nil
	})
}

func confirm(prompt string) bool {
	fmt.Printf("%s [y/N]: ", prompt)
	scanner := bufio.NewScanner(os.Stdin)
	if !scanner.Scan() {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(scanner.Text()))
	return answer == "y" || answer == "yes"
}
