package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/justapithecus/lode/lode"
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/courier/cli/config"
	"github.com/pithecene-io/courier/cli/reader"
	"github.com/pithecene-io/courier/cli/render"
	"github.com/pithecene-io/courier/cli/tui"
	"github.com/pithecene-io/courier/ledger"
)

// readTimeout bounds every ledger read issued by the stats commands.
const readTimeout = 30 * time.Second

// recentWarningThreshold is the row count above which an unlimited
// listing prints a hint on an interactive terminal.
const recentWarningThreshold = 500

// StatsCommand returns the stats command with subcommands. Stats reads the
// delivery ledger and never touches the spool directories.
func StatsCommand() *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Show delivery statistics from the ledger",
		Subcommands: []*cli.Command{
			statsDeliveriesCommand(),
			statsRecentCommand(),
			statsMetricsCommand(),
		},
	}
}

func statsDeliveriesCommand() *cli.Command {
	return &cli.Command{
		Name:  "deliveries",
		Usage: "Aggregate delivery outcomes",
		Flags: append(append(ReadOnlyFlags(), ledgerReadFlags()...),
			&cli.StringFlag{Name: "day", Usage: "Only records from this day (YYYY-MM-DD, UTC)"},
			&cli.IntFlag{Name: "recent", Usage: "Number of recent failures to include", Value: 10},
		),
		Action: statsDeliveriesAction,
	}
}

func statsDeliveriesAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(c.Context, readTimeout)
	defer cancel()

	ds, err := openLedger(ctx, c)
	if err != nil {
		return err
	}

	filter := ledger.Filter{Side: c.String("side"), Day: c.String("day")}
	stats, err := reader.DeliveryStats(ctx, ds, filter, c.Int("recent"))
	if err != nil {
		return fmt.Errorf("failed to read deliveries: %w", err)
	}

	if c.Bool("tui") {
		return r.RenderTUI(tui.ViewStatsDeliveries, &stats)
	}
	return r.Render(stats)
}

func statsRecentCommand() *cli.Command {
	return &cli.Command{
		Name:  "recent",
		Usage: "List the most recent deliveries",
		Flags: append(append(ReadOnlyFlags(), ledgerReadFlags()...),
			&cli.StringFlag{Name: "day", Usage: "Only records from this day (YYYY-MM-DD, UTC)"},
			&cli.StringFlag{Name: "outcome", Usage: "Only records with this outcome: sent, persisted, quarantined"},
			&cli.IntFlag{Name: "limit", Usage: "Maximum rows (0 = all)", Value: 20},
		),
		Action: statsRecentAction,
	}
}

func statsRecentAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for stats recent", 1)
	}

	ctx, cancel := context.WithTimeout(c.Context, readTimeout)
	defer cancel()

	ds, err := openLedger(ctx, c)
	if err != nil {
		return err
	}

	filter := ledger.Filter{
		Side:    c.String("side"),
		Day:     c.String("day"),
		Outcome: c.String("outcome"),
	}
	rows, err := reader.Deliveries(ctx, ds, filter, c.Int("limit"))
	if err != nil {
		return fmt.Errorf("failed to read deliveries: %w", err)
	}

	if len(rows) > recentWarningThreshold && c.Int("limit") == 0 && isStderrTTY() {
		fmt.Fprintf(os.Stderr, "Warning: returning %d rows. Consider using --limit to reduce output.\n\n", len(rows))
	}
	return r.Render(rows)
}

func statsMetricsCommand() *cli.Command {
	return &cli.Command{
		Name:   "metrics",
		Usage:  "Show the latest metrics snapshot written on shutdown",
		Flags:  append(ReadOnlyFlags(), ledgerReadFlags()...),
		Action: statsMetricsAction,
	}
}

func statsMetricsAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(c.Context, readTimeout)
	defer cancel()

	ds, err := openLedger(ctx, c)
	if err != nil {
		return err
	}

	snapshot, err := reader.LatestMetrics(ctx, ds, c.String("side"))
	if err != nil {
		return fmt.Errorf("failed to read metrics: %w", err)
	}

	if c.Bool("tui") {
		return r.RenderTUI(tui.ViewStatsMetrics, snapshot)
	}
	return r.Render(snapshot)
}

// openLedger locates the ledger from the config file and environment,
// overridden by the ledger flags. Relay settings are not validated here.
func openLedger(ctx context.Context, c *cli.Context) (lode.Dataset, error) {
	cfg, err := config.Resolve(c.String("config"), nil)
	if err != nil {
		return nil, configExit(err)
	}
	applyLedgerFlags(c, cfg)
	if cfg.Ledger.Path == "" {
		return nil, cli.Exit("no ledger configured: set ledger.path or --ledger-path", exitConfig)
	}

	ds, err := reader.Open(ctx, reader.Source{
		Dataset:   cfg.Ledger.Dataset,
		Backend:   cfg.Ledger.Backend,
		Path:      cfg.Ledger.Path,
		Region:    cfg.Ledger.Region,
		Endpoint:  cfg.Ledger.Endpoint,
		PathStyle: cfg.Ledger.S3PathStyle,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	return ds, nil
}

// isStderrTTY returns true if stderr is a TTY.
func isStderrTTY() bool {
	info, err := os.Stderr.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
