package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/addrverify/internal/config"
	"github.com/sells-group/addrverify/internal/ingest"
	"github.com/sells-group/addrverify/internal/monitoring"
	"github.com/sells-group/addrverify/internal/report"
)

var (
	runInput  string
	runOutDir string
	runLimit  int
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Verify every address in an input CSV",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		records, err := ingest.ReadFile(runInput, cfg.Pipeline.DefaultCountry)
		if err != nil {
			return eris.Wrap(err, "run: read input")
		}
		if runLimit > 0 && len(records) > runLimit {
			records = records[:runLimit]
		}

		runID := uuid.New().String()
		env, err := initPipeline(ctx, config.ModeRun, runID)
		if err != nil {
			return err
		}
		defer env.Close()

		start := time.Now()
		bundles := env.Orchestrator.Run(ctx, records)
		decisions := env.Engine.DecideAll(bundles)

		outDir := runOutDir
		if outDir == "" {
			outDir = cfg.Run.OutputDir
		}
		at := time.Now().UTC()
		if ts, ok, _ := cfg.AnchorTimestamp(); ok {
			at = ts
		}

		usage := env.Usage(cfg.Pricing)
		summary, err := report.WriteAll(outDir, report.Run{
			ID:         runID,
			At:         at,
			StaleYears: cfg.Pipeline.StaleYears,
			Records:    records,
			Bundles:    bundles,
			Decisions:  decisions,
			Usage:      &usage,
		})
		if err != nil {
			return eris.Wrap(err, "run: write artifacts")
		}

		zap.L().Info("run complete",
			zap.String("run_id", runID),
			zap.Int("records", summary.TotalRecords),
			zap.Int("review_queue", summary.ReviewQueueCount),
			zap.Any("final_flag_counts", summary.FinalFlagCounts),
			zap.Float64("estimated_cost_usd", usage.TotalUSD),
			zap.String("out_dir", outDir),
			zap.Duration("elapsed", time.Since(start)),
		)

		alerter := monitoring.NewAlerter(cfg.Monitoring)
		if alerts := alerter.Evaluate(summary); len(alerts) > 0 {
			for _, a := range alerts {
				zap.L().Warn("run alert", zap.String("type", string(a.Type)), zap.String("message", a.Message))
			}
			alerter.SendAlerts(context.WithoutCancel(ctx), alerts)
		}

		if ctx.Err() != nil {
			return eris.New("run: interrupted; unfinished stages were marked ABORTED")
		}
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&runInput, "input", "", "input CSV of addresses")
	runCmd.Flags().StringVar(&runOutDir, "out", "", "output directory (default from config)")
	runCmd.Flags().IntVar(&runLimit, "limit", 0, "process at most this many records (0 = all)")
	_ = runCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(runCmd)
}
