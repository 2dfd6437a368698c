package main

import (
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/addrverify/internal/config"
	"github.com/sells-group/addrverify/internal/report"
	"github.com/sells-group/addrverify/internal/review"
)

var (
	consolidateDir   string
	consolidateLog   string
	consolidateWatch bool
)

var consolidateCmd = &cobra.Command{
	Use:   "consolidate",
	Short: "Apply a completed review log as overriding decisions",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate(config.ModeConsolidate); err != nil {
			return err
		}
		opts := consolidateOptions()

		if !consolidateWatch {
			res, err := review.Consolidate(opts)
			if err != nil {
				return err
			}
			logConsolidation(res)
			return nil
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		w := review.NewWatcher(opts, review.DefaultDebounce, func(res review.Result, err error) {
			if err != nil {
				zap.L().Error("consolidation failed", zap.Error(err))
				return
			}
			logConsolidation(res)
		})
		zap.L().Info("watching review log", zap.String("path", opts.LogPath))
		if err := w.Run(ctx); err != nil {
			return eris.Wrap(err, "consolidate: watch")
		}
		return nil
	},
}

func consolidateOptions() review.Options {
	dir := consolidateDir
	if dir == "" {
		dir = cfg.Run.OutputDir
	}
	logPath := consolidateLog
	if logPath == "" {
		logPath = filepath.Join(dir, report.ReviewLogTemplate)
	}
	return review.Options{Dir: dir, LogPath: logPath}
}

func logConsolidation(res review.Result) {
	zap.L().Info("consolidation complete",
		zap.Int("applied", res.Applied),
		zap.Int("already_applied", res.AlreadyApplied),
		zap.Int("pending", res.Pending),
		zap.Int("unknown_input_ids", res.Unknown),
		zap.Int("invalid_decisions", res.Invalid),
		zap.Any("final_flag_counts", res.FinalFlagCounts),
	)
}

func init() {
	consolidateCmd.Flags().StringVar(&consolidateDir, "dir", "", "run output directory (default from config)")
	consolidateCmd.Flags().StringVar(&consolidateLog, "log", "", "completed review log, .csv or .xlsx (default <dir>/review_log_template.csv)")
	consolidateCmd.Flags().BoolVar(&consolidateWatch, "watch", false, "re-run whenever the review log changes")
	rootCmd.AddCommand(consolidateCmd)
}
