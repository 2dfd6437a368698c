package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/addrverify/internal/config"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and maintain the signal cache",
}

var cachePurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete expired cache entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate(config.ModeCache); err != nil {
			return err
		}
		ctx := cmd.Context()
		c, err := initCache(ctx, cfg)
		if err != nil {
			return err
		}
		defer c.Close() //nolint:errcheck

		n, err := c.Purge(ctx)
		if err != nil {
			return err
		}
		zap.L().Info("cache purged", zap.Int("removed", n))
		fmt.Fprintf(cmd.OutOrStdout(), "removed %d expired entries\n", n)
		return nil
	},
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show live and expired entry counts per provider field",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate(config.ModeCache); err != nil {
			return err
		}
		ctx := cmd.Context()
		c, err := initCache(ctx, cfg)
		if err != nil {
			return err
		}
		defer c.Close() //nolint:errcheck

		stats, err := c.Stats(ctx)
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "PROVIDER\tFIELD\tLIVE\tEXPIRED")
		for _, s := range stats {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%d\n", s.Provider, s.Field, s.Live, s.Expired)
		}
		return tw.Flush()
	},
}

func init() {
	cacheCmd.AddCommand(cachePurgeCmd, cacheStatsCmd)
	rootCmd.AddCommand(cacheCmd)
}
