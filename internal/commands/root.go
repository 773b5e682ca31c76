package commands

import (
	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "pricefeed",
	Short: "Pool price candle and volume tracking service",
	Long: `pricefeed ingests on-chain pool prices and swap volume and maintains
multi-resolution OHLC candle series plus rolling volume aggregates,
queryable over HTTP and streamed over WebSocket.

Features:
• Ten parallel candle resolutions per pool (1m through 1M)
• Gap-free candle series with continuity repair and history backfill
• Rolling 24h/7d/30d volume windows from swap events
• Periodic snapshot persistence with best-effort recovery`,
	Version: "1.0.0",
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}
