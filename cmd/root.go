package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/polyarb/polyarb/utils"
)

var (
	cfgFile string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "polyarb",
	Short: "A flash-loan arbitrage engine for Polygon",
	Long: `polyarb scans configured DEX cycles for cross-venue price
discrepancies and executes profitable ones atomically through a flash-loan
settlement contract.`,
}

func Execute() error {
	return rootCmd.Execute()
}

func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.polyarb.json)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}

func initConfig() {
	utils.InitLogger(debug)
}
