package cmd

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/polyarb/polyarb/cmd/bot"
	"github.com/polyarb/polyarb/config"
	"github.com/polyarb/polyarb/utils"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the arbitrage engine",
	Run: func(cmd *cobra.Command, args []string) {
		log := utils.GetLogger()

		if err := config.LoadEnv(); err != nil {
			log.Debug("no .env file loaded", zap.Error(err))
		}

		cfg, err := config.LoadConfig(cfgFile)
		if err != nil {
			log.Fatal("Failed to load config", zap.Error(err))
		}
		cfg.Logger = log

		secure, err := config.LoadSecureConfig()
		if err != nil {
			log.Fatal("Failed to load secrets", zap.Error(err))
		}

		b, err := bot.New(cfg, secure, log)
		if err != nil {
			log.Fatal("Failed to create engine", zap.Error(err))
		}

		ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		if err := b.Start(ctx); err != nil {
			log.Fatal("Failed to start engine", zap.Error(err))
		}

		<-ctx.Done()
		log.Info("Shutting down gracefully...")
		b.Stop()
	},
}

func init() {
	rootCmd.AddCommand(startCmd)
}
