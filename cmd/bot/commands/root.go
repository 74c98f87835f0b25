package commands

import (
	"github.com/spf13/cobra"

	"github.com/maaaruch/tg-award-bot/internal/config"
	"github.com/maaaruch/tg-award-bot/internal/logging"
)

var (
	envFile string
	cfg     config.Config
)

func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "bot",
		Short:        "Telegram award nominations bot",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.LoadDotEnv(envFile); err != nil {
				return err
			}
			c, err := config.Load()
			if err != nil {
				return err
			}
			cfg = c
			logging.Setup(cfg.LogLevel, cfg.LogPretty)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading the environment")

	root.AddCommand(runCmd(), nominationsCmd())
	return root
}
