// Package cmd is the twin command line: the HTTP server, catalog
// maintenance and local chat.
package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	configx "github.com/tanpawarit/Chative-Digital-Twin/pkg/config"
	logx "github.com/tanpawarit/Chative-Digital-Twin/pkg/logger"
)

var envFile string

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "twin",
		Short: "Business digital twin conversation service",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logCfg, err := loadConfig[logx.Config]("LOG")
			if err != nil {
				return err
			}
			// stdout carries chat output; logs go to stderr.
			logx.InitWriter(os.Stderr, *logCfg)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&envFile, "env", "", "env file to load (default ./.env when present)")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newMigrateCmd())
	cmd.AddCommand(newSeedCmd())
	cmd.AddCommand(newChatCmd())
	cmd.AddCommand(newCopyCmd())

	return cmd
}

// Execute runs the root command. SIGINT and SIGTERM cancel the command's
// context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return newRootCmd().ExecuteContext(ctx)
}

func loadConfig[T any](prefix string) (*T, error) {
	return configx.New[T](prefix, configx.WithEnvFile(envFile))
}
