package cmd

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tanpawarit/Chative-Digital-Twin/agent/httpapi"
	metricsx "github.com/tanpawarit/Chative-Digital-Twin/pkg/metrics"
)

func newServeCmd() *cobra.Command {
	var (
		addr     string
		migrate  bool
		withCopy bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			httpCfg, err := loadConfig[httpapi.Config]("HTTP")
			if err != nil {
				return err
			}
			if addr != "" {
				httpCfg.Addr = addr
			}

			metrics := metricsx.New()
			a, err := newApp(ctx, metrics)
			if err != nil {
				return err
			}
			defer a.Close()

			if migrate {
				if err := a.store.Migrate(ctx); err != nil {
					return err
				}
			}

			opts := []httpapi.Option{httpapi.WithMetrics(metrics)}
			if withCopy {
				gen, err := a.copywriter(ctx)
				if err != nil {
					return err
				}
				opts = append(opts, httpapi.WithCopywriter(gen, a.assembler))
			}

			srv, err := httpapi.NewServer(*httpCfg, a.turns, opts...)
			if err != nil {
				return err
			}

			log.Info().
				Dur("turn_timeout", a.turnCfg.TurnTimeout).
				Int("max_steps", a.turnCfg.MaxSteps).
				Msg("starting twin server")
			return srv.ListenAndServe(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides HTTP_ADDR)")
	cmd.Flags().BoolVar(&migrate, "migrate", false, "create missing tables before serving")
	cmd.Flags().BoolVar(&withCopy, "copy", true, "enable the structured copy endpoint")
	return cmd
}
