package cmd

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	storex "github.com/tanpawarit/Chative-Digital-Twin/agent/store"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the catalog tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			if err := st.Migrate(ctx); err != nil {
				return err
			}
			log.Info().Msg("catalog tables ready")
			return nil
		},
	}
}

func newSeedCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load businesses, personas, products and offers from a YAML fixture",
		RunE: func(cmd *cobra.Command, args []string) error {
			fixture, err := loadFixture(file)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			st, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			if err := st.Migrate(ctx); err != nil {
				return err
			}
			if err := st.Seed(ctx, fixture); err != nil {
				return err
			}
			log.Info().
				Int("businesses", len(fixture.Businesses)).
				Str("file", file).
				Msg("catalog seeded")
			return nil
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "fixture file (default: bundled demo catalog)")
	return cmd
}

func loadFixture(path string) (storex.Fixture, error) {
	if path == "" {
		return storex.DemoFixture()
	}
	return storex.ParseFixtureFile(path)
}
