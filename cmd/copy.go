package cmd

import (
	"encoding/json"
	"strings"

	"github.com/spf13/cobra"

	structuredx "github.com/tanpawarit/Chative-Digital-Twin/agent/structured"
)

func newCopyCmd() *cobra.Command {
	var (
		business   string
		schemaName string
	)

	cmd := &cobra.Command{
		Use:   "copy <brief>",
		Short: "Generate schema-checked marketing copy for a business",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			bundle, err := a.assembler.Assemble(ctx, business)
			if err != nil {
				return err
			}
			gen, err := a.copywriter(ctx)
			if err != nil {
				return err
			}

			result, err := gen.Generate(ctx, schemaName, structuredx.BusinessBrief(bundle, strings.Join(args, " ")))
			if err != nil {
				return err
			}

			typed, err := typedCopy(schemaName, result)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			enc.SetEscapeHTML(false)
			return enc.Encode(typed)
		},
	}

	cmd.Flags().StringVar(&business, "business", "", "business id or slug")
	cmd.Flags().StringVar(&schemaName, "schema", "marketing_copy", "output schema name")
	_ = cmd.MarkFlagRequired("business")
	return cmd
}

// typedCopy decodes a validated result into its Go type so the printed
// fields follow a fixed order. Schemas without a Go type print as-is.
func typedCopy(schemaName string, result map[string]any) (any, error) {
	var out any
	switch schemaName {
	case structuredx.SchemaMarketingCopy:
		out = &structuredx.MarketingCopy{}
	case structuredx.SchemaBusinessSummary:
		out = &structuredx.BusinessSummary{}
	default:
		return result, nil
	}
	if err := structuredx.Decode(result, out); err != nil {
		return nil, err
	}
	return out, nil
}
