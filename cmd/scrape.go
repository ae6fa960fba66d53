package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newScrapeCmd() *cobra.Command {
	var maxProducts int

	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Scrape the collection and write the catalog",
		Long: `Fetches the collection page, then each product page in turn, downloads the
slide images and masks the thumbnail. Failures on a single product are
logged and the run continues; a failed collection fetch aborts it.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			defer appInstance.Close()
			if cmd.Flags().Changed("max-products") {
				appInstance.SetMaxProducts(maxProducts)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			p, err := appInstance.Pipeline(ctx)
			if err != nil {
				return fmt.Errorf("build pipeline: %w", err)
			}
			defer appInstance.WriteMetrics()

			result, stats, err := p.Run(ctx)
			if err != nil {
				return fmt.Errorf("scrape: %w", err)
			}
			appInstance.Logger().Info("Catalog written",
				zap.String("run_id", result.RunID),
				zap.Int("products", stats.Products),
			)
			fmt.Fprintf(cmd.OutOrStdout(), "run %s: %d products, %d thumbnails masked, %d skipped, %d errors\n",
				result.RunID, stats.Products, stats.MasksApplied, stats.MasksSkipped, stats.MaskErrors)
			return nil
		},
	}

	cmd.Flags().IntVar(&maxProducts, "max-products", 0, "stop after this many products (0 = all)")
	return cmd
}
