// Package cmd defines the catalog CLI.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/gel-catalog/internal/app"
	"github.com/JakeFAU/gel-catalog/internal/config"
)

type appKeyType string

const appKey appKeyType = "app"

// newApp is the application factory; tests replace it.
var newApp = func(cfgFile string) (*app.App, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	return app.New(cfg)
}

func newRootCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Scrapes the gel polish collection into a JSON catalog with masked thumbnails.",
		Long: `catalog fetches the collection grid and every product page, downloads the
carousel images, clears the white studio background from each thumbnail and
writes the product list as JSON.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := newApp(cfgFile)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML, TOML or JSON); CATALOG_* env vars override it")

	cmd.AddCommand(newScrapeCmd())
	cmd.AddCommand(newMaskCmd())

	return cmd
}

// resolveApp returns the services built in PersistentPreRunE. Callers defer
// Close themselves: cobra skips post-run hooks when RunE fails.
func resolveApp(ctx context.Context) (*app.App, error) {
	appInstance, ok := ctx.Value(appKey).(*app.App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
