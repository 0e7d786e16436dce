package cli

import (
	"context"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/menucollect/clipper/internal/app"
	"github.com/menucollect/clipper/internal/config"
)

var rootCmd = &cobra.Command{
	Use:     "clipper",
	Short:   "Capture menu items from restaurant pages by pointing and clicking",
	Long: `Clipper opens restaurant pages in a browser and lets you capture menu
item fields (title, description, price, image) by clicking on them.
Captured items are stored locally and synced to a collection backend.

Saved capture templates can be re-applied to similar pages without a
browser, extracting whole menus unattended.`,
	Version: "0.3.0",
}

// Execute runs the CLI. Called from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.BoolP("verbose", "v", false, "Enable debug logging")
	pf.Bool("json", false, "Log as JSON to stderr")
	pf.String("api-url", "", "Collection API base URL")
	pf.String("restaurant", "", "Restaurant ID for captured items")
	pf.String("collection", "", "Collection ID for captured items")
	pf.String("source", "", "Source ID tag for captured items")
	pf.String("db", "", "Path to the local database")
	pf.String("chrome", "", "Path to the Chrome/Chromium binary")
	pf.String("user-agent", "", "User agent for page fetches")
	pf.String("proxy", "", "Proxy server for browser and fetches")
	pf.String("timeout", "", "HTTP timeout (e.g. 45s)")

	rootCmd.CompletionOptions.DisableDefaultCmd = true

	// The application starts lazily so -h and completion stay instant.
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if GetApp() != nil {
			return nil
		}
		cfg, err := config.Load(cmd.Root())
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		a, err := app.New(ctx, cfg)
		if err != nil {
			return err
		}
		SetApp(cmd, a)
		return nil
	}

	rootCmd.PersistentPostRun = func(cmd *cobra.Command, args []string) {
		a := GetApp()
		if a == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = a.Close(ctx)
		SetApp(cmd, nil)
	}
}
