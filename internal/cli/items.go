// internal/cli/items.go
package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/menucollect/clipper/internal/output"
	"github.com/menucollect/clipper/internal/store"
	"github.com/menucollect/clipper/internal/ui"
)

var (
	itemsUnsynced bool
	exportFormat  string
	exportFile    string
)

// itemsCmd groups captured-item subcommands.
var itemsCmd = &cobra.Command{
	Use:   "items",
	Short: "Manage captured menu items",
	Long: `Lists, exports, syncs, and deletes the menu items captured into the
local database. Listing is scoped by the configured restaurant and
collection when they are set.`,
}

var itemsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List captured items",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a := GetApp()
		items, err := a.Store.ListItems(itemFilter())
		if err != nil {
			return err
		}
		if len(items) == 0 {
			fmt.Println(ui.Dim("No captured items."))
			return nil
		}
		for _, it := range items {
			status := ui.Dim("local")
			if it.RemoteID != "" {
				status = ui.Success("synced")
			}
			price := it.Price
			if price != "" && it.Currency != "" {
				price += " " + it.Currency
			}
			fmt.Printf("%4d  %-40s %-12s %s\n", it.ID, truncate(it.Title, 40), price, status)
		}
		fmt.Println(ui.Dim(fmt.Sprintf("\n%d item(s)", len(items))))
		return nil
	},
}

var itemsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export captured items as JSON, CSV, or Markdown",
	Example: `  # Print everything as JSON
  clipper items export

  # Write a spreadsheet-ready CSV
  clipper items export --format csv -o menu.csv

  # A human-readable menu document
  clipper items export --format markdown -o menu.md`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a := GetApp()
		format, err := output.ParseFormat(exportFormat)
		if err != nil {
			return err
		}
		items, err := a.Store.ListItems(itemFilter())
		if err != nil {
			return err
		}

		w := os.Stdout
		if exportFile != "" {
			f, err := os.Create(exportFile)
			if err != nil {
				return fmt.Errorf("create output file: %w", err)
			}
			defer f.Close()
			w = f
		}
		if err := output.Write(w, items, format); err != nil {
			return err
		}
		if exportFile != "" {
			fmt.Println(ui.Success(fmt.Sprintf("✓ %d item(s) written to %s", len(items), exportFile)))
		}
		return nil
	},
}

var itemsSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Push unsynced items to the collection backend",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a := GetApp()
		ctx := cmd.Context()

		client, err := a.RequireAPI()
		if err != nil {
			return err
		}
		scope := a.Scope()
		if !scope.Valid() {
			return fmt.Errorf("sync needs restaurant and collection IDs")
		}

		filter := itemFilter()
		filter.Unsynced = true
		items, err := a.Store.ListItems(filter)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			fmt.Println(ui.Dim("Everything is already synced."))
			return nil
		}

		var synced, failed int
		for _, it := range items {
			remoteID, err := client.CreateItem(ctx, scope, it)
			if err != nil {
				failed++
				log.Warn().Int64("id", it.ID).Str("title", it.Title).Err(err).Msg("Sync failed")
				continue
			}
			if err := a.Store.MarkSynced(it.ID, remoteID, time.Now()); err != nil {
				failed++
				log.Warn().Int64("id", it.ID).Err(err).Msg("Could not record sync state")
				continue
			}
			synced++
		}

		fmt.Println(ui.Success(fmt.Sprintf("✓ %d item(s) synced", synced)))
		if failed > 0 {
			return fmt.Errorf("%d item(s) failed to sync", failed)
		}
		return nil
	},
}

var itemsDeleteRemote bool

var itemsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a captured item",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a := GetApp()

		var id int64
		if _, err := fmt.Sscanf(args[0], "%d", &id); err != nil {
			return fmt.Errorf("invalid item id %q", args[0])
		}
		it, err := a.Store.GetItem(id)
		if err != nil {
			return err
		}

		if itemsDeleteRemote && it.RemoteID != "" {
			client, err := a.RequireAPI()
			if err != nil {
				return err
			}
			if err := client.DeleteItem(cmd.Context(), a.Scope(), it.RemoteID); err != nil {
				return fmt.Errorf("delete from backend: %w", err)
			}
		}
		if err := a.Store.DeleteItem(id); err != nil {
			return err
		}
		fmt.Println(ui.Success(fmt.Sprintf("✓ Deleted %q", it.Title)))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(itemsCmd)
	itemsCmd.AddCommand(itemsListCmd)
	itemsCmd.AddCommand(itemsExportCmd)
	itemsCmd.AddCommand(itemsSyncCmd)
	itemsCmd.AddCommand(itemsDeleteCmd)

	itemsListCmd.Flags().BoolVar(&itemsUnsynced, "unsynced", false, "Only items not yet pushed to the backend")
	itemsExportCmd.Flags().StringVarP(&exportFormat, "format", "f", "json", "Output format: json, csv, or markdown")
	itemsExportCmd.Flags().StringVarP(&exportFile, "output", "o", "", "Write to a file instead of stdout")
	itemsDeleteCmd.Flags().BoolVar(&itemsDeleteRemote, "remote", false, "Also delete the item from the backend")
}

// itemFilter scopes item queries to the configured restaurant/collection.
func itemFilter() store.ItemFilter {
	a := GetApp()
	return store.ItemFilter{
		RestaurantID: a.Config.RestaurantID,
		CollectionID: a.Config.CollectionID,
		SourceID:     a.Config.SourceID,
		Unsynced:     itemsUnsynced,
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
