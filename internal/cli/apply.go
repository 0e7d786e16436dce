// internal/cli/apply.go
package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/menucollect/clipper/internal/api"
	"github.com/menucollect/clipper/internal/app"
	"github.com/menucollect/clipper/internal/dedupe"
	"github.com/menucollect/clipper/internal/fetch"
	"github.com/menucollect/clipper/internal/template"
	"github.com/menucollect/clipper/internal/ui"
	"github.com/menucollect/clipper/internal/utils/headers"
	"github.com/menucollect/clipper/pkg/models"
)

var (
	applyRender     bool
	applySettle     string
	applySingle     bool
	applyDryRun     bool
	applyKeepDupes  bool
	applySyncItems  bool
	applyHeaderList []string
)

// applyCmd represents the apply command
var applyCmd = &cobra.Command{
	Use:   "apply <template> <url>...",
	Short: "Re-extract items from pages using a saved template",
	Long: `Applies a saved capture template to one or more pages without opening a
browser window. Each field's saved position is located on the page (by
selector, by path, then by structural position) and the whole item grid is
expanded when the page repeats the captured layout.

Extracted items are stored locally; pass --sync to push them to the
collection backend as well. Items whose title already exists in the
collection are skipped unless --keep-duplicates is given.`,
	Example: `  # Extract a whole menu from a page similar to the captured one
  clipper apply luigis-menu https://luigis.example/menu

  # JavaScript-heavy page: render it in headless Chrome first
  clipper apply luigis-menu https://luigis.example/menu --render

  # See what would be extracted without storing anything
  clipper apply luigis-menu https://luigis.example/menu --dry-run`,
	Args: cobra.MinimumNArgs(2),
	RunE: runApply,
}

func init() {
	rootCmd.AddCommand(applyCmd)

	applyCmd.Flags().BoolVar(&applyRender, "render", false, "Render pages in headless Chrome before extracting")
	applyCmd.Flags().StringVar(&applySettle, "settle", "", "Extra wait after load when rendering (e.g. 2s)")
	applyCmd.Flags().BoolVar(&applySingle, "single", false, "Extract one item per page instead of expanding the card grid")
	applyCmd.Flags().BoolVar(&applyDryRun, "dry-run", false, "Report what would be extracted without storing")
	applyCmd.Flags().BoolVar(&applyKeepDupes, "keep-duplicates", false, "Store items even when the title already exists")
	applyCmd.Flags().BoolVar(&applySyncItems, "sync", false, "Push extracted items to the collection backend")
	applyCmd.Flags().StringArrayVarP(&applyHeaderList, "header", "H", nil, "Extra request header (e.g. -H \"Accept-Language: fr\")")
}

func runApply(cmd *cobra.Command, args []string) error {
	a := GetApp()
	ctx := cmd.Context()
	name, urls := args[0], args[1:]

	tpl, err := a.Store.GetTemplate(name)
	if err != nil {
		return fmt.Errorf("load template %q: %w", name, err)
	}

	opts, err := applyFetchOptions()
	if err != nil {
		return err
	}

	scope := a.Scope()
	if applySyncItems {
		if _, err := a.RequireAPI(); err != nil {
			return err
		}
		if !scope.Valid() {
			return fmt.Errorf("--sync needs restaurant and collection IDs")
		}
	}

	titles := dedupe.NewTitleSet(seedTitles(ctx, a, scope))

	bar := progressbar.NewOptions(len(urls),
		progressbar.OptionSetDescription("Extracting"),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)

	var stored, skipped, failed int
	for _, url := range urls {
		results, err := applyOne(ctx, a, tpl, url, opts, titles)
		if err != nil {
			failed++
			log.Error().Str("url", url).Err(err).Msg("Extraction failed")
			bar.Add(1)
			continue
		}
		for _, r := range results {
			if r.Duplicate && !applyKeepDupes {
				skipped++
				log.Debug().Str("title", r.Item.Title).Msg("Skipping duplicate")
				continue
			}
			if applyDryRun {
				stored++
				continue
			}
			if err := storeResult(ctx, a, scope, r.Item); err != nil {
				failed++
				log.Error().Str("title", r.Item.Title).Err(err).Msg("Could not store item")
				continue
			}
			titles.Add(r.Item.Title)
			stored++
		}
		bar.Add(1)
	}
	bar.Finish()

	verb := "stored"
	if applyDryRun {
		verb = "would store"
	}
	fmt.Printf("%s\n", ui.Success(fmt.Sprintf("✓ %s %d item(s) from %d page(s)", verb, stored, len(urls))))
	if skipped > 0 {
		fmt.Printf("%s\n", ui.Dim(fmt.Sprintf("  %d duplicate(s) skipped", skipped)))
	}
	if failed > 0 {
		return fmt.Errorf("%d page(s) or item(s) failed", failed)
	}
	return nil
}

func applyOne(ctx context.Context, a *app.Application, tpl *models.Template, url string, opts fetch.Options, titles *dedupe.TitleSet) ([]*template.Result, error) {
	_, doc, err := a.Fetcher.Fetch(ctx, url, opts)
	if err != nil {
		return nil, err
	}
	if applySingle {
		res, err := template.Apply(doc, tpl, url, titles)
		if err != nil {
			return nil, err
		}
		return []*template.Result{res}, nil
	}
	return template.ApplyAll(doc, tpl, url, titles)
}

func storeResult(ctx context.Context, a *app.Application, scope api.Scope, item *models.Item) error {
	item.RestaurantID = a.Config.RestaurantID
	item.CollectionID = a.Config.CollectionID
	item.SourceID = a.Config.SourceID
	if item.CapturedAt.IsZero() {
		item.CapturedAt = time.Now()
	}
	if err := a.Store.SaveItem(item); err != nil {
		return err
	}
	if !applySyncItems {
		return nil
	}
	remoteID, err := a.API.CreateItem(ctx, scope, item)
	if err != nil {
		// Kept local and unsynced; 'clipper items sync' can retry.
		log.Warn().Str("title", item.Title).Err(err).Msg("Backend create failed")
		return nil
	}
	return a.Store.MarkSynced(item.ID, remoteID, time.Now())
}

func applyFetchOptions() (fetch.Options, error) {
	opts := fetch.Options{Render: applyRender}
	if applySettle != "" {
		d, err := time.ParseDuration(applySettle)
		if err != nil {
			return opts, fmt.Errorf("invalid --settle: %w", err)
		}
		opts.Settle = d
	}
	if len(applyHeaderList) > 0 {
		opts.Headers = headers.Parse(applyHeaderList)
	}
	return opts, nil
}
