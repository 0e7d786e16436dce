// internal/cli/pick.go
package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/menucollect/clipper/internal/api"
	"github.com/menucollect/clipper/internal/app"
	"github.com/menucollect/clipper/internal/browser"
	"github.com/menucollect/clipper/internal/dedupe"
	"github.com/menucollect/clipper/internal/guest"
	"github.com/menucollect/clipper/internal/session"
	"github.com/menucollect/clipper/internal/ui"
	"github.com/menucollect/clipper/pkg/models"
)

var pickNoSync bool

// pickCmd represents the pick command
var pickCmd = &cobra.Command{
	Use:   "pick <url>",
	Short: "Open a page and capture menu items by clicking on them",
	Long: `Opens the page in a visible browser window. Type a field name at the
prompt, then click the matching element on the page: its value is extracted,
stored locally, and synced to the collection backend when one is configured.

Menu items already in the collection are highlighted on the page so you can
see at a glance what has been captured before.

Prompt commands:
  title, description, price, currency, image
        arm selection for that field, then click the element
  t <field>
        capture the field's structural position for a reusable template
  save <name>
        save the captured template positions under <name>
  new   finish the current item and start the next one
  show  print the item drafted so far
  stop  cancel an armed selection
  done  finish up and close the browser`,
	Example: `  # Capture items from a menu page
  clipper pick https://luigis.example/menu

  # Capture locally only, without pushing to the backend
  clipper pick https://luigis.example/menu --no-sync`,
	Args: cobra.ExactArgs(1),
	RunE: runPick,
}

func init() {
	rootCmd.AddCommand(pickCmd)

	pickCmd.Flags().BoolVar(&pickNoSync, "no-sync", false, "Keep captured items local, do not push to the backend")
}

func runPick(cmd *cobra.Command, args []string) error {
	a := GetApp()
	url := args[0]
	ctx := cmd.Context()

	scope := a.Scope()
	syncing := !pickNoSync && a.API != nil && scope.Valid()
	if !pickNoSync && !syncing {
		fmt.Println(ui.Warn("Backend sync disabled: set api_base_url, restaurant, and collection to enable it."))
	}

	titles := seedTitles(ctx, a, scope)
	draft := newDraft(a)
	sink := &captureSink{app: a, scope: scope, sync: syncing}
	ctrl := session.New(draft, dedupe.NewTitleSet(titles), sink)

	sess, err := browser.NewSession(ctx, a.BrowserOptions(), func(evCtx context.Context, ev *models.Event) {
		reportEvent(ctrl, ev)
		if err := ctrl.HandleEvent(evCtx, ev); err != nil {
			fmt.Println(ui.Error("  " + err.Error()))
		}
	})
	if err != nil {
		return err
	}
	defer sess.Close()

	if err := sess.Navigate(ctx, url); err != nil {
		return err
	}
	if err := sess.Send(ctx, ctrl.SyncTitles(titles)); err != nil {
		log.Warn().Err(err).Msg("Could not push existing titles to the page")
	}

	fmt.Printf("\n%s\n", ui.Bold("Clipper capture session"))
	fmt.Printf("  %s %s\n", ui.Dim("Page:"), url)
	if len(titles) > 0 {
		fmt.Printf("  %s %d existing items highlighted\n", ui.Dim("Dedupe:"), len(titles))
	}
	fmt.Println(ui.Dim("  Type a field name and click the page. 'done' to finish.\n"))

	return promptLoop(ctx, a, sess, ctrl, sink)
}

// promptLoop reads operator commands from stdin until the session ends. The
// browser window closing counts as 'done'.
func promptLoop(ctx context.Context, a *app.Application, sess *browser.Session, ctrl *session.Controller, sink *captureSink) error {
	stop := make(chan struct{})
	defer close(stop)
	lines := readLines(os.Stdin, stop)

	fmt.Print(ui.Prompt("clipper> "))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-sess.Done():
			fmt.Println("\nBrowser closed, session finished.")
			finishDraft(ctrl, sink)
			return nil
		case line, ok := <-lines:
			if !ok {
				finishDraft(ctrl, sink)
				return nil
			}
			quit, err := dispatchPrompt(ctx, a, sess, ctrl, sink, strings.TrimSpace(line))
			if err != nil {
				fmt.Println(ui.Error(err.Error()))
			}
			if quit {
				finishDraft(ctrl, sink)
				return nil
			}
			fmt.Print(ui.Prompt("clipper> "))
		}
	}
}

// readLines streams lines from r until EOF or stop closes, so the reader
// goroutine does not outlive an abandoned prompt loop. The channel closes
// when the goroutine exits.
func readLines(r io.Reader, stop <-chan struct{}) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-stop:
				return
			}
		}
	}()
	return lines
}

func dispatchPrompt(ctx context.Context, a *app.Application, sess *browser.Session, ctrl *session.Controller, sink *captureSink, line string) (quit bool, err error) {
	if line == "" {
		return false, nil
	}
	verb, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	switch strings.ToLower(verb) {
	case "done", "quit", "exit":
		return true, nil

	case "stop":
		cmd, _ := ctrl.Disarm()
		return false, sess.Send(ctx, cmd)

	case "show":
		printDraft(ctrl.Draft())
		return false, nil

	case "new":
		d := ctrl.Draft()
		if d.Title == "" {
			fmt.Println(ui.Warn("Current item has no title yet; nothing to finish."))
			return false, nil
		}
		cmd := ctrl.NewDraft(newDraft(a))
		sink.reset()
		fmt.Println(ui.Success(fmt.Sprintf("✓ Finished %q, starting next item", d.Title)))
		return false, sess.Send(ctx, cmd)

	case "t", "template":
		field := models.Field(rest)
		cmd, err := ctrl.ArmTemplate(field)
		if err != nil {
			return false, err
		}
		fmt.Printf("Click the %s element to record its position...\n", field)
		return false, sess.Send(ctx, cmd)

	case "save":
		if rest == "" {
			return false, fmt.Errorf("usage: save <template-name>")
		}
		return false, saveTemplate(ctx, a, sess, ctrl, rest)

	case "clear":
		return false, sess.Send(ctx, guest.ClearAllHighlights())

	default:
		field := models.Field(strings.ToLower(verb))
		cmd, err := ctrl.Arm(field)
		if err != nil {
			return false, fmt.Errorf("unknown command %q (fields: title, description, price, currency, image)", verb)
		}
		fmt.Printf("Click the %s on the page (Esc to cancel)...\n", field)
		return false, sess.Send(ctx, cmd)
	}
}

func saveTemplate(ctx context.Context, a *app.Application, sess *browser.Session, ctrl *session.Controller, name string) error {
	mappings := ctrl.Mappings()
	if len(mappings) == 0 {
		return fmt.Errorf("no template fields captured yet, use 't <field>' first")
	}
	sourceURL, err := sess.Location(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Could not read page location for template")
	}
	tpl := &models.Template{Name: name, SourceURL: sourceURL, Fields: mappings}
	if err := a.Store.SaveTemplate(tpl); err != nil {
		return fmt.Errorf("save template: %w", err)
	}
	fmt.Println(ui.Success(fmt.Sprintf("✓ Template %q saved with %d fields", name, len(mappings))))
	return sess.Send(ctx, guest.ClearTemplateHighlights())
}

// finishDraft flushes the last in-progress item's title into the dedupe set
// so a follow-up run sees it. Persistence already happened on capture.
func finishDraft(ctrl *session.Controller, sink *captureSink) {
	d := ctrl.Draft()
	if d.Title != "" {
		ctrl.Titles().Add(d.Title)
	}
	if n := sink.count(); n > 0 {
		fmt.Println(ui.Success(fmt.Sprintf("✓ %d item(s) captured this session", n)))
	}
}

// reportEvent prints operator feedback for a guest event before the
// controller folds it in.
func reportEvent(ctrl *session.Controller, ev *models.Event) {
	if ev == nil {
		return
	}
	switch ev.Type {
	case models.EventDataExtracted:
		for _, f := range models.Fields {
			raw, ok := ev.Payload[string(f)]
			if !ok {
				continue
			}
			value, _ := raw.(string)
			fmt.Printf("\n%s\n", ui.Success(fmt.Sprintf("✓ %s: %s", f, preview(value))))
			if f == models.FieldTitle && ctrl.Titles().Contains(value) {
				fmt.Println(ui.Warn("  Heads up: an item with this title is already in the collection."))
			}
			break
		}
	case models.EventDataDeselected:
		fmt.Printf("\n%s\n", ui.Warn("✗ "+guest.PayloadString(ev, "field")+" deselected"))
	case models.EventSelectionCancelled:
		fmt.Printf("\n%s\n", ui.Dim("Selection cancelled"))
	case models.EventTemplateFieldSelected:
		fmt.Printf("\n%s\n", ui.Success("✓ Template position recorded for "+guest.PayloadString(ev, "field")))
	}
	fmt.Print(ui.Prompt("clipper> "))
}

func printDraft(d models.Item) {
	fmt.Printf("\n%s\n", ui.Bold("Current item"))
	for _, f := range models.Fields {
		v := d.GetField(f)
		if v == "" {
			v = ui.Dim("(not captured)")
		} else {
			v = preview(v)
		}
		fmt.Printf("  %-12s %s\n", string(f)+":", v)
	}
	fmt.Println()
}

func preview(s string) string {
	return truncate(strings.Join(strings.Fields(s), " "), 80)
}

func newDraft(a *app.Application) *models.Item {
	return &models.Item{
		RestaurantID: a.Config.RestaurantID,
		CollectionID: a.Config.CollectionID,
		SourceID:     a.Config.SourceID,
	}
}

// seedTitles loads existing item titles for duplicate detection, preferring
// the backend's view and falling back to the local store.
func seedTitles(ctx context.Context, a *app.Application, scope api.Scope) []string {
	if a.API != nil && scope.Valid() {
		titles, err := a.API.ListTitles(ctx, scope)
		if err == nil {
			return titles
		}
		log.Warn().Err(err).Msg("Could not list backend titles, falling back to local store")
	}
	titles, err := a.Store.Titles(a.Config.RestaurantID, a.Config.CollectionID)
	if err != nil {
		log.Warn().Err(err).Msg("Could not list local titles")
		return nil
	}
	return titles
}

// captureSink persists capture effects. It tracks the local row and backend
// ID of the item currently being drafted so repeated captures update in
// place instead of inserting duplicates.
type captureSink struct {
	app   *app.Application
	scope api.Scope
	sync  bool

	mu       sync.Mutex
	itemID   int64
	remoteID string
	items    int
}

func (s *captureSink) reset() {
	s.mu.Lock()
	s.itemID = 0
	s.remoteID = ""
	s.mu.Unlock()
}

func (s *captureSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.items
}

func (s *captureSink) ItemCaptured(ctx context.Context, item *models.Item, changed []models.Field) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item.ID = s.itemID
	if err := s.app.Store.SaveItem(item); err != nil {
		return err
	}
	if s.itemID == 0 {
		s.items++
	}
	s.itemID = item.ID

	if !s.sync {
		return nil
	}
	// Sync failures leave the item local and unsynced; 'clipper items sync'
	// can retry later.
	if s.remoteID == "" {
		remoteID, err := s.app.API.CreateItem(ctx, s.scope, item)
		if err != nil {
			log.Warn().Err(err).Msg("Backend create failed, item kept local")
			return nil
		}
		s.remoteID = remoteID
	} else if err := s.app.API.UpdateItem(ctx, s.scope, s.remoteID, item, changed); err != nil {
		log.Warn().Err(err).Msg("Backend update failed, item kept local")
		return nil
	}
	if err := s.app.Store.MarkSynced(item.ID, s.remoteID, time.Now()); err != nil {
		log.Warn().Err(err).Msg("Could not record sync state")
	}
	return nil
}

func (s *captureSink) FieldCleared(ctx context.Context, item *models.Item, field models.Field) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.itemID == 0 {
		return nil
	}
	item.ID = s.itemID
	if err := s.app.Store.SaveItem(item); err != nil {
		return err
	}
	if s.sync && s.remoteID != "" {
		if err := s.app.API.UpdateItem(ctx, s.scope, s.remoteID, item, []models.Field{field}); err != nil {
			log.Warn().Err(err).Msg("Backend update failed after deselect")
		}
	}
	return nil
}

func (s *captureSink) TemplateFieldCaptured(context.Context, models.FieldMapping) error {
	// Template mappings live in the controller until the operator saves
	// them under a name.
	return nil
}
