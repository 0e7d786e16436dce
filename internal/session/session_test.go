package session

import (
	"context"
	"testing"

	"github.com/menucollect/clipper/internal/guest"
	"github.com/menucollect/clipper/pkg/models"
)

type recordingSink struct {
	captured   []models.Item
	changed    [][]models.Field
	cleared    []models.Field
	tplFields  []models.FieldMapping
	capturedFn func(item *models.Item) error
}

func (s *recordingSink) ItemCaptured(_ context.Context, item *models.Item, changed []models.Field) error {
	if s.capturedFn != nil {
		if err := s.capturedFn(item); err != nil {
			return err
		}
	}
	s.captured = append(s.captured, *item)
	s.changed = append(s.changed, changed)
	return nil
}

func (s *recordingSink) FieldCleared(_ context.Context, _ *models.Item, field models.Field) error {
	s.cleared = append(s.cleared, field)
	return nil
}

func (s *recordingSink) TemplateFieldCaptured(_ context.Context, m models.FieldMapping) error {
	s.tplFields = append(s.tplFields, m)
	return nil
}

func event(t *testing.T, line string) *models.Event {
	t.Helper()
	ev, ok, err := guest.ParseEvent(line)
	if err != nil || !ok {
		t.Fatalf("ParseEvent(%q) = %v, %v, %v", line, ev, ok, err)
	}
	return ev
}

func TestArmAndDisarm(t *testing.T) {
	c := New(nil, nil, nil)
	if c.Mode() != Idle {
		t.Fatalf("new controller mode = %v, want Idle", c.Mode())
	}

	cmd, err := c.Arm(models.FieldTitle)
	if err != nil {
		t.Fatalf("Arm: %v", err)
	}
	if cmd.Command != models.CmdStartSelection || cmd.Field != "title" {
		t.Errorf("Arm command = %+v", cmd)
	}
	if c.Mode() != Selecting || c.CurrentField() != models.FieldTitle {
		t.Errorf("after Arm: mode=%v field=%q", c.Mode(), c.CurrentField())
	}

	if _, wasArmed := c.Disarm(); !wasArmed {
		t.Error("Disarm while armed reported not armed")
	}
	if c.Mode() != Idle || c.CurrentField() != "" {
		t.Errorf("after Disarm: mode=%v field=%q", c.Mode(), c.CurrentField())
	}

	// Teardown is idempotent.
	cmd, wasArmed := c.Disarm()
	if wasArmed {
		t.Error("second Disarm reported armed")
	}
	if cmd.Command != models.CmdStopSelection {
		t.Errorf("Disarm command = %q, want %q", cmd.Command, models.CmdStopSelection)
	}
}

func TestArmRejectsUnknownField(t *testing.T) {
	c := New(nil, nil, nil)
	if _, err := c.Arm(models.Field("rating")); err == nil {
		t.Error("Arm accepted unknown field")
	}
	if _, err := c.ArmTemplate(models.Field("rating")); err == nil {
		t.Error("ArmTemplate accepted unknown field")
	}
}

func TestExtractedEventUpdatesDraft(t *testing.T) {
	sink := &recordingSink{}
	c := New(nil, nil, sink)
	ctx := context.Background()

	if _, err := c.Arm(models.FieldPrice); err != nil {
		t.Fatalf("Arm: %v", err)
	}
	ev := event(t, `EXTRACT:{"type":"data-extracted","payload":{"price":"12.99","currency":"$","url":"https://menu.example/page","timestamp":"2026-08-30T10:00:00Z"}}`)
	if err := c.HandleEvent(ctx, ev); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}

	draft := c.Draft()
	if draft.Price != "12.99" || draft.Currency != "$" {
		t.Errorf("draft = %+v, want price 12.99 currency $", draft)
	}
	if draft.PageURL != "https://menu.example/page" {
		t.Errorf("PageURL = %q", draft.PageURL)
	}
	if c.Mode() != Idle {
		t.Errorf("mode after capture = %v, want Idle", c.Mode())
	}
	if got := c.Owners()[models.FieldPrice]; got != "12.99" {
		t.Errorf("price owner = %q", got)
	}

	if len(sink.captured) != 1 {
		t.Fatalf("sink captured %d items, want 1", len(sink.captured))
	}
	if got := sink.changed[0]; len(got) != 2 || got[0] != models.FieldPrice || got[1] != models.FieldCurrency {
		t.Errorf("changed fields = %v", got)
	}
}

func TestDeselectRoundTrip(t *testing.T) {
	sink := &recordingSink{}
	c := New(nil, nil, sink)
	ctx := context.Background()

	c.Arm(models.FieldTitle)
	if err := c.HandleEvent(ctx, event(t, `EXTRACT:{"type":"data-extracted","payload":{"title":"Caesar Salad"}}`)); err != nil {
		t.Fatalf("extract: %v", err)
	}
	if c.Draft().Title != "Caesar Salad" {
		t.Fatalf("title = %q", c.Draft().Title)
	}

	if err := c.HandleEvent(ctx, event(t, `EXTRACT:{"type":"data-deselected","payload":{"field":"title"}}`)); err != nil {
		t.Fatalf("deselect: %v", err)
	}
	if c.Draft().Title != "" {
		t.Errorf("title after deselect = %q, want empty", c.Draft().Title)
	}
	if _, owned := c.Owners()[models.FieldTitle]; owned {
		t.Error("title still owned after deselect")
	}
	if len(sink.cleared) != 1 || sink.cleared[0] != models.FieldTitle {
		t.Errorf("sink cleared = %v", sink.cleared)
	}
}

func TestRecaptureReplacesOwner(t *testing.T) {
	c := New(nil, nil, nil)
	ctx := context.Background()

	c.Arm(models.FieldTitle)
	c.HandleEvent(ctx, event(t, `EXTRACT:{"type":"data-extracted","payload":{"title":"Old Name"}}`))
	c.Arm(models.FieldTitle)
	c.HandleEvent(ctx, event(t, `EXTRACT:{"type":"data-extracted","payload":{"title":"New Name"}}`))

	if got := c.Draft().Title; got != "New Name" {
		t.Errorf("title = %q, want New Name", got)
	}
	if got := c.Owners()[models.FieldTitle]; got != "New Name" {
		t.Errorf("owner value = %q", got)
	}
	if len(c.Owners()) != 1 {
		t.Errorf("owners = %v, want a single title entry", c.Owners())
	}
}

func TestCancelledReturnsToIdle(t *testing.T) {
	c := New(nil, nil, nil)
	c.Arm(models.FieldDescription)
	if err := c.HandleEvent(context.Background(), event(t, `EXTRACT:{"type":"selection-cancelled","payload":{"field":"description"}}`)); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	if c.Mode() != Idle {
		t.Errorf("mode = %v, want Idle", c.Mode())
	}
	if c.Draft().Description != "" {
		t.Errorf("cancel must not write the draft, got %q", c.Draft().Description)
	}
}

func TestTemplateFieldCapture(t *testing.T) {
	sink := &recordingSink{}
	c := New(nil, nil, sink)
	ctx := context.Background()

	c.ArmTemplate(models.FieldTitle)
	c.HandleEvent(ctx, event(t, `EXTRACT:{"type":"template-field-selected","payload":{"field":"title","mapping":{"field":"title","selector":"h3.name","xpath":"/html/body/div/h3","tagName":"h3","className":"name","parentSelector":"div.card","relativePosition":0,"sampleValue":"Caesar Salad"}}}`))
	c.ArmTemplate(models.FieldPrice)
	c.HandleEvent(ctx, event(t, `EXTRACT:{"type":"template-field-selected","payload":{"field":"price","mapping":{"field":"price","selector":"span.amount","xpath":"/html/body/div/span","tagName":"span","className":"amount","parentSelector":"div.card","relativePosition":1,"sampleValue":"$12.99"}}}`))

	got := c.Mappings()
	if len(got) != 2 {
		t.Fatalf("mappings = %d, want 2", len(got))
	}
	if got[0].Field != models.FieldTitle || got[0].Selector != "h3.name" {
		t.Errorf("first mapping = %+v", got[0])
	}
	if got[1].Field != models.FieldPrice || got[1].RelativePosition != 1 {
		t.Errorf("second mapping = %+v", got[1])
	}
	if len(sink.tplFields) != 2 {
		t.Errorf("sink received %d template fields", len(sink.tplFields))
	}

	// Re-capturing a field replaces in place, preserving order.
	c.ArmTemplate(models.FieldTitle)
	c.HandleEvent(ctx, event(t, `EXTRACT:{"type":"template-field-selected","payload":{"field":"title","mapping":{"field":"title","selector":"h2.title","xpath":"/html/body/div/h2","tagName":"h2","className":"title","parentSelector":"div.card","relativePosition":0,"sampleValue":"Caesar Salad"}}}`))
	got = c.Mappings()
	if len(got) != 2 || got[0].Selector != "h2.title" || got[1].Field != models.FieldPrice {
		t.Errorf("after recapture: %+v", got)
	}

	c.ResetTemplate()
	if len(c.Mappings()) != 0 {
		t.Error("ResetTemplate left mappings behind")
	}
}

func TestSyncTitles(t *testing.T) {
	c := New(nil, nil, nil)
	cmd := c.SyncTitles([]string{"Caesar Salad", "Tomato Soup"})
	if cmd.Command != models.CmdUpdateExistingItems {
		t.Errorf("command = %q", cmd.Command)
	}
	if len(cmd.Items) != 2 {
		t.Errorf("command items = %v", cmd.Items)
	}
	if !c.Titles().Contains("caesar salad") {
		t.Error("title set missing synced title")
	}
}

func TestUnknownEventIgnored(t *testing.T) {
	c := New(nil, nil, nil)
	ev := &models.Event{Type: "telemetry", Payload: map[string]interface{}{}}
	if err := c.HandleEvent(context.Background(), ev); err != nil {
		t.Fatalf("unknown event returned error: %v", err)
	}
	if err := c.HandleEvent(context.Background(), nil); err != nil {
		t.Fatalf("nil event returned error: %v", err)
	}
}

func TestNewDraftStartsFreshItem(t *testing.T) {
	c := New(&models.Item{Title: "Caesar Salad", Price: "12.50"}, nil, nil)
	c.Arm(models.FieldPrice)

	cmd := c.NewDraft(&models.Item{SourceID: "web"})
	if cmd.Command != models.CmdUpdateExistingItems {
		t.Errorf("command = %q, want %q", cmd.Command, models.CmdUpdateExistingItems)
	}
	if !c.Titles().Contains("Caesar Salad") {
		t.Error("finished title missing from duplicate set")
	}
	if c.Mode() != Idle {
		t.Errorf("mode = %v, want Idle", c.Mode())
	}
	if d := c.Draft(); d.Title != "" || d.SourceID != "web" {
		t.Errorf("draft = %+v, want fresh item", d)
	}
	if len(c.Owners()) != 0 {
		t.Errorf("owners = %v, want empty", c.Owners())
	}
}

func TestTemplateFieldRequiresNestedMapping(t *testing.T) {
	c := New(nil, nil, nil)
	c.ArmTemplate(models.FieldTitle)

	// Mapping fields at the payload top level is not the guest's shape;
	// the event is logged and dropped, never folded into state.
	err := c.HandleEvent(context.Background(), event(t, `EXTRACT:{"type":"template-field-selected","payload":{"field":"title","selector":"h3.name","tagName":"h3"}}`))
	if err != nil {
		t.Fatalf("malformed payload returned error: %v", err)
	}
	if n := len(c.Mappings()); n != 0 {
		t.Errorf("mappings = %d, want 0 without a nested mapping", n)
	}
}
