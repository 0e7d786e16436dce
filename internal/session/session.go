// Package session holds the host side of a selection session: which mode is
// armed, which fields currently own a selected element, the in-progress item
// draft, and the template under construction. Guest events are folded into
// this state; a Sink receives the durable consequences.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/menucollect/clipper/internal/dedupe"
	"github.com/menucollect/clipper/internal/guest"
	"github.com/menucollect/clipper/pkg/models"
	"github.com/rs/zerolog/log"
)

// Mode is the controller's armed state.
type Mode int

const (
	Idle Mode = iota
	Selecting
	TemplateSelecting
)

func (m Mode) String() string {
	switch m {
	case Selecting:
		return "selecting"
	case TemplateSelecting:
		return "template-selecting"
	default:
		return "idle"
	}
}

// Sink receives the durable effects of guest events. Implementations persist
// items and template fields; the controller stays free of storage concerns.
type Sink interface {
	// ItemCaptured is called after a data-extracted event updated the
	// draft. changed names the fields whose values differ from before.
	ItemCaptured(ctx context.Context, item *models.Item, changed []models.Field) error

	// FieldCleared is called after a data-deselected event.
	FieldCleared(ctx context.Context, item *models.Item, field models.Field) error

	// TemplateFieldCaptured is called for each template-field-selected
	// event, in capture order.
	TemplateFieldCaptured(ctx context.Context, mapping models.FieldMapping) error
}

// Controller is the host-side selection state machine. All methods are safe
// for concurrent use; the browser event listener and the interactive prompt
// loop both touch it.
type Controller struct {
	mu sync.Mutex

	mode  Mode
	field models.Field

	// owners mirrors the guest's selectedElements map at protocol level:
	// which fields currently have a live selected element, and the value
	// they yielded.
	owners map[models.Field]string

	draft    *models.Item
	mappings []models.FieldMapping
	titles   *dedupe.TitleSet
	sink     Sink
}

// New creates an idle controller around a draft item and an existing-title
// set. sink may be nil when capture effects are not wanted (tests, dry runs).
func New(draft *models.Item, titles *dedupe.TitleSet, sink Sink) *Controller {
	if draft == nil {
		draft = &models.Item{}
	}
	if titles == nil {
		titles = dedupe.NewTitleSet(nil)
	}
	return &Controller{
		mode:   Idle,
		owners: make(map[models.Field]string),
		draft:  draft,
		titles: titles,
		sink:   sink,
	}
}

// Mode returns the current armed state.
func (c *Controller) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// CurrentField returns the field being captured, if any.
func (c *Controller) CurrentField() models.Field {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.field
}

// Draft returns a copy of the in-progress item.
func (c *Controller) Draft() models.Item {
	c.mu.Lock()
	defer c.mu.Unlock()
	return *c.draft
}

// Owners returns the fields that currently own a selected element.
func (c *Controller) Owners() map[models.Field]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[models.Field]string, len(c.owners))
	for f, v := range c.owners {
		out[f] = v
	}
	return out
}

// Mappings returns the template fields captured so far, in capture order.
func (c *Controller) Mappings() []models.FieldMapping {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.FieldMapping, len(c.mappings))
	copy(out, c.mappings)
	return out
}

// NewDraft finishes the current item and starts a fresh one. The finished
// item's title joins the duplicate-detection set; the returned command
// pushes the updated set into the guest.
func (c *Controller) NewDraft(draft *models.Item) models.Command {
	if draft == nil {
		draft = &models.Item{}
	}
	c.mu.Lock()
	if c.draft.Title != "" {
		c.titles.Add(c.draft.Title)
	}
	c.draft = draft
	c.owners = make(map[models.Field]string)
	c.mode = Idle
	c.field = ""
	c.mu.Unlock()
	return guest.UpdateExistingItems(c.titles.Titles())
}

// ResetTemplate discards mappings captured so far.
func (c *Controller) ResetTemplate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mappings = nil
}

// Titles exposes the duplicate-detection title set.
func (c *Controller) Titles() *dedupe.TitleSet {
	return c.titles
}

// Arm moves the controller into value-selection mode for field and returns
// the command to send to the guest. Starting a new field replaces any
// previous field-scoped state.
func (c *Controller) Arm(field models.Field) (models.Command, error) {
	if !field.Valid() {
		return models.Command{}, fmt.Errorf("unknown field %q", field)
	}
	c.mu.Lock()
	c.mode = Selecting
	c.field = field
	c.mu.Unlock()

	log.Debug().Str("field", string(field)).Msg("Selection armed")
	return guest.StartSelection(field), nil
}

// ArmTemplate moves the controller into template-capture mode for field.
func (c *Controller) ArmTemplate(field models.Field) (models.Command, error) {
	if !field.Valid() {
		return models.Command{}, fmt.Errorf("unknown field %q", field)
	}
	c.mu.Lock()
	c.mode = TemplateSelecting
	c.field = field
	c.mu.Unlock()

	log.Debug().Str("field", string(field)).Msg("Template selection armed")
	return guest.StartTemplateSelection(field), nil
}

// Disarm returns the controller to idle and reports whether it was armed.
// Calling it while idle is a no-op; the returned command is still safe to
// send (the guest's teardown is equally idempotent).
func (c *Controller) Disarm() (models.Command, bool) {
	c.mu.Lock()
	wasArmed := c.mode != Idle
	c.mode = Idle
	c.field = ""
	c.mu.Unlock()
	return guest.StopSelection(), wasArmed
}

// SyncTitles replaces the duplicate-detection titles and returns the command
// that pushes them into the guest.
func (c *Controller) SyncTitles(titles []string) models.Command {
	c.titles.Replace(titles)
	return guest.UpdateExistingItems(c.titles.Titles())
}

// HandleEvent folds one guest event into controller state and notifies the
// sink. Unknown event types are logged and dropped; sink failures are
// returned but leave the state transition in place, mirroring the guest,
// which has already moved on.
func (c *Controller) HandleEvent(ctx context.Context, ev *models.Event) error {
	if ev == nil {
		return nil
	}
	switch ev.Type {
	case models.EventDataExtracted:
		return c.handleExtracted(ctx, ev)
	case models.EventDataDeselected:
		return c.handleDeselected(ctx, ev)
	case models.EventSelectionCancelled:
		c.handleCancelled(ev)
		return nil
	case models.EventTemplateFieldSelected:
		return c.handleTemplateField(ctx, ev)
	default:
		log.Warn().Str("type", ev.Type).Msg("Unknown guest event type")
		return nil
	}
}

func (c *Controller) handleExtracted(ctx context.Context, ev *models.Event) error {
	c.mu.Lock()

	var field models.Field
	var value string
	for _, f := range models.Fields {
		if raw, ok := ev.Payload[string(f)]; ok {
			field = f
			value, _ = raw.(string)
			break
		}
	}
	if field == "" {
		c.mu.Unlock()
		log.Warn().Interface("payload", ev.Payload).Msg("data-extracted without a known field key")
		return nil
	}

	var changed []models.Field
	if c.draft.SetField(field, value) {
		changed = append(changed, field)
	}
	if field == models.FieldPrice {
		if cur := payloadString(ev, "currency"); cur != "" && c.draft.SetField(models.FieldCurrency, cur) {
			changed = append(changed, models.FieldCurrency)
		}
	}
	if url := payloadString(ev, "url"); url != "" {
		c.draft.PageURL = url
	}
	if c.draft.CapturedAt.IsZero() {
		c.draft.CapturedAt = time.Now()
	}

	c.owners[field] = value
	// The guest auto-stops after a successful click.
	c.mode = Idle
	c.field = ""

	item := *c.draft
	sink := c.sink
	c.mu.Unlock()

	log.Info().Str("field", string(field)).Str("value", value).Msg("Field captured")
	if sink != nil && len(changed) > 0 {
		if err := sink.ItemCaptured(ctx, &item, changed); err != nil {
			return fmt.Errorf("persist captured field %q: %w", field, err)
		}
	}
	return nil
}

func (c *Controller) handleDeselected(ctx context.Context, ev *models.Event) error {
	field := models.Field(payloadString(ev, "field"))

	c.mu.Lock()
	delete(c.owners, field)
	c.draft.SetField(field, "")
	c.mode = Idle
	c.field = ""
	item := *c.draft
	sink := c.sink
	c.mu.Unlock()

	log.Info().Str("field", string(field)).Msg("Field deselected")
	if sink != nil && field.Valid() {
		if err := sink.FieldCleared(ctx, &item, field); err != nil {
			return fmt.Errorf("clear field %q: %w", field, err)
		}
	}
	return nil
}

func (c *Controller) handleCancelled(ev *models.Event) {
	field := payloadString(ev, "field")

	c.mu.Lock()
	c.mode = Idle
	c.field = ""
	c.mu.Unlock()

	// Advisory only; surfaces as user feedback, not as an error.
	log.Info().Str("field", field).Msg("Selection cancelled")
}

func (c *Controller) handleTemplateField(ctx context.Context, ev *models.Event) error {
	mapping, err := guest.PayloadMapping(ev)
	if err != nil {
		log.Warn().Err(err).Msg("template-field-selected with unusable mapping")
		return nil
	}

	c.mu.Lock()
	// Re-capturing a field replaces its previous mapping but keeps the
	// original capture position.
	replaced := false
	for i := range c.mappings {
		if c.mappings[i].Field == mapping.Field {
			c.mappings[i] = mapping
			replaced = true
			break
		}
	}
	if !replaced {
		c.mappings = append(c.mappings, mapping)
	}
	c.mode = Idle
	c.field = ""
	sink := c.sink
	c.mu.Unlock()

	log.Info().
		Str("field", string(mapping.Field)).
		Str("selector", mapping.Selector).
		Msg("Template field captured")
	if sink != nil {
		if err := sink.TemplateFieldCaptured(ctx, mapping); err != nil {
			return fmt.Errorf("persist template field %q: %w", mapping.Field, err)
		}
	}
	return nil
}

func payloadString(ev *models.Event, key string) string {
	return guest.PayloadString(ev, key)
}
