// Package guest owns the script injected into third-party pages and the
// two halves of its protocol: building host-to-guest commands and parsing
// guest-to-host event envelopes.
package guest

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dop251/goja"
	"github.com/menucollect/clipper/pkg/models"
)

//go:embed script.js
var script string

// EventPrefix tags guest console lines that carry protocol envelopes.
const EventPrefix = "EXTRACT:"

// Script returns the guest source, injected on every document load. The
// script guards itself against double initialization, so re-injecting on
// navigation is safe.
func Script() string {
	return script
}

// CompileCheck parses the embedded script without running it. Used as a
// startup assertion and in tests; a page-less goja VM cannot execute the
// script (no DOM), but parsing catches syntax damage early.
func CompileCheck() error {
	if _, err := goja.Compile("clipper-guest.js", script, false); err != nil {
		return fmt.Errorf("guest script does not compile: %w", err)
	}
	return nil
}

// CommandJS renders a command as a JavaScript expression that delivers it to
// the guest. Delivery goes through the guest's own entry point rather than
// postMessage so a hostile page cannot intercept or spoof commands.
func CommandJS(cmd models.Command) (string, error) {
	if cmd.Command == "" {
		return "", fmt.Errorf("empty command")
	}
	raw, err := json.Marshal(cmd)
	if err != nil {
		return "", fmt.Errorf("marshal command %q: %w", cmd.Command, err)
	}
	return fmt.Sprintf("window.__clipper && window.__clipper.command(%s)", raw), nil
}

// StartSelection arms value-capture mode for the given field.
func StartSelection(field models.Field) models.Command {
	return models.Command{Command: models.CmdStartSelection, Field: field}
}

// StartTemplateSelection arms template-locator mode for the given field.
func StartTemplateSelection(field models.Field) models.Command {
	return models.Command{Command: models.CmdStartTemplateSelection, Field: field}
}

// StopSelection disarms both selection modes.
func StopSelection() models.Command {
	return models.Command{Command: models.CmdStopSelection}
}

// ClearAllHighlights wipes value-selection visual residue.
func ClearAllHighlights() models.Command {
	return models.Command{Command: models.CmdClearAllHighlights}
}

// ClearTemplateHighlights wipes template-mode visual residue.
func ClearTemplateHighlights() models.Command {
	return models.Command{Command: models.CmdClearTemplateHighlight}
}

// UpdateExistingItems replaces the guest's duplicate-detection title list.
func UpdateExistingItems(titles []string) models.Command {
	return models.Command{Command: models.CmdUpdateExistingItems, Items: titles}
}

// ParseEvent extracts a protocol envelope from a console line. The second
// return value reports whether the line was a protocol line at all; an error
// means it claimed to be one but did not parse, which the caller should log
// and drop without disturbing the session.
func ParseEvent(line string) (*models.Event, bool, error) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, EventPrefix) {
		return nil, false, nil
	}

	var ev models.Event
	if err := json.Unmarshal([]byte(trimmed[len(EventPrefix):]), &ev); err != nil {
		return nil, true, fmt.Errorf("malformed event envelope: %w", err)
	}
	if ev.Type == "" {
		return nil, true, fmt.Errorf("event envelope missing type")
	}
	return &ev, true, nil
}

// PayloadString reads a string payload entry defensively.
func PayloadString(ev *models.Event, key string) string {
	if ev == nil || ev.Payload == nil {
		return ""
	}
	if v, ok := ev.Payload[key].(string); ok {
		return v
	}
	return ""
}

// PayloadMapping decodes a template-field-selected payload's mapping.
func PayloadMapping(ev *models.Event) (models.FieldMapping, error) {
	var m models.FieldMapping
	if ev == nil || ev.Payload == nil {
		return m, fmt.Errorf("event has no payload")
	}
	raw, ok := ev.Payload["mapping"]
	if !ok {
		return m, fmt.Errorf("payload has no mapping")
	}
	// Round-trip through JSON rather than reflecting over the loose map.
	buf, err := json.Marshal(raw)
	if err != nil {
		return m, fmt.Errorf("re-encode mapping: %w", err)
	}
	if err := json.Unmarshal(buf, &m); err != nil {
		return m, fmt.Errorf("decode mapping: %w", err)
	}
	return m, nil
}
