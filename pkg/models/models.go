package models

import "time"

// Field identifies a logical extraction target on a page.
type Field string

const (
	FieldTitle       Field = "title"
	FieldDescription Field = "description"
	FieldPrice       Field = "price"
	FieldCurrency    Field = "currency"
	FieldImage       Field = "image"
)

// Fields lists the capture targets in display order.
var Fields = []Field{FieldTitle, FieldDescription, FieldPrice, FieldCurrency, FieldImage}

// Valid reports whether f is one of the known capture fields.
func (f Field) Valid() bool {
	switch f {
	case FieldTitle, FieldDescription, FieldPrice, FieldCurrency, FieldImage:
		return true
	}
	return false
}

// FieldResult is the outcome of extracting one field from one element.
// Currency is only populated for price extractions.
type FieldResult struct {
	Field     Field     `json:"field"`
	Value     string    `json:"value"`
	Currency  string    `json:"currency,omitempty"`
	URL       string    `json:"url,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// FieldMapping is a structural locator for one field of a template.
// Selector must discriminate among same-tag siblings via :nth-of-type.
type FieldMapping struct {
	Field            Field  `json:"field"`
	Selector         string `json:"selector"`
	XPath            string `json:"xpath"`
	TagName          string `json:"tagName"`
	ClassName        string `json:"className,omitempty"`
	ParentSelector   string `json:"parentSelector,omitempty"`
	RelativePosition int    `json:"relativePosition"`
	SampleValue      string `json:"sampleValue,omitempty"`
}

// Template is a persisted, ordered set of field mappings captured from one
// page, reusable for unattended re-extraction against similar pages.
type Template struct {
	ID        int64          `json:"id"`
	Name      string         `json:"name"`
	SourceURL string         `json:"source_url,omitempty"`
	Fields    []FieldMapping `json:"fields"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Mapping returns the mapping for the given field, if the template has one.
func (t *Template) Mapping(f Field) (FieldMapping, bool) {
	for _, m := range t.Fields {
		if m.Field == f {
			return m, true
		}
	}
	return FieldMapping{}, false
}

// Item is a captured menu item. RemoteID is set once the collection API has
// accepted it; until then the item only exists locally.
type Item struct {
	ID           int64     `json:"id"`
	RemoteID     string    `json:"remote_id,omitempty"`
	RestaurantID string    `json:"restaurant_id,omitempty"`
	CollectionID string    `json:"collection_id,omitempty"`
	SourceID     string    `json:"source_id,omitempty"`
	Title        string    `json:"title,omitempty"`
	Description  string    `json:"description,omitempty"`
	Price        string    `json:"price,omitempty"`
	Currency     string    `json:"currency,omitempty"`
	ImageURL     string    `json:"image_url,omitempty"`
	PageURL      string    `json:"page_url,omitempty"`
	CapturedAt   time.Time `json:"captured_at"`
	SyncedAt     time.Time `json:"synced_at,omitempty"`
}

// SetField assigns value to the named field and reports whether it changed.
func (it *Item) SetField(f Field, value string) bool {
	var dst *string
	switch f {
	case FieldTitle:
		dst = &it.Title
	case FieldDescription:
		dst = &it.Description
	case FieldPrice:
		dst = &it.Price
	case FieldCurrency:
		dst = &it.Currency
	case FieldImage:
		dst = &it.ImageURL
	default:
		return false
	}
	if *dst == value {
		return false
	}
	*dst = value
	return true
}

// GetField returns the current value of the named field.
func (it *Item) GetField(f Field) string {
	switch f {
	case FieldTitle:
		return it.Title
	case FieldDescription:
		return it.Description
	case FieldPrice:
		return it.Price
	case FieldCurrency:
		return it.Currency
	case FieldImage:
		return it.ImageURL
	}
	return ""
}

// Guest event types carried in the EXTRACT: console envelope.
const (
	EventDataExtracted         = "data-extracted"
	EventDataDeselected        = "data-deselected"
	EventSelectionCancelled    = "selection-cancelled"
	EventTemplateFieldSelected = "template-field-selected"
)

// Event is the guest-to-host envelope. Payload stays loosely typed because
// the guest runs inside an uncontrolled page and the host must parse
// defensively.
type Event struct {
	Type    string                 `json:"type"`
	Payload map[string]interface{} `json:"payload"`
}

// Host-to-guest command names.
const (
	CmdStartSelection         = "START_SELECTION"
	CmdStartTemplateSelection = "START_TEMPLATE_FIELD_SELECTION"
	CmdStopSelection          = "STOP_SELECTION"
	CmdClearAllHighlights     = "CLEAR_ALL_HIGHLIGHTS"
	CmdClearTemplateHighlight = "CLEAR_TEMPLATE_HIGHLIGHTS"
	CmdUpdateExistingItems    = "UPDATE_EXISTING_ITEMS"
)

// Command is the host-to-guest message posted into the page.
type Command struct {
	Command string   `json:"command"`
	Field   Field    `json:"field,omitempty"`
	Items   []string `json:"items,omitempty"`
}

// PageSnapshot is a fetched page used by unattended re-extraction.
type PageSnapshot struct {
	URL          string            `json:"url"`
	StatusCode   int               `json:"status_code"`
	Title        string            `json:"title,omitempty"`
	HTML         string            `json:"html,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	FetchedAt    time.Time         `json:"fetched_at"`
	ResponseTime int64             `json:"response_time_ms"`
}
