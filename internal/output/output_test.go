package output

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/menucollect/clipper/pkg/models"
)

func sampleItems() []*models.Item {
	return []*models.Item{
		{
			Title:      "Caesar Salad",
			Price:      "12.99",
			Currency:   "$",
			ImageURL:   "https://menu.example/img/salad.jpg",
			PageURL:    "https://menu.example/salads",
			CapturedAt: time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC),
		},
		{
			Title:       "Tomato Soup",
			Description: "<p>Slow-cooked <b>roma</b> tomatoes</p>",
			Price:       "6.50",
			Currency:    "$",
			CapturedAt:  time.Date(2026, 8, 30, 11, 0, 0, 0, time.UTC),
			SyncedAt:    time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC),
		},
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{
		"json": FormatJSON, "CSV": FormatCSV, "markdown": FormatMarkdown, "md": FormatMarkdown,
	} {
		got, err := ParseFormat(in)
		if err != nil || got != want {
			t.Errorf("ParseFormat(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Error("unknown format accepted")
	}
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, sampleItems(), FormatJSON); err != nil {
		t.Fatalf("Write: %v", err)
	}
	var decoded []models.Item
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(decoded) != 2 || decoded[0].Title != "Caesar Salad" {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, sampleItems(), FormatCSV); err != nil {
		t.Fatalf("Write: %v", err)
	}
	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("invalid CSV: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("rows = %d, want header + 2", len(records))
	}
	if records[0][0] != "title" {
		t.Errorf("header = %v", records[0])
	}
	if records[1][0] != "Caesar Salad" || records[1][2] != "12.99" {
		t.Errorf("row 1 = %v", records[1])
	}
	// HTML description is flattened for spreadsheet cells.
	if got := records[2][1]; strings.Contains(got, "<") || !strings.Contains(got, "tomatoes") {
		t.Errorf("description cell = %q", got)
	}
	if records[2][7] == "" {
		t.Error("synced timestamp missing for synced item")
	}
}

func TestWriteMarkdown(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, sampleItems(), FormatMarkdown); err != nil {
		t.Fatalf("Write: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "## Caesar Salad") {
		t.Errorf("missing title heading:\n%s", out)
	}
	if !strings.Contains(out, "**Price:** $12.99") {
		t.Errorf("missing price line:\n%s", out)
	}
	if !strings.Contains(out, "![Caesar Salad](https://menu.example/img/salad.jpg)") {
		t.Errorf("missing image:\n%s", out)
	}
	// HTML description converted to Markdown.
	if !strings.Contains(out, "**roma**") {
		t.Errorf("description not converted:\n%s", out)
	}
	if strings.Contains(out, "<p>") {
		t.Errorf("raw HTML leaked:\n%s", out)
	}
}
