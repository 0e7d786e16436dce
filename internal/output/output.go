// Package output renders captured items for export: JSON for pipelines,
// CSV for spreadsheets, Markdown for review.
package output

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"

	"github.com/menucollect/clipper/pkg/models"
)

// Format names an export format.
type Format string

const (
	FormatJSON     Format = "json"
	FormatCSV      Format = "csv"
	FormatMarkdown Format = "markdown"
)

// ParseFormat validates a --format flag value.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(s)) {
	case FormatJSON:
		return FormatJSON, nil
	case FormatCSV:
		return FormatCSV, nil
	case FormatMarkdown, "md":
		return FormatMarkdown, nil
	}
	return "", fmt.Errorf("unknown format %q (json, csv, markdown)", s)
}

// Write renders items to w in the requested format.
func Write(w io.Writer, items []*models.Item, format Format) error {
	switch format {
	case FormatJSON:
		return writeJSON(w, items)
	case FormatCSV:
		return writeCSV(w, items)
	case FormatMarkdown:
		return writeMarkdown(w, items)
	}
	return fmt.Errorf("unknown format %q", format)
}

func writeJSON(w io.Writer, items []*models.Item) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(items)
}

var csvHeader = []string{"title", "description", "price", "currency", "image_url", "page_url", "captured_at", "synced"}

func writeCSV(w io.Writer, items []*models.Item) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, it := range items {
		synced := ""
		if !it.SyncedAt.IsZero() {
			synced = it.SyncedAt.UTC().Format("2006-01-02 15:04:05")
		}
		row := []string{
			it.Title,
			plainText(it.Description),
			it.Price,
			it.Currency,
			it.ImageURL,
			it.PageURL,
			it.CapturedAt.UTC().Format("2006-01-02 15:04:05"),
			synced,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeMarkdown(w io.Writer, items []*models.Item) error {
	for i, it := range items {
		if i > 0 {
			if _, err := io.WriteString(w, "\n"); err != nil {
				return err
			}
		}
		title := it.Title
		if title == "" {
			title = "(untitled)"
		}
		if _, err := fmt.Fprintf(w, "## %s\n\n", title); err != nil {
			return err
		}
		if it.Price != "" {
			if _, err := fmt.Fprintf(w, "**Price:** %s%s\n\n", it.Currency, it.Price); err != nil {
				return err
			}
		}
		if desc := markdownText(it.Description); desc != "" {
			if _, err := fmt.Fprintf(w, "%s\n\n", desc); err != nil {
				return err
			}
		}
		if it.ImageURL != "" {
			if _, err := fmt.Fprintf(w, "![%s](%s)\n\n", title, it.ImageURL); err != nil {
				return err
			}
		}
		if it.PageURL != "" {
			if _, err := fmt.Fprintf(w, "Source: <%s>\n", it.PageURL); err != nil {
				return err
			}
		}
	}
	return nil
}

// markdownText converts a description to Markdown. Descriptions captured
// from rich menu pages can carry HTML fragments; plain text passes through
// unchanged.
func markdownText(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || !strings.Contains(s, "<") {
		return s
	}
	converter := md.NewConverter("", true, nil)
	converter.Use(plugin.GitHubFlavored())
	out, err := converter.ConvertString(s)
	if err != nil {
		return s
	}
	return strings.TrimSpace(out)
}

// plainText strips markup from a description for CSV cells.
func plainText(s string) string {
	converted := markdownText(s)
	fields := strings.Fields(converted)
	return strings.Join(fields, " ")
}
