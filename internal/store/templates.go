package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/menucollect/clipper/pkg/models"
)

// ErrNotFound is returned when a lookup matches nothing.
var ErrNotFound = errors.New("not found")

// SaveTemplate inserts tpl or, when a template with the same name exists,
// replaces its mappings. The template's ID and timestamps are updated in
// place.
func (s *Store) SaveTemplate(tpl *models.Template) error {
	if tpl.Name == "" {
		return fmt.Errorf("template name is required")
	}
	if len(tpl.Fields) == 0 {
		return fmt.Errorf("template %q has no field mappings", tpl.Name)
	}

	fields, err := json.Marshal(tpl.Fields)
	if err != nil {
		return fmt.Errorf("encode template fields: %w", err)
	}

	now := time.Now().UTC()
	res, err := s.db.Exec(`
		INSERT INTO templates (name, source_url, fields, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			source_url = excluded.source_url,
			fields     = excluded.fields,
			updated_at = excluded.updated_at`,
		tpl.Name, tpl.SourceURL, string(fields), now, now)
	if err != nil {
		return fmt.Errorf("save template %q: %w", tpl.Name, err)
	}

	if id, err := res.LastInsertId(); err == nil && id > 0 {
		tpl.ID = id
	}
	if tpl.CreatedAt.IsZero() {
		tpl.CreatedAt = now
	}
	tpl.UpdatedAt = now

	// Upserts do not always report the row ID; resolve it by name.
	if tpl.ID == 0 {
		existing, err := s.GetTemplate(tpl.Name)
		if err != nil {
			return err
		}
		tpl.ID = existing.ID
	}
	return nil
}

// GetTemplate loads a template by name.
func (s *Store) GetTemplate(name string) (*models.Template, error) {
	row := s.db.QueryRow(`
		SELECT id, name, source_url, fields, created_at, updated_at
		FROM templates WHERE name = ?`, name)
	tpl, err := scanTemplate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("template %q: %w", name, ErrNotFound)
	}
	return tpl, err
}

// ListTemplates returns all templates ordered by name.
func (s *Store) ListTemplates() ([]*models.Template, error) {
	rows, err := s.db.Query(`
		SELECT id, name, source_url, fields, created_at, updated_at
		FROM templates ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	var out []*models.Template
	for rows.Next() {
		tpl, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tpl)
	}
	return out, rows.Err()
}

// DeleteTemplate removes a template by name.
func (s *Store) DeleteTemplate(name string) error {
	res, err := s.db.Exec(`DELETE FROM templates WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("delete template %q: %w", name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("template %q: %w", name, ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTemplate(row rowScanner) (*models.Template, error) {
	var tpl models.Template
	var fields string
	if err := row.Scan(&tpl.ID, &tpl.Name, &tpl.SourceURL, &fields, &tpl.CreatedAt, &tpl.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(fields), &tpl.Fields); err != nil {
		return nil, fmt.Errorf("decode template %q fields: %w", tpl.Name, err)
	}
	return &tpl, nil
}
