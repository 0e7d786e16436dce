package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/menucollect/clipper/pkg/models"
)

// SaveItem inserts item when it has no ID yet, otherwise updates the
// existing row. The item's ID is set on insert.
func (s *Store) SaveItem(item *models.Item) error {
	if item.CapturedAt.IsZero() {
		item.CapturedAt = time.Now().UTC()
	}

	if item.ID == 0 {
		res, err := s.db.Exec(`
			INSERT INTO items (remote_id, restaurant_id, collection_id, source_id,
				title, description, price, currency, image_url, page_url,
				captured_at, synced_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			item.RemoteID, item.RestaurantID, item.CollectionID, item.SourceID,
			item.Title, item.Description, item.Price, item.Currency,
			item.ImageURL, item.PageURL, item.CapturedAt, nullTime(item.SyncedAt))
		if err != nil {
			return fmt.Errorf("insert item: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("insert item: %w", err)
		}
		item.ID = id
		return nil
	}

	res, err := s.db.Exec(`
		UPDATE items SET remote_id = ?, restaurant_id = ?, collection_id = ?,
			source_id = ?, title = ?, description = ?, price = ?, currency = ?,
			image_url = ?, page_url = ?, captured_at = ?, synced_at = ?
		WHERE id = ?`,
		item.RemoteID, item.RestaurantID, item.CollectionID, item.SourceID,
		item.Title, item.Description, item.Price, item.Currency,
		item.ImageURL, item.PageURL, item.CapturedAt, nullTime(item.SyncedAt),
		item.ID)
	if err != nil {
		return fmt.Errorf("update item %d: %w", item.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("item %d: %w", item.ID, ErrNotFound)
	}
	return nil
}

// GetItem loads one item by local ID.
func (s *Store) GetItem(id int64) (*models.Item, error) {
	row := s.db.QueryRow(itemColumns+` WHERE id = ?`, id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("item %d: %w", id, ErrNotFound)
	}
	return item, err
}

// ItemFilter narrows ListItems. Zero values match everything.
type ItemFilter struct {
	RestaurantID string
	CollectionID string
	SourceID     string
	Unsynced     bool
}

const itemColumns = `
	SELECT id, remote_id, restaurant_id, collection_id, source_id,
		title, description, price, currency, image_url, page_url,
		captured_at, synced_at
	FROM items`

// ListItems returns items matching f, newest first.
func (s *Store) ListItems(f ItemFilter) ([]*models.Item, error) {
	query := itemColumns + ` WHERE 1=1`
	var args []interface{}
	if f.RestaurantID != "" {
		query += ` AND restaurant_id = ?`
		args = append(args, f.RestaurantID)
	}
	if f.CollectionID != "" {
		query += ` AND collection_id = ?`
		args = append(args, f.CollectionID)
	}
	if f.SourceID != "" {
		query += ` AND source_id = ?`
		args = append(args, f.SourceID)
	}
	if f.Unsynced {
		query += ` AND (remote_id = '' OR synced_at IS NULL)`
	}
	query += ` ORDER BY captured_at DESC, id DESC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	var out []*models.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// Titles returns the titles already captured in scope, used to seed
// duplicate detection when the backend is unreachable.
func (s *Store) Titles(restaurantID, collectionID string) ([]string, error) {
	rows, err := s.db.Query(`
		SELECT title FROM items
		WHERE restaurant_id = ? AND collection_id = ? AND title != ''
		ORDER BY id`, restaurantID, collectionID)
	if err != nil {
		return nil, fmt.Errorf("list titles: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var title string
		if err := rows.Scan(&title); err != nil {
			return nil, err
		}
		out = append(out, title)
	}
	return out, rows.Err()
}

// MarkSynced records a successful backend sync for the item.
func (s *Store) MarkSynced(id int64, remoteID string, at time.Time) error {
	res, err := s.db.Exec(`UPDATE items SET remote_id = ?, synced_at = ? WHERE id = ?`,
		remoteID, at.UTC(), id)
	if err != nil {
		return fmt.Errorf("mark item %d synced: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("item %d: %w", id, ErrNotFound)
	}
	return nil
}

// DeleteItem removes an item by local ID.
func (s *Store) DeleteItem(id int64) error {
	res, err := s.db.Exec(`DELETE FROM items WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete item %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("item %d: %w", id, ErrNotFound)
	}
	return nil
}

func scanItem(row rowScanner) (*models.Item, error) {
	var item models.Item
	var synced sql.NullTime
	err := row.Scan(&item.ID, &item.RemoteID, &item.RestaurantID, &item.CollectionID,
		&item.SourceID, &item.Title, &item.Description, &item.Price, &item.Currency,
		&item.ImageURL, &item.PageURL, &item.CapturedAt, &synced)
	if err != nil {
		return nil, err
	}
	if synced.Valid {
		item.SyncedAt = synced.Time
	}
	return &item, nil
}

func nullTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}
