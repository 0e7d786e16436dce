package api

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/menucollect/clipper/pkg/models"
)

// Scope names the backend location items are synced into. RestaurantID and
// CollectionID are required; SourceID tags which menu page produced the
// item.
type Scope struct {
	RestaurantID string
	CollectionID string
	SourceID     string
}

func (s Scope) validate() error {
	if s.RestaurantID == "" {
		return fmt.Errorf("restaurant ID is required")
	}
	if s.CollectionID == "" {
		return fmt.Errorf("collection ID is required")
	}
	return nil
}

// Valid reports whether the scope names a restaurant and a collection.
func (s Scope) Valid() bool {
	return s.validate() == nil
}

func (s Scope) itemsPath() string {
	return fmt.Sprintf("/v1/restaurants/%s/collections/%s/items",
		url.PathEscape(s.RestaurantID), url.PathEscape(s.CollectionID))
}

type itemPayload struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Price       string `json:"price,omitempty"`
	Currency    string `json:"currency,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
	PageURL     string `json:"page_url,omitempty"`
	SourceID    string `json:"source_id,omitempty"`
	CapturedAt  string `json:"captured_at,omitempty"`
}

type itemResponse struct {
	ID string `json:"id"`
}

// CreateItem posts a new item in scope and returns the backend's ID.
func (c *Client) CreateItem(ctx context.Context, scope Scope, item *models.Item) (string, error) {
	if err := scope.validate(); err != nil {
		return "", err
	}
	payload := itemPayload{
		Title:       item.Title,
		Description: item.Description,
		Price:       item.Price,
		Currency:    item.Currency,
		ImageURL:    item.ImageURL,
		PageURL:     item.PageURL,
		SourceID:    scope.SourceID,
	}
	if !item.CapturedAt.IsZero() {
		payload.CapturedAt = item.CapturedAt.UTC().Format(time.RFC3339)
	}

	var resp itemResponse
	if err := c.do(ctx, "POST", scope.itemsPath(), payload, &resp); err != nil {
		return "", fmt.Errorf("create item: %w", err)
	}
	if resp.ID == "" {
		return "", fmt.Errorf("create item: backend returned no ID")
	}
	return resp.ID, nil
}

// UpdateItem patches only the named fields of an existing remote item.
func (c *Client) UpdateItem(ctx context.Context, scope Scope, remoteID string, item *models.Item, changed []models.Field) error {
	if err := scope.validate(); err != nil {
		return err
	}
	if remoteID == "" {
		return fmt.Errorf("update item: missing remote ID")
	}
	if len(changed) == 0 {
		return nil
	}

	patch := make(map[string]string, len(changed))
	for _, f := range changed {
		key := string(f)
		if f == models.FieldImage {
			key = "image_url"
		}
		patch[key] = item.GetField(f)
	}

	path := scope.itemsPath() + "/" + url.PathEscape(remoteID)
	if err := c.do(ctx, "PATCH", path, patch, nil); err != nil {
		return fmt.Errorf("update item %s: %w", remoteID, err)
	}
	return nil
}

// DeleteItem removes a remote item.
func (c *Client) DeleteItem(ctx context.Context, scope Scope, remoteID string) error {
	if err := scope.validate(); err != nil {
		return err
	}
	if remoteID == "" {
		return fmt.Errorf("delete item: missing remote ID")
	}
	path := scope.itemsPath() + "/" + url.PathEscape(remoteID)
	if err := c.do(ctx, "DELETE", path, nil, nil); err != nil {
		return fmt.Errorf("delete item %s: %w", remoteID, err)
	}
	return nil
}

// ListTitles fetches the titles already collected in scope, used to seed
// duplicate detection before a capture session.
func (c *Client) ListTitles(ctx context.Context, scope Scope) ([]string, error) {
	if err := scope.validate(); err != nil {
		return nil, err
	}
	var resp struct {
		Titles []string `json:"titles"`
	}
	if err := c.do(ctx, "GET", scope.itemsPath()+"/titles", nil, &resp); err != nil {
		return nil, fmt.Errorf("list titles: %w", err)
	}
	return resp.Titles, nil
}

// Login exchanges credentials for a bearer token and installs it on the
// client.
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	var resp struct {
		Token string `json:"token"`
	}
	payload := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, "POST", "/v1/auth/login", payload, &resp); err != nil {
		return "", fmt.Errorf("login: %w", err)
	}
	if resp.Token == "" {
		return "", fmt.Errorf("login: backend returned no token")
	}
	c.SetToken(resp.Token)
	return resp.Token, nil
}
