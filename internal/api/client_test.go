package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/menucollect/clipper/internal/retry"
	"github.com/menucollect/clipper/pkg/models"
)

func fastRetry() retry.Config {
	cfg := retry.DefaultConfig()
	cfg.InitialBackoff = time.Millisecond
	cfg.MaxBackoff = 5 * time.Millisecond
	return cfg
}

func testScope() Scope {
	return Scope{RestaurantID: "r1", CollectionID: "c9", SourceID: "menu-page"}
}

func TestCreateItem(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody itemPayload

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{"id": "itm_123"})
	}))
	defer srv.Close()

	c := New(srv.URL, "tok-abc", WithRetryConfig(fastRetry()))
	item := &models.Item{
		Title:      "Caesar Salad",
		Price:      "12.99",
		Currency:   "$",
		PageURL:    "https://menu.example/salads",
		CapturedAt: time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC),
	}

	id, err := c.CreateItem(context.Background(), testScope(), item)
	if err != nil {
		t.Fatalf("CreateItem: %v", err)
	}
	if id != "itm_123" {
		t.Errorf("id = %q", id)
	}
	if gotPath != "/v1/restaurants/r1/collections/c9/items" {
		t.Errorf("path = %q", gotPath)
	}
	if gotAuth != "Bearer tok-abc" {
		t.Errorf("auth = %q", gotAuth)
	}
	if gotBody.Title != "Caesar Salad" || gotBody.SourceID != "menu-page" {
		t.Errorf("body = %+v", gotBody)
	}
	if gotBody.CapturedAt != "2026-08-30T10:00:00Z" {
		t.Errorf("captured_at = %q", gotBody.CapturedAt)
	}
}

func TestCreateItemRequiresScope(t *testing.T) {
	c := New("http://unused.invalid", "")
	if _, err := c.CreateItem(context.Background(), Scope{}, &models.Item{}); err == nil {
		t.Error("empty scope accepted")
	}
}

func TestUpdateItemPatchesOnlyChangedFields(t *testing.T) {
	var gotMethod, gotPath string
	var gotPatch map[string]string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotPatch)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(srv.URL, "tok", WithRetryConfig(fastRetry()))
	item := &models.Item{Title: "New Name", Price: "9.50", ImageURL: "https://cdn.example/x.jpg"}
	err := c.UpdateItem(context.Background(), testScope(), "itm_7", item,
		[]models.Field{models.FieldPrice, models.FieldImage})
	if err != nil {
		t.Fatalf("UpdateItem: %v", err)
	}
	if gotMethod != "PATCH" {
		t.Errorf("method = %q", gotMethod)
	}
	if gotPath != "/v1/restaurants/r1/collections/c9/items/itm_7" {
		t.Errorf("path = %q", gotPath)
	}
	want := map[string]string{"price": "9.50", "image_url": "https://cdn.example/x.jpg"}
	if len(gotPatch) != len(want) || gotPatch["price"] != want["price"] || gotPatch["image_url"] != want["image_url"] {
		t.Errorf("patch = %v, want %v", gotPatch, want)
	}
}

func TestUpdateItemNoChangesSkipsRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("request issued with no changed fields")
	}))
	defer srv.Close()

	c := New(srv.URL, "tok", WithRetryConfig(fastRetry()))
	if err := c.UpdateItem(context.Background(), testScope(), "itm_7", &models.Item{}, nil); err != nil {
		t.Fatalf("UpdateItem: %v", err)
	}
}

func TestListTitles(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/restaurants/r1/collections/c9/items/titles" {
			t.Errorf("path = %q", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string][]string{"titles": {"Caesar Salad", "Tomato Soup"}})
	}))
	defer srv.Close()

	c := New(srv.URL, "tok", WithRetryConfig(fastRetry()))
	titles, err := c.ListTitles(context.Background(), testScope())
	if err != nil {
		t.Fatalf("ListTitles: %v", err)
	}
	if len(titles) != 2 || titles[0] != "Caesar Salad" {
		t.Errorf("titles = %v", titles)
	}
}

func TestRetryOnServerError(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"id": "itm_1"})
	}))
	defer srv.Close()

	c := New(srv.URL, "tok", WithRetryConfig(fastRetry()))
	if _, err := c.CreateItem(context.Background(), testScope(), &models.Item{Title: "x"}); err != nil {
		t.Fatalf("CreateItem: %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestNoRetryOnClientError(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(map[string]string{"error": "title is required"})
	}))
	defer srv.Close()

	c := New(srv.URL, "tok", WithRetryConfig(fastRetry()))
	_, err := c.CreateItem(context.Background(), testScope(), &models.Item{})
	if err == nil {
		t.Fatal("expected error")
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
	var httpErr *retry.HTTPError
	if !errors.As(err, &httpErr) || httpErr.Message != "title is required" {
		t.Errorf("err = %v", err)
	}
}

func TestLogin(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/auth/login" {
			var creds map[string]string
			json.NewDecoder(r.Body).Decode(&creds)
			if creds["email"] != "ops@menucollect.example" {
				t.Errorf("email = %q", creds["email"])
			}
			json.NewEncoder(w).Encode(map[string]string{"token": "tok-new"})
			return
		}
		// Subsequent calls must carry the fresh token.
		if got := r.Header.Get("Authorization"); got != "Bearer tok-new" {
			t.Errorf("auth after login = %q", got)
		}
		json.NewEncoder(w).Encode(map[string][]string{"titles": {}})
	}))
	defer srv.Close()

	c := New(srv.URL, "", WithRetryConfig(fastRetry()))
	token, err := c.Login(context.Background(), "ops@menucollect.example", "hunter2")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if token != "tok-new" {
		t.Errorf("token = %q", token)
	}
	if _, err := c.ListTitles(context.Background(), testScope()); err != nil {
		t.Fatalf("ListTitles after login: %v", err)
	}
}
