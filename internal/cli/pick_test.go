package cli

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/menucollect/clipper/internal/api"
	"github.com/menucollect/clipper/internal/app"
	"github.com/menucollect/clipper/internal/dedupe"
	"github.com/menucollect/clipper/internal/guest"
	"github.com/menucollect/clipper/internal/session"
	"github.com/menucollect/clipper/internal/store"
	"github.com/menucollect/clipper/pkg/models"
)

// guestLine parses a raw console envelope the way the browser listener does.
func guestLine(t *testing.T, line string) *models.Event {
	t.Helper()
	ev, ok, err := guest.ParseEvent(line)
	if err != nil || !ok {
		t.Fatalf("ParseEvent(%q) = %v, %v, %v", line, ev, ok, err)
	}
	return ev
}

// TestCaptureFlowPersistsAndSyncs drives the whole capture chain: a guest
// event line is folded into the controller, the sink writes the item to the
// local store, pushes it to the backend, and records the sync state. A
// follow-up capture patches the same backend item instead of creating a
// second one.
func TestCaptureFlowPersistsAndSyncs(t *testing.T) {
	var creates, patches int
	var patched map[string]string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			creates++
			json.NewEncoder(w).Encode(map[string]string{"id": "rem-1"})
		case http.MethodPatch:
			patches++
			json.NewDecoder(r.Body).Decode(&patched)
			w.WriteHeader(http.StatusOK)
		default:
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
	}))
	defer srv.Close()

	st, err := store.OpenInMemory()
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer st.Close()

	scope := api.Scope{RestaurantID: "r1", CollectionID: "c1", SourceID: "web"}
	sink := &captureSink{
		app:   &app.Application{Store: st, API: api.New(srv.URL, "tok")},
		scope: scope,
		sync:  true,
	}
	ctrl := session.New(&models.Item{RestaurantID: "r1", CollectionID: "c1", SourceID: "web"},
		dedupe.NewTitleSet(nil), sink)

	ctx := context.Background()
	if _, err := ctrl.Arm(models.FieldTitle); err != nil {
		t.Fatalf("Arm: %v", err)
	}
	ev := guestLine(t, `EXTRACT:{"type":"data-extracted","payload":{"title":"Caesar Salad","url":"https://luigis.example/menu"}}`)
	if err := ctrl.HandleEvent(ctx, ev); err != nil {
		t.Fatalf("HandleEvent(title): %v", err)
	}

	items, err := st.ListItems(store.ItemFilter{RestaurantID: "r1", CollectionID: "c1"})
	if err != nil {
		t.Fatalf("ListItems: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("items in store = %d, want 1", len(items))
	}
	if items[0].Title != "Caesar Salad" || items[0].RemoteID != "rem-1" {
		t.Errorf("stored item = %+v", items[0])
	}
	if items[0].SyncedAt.IsZero() {
		t.Error("item not marked synced")
	}
	if creates != 1 {
		t.Errorf("backend creates = %d, want 1", creates)
	}

	// Second field on the same item updates, it does not insert.
	ctrl.Arm(models.FieldPrice)
	ev = guestLine(t, `EXTRACT:{"type":"data-extracted","payload":{"price":"$12.99","currency":"$"}}`)
	if err := ctrl.HandleEvent(ctx, ev); err != nil {
		t.Fatalf("HandleEvent(price): %v", err)
	}

	items, _ = st.ListItems(store.ItemFilter{RestaurantID: "r1", CollectionID: "c1"})
	if len(items) != 1 {
		t.Fatalf("items after second capture = %d, want 1", len(items))
	}
	if items[0].Price != "$12.99" || items[0].Currency != "$" {
		t.Errorf("item after price capture = %+v", items[0])
	}
	if creates != 1 || patches != 1 {
		t.Errorf("backend calls = %d creates, %d patches, want 1 and 1", creates, patches)
	}
	if patched["price"] != "$12.99" {
		t.Errorf("patch body = %v", patched)
	}

	if got := ctrl.Owners(); got[models.FieldTitle] != "Caesar Salad" {
		t.Errorf("owners = %v", got)
	}
}

// TestCaptureSinkLocalOnly keeps items local when syncing is off.
func TestCaptureSinkLocalOnly(t *testing.T) {
	st, err := store.OpenInMemory()
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer st.Close()

	sink := &captureSink{app: &app.Application{Store: st}}
	ctrl := session.New(nil, nil, sink)

	ctrl.Arm(models.FieldTitle)
	ev := guestLine(t, `EXTRACT:{"type":"data-extracted","payload":{"title":"Tomato Soup"}}`)
	if err := ctrl.HandleEvent(context.Background(), ev); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}

	items, err := st.ListItems(store.ItemFilter{Unsynced: true})
	if err != nil {
		t.Fatalf("ListItems: %v", err)
	}
	if len(items) != 1 || items[0].RemoteID != "" {
		t.Fatalf("unsynced items = %+v, want one local item", items)
	}
	if sink.count() != 1 {
		t.Errorf("sink count = %d, want 1", sink.count())
	}
}

// TestReadLinesStopsWhenAbandoned verifies the line reader exits once the
// prompt loop is gone, even with unread input pending.
func TestReadLinesStopsWhenAbandoned(t *testing.T) {
	stop := make(chan struct{})
	lines := readLines(strings.NewReader("title\nprice\ndone\n"), stop)
	close(stop)

	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-lines:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("line reader still running after stop")
		}
	}
}

func TestReadLinesDeliversUntilEOF(t *testing.T) {
	stop := make(chan struct{})
	defer close(stop)
	lines := readLines(strings.NewReader("title\nstop\n"), stop)

	var got []string
	for line := range lines {
		got = append(got, line)
	}
	if len(got) != 2 || got[0] != "title" || got[1] != "stop" {
		t.Errorf("lines = %v", got)
	}
}
