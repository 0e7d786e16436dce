package browser

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	cdpruntime "github.com/chromedp/cdproto/runtime"

	"github.com/menucollect/clipper/pkg/models"
)

// consoleCall builds a console.log CDP event whose arguments carry the given
// lines as string values.
func consoleCall(t *testing.T, lines ...string) *cdpruntime.EventConsoleAPICalled {
	t.Helper()
	args := make([]*cdpruntime.RemoteObject, 0, len(lines))
	for _, line := range lines {
		raw, err := json.Marshal(map[string]string{"type": "string", "value": line})
		if err != nil {
			t.Fatalf("marshal console arg: %v", err)
		}
		obj := &cdpruntime.RemoteObject{}
		if err := json.Unmarshal(raw, obj); err != nil {
			t.Fatalf("unmarshal console arg: %v", err)
		}
		args = append(args, obj)
	}
	return &cdpruntime.EventConsoleAPICalled{Type: cdpruntime.APITypeLog, Args: args}
}

func TestConsoleEventsQueueInOrder(t *testing.T) {
	s := &Session{
		handler: func(context.Context, *models.Event) {},
		events:  make(chan *models.Event, eventQueueSize),
	}

	s.onTargetEvent(consoleCall(t,
		"not a guest line",
		`EXTRACT:{"type":"template-field-selected","payload":{"field":"title","mapping":{"field":"title","selector":"h3.name"}}}`,
		`EXTRACT:{"type":"data-extracted","payload":{"field":"title","value":"Caesar Salad"}}`,
	))

	want := []string{models.EventTemplateFieldSelected, models.EventDataExtracted}
	for i, typ := range want {
		select {
		case ev := <-s.events:
			if ev.Type != typ {
				t.Fatalf("event %d: got type %q, want %q", i, ev.Type, typ)
			}
		default:
			t.Fatalf("event %d: queue empty, want %q", i, typ)
		}
	}
	select {
	case ev := <-s.events:
		t.Fatalf("unexpected extra event %q", ev.Type)
	default:
	}
}

func TestDispatchDeliversSequentially(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan string, 4)
	s := &Session{
		ctx:    ctx,
		events: make(chan *models.Event, eventQueueSize),
	}
	s.handler = func(_ context.Context, ev *models.Event) {
		// A slow handler must not let later events overtake earlier ones.
		if ev.Type == models.EventTemplateFieldSelected {
			time.Sleep(50 * time.Millisecond)
		}
		got <- ev.Type
	}
	go s.dispatchLoop()

	s.events <- &models.Event{Type: models.EventTemplateFieldSelected}
	s.events <- &models.Event{Type: models.EventDataExtracted}

	want := []string{models.EventTemplateFieldSelected, models.EventDataExtracted}
	for i, typ := range want {
		select {
		case have := <-got:
			if have != typ {
				t.Fatalf("delivery %d: got %q, want %q", i, have, typ)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("delivery %d: handler never ran", i)
		}
	}
}
