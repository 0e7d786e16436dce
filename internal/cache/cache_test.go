package cache

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/menucollect/clipper/pkg/models"
)

func snap(url, html string) *models.PageSnapshot {
	return &models.PageSnapshot{URL: url, HTML: html, StatusCode: 200, FetchedAt: time.Now()}
}

func TestGetSet(t *testing.T) {
	m := NewMemory(0)
	defer m.Close()

	if _, ok := m.Get("missing"); ok {
		t.Error("hit on empty cache")
	}

	key := Key("https://menu.example/1")
	if err := m.Set(key, snap("https://menu.example/1", "<html></html>"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, ok := m.Get(key)
	if !ok || got.URL != "https://menu.example/1" {
		t.Errorf("Get = %+v, %v", got, ok)
	}
}

func TestExpiry(t *testing.T) {
	m := NewMemory(0)
	defer m.Close()

	key := Key("https://menu.example/expired")
	m.Set(key, snap(key, "x"), time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	if _, ok := m.Get(key); ok {
		t.Error("expired entry served")
	}
}

func TestLRUEviction(t *testing.T) {
	// Room for roughly two entries.
	big := strings.Repeat("x", 4096)
	m := NewMemory(11 * 1024)
	defer m.Close()

	for i := 0; i < 2; i++ {
		m.Set(fmt.Sprintf("k%d", i), snap("u", big), time.Minute)
	}
	// Touch k0 so k1 becomes the eviction candidate.
	if _, ok := m.Get("k0"); !ok {
		t.Fatal("k0 missing before eviction")
	}
	m.Set("k2", snap("u", big), time.Minute)

	if _, ok := m.Get("k1"); ok {
		t.Error("least recently used entry survived eviction")
	}
	if _, ok := m.Get("k0"); !ok {
		t.Error("recently used entry evicted")
	}
	if _, ok := m.Get("k2"); !ok {
		t.Error("new entry missing")
	}
}

func TestDeleteAndClear(t *testing.T) {
	m := NewMemory(0)
	defer m.Close()

	m.Set("a", snap("u", "x"), time.Minute)
	m.Set("b", snap("u", "x"), time.Minute)

	if err := m.Delete("a"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := m.Delete("a"); err != nil {
		t.Fatalf("Delete missing key: %v", err)
	}
	if _, ok := m.Get("a"); ok {
		t.Error("deleted entry served")
	}

	if err := m.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, ok := m.Get("b"); ok {
		t.Error("entry survived Clear")
	}
}

func TestSetReplacesExisting(t *testing.T) {
	m := NewMemory(0)
	defer m.Close()

	m.Set("k", snap("u", "old"), time.Minute)
	m.Set("k", snap("u", "new"), time.Minute)
	got, ok := m.Get("k")
	if !ok || got.HTML != "new" {
		t.Errorf("Get = %+v, %v", got, ok)
	}
}
