// Package cache keeps fetched page snapshots in memory so a template run
// that visits the same menu page twice pays for it once.
package cache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/menucollect/clipper/pkg/models"
	"github.com/rs/zerolog/log"
)

// Cache is the snapshot cache interface.
type Cache interface {
	// Get returns the cached snapshot for key, if present and fresh.
	Get(key string) (*models.PageSnapshot, bool)

	// Set stores a snapshot under key for ttl.
	Set(key string, snap *models.PageSnapshot, ttl time.Duration) error

	// Delete drops key. Missing keys are not an error.
	Delete(key string) error

	// Clear drops everything.
	Clear() error

	// Close stops background maintenance.
	Close()
}

type entry struct {
	snap      *models.PageSnapshot
	expiresAt time.Time
	key       string
}

// Memory is an in-memory cache with LRU eviction by approximate byte size.
type Memory struct {
	mu      sync.Mutex
	store   map[string]*list.Element
	lruList *list.List
	maxSize int64
	size    int64
	cancel  context.CancelFunc
}

// NewMemory creates a cache holding at most maxSizeBytes of page HTML.
func NewMemory(maxSizeBytes int64) *Memory {
	if maxSizeBytes <= 0 {
		maxSizeBytes = 50 * 1024 * 1024
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &Memory{
		store:   make(map[string]*list.Element),
		lruList: list.New(),
		maxSize: maxSizeBytes,
		cancel:  cancel,
	}
	go m.cleanupExpired(ctx)
	return m
}

func entrySize(snap *models.PageSnapshot) int64 {
	// Struct overhead is noise next to the HTML.
	return int64(len(snap.HTML)+len(snap.Title)) + 1024
}

func (m *Memory) Get(key string) (*models.PageSnapshot, bool) {
	m.mu.Lock()
	element, ok := m.store[key]
	if !ok {
		m.mu.Unlock()
		return nil, false
	}
	e := element.Value.(*entry)
	if time.Now().After(e.expiresAt) {
		m.removeLocked(element)
		m.mu.Unlock()
		return nil, false
	}
	m.lruList.MoveToFront(element)
	m.mu.Unlock()

	log.Debug().Str("key", key).Msg("Snapshot cache hit")
	return e.snap, true
}

func (m *Memory) Set(key string, snap *models.PageSnapshot, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	size := entrySize(snap)

	m.mu.Lock()
	defer m.mu.Unlock()

	if element, ok := m.store[key]; ok {
		old := element.Value.(*entry)
		m.size -= entrySize(old.snap)
		element.Value = &entry{snap: snap, expiresAt: time.Now().Add(ttl), key: key}
		m.lruList.MoveToFront(element)
		m.size += size
		return nil
	}

	for m.size+size > m.maxSize && m.lruList.Len() > 0 {
		m.removeLocked(m.lruList.Back())
	}

	element := m.lruList.PushFront(&entry{snap: snap, expiresAt: time.Now().Add(ttl), key: key})
	m.store[key] = element
	m.size += size
	return nil
}

func (m *Memory) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if element, ok := m.store[key]; ok {
		m.removeLocked(element)
	}
	return nil
}

func (m *Memory) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store = make(map[string]*list.Element)
	m.lruList = list.New()
	m.size = 0
	return nil
}

func (m *Memory) Close() {
	m.cancel()
}

// removeLocked drops an element. Caller holds mu.
func (m *Memory) removeLocked(element *list.Element) {
	if element == nil {
		return
	}
	e := element.Value.(*entry)
	m.lruList.Remove(element)
	delete(m.store, e.key)
	m.size -= entrySize(e.snap)
}

func (m *Memory) cleanupExpired(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			now := time.Now()
			m.mu.Lock()
			var next *list.Element
			for element := m.lruList.Front(); element != nil; element = next {
				next = element.Next()
				if now.After(element.Value.(*entry).expiresAt) {
					m.removeLocked(element)
				}
			}
			m.mu.Unlock()
		case <-ctx.Done():
			return
		}
	}
}

// Key builds the cache key for a fetched URL.
func Key(url string) string {
	return url
}
