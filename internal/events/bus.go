// Package events implements the event sink the playback engine and cache
// publish to: playback:status, playback:start:ack, playback:start:complete,
// and the cache:download:* family.
package events

import "sync"

// Handler receives a single event's payload.
type Handler func(payload map[string]any)

// Bus is a simple typed pub/sub dispatcher. Handlers run on their own
// goroutine per publish so a slow subscriber never blocks the publisher
// (the playback engine and cache must never block on event delivery).
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string][]Handler
}

// NewBus returns an empty Bus.
func NewBus() *Bus {
	return &Bus{subscribers: make(map[string][]Handler)}
}

// Subscribe registers handler for every Emit call with the given name.
func (b *Bus) Subscribe(name string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[name] = append(b.subscribers[name], handler)
}

// Unsubscribe drops every handler registered for name.
func (b *Bus) Unsubscribe(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subscribers, name)
}

// Emit publishes payload to every handler registered for name.
func (b *Bus) Emit(name string, payload map[string]any) {
	b.mu.RLock()
	handlers := b.subscribers[name]
	b.mu.RUnlock()

	for _, h := range handlers {
		go h(payload)
	}
}

// Known event names, per the external interfaces contract.
const (
	PlaybackStatus         = "playback:status"
	PlaybackStartAck       = "playback:start:ack"
	PlaybackStartComplete  = "playback:start:complete"
	CacheDownloadProgress  = "cache:download:progress"
	CacheDownloadReady     = "cache:download:ready"
	CacheDownloadComplete  = "cache:download:complete"
	CacheDownloadError     = "cache:download:error"
	CacheDownloadPaused    = "cache:download:paused"
	CacheDownloadResumed   = "cache:download:resumed"
	CacheDownloadRemoved   = "cache:download:removed"
)
