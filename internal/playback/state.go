// Package playback implements the playback engine: the singleton wrapper
// around the audio library binding that owns the one active decode/output
// stream, tracks transport state, performs seeks, detects end-of-track, and
// applies volume/mute. It is the component the streaming-with-capture
// pipeline and the cache's finalize-or-discard protocol are driven from.
package playback

import (
	"sync"
	"time"

	"github.com/freely-audio/core/internal/audiocache"
	"github.com/freely-audio/core/internal/audiolib"
	"github.com/freely-audio/core/internal/audiosettings"
	"github.com/freely-audio/core/internal/downloadctl"
	"github.com/freely-audio/core/internal/events"
	"github.com/freely-audio/core/internal/historystore"
	"github.com/freely-audio/core/internal/resolver"
	"github.com/freely-audio/core/internal/torrentengine"
)

// startupGrace is the window after started_at during which a
// library-reported STOP does not mean end-of-track.
const startupGrace = 1200 * time.Millisecond

// statusInterval is the cadence of the background status timer.
const statusInterval = 500 * time.Millisecond

// reinitSettleDelay is the pause between reinitializing the library and
// restarting playback, to let the device settle.
const reinitSettleDelay = 100 * time.Millisecond

// state is the singleton PlaybackState: everything the engine owns behind
// its one mutex. Never spread across package-level globals.
type state struct {
	url          string
	streamHandle audiolib.StreamHandle
	hasStream    bool

	playing  bool
	startedAt time.Time
	hasStartedAt bool
	pausedAt     time.Time
	hasPausedAt  bool
	accumulatedPaused time.Duration

	duration    time.Duration
	hasDuration bool
	seekOffset  time.Duration
	ended       bool
	lastError   error

	libInitialized bool

	trackID    string
	sourceType string
	sourceHash string
	fileIndex  *uint32

	capture *captureState

	codec         string
	sampleRate    uint32
	bitsPerSample uint32

	// recent tracks the dedupe window: composite key -> time of last start.
	recent map[string]recentStart

	statusStop chan struct{}
}

type recentStart struct {
	at       time.Time
	hadCache bool
}

func newState() *state {
	return &state{recent: make(map[string]recentStart)}
}

// Engine is the playback engine. All public methods lock mu, do their work,
// and release it before any blocking operation; long operations capture
// what they need under the lock, release it, do the work, then reacquire to
// commit results.
type Engine struct {
	mu sync.Mutex
	st *state

	lib       audiolib.Library
	settings  *audiosettings.Store
	cache     *audiocache.Cache
	downloads *downloadctl.Registry
	resolver  *resolver.Resolver
	torrents  torrentengine.Engine
	bus       *events.Bus
	history   *historystore.Store

	candidatePaths []string
}

// New builds an Engine wired to its collaborators. candidatePaths is kept
// for parity with the audio library binding's load-library step even
// though this backend has no shared library to search for.
func New(lib audiolib.Library, settings *audiosettings.Store, cache *audiocache.Cache, downloads *downloadctl.Registry, res *resolver.Resolver, torrents torrentengine.Engine, bus *events.Bus) *Engine {
	return &Engine{
		st:        newState(),
		lib:       lib,
		settings:  settings,
		cache:     cache,
		downloads: downloads,
		resolver:  res,
		torrents:  torrents,
		bus:       bus,
	}
}

// Status is the value returned by Status() and emitted on playback:status.
type Status struct {
	URL           string
	Playing       bool
	Position      time.Duration
	Duration      *time.Duration
	Ended         bool
	Error         string
	Codec         string
	SampleRate    uint32
	BitsPerSample uint32
}

// SetHistory attaches an optional history store. When unset, history
// recording is a silent no-op: history is diagnostic, never load-bearing.
func (e *Engine) SetHistory(h *historystore.Store) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.history = h
}

func (e *Engine) recordHistory(kind historystore.EventKind, position time.Duration, detail string) {
	e.mu.Lock()
	h := e.history
	trackID := e.st.trackID
	sourceType := e.st.sourceType
	e.mu.Unlock()

	if h == nil {
		return
	}
	if trackID == "" {
		trackID = "unknown"
	}
	h.Record(historystore.Event{
		TrackID:    trackID,
		SourceType: sourceType,
		Kind:       kind,
		Position:   position,
		Detail:     detail,
		At:         nowFunc(),
	})
}

func (e *Engine) emitStatus(st Status) {
	payload := map[string]any{
		"url":      st.URL,
		"playing":  st.Playing,
		"position": st.Position.Seconds(),
		"ended":    st.Ended,
	}
	if st.Duration != nil {
		payload["duration"] = st.Duration.Seconds()
	}
	if st.Error != "" {
		payload["error"] = st.Error
	}
	if st.Codec != "" {
		payload["codec"] = st.Codec
		payload["sampleRate"] = st.SampleRate
		payload["bitsPerSample"] = st.BitsPerSample
	}
	e.bus.Emit(events.PlaybackStatus, payload)
}
