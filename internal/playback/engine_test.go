package playback

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/freely-audio/core/internal/audiocache"
	"github.com/freely-audio/core/internal/audiosettings"
	"github.com/freely-audio/core/internal/downloadctl"
	"github.com/freely-audio/core/internal/events"
	"github.com/freely-audio/core/internal/resolver"
)

func newTestEngine(t *testing.T) (*Engine, *fakeLibrary, *audiocache.Cache) {
	t.Helper()
	dir := t.TempDir()
	cache, err := audiocache.Open(filepath.Join(dir, "cache"))
	if err != nil {
		t.Fatal(err)
	}
	settings := audiosettings.Open(filepath.Join(dir, "audio_settings.json"))
	lib := newFakeLibrary()
	res := resolver.New("http://localhost:0", "")
	eng := New(lib, settings, cache, downloadctl.New(), res, nil, events.NewBus())
	return eng, lib, cache
}

func TestSimplePlayLocalFile(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "song.mp3")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := eng.SimplePlay("file://" + path); err != nil {
		t.Fatal(err)
	}

	st := eng.Status()
	if !st.Playing {
		t.Error("expected playing after SimplePlay")
	}
	if st.Duration == nil {
		t.Error("expected duration to be probed")
	}
}

func TestSimplePlayRejectsNullByte(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	if err := eng.SimplePlay("file://\x00bad"); err == nil {
		t.Fatal("expected error for null byte in url")
	}
}

func TestPauseResumeAccumulatesPausedDuration(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "song.mp3")
	os.WriteFile(path, []byte("x"), 0o644)

	if err := eng.SimplePlay("file://" + path); err != nil {
		t.Fatal(err)
	}
	if err := eng.Pause(); err != nil {
		t.Fatal(err)
	}
	st := eng.Status()
	if st.Playing {
		t.Error("expected not playing after pause")
	}
	if err := eng.Resume(); err != nil {
		t.Fatal(err)
	}
	st = eng.Status()
	if !st.Playing {
		t.Error("expected playing after resume")
	}
}

func TestStopFinalizesCaptureAsUndersizedDiscard(t *testing.T) {
	eng, _, cache := newTestEngine(t)

	sourceValue := "https://cdn.example.com/track.mp3"
	req := PlayRequest{TrackID: "trackX", SourceType: resolver.SourceHTTP, SourceValue: sourceValue}
	if err := eng.PlayWithSource(context.Background(), req); err != nil {
		t.Fatal(err)
	}
	if err := eng.Stop(); err != nil {
		t.Fatal(err)
	}

	// The fake library's CreateStreamURL writes only 1024 bytes to the
	// sink, at or below MinFinalizeBytes, so finalize discards the part
	// file rather than promoting it. Give the detached finalize goroutine
	// a moment.
	time.Sleep(50 * time.Millisecond)

	sourceHash := resolver.DeriveSourceHash(resolver.SourceHTTP, sourceValue)
	key := audiocache.Key{TrackID: "trackX", SourceType: "http", SourceHash: sourceHash}
	if _, ok := cache.Get(key); ok {
		t.Error("expected no cache entry for an undersized capture")
	}
}

func TestPlayWithSourceDedupeSuppressesDuplicateWithinWindow(t *testing.T) {
	eng, _, _ := newTestEngine(t)

	var acks []map[string]any
	eng.bus.Subscribe(events.PlaybackStartAck, func(payload map[string]any) {
		acks = append(acks, payload)
	})

	// SourceHTTP passes through without a network round trip, so the
	// dedupe window (not resolver availability) is what's under test.
	req := PlayRequest{TrackID: "trackX", SourceType: resolver.SourceHTTP, SourceValue: "https://cdn.example.com/track.mp3"}
	if err := eng.PlayWithSource(context.Background(), req); err != nil {
		t.Fatal(err)
	}
	if err := eng.PlayWithSource(context.Background(), req); err != nil {
		t.Fatal(err)
	}

	time.Sleep(20 * time.Millisecond)

	var dedupCount int
	for _, a := range acks {
		if d, _ := a["dedup"].(bool); d {
			dedupCount++
		}
	}
	if dedupCount != 1 {
		t.Errorf("expected exactly one dedup ack, got %d (acks=%v)", dedupCount, acks)
	}
}

func TestPlayWithSourceCacheHitSkipsResolver(t *testing.T) {
	eng, _, cache := newTestEngine(t)

	sourceValue := "https://cdn.example.com/track.mp3"
	sourceHash := resolver.DeriveSourceHash(resolver.SourceHTTP, sourceValue)
	key := audiocache.Key{TrackID: "trackX", SourceType: "http", SourceHash: sourceHash}
	cachedFile := filepath.Join(cache.Dir(), key.Filename())
	if err := os.WriteFile(cachedFile, make([]byte, 5242880), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := cache.Put(key, key.Filename(), 5242880, audiocache.Format{}); err != nil {
		t.Fatal(err)
	}

	var completes []map[string]any
	eng.bus.Subscribe(events.PlaybackStartComplete, func(payload map[string]any) {
		completes = append(completes, payload)
	})

	req := PlayRequest{TrackID: "trackX", SourceType: resolver.SourceHTTP, SourceValue: sourceValue}
	if err := eng.PlayWithSource(context.Background(), req); err != nil {
		t.Fatal(err)
	}

	time.Sleep(20 * time.Millisecond)

	if len(completes) != 1 {
		t.Fatalf("expected one start:complete event, got %d", len(completes))
	}
	if caching, _ := completes[0]["caching"].(bool); caching {
		t.Error("expected caching=false for a cache hit")
	}
}

func TestSeekSkipsWhenAlreadyClose(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "song.mp3")
	os.WriteFile(path, []byte("x"), 0o644)
	if err := eng.SimplePlay("file://" + path); err != nil {
		t.Fatal(err)
	}

	res, err := eng.Seek(0)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Skipped {
		t.Error("expected skipped=true when already at target")
	}
}

func TestSeekBeyondBufferedReturnsWarningAndResetsClock(t *testing.T) {
	eng, lib, _ := newTestEngine(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "song.mp3")
	os.WriteFile(path, []byte("x"), 0o644)
	if err := eng.SimplePlay("file://" + path); err != nil {
		t.Fatal(err)
	}

	// Shrink the stream's reported length to simulate "only 30s buffered
	// so far" without changing the already-probed 600s duration, then seek
	// to 300s: within duration, but beyond what's buffered.
	eng.mu.Lock()
	handle := eng.st.streamHandle
	eng.mu.Unlock()
	lib.mu.Lock()
	lib.streams[handle].lengthBytes = 44100 * 30
	lib.mu.Unlock()

	before := time.Now()
	res, err := eng.Seek(300)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Warning {
		t.Error("expected Warning=true for NOT_AVAILABLE seek")
	}
	eng.mu.Lock()
	startedAt, seekOffset := eng.st.startedAt, eng.st.seekOffset
	eng.mu.Unlock()
	if startedAt.Before(before) {
		t.Error("expected the playback clock to be restarted by the NOT_AVAILABLE seek")
	}
	if seekOffset != 300*time.Second {
		t.Errorf("seekOffset = %v, want 300s", seekOffset)
	}
}

func TestEndOfTrackDetectionFiresOnce(t *testing.T) {
	eng, lib, _ := newTestEngine(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "song.mp3")
	os.WriteFile(path, []byte("x"), 0o644)
	if err := eng.SimplePlay("file://" + path); err != nil {
		t.Fatal(err)
	}

	eng.mu.Lock()
	handle := eng.st.streamHandle
	eng.mu.Unlock()

	lib.mu.Lock()
	s := lib.streams[handle]
	s.position = s.lengthBytes
	lib.mu.Unlock()

	st1 := eng.Status()
	if !st1.Ended {
		t.Fatal("expected natural end to be detected")
	}
	st2 := eng.Status()
	if !st2.Ended {
		t.Error("expected ended to remain true")
	}
}
