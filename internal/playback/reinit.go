package playback

import (
	"context"
	"log"
	"time"

	"github.com/freely-audio/core/internal/resolver"
)

// reinitSnapshot is the state carried across a forced reinitialization.
type reinitSnapshot struct {
	url        string
	wasPlaying bool
	position   time.Duration

	hasSourceIdentity bool
	trackID           string
	sourceType        string
	sourceHash        string
	fileIndex         *uint32
}

// ReinitPreservingPlayback bridges a device/sample-rate/bit-depth/exclusive
// -mode/output-channels/buffer-size settings change without user-visible
// interruption beyond a brief silence: it snapshots the current transport,
// force-reinitializes the library, waits for the device to settle, restarts
// playback, seeks back on a best-effort basis, and restores the pause
// state.
func (e *Engine) ReinitPreservingPlayback() error {
	snap := e.snapshotForReinit()

	if err := e.EnsureInitialized(true); err != nil {
		return err
	}

	time.Sleep(reinitSettleDelay)

	if snap.url == "" {
		return nil
	}

	var err error
	if snap.hasSourceIdentity {
		// PlaybackState only carries source_hash, not the original
		// source_value, so a reinit restart can only re-derive it when the
		// hash is itself a valid value (youtube ids, torrent hashes). For
		// those, a cached file is found by play-with-source's cache-first
		// lookup before the resolver is reached. For http, local and other
		// sources the hash re-derives to a different key, so the cache
		// lookup misses and the hash is passed to the resolver as the
		// source value.
		err = e.PlayWithSource(context.Background(), PlayRequest{
			TrackID:     snap.trackID,
			SourceType:  resolver.SourceType(snap.sourceType),
			SourceValue: snap.sourceHash,
			FileIndex:   snap.fileIndex,
		})
	} else {
		err = e.SimplePlay(snap.url)
	}
	if err != nil {
		return err
	}

	if snap.position > 0 {
		if _, seekErr := e.Seek(snap.position.Seconds()); seekErr != nil {
			log.Printf("[playback] reinit: best-effort seek to %v failed: %v", snap.position, seekErr)
		}
	}

	if !snap.wasPlaying {
		if err := e.Pause(); err != nil {
			log.Printf("[playback] reinit: re-pause failed: %v", err)
		}
	}
	return nil
}

func (e *Engine) snapshotForReinit() reinitSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap := reinitSnapshot{
		url:        e.st.url,
		wasPlaying: e.st.playing,
	}
	if e.st.hasStream {
		if bytePos, err := e.lib.GetPosition(e.st.streamHandle); err == nil {
			snap.position = time.Duration(e.lib.BytesToSeconds(e.st.streamHandle, bytePos) * float64(time.Second))
		}
	}
	if e.st.trackID != "" {
		snap.hasSourceIdentity = true
		snap.trackID = e.st.trackID
		snap.sourceType = e.st.sourceType
		snap.sourceHash = e.st.sourceHash
		snap.fileIndex = e.st.fileIndex
	}
	return snap
}
