package playback

import (
	"os"
	"time"

	"github.com/freely-audio/core/internal/audiocache"
	"github.com/freely-audio/core/internal/events"
	"github.com/freely-audio/core/internal/historystore"
)

// Pause asks the library to pause the current stream. The library
// continues its background download, so a capture keeps progressing.
func (e *Engine) Pause() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.st.hasStream {
		return nil
	}
	if err := e.lib.Pause(e.st.streamHandle); err != nil {
		return err
	}
	if e.st.playing {
		e.st.playing = false
		e.st.pausedAt = nowFunc()
		e.st.hasPausedAt = true
	}
	st := e.snapshotStatusLocked()
	e.emitStatusUnlocked(st)
	return nil
}

// Resume restarts the current stream and accounts for time spent paused.
func (e *Engine) Resume() error {
	e.mu.Lock()
	if !e.st.hasStream {
		e.mu.Unlock()
		return nil
	}
	handle := e.st.streamHandle
	if e.st.hasPausedAt {
		e.st.accumulatedPaused += nowFunc().Sub(e.st.pausedAt)
		e.st.hasPausedAt = false
	}
	e.st.playing = true
	e.mu.Unlock()

	if err := e.lib.Play(handle); err != nil {
		return err
	}
	e.startStatusTimer()
	return nil
}

// Stop takes the current stream handle, reads its playback position for
// the history record, stops and frees it, resets transport fields, and (if
// a capture was attached) dispatches finalize-or-discard on its own
// goroutine and clears the download control entry for the key. Finalize
// works from the capture's own total and end-of-download flag; Stop does
// not read the library's download byte counters.
func (e *Engine) Stop() error {
	e.mu.Lock()
	if !e.st.hasStream {
		e.mu.Unlock()
		return nil
	}

	handle := e.st.streamHandle
	position, _ := e.lib.GetPosition(handle)
	positionSeconds := e.lib.BytesToSeconds(handle, position)
	e.st.hasStream = false
	e.lib.Stop(handle)
	e.lib.FreeStream(handle)

	e.st.playing = false
	e.st.hasStartedAt = false
	e.st.hasPausedAt = false
	e.st.accumulatedPaused = 0
	e.st.seekOffset = 0

	e.finalizeCaptureLocked()

	st := e.snapshotStatusLocked()
	e.mu.Unlock()

	e.emitStatusUnlocked(st)
	e.recordHistory(historystore.EventStop, time.Duration(positionSeconds*float64(time.Second)), "")
	return nil
}

// finalizeCaptureLocked hands the current capture (if any) to the cache's
// finalize-or-discard routine on its own goroutine, then clears it from
// engine state and the download control registry. Caller must hold e.mu.
func (e *Engine) finalizeCaptureLocked() {
	capture := e.st.capture
	if capture == nil {
		return
	}
	e.st.capture = nil

	capture.close()
	key := capture.key
	downloadComplete := capture.downloadComplete
	total := capture.totalBytes
	format := audiocache.Format{Codec: e.st.codec, SampleRate: e.st.sampleRate, BitsPerSample: e.st.bitsPerSample}

	e.downloads.Clear(key.Filename())

	go func() {
		partPath := e.cache.PartPathFor(key)
		err := e.cache.FinalizeOrDiscard(key, partPath, total, downloadComplete, format)
		if err != nil {
			e.bus.Emit(events.CacheDownloadError, map[string]any{
				"trackId": key.TrackID, "sourceType": key.SourceType, "sourceHash": key.SourceHash,
				"message": err.Error(),
			})
			return
		}
		if path, ok := e.cache.Get(key); ok {
			if info, statErr := os.Stat(path); statErr == nil {
				e.bus.Emit(events.CacheDownloadComplete, map[string]any{
					"trackId": key.TrackID, "sourceType": key.SourceType, "sourceHash": key.SourceHash,
					"cachedPath": path, "fileSize": info.Size(),
				})
			}
		}
	}()
}

func (e *Engine) emitStatusUnlocked(st Status) {
	e.emitStatus(st)
}
