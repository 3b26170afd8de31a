package playback

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/freely-audio/core/internal/audiocache"
	"github.com/freely-audio/core/internal/audiolib"
	"github.com/freely-audio/core/internal/coreerr"
	"github.com/freely-audio/core/internal/events"
	"github.com/freely-audio/core/internal/historystore"
	"github.com/freely-audio/core/internal/resolver"
)

// EnsureInitialized loads the audio library binding if needed and
// (re)initializes the output device from current settings. If forceReinit
// is set and the engine was previously initialized, the current stream (if
// any) is stopped and freed and the library instance is freed before
// reloading.
func (e *Engine) EnsureInitialized(forceReinit bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ensureInitializedLocked(forceReinit)
}

func (e *Engine) ensureInitializedLocked(forceReinit bool) error {
	if !e.st.libInitialized {
		if err := e.lib.Load(e.candidatePaths); err != nil {
			return coreerr.Wrap(coreerr.KindLibraryLoad, "load audio library", err)
		}
	} else if forceReinit {
		if e.st.hasStream {
			e.lib.Stop(e.st.streamHandle)
			e.lib.FreeStream(e.st.streamHandle)
			e.st.hasStream = false
			e.st.playing = false
		}
		e.lib.Free()
	}

	settings := e.settings.Snapshot()
	e.lib.SetConfig(audiolib.ConfigNetTimeoutMs, settings.NetTimeoutMs)
	e.lib.SetConfig(audiolib.ConfigNetBufferMs, settings.NetBufferMs)
	e.lib.SetConfig(audiolib.ConfigBufferMs, settings.BufferSizeMs)
	e.lib.SetConfigPtr("net_agent", "freely-player/1.0")

	if err := e.lib.InitDevice(settings.DeviceID, settings.SampleRate, 0); err != nil {
		return coreerr.Wrap(coreerr.KindDeviceUnavailable, "init audio device", err)
	}

	if settings.HasUserOverride {
		if info, err := e.lib.CurrentDeviceInfo(); err == nil {
			log.Printf("[playback] device override active: %s (id=%d)", info.Name, info.ID)
		}
	}

	for _, err := range e.lib.LoadPlugins() {
		log.Printf("[playback] codec plugin load warning: %v", err)
	}

	e.st.libInitialized = true
	return nil
}

// SimplePlay plays url directly: a file stream for file:// URLs, otherwise
// a URL stream with no download callback. Used for already-resolved URLs
// and cache hits.
func (e *Engine) SimplePlay(url string) error {
	if strings.Contains(url, "\x00") {
		return coreerr.New(coreerr.KindInvalidInput, "null byte in url")
	}

	e.mu.Lock()
	if err := e.ensureInitializedLocked(false); err != nil {
		e.mu.Unlock()
		return err
	}
	e.takeCurrentStreamLocked()
	settings := e.settings.Snapshot()
	pendingSeek := e.st.seekOffset
	e.mu.Unlock()

	var handle audiolib.StreamHandle
	var info audiolib.ChannelInfo
	var err error

	if path, ok := strings.CutPrefix(url, "file://"); ok {
		handle, info, err = e.lib.CreateStreamFile(path)
	} else {
		handle, info, err = e.lib.CreateStreamURL(context.Background(), url, 0, audiolib.NoopSink())
	}
	if err != nil {
		return coreerr.Wrap(coreerr.KindStreamCreate, e.lib.ErrorText(err), err)
	}

	return e.commitNewStreamLocked(handle, info, url, settings, pendingSeek)
}

// takeCurrentStreamLocked removes (and stops/frees) the current stream
// handle if one exists, enforcing the at-most-one-active-stream invariant.
// Caller must hold e.mu.
func (e *Engine) takeCurrentStreamLocked() {
	if !e.st.hasStream {
		return
	}
	handle := e.st.streamHandle
	e.st.hasStream = false
	e.lib.Stop(handle)
	e.lib.FreeStream(handle)
	if e.st.capture != nil {
		e.st.capture.close()
		e.st.capture = nil
	}
}

// commitNewStreamLocked applies volume and any pending seek, starts
// playback, probes format, and commits the new transport state under the
// lock.
func (e *Engine) commitNewStreamLocked(handle audiolib.StreamHandle, info audiolib.ChannelInfo, url string, settings interface {
	AppliedVolume() float32
}, pendingSeek time.Duration) error {
	if err := e.lib.SetAttributeVolume(handle, settings.AppliedVolume()); err != nil {
		log.Printf("[playback] set volume failed: %v", err)
	}

	if pendingSeek > 0 {
		if bytePos, err := e.lib.SecondsToBytes(handle, pendingSeek.Seconds()); err == nil {
			_ = e.lib.SetPosition(handle, bytePos)
		}
	}

	if err := e.lib.Play(handle); err != nil {
		e.lib.FreeStream(handle)
		return coreerr.Wrap(coreerr.KindPlaybackStart, e.lib.ErrorText(err), err)
	}

	var duration time.Duration
	hasDuration := false
	if sizeBytes, err := e.lib.FilePosition(handle, audiolib.FilePosSize); err == nil && sizeBytes > 0 {
		duration = time.Duration(e.lib.BytesToSeconds(handle, sizeBytes) * float64(time.Second))
		hasDuration = true
	}

	e.mu.Lock()
	e.st.streamHandle = handle
	e.st.hasStream = true
	e.st.url = url
	e.st.playing = true
	e.st.startedAt = nowFunc()
	e.st.hasStartedAt = true
	e.st.hasPausedAt = false
	e.st.accumulatedPaused = 0
	e.st.ended = false
	e.st.lastError = nil
	e.st.seekOffset = 0
	e.st.duration = duration
	e.st.hasDuration = hasDuration
	e.st.codec = info.Codec
	e.st.sampleRate = info.SampleRate
	e.st.bitsPerSample = info.BitsPerSample
	st := e.snapshotStatusLocked()
	e.mu.Unlock()

	e.emitStatus(st)
	e.startStatusTimer()
	e.recordHistory(historystore.EventStart, pendingSeek, url)
	return nil
}

// PlayRequest is the input to PlayWithSource.
type PlayRequest struct {
	TrackID         string
	SourceType      resolver.SourceType
	SourceValue     string
	PreferCache     *bool
	FileIndex       *uint32
	ClientRequestID string
}

// PlayWithSource implements the resolver-aware, cache-first play algorithm
// (§4.3): derive the composite key, dedupe, emit an early ack, try the
// cache, resolve, gate on torrent verification, create a capturing stream,
// and commit.
func (e *Engine) PlayWithSource(ctx context.Context, req PlayRequest) error {
	sourceHash := resolver.DeriveSourceHash(req.SourceType, req.SourceValue)
	key := audiocache.Key{
		TrackID:    req.TrackID,
		SourceType: string(req.SourceType),
		SourceHash: sourceHash,
		FileIndex:  req.FileIndex,
	}
	compositeKey := key.Filename()

	cachePath, hasCache := e.cache.Get(key)

	e.mu.Lock()
	if dup := e.checkDedupeLocked(compositeKey, hasCache, req.TrackID, string(req.SourceType), sourceHash, req.FileIndex); dup {
		e.mu.Unlock()
		e.bus.Emit(events.PlaybackStartAck, map[string]any{
			"trackId": req.TrackID, "sourceType": string(req.SourceType), "sourceHash": sourceHash,
			"clientRequestId": req.ClientRequestID, "async": true, "dedup": true,
		})
		return nil
	}
	e.mu.Unlock()

	e.bus.Emit(events.PlaybackStartAck, map[string]any{
		"trackId": req.TrackID, "sourceType": string(req.SourceType), "sourceHash": sourceHash,
		"clientRequestId": req.ClientRequestID, "async": true, "early_ack": true,
	})

	preferCache := req.PreferCache == nil || *req.PreferCache
	if preferCache && hasCache {
		e.commitSourceIdentity(req, sourceHash)
		if err := e.SimplePlay("file://" + cachePath); err != nil {
			e.recordHistory(historystore.EventError, 0, err.Error())
			return err
		}
		e.bus.Emit(events.PlaybackStartComplete, map[string]any{
			"trackId": req.TrackID, "sourceType": string(req.SourceType), "sourceHash": sourceHash,
			"caching": false, "clientRequestId": req.ClientRequestID,
		})
		return nil
	}

	e.commitSourceIdentity(req, sourceHash)

	res, err := e.resolver.Resolve(ctx, req.SourceType, req.SourceValue, req.FileIndex)
	if err != nil {
		e.recordHistory(historystore.EventError, 0, err.Error())
		return coreerr.Wrap(coreerr.KindResolverFailure, "resolve source", err)
	}

	if req.SourceType == resolver.SourceTorrent && req.FileIndex != nil && e.torrents != nil {
		e.gateOnTorrentProgress(ctx, req.SourceValue, *req.FileIndex)
	}

	if strings.HasPrefix(res.URL, "file://") {
		if err := e.SimplePlay(res.URL); err != nil {
			e.recordHistory(historystore.EventError, 0, err.Error())
			return err
		}
		e.bus.Emit(events.PlaybackStartComplete, map[string]any{
			"trackId": req.TrackID, "sourceType": string(req.SourceType), "sourceHash": sourceHash,
			"caching": false, "clientRequestId": req.ClientRequestID,
		})
		return nil
	}

	if err := e.playWithCapture(ctx, key, res, req); err != nil {
		e.recordHistory(historystore.EventError, 0, err.Error())
		return err
	}
	e.bus.Emit(events.PlaybackStartComplete, map[string]any{
		"trackId": req.TrackID, "sourceType": string(req.SourceType), "sourceHash": sourceHash,
		"caching": true, "clientRequestId": req.ClientRequestID,
	})
	return nil
}

func (e *Engine) commitSourceIdentity(req PlayRequest, sourceHash string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.st.trackID = req.TrackID
	e.st.sourceType = string(req.SourceType)
	e.st.sourceHash = sourceHash
	e.st.fileIndex = req.FileIndex
}

// gateOnTorrentProgress polls the torrent engine until enough of the target
// file is verified, or the hard 15s cap elapses.
func (e *Engine) gateOnTorrentProgress(ctx context.Context, sourceValue string, fileIndex uint32) {
	const hardCap = 15 * time.Second
	deadline := nowFunc().Add(hardCap)

	infoHash, err := resolver.InfoHashFromMagnetOrValue(sourceValue)
	if err != nil {
		infoHash = sourceValue
	}

	for {
		progress, err := e.torrents.Progress(ctx, infoHash, fileIndex)
		if err == nil {
			min := progress.Total
			if int64(256*1024) < min {
				min = int64(256 * 1024)
			}
			if progress.VerifiedBytes >= min || progress.VerifiedBytes == progress.Total {
				return
			}
		}
		if nowFunc().After(deadline) {
			log.Printf("[playback] torrent gating: hard cap reached for %s, proceeding", infoHash)
			return
		}
		select {
		case <-time.After(500 * time.Millisecond):
		case <-ctx.Done():
			return
		}
	}
}

// playWithCapture creates a stream with a download-callback capture
// attached, backed by cache.PathFor/.part.
func (e *Engine) playWithCapture(ctx context.Context, key audiocache.Key, res resolver.Result, req PlayRequest) error {
	e.downloads.Ensure(key.Filename())

	var total *int64
	if res.Format.FileSize != nil {
		total = res.Format.FileSize
	}

	partPath := e.cache.PartPathFor(key)
	capture, err := openCapture(key, partPath, total)
	if err != nil {
		e.downloads.RequestCancel(key.Filename())
		e.downloads.Clear(key.Filename())
		e.bus.Emit(events.CacheDownloadError, map[string]any{
			"trackId": req.TrackID, "sourceType": string(req.SourceType), "sourceHash": key.SourceHash,
			"message": err.Error(),
		})
		return coreerr.Wrap(coreerr.KindDownloadFailed, "open capture file", err)
	}

	e.mu.Lock()
	if err := e.ensureInitializedLocked(false); err != nil {
		e.mu.Unlock()
		capture.close()
		return err
	}
	e.takeCurrentStreamLocked()
	settings := e.settings.Snapshot()
	pendingSeek := e.st.seekOffset
	e.mu.Unlock()

	handle, info, err := e.lib.CreateStreamURL(ctx, res.URL, 0, capture)
	if err != nil {
		capture.close()
		e.downloads.Clear(key.Filename())
		e.bus.Emit(events.CacheDownloadError, map[string]any{
			"trackId": req.TrackID, "sourceType": string(req.SourceType), "sourceHash": key.SourceHash,
			"message": err.Error(),
		})
		return coreerr.Wrap(coreerr.KindStreamCreate, e.lib.ErrorText(err), err)
	}

	time.Sleep(time.Duration(settings.AdditionalBufferWaitMs) * time.Millisecond)

	if info.Codec == "" {
		info.Codec = res.Format.ACodec
		info.SampleRate = res.Format.SampleRate
		info.BitsPerSample = res.Format.BitDepth
	}

	e.mu.Lock()
	e.st.capture = capture
	e.mu.Unlock()

	return e.commitNewStreamLocked(handle, info, res.URL, settings, pendingSeek)
}
