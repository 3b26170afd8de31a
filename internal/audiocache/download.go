package audiocache

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/freely-audio/core/internal/coreerr"
	"github.com/freely-audio/core/internal/downloadctl"
	"github.com/freely-audio/core/internal/events"
	"github.com/freely-audio/core/internal/resolver"
)

// progressInterval bounds how often cache:download:progress is emitted
// during a long transfer.
const progressInterval = 500 * time.Millisecond

// downloadChunkSize is the read buffer size for the out-of-band fetch loop;
// cancellation and pause are checked once per chunk.
const downloadChunkSize = 32 * 1024

// Downloader drives a capture without playback: resolve, streaming HTTP
// fetch into ".part" honoring downloadctl pause/cancel, periodic progress
// events, a ready event once enough bytes have validated, then
// finalize-or-discard. It is the out-of-band counterpart to the playback
// engine's streaming capture path, sharing the same cache, registry, and
// event bus.
type Downloader struct {
	cache     *Cache
	downloads *downloadctl.Registry
	resolver  *resolver.Resolver
	bus       *events.Bus
	http      *retryablehttp.Client
}

// NewDownloader builds a Downloader wired to its collaborators, using the
// same retry count and nil logger as the resolver's own HTTP client, but no
// client-level timeout.
func NewDownloader(cache *Cache, downloads *downloadctl.Registry, res *resolver.Resolver, bus *events.Bus) *Downloader {
	client := retryablehttp.NewClient()
	client.RetryMax = 2
	client.HTTPClient.Timeout = 0 // streaming transfer; governed by ctx instead
	client.Logger = nil

	return &Downloader{cache: cache, downloads: downloads, resolver: res, bus: bus, http: client}
}

// Start resolves (trackID, sourceType, sourceValue, fileIndex) and runs the
// out-of-band download to completion (or cancellation/error), emitting
// progress/ready/complete/error events as it goes. It blocks until the
// download reaches a terminal state; callers needing concurrency should run
// it on their own goroutine.
func (d *Downloader) Start(ctx context.Context, trackID string, sourceType resolver.SourceType, sourceValue string, fileIndex *uint32) error {
	sourceHash := resolver.DeriveSourceHash(sourceType, sourceValue)
	key := Key{TrackID: trackID, SourceType: string(sourceType), SourceHash: sourceHash, FileIndex: fileIndex}

	// A concurrent request for an already-final file is idempotent.
	if path, ok := d.cache.Get(key); ok {
		if info, err := os.Stat(path); err == nil {
			d.emit(events.CacheDownloadComplete, key, map[string]any{"cachedPath": path, "fileSize": info.Size()})
			return nil
		}
	}

	d.downloads.Ensure(key.Filename())
	defer d.downloads.Clear(key.Filename())

	res, err := d.resolver.Resolve(ctx, sourceType, sourceValue, fileIndex)
	if err != nil {
		d.emitError(key, err)
		return coreerr.Wrap(coreerr.KindResolverFailure, "resolve source", err)
	}

	if path, ok := cutFilePrefix(res.URL); ok {
		// Already-local content: nothing to fetch or cache, it's reachable
		// directly at its resolved path.
		info, statErr := os.Stat(path)
		if statErr != nil {
			d.emitError(key, statErr)
			return coreerr.Wrap(coreerr.KindDownloadFailed, "stat local source", statErr)
		}
		d.emit(events.CacheDownloadComplete, key, map[string]any{"cachedPath": path, "fileSize": info.Size()})
		return nil
	}

	return d.fetch(ctx, key, res)
}

func cutFilePrefix(url string) (string, bool) {
	const prefix = "file://"
	if len(url) >= len(prefix) && url[:len(prefix)] == prefix {
		return url[len(prefix):], true
	}
	return "", false
}

func (d *Downloader) fetch(ctx context.Context, key Key, res resolver.Result) error {
	partPath := d.cache.PartPathFor(key)

	existing := int64(0)
	if info, err := os.Stat(partPath); err == nil {
		existing = info.Size()
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, res.URL, nil)
	if err != nil {
		d.emitError(key, err)
		return coreerr.Wrap(coreerr.KindDownloadFailed, "build download request", err)
	}
	if existing > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", existing))
	}

	resp, err := d.http.Do(req)
	if err != nil {
		d.emitError(key, err)
		return coreerr.Wrap(coreerr.KindDownloadFailed, "download request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := fmt.Errorf("download returned status %d", resp.StatusCode)
		d.emitError(key, err)
		return coreerr.Wrap(coreerr.KindDownloadFailed, "download request", err)
	}

	flags := os.O_CREATE | os.O_WRONLY | os.O_APPEND
	if resp.StatusCode == http.StatusOK {
		// Server ignored our Range request; start over.
		flags = os.O_CREATE | os.O_WRONLY | os.O_TRUNC
		existing = 0
	}
	file, err := os.OpenFile(partPath, flags, 0o644)
	if err != nil {
		d.emitError(key, err)
		return coreerr.Wrap(coreerr.KindDownloadFailed, "open part file", err)
	}
	defer file.Close()

	var total *int64
	if res.Format.FileSize != nil {
		total = res.Format.FileSize
	} else if resp.ContentLength > 0 {
		t := resp.ContentLength + existing
		total = &t
	}

	downloaded := existing
	lastProgress := time.Time{}
	validated := false
	readyEmitted := false
	var validationPrefix []byte

	buf := make([]byte, downloadChunkSize)
	for {
		d.downloads.WaitWhilePausedOrUntilCancel(ctx, key.Filename())
		if d.downloads.IsCancelled(key.Filename()) {
			file.Close()
			os.Remove(partPath)
			d.emit(events.CacheDownloadRemoved, key, map[string]any{"id": key.Filename()})
			return nil
		}

		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, err := file.Write(buf[:n]); err != nil {
				d.emitError(key, err)
				return coreerr.Wrap(coreerr.KindDownloadFailed, "write part file", err)
			}
			downloaded += int64(n)

			if !validated {
				remaining := int(MinFinalizeBytes) + 8192 - len(validationPrefix)
				if remaining > n {
					remaining = n
				}
				if remaining > 0 {
					validationPrefix = append(validationPrefix, buf[:remaining]...)
				}
				if int64(len(validationPrefix)) >= MinFinalizeBytes {
					ok, reason := ValidateContent(validationPrefix)
					if !ok {
						file.Close()
						os.Remove(partPath)
						d.emitValidationError(key, reason)
						return coreerr.New(coreerr.KindValidationFailed, reason)
					}
					validated = true
				}
			}
			if validated && !readyEmitted {
				d.emit(events.CacheDownloadReady, key, map[string]any{
					"tmpPath": partPath, "bytes_downloaded": downloaded, "total_bytes": total,
				})
				readyEmitted = true
			}

			if nowFunc().Sub(lastProgress) >= progressInterval {
				d.emit(events.CacheDownloadProgress, key, map[string]any{
					"bytes_downloaded": downloaded, "total_bytes": total, "inflight": true,
				})
				lastProgress = nowFunc()
			}
		}

		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			d.emitError(key, readErr)
			return coreerr.Wrap(coreerr.KindDownloadFailed, "read download stream", readErr)
		}
	}

	if err := file.Close(); err != nil {
		log.Printf("[audiocache] close part file %s: %v", partPath, err)
	}

	format := Format{Codec: res.Format.ACodec, SampleRate: res.Format.SampleRate, BitsPerSample: res.Format.BitDepth}
	if err := d.cache.FinalizeOrDiscard(key, partPath, total, true, format); err != nil {
		d.emitError(key, err)
		return err
	}

	if path, ok := d.cache.Get(key); ok {
		if info, err := os.Stat(path); err == nil {
			d.emit(events.CacheDownloadComplete, key, map[string]any{"cachedPath": path, "fileSize": info.Size()})
		}
	}
	return nil
}

// Pause sets key's paused flag and emits cache:download:paused.
func (d *Downloader) Pause(trackID, sourceType, sourceHash string, fileIndex *uint32) {
	key := Key{TrackID: trackID, SourceType: sourceType, SourceHash: sourceHash, FileIndex: fileIndex}
	d.downloads.SetPaused(key.Filename(), true)
	d.emit(events.CacheDownloadPaused, key, map[string]any{"id": key.Filename()})
}

// Resume clears key's paused flag and emits cache:download:resumed.
func (d *Downloader) Resume(trackID, sourceType, sourceHash string, fileIndex *uint32) {
	key := Key{TrackID: trackID, SourceType: sourceType, SourceHash: sourceHash, FileIndex: fileIndex}
	d.downloads.SetPaused(key.Filename(), false)
	d.emit(events.CacheDownloadResumed, key, map[string]any{"id": key.Filename()})
}

// Remove requests cancellation of an in-flight download for key; the fetch
// loop notices on its next chunk and unlinks the part file itself.
func (d *Downloader) Remove(trackID, sourceType, sourceHash string, fileIndex *uint32) {
	key := Key{TrackID: trackID, SourceType: sourceType, SourceHash: sourceHash, FileIndex: fileIndex}
	d.downloads.RequestCancel(key.Filename())
}

func (d *Downloader) emit(name string, key Key, extra map[string]any) {
	payload := map[string]any{
		"trackId": key.TrackID, "sourceType": key.SourceType, "sourceHash": key.SourceHash,
	}
	for k, v := range extra {
		payload[k] = v
	}
	d.bus.Emit(name, payload)
}

func (d *Downloader) emitError(key Key, err error) {
	d.emit(events.CacheDownloadError, key, map[string]any{"message": err.Error()})
}

func (d *Downloader) emitValidationError(key Key, reason string) {
	d.emit(events.CacheDownloadError, key, map[string]any{"message": reason})
}
