// Package torrentengine implements the torrent engine contract (§6 of the
// external interfaces): list_files, progress, start_download, pause,
// resume, remove, file_path. Only Progress is consumed by the playback
// engine's gating step; the rest exists so this is a complete, usable
// collaborator rather than a stub.
package torrentengine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/anacrolix/torrent"

	"github.com/freely-audio/core/internal/coreerr"
)

// Progress is the per-file download progress the gating step polls.
type Progress struct {
	VerifiedBytes int64
	OnDiskBytes   int64
	Total         int64
	DownSpeed     int64
	Peers         int
}

// Engine is the narrow interface the playback engine's torrent gating step
// depends on, so it can be exercised with a fake in tests without pulling
// in anacrolix/torrent.
type Engine interface {
	Progress(ctx context.Context, infoHash string, fileIndex uint32) (Progress, error)
}

// File describes one file within a torrent, for listing.
type File struct {
	Index  uint32
	Path   string
	Length int64
}

// AnacrolixEngine is the concrete torrent engine backed by
// github.com/anacrolix/torrent.
type AnacrolixEngine struct {
	client *torrent.Client

	mu       sync.Mutex
	torrents map[string]*torrent.Torrent
}

// New starts an anacrolix/torrent client rooted at dataDir.
func New(dataDir string) (*AnacrolixEngine, error) {
	cfg := torrent.NewDefaultClientConfig()
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	client, err := torrent.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("start torrent client: %w", err)
	}
	return &AnacrolixEngine{client: client, torrents: make(map[string]*torrent.Torrent)}, nil
}

// Close shuts down the underlying torrent client.
func (e *AnacrolixEngine) Close() {
	e.client.Close()
}

func (e *AnacrolixEngine) getOrAddMagnet(magnetOrHash string) (*torrent.Torrent, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if t, ok := e.torrents[magnetOrHash]; ok {
		return t, nil
	}

	t, err := e.client.AddMagnet(magnetOrHash)
	if err != nil {
		return nil, fmt.Errorf("add magnet: %w", err)
	}
	e.torrents[magnetOrHash] = t
	return t, nil
}

// StartDownload begins downloading magnetOrHash, waiting (bounded by ctx)
// for torrent metadata to arrive.
func (e *AnacrolixEngine) StartDownload(ctx context.Context, magnetOrHash string) error {
	t, err := e.getOrAddMagnet(magnetOrHash)
	if err != nil {
		return err
	}
	select {
	case <-t.GotInfo():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ListFiles returns the torrent's file list. Requires metadata to already
// be available (call StartDownload first).
func (e *AnacrolixEngine) ListFiles(magnetOrHash string) ([]File, error) {
	e.mu.Lock()
	t, ok := e.torrents[magnetOrHash]
	e.mu.Unlock()
	if !ok {
		return nil, coreerr.New(coreerr.KindResolverFailure, "unknown torrent: "+magnetOrHash)
	}

	var out []File
	for i, f := range t.Files() {
		out = append(out, File{Index: uint32(i), Path: f.Path(), Length: f.Length()})
	}
	return out, nil
}

// FilePath returns the on-disk path of a torrent's file by index, once its
// metadata is available.
func (e *AnacrolixEngine) FilePath(magnetOrHash string, fileIndex uint32) (string, error) {
	e.mu.Lock()
	t, ok := e.torrents[magnetOrHash]
	e.mu.Unlock()
	if !ok {
		return "", coreerr.New(coreerr.KindResolverFailure, "unknown torrent: "+magnetOrHash)
	}
	files := t.Files()
	if int(fileIndex) >= len(files) {
		return "", coreerr.New(coreerr.KindInvalidInput, "file index out of range")
	}
	return files[fileIndex].Path(), nil
}

// Pause disallows further peer data transfer for magnetOrHash.
func (e *AnacrolixEngine) Pause(magnetOrHash string) error {
	e.mu.Lock()
	t, ok := e.torrents[magnetOrHash]
	e.mu.Unlock()
	if !ok {
		return coreerr.New(coreerr.KindResolverFailure, "unknown torrent: "+magnetOrHash)
	}
	t.DisallowDataDownload()
	return nil
}

// Resume re-allows peer data transfer for magnetOrHash.
func (e *AnacrolixEngine) Resume(magnetOrHash string) error {
	e.mu.Lock()
	t, ok := e.torrents[magnetOrHash]
	e.mu.Unlock()
	if !ok {
		return coreerr.New(coreerr.KindResolverFailure, "unknown torrent: "+magnetOrHash)
	}
	t.AllowDataDownload()
	return nil
}

// Remove drops a torrent from the engine entirely.
func (e *AnacrolixEngine) Remove(magnetOrHash string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if t, ok := e.torrents[magnetOrHash]; ok {
		t.Drop()
		delete(e.torrents, magnetOrHash)
	}
}

// Progress implements the Engine interface: verified (on-disk, hash-checked)
// bytes, downloaded-but-unverified bytes, total length, current download
// speed, and connected peer count for one file of a torrent.
func (e *AnacrolixEngine) Progress(ctx context.Context, magnetOrHash string, fileIndex uint32) (Progress, error) {
	e.mu.Lock()
	t, ok := e.torrents[magnetOrHash]
	e.mu.Unlock()
	if !ok {
		return Progress{}, coreerr.New(coreerr.KindResolverFailure, "unknown torrent: "+magnetOrHash)
	}

	select {
	case <-t.GotInfo():
	case <-ctx.Done():
		return Progress{}, ctx.Err()
	}

	files := t.Files()
	if int(fileIndex) >= len(files) {
		return Progress{}, coreerr.New(coreerr.KindInvalidInput, "file index out of range")
	}
	f := files[fileIndex]

	stats := t.Stats()
	return Progress{
		VerifiedBytes: f.BytesCompleted(),
		OnDiskBytes:   f.BytesCompleted(),
		Total:         f.Length(),
		DownSpeed:     stats.ConnStats.BytesReadData.Int64(),
		Peers:         stats.ActivePeers,
	}, nil
}

// pollInterval is the torrent-gating poll interval used by the playback
// engine (§4.3 step 6).
const pollInterval = 500 * time.Millisecond

// PollInterval exposes the gating poll cadence so callers don't hardcode it.
func PollInterval() time.Duration { return pollInterval }
