// Command playerd is the headless playback core process: it wires the
// audio library binding, cache, download registry, resolver, torrent
// engine, and event bus into a running playback engine and exposes no UI
// of its own. A front end drives it over whatever transport embeds this
// package (not included here; out of scope).
package main

import (
	"flag"
	"log"
	"path/filepath"

	"github.com/freely-audio/core/internal/audiocache"
	"github.com/freely-audio/core/internal/audiolib"
	"github.com/freely-audio/core/internal/audiosettings"
	"github.com/freely-audio/core/internal/config"
	"github.com/freely-audio/core/internal/downloadctl"
	"github.com/freely-audio/core/internal/events"
	"github.com/freely-audio/core/internal/historystore"
	"github.com/freely-audio/core/internal/playback"
	"github.com/freely-audio/core/internal/resolver"
	"github.com/freely-audio/core/internal/torrentengine"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml")
	resolverBaseURL := flag.String("resolver-url", "http://localhost:8787", "base URL of the scraper/resolver server")
	localRoot := flag.String("local-root", "", "root directory for fuzzy-matched local source lookups")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	cache, err := audiocache.Open(cfg.Storage.CacheDir)
	if err != nil {
		log.Fatalf("open audio cache: %v", err)
	}

	settings := audiosettings.Open(filepath.Join(filepath.Dir(cfg.Storage.HistoryPath), "audio_settings.json"))

	history, err := historystore.Open(cfg.Storage.HistoryPath)
	if err != nil {
		log.Fatalf("open history store: %v", err)
	}
	defer history.Close()

	torrents, err := torrentengine.New(cfg.Torrent.DataDir)
	if err != nil {
		log.Fatalf("start torrent engine: %v", err)
	}
	defer torrents.Close()

	res := resolver.New(*resolverBaseURL, *localRoot)
	bus := events.NewBus()
	lib := audiolib.NewBeepLibrary()

	// Shared across the playback engine's streaming capture path and the
	// out-of-band downloader below, so a pause/cancel against a key affects
	// whichever of the two is actually fetching it.
	downloads := downloadctl.New()

	bus.Subscribe(events.CacheDownloadError, func(payload map[string]any) {
		log.Printf("[cache] download error: %v", payload)
	})
	bus.Subscribe(events.CacheDownloadComplete, func(payload map[string]any) {
		log.Printf("[cache] download complete: %v", payload)
	})
	bus.Subscribe(events.CacheDownloadReady, func(payload map[string]any) {
		log.Printf("[cache] download ready for early playback: %v", payload)
	})

	// Drives unsolicited prefetch requests (e.g. "warm this track's cache
	// before the user hits play"); Start is called by whatever embeds this
	// package over its own transport, not by this process directly.
	downloader := audiocache.NewDownloader(cache, downloads, res, bus)

	engine := playback.New(lib, settings, cache, downloads, res, torrents, bus)
	engine.SetHistory(history)

	if err := engine.EnsureInitialized(false); err != nil {
		log.Fatalf("initialize audio library: %v", err)
	}
	defer engine.Stop()

	log.Printf("playerd ready (cache=%s, history=%s, downloader=%p)", cfg.Storage.CacheDir, cfg.Storage.HistoryPath, downloader)
	select {}
}
