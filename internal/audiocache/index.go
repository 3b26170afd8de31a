package audiocache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// indexFile is the on-disk shape of cache_index.json.
type indexFile struct {
	Entries   map[string]Entry `json:"entries"`
	TotalSize int64            `json:"total_size"`
}

func loadIndex(path string) (map[string]Entry, int64, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return make(map[string]Entry), 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("read cache index: %w", err)
	}

	var onDisk indexFile
	if err := json.Unmarshal(data, &onDisk); err != nil {
		return nil, 0, fmt.Errorf("parse cache index: %w", err)
	}
	if onDisk.Entries == nil {
		onDisk.Entries = make(map[string]Entry)
	}
	for k, e := range onDisk.Entries {
		e.Key = Key{
			TrackID:    e.TrackID,
			SourceType: e.SourceType,
			SourceHash: e.SourceHash,
			FileIndex:  e.FileIndex,
		}
		onDisk.Entries[k] = e
	}
	return onDisk.Entries, onDisk.TotalSize, nil
}

func saveIndex(path string, entries map[string]Entry, totalSize int64) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create cache directory: %w", err)
	}

	onDisk := indexFile{Entries: entries, TotalSize: totalSize}
	data, err := json.MarshalIndent(onDisk, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal cache index: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".cache_index-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp index file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp index file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp index file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename index file into place: %w", err)
	}
	return nil
}
