package audiocache

import (
	"io"
	"log"
	"os"
)

// FinalizeOrDiscard implements the finalize-or-discard decision for a
// completed or interrupted capture. total is the expected final size, if
// known from the resolver's format metadata. downloadComplete reflects
// whether the capture callback observed end-of-download (a (nil, 0) call)
// before finalize was invoked.
func (c *Cache) FinalizeOrDiscard(key Key, partPath string, total *int64, downloadComplete bool, format Format) error {
	info, err := os.Stat(partPath)
	if err != nil {
		return nil // nothing to finalize
	}

	if info.Size() <= MinFinalizeBytes {
		if err := os.Remove(partPath); err != nil && !os.IsNotExist(err) {
			log.Printf("[audiocache] failed to delete undersized part %s: %v", partPath, err)
		}
		return nil
	}

	if total != nil && info.Size() < *total {
		return nil // resume next time
	}
	if total == nil && !downloadComplete {
		return nil // defer
	}

	finalPath := c.PathFor(key)

	if _, err := os.Stat(finalPath); err == nil {
		// Another worker already finalized this key (producer-wins rename
		// race). Treat as success; best-effort drop our own part file.
		_ = os.Remove(partPath)
		return c.ensureIndexed(key, finalPath, format)
	}

	if err := os.Rename(partPath, finalPath); err != nil {
		if err := copyThenDelete(partPath, finalPath); err != nil {
			return err
		}
	}

	finalInfo, err := os.Stat(finalPath)
	if err != nil {
		return err
	}

	return c.Put(key, key.Filename(), finalInfo.Size(), format)
}

func (c *Cache) ensureIndexed(key Key, finalPath string, format Format) error {
	c.mu.Lock()
	_, exists := c.entries[key.Filename()]
	c.mu.Unlock()
	if exists {
		return nil
	}
	info, err := os.Stat(finalPath)
	if err != nil {
		return err
	}
	return c.Put(key, key.Filename(), info.Size(), format)
}

func copyThenDelete(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}
