package resolver

import (
	"fmt"
	"strings"

	"github.com/freely-audio/core/internal/coreerr"
)

// InfoHashFromMagnetOrValue extracts a lowercase BitTorrent info-hash from a
// magnet URI's "xt=urn:btih:" parameter, or treats value as an already-bare
// hash if it isn't a magnet link.
func InfoHashFromMagnetOrValue(value string) (string, error) {
	if !strings.HasPrefix(value, "magnet:") {
		return strings.ToLower(value), nil
	}

	const marker = "xt=urn:btih:"
	idx := strings.Index(value, marker)
	if idx < 0 {
		return "", coreerr.New(coreerr.KindInvalidInput, "magnet link missing xt=urn:btih: parameter")
	}
	rest := value[idx+len(marker):]
	if amp := strings.IndexByte(rest, '&'); amp >= 0 {
		rest = rest[:amp]
	}
	if rest == "" {
		return "", coreerr.New(coreerr.KindInvalidInput, "empty info-hash in magnet link")
	}
	return strings.ToLower(rest), nil
}

// resolveTorrent maps a torrent source to the local streaming server's
// per-file endpoint. The torrent engine itself is an external collaborator;
// this resolver only knows how to name its HTTP surface.
func (r *Resolver) resolveTorrent(value string, fileIndex *uint32) (Result, error) {
	hash, err := InfoHashFromMagnetOrValue(value)
	if err != nil {
		return Result{}, err
	}

	idx := uint32(0)
	if fileIndex != nil {
		idx = *fileIndex
	}

	url := fmt.Sprintf("%s/stream/%s/%d", r.client.baseURL, hash, idx)
	return Result{URL: url}, nil
}
