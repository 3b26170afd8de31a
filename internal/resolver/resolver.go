// Package resolver implements the source resolver contract: converting
// (source_type, source_value) into a playable URL plus optional format
// hints, for the youtube/torrent/http/local source types. The embedded
// scraper server, plugin loader, and charts/lyrics integrations it talks to
// are external collaborators, out of scope for this module.
package resolver

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/freely-audio/core/internal/coreerr"
)

// Format carries the optional decode hints a resolve may return.
type Format struct {
	Ext           string
	ACodec        string
	FileSize      *int64
	SampleRate    uint32
	BitDepth      uint32
}

// Result is what Resolve returns on success.
type Result struct {
	URL    string
	Format Format
}

// SourceType enumerates the supported source types.
type SourceType string

const (
	SourceYouTube SourceType = "youtube"
	SourceTorrent SourceType = "torrent"
	SourceHTTP    SourceType = "http"
	SourceLocal   SourceType = "local"
)

// Resolver resolves source specs into playable URLs.
type Resolver struct {
	client    *httpClient
	localRoot string // optional root directory fuzzy-matched for loose local queries
}

// New builds a Resolver that talks to the local scraper server at baseURL
// (e.g. "http://localhost:8787") for youtube/torrent lookups.
func New(baseURL string, localRoot string) *Resolver {
	return &Resolver{client: newHTTPClient(baseURL), localRoot: localRoot}
}

// Resolve implements the resolver contract for all four source types.
func (r *Resolver) Resolve(ctx context.Context, sourceType SourceType, sourceValue string, fileIndex *uint32) (Result, error) {
	switch sourceType {
	case SourceLocal:
		return r.resolveLocal(sourceValue)
	case SourceHTTP:
		return Result{URL: sourceValue}, nil
	case SourceYouTube:
		return r.resolveYouTube(ctx, sourceValue)
	case SourceTorrent:
		return r.resolveTorrent(sourceValue, fileIndex)
	default:
		return Result{}, coreerr.New(coreerr.KindInvalidInput, fmt.Sprintf("unknown source type %q", sourceType))
	}
}

func (r *Resolver) resolveLocal(value string) (Result, error) {
	if strings.Contains(value, "\x00") {
		return Result{}, coreerr.New(coreerr.KindInvalidInput, "null byte in local path")
	}

	if _, err := os.Stat(value); err == nil {
		return Result{URL: "file://" + value}, nil
	}

	if r.localRoot == "" {
		return Result{}, coreerr.New(coreerr.KindResolverFailure, "local path not found: "+value)
	}

	match, err := r.fuzzyMatchLocal(value)
	if err != nil {
		return Result{}, err
	}
	return Result{URL: "file://" + match}, nil
}

// fuzzyMatchLocal handles loose local queries: values that look like a
// title rather than a path are fuzzy-matched against a directory listing
// rooted at r.localRoot.
func (r *Resolver) fuzzyMatchLocal(query string) (string, error) {
	entries, err := os.ReadDir(r.localRoot)
	if err != nil {
		return "", coreerr.Wrap(coreerr.KindResolverFailure, "read local library root", err)
	}

	var names []string
	byName := make(map[string]string)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		names = append(names, e.Name())
		byName[e.Name()] = filepath.Join(r.localRoot, e.Name())
	}

	ranked := fuzzy.RankFindFold(query, names)
	if len(ranked) == 0 {
		return "", coreerr.New(coreerr.KindResolverFailure, "no local file matched: "+query)
	}
	ranked.Sort()
	return byName[ranked[0].Target], nil
}
