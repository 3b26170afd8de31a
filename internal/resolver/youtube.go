package resolver

import (
	"context"
	"fmt"

	"github.com/freely-audio/core/internal/coreerr"
)

type youtubeInfoResponse struct {
	Success bool `json:"success"`
	Data    struct {
		Format struct {
			URL        string `json:"url"`
			Ext        string `json:"ext"`
			ACodec     string `json:"acodec"`
			Filesize   *int64 `json:"filesize"`
			SampleRate uint32 `json:"sample_rate"`
		} `json:"format"`
	} `json:"data"`
}

type youtubeStreamResponse struct {
	Success bool `json:"success"`
	Data    struct {
		URL string `json:"url"`
	} `json:"data"`
}

// resolveYouTube fetches GET /source/youtube?id=<id>&get=info from the
// local scraper server; on parse failure it falls back to
// GET /source/youtube?id=<id>&get=stream, which returns a bare URL with no
// format metadata.
func (r *Resolver) resolveYouTube(ctx context.Context, videoID string) (Result, error) {
	var info youtubeInfoResponse
	infoPath := fmt.Sprintf("/source/youtube?id=%s&get=info", videoID)
	if err := r.client.getJSON(ctx, infoPath, &info); err == nil && info.Success && info.Data.Format.URL != "" {
		return Result{
			URL: info.Data.Format.URL,
			Format: Format{
				Ext:        info.Data.Format.Ext,
				ACodec:     info.Data.Format.ACodec,
				FileSize:   info.Data.Format.Filesize,
				SampleRate: info.Data.Format.SampleRate,
			},
		}, nil
	}

	var stream youtubeStreamResponse
	streamPath := fmt.Sprintf("/source/youtube?id=%s&get=stream", videoID)
	if err := r.client.getJSON(ctx, streamPath, &stream); err != nil {
		return Result{}, coreerr.Wrap(coreerr.KindResolverFailure, "youtube resolve failed for "+videoID, err)
	}
	if !stream.Success || stream.Data.URL == "" {
		return Result{}, coreerr.New(coreerr.KindResolverFailure, "youtube stream endpoint returned no url for "+videoID)
	}
	return Result{URL: stream.Data.URL}, nil
}
