package publish

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dropDatabas3/crosspost/internal/platform"
)

// TikTok publishes through the direct-post upload protocol: fetch the source
// video into memory, init an upload session sized as one chunk below the
// threshold or fixed chunks above it, PUT the bytes, then poll the publish
// status until PUBLISH_COMPLETE. Photos go through the simpler
// PULL_FROM_URL content flow with no upload.
type TikTok struct {
	base
	poll poller

	singleChunkMax int64
	chunkSize      int64
	maxFetchBytes  int64
}

func NewTikTok(def platform.Definition, creds CredentialSource) *TikTok {
	return &TikTok{
		base:           newBase(def, creds),
		poll:           poller{interval: 2 * time.Second, maxAttempts: 30},
		singleChunkMax: 64 << 20,
		chunkSize:      10 << 20,
		maxFetchBytes:  int64(def.Caps.MaxFileSizeMB) << 20,
	}
}

func (a *TikTok) Platform() string { return a.def.Name }

type tiktokInitRequest struct {
	PostInfo   tiktokPostInfo   `json:"post_info"`
	SourceInfo tiktokSourceInfo `json:"source_info"`
}

type tiktokPostInfo struct {
	Title        string `json:"title"`
	PrivacyLevel string `json:"privacy_level"`
}

type tiktokSourceInfo struct {
	Source          string   `json:"source"`
	VideoSize       int64    `json:"video_size,omitempty"`
	ChunkSize       int64    `json:"chunk_size,omitempty"`
	TotalChunkCount int      `json:"total_chunk_count,omitempty"`
	PhotoImages     []string `json:"photo_images,omitempty"`
}

type tiktokInitResponse struct {
	Data struct {
		PublishID string `json:"publish_id"`
		UploadURL string `json:"upload_url"`
	} `json:"data"`
	Error tiktokError `json:"error"`
}

type tiktokStatusResponse struct {
	Data struct {
		Status     string `json:"status"`
		FailReason string `json:"fail_reason"`
	} `json:"data"`
	Error tiktokError `json:"error"`
}

type tiktokError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e tiktokError) ok() bool { return e.Code == "" || e.Code == "ok" }

func (a *TikTok) Publish(ctx context.Context, req Request) *PublishResult {
	caption, err := a.prepare(req.Content)
	if err != nil {
		return a.fail(err)
	}
	media := req.Content.Media
	if media == nil {
		return a.fail(errors.New("tiktok requires media"))
	}

	token, err := a.token(ctx, req.UserID)
	if err != nil {
		return a.fail(err)
	}

	if !media.IsVideo() {
		return a.publishPhotos(ctx, token, caption, []string{media.URL})
	}

	data, _, err := a.api.fetchBytes(ctx, media.URL, a.maxFetchBytes)
	if err != nil {
		return a.fail(fmt.Errorf("fetch source video: %w", err))
	}

	publishID, uploadURL, err := a.initVideoUpload(ctx, token, caption, int64(len(data)))
	if err != nil {
		return a.fail(err)
	}
	if err := a.uploadChunks(ctx, uploadURL, data); err != nil {
		return a.fail(err)
	}
	if err := a.waitForPublish(ctx, token, publishID); err != nil {
		return a.fail(err)
	}
	return a.ok(publishID, "", "video published")
}

// PublishCarousel posts every image as one multi-photo post through the
// content flow, capped at the platform maximum (dropping from the tail).
// Carousels with video are not a tiktok format; those publish the first
// item only.
func (a *TikTok) PublishCarousel(ctx context.Context, req Request) *CarouselResult {
	items := req.Content.AllMedia()
	if len(items) < 2 {
		return singleItemCarousel(ctx, a, req)
	}
	for _, m := range items {
		if m.IsVideo() {
			return singleItemCarousel(ctx, a, req)
		}
	}

	caption, err := a.prepare(req.Content)
	if err != nil {
		return &CarouselResult{PublishResult: *a.fail(err)}
	}

	truncated := 0
	if limit := a.def.Caps.MaxCarouselItems; limit > 0 && len(items) > limit {
		truncated = len(items) - limit
		items = items[:limit]
	}

	token, err := a.token(ctx, req.UserID)
	if err != nil {
		return &CarouselResult{PublishResult: *a.fail(err)}
	}

	urls := make([]string, len(items))
	for i, m := range items {
		urls[i] = m.URL
	}
	res := a.publishPhotos(ctx, token, caption, urls)
	cr := &CarouselResult{PublishResult: *res, ItemsTruncated: truncated}
	if res.Success {
		cr.ItemsPublished = len(urls)
	}
	return cr
}

func (a *TikTok) initVideoUpload(ctx context.Context, token, caption string, size int64) (publishID, uploadURL string, err error) {
	chunkSize := size
	chunkCount := 1
	if size > a.singleChunkMax {
		chunkSize = a.chunkSize
		chunkCount = int((size + a.chunkSize - 1) / a.chunkSize)
	}

	body := tiktokInitRequest{
		PostInfo: tiktokPostInfo{Title: caption, PrivacyLevel: "SELF_ONLY"},
		SourceInfo: tiktokSourceInfo{
			Source:          "FILE_UPLOAD",
			VideoSize:       size,
			ChunkSize:       chunkSize,
			TotalChunkCount: chunkCount,
		},
	}
	var out tiktokInitResponse
	if err := a.api.postJSON(ctx, token, a.def.APIBaseURL+"/post/publish/video/init/", body, &out); err != nil {
		return "", "", fmt.Errorf("init upload: %w", err)
	}
	if !out.Error.ok() {
		return "", "", fmt.Errorf("init upload: %s: %s", out.Error.Code, out.Error.Message)
	}
	if out.Data.PublishID == "" || out.Data.UploadURL == "" {
		return "", "", errors.New("init upload: missing publish_id or upload_url")
	}
	return out.Data.PublishID, out.Data.UploadURL, nil
}

// uploadChunks PUTs the video either whole or in fixed-size chunks with
// Content-Range headers, matching the session declared at init.
func (a *TikTok) uploadChunks(ctx context.Context, uploadURL string, data []byte) error {
	total := int64(len(data))
	if total <= a.singleChunkMax {
		return a.putChunk(ctx, uploadURL, data, 0, total)
	}
	for off := int64(0); off < total; off += a.chunkSize {
		end := off + a.chunkSize
		if end > total {
			end = total
		}
		if err := a.putChunk(ctx, uploadURL, data[off:end], off, total); err != nil {
			return err
		}
	}
	return nil
}

func (a *TikTok) putChunk(ctx context.Context, uploadURL string, chunk []byte, offset, total int64) error {
	headers := map[string]string{
		"Content-Type": "video/mp4",
		"Content-Range": "bytes " + strconv.FormatInt(offset, 10) + "-" +
			strconv.FormatInt(offset+int64(len(chunk))-1, 10) + "/" + strconv.FormatInt(total, 10),
	}
	if err := a.api.putBytes(ctx, "", uploadURL, headers, chunk); err != nil {
		return fmt.Errorf("upload chunk at %d: %w", offset, err)
	}
	return nil
}

// waitForPublish polls the status endpoint. A terminal FAILED surfaces the
// platform's fail_reason verbatim.
func (a *TikTok) waitForPublish(ctx context.Context, token, publishID string) error {
	return a.poll.wait(ctx, func(ctx context.Context) (bool, error) {
		var st tiktokStatusResponse
		body := map[string]string{"publish_id": publishID}
		if err := a.api.postJSON(ctx, token, a.def.APIBaseURL+"/post/publish/status/fetch/", body, &st); err != nil {
			return false, fmt.Errorf("publish status: %w", err)
		}
		if !st.Error.ok() {
			return false, fmt.Errorf("publish status: %s: %s", st.Error.Code, st.Error.Message)
		}
		switch st.Data.Status {
		case "PUBLISH_COMPLETE":
			return true, nil
		case "FAILED":
			return false, fmt.Errorf("publish failed: %s", st.Data.FailReason)
		default: // PROCESSING_UPLOAD, PROCESSING_DOWNLOAD
			return false, nil
		}
	})
}

// publishPhotos uses the content flow; tiktok pulls every image itself, so
// there is no upload step. One URL is a plain photo post, several are a
// photo carousel.
func (a *TikTok) publishPhotos(ctx context.Context, token, caption string, imageURLs []string) *PublishResult {
	body := map[string]any{
		"post_info": map[string]any{
			"title":         caption,
			"privacy_level": "SELF_ONLY",
		},
		"source_info": map[string]any{
			"source":            "PULL_FROM_URL",
			"photo_images":      imageURLs,
			"photo_cover_index": 0,
		},
		"post_mode":  "DIRECT_POST",
		"media_type": "PHOTO",
	}
	var out tiktokInitResponse
	if err := a.api.postJSON(ctx, token, a.def.APIBaseURL+"/post/publish/content/init/", body, &out); err != nil {
		return a.fail(fmt.Errorf("publish photo: %w", err))
	}
	if !out.Error.ok() {
		return a.fail(fmt.Errorf("publish photo: %s: %s", out.Error.Code, out.Error.Message))
	}
	if err := a.waitForPublish(ctx, token, out.Data.PublishID); err != nil {
		return a.fail(err)
	}
	return a.ok(out.Data.PublishID, "", "photo published")
}

type tiktokVideoListResponse struct {
	Data struct {
		Videos []struct {
			ID           string `json:"id"`
			LikeCount    int64  `json:"like_count"`
			CommentCount int64  `json:"comment_count"`
			ShareCount   int64  `json:"share_count"`
			ViewCount    int64  `json:"view_count"`
		} `json:"videos"`
	} `json:"data"`
	Error tiktokError `json:"error"`
}

func (a *TikTok) GetAnalytics(ctx context.Context, userID, postID string) (*Analytics, error) {
	token, err := a.token(ctx, userID)
	if err != nil {
		return nil, err
	}
	body := map[string]any{"filters": map[string]any{"video_ids": []string{postID}}}
	var out tiktokVideoListResponse
	u := a.def.APIBaseURL + "/video/query/?fields=id,like_count,comment_count,share_count,view_count"
	if err := a.api.postJSON(ctx, token, u, body, &out); err != nil {
		return nil, fmt.Errorf("tiktok video query: %w", err)
	}
	if !out.Error.ok() {
		return nil, fmt.Errorf("tiktok video query: %s: %s", out.Error.Code, out.Error.Message)
	}
	if len(out.Data.Videos) == 0 {
		return nil, fmt.Errorf("tiktok video %s not found", postID)
	}
	v := out.Data.Videos[0]
	return &Analytics{
		Platform: a.def.Name,
		PostID:   postID,
		Metrics: map[string]any{
			"likes":    v.LikeCount,
			"comments": v.CommentCount,
			"shares":   v.ShareCount,
			"views":    v.ViewCount,
		},
		FetchedAt: time.Now().UTC(),
	}, nil
}

func (a *TikTok) Delete(ctx context.Context, userID, postID string) (bool, error) {
	return false, errors.New("tiktok does not support deleting posts via the API")
}
