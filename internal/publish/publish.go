// Package publish contains the platform adapters: one implementation of the
// Publisher contract per social network, each reproducing that platform's
// publishing protocol (container+poll, chunked upload, asset registration,
// webhook, form submission or plain REST).
//
// Adapters never return Go errors for publish operations. Every failure —
// validation, missing connection, transport, non-2xx API response, poll
// timeout — becomes a PublishResult with Success=false so the orchestrator
// can aggregate heterogeneous outcomes uniformly.
package publish

import (
	"context"
	"time"

	"github.com/dropDatabas3/crosspost/internal/content"
	"github.com/dropDatabas3/crosspost/internal/domain/repository"
	"github.com/dropDatabas3/crosspost/internal/platform"
)

// Request is a fully-formed publish order for one platform.
type Request struct {
	UserID  string
	Content content.Payload
}

// PublishResult is the per-platform outcome of a publish attempt.
type PublishResult struct {
	Platform    string     `json:"platform"`
	Success     bool       `json:"success"`
	PostID      string     `json:"postId,omitempty"`
	URL         string     `json:"url,omitempty"`
	Message     string     `json:"message,omitempty"`
	Error       string     `json:"error,omitempty"`
	PublishedAt *time.Time `json:"publishedAt,omitempty"`
}

// CarouselResult extends PublishResult with multi-item accounting.
type CarouselResult struct {
	PublishResult
	ItemsPublished int `json:"itemsPublished"`
	ItemsTruncated int `json:"itemsTruncated"`
}

// Analytics carries post metrics normalized only as far as a flat metric map;
// names are platform vocabulary.
type Analytics struct {
	Platform  string         `json:"platform"`
	PostID    string         `json:"postId"`
	Metrics   map[string]any `json:"metrics"`
	FetchedAt time.Time      `json:"fetchedAt"`
}

// Publisher is the uniform contract every platform adapter implements.
type Publisher interface {
	Platform() string

	Publish(ctx context.Context, req Request) *PublishResult
	PublishCarousel(ctx context.Context, req Request) *CarouselResult

	GetAnalytics(ctx context.Context, userID, postID string) (*Analytics, error)
	Delete(ctx context.Context, userID, postID string) (bool, error)
}

// CredentialSource is the slice of the token manager adapters depend on.
type CredentialSource interface {
	GetValidAccessToken(ctx context.Context, userID, platformName string) (string, error)
	GetConnection(ctx context.Context, userID, platformName string) (*repository.OAuthConnection, error)
}

// base bundles what every adapter holds.
type base struct {
	def   platform.Definition
	creds CredentialSource
	api   *apiClient
}

func newBase(def platform.Definition, creds CredentialSource) base {
	return base{def: def, creds: creds, api: newAPIClient()}
}

// prepare runs validation and caption assembly, the steps shared by every
// adapter before any network call. The returned caption already has hashtags
// and mentions appended and is truncated when the platform policy is
// truncate-not-reject.
func (b base) prepare(p content.Payload) (string, error) {
	if err := content.Validate(b.def, p); err != nil {
		return "", err
	}
	caption := content.FormatCaption(p)
	if b.def.Caps.CaptionPolicy == platform.CaptionTruncate && b.def.Caps.MaxCaptionLen > 0 {
		caption = content.TruncateCaption(caption, b.def.Caps.MaxCaptionLen)
	}
	return caption, nil
}

// token resolves a valid access token for the adapter's platform.
func (b base) token(ctx context.Context, userID string) (string, error) {
	return b.creds.GetValidAccessToken(ctx, userID, b.def.Name)
}

func (b base) fail(err error) *PublishResult {
	return &PublishResult{Platform: b.def.Name, Error: err.Error()}
}

func (b base) ok(postID, url, message string) *PublishResult {
	now := time.Now().UTC()
	return &PublishResult{
		Platform:    b.def.Name,
		Success:     true,
		PostID:      postID,
		URL:         url,
		Message:     message,
		PublishedAt: &now,
	}
}

// singleItemCarousel implements PublishCarousel for platforms without a
// native multi-item format: the item list is truncated to the first entry
// (stable order, drop from the tail) and delegated to Publish, reporting how
// many items were dropped.
func singleItemCarousel(ctx context.Context, p Publisher, req Request) *CarouselResult {
	media := req.Content.AllMedia()
	truncated := 0
	if len(media) > 1 {
		truncated = len(media) - 1
		first := media[0]
		req.Content.Media = &first
		req.Content.Extra = nil
	}
	res := p.Publish(ctx, req)
	cr := &CarouselResult{PublishResult: *res, ItemsTruncated: truncated}
	if res.Success {
		cr.ItemsPublished = 1
	}
	return cr
}
