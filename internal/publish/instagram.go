package publish

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/dropDatabas3/crosspost/internal/content"
	"github.com/dropDatabas3/crosspost/internal/observability/logger"
	"github.com/dropDatabas3/crosspost/internal/platform"
)

// Instagram publishes through the Graph API container flow: create a media
// container, poll it to FINISHED for video, then publish. Stories
// auto-publish on container creation and skip the publish step.
type Instagram struct {
	base
	poll poller
}

func NewInstagram(def platform.Definition, creds CredentialSource) *Instagram {
	return &Instagram{
		base: newBase(def, creds),
		// Video transcoding takes up to ~2 minutes.
		poll: poller{interval: 2 * time.Second, maxAttempts: 60},
	}
}

func (a *Instagram) Platform() string { return a.def.Name }

type igContainerResponse struct {
	ID string `json:"id"`
}

type igStatusResponse struct {
	StatusCode string `json:"status_code"`
	Status     string `json:"status"`
}

type igMediaResponse struct {
	ID        string `json:"id"`
	Permalink string `json:"permalink"`
}

func (a *Instagram) Publish(ctx context.Context, req Request) *PublishResult {
	caption, err := a.prepare(req.Content)
	if err != nil {
		return a.fail(err)
	}
	if req.Content.Media == nil {
		return a.fail(errors.New("instagram requires media; text-only posts are not supported"))
	}

	token, accountID, err := a.session(ctx, req.UserID)
	if err != nil {
		return a.fail(err)
	}

	media := *req.Content.Media
	contentType := strings.ToLower(req.Content.Setting("contentType"))

	containerID, err := a.createContainer(ctx, token, accountID, media, caption, contentType, false)
	if err != nil {
		return a.fail(err)
	}

	if media.IsVideo() || contentType == "reel" || contentType == "story" {
		if err := a.waitForContainer(ctx, token, containerID); err != nil {
			return a.fail(err)
		}
	}

	// Story containers auto-publish; there is no media_publish step.
	if contentType == "story" {
		return a.ok(containerID, "", "story published")
	}

	mediaID, err := a.publishContainer(ctx, token, accountID, containerID)
	if err != nil {
		return a.fail(err)
	}
	return a.ok(mediaID, a.permalink(ctx, token, mediaID), "published")
}

// PublishCarousel builds one child container per item (capped at the
// platform maximum, dropping from the tail), then a CAROUSEL parent
// referencing the children, then publishes the parent. A single surviving
// item falls back to the plain publish flow.
func (a *Instagram) PublishCarousel(ctx context.Context, req Request) *CarouselResult {
	caption, err := a.prepare(req.Content)
	if err != nil {
		return &CarouselResult{PublishResult: *a.fail(err)}
	}

	items := req.Content.AllMedia()
	if len(items) == 0 {
		return &CarouselResult{PublishResult: *a.fail(errors.New("carousel requires at least one media item"))}
	}

	truncated := 0
	if limit := a.def.Caps.MaxCarouselItems; limit > 0 && len(items) > limit {
		truncated = len(items) - limit
		items = items[:limit]
		logger.L().Warn("carousel truncated to platform cap",
			logger.Platform(a.def.Name),
			logger.Int("dropped", truncated),
		)
	}

	if len(items) == 1 {
		single := req
		single.Content.Media = &items[0]
		single.Content.Extra = nil
		res := a.Publish(ctx, single)
		cr := &CarouselResult{PublishResult: *res, ItemsTruncated: truncated}
		if res.Success {
			cr.ItemsPublished = 1
		}
		return cr
	}

	token, accountID, err := a.session(ctx, req.UserID)
	if err != nil {
		return &CarouselResult{PublishResult: *a.fail(err)}
	}

	children := make([]string, 0, len(items))
	for _, item := range items {
		childID, err := a.createContainer(ctx, token, accountID, item, "", "", true)
		if err != nil {
			return &CarouselResult{PublishResult: *a.fail(fmt.Errorf("carousel item %d: %w", len(children)+1, err))}
		}
		if item.IsVideo() {
			if err := a.waitForContainer(ctx, token, childID); err != nil {
				return &CarouselResult{PublishResult: *a.fail(fmt.Errorf("carousel item %d: %w", len(children)+1, err))}
			}
		}
		children = append(children, childID)
	}

	form := url.Values{}
	form.Set("media_type", "CAROUSEL")
	form.Set("children", strings.Join(children, ","))
	if caption != "" {
		form.Set("caption", caption)
	}
	var parent igContainerResponse
	if err := a.api.postForm(ctx, token, a.def.APIBaseURL+"/"+accountID+"/media", form, &parent); err != nil {
		return &CarouselResult{PublishResult: *a.fail(fmt.Errorf("create carousel container: %w", err))}
	}

	mediaID, err := a.publishContainer(ctx, token, accountID, parent.ID)
	if err != nil {
		return &CarouselResult{PublishResult: *a.fail(err)}
	}

	res := a.ok(mediaID, a.permalink(ctx, token, mediaID), "carousel published")
	return &CarouselResult{PublishResult: *res, ItemsPublished: len(children), ItemsTruncated: truncated}
}

type igInsightsResponse struct {
	Data []struct {
		Name   string `json:"name"`
		Values []struct {
			Value any `json:"value"`
		} `json:"values"`
	} `json:"data"`
}

func (a *Instagram) GetAnalytics(ctx context.Context, userID, postID string) (*Analytics, error) {
	token, _, err := a.session(ctx, userID)
	if err != nil {
		return nil, err
	}
	var ins igInsightsResponse
	u := a.def.APIBaseURL + "/" + postID + "/insights?metric=" + url.QueryEscape("impressions,reach,likes,comments,saved,shares")
	if err := a.api.getJSON(ctx, token, u, &ins); err != nil {
		return nil, fmt.Errorf("instagram insights: %w", err)
	}
	metrics := make(map[string]any, len(ins.Data))
	for _, m := range ins.Data {
		if len(m.Values) > 0 {
			metrics[m.Name] = m.Values[0].Value
		}
	}
	return &Analytics{Platform: a.def.Name, PostID: postID, Metrics: metrics, FetchedAt: time.Now().UTC()}, nil
}

// Delete is not offered by the Graph API for instagram media.
func (a *Instagram) Delete(ctx context.Context, userID, postID string) (bool, error) {
	return false, errors.New("instagram does not support deleting media via the API")
}

// session resolves the access token and the business account id stored at
// connect time.
func (a *Instagram) session(ctx context.Context, userID string) (token, accountID string, err error) {
	token, err = a.token(ctx, userID)
	if err != nil {
		return "", "", err
	}
	conn, err := a.creds.GetConnection(ctx, userID, a.def.Name)
	if err != nil {
		return "", "", err
	}
	if conn.AccountID == "" {
		return "", "", errors.New("no instagram business account linked to this connection")
	}
	return token, conn.AccountID, nil
}

func (a *Instagram) createContainer(ctx context.Context, token, accountID string, media content.Media, caption, contentType string, carouselItem bool) (string, error) {
	form := url.Values{}
	switch {
	case media.IsVideo():
		form.Set("video_url", media.URL)
		switch contentType {
		case "story":
			form.Set("media_type", "STORIES")
		default:
			// Graph API publishes standalone video as reels.
			form.Set("media_type", "REELS")
		}
	default:
		form.Set("image_url", media.URL)
		if contentType == "story" {
			form.Set("media_type", "STORIES")
		}
	}
	if caption != "" {
		form.Set("caption", caption)
	}
	if carouselItem {
		form.Set("is_carousel_item", "true")
	}

	var out igContainerResponse
	if err := a.api.postForm(ctx, token, a.def.APIBaseURL+"/"+accountID+"/media", form, &out); err != nil {
		return "", fmt.Errorf("create container: %w", err)
	}
	if out.ID == "" {
		return "", errors.New("create container: empty container id")
	}
	return out.ID, nil
}

// waitForContainer polls status_code until FINISHED. ERROR aborts with the
// platform's status detail.
func (a *Instagram) waitForContainer(ctx context.Context, token, containerID string) error {
	return a.poll.wait(ctx, func(ctx context.Context) (bool, error) {
		var st igStatusResponse
		if err := a.api.getJSON(ctx, token, a.def.APIBaseURL+"/"+containerID+"?fields=status_code,status", &st); err != nil {
			return false, fmt.Errorf("container status: %w", err)
		}
		switch st.StatusCode {
		case "FINISHED":
			return true, nil
		case "ERROR", "EXPIRED":
			return false, fmt.Errorf("container processing failed: %s", st.Status)
		default: // IN_PROGRESS
			return false, nil
		}
	})
}

func (a *Instagram) publishContainer(ctx context.Context, token, accountID, containerID string) (string, error) {
	form := url.Values{}
	form.Set("creation_id", containerID)
	var out igMediaResponse
	if err := a.api.postForm(ctx, token, a.def.APIBaseURL+"/"+accountID+"/media_publish", form, &out); err != nil {
		return "", fmt.Errorf("publish container: %w", err)
	}
	return out.ID, nil
}

// permalink is best effort; an empty URL is fine in the result.
func (a *Instagram) permalink(ctx context.Context, token, mediaID string) string {
	var out igMediaResponse
	if err := a.api.getJSON(ctx, token, a.def.APIBaseURL+"/"+mediaID+"?fields=permalink", &out); err != nil {
		return ""
	}
	return out.Permalink
}
