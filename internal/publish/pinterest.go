package publish

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/dropDatabas3/crosspost/internal/content"
	"github.com/dropDatabas3/crosspost/internal/platform"
)

// Pinterest publishes pins through plain REST. The target board comes from a
// setting or defaults to the user's first board.
type Pinterest struct {
	base
}

func NewPinterest(def platform.Definition, creds CredentialSource) *Pinterest {
	return &Pinterest{base: newBase(def, creds)}
}

func (a *Pinterest) Platform() string { return a.def.Name }

type pinBoardsResponse struct {
	Items []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"items"`
}

type pinCreateResponse struct {
	ID string `json:"id"`
}

func (a *Pinterest) Publish(ctx context.Context, req Request) *PublishResult {
	caption, err := a.prepare(req.Content)
	if err != nil {
		return a.fail(err)
	}
	m := req.Content.Media
	if m == nil || m.IsVideo() {
		return a.fail(errors.New("pinterest pins require an image"))
	}
	token, err := a.token(ctx, req.UserID)
	if err != nil {
		return a.fail(err)
	}

	boardID := req.Content.Setting("boardId")
	if boardID == "" {
		if boardID, err = a.firstBoard(ctx, token); err != nil {
			return a.fail(err)
		}
	}

	pinID, err := a.createPin(ctx, token, boardID, caption, req.Content, *m)
	if err != nil {
		return a.fail(err)
	}
	return a.ok(pinID, "https://www.pinterest.com/pin/"+pinID+"/", "pin created")
}

// PublishCarousel creates one pin per item on the same board, capped at the
// platform maximum (dropping from the tail). All pins share the title,
// description and link; the result carries the first pin's id.
func (a *Pinterest) PublishCarousel(ctx context.Context, req Request) *CarouselResult {
	caption, err := a.prepare(req.Content)
	if err != nil {
		return &CarouselResult{PublishResult: *a.fail(err)}
	}
	items := req.Content.AllMedia()
	if len(items) == 0 {
		return &CarouselResult{PublishResult: *a.fail(errors.New("carousel requires at least one media item"))}
	}
	for _, item := range items {
		if item.IsVideo() {
			return &CarouselResult{PublishResult: *a.fail(errors.New("pinterest pins require an image"))}
		}
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
	boardID := req.Content.Setting("boardId")
	if boardID == "" {
		if boardID, err = a.firstBoard(ctx, token); err != nil {
			return &CarouselResult{PublishResult: *a.fail(err)}
		}
	}

	firstPin := ""
	published := 0
	for i, item := range items {
		pinID, err := a.createPin(ctx, token, boardID, caption, req.Content, item)
		if err != nil {
			cr := &CarouselResult{PublishResult: *a.fail(fmt.Errorf("carousel item %d: %w", i+1, err))}
			cr.ItemsPublished = published
			cr.ItemsTruncated = truncated
			return cr
		}
		if firstPin == "" {
			firstPin = pinID
		}
		published++
	}

	res := a.ok(firstPin, "https://www.pinterest.com/pin/"+firstPin+"/", "published as individual pins")
	return &CarouselResult{PublishResult: *res, ItemsPublished: published, ItemsTruncated: truncated}
}

func (a *Pinterest) createPin(ctx context.Context, token, boardID, description string, p content.Payload, m content.Media) (string, error) {
	body := map[string]any{
		"board_id":    boardID,
		"title":       firstLine(p.Caption),
		"description": description,
		"media_source": map[string]string{
			"source_type": "image_url",
			"url":         m.URL,
		},
	}
	if link := p.Setting("link"); link != "" {
		body["link"] = link
	}
	var out pinCreateResponse
	if err := a.api.postJSON(ctx, token, a.def.APIBaseURL+"/pins", body, &out); err != nil {
		return "", fmt.Errorf("create pin: %w", err)
	}
	return out.ID, nil
}

func (a *Pinterest) firstBoard(ctx context.Context, token string) (string, error) {
	var boards pinBoardsResponse
	if err := a.api.getJSON(ctx, token, a.def.APIBaseURL+"/boards?page_size=1", &boards); err != nil {
		return "", fmt.Errorf("list boards: %w", err)
	}
	if len(boards.Items) == 0 {
		return "", errors.New("the connected pinterest account has no boards")
	}
	return boards.Items[0].ID, nil
}

type pinAnalyticsResponse struct {
	All struct {
		Lifetime map[string]int64 `json:"lifetime_metrics"`
	} `json:"all"`
}

func (a *Pinterest) GetAnalytics(ctx context.Context, userID, postID string) (*Analytics, error) {
	token, err := a.token(ctx, userID)
	if err != nil {
		return nil, err
	}
	var out pinAnalyticsResponse
	u := a.def.APIBaseURL + "/pins/" + url.PathEscape(postID) + "/analytics?metric_types=" + url.QueryEscape("IMPRESSION,SAVE,PIN_CLICK")
	if err := a.api.getJSON(ctx, token, u, &out); err != nil {
		return nil, fmt.Errorf("pin analytics: %w", err)
	}
	metrics := make(map[string]any, len(out.All.Lifetime))
	for k, v := range out.All.Lifetime {
		metrics[k] = v
	}
	return &Analytics{Platform: a.def.Name, PostID: postID, Metrics: metrics, FetchedAt: time.Now().UTC()}, nil
}

func (a *Pinterest) Delete(ctx context.Context, userID, postID string) (bool, error) {
	token, err := a.token(ctx, userID)
	if err != nil {
		return false, err
	}
	if err := a.api.deleteJSON(ctx, token, a.def.APIBaseURL+"/pins/"+url.PathEscape(postID), nil); err != nil {
		return false, fmt.Errorf("delete pin: %w", err)
	}
	return true, nil
}
