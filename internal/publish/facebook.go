package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/dropDatabas3/crosspost/internal/cache"
	"github.com/dropDatabas3/crosspost/internal/platform"
)

// pageTokenTTL bounds how long a resolved page token is reused before the
// /me/accounts hop runs again.
const pageTokenTTL = 30 * time.Minute

// Facebook publishes to a page. Posting requires a page access token, which
// is itself a prerequisite hop: list the pages the user manages, pick the
// target (setting or first), use that page's dedicated token. The resolved
// page token is memoized in the cache to skip the hop on subsequent
// publishes.
type Facebook struct {
	base
	cache cache.Client
}

func NewFacebook(def platform.Definition, creds CredentialSource, c cache.Client) *Facebook {
	return &Facebook{base: newBase(def, creds), cache: c}
}

func (a *Facebook) Platform() string { return a.def.Name }

type fbPage struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	AccessToken string `json:"access_token"`
}

type fbPagesResponse struct {
	Data []fbPage `json:"data"`
}

type fbCreateResponse struct {
	ID     string `json:"id"`
	PostID string `json:"post_id"`
}

func (a *Facebook) Publish(ctx context.Context, req Request) *PublishResult {
	caption, err := a.prepare(req.Content)
	if err != nil {
		return a.fail(err)
	}
	page, err := a.resolvePage(ctx, req.UserID, req.Content.Setting("pageId"))
	if err != nil {
		return a.fail(err)
	}

	form := url.Values{}
	var endpoint string
	switch m := req.Content.Media; {
	case m == nil:
		endpoint = "/" + page.ID + "/feed"
		form.Set("message", caption)
	case m.IsVideo():
		endpoint = "/" + page.ID + "/videos"
		form.Set("file_url", m.URL)
		form.Set("description", caption)
	default:
		endpoint = "/" + page.ID + "/photos"
		form.Set("url", m.URL)
		form.Set("caption", caption)
	}

	var out fbCreateResponse
	if err := a.api.postForm(ctx, page.AccessToken, a.def.APIBaseURL+endpoint, form, &out); err != nil {
		return a.fail(fmt.Errorf("page post: %w", err))
	}
	postID := out.PostID
	if postID == "" {
		postID = out.ID
	}
	return a.ok(postID, a.postURL(postID), "published to page "+page.Name)
}

func (a *Facebook) PublishCarousel(ctx context.Context, req Request) *CarouselResult {
	return singleItemCarousel(ctx, a, req)
}

// resolvePage returns the target page with its dedicated token, from cache
// when fresh. pageID empty selects the first managed page.
func (a *Facebook) resolvePage(ctx context.Context, userID, pageID string) (*fbPage, error) {
	key := "fb-page:" + userID + ":" + pageID
	if a.cache != nil {
		if raw, err := a.cache.Get(ctx, key); err == nil {
			var page fbPage
			if json.Unmarshal([]byte(raw), &page) == nil && page.AccessToken != "" {
				return &page, nil
			}
		}
	}

	token, err := a.token(ctx, userID)
	if err != nil {
		return nil, err
	}
	var pages fbPagesResponse
	if err := a.api.getJSON(ctx, token, a.def.APIBaseURL+"/me/accounts", &pages); err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	if len(pages.Data) == 0 {
		return nil, errors.New("the connected facebook account manages no pages")
	}

	page := pages.Data[0]
	if pageID != "" {
		found := false
		for _, p := range pages.Data {
			if p.ID == pageID {
				page, found = p, true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("page %s is not managed by the connected account", pageID)
		}
	}
	if page.AccessToken == "" {
		return nil, fmt.Errorf("page %s returned no access token", page.ID)
	}

	if a.cache != nil {
		if raw, err := json.Marshal(page); err == nil {
			_ = a.cache.Set(ctx, key, string(raw), pageTokenTTL)
		}
	}
	return &page, nil
}

func (a *Facebook) postURL(postID string) string {
	// Feed ids come back as "<pageID>_<postID>".
	if i := strings.IndexByte(postID, '_'); i > 0 {
		return "https://www.facebook.com/" + postID[:i] + "/posts/" + postID[i+1:]
	}
	return ""
}

type fbInsightsResponse struct {
	SharesCount struct {
		Count int64 `json:"count"`
	} `json:"shares"`
	Likes struct {
		Summary struct {
			TotalCount int64 `json:"total_count"`
		} `json:"summary"`
	} `json:"likes"`
	Comments struct {
		Summary struct {
			TotalCount int64 `json:"total_count"`
		} `json:"summary"`
	} `json:"comments"`
}

func (a *Facebook) GetAnalytics(ctx context.Context, userID, postID string) (*Analytics, error) {
	page, err := a.resolvePage(ctx, userID, "")
	if err != nil {
		return nil, err
	}
	var out fbInsightsResponse
	u := a.def.APIBaseURL + "/" + url.PathEscape(postID) + "?fields=" + url.QueryEscape("shares,likes.summary(true),comments.summary(true)")
	if err := a.api.getJSON(ctx, page.AccessToken, u, &out); err != nil {
		return nil, fmt.Errorf("facebook post fields: %w", err)
	}
	return &Analytics{
		Platform: a.def.Name,
		PostID:   postID,
		Metrics: map[string]any{
			"shares":   out.SharesCount.Count,
			"likes":    out.Likes.Summary.TotalCount,
			"comments": out.Comments.Summary.TotalCount,
		},
		FetchedAt: time.Now().UTC(),
	}, nil
}

type fbDeleteResponse struct {
	Success bool `json:"success"`
}

func (a *Facebook) Delete(ctx context.Context, userID, postID string) (bool, error) {
	page, err := a.resolvePage(ctx, userID, "")
	if err != nil {
		return false, err
	}
	var out fbDeleteResponse
	if err := a.api.deleteJSON(ctx, page.AccessToken, a.def.APIBaseURL+"/"+url.PathEscape(postID), &out); err != nil {
		return false, fmt.Errorf("delete post: %w", err)
	}
	return out.Success, nil
}
