package publish

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/dropDatabas3/crosspost/internal/content"
	"github.com/dropDatabas3/crosspost/internal/platform"
)

// Reddit publishes through the form-encoded submit endpoint. The target
// subreddit comes from an explicit setting or is parsed out of the caption
// text ("r/<name>"); the post kind (self, link, image) is classified from
// media presence and MIME type. API errors come back as per-field message
// lists and are joined into one error string.
type Reddit struct {
	base
}

func NewReddit(def platform.Definition, creds CredentialSource) *Reddit {
	return &Reddit{base: newBase(def, creds)}
}

func (a *Reddit) Platform() string { return a.def.Name }

var subredditRe = regexp.MustCompile(`(?i)\br/([A-Za-z0-9_]{3,21})\b`)

type redditSubmitResponse struct {
	JSON struct {
		Errors [][]string `json:"errors"`
		Data   struct {
			Name string `json:"name"` // fullname, t3_xxx
			URL  string `json:"url"`
		} `json:"data"`
	} `json:"json"`
}

func (a *Reddit) Publish(ctx context.Context, req Request) *PublishResult {
	caption, err := a.prepare(req.Content)
	if err != nil {
		return a.fail(err)
	}
	sub := a.subreddit(req.Content.Setting("subreddit"), req.Content.Caption)
	if sub == "" {
		return a.fail(errors.New("no subreddit: set the subreddit setting or mention r/<name> in the caption"))
	}
	token, err := a.token(ctx, req.UserID)
	if err != nil {
		return a.fail(err)
	}

	title := req.Content.Setting("title")
	if title == "" {
		title = firstLine(req.Content.Caption)
	}

	form := url.Values{}
	form.Set("api_type", "json")
	form.Set("sr", sub)
	form.Set("title", title)

	switch kind := a.classify(req.Content); kind {
	case "self":
		form.Set("kind", "self")
		form.Set("text", caption)
	case "image":
		form.Set("kind", "image")
		form.Set("url", req.Content.Media.URL)
	default:
		form.Set("kind", "link")
		form.Set("url", req.Content.Media.URL)
	}

	var out redditSubmitResponse
	if err := a.api.postForm(ctx, token, a.def.APIBaseURL+"/api/submit", form, &out); err != nil {
		return a.fail(fmt.Errorf("submit: %w", err))
	}
	if msg := joinRedditErrors(out.JSON.Errors); msg != "" {
		return a.fail(fmt.Errorf("submit rejected: %s", msg))
	}
	return a.ok(out.JSON.Data.Name, out.JSON.Data.URL, "submitted to r/"+sub)
}

func (a *Reddit) PublishCarousel(ctx context.Context, req Request) *CarouselResult {
	return singleItemCarousel(ctx, a, req)
}

// subreddit prefers the explicit setting, then the first r/<name> mention in
// the caption.
func (a *Reddit) subreddit(setting, caption string) string {
	if setting != "" {
		return strings.TrimPrefix(strings.TrimPrefix(setting, "/r/"), "r/")
	}
	if m := subredditRe.FindStringSubmatch(caption); m != nil {
		return m[1]
	}
	return ""
}

// classify picks the submit kind from media presence and MIME type.
func (a *Reddit) classify(p content.Payload) string {
	if p.Media == nil {
		return "self"
	}
	if strings.HasPrefix(p.Media.MIMEType, "image/") {
		return "image"
	}
	return "link"
}

func joinRedditErrors(errs [][]string) string {
	var parts []string
	for _, e := range errs {
		// Each entry is [code, message, field].
		parts = append(parts, strings.Join(e, ": "))
	}
	return strings.Join(parts, "; ")
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return "(untitled)"
	}
	const maxTitle = 300
	if len(s) > maxTitle {
		return s[:maxTitle]
	}
	return s
}

type redditInfoResponse struct {
	Data struct {
		Children []struct {
			Data struct {
				Score       int64   `json:"score"`
				NumComments int64   `json:"num_comments"`
				UpvoteRatio float64 `json:"upvote_ratio"`
			} `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

func (a *Reddit) GetAnalytics(ctx context.Context, userID, postID string) (*Analytics, error) {
	token, err := a.token(ctx, userID)
	if err != nil {
		return nil, err
	}
	var out redditInfoResponse
	u := a.def.APIBaseURL + "/api/info?id=" + url.QueryEscape(postID)
	if err := a.api.getJSON(ctx, token, u, &out); err != nil {
		return nil, fmt.Errorf("reddit info: %w", err)
	}
	if len(out.Data.Children) == 0 {
		return nil, fmt.Errorf("reddit post %s not found", postID)
	}
	d := out.Data.Children[0].Data
	return &Analytics{
		Platform: a.def.Name,
		PostID:   postID,
		Metrics: map[string]any{
			"score":        d.Score,
			"comments":     d.NumComments,
			"upvote_ratio": d.UpvoteRatio,
		},
		FetchedAt: time.Now().UTC(),
	}, nil
}

func (a *Reddit) Delete(ctx context.Context, userID, postID string) (bool, error) {
	token, err := a.token(ctx, userID)
	if err != nil {
		return false, err
	}
	form := url.Values{}
	form.Set("id", postID)
	if err := a.api.postForm(ctx, token, a.def.APIBaseURL+"/api/del", form, nil); err != nil {
		return false, fmt.Errorf("delete post: %w", err)
	}
	return true, nil
}
