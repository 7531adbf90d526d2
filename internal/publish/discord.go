package publish

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/dropDatabas3/crosspost/internal/platform"
)

// Discord publishes through a webhook: a plain content message, or a rich
// embed when media is attached. The webhook URL comes from the request
// settings; no access token is needed for the publish call itself, only for
// auxiliary reads (guild listing).
type Discord struct {
	base
}

func NewDiscord(def platform.Definition, creds CredentialSource) *Discord {
	return &Discord{base: newBase(def, creds)}
}

func (a *Discord) Platform() string { return a.def.Name }

type discordMessageResponse struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel_id"`
}

func (a *Discord) Publish(ctx context.Context, req Request) *PublishResult {
	caption, err := a.prepare(req.Content)
	if err != nil {
		return a.fail(err)
	}
	webhook := req.Content.Setting("webhookUrl")
	if webhook == "" {
		return a.fail(errors.New("discord requires a webhookUrl setting"))
	}
	if u, err := url.Parse(webhook); err != nil || !u.IsAbs() || u.Host == "" {
		return a.fail(errors.New("webhookUrl must be an absolute URL"))
	}

	payload := map[string]any{}
	if m := req.Content.Media; m != nil {
		embed := map[string]any{"description": caption}
		if m.IsVideo() {
			// Embeds cannot play external video; link it in the body.
			payload["content"] = caption + "\n" + m.URL
		} else {
			embed["image"] = map[string]string{"url": m.URL}
			payload["embeds"] = []map[string]any{embed}
		}
	} else {
		payload["content"] = caption
	}

	// wait=true makes the webhook return the created message.
	var out discordMessageResponse
	if err := a.api.postJSON(ctx, "", webhook+"?wait=true", payload, &out); err != nil {
		return a.fail(fmt.Errorf("webhook post: %w", err))
	}
	return a.ok(out.ID, "", "message sent")
}

func (a *Discord) PublishCarousel(ctx context.Context, req Request) *CarouselResult {
	return singleItemCarousel(ctx, a, req)
}

type discordGuild struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ListGuilds is the auxiliary read that does use the OAuth token: the
// servers the connected user belongs to, for webhook target selection in the
// caller's UI.
func (a *Discord) ListGuilds(ctx context.Context, userID string) ([]discordGuild, error) {
	token, err := a.token(ctx, userID)
	if err != nil {
		return nil, err
	}
	var guilds []discordGuild
	if err := a.api.getJSON(ctx, token, a.def.APIBaseURL+"/users/@me/guilds", &guilds); err != nil {
		return nil, fmt.Errorf("list guilds: %w", err)
	}
	return guilds, nil
}

// GetAnalytics has nothing to report: webhook messages expose no metrics.
func (a *Discord) GetAnalytics(ctx context.Context, userID, postID string) (*Analytics, error) {
	return nil, errors.New("discord webhooks expose no post metrics")
}

// Delete removes the webhook message. The webhook URL is not part of the
// post id, so deletion needs it passed as a setting at publish time and is
// unsupported here.
func (a *Discord) Delete(ctx context.Context, userID, postID string) (bool, error) {
	return false, errors.New("deleting discord webhook messages requires the original webhook URL")
}

// DeleteWebhookMessage deletes a message when the caller still has the
// webhook URL.
func (a *Discord) DeleteWebhookMessage(ctx context.Context, webhookURL, messageID string) (bool, error) {
	if webhookURL == "" || messageID == "" {
		return false, errors.New("webhook URL and message id are required")
	}
	u := strings.TrimRight(webhookURL, "/") + "/messages/" + url.PathEscape(messageID)
	if err := a.api.deleteJSON(ctx, "", u, nil); err != nil {
		return false, fmt.Errorf("delete webhook message: %w", err)
	}
	return true, nil
}
