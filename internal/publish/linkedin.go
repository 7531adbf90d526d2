package publish

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/dropDatabas3/crosspost/internal/platform"
)

// LinkedIn publishes through asset registration: register an upload intent
// scoped to a person or organization URN, PUT the binary to the returned
// upload URL, then create a ugcPost referencing the asset. Organization
// posting resolves the author URN through an administrator-role ACL lookup
// first.
type LinkedIn struct {
	base
	maxFetchBytes int64
}

func NewLinkedIn(def platform.Definition, creds CredentialSource) *LinkedIn {
	return &LinkedIn{base: newBase(def, creds), maxFetchBytes: int64(def.Caps.MaxFileSizeMB) << 20}
}

func (a *LinkedIn) Platform() string { return a.def.Name }

type liRegisterUploadResponse struct {
	Value struct {
		Asset           string `json:"asset"`
		UploadMechanism struct {
			Request struct {
				UploadURL string `json:"uploadUrl"`
			} `json:"com.linkedin.digitalmedia.uploading.MediaUploadHttpRequest"`
		} `json:"uploadMechanism"`
	} `json:"value"`
}

type liOrgAclsResponse struct {
	Elements []struct {
		Organization string `json:"organization"`
		Role         string `json:"role"`
		State        string `json:"state"`
	} `json:"elements"`
}

type liPostResponse struct {
	ID string `json:"id"`
}

func (a *LinkedIn) Publish(ctx context.Context, req Request) *PublishResult {
	caption, err := a.prepare(req.Content)
	if err != nil {
		return a.fail(err)
	}
	token, err := a.token(ctx, req.UserID)
	if err != nil {
		return a.fail(err)
	}
	author, err := a.resolveAuthor(ctx, token, req)
	if err != nil {
		return a.fail(err)
	}

	var mediaBlock []map[string]any
	category := "NONE"
	if m := req.Content.Media; m != nil {
		asset, err := a.uploadAsset(ctx, token, author, m.URL, m.IsVideo())
		if err != nil {
			return a.fail(err)
		}
		category = "IMAGE"
		if m.IsVideo() {
			category = "VIDEO"
		}
		mediaBlock = []map[string]any{{"status": "READY", "media": asset}}
	}

	body := map[string]any{
		"author":         author,
		"lifecycleState": "PUBLISHED",
		"specificContent": map[string]any{
			"com.linkedin.ugc.ShareContent": map[string]any{
				"shareCommentary":    map[string]string{"text": caption},
				"shareMediaCategory": category,
				"media":              mediaBlock,
			},
		},
		"visibility": map[string]string{
			"com.linkedin.ugc.MemberNetworkVisibility": "PUBLIC",
		},
	}

	var out liPostResponse
	if err := a.api.postJSON(ctx, token, a.def.APIBaseURL+"/ugcPosts", body, &out); err != nil {
		return a.fail(fmt.Errorf("create ugc post: %w", err))
	}
	return a.ok(out.ID, "https://www.linkedin.com/feed/update/"+url.PathEscape(out.ID), "published")
}

func (a *LinkedIn) PublishCarousel(ctx context.Context, req Request) *CarouselResult {
	return singleItemCarousel(ctx, a, req)
}

// resolveAuthor returns the URN the post is attributed to. With an
// organizationId setting the caller must hold the ADMINISTRATOR role on that
// organization; otherwise the person URN from the stored connection is used.
func (a *LinkedIn) resolveAuthor(ctx context.Context, token string, req Request) (string, error) {
	if orgID := req.Content.Setting("organizationId"); orgID != "" {
		want := "urn:li:organization:" + orgID
		var acls liOrgAclsResponse
		u := a.def.APIBaseURL + "/organizationalEntityAcls?q=roleAssignee&role=ADMINISTRATOR&state=APPROVED"
		if err := a.api.getJSON(ctx, token, u, &acls); err != nil {
			return "", fmt.Errorf("organization lookup: %w", err)
		}
		for _, el := range acls.Elements {
			if el.Organization == want {
				return want, nil
			}
		}
		return "", fmt.Errorf("not an administrator of organization %s", orgID)
	}

	conn, err := a.creds.GetConnection(ctx, req.UserID, a.def.Name)
	if err != nil {
		return "", err
	}
	if conn.AccountID == "" {
		return "", errors.New("connection has no linkedin member id")
	}
	return "urn:li:person:" + conn.AccountID, nil
}

// uploadAsset registers the upload, fetches the source bytes and PUTs them
// to the platform-issued URL. Returns the asset URN.
func (a *LinkedIn) uploadAsset(ctx context.Context, token, owner, mediaURL string, video bool) (string, error) {
	recipe := "urn:li:digitalmediaRecipe:feedshare-image"
	if video {
		recipe = "urn:li:digitalmediaRecipe:feedshare-video"
	}
	body := map[string]any{
		"registerUploadRequest": map[string]any{
			"recipes": []string{recipe},
			"owner":   owner,
			"serviceRelationships": []map[string]string{{
				"relationshipType": "OWNER",
				"identifier":       "urn:li:userGeneratedContent",
			}},
		},
	}
	var reg liRegisterUploadResponse
	if err := a.api.postJSON(ctx, token, a.def.APIBaseURL+"/assets?action=registerUpload", body, &reg); err != nil {
		return "", fmt.Errorf("register upload: %w", err)
	}
	uploadURL := reg.Value.UploadMechanism.Request.UploadURL
	if reg.Value.Asset == "" || uploadURL == "" {
		return "", errors.New("register upload: missing asset or upload url")
	}

	data, contentType, err := a.api.fetchBytes(ctx, mediaURL, a.maxFetchBytes)
	if err != nil {
		return "", fmt.Errorf("fetch source media: %w", err)
	}
	headers := map[string]string{}
	if contentType != "" {
		headers["Content-Type"] = contentType
	}
	if err := a.api.putBytes(ctx, token, uploadURL, headers, data); err != nil {
		return "", fmt.Errorf("upload asset: %w", err)
	}
	return reg.Value.Asset, nil
}

type liSocialActionsResponse struct {
	LikesSummary struct {
		TotalLikes int64 `json:"totalLikes"`
	} `json:"likesSummary"`
	CommentsSummary struct {
		TotalComments int64 `json:"aggregatedTotalComments"`
	} `json:"commentsSummary"`
}

func (a *LinkedIn) GetAnalytics(ctx context.Context, userID, postID string) (*Analytics, error) {
	token, err := a.token(ctx, userID)
	if err != nil {
		return nil, err
	}
	var out liSocialActionsResponse
	u := a.def.APIBaseURL + "/socialActions/" + url.PathEscape(postID)
	if err := a.api.getJSON(ctx, token, u, &out); err != nil {
		return nil, fmt.Errorf("linkedin social actions: %w", err)
	}
	return &Analytics{
		Platform: a.def.Name,
		PostID:   postID,
		Metrics: map[string]any{
			"likes":    out.LikesSummary.TotalLikes,
			"comments": out.CommentsSummary.TotalComments,
		},
		FetchedAt: time.Now().UTC(),
	}, nil
}

func (a *LinkedIn) Delete(ctx context.Context, userID, postID string) (bool, error) {
	token, err := a.token(ctx, userID)
	if err != nil {
		return false, err
	}
	u := a.def.APIBaseURL + "/ugcPosts/" + url.PathEscape(postID)
	if err := a.api.deleteJSON(ctx, token, u, nil); err != nil {
		return false, fmt.Errorf("delete ugc post: %w", err)
	}
	return true, nil
}
