package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/dropDatabas3/crosspost/internal/platform"
)

// Target keys stored in Profile.Targets. Adapters read these to locate the
// publishing target discovered during the profile hops.
const (
	TargetPageID            = "page_id"
	TargetPageName          = "page_name"
	TargetBusinessAccountID = "ig_business_account_id"
	TargetPersonURN         = "person_urn"
)

// FetchUserProfile fetches the normalized profile for a platform. Several
// platforms need a multi-hop lookup to locate the actual publishing target;
// the hop order is platform-specific and reproduced exactly here.
func (s *Service) FetchUserProfile(ctx context.Context, platformName, accessToken string) (*Profile, error) {
	def, err := s.reg.Get(platformName)
	if err != nil {
		return nil, err
	}

	switch def.Name {
	case platform.Facebook:
		return s.facebookProfile(ctx, def, accessToken)
	case platform.Instagram:
		return s.instagramProfile(ctx, def, accessToken)
	case platform.LinkedIn:
		return s.linkedinProfile(ctx, def, accessToken)
	case platform.TikTok:
		return s.tiktokProfile(ctx, def, accessToken)
	case platform.Reddit:
		return s.redditProfile(ctx, def, accessToken)
	case platform.Discord:
		return s.discordProfile(ctx, def, accessToken)
	case platform.Pinterest:
		return s.pinterestProfile(ctx, def, accessToken)
	default:
		return nil, fmt.Errorf("%w: %q", platform.ErrUnsupportedPlatform, platformName)
	}
}

// ---- facebook: /me, then /me/accounts to find the managed page ----

type fbUser struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Picture struct {
		Data struct {
			URL string `json:"url"`
		} `json:"data"`
	} `json:"picture"`
}

type fbPages struct {
	Data []struct {
		ID          string `json:"id"`
		Name        string `json:"name"`
		AccessToken string `json:"access_token"`
	} `json:"data"`
}

func (s *Service) facebookProfile(ctx context.Context, def platform.Definition, token string) (*Profile, error) {
	var me fbUser
	if err := s.getJSON(ctx, def, token, "/me?fields=id,name,picture", &me); err != nil {
		return nil, err
	}
	p := &Profile{
		AccountID:   me.ID,
		DisplayName: me.Name,
		AvatarURL:   me.Picture.Data.URL,
		Targets:     map[string]string{},
	}

	// Hop 2: primera página administrada (target de publicación)
	var pages fbPages
	if err := s.getJSON(ctx, def, token, "/me/accounts", &pages); err != nil {
		return nil, err
	}
	if len(pages.Data) > 0 {
		p.Targets[TargetPageID] = pages.Data[0].ID
		p.Targets[TargetPageName] = pages.Data[0].Name
	}
	return p, nil
}

// ---- instagram: pages hop first, then the nested business account ----

type igBusinessLookup struct {
	InstagramBusinessAccount *struct {
		ID                string `json:"id"`
		Username          string `json:"username"`
		ProfilePictureURL string `json:"profile_picture_url"`
	} `json:"instagram_business_account"`
}

func (s *Service) instagramProfile(ctx context.Context, def platform.Definition, token string) (*Profile, error) {
	// Hop 1: páginas de facebook del usuario
	var pages fbPages
	if err := s.getJSON(ctx, def, token, "/me/accounts", &pages); err != nil {
		return nil, err
	}
	if len(pages.Data) == 0 {
		return nil, fmt.Errorf("oauth: instagram: no managed facebook page found")
	}

	// Hop 2: business account anidada bajo la página
	for _, page := range pages.Data {
		var lk igBusinessLookup
		if err := s.getJSON(ctx, def, token, "/"+page.ID+"?fields=instagram_business_account{id,username,profile_picture_url}", &lk); err != nil {
			return nil, err
		}
		if ba := lk.InstagramBusinessAccount; ba != nil {
			return &Profile{
				AccountID:   ba.ID,
				DisplayName: ba.Username,
				AvatarURL:   ba.ProfilePictureURL,
				Targets: map[string]string{
					TargetPageID:            page.ID,
					TargetBusinessAccountID: ba.ID,
				},
			}, nil
		}
	}
	return nil, fmt.Errorf("oauth: instagram: no business account linked to any managed page")
}

// ---- linkedin: OIDC userinfo ----

type linkedinUserinfo struct {
	Sub     string `json:"sub"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

func (s *Service) linkedinProfile(ctx context.Context, def platform.Definition, token string) (*Profile, error) {
	var ui linkedinUserinfo
	if err := s.getJSON(ctx, def, token, "/userinfo", &ui); err != nil {
		return nil, err
	}
	return &Profile{
		AccountID:   ui.Sub,
		DisplayName: ui.Name,
		AvatarURL:   ui.Picture,
		Targets:     map[string]string{TargetPersonURN: "urn:li:person:" + ui.Sub},
	}, nil
}

// ---- tiktok ----

type tiktokUserInfo struct {
	Data struct {
		User struct {
			OpenID      string `json:"open_id"`
			DisplayName string `json:"display_name"`
			AvatarURL   string `json:"avatar_url"`
		} `json:"user"`
	} `json:"data"`
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (s *Service) tiktokProfile(ctx context.Context, def platform.Definition, token string) (*Profile, error) {
	var ui tiktokUserInfo
	if err := s.getJSON(ctx, def, token, "/user/info/?fields=open_id,display_name,avatar_url", &ui); err != nil {
		return nil, err
	}
	if ui.Error.Code != "" && ui.Error.Code != "ok" {
		return nil, fmt.Errorf("oauth: tiktok user info: %s: %s", ui.Error.Code, ui.Error.Message)
	}
	u := ui.Data.User
	return &Profile{AccountID: u.OpenID, DisplayName: u.DisplayName, AvatarURL: u.AvatarURL}, nil
}

// ---- reddit ----

type redditMe struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	IconImg string `json:"icon_img"`
}

func (s *Service) redditProfile(ctx context.Context, def platform.Definition, token string) (*Profile, error) {
	var me redditMe
	if err := s.getJSON(ctx, def, token, "/api/v1/me", &me); err != nil {
		return nil, err
	}
	return &Profile{AccountID: me.ID, DisplayName: me.Name, AvatarURL: me.IconImg}, nil
}

// ---- discord ----

type discordMe struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Avatar   string `json:"avatar"`
}

func (s *Service) discordProfile(ctx context.Context, def platform.Definition, token string) (*Profile, error) {
	var me discordMe
	if err := s.getJSON(ctx, def, token, "/users/@me", &me); err != nil {
		return nil, err
	}
	avatar := ""
	if me.Avatar != "" {
		avatar = "https://cdn.discordapp.com/avatars/" + me.ID + "/" + me.Avatar + ".png"
	}
	return &Profile{AccountID: me.ID, DisplayName: me.Username, AvatarURL: avatar}, nil
}

// ---- pinterest ----

type pinterestAccount struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	ProfileImage string `json:"profile_image"`
}

func (s *Service) pinterestProfile(ctx context.Context, def platform.Definition, token string) (*Profile, error) {
	var acc pinterestAccount
	if err := s.getJSON(ctx, def, token, "/user_account", &acc); err != nil {
		return nil, err
	}
	return &Profile{AccountID: acc.ID, DisplayName: acc.Username, AvatarURL: acc.ProfileImage}, nil
}

// getJSON performs one authenticated GET against the platform API base.
func (s *Service) getJSON(ctx context.Context, def platform.Definition, token, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, def.APIBaseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("oauth: %s profile request: %w", def.Name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("oauth: %s profile response: %w", def.Name, err)
	}
	if resp.StatusCode/100 != 2 {
		return &TokenExchangeError{Platform: def.Name, Status: resp.StatusCode, Body: string(body)}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("oauth: %s: decode profile: %w", def.Name, err)
	}
	return nil
}
