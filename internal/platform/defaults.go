package platform

import "time"

// defaults returns the compiled-in platform table. Endpoints and limits track
// the platform docs; credentials always come from config.
func defaults() map[string]Definition {
	imageVideoExts := []string{"jpg", "jpeg", "png", "gif", "mp4", "mov"}

	return map[string]Definition{
		Instagram: {
			Name:        Instagram,
			DisplayName: "Instagram",
			APIBaseURL:  "https://graph.facebook.com/v19.0",
			OAuth: OAuthEndpoints{
				AuthURL:          "https://www.facebook.com/v19.0/dialog/oauth",
				TokenURL:         "https://graph.facebook.com/v19.0/oauth/access_token",
				Scopes:           []string{"instagram_basic", "instagram_content_publish", "pages_show_list", "business_management"},
				RefreshSupported: false, // long-lived tokens, re-auth on expiry
			},
			Budget: RateBudget{Requests: 200, Window: time.Hour},
			Caps: Capability{
				MaxCaptionLen:       2200,
				CaptionPolicy:       CaptionReject,
				MaxHashtags:         30,
				MaxVideoSeconds:     900,
				MaxFileSizeMB:       300,
				MaxCarouselItems:    10,
				SupportedExtensions: imageVideoExts,
			},
		},
		TikTok: {
			Name:        TikTok,
			DisplayName: "TikTok",
			APIBaseURL:  "https://open.tiktokapis.com/v2",
			OAuth: OAuthEndpoints{
				AuthURL:          "https://www.tiktok.com/v2/auth/authorize/",
				TokenURL:         "https://open.tiktokapis.com/v2/oauth/token/",
				RevokeURL:        "https://open.tiktokapis.com/v2/oauth/revoke/",
				Scopes:           []string{"user.info.basic", "video.publish", "video.upload"},
				PKCERequired:     true,
				RefreshSupported: true,
				ClientIDParam:    "client_key",
			},
			Budget: RateBudget{Requests: 600, Window: time.Minute},
			Caps: Capability{
				MaxCaptionLen:       2200,
				CaptionPolicy:       CaptionTruncate,
				MaxHashtags:         30,
				MaxVideoSeconds:     600,
				MaxFileSizeMB:       287,
				MaxCarouselItems:    10,
				SupportedExtensions: []string{"mp4", "mov", "webm", "jpg", "jpeg", "png"},
			},
		},
		LinkedIn: {
			Name:        LinkedIn,
			DisplayName: "LinkedIn",
			APIBaseURL:  "https://api.linkedin.com/v2",
			OAuth: OAuthEndpoints{
				AuthURL:          "https://www.linkedin.com/oauth/v2/authorization",
				TokenURL:         "https://www.linkedin.com/oauth/v2/accessToken",
				RevokeURL:        "https://www.linkedin.com/oauth/v2/revoke",
				Scopes:           []string{"openid", "profile", "w_member_social"},
				RefreshSupported: true,
			},
			Budget: RateBudget{Requests: 100, Window: 24 * time.Hour},
			Caps: Capability{
				MaxCaptionLen:       3000,
				CaptionPolicy:       CaptionReject,
				MaxHashtags:         30,
				MaxVideoSeconds:     600,
				MaxFileSizeMB:       200,
				MaxCarouselItems:    1, // un solo asset por ugcPost
				SupportedExtensions: imageVideoExts,
			},
		},
		Discord: {
			Name:        Discord,
			DisplayName: "Discord",
			APIBaseURL:  "https://discord.com/api/v10",
			OAuth: OAuthEndpoints{
				AuthURL:          "https://discord.com/oauth2/authorize",
				TokenURL:         "https://discord.com/api/oauth2/token",
				RevokeURL:        "https://discord.com/api/oauth2/token/revoke",
				Scopes:           []string{"identify", "guilds"},
				RefreshSupported: true,
			},
			Budget: RateBudget{Requests: 50, Window: time.Minute},
			Caps: Capability{
				MaxCaptionLen:       2000,
				CaptionPolicy:       CaptionTruncate,
				MaxHashtags:         20,
				MaxVideoSeconds:     0, // el webhook referencia el video por URL
				MaxFileSizeMB:       25,
				MaxCarouselItems:    1, // un embed por mensaje
				SupportedExtensions: []string{"jpg", "jpeg", "png", "gif", "webp", "mp4", "mov"},
			},
		},
		Reddit: {
			Name:        Reddit,
			DisplayName: "Reddit",
			APIBaseURL:  "https://oauth.reddit.com",
			OAuth: OAuthEndpoints{
				AuthURL:          "https://www.reddit.com/api/v1/authorize",
				TokenURL:         "https://www.reddit.com/api/v1/access_token",
				RevokeURL:        "https://www.reddit.com/api/v1/revoke_token",
				Scopes:           []string{"identity", "submit", "read"},
				RefreshSupported: true,
				AuthStyle:        AuthStyleBasic,
				ExtraAuthParams:  map[string]string{"duration": "permanent"},
			},
			Budget: RateBudget{Requests: 60, Window: time.Minute},
			Caps: Capability{
				MaxCaptionLen:       40000,
				CaptionPolicy:       CaptionReject,
				MaxHashtags:         0, // reddit no usa hashtags
				MaxVideoSeconds:     900,
				MaxFileSizeMB:       1024,
				MaxCarouselItems:    1, // la API de submit no acepta galerías
				SupportedExtensions: []string{"jpg", "jpeg", "png", "gif", "mp4", "mov"},
			},
		},
		Facebook: {
			Name:        Facebook,
			DisplayName: "Facebook",
			APIBaseURL:  "https://graph.facebook.com/v19.0",
			OAuth: OAuthEndpoints{
				AuthURL:          "https://www.facebook.com/v19.0/dialog/oauth",
				TokenURL:         "https://graph.facebook.com/v19.0/oauth/access_token",
				Scopes:           []string{"pages_manage_posts", "pages_read_engagement", "pages_show_list"},
				RefreshSupported: false,
			},
			Budget: RateBudget{Requests: 200, Window: time.Hour},
			Caps: Capability{
				MaxCaptionLen:       63206,
				CaptionPolicy:       CaptionTruncate,
				MaxHashtags:         30,
				MaxVideoSeconds:     14400,
				MaxFileSizeMB:       1024,
				MaxCarouselItems:    1, // una foto o video por publicación
				SupportedExtensions: imageVideoExts,
			},
		},
		Pinterest: {
			Name:        Pinterest,
			DisplayName: "Pinterest",
			APIBaseURL:  "https://api.pinterest.com/v5",
			OAuth: OAuthEndpoints{
				AuthURL:          "https://www.pinterest.com/oauth/",
				TokenURL:         "https://api.pinterest.com/v5/oauth/token",
				Scopes:           []string{"boards:read", "pins:read", "pins:write", "user_accounts:read"},
				RefreshSupported: true,
				AuthStyle:        AuthStyleBasic,
			},
			Budget: RateBudget{Requests: 300, Window: time.Minute},
			Caps: Capability{
				MaxCaptionLen:       500,
				CaptionPolicy:       CaptionTruncate,
				MaxHashtags:         20,
				MaxVideoSeconds:     300,
				MaxFileSizeMB:       2000,
				MaxCarouselItems:    5,
				SupportedExtensions: []string{"jpg", "jpeg", "png", "mp4", "mov", "m4v"},
			},
		},
	}
}
