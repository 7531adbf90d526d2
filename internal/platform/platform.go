// Package platform holds the static per-platform configuration: OAuth
// endpoints and scopes, API base URLs, rate budgets and content limits.
// The Registry is the single place that validates platform keys; every other
// component resolves through it instead of re-checking names.
package platform

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// Supported platform keys.
const (
	Instagram = "instagram"
	TikTok    = "tiktok"
	LinkedIn  = "linkedin"
	Discord   = "discord"
	Reddit    = "reddit"
	Facebook  = "facebook"
	Pinterest = "pinterest"
)

// ErrUnsupportedPlatform is returned by Registry.Get for unknown keys.
var ErrUnsupportedPlatform = errors.New("unsupported platform")

// CaptionPolicy says what an adapter does with an over-long caption.
type CaptionPolicy string

const (
	// CaptionTruncate: the adapter silently cuts the caption at the limit.
	CaptionTruncate CaptionPolicy = "truncate"
	// CaptionReject: validation fails before any network call.
	CaptionReject CaptionPolicy = "reject"
)

// AuthStyle selects how client credentials travel on the token endpoint.
type AuthStyle int

const (
	// AuthStyleBody: client_id/client_secret as form fields.
	AuthStyleBody AuthStyle = iota
	// AuthStyleBasic: HTTP Basic auth header (reddit, pinterest).
	AuthStyleBasic
)

// Capability is the content-limit set the validator enforces.
type Capability struct {
	MaxCaptionLen       int
	CaptionPolicy       CaptionPolicy
	MaxHashtags         int
	MaxVideoSeconds     int
	MaxFileSizeMB       int
	MaxCarouselItems    int
	SupportedExtensions []string
}

// RateBudget is the advisory request budget per rolling window.
type RateBudget struct {
	Requests int
	Window   time.Duration
}

// OAuthEndpoints describes one platform's OAuth protocol surface.
type OAuthEndpoints struct {
	AuthURL  string
	TokenURL string
	// RevokeURL empty means the platform has no revoke endpoint; revocation
	// is then trivially successful.
	RevokeURL string

	Scopes           []string
	PKCERequired     bool
	RefreshSupported bool
	AuthStyle        AuthStyle

	// ClientIDParam overrides the authorize/token parameter name for the
	// client id ("client_key" on tiktok). Empty means "client_id".
	ClientIDParam string
	// ExtraAuthParams are appended verbatim to the authorize URL
	// (e.g. reddit's duration=permanent).
	ExtraAuthParams map[string]string
}

// Credentials are the app-level OAuth credentials, supplied by config.
type Credentials struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
}

// Definition is everything the engine knows about one platform.
type Definition struct {
	Name        string
	DisplayName string
	APIBaseURL  string
	OAuth       OAuthEndpoints
	Credentials Credentials
	Budget      RateBudget
	Caps        Capability
}

// ClientIDParam returns the effective parameter name for the client id.
func (d Definition) ClientIDParam() string {
	if d.OAuth.ClientIDParam != "" {
		return d.OAuth.ClientIDParam
	}
	return "client_id"
}

// Registry is an immutable lookup table built once at process start.
type Registry struct {
	defs map[string]Definition
}

// Override mutates a default definition at construction time (credentials,
// alternate base URLs for tests, tuned budgets).
type Override func(*Definition)

// WithCredentials sets the app credentials for a platform.
func WithCredentials(c Credentials) Override {
	return func(d *Definition) { d.Credentials = c }
}

// WithAPIBaseURL points the adapter at an alternate API host.
func WithAPIBaseURL(base string) Override {
	return func(d *Definition) { d.APIBaseURL = base }
}

// WithOAuthURLs points the OAuth endpoints at alternate hosts.
func WithOAuthURLs(authURL, tokenURL, revokeURL string) Override {
	return func(d *Definition) {
		if authURL != "" {
			d.OAuth.AuthURL = authURL
		}
		if tokenURL != "" {
			d.OAuth.TokenURL = tokenURL
		}
		if revokeURL != "" {
			d.OAuth.RevokeURL = revokeURL
		}
	}
}

// WithBudget replaces the rate budget.
func WithBudget(b RateBudget) Override {
	return func(d *Definition) { d.Budget = b }
}

// NewRegistry builds a registry from the compiled-in defaults plus per
// platform overrides. Unknown keys in overrides fail fast.
func NewRegistry(overrides map[string][]Override) (*Registry, error) {
	defs := defaults()
	for name, ovs := range overrides {
		d, ok := defs[name]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnsupportedPlatform, name)
		}
		for _, ov := range ovs {
			ov(&d)
		}
		defs[name] = d
	}
	return &Registry{defs: defs}, nil
}

// Get resolves a platform definition. This is the single validation point:
// callers rely on ErrUnsupportedPlatform instead of re-checking names.
func (r *Registry) Get(name string) (Definition, error) {
	d, ok := r.defs[name]
	if !ok {
		return Definition{}, fmt.Errorf("%w: %q", ErrUnsupportedPlatform, name)
	}
	return d, nil
}

// Names returns the supported platform keys, sorted.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.defs))
	for name := range r.defs {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
