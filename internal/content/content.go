// Package content models the outbound post payload and validates it against
// a platform's content limits before any network call is made.
package content

import (
	"strings"
)

// MediaKind classifies a media descriptor.
type MediaKind string

const (
	KindImage    MediaKind = "image"
	KindVideo    MediaKind = "video"
	KindCarousel MediaKind = "carousel"
)

// Media describes one fetchable media item. The engine never stages bytes
// itself beyond what a platform protocol requires.
type Media struct {
	URL             string
	MIMEType        string
	SizeBytes       int64
	DurationSeconds int
	Kind            MediaKind
}

// IsVideo reports whether the descriptor is video content.
func (m Media) IsVideo() bool {
	return m.Kind == KindVideo || strings.HasPrefix(m.MIMEType, "video/")
}

// Payload is one logical outbound post.
type Payload struct {
	Caption  string
	Hashtags []string // ordered, without the leading '#'
	Mentions []string // ordered, without the leading '@'

	Media *Media
	// Extra holds the additional carousel items (ordered). The primary item
	// is Media; a carousel of N items has N-1 entries here.
	Extra []Media

	// Settings carries platform-specific knobs (board id, channel id,
	// organization id, visibility, title, webhook url, subreddit). Opaque to
	// the orchestrator; each adapter reads its own keys.
	Settings map[string]string
}

// Setting returns a platform-specific setting or "".
func (p Payload) Setting(key string) string {
	if p.Settings == nil {
		return ""
	}
	return p.Settings[key]
}

// AllMedia returns the primary item plus extras, in order.
func (p Payload) AllMedia() []Media {
	if p.Media == nil {
		return append([]Media(nil), p.Extra...)
	}
	out := make([]Media, 0, 1+len(p.Extra))
	out = append(out, *p.Media)
	out = append(out, p.Extra...)
	return out
}

// FormatCaption renders the final caption: the text, then hashtags, then
// mentions, each block separated by a blank line.
func FormatCaption(p Payload) string {
	var b strings.Builder
	b.WriteString(strings.TrimRight(p.Caption, "\n"))

	if len(p.Hashtags) > 0 {
		tags := make([]string, 0, len(p.Hashtags))
		for _, h := range p.Hashtags {
			h = strings.TrimPrefix(strings.TrimSpace(h), "#")
			if h != "" {
				tags = append(tags, "#"+h)
			}
		}
		if len(tags) > 0 {
			b.WriteString("\n\n")
			b.WriteString(strings.Join(tags, " "))
		}
	}

	if len(p.Mentions) > 0 {
		ms := make([]string, 0, len(p.Mentions))
		for _, m := range p.Mentions {
			m = strings.TrimPrefix(strings.TrimSpace(m), "@")
			if m != "" {
				ms = append(ms, "@"+m)
			}
		}
		if len(ms) > 0 {
			b.WriteString("\n\n")
			b.WriteString(strings.Join(ms, " "))
		}
	}

	return b.String()
}

// TruncateCaption cuts s at limit runes. Used by adapters whose platform
// policy is truncate rather than reject.
func TruncateCaption(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
