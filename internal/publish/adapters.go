package publish

import (
	"fmt"

	"github.com/dropDatabas3/crosspost/internal/cache"
	"github.com/dropDatabas3/crosspost/internal/platform"
)

// NewAdapters builds one adapter per registered platform, keyed by platform
// name. This is the adapter set the orchestrator routes over.
func NewAdapters(reg *platform.Registry, creds CredentialSource, c cache.Client) (map[string]Publisher, error) {
	out := make(map[string]Publisher)
	for _, name := range reg.Names() {
		def, err := reg.Get(name)
		if err != nil {
			return nil, err
		}
		switch name {
		case platform.Instagram:
			out[name] = NewInstagram(def, creds)
		case platform.TikTok:
			out[name] = NewTikTok(def, creds)
		case platform.LinkedIn:
			out[name] = NewLinkedIn(def, creds)
		case platform.Discord:
			out[name] = NewDiscord(def, creds)
		case platform.Reddit:
			out[name] = NewReddit(def, creds)
		case platform.Facebook:
			out[name] = NewFacebook(def, creds, c)
		case platform.Pinterest:
			out[name] = NewPinterest(def, creds)
		default:
			return nil, fmt.Errorf("no adapter for platform %q", name)
		}
	}
	return out, nil
}
