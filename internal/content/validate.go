package content

import (
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/dropDatabas3/crosspost/internal/platform"
)

// FieldError is one validation failure, named by field.
type FieldError struct {
	Field   string
	Message string
}

func (e FieldError) Error() string { return e.Field + ": " + e.Message }

// ValidationError aggregates every failed check. Validation never partially
// applies: the caller gets the full set before any network call.
type ValidationError struct {
	Platform string
	Fields   []FieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		msgs[i] = f.Error()
	}
	return "invalid content for " + e.Platform + ": " + strings.Join(msgs, "; ")
}

// Validate checks the payload against the platform capabilities. A nil return
// means every check passed. Platforms with CaptionTruncate policy do not fail
// on caption length — the adapter truncates instead.
func Validate(def platform.Definition, p Payload) error {
	var fields []FieldError

	caps := def.Caps

	if caps.MaxCaptionLen > 0 && caps.CaptionPolicy == platform.CaptionReject {
		if n := len([]rune(p.Caption)); n > caps.MaxCaptionLen {
			fields = append(fields, FieldError{
				Field:   "caption",
				Message: fmt.Sprintf("length %d exceeds limit %d", n, caps.MaxCaptionLen),
			})
		}
	}

	if len(p.Hashtags) > caps.MaxHashtags {
		fields = append(fields, FieldError{
			Field:   "hashtags",
			Message: fmt.Sprintf("count %d exceeds limit %d", len(p.Hashtags), caps.MaxHashtags),
		})
	}

	for i, m := range p.AllMedia() {
		prefix := "media"
		if i > 0 {
			prefix = fmt.Sprintf("media[%d]", i)
		}

		if caps.MaxFileSizeMB > 0 && m.SizeBytes > int64(caps.MaxFileSizeMB)*1024*1024 {
			fields = append(fields, FieldError{
				Field:   prefix + ".size",
				Message: fmt.Sprintf("%d bytes exceeds limit %d MB", m.SizeBytes, caps.MaxFileSizeMB),
			})
		}

		if m.IsVideo() && caps.MaxVideoSeconds > 0 && m.DurationSeconds > caps.MaxVideoSeconds {
			fields = append(fields, FieldError{
				Field:   prefix + ".duration",
				Message: fmt.Sprintf("%ds exceeds limit %ds", m.DurationSeconds, caps.MaxVideoSeconds),
			})
		}

		if len(caps.SupportedExtensions) > 0 {
			ext := Extension(m.URL)
			if ext == "" || !supported(caps.SupportedExtensions, ext) {
				fields = append(fields, FieldError{
					Field:   prefix + ".format",
					Message: fmt.Sprintf("extension %q not supported (allowed: %s)", ext, strings.Join(caps.SupportedExtensions, ", ")),
				})
			}
		}
	}

	if len(fields) == 0 {
		return nil
	}
	return &ValidationError{Platform: def.Name, Fields: fields}
}

// Extension extracts the lowercase file extension from a URL path, ignoring
// query parameters. "" when the path has none.
func Extension(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		// fall back to the raw string minus any query
		if i := strings.IndexByte(rawURL, '?'); i >= 0 {
			rawURL = rawURL[:i]
		}
		return strings.TrimPrefix(strings.ToLower(path.Ext(rawURL)), ".")
	}
	return strings.TrimPrefix(strings.ToLower(path.Ext(u.Path)), ".")
}

func supported(exts []string, ext string) bool {
	for _, e := range exts {
		if strings.EqualFold(e, ext) {
			return true
		}
	}
	return false
}
