package content

import (
	"errors"
	"strings"
	"testing"

	"github.com/dropDatabas3/crosspost/internal/platform"
)

func testDef(policy platform.CaptionPolicy) platform.Definition {
	return platform.Definition{
		Name: "testnet",
		Caps: platform.Capability{
			MaxCaptionLen:       280,
			CaptionPolicy:       policy,
			MaxHashtags:         5,
			MaxVideoSeconds:     60,
			MaxFileSizeMB:       10,
			MaxCarouselItems:    3,
			SupportedExtensions: []string{"jpg", "png", "mp4"},
		},
	}
}

func TestValidate_CaptionRejectVsTruncate(t *testing.T) {
	t.Parallel()
	long := strings.Repeat("x", 3000)

	// Política reject: error con field "caption"
	err := Validate(testDef(platform.CaptionReject), Payload{Caption: long})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(verr.Fields) != 1 || verr.Fields[0].Field != "caption" {
		t.Fatalf("fields = %+v, want single caption error", verr.Fields)
	}

	// Política truncate: el validador no falla (el adapter corta)
	if err := Validate(testDef(platform.CaptionTruncate), Payload{Caption: long}); err != nil {
		t.Fatalf("truncate policy should pass validation, got %v", err)
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	t.Parallel()
	p := Payload{
		Caption:  strings.Repeat("x", 300),
		Hashtags: []string{"a", "b", "c", "d", "e", "f"},
		Media: &Media{
			URL:             "https://cdn.example.com/video.avi?sig=abc",
			MIMEType:        "video/avi",
			SizeBytes:       20 * 1024 * 1024,
			DurationSeconds: 120,
			Kind:            KindVideo,
		},
	}

	err := Validate(testDef(platform.CaptionReject), p)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}

	want := map[string]bool{"caption": false, "hashtags": false, "media.size": false, "media.duration": false, "media.format": false}
	for _, f := range verr.Fields {
		if _, ok := want[f.Field]; !ok {
			t.Fatalf("unexpected field %q", f.Field)
		}
		want[f.Field] = true
	}
	for field, seen := range want {
		if !seen {
			t.Fatalf("missing error for field %q (got %+v)", field, verr.Fields)
		}
	}
}

func TestValidate_OK(t *testing.T) {
	t.Parallel()
	p := Payload{
		Caption:  "hola",
		Hashtags: []string{"go", "social"},
		Media: &Media{
			URL:       "https://cdn.example.com/pic.JPG?token=zzz",
			MIMEType:  "image/jpeg",
			SizeBytes: 1024,
			Kind:      KindImage,
		},
	}
	if err := Validate(testDef(platform.CaptionReject), p); err != nil {
		t.Fatalf("Validate err: %v", err)
	}
}

func TestExtension(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"https://x.com/a/b/video.MP4?sig=1&x=2": "mp4",
		"https://x.com/a/pic.jpeg":              "jpeg",
		"https://x.com/no-ext":                  "",
		"https://x.com/dir.d/file":              "",
	}
	for in, want := range cases {
		if got := Extension(in); got != want {
			t.Fatalf("Extension(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFormatCaption(t *testing.T) {
	t.Parallel()
	p := Payload{
		Caption:  "Lanzamiento!",
		Hashtags: []string{"go", "#release"},
		Mentions: []string{"equipo", "@qa"},
	}
	got := FormatCaption(p)
	want := "Lanzamiento!\n\n#go #release\n\n@equipo @qa"
	if got != want {
		t.Fatalf("FormatCaption = %q, want %q", got, want)
	}

	if got := FormatCaption(Payload{Caption: "solo texto"}); got != "solo texto" {
		t.Fatalf("FormatCaption plain = %q", got)
	}
}

func TestTruncateCaption(t *testing.T) {
	t.Parallel()
	if got := TruncateCaption("abcdef", 4); got != "abcd" {
		t.Fatalf("TruncateCaption = %q", got)
	}
	if got := TruncateCaption("añejo", 3); got != "añe" {
		t.Fatalf("TruncateCaption runes = %q", got)
	}
	if got := TruncateCaption("corto", 100); got != "corto" {
		t.Fatalf("TruncateCaption noop = %q", got)
	}
}
