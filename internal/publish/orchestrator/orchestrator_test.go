package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dropDatabas3/crosspost/internal/content"
	"github.com/dropDatabas3/crosspost/internal/platform"
	"github.com/dropDatabas3/crosspost/internal/publish"
)

type fakeAdapter struct {
	name   string
	delay  time.Duration
	fail   bool
	panics bool

	mu    sync.Mutex
	calls []publish.Request
	count atomic.Int64
}

func (f *fakeAdapter) Platform() string { return f.name }

func (f *fakeAdapter) Publish(ctx context.Context, req publish.Request) *publish.PublishResult {
	f.count.Add(1)
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()

	if f.panics {
		panic("adapter roto")
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.fail {
		return &publish.PublishResult{Platform: f.name, Error: "platform rejected the post"}
	}
	now := time.Now()
	return &publish.PublishResult{Platform: f.name, Success: true, PostID: f.name + "-1", PublishedAt: &now}
}

func (f *fakeAdapter) PublishCarousel(ctx context.Context, req publish.Request) *publish.CarouselResult {
	res := f.Publish(ctx, req)
	cr := &publish.CarouselResult{PublishResult: *res}
	if res.Success {
		cr.ItemsPublished = len(req.Content.AllMedia())
	}
	return cr
}

func (f *fakeAdapter) GetAnalytics(ctx context.Context, userID, postID string) (*publish.Analytics, error) {
	if f.fail {
		return nil, errors.New("analytics unavailable")
	}
	return &publish.Analytics{Platform: f.name, PostID: postID, Metrics: map[string]any{"likes": int64(7)}}, nil
}

func (f *fakeAdapter) Delete(ctx context.Context, userID, postID string) (bool, error) {
	if f.fail {
		return false, errors.New("delete unavailable")
	}
	return true, nil
}

func newService(adapters ...*fakeAdapter) (*Service, map[string]*fakeAdapter) {
	m := make(map[string]publish.Publisher, len(adapters))
	byName := make(map[string]*fakeAdapter, len(adapters))
	for _, a := range adapters {
		m[a.name] = a
		byName[a.name] = a
	}
	return New(m), byName
}

func baseRequest() publish.Request {
	return publish.Request{UserID: "u1", Content: content.Payload{Caption: "hola"}}
}

func TestPublishToSingle_UnknownPlatform(t *testing.T) {
	t.Parallel()
	s, _ := newService(&fakeAdapter{name: platform.Discord})

	res := s.PublishToSingle(context.Background(), "myspace", baseRequest())
	if res.Success {
		t.Fatalf("expected failure")
	}
	if !strings.Contains(res.Error, "unsupported platform") || res.Platform != "myspace" {
		t.Fatalf("result = %+v", res)
	}
}

func TestPublishToSingle_PanicSettlesIntoResult(t *testing.T) {
	t.Parallel()
	s, _ := newService(&fakeAdapter{name: platform.Discord, panics: true})

	res := s.PublishToSingle(context.Background(), platform.Discord, baseRequest())
	if res.Success || !strings.Contains(res.Error, "adapter roto") {
		t.Fatalf("result = %+v", res)
	}
}

func TestPublishToMultiple_SettleAll(t *testing.T) {
	t.Parallel()
	slow := &fakeAdapter{name: platform.Reddit, delay: 80 * time.Millisecond}
	failing := &fakeAdapter{name: platform.Discord, fail: true}
	ok := &fakeAdapter{name: platform.Pinterest}
	s, _ := newService(slow, failing, ok)

	platforms := []string{platform.Reddit, platform.Discord, platform.Pinterest, "unknown"}
	results := s.PublishToMultiple(context.Background(), platforms, baseRequest(), nil)

	if len(results) != 4 {
		t.Fatalf("got %d results, want one per requested platform", len(results))
	}
	if !results[platform.Reddit].Success || !results[platform.Pinterest].Success {
		t.Fatalf("healthy platforms must settle successfully: %+v", results)
	}
	if results[platform.Discord].Success || results[platform.Discord].Error == "" {
		t.Fatalf("failing platform must settle as failure: %+v", results[platform.Discord])
	}
	if results["unknown"].Success {
		t.Fatalf("unknown platform must settle as failure")
	}
}

func TestPublishToMultiple_FailureDoesNotBlockOthers(t *testing.T) {
	t.Parallel()
	slow := &fakeAdapter{name: platform.Reddit, delay: 60 * time.Millisecond}
	fast := &fakeAdapter{name: platform.Pinterest}
	s, _ := newService(slow, fast)

	start := time.Now()
	results := s.PublishToMultiple(context.Background(), []string{platform.Reddit, platform.Pinterest}, baseRequest(), nil)
	elapsed := time.Since(start)

	if !results[platform.Reddit].Success || !results[platform.Pinterest].Success {
		t.Fatalf("results = %+v", results)
	}
	// Concurrent fan-out: total close to the slowest, not the sum.
	if elapsed > 150*time.Millisecond {
		t.Fatalf("fan-out took %v, platforms appear serialized", elapsed)
	}
}

func TestPublishToMultiple_PerPlatformOverrides(t *testing.T) {
	t.Parallel()
	reddit := &fakeAdapter{name: platform.Reddit}
	discord := &fakeAdapter{name: platform.Discord}
	s, _ := newService(reddit, discord)

	overrides := map[string]content.Payload{
		platform.Discord: {Caption: "versión corta"},
	}
	s.PublishToMultiple(context.Background(), []string{platform.Reddit, platform.Discord}, baseRequest(), overrides)

	if got := reddit.calls[0].Content.Caption; got != "hola" {
		t.Fatalf("reddit caption = %q", got)
	}
	if got := discord.calls[0].Content.Caption; got != "versión corta" {
		t.Fatalf("discord caption = %q", got)
	}
}

func TestPublishCarouselToMultiple(t *testing.T) {
	t.Parallel()
	ok := &fakeAdapter{name: platform.Instagram}
	failing := &fakeAdapter{name: platform.Pinterest, fail: true}
	s, _ := newService(ok, failing)

	req := publish.Request{UserID: "u1", Content: content.Payload{
		Caption: "album",
		Media:   &content.Media{URL: "https://cdn.example.com/a.jpg", MIMEType: "image/jpeg", Kind: content.KindImage},
		Extra:   []content.Media{{URL: "https://cdn.example.com/b.jpg", MIMEType: "image/jpeg", Kind: content.KindImage}},
	}}
	results := s.PublishCarouselToMultiple(context.Background(), []string{platform.Instagram, platform.Pinterest}, req, nil)

	if len(results) != 2 {
		t.Fatalf("got %d results", len(results))
	}
	if !results[platform.Instagram].Success || results[platform.Instagram].ItemsPublished != 2 {
		t.Fatalf("instagram = %+v", results[platform.Instagram])
	}
	if results[platform.Pinterest].Success {
		t.Fatalf("pinterest must settle as failure")
	}
}

func TestSchedulePost_RejectsPastTime(t *testing.T) {
	t.Parallel()
	s, _ := newService(&fakeAdapter{name: platform.Discord})

	_, err := s.SchedulePost([]string{platform.Discord}, baseRequest(), nil, time.Now().Add(-time.Second))
	if !errors.Is(err, ErrInvalidSchedule) {
		t.Fatalf("err = %v", err)
	}
	_, err = s.SchedulePost([]string{platform.Discord}, baseRequest(), nil, time.Now())
	if !errors.Is(err, ErrInvalidSchedule) {
		t.Fatalf("now is not strictly future, err = %v", err)
	}
}

func TestSchedulePost_FiresAndPublishes(t *testing.T) {
	t.Parallel()
	adapter := &fakeAdapter{name: platform.Discord}
	s, _ := newService(adapter)

	sp, err := s.SchedulePost([]string{platform.Discord}, baseRequest(), nil, time.Now().Add(30*time.Millisecond))
	if err != nil {
		t.Fatalf("SchedulePost: %v", err)
	}
	if sp.ID == "" || len(s.ListScheduled()) != 1 {
		t.Fatalf("scheduled post not registered: %+v", sp)
	}

	deadline := time.Now().Add(2 * time.Second)
	for adapter.count.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if adapter.count.Load() != 1 {
		t.Fatalf("scheduled post did not fire")
	}
	if len(s.ListScheduled()) != 0 {
		t.Fatalf("fired post must leave the pending set")
	}
}

func TestCancelScheduledPost(t *testing.T) {
	t.Parallel()
	adapter := &fakeAdapter{name: platform.Discord}
	s, _ := newService(adapter)

	sp, err := s.SchedulePost([]string{platform.Discord}, baseRequest(), nil, time.Now().Add(40*time.Millisecond))
	if err != nil {
		t.Fatalf("SchedulePost: %v", err)
	}

	if s.CancelScheduledPost("u2", sp.ID) {
		t.Fatalf("cancel by another user must return false")
	}
	if !s.CancelScheduledPost("u1", sp.ID) {
		t.Fatalf("cancel by the owner must return true")
	}
	if s.CancelScheduledPost("u1", sp.ID) {
		t.Fatalf("second cancel must return false")
	}
	if s.CancelScheduledPost("u1", "no-such-id") {
		t.Fatalf("cancel of unknown id must return false")
	}

	time.Sleep(80 * time.Millisecond)
	if adapter.count.Load() != 0 {
		t.Fatalf("cancelled post must not fire")
	}
}

func TestGetMultiPlatformAnalytics_SettleAll(t *testing.T) {
	t.Parallel()
	ok := &fakeAdapter{name: platform.Reddit}
	failing := &fakeAdapter{name: platform.Discord, fail: true}
	s, _ := newService(ok, failing)

	results := s.GetMultiPlatformAnalytics(context.Background(), "u1", map[string]string{
		platform.Reddit:  "t3_abc",
		platform.Discord: "msg-1",
		"unknown":        "x",
	})
	if len(results) != 3 {
		t.Fatalf("got %d results", len(results))
	}
	if results[platform.Reddit].Error != "" || results[platform.Reddit].Analytics == nil {
		t.Fatalf("reddit = %+v", results[platform.Reddit])
	}
	if results[platform.Discord].Error == "" || results["unknown"].Error == "" {
		t.Fatalf("failures must carry errors: %+v", results)
	}
}

func TestDeletePost_Routing(t *testing.T) {
	t.Parallel()
	s, _ := newService(&fakeAdapter{name: platform.Reddit})

	ok, err := s.DeletePost(context.Background(), platform.Reddit, "u1", "t3_abc")
	if err != nil || !ok {
		t.Fatalf("DeletePost = %v, %v", ok, err)
	}
	if _, err := s.DeletePost(context.Background(), "unknown", "u1", "x"); !errors.Is(err, platform.ErrUnsupportedPlatform) {
		t.Fatalf("err = %v", err)
	}
}
