// Package orchestrator routes publish requests to platform adapters, fans
// out concurrently across platforms with settle-all semantics and supports
// deferred (scheduled) publishing.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dropDatabas3/crosspost/internal/content"
	"github.com/dropDatabas3/crosspost/internal/metrics"
	"github.com/dropDatabas3/crosspost/internal/observability/logger"
	"github.com/dropDatabas3/crosspost/internal/platform"
	"github.com/dropDatabas3/crosspost/internal/publish"
)

// Service is the publishing orchestrator. Adapters are registered once at
// construction; the map is read-only afterwards, so concurrent fan-out needs
// no locking around it.
type Service struct {
	adapters map[string]publish.Publisher

	mu        sync.Mutex
	scheduled map[string]*ScheduledPost
}

func New(adapters map[string]publish.Publisher) *Service {
	return &Service{
		adapters:  adapters,
		scheduled: make(map[string]*ScheduledPost),
	}
}

// resolve returns the adapter for a platform name.
func (s *Service) resolve(name string) (publish.Publisher, error) {
	p, ok := s.adapters[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", platform.ErrUnsupportedPlatform, name)
	}
	return p, nil
}

// PublishToSingle publishes to one platform. Adapter errors of any kind come
// back as a failed result, never as a Go error; even a panicking adapter
// settles into a result.
func (s *Service) PublishToSingle(ctx context.Context, platformName string, req publish.Request) *publish.PublishResult {
	adapter, err := s.resolve(platformName)
	if err != nil {
		return &publish.PublishResult{Platform: platformName, Error: err.Error()}
	}

	start := time.Now()
	res := s.safePublish(ctx, adapter, req)
	metrics.ObservePublish(platformName, res.Success, time.Since(start))

	if !res.Success {
		logger.L().Warn("publish failed",
			logger.Platform(platformName),
			logger.UserID(req.UserID),
			logger.String("reason", res.Error),
		)
	}
	return res
}

// PublishToMultiple fans out concurrently to every requested platform with a
// settle-all join: one platform's failure or slowness never blocks the
// others, and the returned map has exactly one entry per requested platform.
// overrides lets callers tailor content per platform; absent entries use the
// base request content.
func (s *Service) PublishToMultiple(ctx context.Context, platforms []string, req publish.Request, overrides map[string]content.Payload) map[string]*publish.PublishResult {
	results := make([]*publish.PublishResult, len(platforms))

	var g errgroup.Group
	for i, name := range platforms {
		i, name := i, name
		g.Go(func() error {
			r := req
			if ov, ok := overrides[name]; ok {
				r.Content = ov
			}
			results[i] = s.PublishToSingle(ctx, name, r)
			return nil
		})
	}
	_ = g.Wait() // goroutines never error; the join is the point

	out := make(map[string]*publish.PublishResult, len(platforms))
	for i, name := range platforms {
		out[name] = results[i]
	}
	return out
}

// PublishCarouselToSingle is the carousel analog of PublishToSingle.
func (s *Service) PublishCarouselToSingle(ctx context.Context, platformName string, req publish.Request) *publish.CarouselResult {
	adapter, err := s.resolve(platformName)
	if err != nil {
		return &publish.CarouselResult{PublishResult: publish.PublishResult{Platform: platformName, Error: err.Error()}}
	}
	start := time.Now()
	res := s.safeCarousel(ctx, adapter, req)
	metrics.ObservePublish(platformName, res.Success, time.Since(start))
	return res
}

// PublishCarouselToMultiple fans carousels out with the same settle-all
// guarantee and logs the aggregate outcome.
func (s *Service) PublishCarouselToMultiple(ctx context.Context, platforms []string, req publish.Request, overrides map[string]content.Payload) map[string]*publish.CarouselResult {
	results := make([]*publish.CarouselResult, len(platforms))

	var g errgroup.Group
	for i, name := range platforms {
		i, name := i, name
		g.Go(func() error {
			r := req
			if ov, ok := overrides[name]; ok {
				r.Content = ov
			}
			results[i] = s.PublishCarouselToSingle(ctx, name, r)
			return nil
		})
	}
	_ = g.Wait()

	succeeded, failed := 0, 0
	out := make(map[string]*publish.CarouselResult, len(platforms))
	for i, name := range platforms {
		out[name] = results[i]
		if results[i].Success {
			succeeded++
		} else {
			failed++
		}
	}
	logger.L().Info("carousel fan-out settled",
		logger.Int("succeeded", succeeded),
		logger.Int("failed", failed),
	)
	return out
}

// AnalyticsResult is the settle-all wrapper for multi-platform analytics.
type AnalyticsResult struct {
	Analytics *publish.Analytics `json:"analytics,omitempty"`
	Error     string             `json:"error,omitempty"`
}

// GetPostAnalytics routes to the resolved adapter.
func (s *Service) GetPostAnalytics(ctx context.Context, platformName, userID, postID string) (*publish.Analytics, error) {
	adapter, err := s.resolve(platformName)
	if err != nil {
		return nil, err
	}
	return adapter.GetAnalytics(ctx, userID, postID)
}

// GetMultiPlatformAnalytics fetches analytics for a post id per platform,
// settle-all: one entry per requested platform, errors recorded in place.
func (s *Service) GetMultiPlatformAnalytics(ctx context.Context, userID string, postIDs map[string]string) map[string]*AnalyticsResult {
	type slot struct {
		name string
		res  *AnalyticsResult
	}
	slots := make([]slot, 0, len(postIDs))
	for name := range postIDs {
		slots = append(slots, slot{name: name})
	}

	var g errgroup.Group
	for i := range slots {
		i := i
		g.Go(func() error {
			name := slots[i].name
			an, err := s.GetPostAnalytics(ctx, name, userID, postIDs[name])
			if err != nil {
				slots[i].res = &AnalyticsResult{Error: err.Error()}
				return nil
			}
			slots[i].res = &AnalyticsResult{Analytics: an}
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[string]*AnalyticsResult, len(slots))
	for _, sl := range slots {
		out[sl.name] = sl.res
	}
	return out
}

// DeletePost routes to the resolved adapter.
func (s *Service) DeletePost(ctx context.Context, platformName, userID, postID string) (bool, error) {
	adapter, err := s.resolve(platformName)
	if err != nil {
		return false, err
	}
	return adapter.Delete(ctx, userID, postID)
}

// safePublish converts adapter panics into failed results so one broken
// adapter cannot take down a fan-out.
func (s *Service) safePublish(ctx context.Context, adapter publish.Publisher, req publish.Request) (res *publish.PublishResult) {
	defer func() {
		if r := recover(); r != nil {
			logger.L().Error("adapter panic", logger.Platform(adapter.Platform()), logger.Any("panic", r))
			res = &publish.PublishResult{Platform: adapter.Platform(), Error: fmt.Sprintf("internal adapter failure: %v", r)}
		}
	}()
	return adapter.Publish(ctx, req)
}

func (s *Service) safeCarousel(ctx context.Context, adapter publish.Publisher, req publish.Request) (res *publish.CarouselResult) {
	defer func() {
		if r := recover(); r != nil {
			logger.L().Error("adapter panic", logger.Platform(adapter.Platform()), logger.Any("panic", r))
			res = &publish.CarouselResult{PublishResult: publish.PublishResult{
				Platform: adapter.Platform(), Error: fmt.Sprintf("internal adapter failure: %v", r),
			}}
		}
	}()
	return adapter.PublishCarousel(ctx, req)
}
