package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/dropDatabas3/crosspost/internal/content"
	"github.com/dropDatabas3/crosspost/internal/metrics"
	"github.com/dropDatabas3/crosspost/internal/observability/logger"
	"github.com/dropDatabas3/crosspost/internal/publish"
)

// ErrInvalidSchedule indicates the requested fire time is not strictly in
// the future.
var ErrInvalidSchedule = errors.New("scheduled time must be in the future")

// scheduleFireTimeout bounds the deferred fan-out once the timer fires.
const scheduleFireTimeout = 10 * time.Minute

// ScheduledPost is a pending deferred publish.
type ScheduledPost struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Platforms []string  `json:"platforms"`
	At        time.Time `json:"at"`
	CreatedAt time.Time `json:"createdAt"`

	timer *time.Timer
}

// SchedulePost registers a deferred PublishToMultiple at the given time.
// Scheduling is in-process: pending posts do not survive a restart.
func (s *Service) SchedulePost(platforms []string, req publish.Request, overrides map[string]content.Payload, at time.Time) (*ScheduledPost, error) {
	now := time.Now()
	if !at.After(now) {
		return nil, ErrInvalidSchedule
	}

	sp := &ScheduledPost{
		ID:        uuid.NewString(),
		UserID:    req.UserID,
		Platforms: platforms,
		At:        at,
		CreatedAt: now,
	}

	sp.timer = time.AfterFunc(at.Sub(now), func() {
		s.mu.Lock()
		delete(s.scheduled, sp.ID)
		pending := len(s.scheduled)
		s.mu.Unlock()
		metrics.ScheduledPending(pending)

		ctx, cancel := context.WithTimeout(context.Background(), scheduleFireTimeout)
		defer cancel()

		results := s.PublishToMultiple(ctx, platforms, req, overrides)
		succeeded := 0
		for _, r := range results {
			if r.Success {
				succeeded++
			}
		}
		logger.L().Info("scheduled post fired",
			logger.ScheduleID(sp.ID),
			logger.UserID(req.UserID),
			logger.Int("succeeded", succeeded),
			logger.Int("failed", len(results)-succeeded),
		)
	})

	s.mu.Lock()
	s.scheduled[sp.ID] = sp
	pending := len(s.scheduled)
	s.mu.Unlock()
	metrics.ScheduledPending(pending)

	logger.L().Info("post scheduled",
		logger.ScheduleID(sp.ID),
		logger.UserID(req.UserID),
		logger.Count(len(platforms)),
	)
	return sp, nil
}

// CancelScheduledPost cancels a pending post owned by userID. Returns false
// if the id is unknown, belongs to another user, or the post already fired.
func (s *Service) CancelScheduledPost(userID, id string) bool {
	s.mu.Lock()
	sp, ok := s.scheduled[id]
	if ok && sp.UserID != userID {
		ok = false
	}
	if ok {
		delete(s.scheduled, id)
	}
	pending := len(s.scheduled)
	s.mu.Unlock()

	if !ok {
		return false
	}
	sp.timer.Stop()
	metrics.ScheduledPending(pending)
	logger.L().Info("scheduled post cancelled", logger.ScheduleID(id))
	return true
}

// ListScheduled returns the pending posts in no particular order.
func (s *Service) ListScheduled() []*ScheduledPost {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*ScheduledPost, 0, len(s.scheduled))
	for _, sp := range s.scheduled {
		out = append(out, sp)
	}
	return out
}
