package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/crosspost/internal/content"
	"github.com/dropDatabas3/crosspost/internal/observability/logger"
	"github.com/dropDatabas3/crosspost/internal/platform"
	"github.com/dropDatabas3/crosspost/internal/publish"
	"github.com/dropDatabas3/crosspost/internal/publish/orchestrator"
)

// mediaDTO y publishRequestDTO son el wire format de la API de publicación.
type mediaDTO struct {
	URL             string `json:"url"`
	MIMEType        string `json:"mimeType,omitempty"`
	SizeBytes       int64  `json:"sizeBytes,omitempty"`
	DurationSeconds int    `json:"durationSeconds,omitempty"`
	Kind            string `json:"kind,omitempty"`
}

type contentDTO struct {
	Caption  string            `json:"caption"`
	Hashtags []string          `json:"hashtags,omitempty"`
	Mentions []string          `json:"mentions,omitempty"`
	Media    *mediaDTO         `json:"media,omitempty"`
	Extra    []mediaDTO        `json:"extraMedia,omitempty"`
	Settings map[string]string `json:"settings,omitempty"`
}

type publishRequestDTO struct {
	Platforms []string              `json:"platforms"`
	Content   contentDTO            `json:"content"`
	Overrides map[string]contentDTO `json:"overrides,omitempty"`
}

type scheduleRequestDTO struct {
	publishRequestDTO
	At time.Time `json:"at"`
}

func toMedia(d *mediaDTO) *content.Media {
	if d == nil {
		return nil
	}
	kind := content.MediaKind(d.Kind)
	if kind == "" {
		kind = content.KindImage
	}
	return &content.Media{
		URL:             d.URL,
		MIMEType:        d.MIMEType,
		SizeBytes:       d.SizeBytes,
		DurationSeconds: d.DurationSeconds,
		Kind:            kind,
	}
}

func toPayload(d contentDTO) content.Payload {
	p := content.Payload{
		Caption:  d.Caption,
		Hashtags: d.Hashtags,
		Mentions: d.Mentions,
		Media:    toMedia(d.Media),
		Settings: d.Settings,
	}
	for i := range d.Extra {
		p.Extra = append(p.Extra, *toMedia(&d.Extra[i]))
	}
	return p
}

func toOverrides(in map[string]contentDTO) map[string]content.Payload {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]content.Payload, len(in))
	for k, v := range in {
		out[k] = toPayload(v)
	}
	return out
}

func (a *API) decodePublish(w http.ResponseWriter, r *http.Request) (*publishRequestDTO, bool) {
	var dto publishRequestDTO
	if !ReadJSON(w, r, &dto) {
		return nil, false
	}
	if len(dto.Platforms) == 0 {
		WriteError(w, http.StatusBadRequest, "invalid_request", "platforms is required")
		return nil, false
	}
	return &dto, true
}

func (a *API) handlePublish(w http.ResponseWriter, r *http.Request) {
	dto, ok := a.decodePublish(w, r)
	if !ok {
		return
	}
	req := publish.Request{UserID: UserID(r.Context()), Content: toPayload(dto.Content)}
	results := a.Orch.PublishToMultiple(r.Context(), dto.Platforms, req, toOverrides(dto.Overrides))
	WriteJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (a *API) handlePublishCarousel(w http.ResponseWriter, r *http.Request) {
	dto, ok := a.decodePublish(w, r)
	if !ok {
		return
	}
	req := publish.Request{UserID: UserID(r.Context()), Content: toPayload(dto.Content)}
	results := a.Orch.PublishCarouselToMultiple(r.Context(), dto.Platforms, req, toOverrides(dto.Overrides))
	WriteJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (a *API) handleSchedulePost(w http.ResponseWriter, r *http.Request) {
	var dto scheduleRequestDTO
	if !ReadJSON(w, r, &dto) {
		return
	}
	if len(dto.Platforms) == 0 {
		WriteError(w, http.StatusBadRequest, "invalid_request", "platforms is required")
		return
	}

	req := publish.Request{UserID: UserID(r.Context()), Content: toPayload(dto.Content)}
	sp, err := a.Orch.SchedulePost(dto.Platforms, req, toOverrides(dto.Overrides), dto.At)
	if err != nil {
		if errors.Is(err, orchestrator.ErrInvalidSchedule) {
			WriteError(w, http.StatusBadRequest, "invalid_schedule", "at must be in the future")
			return
		}
		logger.L().Error("schedule post", logger.Err(err))
		WriteError(w, http.StatusInternalServerError, "internal_error", "could not schedule")
		return
	}
	WriteJSON(w, http.StatusCreated, sp)
}

func (a *API) handleListScheduled(w http.ResponseWriter, r *http.Request) {
	userID := UserID(r.Context())
	all := a.Orch.ListScheduled()
	out := make([]*orchestrator.ScheduledPost, 0, len(all))
	for _, sp := range all {
		if sp.UserID == userID {
			out = append(out, sp)
		}
	}
	WriteJSON(w, http.StatusOK, map[string]any{"scheduled": out})
}

func (a *API) handleCancelScheduled(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if a.Orch.CancelScheduledPost(UserID(r.Context()), id) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	WriteError(w, http.StatusNotFound, "not_found", "no pending scheduled post with that id")
}

func (a *API) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	platformName := chi.URLParam(r, "platform")
	postID := chi.URLParam(r, "postId")

	an, err := a.Orch.GetPostAnalytics(r.Context(), platformName, UserID(r.Context()), postID)
	if err != nil {
		if errors.Is(err, platform.ErrUnsupportedPlatform) {
			WriteError(w, http.StatusNotFound, "unsupported_platform", platformName)
			return
		}
		WriteError(w, http.StatusBadGateway, "analytics_failed", err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, an)
}

func (a *API) handleMultiAnalytics(w http.ResponseWriter, r *http.Request) {
	var dto struct {
		PostIDs map[string]string `json:"postIds"`
	}
	if !ReadJSON(w, r, &dto) {
		return
	}
	if len(dto.PostIDs) == 0 {
		WriteError(w, http.StatusBadRequest, "invalid_request", "postIds is required")
		return
	}
	results := a.Orch.GetMultiPlatformAnalytics(r.Context(), UserID(r.Context()), dto.PostIDs)
	WriteJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (a *API) handleDeletePost(w http.ResponseWriter, r *http.Request) {
	platformName := chi.URLParam(r, "platform")
	postID := chi.URLParam(r, "postId")

	ok, err := a.Orch.DeletePost(r.Context(), platformName, UserID(r.Context()), postID)
	if err != nil {
		if errors.Is(err, platform.ErrUnsupportedPlatform) {
			WriteError(w, http.StatusNotFound, "unsupported_platform", platformName)
			return
		}
		WriteError(w, http.StatusBadGateway, "delete_failed", err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, map[string]bool{"deleted": ok})
}
