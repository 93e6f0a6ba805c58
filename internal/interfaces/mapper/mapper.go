package mapper

import (
	"time"

	"github.com/bgbye/bgbye/internal/domain/models"
	"github.com/bgbye/bgbye/internal/interfaces/dtos"
)

// MapSessionToSessionDTO converts a session, keeping only notifications
// still visible at now.
func MapSessionToSessionDTO(s *models.Session, now time.Time) *dtos.SessionDTO {
	dto := &dtos.SessionDTO{
		ID:            s.ID,
		Asset:         MapAssetToAssetDTO(s.Asset),
		Generation:    s.Generation,
		Selected:      append([]models.Method{}, s.Selected...),
		Processing:    make(map[models.Method]bool, len(s.Processing)),
		Results:       make(map[models.Method]dtos.ResultDTO, len(s.Results)),
		ActiveMethod:  s.ActiveMethod,
		Video:         MapVideoJobToVideoJobDTO(s.Video),
		Notifications: []dtos.NotificationDTO{},
		CreatedAt:     s.CreatedAt,
		UpdatedAt:     s.UpdatedAt,
	}
	for m, busy := range s.Processing {
		dto.Processing[m] = busy
	}
	for m, r := range s.Results {
		dto.Results[m] = MapResultToResultDTO(r)
	}
	for _, n := range s.Notifications {
		if n.Active(now) {
			dto.Notifications = append(dto.Notifications, MapNotificationToNotificationDTO(n))
		}
	}
	return dto
}

func MapAssetToAssetDTO(a *models.Asset) *dtos.AssetDTO {
	if a == nil {
		return nil
	}
	return &dtos.AssetDTO{
		Filename:    a.Filename,
		ContentType: a.ContentType,
		Kind:        a.Kind,
		Size:        a.Size,
		Handle:      a.Handle,
	}
}

func MapResultToResultDTO(r models.SubmissionResult) dtos.ResultDTO {
	return dtos.ResultDTO{
		Method:      r.Method,
		Handle:      r.Handle,
		ContentType: r.ContentType,
		Size:        r.Size,
		Error:       r.Error,
		SettledAt:   r.SettledAt,
	}
}

func MapVideoJobToVideoJobDTO(v *models.VideoJob) *dtos.VideoJobDTO {
	if v == nil {
		return nil
	}
	return &dtos.VideoJobDTO{
		Method:   v.Method,
		JobID:    v.JobID,
		State:    v.State,
		Progress: v.Progress,
		Message:  v.Message,
	}
}

func MapNotificationToNotificationDTO(n models.Notification) dtos.NotificationDTO {
	return dtos.NotificationDTO{
		ID:        n.ID,
		Method:    n.Method,
		Level:     n.Level,
		Message:   n.Message,
		ExpiresAt: n.ExpiresAt,
	}
}

// MapRegistryToMethodDTOs lists the registry in display order.
func MapRegistryToMethodDTOs(r *models.Registry, defaults []models.Method) []dtos.MethodDTO {
	isDefault := make(map[models.Method]bool, len(defaults))
	for _, m := range defaults {
		isDefault[m] = true
	}

	out := make([]dtos.MethodDTO, 0, len(r.Methods()))
	for _, m := range r.Methods() {
		info, _ := r.Lookup(m)
		out = append(out, dtos.MethodDTO{
			Name:        info.Name,
			DisplayName: info.DisplayName,
			ShortName:   info.ShortName,
			SourceURL:   info.SourceURL,
			Available:   r.Available(m),
			Default:     isDefault[m],
		})
	}
	return out
}

// MapMethodNames converts validated request strings into methods.
func MapMethodNames(names []string) []models.Method {
	out := make([]models.Method, 0, len(names))
	for _, n := range names {
		out = append(out, models.Method(n))
	}
	return models.UniqueMethods(out)
}
