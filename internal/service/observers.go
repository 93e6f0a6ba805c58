package service

import (
	"context"
	stderrors "errors"

	"github.com/bgbye/bgbye/internal/domain/events"
	"github.com/bgbye/bgbye/internal/domain/models"
	"github.com/bgbye/bgbye/internal/processor"
	"github.com/bgbye/bgbye/pkg/logger"
	"github.com/bgbye/bgbye/pkg/utils"
)

const completeMessage = "Processing complete"

// imageObserver records settled image requests on the session that
// dispatched them. Results for a superseded generation are dropped.
type imageObserver struct {
	svc        *DefaultSessionService
	sessionID  string
	generation int64
}

var _ processor.ImageObserver = (*imageObserver)(nil)

func (o *imageObserver) OnSettled(ctx context.Context, out processor.Outcome) {
	ctx = context.WithoutCancel(ctx)
	s := o.svc
	log := s.log.WithFields(logger.Fields{"session_id": o.sessionID, "method": out.Method})

	result := models.SubmissionResult{Method: out.Method, SettledAt: s.now()}
	if out.Err != nil {
		result.Error = out.Err.Error()
	} else {
		handle, err := s.payloads.PutPayload(ctx, out.Payload)
		if err != nil {
			log.Errorf("failed to store result: %v", err)
			result.Error = "failed to store result"
		} else {
			result.Handle = handle
			result.ContentType = out.Payload.ContentType
			result.Size = out.Payload.Size()
		}
	}

	_, err := s.update(ctx, o.sessionID, o.generation, func(sess *models.Session) {
		sess.Results[out.Method] = result
		sess.Processing[out.Method] = false
		// first success wins the display
		if result.OK() && sess.ActiveMethod == "" {
			sess.ActiveMethod = out.Method
		}
	})
	if err != nil {
		if result.Handle != "" {
			s.release(ctx, result.Handle)
		}
		if stderrors.Is(err, errStale) {
			log.Debugf("discarded result for replaced asset")
			return
		}
		log.Warnf("failed to record result: %v", err)
		return
	}

	event := events.NewEvent(events.SubmissionSettled, o.sessionID)
	event.Method = out.Method
	event.Handle = result.Handle
	event.Message = result.Error
	s.publish(ctx, event)
}

// videoObserver mirrors the life cycle of a video job onto its session.
type videoObserver struct {
	svc        *DefaultSessionService
	sessionID  string
	generation int64
}

var _ processor.VideoObserver = (*videoObserver)(nil)

func (o *videoObserver) OnJobSubmitted(ctx context.Context, method models.Method, jobID string) {
	o.apply(ctx, method, func(sess *models.Session) {
		sess.Video.JobID = jobID
	})
}

func (o *videoObserver) OnProgress(ctx context.Context, method models.Method, progress float64, message string) {
	ok := o.apply(ctx, method, func(sess *models.Session) {
		sess.Video.State = models.JobProcessing
		sess.Video.Progress = progress
		sess.Video.Message = message
	})
	if ok {
		event := events.NewEvent(events.VideoProgress, o.sessionID)
		event.Method = method
		event.Progress = progress
		event.Message = message
		o.svc.publish(ctx, event)
	}
}

func (o *videoObserver) OnComplete(ctx context.Context, method models.Method, payload *models.Payload) {
	ctx = context.WithoutCancel(ctx)
	s := o.svc

	handle, err := s.payloads.PutPayload(ctx, payload)
	if err != nil {
		s.log.WithFields(logger.Fields{"session_id": o.sessionID, "method": method}).Errorf("failed to store video: %v", err)
		o.OnFailed(ctx, method, "Error: failed to store processed video")
		return
	}

	ok := o.apply(ctx, method, func(sess *models.Session) {
		sess.Video.State = models.JobComplete
		sess.Video.Progress = 100
		sess.Video.Message = completeMessage
		sess.Processing[method] = false
		sess.Results[method] = models.SubmissionResult{
			Method:      method,
			Handle:      handle,
			ContentType: payload.ContentType,
			Size:        payload.Size(),
			SettledAt:   s.now(),
		}
		sess.ActiveMethod = method
	})
	if !ok {
		s.release(ctx, handle)
		return
	}

	event := events.NewEvent(events.VideoCompleted, o.sessionID)
	event.Method = method
	event.Handle = handle
	event.Progress = 100
	s.publish(ctx, event)
}

func (o *videoObserver) OnFailed(ctx context.Context, method models.Method, message string) {
	ok := o.apply(ctx, method, func(sess *models.Session) {
		sess.Video.State = models.JobError
		sess.Video.Message = message
		sess.Processing[method] = false
		sess.Results[method] = models.SubmissionResult{Method: method, Error: message, SettledAt: o.svc.now()}
	})
	if ok {
		event := events.NewEvent(events.VideoFailed, o.sessionID)
		event.Method = method
		event.Message = message
		o.svc.publish(ctx, event)
	}
}

// apply runs fn against the session's video job and reports whether it was
// recorded.
func (o *videoObserver) apply(ctx context.Context, method models.Method, fn func(sess *models.Session)) bool {
	ctx = context.WithoutCancel(ctx)
	s := o.svc
	_, err := s.update(ctx, o.sessionID, o.generation, func(sess *models.Session) {
		if sess.Video == nil {
			sess.Video = &models.VideoJob{Method: method}
		}
		fn(sess)
		sess.Video.UpdatedAt = s.now()
	})
	if err != nil {
		if !stderrors.Is(err, errStale) {
			s.log.WithFields(logger.Fields{"session_id": o.sessionID, "method": method}).Warnf("failed to record video state: %v", err)
		}
		return false
	}
	return true
}

// sessionNotifier attaches auto-dismissing notifications to a session.
type sessionNotifier struct {
	svc        *DefaultSessionService
	sessionID  string
	generation int64
}

var _ processor.Notifier = (*sessionNotifier)(nil)

func (n *sessionNotifier) Notify(ctx context.Context, level models.NotificationLevel, method models.Method, message string) {
	ctx = context.WithoutCancel(ctx)
	s := n.svc
	now := s.now()
	note := models.Notification{
		ID:        utils.GenerateID(),
		SessionID: n.sessionID,
		Method:    method,
		Level:     level,
		Message:   message,
		CreatedAt: now,
		ExpiresAt: now.Add(s.options.DismissAfter),
	}

	_, err := s.update(ctx, n.sessionID, n.generation, func(sess *models.Session) {
		sess.PruneNotifications(now)
		sess.Notifications = append(sess.Notifications, note)
	})
	if err != nil {
		if !stderrors.Is(err, errStale) {
			s.log.WithFields(logger.Fields{"session_id": n.sessionID}).Warnf("failed to record notification: %v", err)
		}
		return
	}

	s.log.WithFields(logger.Fields{"session_id": n.sessionID, "method": method, "level": level}).Infof("notification: %s", message)
	if s.options.Notifications != nil {
		s.options.Notifications.ObserveNotification(level)
	}

	event := events.NewEvent(events.NotificationRaised, n.sessionID)
	event.Method = method
	event.Level = level
	event.Message = message
	s.publish(ctx, event)
}
