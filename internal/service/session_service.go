package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bgbye/bgbye/internal/compose"
	"github.com/bgbye/bgbye/internal/domain/events"
	"github.com/bgbye/bgbye/internal/domain/models"
	"github.com/bgbye/bgbye/internal/interfaces/dtos"
	"github.com/bgbye/bgbye/internal/interfaces/mapper"
	"github.com/bgbye/bgbye/internal/processor"
	"github.com/bgbye/bgbye/internal/storage"
	"github.com/bgbye/bgbye/pkg/errors"
	"github.com/bgbye/bgbye/pkg/logger"
	"github.com/bgbye/bgbye/pkg/utils"
)

// ThemeKey is the preference key holding the dark mode flag.
const ThemeKey = "bgbye_theme"

// errStale aborts an update whose generation has been superseded.
var errStale = stderrors.New("stale generation")

// SessionService handles upload slots and their submissions
type SessionService interface {
	// CreateSession stores the upload in a new slot. Images start processing
	// immediately when methods are given.
	CreateSession(ctx context.Context, upload Upload, methods []models.Method) (*Run, error)

	// ReplaceAsset discards everything derived from the previous asset and
	// loads the new one
	ReplaceAsset(ctx context.Context, id string, upload Upload, methods []models.Method) (*Run, error)

	// StartImage submits the current image to the given methods
	StartImage(ctx context.Context, id string, methods []models.Method) (*Run, error)

	// StartVideo submits the current video to a single method
	StartVideo(ctx context.Context, id string, method models.Method) (*Run, error)

	// SetActiveMethod chooses which settled result is displayed
	SetActiveMethod(ctx context.Context, id string, method models.Method) (*dtos.SessionDTO, error)

	GetSession(ctx context.Context, id string) (*dtos.SessionDTO, error)
	ListSessions(ctx context.Context) ([]*dtos.SessionDTO, error)

	// CloseSession removes a slot and releases its payloads
	CloseSession(ctx context.Context, id string) error

	// GetPayload returns stored bytes, scaled to fit thumb pixels when thumb > 0
	GetPayload(ctx context.Context, handle string, thumb uint) (*models.Payload, error)

	// Download renders the active result for saving
	Download(ctx context.Context, id string, opts DownloadOptions) (*DownloadFile, error)

	ListMethods(ctx context.Context) []dtos.MethodDTO

	Theme(ctx context.Context) (bool, error)
	ToggleTheme(ctx context.Context) (bool, error)

	// PurgeExpired drops sessions idle for longer than ttl
	PurgeExpired(ctx context.Context, ttl time.Duration) (int, error)

	GetStats(ctx context.Context) (map[string]interface{}, error)
}

// Upload is a file received from a client.
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// DownloadOptions controls how the active result is rendered.
type DownloadOptions struct {
	// Transparent keeps the cut-out as is
	Transparent bool

	// Background is a CSS colour or gradient; empty uses the default
	Background string
}

// DownloadFile is a rendered result ready to be saved.
type DownloadFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Run tracks a submission running in the background.
type Run struct {
	// Session is the state right after dispatch
	Session *dtos.SessionDTO

	done chan struct{}
}

func finishedRun(s *dtos.SessionDTO) *Run {
	done := make(chan struct{})
	close(done)
	return &Run{Session: s, done: done}
}

// Wait blocks until every method of the run has settled.
func (r *Run) Wait() {
	<-r.done
}

// Done is closed once the run has settled.
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// NotificationRecorder counts raised notifications.
type NotificationRecorder interface {
	ObserveNotification(level models.NotificationLevel)
}

// ServiceOptions configures the session service.
type ServiceOptions struct {
	// DismissAfter is how long a notification stays visible
	DismissAfter time.Duration

	// DefaultMethods are used when an image submission names none
	DefaultMethods []models.Method

	Clock         processor.Clock
	Events        events.EventBus
	Notifications NotificationRecorder
	Logger        logger.Logger
}

// DefaultServiceOptions returns a four second dismiss delay on the wall clock.
func DefaultServiceOptions() ServiceOptions {
	return ServiceOptions{
		DismissAfter: 4 * time.Second,
		Clock:        processor.RealClock(),
		Events:       events.NewEventBus(),
		Logger:       logger.NewNop(),
	}
}

// DefaultSessionService is the default implementation of SessionService
type DefaultSessionService struct {
	repo        storage.SessionRepository
	payloads    storage.PayloadStore
	prefs       storage.PreferenceStore
	coordinator *processor.Coordinator
	registry    *models.Registry
	options     ServiceOptions
	log         logger.Logger

	// runs outlive the request that started them
	runCtx    context.Context
	cancelRun context.CancelFunc
	wg        sync.WaitGroup
}

var _ SessionService = (*DefaultSessionService)(nil)

// NewSessionService creates a new session service
func NewSessionService(
	repo storage.SessionRepository,
	payloads storage.PayloadStore,
	prefs storage.PreferenceStore,
	coordinator *processor.Coordinator,
	registry *models.Registry,
	options ServiceOptions,
) *DefaultSessionService {
	d := DefaultServiceOptions()
	if options.DismissAfter <= 0 {
		options.DismissAfter = d.DismissAfter
	}
	if options.Clock == nil {
		options.Clock = d.Clock
	}
	if options.Events == nil {
		options.Events = d.Events
	}
	if options.Logger == nil {
		options.Logger = d.Logger
	}

	runCtx, cancel := context.WithCancel(context.Background())
	return &DefaultSessionService{
		repo:        repo,
		payloads:    payloads,
		prefs:       prefs,
		coordinator: coordinator,
		registry:    registry,
		options:     options,
		log:         options.Logger,
		runCtx:      runCtx,
		cancelRun:   cancel,
	}
}

// Shutdown stops polling and waits for running submissions to return.
func (s *DefaultSessionService) Shutdown(ctx context.Context) error {
	s.cancelRun()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *DefaultSessionService) now() time.Time {
	return s.options.Clock.Now().UTC()
}

// CreateSession stores the upload in a new slot
func (s *DefaultSessionService) CreateSession(ctx context.Context, upload Upload, methods []models.Method) (*Run, error) {
	if err := s.checkMethods(methods); err != nil {
		return nil, err
	}
	asset, err := s.storeAsset(ctx, upload)
	if err != nil {
		return nil, err
	}

	now := s.now()
	session := models.NewSession(utils.GenerateID(), now)
	session.Reset(asset, now)

	if err := s.repo.Save(ctx, session); err != nil {
		s.release(ctx, asset.Handle)
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	s.log.WithFields(logger.Fields{"session_id": session.ID, "kind": asset.Kind, "size": asset.Size}).Infof("session created for %s", asset.Filename)
	s.publish(ctx, events.NewEvent(events.SessionCreated, session.ID))

	return s.autoStart(ctx, session, methods)
}

// ReplaceAsset discards the previous asset and loads a new one
func (s *DefaultSessionService) ReplaceAsset(ctx context.Context, id string, upload Upload, methods []models.Method) (*Run, error) {
	if err := s.checkMethods(methods); err != nil {
		return nil, err
	}
	asset, err := s.storeAsset(ctx, upload)
	if err != nil {
		return nil, err
	}

	var previous []string
	session, err := s.repo.Update(ctx, id, func(sess *models.Session) error {
		previous = sess.Handles()
		sess.Reset(asset, s.now())
		return nil
	})
	if err != nil {
		s.release(ctx, asset.Handle)
		return nil, mapStorageError(err)
	}

	// old payloads go before any request for the new asset is dispatched
	s.release(ctx, previous...)

	s.log.WithFields(logger.Fields{"session_id": id, "generation": session.Generation}).Infof("asset replaced with %s", asset.Filename)
	s.publish(ctx, events.NewEvent(events.SessionReplaced, id))

	return s.autoStart(ctx, session, methods)
}

func (s *DefaultSessionService) autoStart(ctx context.Context, session *models.Session, methods []models.Method) (*Run, error) {
	if session.Asset.Kind == models.KindImage && len(methods) > 0 {
		return s.StartImage(ctx, session.ID, methods)
	}
	return finishedRun(mapper.MapSessionToSessionDTO(session, s.now())), nil
}

// checkMethods rejects an explicit selection before anything is stored.
func (s *DefaultSessionService) checkMethods(methods []models.Method) error {
	if len(methods) == 0 {
		return nil
	}
	if _, err := s.coordinator.ResolveAll(methods); err != nil {
		return mapMethodError(err)
	}
	return nil
}

func (s *DefaultSessionService) storeAsset(ctx context.Context, upload Upload) (*models.Asset, error) {
	if len(upload.Data) == 0 {
		return nil, errors.New(errors.ErrInvalidRequest, "file is empty")
	}

	asset, err := models.NewAsset(upload.Filename, upload.ContentType, upload.Data)
	if err != nil {
		return nil, errors.New(errors.ErrUnsupportedMedia, "unsupported file type %q", upload.ContentType)
	}

	handle, err := s.payloads.PutPayload(ctx, &models.Payload{
		ContentType: asset.ContentType,
		Data:        asset.Data,
		CreatedAt:   s.now(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store upload: %w", err)
	}
	asset.Handle = handle
	return asset, nil
}

// loadAsset returns the session's asset with its bytes attached.
func (s *DefaultSessionService) loadAsset(ctx context.Context, session *models.Session, kind models.AssetKind) (*models.Asset, error) {
	if session.Asset == nil {
		return nil, errors.New(errors.ErrNoAsset, "session %s has no asset", session.ID)
	}
	if session.Asset.Kind != kind {
		return nil, errors.New(errors.ErrWrongAssetKind, "session %s holds a %s, not a %s", session.ID, session.Asset.Kind, kind)
	}

	original, err := s.payloads.GetPayload(ctx, session.Asset.Handle)
	if err != nil {
		return nil, mapStorageError(err)
	}
	asset := *session.Asset
	asset.Data = original.Data
	return &asset, nil
}

// StartImage submits the current image to the given methods
func (s *DefaultSessionService) StartImage(ctx context.Context, id string, methods []models.Method) (*Run, error) {
	if len(methods) == 0 {
		methods = s.options.DefaultMethods
	}
	methods = models.UniqueMethods(methods)
	if _, err := s.coordinator.ResolveAll(methods); err != nil {
		return nil, mapMethodError(err)
	}

	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, mapStorageError(err)
	}
	asset, err := s.loadAsset(ctx, current, models.KindImage)
	if err != nil {
		return nil, err
	}

	var replaced []string
	session, err := s.repo.Update(ctx, id, func(sess *models.Session) error {
		if sess.Generation != current.Generation {
			return errStale
		}
		for _, m := range methods {
			if sess.Processing[m] {
				return errors.New(errors.ErrConflict, "method %s is already processing", m)
			}
		}
		sess.Selected = append([]models.Method(nil), methods...)
		for _, m := range methods {
			if r, ok := sess.Results[m]; ok {
				if r.Handle != "" {
					replaced = append(replaced, r.Handle)
				}
				delete(sess.Results, m)
				if sess.ActiveMethod == m {
					sess.ActiveMethod = ""
				}
			}
			sess.Processing[m] = true
		}
		sess.UpdatedAt = s.now()
		return nil
	})
	if err != nil {
		if stderrors.Is(err, errStale) {
			return nil, errors.New(errors.ErrConflict, "asset was replaced, retry")
		}
		return nil, mapStorageError(err)
	}
	s.release(ctx, replaced...)

	gen := session.Generation
	obs := &imageObserver{svc: s, sessionID: id, generation: gen}
	notifier := &sessionNotifier{svc: s, sessionID: id, generation: gen}

	s.log.WithFields(logger.Fields{"session_id": id, "methods": len(methods)}).Infof("image submission started")

	run := &Run{Session: mapper.MapSessionToSessionDTO(session, s.now()), done: make(chan struct{})}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(run.done)
		if _, err := s.coordinator.SubmitImage(s.runCtx, asset, methods, obs, notifier); err != nil {
			s.log.WithFields(logger.Fields{"session_id": id}).Errorf("image submission aborted: %v", err)
		}
	}()
	return run, nil
}

// StartVideo submits the current video to a single method
func (s *DefaultSessionService) StartVideo(ctx context.Context, id string, method models.Method) (*Run, error) {
	if _, err := s.coordinator.ResolveAll([]models.Method{method}); err != nil {
		return nil, mapMethodError(err)
	}

	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, mapStorageError(err)
	}
	asset, err := s.loadAsset(ctx, current, models.KindVideo)
	if err != nil {
		return nil, err
	}

	var replaced []string
	session, err := s.repo.Update(ctx, id, func(sess *models.Session) error {
		if sess.Generation != current.Generation {
			return errStale
		}
		if sess.Video != nil && sess.Video.State == models.JobProcessing {
			return errors.New(errors.ErrVideoBusy, "video is already processing with %s", sess.Video.Method)
		}
		for _, r := range sess.Results {
			if r.Handle != "" {
				replaced = append(replaced, r.Handle)
			}
		}
		now := s.now()
		sess.Selected = []models.Method{method}
		sess.Results = make(map[models.Method]models.SubmissionResult)
		sess.Processing = map[models.Method]bool{method: true}
		sess.ActiveMethod = ""
		sess.Video = &models.VideoJob{Method: method, State: models.JobProcessing, UpdatedAt: now}
		sess.UpdatedAt = now
		return nil
	})
	if err != nil {
		if stderrors.Is(err, errStale) {
			return nil, errors.New(errors.ErrConflict, "asset was replaced, retry")
		}
		return nil, mapStorageError(err)
	}
	s.release(ctx, replaced...)

	gen := session.Generation
	obs := &videoObserver{svc: s, sessionID: id, generation: gen}
	notifier := &sessionNotifier{svc: s, sessionID: id, generation: gen}

	s.log.WithFields(logger.Fields{"session_id": id, "method": method}).Infof("video submission started")

	run := &Run{Session: mapper.MapSessionToSessionDTO(session, s.now()), done: make(chan struct{})}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(run.done)
		status, err := s.coordinator.SubmitVideo(s.runCtx, asset, method, obs, notifier)
		if err != nil {
			s.log.WithFields(logger.Fields{"session_id": id, "method": method}).Warnf("video submission ended in %s: %v", status.State, err)
		}
	}()
	return run, nil
}

// SetActiveMethod chooses which settled result is displayed
func (s *DefaultSessionService) SetActiveMethod(ctx context.Context, id string, method models.Method) (*dtos.SessionDTO, error) {
	session, err := s.repo.Update(ctx, id, func(sess *models.Session) error {
		if r, ok := sess.Results[method]; !ok || !r.OK() {
			return errors.New(errors.ErrNoResult, "no result for method %s", method)
		}
		sess.ActiveMethod = method
		sess.UpdatedAt = s.now()
		return nil
	})
	if err != nil {
		return nil, mapStorageError(err)
	}
	return mapper.MapSessionToSessionDTO(session, s.now()), nil
}

// GetSession retrieves a session by ID
func (s *DefaultSessionService) GetSession(ctx context.Context, id string) (*dtos.SessionDTO, error) {
	if id == "" {
		return nil, errors.New(errors.ErrInvalidRequest)
	}
	session, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, mapStorageError(err)
	}
	return mapper.MapSessionToSessionDTO(session, s.now()), nil
}

// ListSessions lists every session, newest first
func (s *DefaultSessionService) ListSessions(ctx context.Context) ([]*dtos.SessionDTO, error) {
	sessions, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	now := s.now()
	out := make([]*dtos.SessionDTO, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, mapper.MapSessionToSessionDTO(sess, now))
	}
	return out, nil
}

// CloseSession removes a slot and releases its payloads
func (s *DefaultSessionService) CloseSession(ctx context.Context, id string) error {
	session, err := s.repo.Get(ctx, id)
	if err != nil {
		return mapStorageError(err)
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return mapStorageError(err)
	}
	s.release(ctx, session.Handles()...)
	s.publish(ctx, events.NewEvent(events.SessionClosed, id))
	return nil
}

// GetPayload returns stored bytes
func (s *DefaultSessionService) GetPayload(ctx context.Context, handle string, thumb uint) (*models.Payload, error) {
	payload, err := s.payloads.GetPayload(ctx, handle)
	if err != nil {
		return nil, mapStorageError(err)
	}
	if thumb == 0 {
		return payload, nil
	}

	if !strings.HasPrefix(payload.ContentType, "image/") {
		return nil, errors.New(errors.ErrUnsupportedMedia, "previews are only available for images")
	}
	data, err := compose.Thumbnail(payload.Data, thumb)
	if err != nil {
		return nil, errors.New(errors.ErrUnsupportedMedia, "cannot preview payload %s", handle)
	}
	return &models.Payload{
		Handle:      payload.Handle,
		ContentType: "image/png",
		Data:        data,
		CreatedAt:   payload.CreatedAt,
	}, nil
}

// Download renders the active result
func (s *DefaultSessionService) Download(ctx context.Context, id string, opts DownloadOptions) (*DownloadFile, error) {
	session, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, mapStorageError(err)
	}
	if session.Asset == nil {
		return nil, errors.New(errors.ErrNoAsset, "session %s has no asset", id)
	}
	result, ok := session.Results[session.ActiveMethod]
	if session.ActiveMethod == "" || !ok || !result.OK() {
		return nil, errors.New(errors.ErrNoResult, "session %s has no result to download", id)
	}

	payload, err := s.payloads.GetPayload(ctx, result.Handle)
	if err != nil {
		return nil, mapStorageError(err)
	}

	kind := session.Asset.Kind
	file := &DownloadFile{
		Filename:    compose.Filename(session.Asset.Filename, session.ActiveMethod, kind),
		ContentType: compose.ContentType(kind),
		Data:        payload.Data,
	}

	if kind == models.KindVideo {
		if payload.ContentType != "" {
			file.ContentType = payload.ContentType
		}
		return file, nil
	}

	var fill compose.Fill = compose.Solid{}
	if !opts.Transparent {
		fill, err = compose.ParseFill(opts.Background)
		if err != nil {
			return nil, errors.New(errors.ErrInvalidBackground, "%v", err)
		}
	} else if payload.ContentType == "image/png" {
		return file, nil
	}

	file.Data, err = compose.Flatten(payload.Data, fill)
	if err != nil {
		return nil, fmt.Errorf("failed to render download: %w", err)
	}
	return file, nil
}

// ListMethods lists the registry with availability
func (s *DefaultSessionService) ListMethods(ctx context.Context) []dtos.MethodDTO {
	return mapper.MapRegistryToMethodDTOs(s.registry, s.options.DefaultMethods)
}

// Theme reports whether dark mode is on. Unset means light.
func (s *DefaultSessionService) Theme(ctx context.Context) (bool, error) {
	v, ok, err := s.prefs.GetPreference(ctx, ThemeKey)
	if err != nil {
		return false, fmt.Errorf("failed to read theme: %w", err)
	}
	if !ok {
		return false, nil
	}
	dark, _ := strconv.ParseBool(v)
	return dark, nil
}

// ToggleTheme flips and persists the theme flag
func (s *DefaultSessionService) ToggleTheme(ctx context.Context) (bool, error) {
	dark, err := s.Theme(ctx)
	if err != nil {
		return false, err
	}
	dark = !dark
	if err := s.prefs.SetPreference(ctx, ThemeKey, strconv.FormatBool(dark)); err != nil {
		return false, fmt.Errorf("failed to save theme: %w", err)
	}
	return dark, nil
}

// PurgeExpired drops sessions idle for longer than ttl
func (s *DefaultSessionService) PurgeExpired(ctx context.Context, ttl time.Duration) (int, error) {
	stale, err := s.repo.FindOlderThan(ctx, s.now().Add(-ttl))
	if err != nil {
		return 0, fmt.Errorf("failed to find expired sessions: %w", err)
	}

	purged := 0
	for _, sess := range stale {
		if len(sess.InFlight()) > 0 {
			continue
		}
		if err := s.repo.Delete(ctx, sess.ID); err != nil {
			if stderrors.Is(err, storage.ErrSessionNotFound) {
				continue
			}
			return purged, fmt.Errorf("failed to delete session %s: %w", sess.ID, err)
		}
		s.release(ctx, sess.Handles()...)
		s.publish(ctx, events.NewEvent(events.SessionClosed, sess.ID))
		purged++
	}
	return purged, nil
}

// GetStats returns processing statistics
func (s *DefaultSessionService) GetStats(ctx context.Context) (map[string]interface{}, error) {
	sessions, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	stats := make(map[string]interface{})
	inFlight := 0
	resultCounts := map[string]int{"succeeded": 0, "failed": 0}
	videoStates := make(map[models.JobState]int)
	for _, sess := range sessions {
		inFlight += len(sess.InFlight())
		for _, r := range sess.Results {
			if r.OK() {
				resultCounts["succeeded"]++
			} else {
				resultCounts["failed"]++
			}
		}
		if sess.Video != nil {
			videoStates[sess.Video.State]++
		}
	}

	payloads, _ := s.payloads.CountPayloads(ctx)

	stats["sessions"] = len(sessions)
	stats["methodsInFlight"] = inFlight
	stats["results"] = resultCounts
	stats["videoJobs"] = videoStates
	stats["payloads"] = payloads
	stats["coordinator"] = s.coordinator.Stats()
	stats["timestamp"] = s.now().Format(time.RFC3339)

	return stats, nil
}

// update applies fn only while the session still holds generation gen.
func (s *DefaultSessionService) update(ctx context.Context, id string, gen int64, fn func(sess *models.Session)) (*models.Session, error) {
	return s.repo.Update(ctx, id, func(sess *models.Session) error {
		if sess.Generation != gen {
			return errStale
		}
		fn(sess)
		sess.UpdatedAt = s.now()
		return nil
	})
}

func (s *DefaultSessionService) release(ctx context.Context, handles ...string) {
	if len(handles) == 0 {
		return
	}
	if err := s.payloads.ReleasePayloads(ctx, handles...); err != nil {
		s.log.Warnf("failed to release %d payloads: %v", len(handles), err)
	}
}

func (s *DefaultSessionService) publish(ctx context.Context, event events.Event) {
	if err := s.options.Events.Publish(ctx, event); err != nil {
		s.log.WithFields(logger.Fields{"event": event.EventType, "session_id": event.SessionID}).Warnf("event handler failed: %v", err)
	}
}

func mapStorageError(err error) error {
	var appErr errors.AppError
	switch {
	case stderrors.As(err, &appErr):
		return appErr
	case stderrors.Is(err, storage.ErrSessionNotFound):
		return errors.New(errors.ErrSessionNotFound)
	case stderrors.Is(err, storage.ErrPayloadNotFound):
		return errors.New(errors.ErrPayloadNotFound)
	case stderrors.Is(err, storage.ErrConcurrentModification):
		return errors.New(errors.ErrConflict, "session is busy, retry")
	default:
		return err
	}
}

func mapMethodError(err error) error {
	switch {
	case stderrors.Is(err, processor.ErrNoMethods):
		return errors.New(errors.ErrNoMethods, "no methods selected")
	case stderrors.Is(err, models.ErrUnknownMethod):
		return errors.New(errors.ErrUnknownMethod, "%v", err)
	case stderrors.Is(err, models.ErrNoBaseURL):
		return errors.New(errors.ErrNoBackend, "%v", err)
	default:
		return err
	}
}
