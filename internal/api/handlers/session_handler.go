package handlers

import (
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/bgbye/bgbye/internal/domain/models"
	"github.com/bgbye/bgbye/internal/interfaces/dtos"
	"github.com/bgbye/bgbye/internal/interfaces/mapper"
	"github.com/bgbye/bgbye/internal/service"
	"github.com/bgbye/bgbye/pkg/errors"
	"github.com/bgbye/bgbye/pkg/utils"
	"github.com/bgbye/bgbye/pkg/utils/response"
	"github.com/gabriel-vasile/mimetype"
	"github.com/gorilla/mux"
)

// multipart parts above this size spill to temporary files
const multipartMemory = 32 << 20

// SessionHandler handles session-related HTTP requests
type SessionHandler struct {
	dtos.Base
	sessionService service.SessionService
	maxUpload      int64
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(sessionService service.SessionService, maxUpload int64) *SessionHandler {
	return &SessionHandler{
		Base:           dtos.NewBase(),
		sessionService: sessionService,
		maxUpload:      maxUpload,
	}
}

// RegisterRoutes registers the session handler routes with the router
func (h *SessionHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/stats", h.getStats).Methods(http.MethodGet)

	router.HandleFunc("/sessions", h.createSession).Methods(http.MethodPost)
	router.HandleFunc("/sessions", h.listSessions).Methods(http.MethodGet)
	router.HandleFunc("/sessions/{id}", h.getSession).Methods(http.MethodGet)
	router.HandleFunc("/sessions/{id}", h.closeSession).Methods(http.MethodDelete)
	router.HandleFunc("/sessions/{id}/asset", h.replaceAsset).Methods(http.MethodPut)
	router.HandleFunc("/sessions/{id}/image", h.startImage).Methods(http.MethodPost)
	router.HandleFunc("/sessions/{id}/video", h.startVideo).Methods(http.MethodPost)
	router.HandleFunc("/sessions/{id}/active", h.setActive).Methods(http.MethodPut)
	router.HandleFunc("/sessions/{id}/download", h.download).Methods(http.MethodGet)
}

// createSession stores an upload in a new slot
func (h *SessionHandler) createSession(w http.ResponseWriter, r *http.Request) {
	upload, methods, err := h.readUpload(w, r)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	run, err := h.sessionService.CreateSession(r.Context(), upload, methods)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	response.JSONStatus(w, http.StatusCreated, run.Session)
}

// replaceAsset loads a new file into an existing slot
func (h *SessionHandler) replaceAsset(w http.ResponseWriter, r *http.Request) {
	upload, methods, err := h.readUpload(w, r)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	run, err := h.sessionService.ReplaceAsset(r.Context(), mux.Vars(r)["id"], upload, methods)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	h.JSON(w, run.Session)
}

// startImage submits the current image; an empty selection uses the defaults
func (h *SessionHandler) startImage(w http.ResponseWriter, r *http.Request) {
	var req dtos.StartImageDTO
	if err := decodeJSON(r, &req, true); err != nil {
		h.HandleError(w, err)
		return
	}
	if err := utils.Validate(req); err != nil {
		h.HandleError(w, err)
		return
	}

	run, err := h.sessionService.StartImage(r.Context(), mux.Vars(r)["id"], mapper.MapMethodNames(req.Methods))
	if err != nil {
		h.HandleError(w, err)
		return
	}

	response.JSONStatus(w, http.StatusAccepted, run.Session)
}

// startVideo submits the current video to one method
func (h *SessionHandler) startVideo(w http.ResponseWriter, r *http.Request) {
	var req dtos.SelectMethodDTO
	if err := decodeJSON(r, &req, false); err != nil {
		h.HandleError(w, err)
		return
	}
	if err := utils.Validate(req); err != nil {
		h.HandleError(w, err)
		return
	}

	run, err := h.sessionService.StartVideo(r.Context(), mux.Vars(r)["id"], models.Method(req.Method))
	if err != nil {
		h.HandleError(w, err)
		return
	}

	response.JSONStatus(w, http.StatusAccepted, run.Session)
}

// setActive switches the displayed result
func (h *SessionHandler) setActive(w http.ResponseWriter, r *http.Request) {
	var req dtos.SelectMethodDTO
	if err := decodeJSON(r, &req, false); err != nil {
		h.HandleError(w, err)
		return
	}
	if err := utils.Validate(req); err != nil {
		h.HandleError(w, err)
		return
	}

	session, err := h.sessionService.SetActiveMethod(r.Context(), mux.Vars(r)["id"], models.Method(req.Method))
	if err != nil {
		h.HandleError(w, err)
		return
	}

	h.JSON(w, session)
}

// getSession returns flags, results, progress and live notifications
func (h *SessionHandler) getSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessionService.GetSession(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.HandleError(w, err)
		return
	}

	h.JSON(w, session)
}

// listSessions lists every slot, newest first
func (h *SessionHandler) listSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.sessionService.ListSessions(r.Context())
	if err != nil {
		h.HandleError(w, err)
		return
	}

	res := map[string]interface{}{
		"sessions": sessions,
		"count":    len(sessions),
	}

	h.JSON(w, res)
}

// closeSession removes a slot
func (h *SessionHandler) closeSession(w http.ResponseWriter, r *http.Request) {
	if err := h.sessionService.CloseSession(r.Context(), mux.Vars(r)["id"]); err != nil {
		h.HandleError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// download renders the active result as an attachment
func (h *SessionHandler) download(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := service.DownloadOptions{Background: q.Get("background")}
	if v := q.Get("transparent"); v != "" {
		transparent, err := strconv.ParseBool(v)
		if err != nil {
			h.HandleError(w, errors.New(errors.ErrInvalidRequest, "transparent must be a boolean"))
			return
		}
		opts.Transparent = transparent
	}

	file, err := h.sessionService.Download(r.Context(), mux.Vars(r)["id"], opts)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	response.Binary(w, file.ContentType, file.Filename, file.Data)
}

// getStats returns processing statistics
func (h *SessionHandler) getStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.sessionService.GetStats(r.Context())
	if err != nil {
		h.HandleError(w, err)
		return
	}

	h.JSON(w, stats)
}

// readUpload reads the multipart "file" part and the optional "methods" list.
func (h *SessionHandler) readUpload(w http.ResponseWriter, r *http.Request) (service.Upload, []models.Method, error) {
	if h.maxUpload > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return service.Upload{}, nil, uploadError(err)
	}
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return service.Upload{}, nil, errors.New(errors.ErrInvalidRequest, "multipart field \"file\" is required")
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return service.Upload{}, nil, uploadError(err)
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = mimetype.Detect(data).String()
	}

	var req dtos.StartImageDTO
	for _, m := range models.ParseMethods(r.FormValue("methods")) {
		req.Methods = append(req.Methods, string(m))
	}
	if err := utils.Validate(req); err != nil {
		return service.Upload{}, nil, err
	}

	upload := service.Upload{
		Filename:    header.Filename,
		ContentType: contentType,
		Data:        data,
	}
	return upload, mapper.MapMethodNames(req.Methods), nil
}

func uploadError(err error) error {
	var tooLarge *http.MaxBytesError
	if stderrors.As(err, &tooLarge) {
		return errors.New(errors.ErrTooLarge, "upload exceeds %d bytes", tooLarge.Limit)
	}
	return errors.New(errors.ErrInvalidRequest, "malformed upload: %v", err)
}

// decodeJSON decodes a request body. An empty body is accepted when optional.
func decodeJSON(r *http.Request, dst interface{}, optional bool) error {
	defer r.Body.Close()

	err := json.NewDecoder(r.Body).Decode(dst)
	switch {
	case err == nil:
		return nil
	case stderrors.Is(err, io.EOF) && optional:
		return nil
	case stderrors.Is(err, io.EOF):
		return errors.New(errors.ErrInvalidRequest, "request body is required")
	default:
		return errors.New(errors.ErrInvalidRequest, "invalid JSON body: %s", strings.TrimSpace(err.Error()))
	}
}
