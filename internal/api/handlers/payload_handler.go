package handlers

import (
	"net/http"
	"strconv"

	"github.com/bgbye/bgbye/internal/interfaces/dtos"
	"github.com/bgbye/bgbye/internal/service"
	"github.com/bgbye/bgbye/pkg/errors"
	"github.com/bgbye/bgbye/pkg/utils/response"
	"github.com/gorilla/mux"
)

// largest preview edge a client may ask for
const maxThumb = 2048

// PayloadHandler serves stored originals and results by handle
type PayloadHandler struct {
	dtos.Base
	sessionService service.SessionService
}

// NewPayloadHandler creates a new payload handler
func NewPayloadHandler(sessionService service.SessionService) *PayloadHandler {
	return &PayloadHandler{
		Base:           dtos.NewBase(),
		sessionService: sessionService,
	}
}

// RegisterRoutes registers the payload handler routes with the router
func (h *PayloadHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/payloads/{handle}", h.getPayload).Methods(http.MethodGet)
}

// getPayload streams payload bytes, optionally as a scaled preview
func (h *PayloadHandler) getPayload(w http.ResponseWriter, r *http.Request) {
	var thumb uint64
	if v := r.URL.Query().Get("thumb"); v != "" {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil || n > maxThumb {
			h.HandleError(w, errors.New(errors.ErrInvalidRequest, "thumb must be between 0 and %d", maxThumb))
			return
		}
		thumb = n
	}

	payload, err := h.sessionService.GetPayload(r.Context(), mux.Vars(r)["handle"], uint(thumb))
	if err != nil {
		h.HandleError(w, err)
		return
	}

	w.Header().Set("Cache-Control", "private, max-age=3600")
	response.Binary(w, payload.ContentType, "", payload.Data)
}
