package handlers

import (
	"net/http"

	"github.com/bgbye/bgbye/internal/interfaces/dtos"
	"github.com/bgbye/bgbye/internal/service"
	"github.com/gorilla/mux"
)

// PreferenceHandler exposes the method registry and the theme flag
type PreferenceHandler struct {
	dtos.Base
	sessionService service.SessionService
}

// NewPreferenceHandler creates a new preference handler
func NewPreferenceHandler(sessionService service.SessionService) *PreferenceHandler {
	return &PreferenceHandler{
		Base:           dtos.NewBase(),
		sessionService: sessionService,
	}
}

// RegisterRoutes registers the preference handler routes with the router
func (h *PreferenceHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/methods", h.listMethods).Methods(http.MethodGet)
	router.HandleFunc("/preferences/theme", h.getTheme).Methods(http.MethodGet)
	router.HandleFunc("/preferences/theme/toggle", h.toggleTheme).Methods(http.MethodPost)
}

func (h *PreferenceHandler) listMethods(w http.ResponseWriter, r *http.Request) {
	methods := h.sessionService.ListMethods(r.Context())

	res := map[string]interface{}{
		"methods": methods,
		"count":   len(methods),
	}

	h.JSON(w, res)
}

func (h *PreferenceHandler) getTheme(w http.ResponseWriter, r *http.Request) {
	dark, err := h.sessionService.Theme(r.Context())
	if err != nil {
		h.HandleError(w, err)
		return
	}

	h.JSON(w, dtos.ThemeDTO{DarkMode: dark})
}

func (h *PreferenceHandler) toggleTheme(w http.ResponseWriter, r *http.Request) {
	dark, err := h.sessionService.ToggleTheme(r.Context())
	if err != nil {
		h.HandleError(w, err)
		return
	}

	h.JSON(w, dtos.ThemeDTO{DarkMode: dark})
}
