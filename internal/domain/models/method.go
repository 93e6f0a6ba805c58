package models

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownMethod is returned for a method that is not in the registry
	ErrUnknownMethod = errors.New("unknown method")

	// ErrNoBaseURL is returned when a known method has no configured back-end
	ErrNoBaseURL = errors.New("no base URL configured for method")
)

// Method identifies a background-removal back-end, e.g. "u2net".
type Method string

// MethodInfo describes a method for display.
type MethodInfo struct {
	// Name is the identifier sent to the back-end
	Name Method `json:"name"`

	// DisplayName is the full model name
	DisplayName string `json:"displayName"`

	// ShortName is used where space is tight
	ShortName string `json:"shortName"`

	// SourceURL points at the model's upstream project
	SourceURL string `json:"sourceUrl"`

	// URLEnvKey is the environment variable holding the back-end base URL
	URLEnvKey string `json:"-"`
}

const (
	rembgModels = "https://github.com/danielgatis/rembg?tab=readme-ov-file#models"
	carveModels = "https://github.com/OPHoperHPO/image-background-remove-tool#%EF%B8%8F-how-does-it-work"
)

var defaultMethods = []MethodInfo{
	{Name: "bria", DisplayName: "Bria RMBG1.4", ShortName: "Bria", SourceURL: "https://huggingface.co/briaai/RMBG-1.4", URLEnvKey: "BRIA_URL"},
	{Name: "inspyrenet", DisplayName: "InSPyReNet", ShortName: "InSPyRe", SourceURL: "https://github.com/plemeri/transparent-background/tree/main", URLEnvKey: "INSPYRENET_URL"},
	{Name: "u2net", DisplayName: "U2Net", ShortName: "U2Net", SourceURL: carveModels, URLEnvKey: "U2NET_URL"},
	{Name: "tracer", DisplayName: "Tracer-B7", ShortName: "Tracer", SourceURL: carveModels, URLEnvKey: "TRACER_URL"},
	{Name: "basnet", DisplayName: "BASNet", ShortName: "BASNet", SourceURL: carveModels, URLEnvKey: "BASNET_URL"},
	{Name: "deeplab", DisplayName: "DeepLabV3", ShortName: "DeepLab", SourceURL: carveModels, URLEnvKey: "DEEPLAB_URL"},
	{Name: "u2net_human_seg", DisplayName: "U2Net Human", ShortName: "U2Net🧍", SourceURL: rembgModels, URLEnvKey: "U2NET_HUMAN_SEG_URL"},
	{Name: "ormbg", DisplayName: "Open RMBG", ShortName: "ORMBG", SourceURL: "https://huggingface.co/schirrmacher/ormbg", URLEnvKey: "ORMBG_URL"},
	{Name: "isnet-general-use", DisplayName: "ISNET-DIS", ShortName: "DIS", SourceURL: rembgModels, URLEnvKey: "ISNET_GENERAL_URL"},
	{Name: "isnet-anime", DisplayName: "ISNET-Anime", ShortName: "Anime", SourceURL: rembgModels, URLEnvKey: "ISNET_ANIME_URL"},
}

// DefaultMethods returns the built-in method catalogue in display order.
func DefaultMethods() []MethodInfo {
	out := make([]MethodInfo, len(defaultMethods))
	copy(out, defaultMethods)
	return out
}

// Registry maps methods to their metadata and resolved back-end base URLs.
type Registry struct {
	order []Method
	info  map[Method]MethodInfo
	urls  map[Method]string
}

// NewRegistry builds a registry from the given catalogue. urls may omit
// methods; those are listed but cannot be submitted.
func NewRegistry(methods []MethodInfo, urls map[Method]string) *Registry {
	r := &Registry{
		order: make([]Method, 0, len(methods)),
		info:  make(map[Method]MethodInfo, len(methods)),
		urls:  make(map[Method]string, len(urls)),
	}
	for _, m := range methods {
		if _, dup := r.info[m.Name]; dup {
			continue
		}
		r.order = append(r.order, m.Name)
		r.info[m.Name] = m
	}
	for m, u := range urls {
		if u = strings.TrimRight(strings.TrimSpace(u), "/"); u != "" {
			r.urls[m] = u
		}
	}
	return r
}

// Methods returns every registered method in display order.
func (r *Registry) Methods() []Method {
	out := make([]Method, len(r.order))
	copy(out, r.order)
	return out
}

// Lookup returns the metadata for a method.
func (r *Registry) Lookup(m Method) (MethodInfo, bool) {
	info, ok := r.info[m]
	return info, ok
}

// BaseURL returns the back-end base URL for a method.
func (r *Registry) BaseURL(m Method) (string, error) {
	if _, ok := r.info[m]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownMethod, m)
	}
	u, ok := r.urls[m]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrNoBaseURL, m)
	}
	return u, nil
}

// Available reports whether the method can be submitted.
func (r *Registry) Available(m Method) bool {
	_, err := r.BaseURL(m)
	return err == nil
}

// ParseMethods splits a comma separated list, dropping blanks and duplicates.
func ParseMethods(list string) []Method {
	parts := strings.Split(list, ",")
	methods := make([]Method, 0, len(parts))
	for _, part := range parts {
		methods = append(methods, Method(strings.TrimSpace(part)))
	}
	return UniqueMethods(methods)
}

// UniqueMethods returns methods in order with blanks and repeats removed.
func UniqueMethods(methods []Method) []Method {
	var out []Method
	seen := make(map[Method]bool, len(methods))
	for _, m := range methods {
		if m == "" || seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	return out
}
