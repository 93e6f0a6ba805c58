package api

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/bgbye/bgbye/internal/backend"
	"github.com/bgbye/bgbye/internal/config"
	"github.com/bgbye/bgbye/internal/domain/models"
	"github.com/bgbye/bgbye/internal/interfaces/dtos"
	"github.com/bgbye/bgbye/internal/processor"
	"github.com/bgbye/bgbye/internal/service"
	"github.com/bgbye/bgbye/internal/storage/memory"
	"github.com/bgbye/bgbye/pkg/errors"
	"github.com/bgbye/bgbye/pkg/logger"
	"github.com/bgbye/bgbye/pkg/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cutout(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	img.SetNRGBA(0, 0, color.NRGBA{G: 0xff, A: 0xff})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func newTestServer(t *testing.T, maxUpload int64) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(newTestRouter(t, maxUpload))
	t.Cleanup(srv.Close)
	return srv
}

// newTestRouter wires the real service against a fake inference back-end
// that fails every u2net request.
func newTestRouter(t *testing.T, maxUpload int64) *Router {
	t.Helper()
	result := cutout(t)

	inference := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if r.FormValue("method") == "u2net" {
			http.Error(w, "model crashed", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write(result)
	}))
	t.Cleanup(inference.Close)

	catalogue := []models.MethodInfo{
		{Name: "bria", DisplayName: "Bria RMBG1.4", ShortName: "Bria"},
		{Name: "u2net", DisplayName: "U2Net", ShortName: "U2Net"},
	}
	registry := models.NewRegistry(catalogue, map[models.Method]string{
		"bria":  inference.URL,
		"u2net": inference.URL,
	})

	client := backend.NewClient(backend.Options{})
	poller := processor.NewPoller(client, processor.PollerOptions{Interval: 10 * time.Millisecond})
	coordinator := processor.NewCoordinator(client, registry, poller, processor.CoordinatorOptions{Concurrency: 3})

	repo := memory.NewMemoryRepository()
	svc := service.NewSessionService(repo, repo, repo, coordinator, registry, service.ServiceOptions{
		DefaultMethods: []models.Method{"bria"},
	})
	t.Cleanup(func() {
		require.NoError(t, svc.Shutdown(context.Background()))
	})

	return NewRouter(svc, metrics.NewPrometheusMetrics("bgbye_test"), logger.NewNop(), config.ServerConfig{
		MaxUploadBytes: maxUpload,
	})
}

func multipartBody(t *testing.T, filename, contentType string, data []byte, methods string) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	if methods != "" {
		require.NoError(t, mw.WriteField("methods", methods))
	}
	require.NoError(t, mw.Close())
	return &body, mw.FormDataContentType()
}

func decodeSession(t *testing.T, resp *http.Response) dtos.SessionDTO {
	t.Helper()
	defer resp.Body.Close()
	var s dtos.SessionDTO
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&s))
	return s
}

func decodeError(t *testing.T, resp *http.Response) errors.AppError {
	t.Helper()
	defer resp.Body.Close()
	var e errors.AppError
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&e))
	return e
}

func do(t *testing.T, method, url, contentType string, body *bytes.Buffer) *http.Response {
	t.Helper()
	if body == nil {
		body = &bytes.Buffer{}
	}
	req, err := http.NewRequest(method, url, body)
	require.NoError(t, err)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func TestImageWorkflow(t *testing.T) {
	// Setup
	srv := newTestServer(t, 1<<20)
	body, ct := multipartBody(t, "cat.png", "image/png", cutout(t), "bria,u2net")

	// Test upload
	resp := do(t, http.MethodPost, srv.URL+APIPrefix+"/sessions", ct, body)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decodeSession(t, resp)
	assert.Equal(t, models.KindImage, created.Asset.Kind)
	assert.Equal(t, []models.Method{"bria", "u2net"}, created.Selected)

	// Wait for both methods to settle
	var session dtos.SessionDTO
	require.Eventually(t, func() bool {
		session = decodeSession(t, do(t, http.MethodGet, srv.URL+APIPrefix+"/sessions/"+created.ID, "", nil))
		return len(session.Results) == 2
	}, 5*time.Second, 10*time.Millisecond)

	// Verify state
	assert.Equal(t, models.Method("bria"), session.ActiveMethod)
	assert.NotEmpty(t, session.Results["bria"].Handle)
	assert.NotEmpty(t, session.Results["u2net"].Error)
	require.Len(t, session.Notifications, 1)
	assert.Equal(t, "Error processing image with u2net", session.Notifications[0].Message)

	// Download a flattened copy
	resp = do(t, http.MethodGet, srv.URL+APIPrefix+"/sessions/"+created.ID+"/download?background=%23ffffff", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), `filename="cat_bria.png"`)
	resp.Body.Close()

	// Preview the result
	resp = do(t, http.MethodGet, srv.URL+APIPrefix+"/payloads/"+session.Results["bria"].Handle+"?thumb=2", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	img, err := png.Decode(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, 2, img.Bounds().Dx())

	// A failed method cannot be displayed
	resp = do(t, http.MethodPut, srv.URL+APIPrefix+"/sessions/"+created.ID+"/active", "application/json", bytes.NewBufferString(`{"method":"u2net"}`))
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, errors.ErrNoResult, decodeError(t, resp).ErrorCode)

	// Close the session
	resp = do(t, http.MethodDelete, srv.URL+APIPrefix+"/sessions/"+created.ID, "", nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = do(t, http.MethodGet, srv.URL+APIPrefix+"/sessions/"+created.ID, "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, errors.ErrSessionNotFound, decodeError(t, resp).ErrorCode)
}

func TestUploadErrors(t *testing.T) {
	srv := newTestServer(t, 64<<10)

	tests := []struct {
		name   string
		body   func() (*bytes.Buffer, string)
		status int
		code   errors.ErrorCode
	}{
		{
			name: "unsupported type",
			body: func() (*bytes.Buffer, string) {
				return multipartBody(t, "notes.txt", "text/plain", []byte("hello"), "")
			},
			status: http.StatusUnsupportedMediaType,
			code:   errors.ErrUnsupportedMedia,
		},
		{
			name: "bad method name",
			body: func() (*bytes.Buffer, string) {
				return multipartBody(t, "cat.png", "image/png", cutout(t), "Bria RMBG!")
			},
			status: http.StatusBadRequest,
			code:   errors.ErrInvalidRequest,
		},
		{
			name: "unknown method",
			body: func() (*bytes.Buffer, string) {
				return multipartBody(t, "cat.png", "image/png", cutout(t), "tracer")
			},
			status: http.StatusBadRequest,
			code:   errors.ErrUnknownMethod,
		},
		{
			name: "missing file",
			body: func() (*bytes.Buffer, string) {
				var b bytes.Buffer
				mw := multipart.NewWriter(&b)
				mw.WriteField("methods", "bria")
				mw.Close()
				return &b, mw.FormDataContentType()
			},
			status: http.StatusBadRequest,
			code:   errors.ErrInvalidRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, ct := tt.body()

			resp := do(t, http.MethodPost, srv.URL+APIPrefix+"/sessions", ct, body)

			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, tt.code, decodeError(t, resp).ErrorCode)
		})
	}
}

func TestUploadTooLarge(t *testing.T) {
	router := newTestRouter(t, 64<<10)
	body, ct := multipartBody(t, "big.png", "image/png", make([]byte, 128<<10), "")
	req := httptest.NewRequest(http.MethodPost, APIPrefix+"/sessions", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	var e errors.AppError
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&e))
	assert.Equal(t, errors.ErrTooLarge, e.ErrorCode)
}

func TestUploadSniffsContentType(t *testing.T) {
	srv := newTestServer(t, 1<<20)
	body, ct := multipartBody(t, "cat", "application/octet-stream", cutout(t), "")

	resp := do(t, http.MethodPost, srv.URL+APIPrefix+"/sessions", ct, body)

	require.Equal(t, http.StatusCreated, resp.StatusCode)
	s := decodeSession(t, resp)
	assert.Equal(t, "image/png", s.Asset.ContentType)
	assert.Empty(t, s.Processing, "nothing starts without a selection")
}

func TestStartVideo_Validation(t *testing.T) {
	srv := newTestServer(t, 1<<20)
	body, ct := multipartBody(t, "clip.mp4", "video/mp4", []byte("not really a video"), "")
	resp := do(t, http.MethodPost, srv.URL+APIPrefix+"/sessions", ct, body)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	s := decodeSession(t, resp)
	url := srv.URL + APIPrefix + "/sessions/" + s.ID + "/video"

	resp = do(t, http.MethodPost, url, "application/json", bytes.NewBufferString(`{`))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = do(t, http.MethodPost, url, "application/json", bytes.NewBufferString(`{}`))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, decodeError(t, resp).Message, "Method failed required")

	resp = do(t, http.MethodPost, srv.URL+APIPrefix+"/sessions/"+s.ID+"/image", "application/json", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, errors.ErrWrongAssetKind, decodeError(t, resp).ErrorCode)
}

func TestThemeAndMethods(t *testing.T) {
	srv := newTestServer(t, 1<<20)

	resp := do(t, http.MethodPost, srv.URL+APIPrefix+"/preferences/theme/toggle", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var theme dtos.ThemeDTO
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&theme))
	resp.Body.Close()
	assert.True(t, theme.DarkMode)

	resp = do(t, http.MethodGet, srv.URL+APIPrefix+"/methods", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list struct {
		Methods []dtos.MethodDTO `json:"methods"`
		Count   int              `json:"count"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	resp.Body.Close()
	assert.Equal(t, 2, list.Count)
	assert.True(t, list.Methods[0].Default)
	assert.False(t, list.Methods[1].Default)
}

func TestHealthMetricsAndNotFound(t *testing.T) {
	srv := newTestServer(t, 1<<20)

	resp := do(t, http.MethodGet, srv.URL+"/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
	resp.Body.Close()

	resp = do(t, http.MethodGet, srv.URL+"/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, errors.ErrNotFound, decodeError(t, resp).ErrorCode)

	resp = do(t, http.MethodGet, srv.URL+"/metrics", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var scrape bytes.Buffer
	scrape.ReadFrom(resp.Body)
	resp.Body.Close()
	assert.True(t, strings.Contains(scrape.String(), "bgbye_test_http_requests_total"))
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(t, 1<<20)
	req, err := http.NewRequest(http.MethodOptions, srv.URL+APIPrefix+"/sessions", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "http://localhost:3000", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Methods"), http.MethodPut)
}
