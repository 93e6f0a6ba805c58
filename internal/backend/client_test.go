package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bgbye/bgbye/internal/domain/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0}

func testAsset(t *testing.T, name, contentType string, data []byte) *models.Asset {
	t.Helper()
	a, err := models.NewAsset(name, contentType, data)
	require.NoError(t, err)
	return a
}

func TestRemoveBackground(t *testing.T) {
	// Setup
	var gotMethod, gotFilename, gotPartType string
	var gotBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/remove_background/", r.URL.Path)
		assert.NoError(t, r.ParseMultipartForm(1<<20))
		gotMethod = r.FormValue("method")
		f, hdr, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			return
		}
		defer f.Close()
		gotFilename = hdr.Filename
		gotPartType = hdr.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(f)

		w.Header().Set("Content-Type", "image/png")
		w.Write(pngHeader)
	}))
	defer server.Close()

	client := NewClient(Options{})
	asset := testAsset(t, "cat.jpg", "image/jpeg", []byte("jpeg-bytes"))

	// Test
	payload, err := client.RemoveBackground(context.Background(), server.URL, asset, "u2net")

	// Verify
	require.NoError(t, err)
	assert.Equal(t, "u2net", gotMethod)
	assert.Equal(t, "cat.jpg", gotFilename)
	assert.Equal(t, "image/jpeg", gotPartType)
	assert.Equal(t, []byte("jpeg-bytes"), gotBody)
	assert.Equal(t, "image/png", payload.ContentType)
	assert.Equal(t, pngHeader, payload.Data)
}

func TestRemoveBackground_SniffsMissingContentType(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write(pngHeader)
	}))
	defer server.Close()

	payload, err := NewClient(Options{}).RemoveBackground(context.Background(), server.URL,
		testAsset(t, "a.png", "image/png", []byte("x")), "bria")

	require.NoError(t, err)
	assert.Equal(t, "image/png", payload.ContentType)
}

func TestRemoveBackground_Non2xx(t *testing.T) {
	// Setup
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model exploded", http.StatusInternalServerError)
	}))
	defer server.Close()

	// Test
	_, err := NewClient(Options{}).RemoveBackground(context.Background(), server.URL,
		testAsset(t, "a.png", "image/png", []byte("x")), "tracer")

	// Verify
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusInternalServerError, statusErr.Code)
	assert.Equal(t, "model exploded", statusErr.Body)
}

func TestSubmitVideo(t *testing.T) {
	// Setup
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/remove_background_video/", r.URL.Path)
		assert.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "ormbg", r.FormValue("method"))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"video_id": "job-42"})
	}))
	defer server.Close()

	// Test
	jobID, err := NewClient(Options{}).SubmitVideo(context.Background(), server.URL,
		testAsset(t, "clip.mp4", "video/mp4", []byte("mp4")), "ormbg")

	// Verify
	require.NoError(t, err)
	assert.Equal(t, "job-42", jobID)
}

func TestSubmitVideo_MissingID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	_, err := NewClient(Options{}).SubmitVideo(context.Background(), server.URL,
		testAsset(t, "clip.mp4", "video/mp4", []byte("mp4")), "ormbg")
	assert.Error(t, err)
}

func TestStatus(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		code        int
		wantState   models.JobState
		wantProg    float64
		wantMessage string
		wantErr     bool
	}{
		{
			name:        "processing document",
			contentType: "application/json",
			body:        `{"status":"processing","progress":55,"message":"Processing frames"}`,
			code:        http.StatusOK,
			wantState:   models.JobProcessing,
			wantProg:    55,
			wantMessage: "Processing frames",
		},
		{
			name:        "error document",
			contentType: "application/json; charset=utf-8",
			body:        `{"status":"error","message":"Video not found"}`,
			code:        http.StatusOK,
			wantState:   models.JobError,
			wantMessage: "Video not found",
		},
		{
			name:        "unknown status",
			contentType: "application/json",
			body:        `{"status":"paused"}`,
			code:        http.StatusOK,
			wantState:   models.JobError,
			wantMessage: `unexpected job status "paused"`,
		},
		{
			name:        "binary payload means complete",
			contentType: "video/webm",
			body:        "webm-bytes",
			code:        http.StatusOK,
			wantState:   models.JobComplete,
			wantProg:    100,
		},
		{
			name:        "non-2xx",
			contentType: "application/json",
			body:        `{"status":"error"}`,
			code:        http.StatusBadGateway,
			wantErr:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Setup
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/status/job-1", r.URL.Path)
				w.Header().Set("Content-Type", tt.contentType)
				w.WriteHeader(tt.code)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			// Test
			status, err := NewClient(Options{}).Status(context.Background(), server.URL, "job-1")

			// Verify
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantState, status.State)
			assert.Equal(t, tt.wantProg, status.Progress)
			assert.Equal(t, tt.wantMessage, status.Message)
			if tt.wantState == models.JobComplete {
				require.NotNil(t, status.Payload)
				assert.Equal(t, "video/webm", status.Payload.ContentType)
				assert.Equal(t, []byte(tt.body), status.Payload.Data)
			}
		})
	}
}

func TestStatus_TransportFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := NewClient(Options{}).Status(context.Background(), url, "job-1")
	assert.Error(t, err)
}
