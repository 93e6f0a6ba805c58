package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/bgbye/bgbye/internal/domain/models"
	"github.com/bgbye/bgbye/internal/telemetry"
	"github.com/bgbye/bgbye/pkg/logger"
	"github.com/gabriel-vasile/mimetype"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	removeBackgroundPath = "/remove_background/"
	removeVideoPath      = "/remove_background_video/"
	statusPath           = "/status/"

	maxErrorBody = 4 << 10
)

// StatusError is returned for any non-2xx back-end response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("backend returned %d %s", e.Code, http.StatusText(e.Code))
	}
	return fmt.Sprintf("backend returned %d: %s", e.Code, e.Body)
}

// Options configures a Client.
type Options struct {
	// HTTPClient performs the requests; nil uses a client without timeout
	HTTPClient *http.Client

	// Timeout bounds each request when positive
	Timeout time.Duration

	// Logger receives debug output
	Logger logger.Logger

	// Tracer creates a span per request; nil uses the service tracer
	Tracer trace.Tracer
}

// Client talks to the background-removal inference back-ends. The base URL is
// passed per call because every method may live on a different host.
type Client struct {
	http   *http.Client
	log    logger.Logger
	tracer trace.Tracer
}

// NewClient creates a back-end client.
func NewClient(opts Options) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: opts.Timeout}
	}
	log := opts.Logger
	if log == nil {
		log = logger.NewNop()
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = telemetry.Tracer()
	}
	return &Client{http: hc, log: log, tracer: tracer}
}

type videoSubmitResponse struct {
	VideoID string `json:"video_id"`
}

type statusDocument struct {
	Status   string  `json:"status"`
	Progress float64 `json:"progress"`
	Message  string  `json:"message"`
}

// RemoveBackground uploads an image for one method and returns the processed image.
func (c *Client) RemoveBackground(ctx context.Context, baseURL string, asset *models.Asset, method models.Method) (*models.Payload, error) {
	ctx, span := c.tracer.Start(ctx, "backend.remove_background", trace.WithAttributes(
		attribute.String("bgbye.method", string(method)),
		attribute.Int64("bgbye.asset_size", asset.Size),
	))
	defer span.End()

	resp, err := c.postAsset(ctx, baseURL+removeBackgroundPath, asset, method)
	if err != nil {
		return nil, spanError(span, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, spanError(span, fmt.Errorf("read response: %w", err))
	}

	c.log.Debugf("method %s returned %d bytes", method, len(data))
	return &models.Payload{
		ContentType: payloadType(resp.Header.Get("Content-Type"), data),
		Data:        data,
		CreatedAt:   time.Now().UTC(),
	}, nil
}

// SubmitVideo uploads a video for one method and returns the remote job id.
func (c *Client) SubmitVideo(ctx context.Context, baseURL string, asset *models.Asset, method models.Method) (string, error) {
	ctx, span := c.tracer.Start(ctx, "backend.submit_video", trace.WithAttributes(
		attribute.String("bgbye.method", string(method)),
		attribute.Int64("bgbye.asset_size", asset.Size),
	))
	defer span.End()

	resp, err := c.postAsset(ctx, baseURL+removeVideoPath, asset, method)
	if err != nil {
		return "", spanError(span, err)
	}
	defer resp.Body.Close()

	var body videoSubmitResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", spanError(span, fmt.Errorf("decode video submission: %w", err))
	}
	if body.VideoID == "" {
		return "", spanError(span, fmt.Errorf("video submission returned no video_id"))
	}

	span.SetAttributes(attribute.String("bgbye.job_id", body.VideoID))
	return body.VideoID, nil
}

// Status fetches the state of a video job. A JSON body is a status document;
// any other content type is the finished video.
func (c *Client) Status(ctx context.Context, baseURL, jobID string) (*models.JobStatus, error) {
	ctx, span := c.tracer.Start(ctx, "backend.status", trace.WithAttributes(
		attribute.String("bgbye.job_id", jobID),
	))
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+statusPath+url.PathEscape(jobID), nil)
	if err != nil {
		return nil, spanError(span, err)
	}

	resp, err := c.do(req)
	if err != nil {
		return nil, spanError(span, err)
	}
	defer resp.Body.Close()

	contentType := resp.Header.Get("Content-Type")
	if isJSON(contentType) {
		var doc statusDocument
		if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
			return nil, spanError(span, fmt.Errorf("decode status: %w", err))
		}
		status := statusFromDocument(doc)
		span.SetAttributes(attribute.String("bgbye.job_state", string(status.State)))
		return status, nil
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, spanError(span, fmt.Errorf("read video: %w", err))
	}
	span.SetAttributes(attribute.String("bgbye.job_state", string(models.JobComplete)))
	return &models.JobStatus{
		State:    models.JobComplete,
		Progress: 100,
		Payload: &models.Payload{
			ContentType: payloadType(contentType, data),
			Data:        data,
			CreatedAt:   time.Now().UTC(),
		},
	}, nil
}

func statusFromDocument(doc statusDocument) *models.JobStatus {
	switch strings.ToLower(doc.Status) {
	case "processing":
		return &models.JobStatus{State: models.JobProcessing, Progress: doc.Progress, Message: doc.Message}
	case "error":
		return &models.JobStatus{State: models.JobError, Progress: doc.Progress, Message: doc.Message}
	default:
		return &models.JobStatus{
			State:   models.JobError,
			Message: fmt.Sprintf("unexpected job status %q", doc.Status),
		}
	}
}

func (c *Client) postAsset(ctx context.Context, endpoint string, asset *models.Asset, method models.Method) (*http.Response, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, escapeQuotes(asset.Filename)))
	header.Set("Content-Type", asset.ContentType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(asset.Data); err != nil {
		return nil, fmt.Errorf("write form file: %w", err)
	}
	if err := writer.WriteField("method", string(method)); err != nil {
		return nil, fmt.Errorf("write method field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	return c.do(req)
}

// do sends the request and turns non-2xx responses into *StatusError.
func (c *Client) do(req *http.Request) (*http.Response, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	return resp, nil
}

func isJSON(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.Contains(strings.ToLower(contentType), "application/json")
	}
	return mt == "application/json" || strings.HasSuffix(mt, "+json")
}

// payloadType prefers the declared content type and sniffs otherwise.
func payloadType(declared string, data []byte) string {
	if mt, _, err := mime.ParseMediaType(declared); err == nil && mt != "application/octet-stream" {
		return mt
	}
	return mimetype.Detect(data).String()
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

func spanError(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
