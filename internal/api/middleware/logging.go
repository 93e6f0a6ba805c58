package middleware

import (
	"net/http"
	"time"

	"github.com/bgbye/bgbye/pkg/logger"
	"github.com/bgbye/bgbye/pkg/utils"
)

// RequestIDHeader carries the request identifier in both directions
const RequestIDHeader = "X-Request-ID"

// LoggingMiddleware logs HTTP requests. Upload bodies are never buffered here.
func LoggingMiddleware(log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := r.Header.Get(RequestIDHeader)
			if requestID == "" {
				requestID = utils.GenerateID()
			}
			w.Header().Set(RequestIDHeader, requestID)

			// Create a response writer wrapper to capture status code and size
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			// Process the request
			next.ServeHTTP(rw, r)

			// Log the request
			duration := time.Since(start)
			fields := logger.Fields{
				"request_id":     requestID,
				"method":         r.Method,
				"path":           r.URL.Path,
				"status_code":    rw.statusCode,
				"duration_ms":    duration.Milliseconds(),
				"request_bytes":  r.ContentLength,
				"response_bytes": rw.written,
				"user_agent":     r.UserAgent(),
				"remote_addr":    r.RemoteAddr,
			}
			if rw.statusCode >= http.StatusInternalServerError {
				log.WithFields(fields).Errorf("HTTP request")
				return
			}
			log.WithFields(fields).Infof("HTTP request")
		})
	}
}

// responseWriter is a wrapper around http.ResponseWriter that captures the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    int64
}

// WriteHeader captures the status code
func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Write counts the response bytes
func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.written += int64(n)
	return n, err
}
