package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/bgbye/bgbye/pkg/errors"
	"github.com/bgbye/bgbye/pkg/logger"
	"github.com/bgbye/bgbye/pkg/utils/response"
)

// RecoveryMiddleware recovers from panics and logs the error
func RecoveryMiddleware(log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					if err == http.ErrAbortHandler {
						panic(err)
					}

					// Log the error and stack trace
					stackTrace := debug.Stack()
					log.WithFields(logger.Fields{
						"error":       fmt.Sprint(err),
						"stack_trace": string(stackTrace),
						"path":        r.URL.Path,
						"method":      r.Method,
						"request_id":  w.Header().Get(RequestIDHeader),
					}).Errorf("Panic recovered")

					response.HandleError(w, errors.New(errors.ErrInternalServer))
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
