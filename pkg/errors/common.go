package errors

import (
	"fmt"
	"net/http"
)

// Module constants definition.
const (
	Moduleshared   = 00
	SessionsModule = 01
	MethodsModule  = 02
	PayloadsModule = 03
)

// shared module error codes definition.
var (
	ErrInvalidRequest = fmtErrorCode(http.StatusBadRequest, Moduleshared, 1)
	ErrInternalServer = fmtErrorCode(http.StatusInternalServerError, Moduleshared, 1)
	ErrNoResponse     = fmtErrorCode(http.StatusInternalServerError, Moduleshared, 2)
	ErrNotFound       = fmtErrorCode(http.StatusNotFound, Moduleshared, 1)
	ErrConflict       = fmtErrorCode(http.StatusConflict, Moduleshared, 1)
	ErrTooLarge       = fmtErrorCode(http.StatusRequestEntityTooLarge, Moduleshared, 1)
)

// sessions module error codes definition.
var (
	ErrSessionNotFound   = fmtErrorCode(http.StatusNotFound, SessionsModule, 1)
	ErrNoAsset           = fmtErrorCode(http.StatusConflict, SessionsModule, 1)
	ErrWrongAssetKind    = fmtErrorCode(http.StatusConflict, SessionsModule, 2)
	ErrVideoBusy         = fmtErrorCode(http.StatusConflict, SessionsModule, 3)
	ErrNoResult          = fmtErrorCode(http.StatusConflict, SessionsModule, 4)
	ErrUnsupportedMedia  = fmtErrorCode(http.StatusUnsupportedMediaType, SessionsModule, 1)
	ErrVideoRejected     = fmtErrorCode(http.StatusUnprocessableEntity, SessionsModule, 1)
	ErrInvalidBackground = fmtErrorCode(http.StatusBadRequest, SessionsModule, 1)
)

// methods module error codes definition.
var (
	ErrUnknownMethod = fmtErrorCode(http.StatusBadRequest, MethodsModule, 1)
	ErrNoMethods     = fmtErrorCode(http.StatusBadRequest, MethodsModule, 2)
	ErrNoBackend     = fmtErrorCode(http.StatusServiceUnavailable, MethodsModule, 1)
)

// payloads module error codes definition.
var (
	ErrPayloadNotFound = fmtErrorCode(http.StatusNotFound, PayloadsModule, 1)
)

// GetErrorMessage gets error message from errorMessageMap.
func GetErrorMessage(errCode ErrorCode, args ...interface{}) string {
	if len(args) > 0 {
		msg, ok := args[0].(string)
		if ok {
			return fmt.Sprintf(msg, args[1:]...)
		}
	}

	return http.StatusText(errCode.Status())
}
