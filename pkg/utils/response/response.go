package response

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/bgbye/bgbye/pkg/errors"
	"github.com/bgbye/bgbye/pkg/utils"
	"github.com/go-playground/validator/v10"
)

// JSON responds a HTTP request with JSON data.
func JSON(w http.ResponseWriter, data interface{}) {
	JSONStatus(w, http.StatusOK, data)
}

// JSONStatus responds with data and an explicit status code.
func JSONStatus(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if data != nil {
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(data)
	} else {
		w.WriteHeader(errors.ErrNoResponse.Status())
		json.NewEncoder(w).Encode(errors.New(errors.ErrNoResponse))
	}
}

// Binary writes a raw payload. A non-empty filename makes it an attachment.
func Binary(w http.ResponseWriter, contentType, filename string, data []byte) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	if filename != "" {
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	}
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// HandleError handles error of HTTP request.
func HandleError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	if err == nil {
		w.WriteHeader(errors.ErrNoResponse.Status())
		json.NewEncoder(w).Encode(errors.New(errors.ErrNoResponse))
		return
	}

	appErr := toAppError(err)
	w.WriteHeader(appErr.ErrorCode.Status())
	json.NewEncoder(w).Encode(appErr)
}

// HandleErrorWithoutContext return error response without context
func HandleErrorWithoutContext(err error) string {
	data, _ := json.Marshal(toAppError(err))
	return string(data)
}

func toAppError(err error) errors.AppError {
	var appErr errors.AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	var verrs validator.ValidationErrors
	if stderrors.As(err, &verrs) {
		return errors.New(errors.ErrInvalidRequest, utils.ValidationMessage(err))
	}
	return errors.New(errors.ErrInternalServer)
}
