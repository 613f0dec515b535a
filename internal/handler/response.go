package handler

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"

	"github.com/gorilla/schema"
	"github.com/yusufkecer/auth-backend/internal/service"
	"github.com/yusufkecer/auth-backend/internal/validation"
)

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

type messageResponse struct {
	Message string `json:"message"`
}

var formDecoder = newFormDecoder()

func newFormDecoder() *schema.Decoder {
	d := schema.NewDecoder()
	// Form posts also carry the CSRF field.
	d.IgnoreUnknownKeys(true)
	return d
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Errorf("Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// decodeRequest reads a JSON body, or a url encoded or multipart form
// when the content type says so.
func decodeRequest(r *http.Request, dst interface{}) error {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/x-www-form-urlencoded", "multipart/form-data":
		if mediaType == "multipart/form-data" {
			if err := r.ParseMultipartForm(1 << 20); err != nil {
				return err
			}
		} else if err := r.ParseForm(); err != nil {
			return err
		}
		return formDecoder.Decode(dst, r.PostForm)
	default:
		return json.NewDecoder(r.Body).Decode(dst)
	}
}

// writeServiceError maps an account service error to a status code. Internal
// errors are logged and reported without detail.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *validation.Error
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: verr.Message, Field: verr.Field})
	case errors.Is(err, service.ErrPasswordMismatch),
		errors.Is(err, service.ErrDuplicateEmail):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrUserNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrMissingToken),
		errors.Is(err, service.ErrInvalidToken):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrExpiredToken):
		writeError(w, http.StatusGone, err.Error())
	case errors.Is(err, service.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, err.Error())
	default:
		log.Errorf("%v %v: %v", r.Method, r.URL.Path, err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
