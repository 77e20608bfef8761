package http

import (
	"mime"
	"net/http"

	apperrors "github.com/utafrali/identity/pkg/errors"
)

var errUnsupportedMediaType = apperrors.New(http.StatusUnsupportedMediaType, "UNSUPPORTED_MEDIA_TYPE",
	"Content-Type must be application/json", apperrors.ErrInvalidInput)

// ContentTypeJSON rejects requests that declare a non-JSON body with 415.
// Requests without a Content-Type header pass through and fail at decoding.
func ContentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "" {
			mt, _, err := mime.ParseMediaType(ct)
			if err != nil || mt != "application/json" {
				writeError(w, r, errUnsupportedMediaType, nil)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
