package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"

	apperrors "github.com/utafrali/identity/pkg/errors"
)

// DefaultMaxBodyBytes bounds request bodies read by DecodeJSON and ParseForm.
const DefaultMaxBodyBytes = 1 << 20

// ErrBodyTooLarge is the cause of the 413 returned for oversized bodies.
var ErrBodyTooLarge = errors.New("request body too large")

// DecodeJSON reads a single JSON document from the body into dst. Oversized
// bodies yield a 413 AppError, malformed ones a 400.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, DefaultMaxBodyBytes)

	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		return bodyError("invalid request body", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return apperrors.InvalidInput("invalid request body: must contain a single JSON document")
	}
	return nil
}

// ParseForm parses an urlencoded or multipart form body with the same size
// bound as DecodeJSON. Already parsed requests are left alone.
func ParseForm(w http.ResponseWriter, r *http.Request) error {
	if r.PostForm != nil {
		return nil
	}
	r.Body = http.MaxBytesReader(w, r.Body, DefaultMaxBodyBytes)

	var err error
	if mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); mt == "multipart/form-data" {
		err = r.ParseMultipartForm(DefaultMaxBodyBytes)
	} else {
		err = r.ParseForm()
	}
	if err != nil {
		return bodyError("invalid form body", err)
	}
	return nil
}

func bodyError(prefix string, err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return apperrors.New(http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE",
			fmt.Sprintf("request body must not exceed %d bytes", tooLarge.Limit), ErrBodyTooLarge)
	}
	if errors.Is(err, io.EOF) {
		return apperrors.InvalidInput(prefix + ": body is empty")
	}
	return apperrors.InvalidInput(prefix + ": " + err.Error())
}
