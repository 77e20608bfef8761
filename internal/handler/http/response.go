package http

import (
	"log/slog"
	"net/http"

	"github.com/utafrali/identity/pkg/httputil"
)

type response = httputil.Response

func writeJSON(w http.ResponseWriter, status int, v any) {
	httputil.WriteJSON(w, status, v)
}

// writeError writes err using the status and code it carries. Errors without
// one are reported as internal errors and logged.
func writeError(w http.ResponseWriter, r *http.Request, err error, fallback *slog.Logger) {
	httputil.WriteError(w, r, err, fallback)
}
