package middleware

import (
	"mime"
	"net/http"

	"github.com/tohomedistance/tohomedistance/internal/api/models"
)

// RequireJSON rejects request bodies that are declared as anything other
// than application/json.
func RequireJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
			if ct := r.Header.Get("Content-Type"); ct != "" {
				mediaType, _, err := mime.ParseMediaType(ct)
				if err != nil || mediaType != "application/json" {
					writeProblem(w, r, models.NewUnsupportedMediaType(GetRequestID(r.Context()), "Content-Type must be application/json"))
					return
				}
			}
		}
		next.ServeHTTP(w, r)
	})
}
