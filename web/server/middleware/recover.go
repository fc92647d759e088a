package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
)

// Recover converts panics in downstream handlers into 500 responses.
func Recover(logger *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler { //nolint:errorlint,err113 // Sentinel panic value.
					panic(rec)
				}

				logger.Error("recovered from panic",
					"panic", fmt.Sprint(rec),
					"request_id", RequestIDFrom(r.Context()),
					"stack", string(debug.Stack()))

				http.Error(w, http.StatusText(http.StatusInternalServerError),
					http.StatusInternalServerError)
			}()

			next.ServeHTTP(w, r)
		})
	}
}
