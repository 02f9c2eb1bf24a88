package httpapi

import (
	"database/sql"
	"net/http"

	"powermeter-server/internal/metrics"
	"powermeter-server/internal/modules/measurements/views"
)

// NewMux registers the shared endpoints. Dashboard assets come from staticDir
// when it is set, otherwise from the embedded copy.
func NewMux(db *sql.DB, staticDir string) *http.ServeMux {
	mux := http.NewServeMux()
	registerHealthcheck(mux, db)
	mux.Handle("GET /metrics", metrics.Handler())

	var static http.Handler
	if staticDir != "" {
		static = http.FileServer(http.Dir(staticDir))
	} else {
		static = http.FileServerFS(views.StaticFS())
	}
	mux.Handle("GET /static/", http.StripPrefix("/static/", static))
	return mux
}
