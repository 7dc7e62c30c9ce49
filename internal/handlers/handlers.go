package handlers

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"gallery-viewer/internal/app"
)

type Handlers struct {
	app      *app.App
	upgrader websocket.Upgrader
}

func New(a *app.App) *Handlers {
	return &Handlers{
		app: a,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// the API binds to localhost by default and serves no cookies
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// NewRouter registers every route of the API.
func NewRouter(h *Handlers) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", h.HealthCheck).Methods("GET")
	r.HandleFunc("/livez", h.LivenessCheck).Methods("GET", "HEAD")
	r.HandleFunc("/readyz", h.ReadinessCheck).Methods("GET")
	r.HandleFunc("/version", h.GetVersion).Methods("GET")
	r.Handle("/metrics", h.MetricsHandler()).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/galleries", h.ListGalleries).Methods("GET")
	api.HandleFunc("/galleries/{id:[0-9]+}", h.GetGallery).Methods("GET")
	api.HandleFunc("/galleries/{id:[0-9]+}", h.DeleteGallery).Methods("DELETE")
	api.HandleFunc("/galleries/{id:[0-9]+}/open", h.OpenGallery).Methods("POST")
	api.HandleFunc("/galleries/{id:[0-9]+}/thumbnail", h.GetThumbnail).Methods("GET")
	api.HandleFunc("/galleries/{id:[0-9]+}/rating", h.SetRating).Methods("PUT")
	api.HandleFunc("/galleries/{id:[0-9]+}/metadata", h.EditMetadata).Methods("PUT")
	api.HandleFunc("/scan", h.TriggerScan).Methods("POST")
	api.HandleFunc("/metadata/search", h.SearchMetadata).Methods("POST")
	api.HandleFunc("/duplicates", h.ListDuplicates).Methods("GET")
	api.HandleFunc("/duplicates", h.ResolveDuplicates).Methods("POST")
	api.HandleFunc("/events", h.Events).Methods("GET")

	return r
}

// galleryID reads the {id} route variable.
func galleryID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	return id, err == nil && id > 0
}
