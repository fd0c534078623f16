package relay

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"

	"github.com/Ko-stant/room-layout-sync/internal/web/views"
	"github.com/Ko-stant/room-layout-sync/internal/ws"
)

type apiError struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func errorJSON(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, apiError{Error: msg})
}

// Router builds the relay's HTTP surface.
func (r *Relay) Router() chi.Router {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: r.opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	router.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	router.Get("/", r.handleIndex)
	router.Get("/catalog", r.handleCatalog)
	router.Get("/debug/metrics", r.handleMetrics)

	router.Route("/projects/{projectID}", func(sub chi.Router) {
		sub.Get("/", r.handleProject)
		sub.Get("/stream", r.handleStream)
		sub.Get("/furniture", r.handleFurniture)
	})
	return router
}

func (r *Relay) room(w http.ResponseWriter, req *http.Request) (*Room, bool) {
	room, err := r.Room(req.Context(), chi.URLParam(req, "projectID"))
	if errors.Is(err, ErrInvalidProject) {
		errorJSON(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	if err != nil {
		r.logger.Printf("load room: %v", err)
		errorJSON(w, http.StatusInternalServerError, "project unavailable")
		return nil, false
	}
	return room, true
}

func (r *Relay) handleStream(w http.ResponseWriter, req *http.Request) {
	room, ok := r.room(w, req)
	if !ok {
		return
	}
	userID := req.URL.Query().Get("user")
	if userID == "" {
		userID = uuid.NewString()
	}

	conn, err := ws.Accept(w, req, r.opts.AllowedOrigins, r.opts.ReadLimit)
	if err != nil {
		r.logger.Printf("project %s: websocket accept: %v", room.id, err)
		return
	}
	peer := ws.NewPeer(uuid.NewString(), userID, req.URL.Query().Get("name"), conn)
	if err := r.Serve(req.Context(), room, peer); err != nil {
		r.logger.Printf("project %s: peer %s: %v", room.id, peer.ID, err)
	}
}

func (r *Relay) handleFurniture(w http.ResponseWriter, req *http.Request) {
	room, ok := r.room(w, req)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, room.doc.Items())
}

func (r *Relay) handleProject(w http.ResponseWriter, req *http.Request) {
	room, ok := r.room(w, req)
	if !ok {
		return
	}

	v := views.ProjectView{ID: room.id, StateVector: room.doc.StateVector()}
	for _, p := range room.Peers() {
		v.Peers = append(v.Peers, views.PeerRow{ID: p.ID, UserID: p.UserID, Name: p.Name, ConnectedAt: p.ConnectedAt})
	}
	for _, it := range room.doc.Items() {
		v.Items = append(v.Items, views.ItemRow{
			ID: it.ID, Type: it.Type, Category: it.Category, Color: it.Color,
			X: it.Position.X, Y: it.Position.Y, Z: it.Position.Z, RotY: it.Rotation.Y,
		})
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := views.ProjectPage(v).Render(req.Context(), w); err != nil {
		r.logger.Printf("render project %s: %v", room.id, err)
	}
}

func (r *Relay) handleIndex(w http.ResponseWriter, req *http.Request) {
	projects, err := r.Projects(req.Context())
	if err != nil {
		r.logger.Printf("list projects: %v", err)
		errorJSON(w, http.StatusInternalServerError, "store unavailable")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := views.IndexPage(projects).Render(req.Context(), w); err != nil {
		r.logger.Printf("render index: %v", err)
	}
}

func (r *Relay) handleCatalog(w http.ResponseWriter, _ *http.Request) {
	if r.opts.Catalog == nil {
		errorJSON(w, http.StatusNotFound, "no catalog loaded")
		return
	}
	writeJSON(w, http.StatusOK, r.opts.Catalog.Definitions())
}

func (r *Relay) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	r.metrics.UpdateSystemMetrics()
	writeJSON(w, http.StatusOK, r.metrics.Snapshot())
}
