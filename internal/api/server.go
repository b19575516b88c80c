// Package api exposes the HTTP surface: download requests, artifact
// delivery, metadata lookup, and the websocket progress feed.
package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ytdlder/ytdlder/internal/pipeline"
	"github.com/ytdlder/ytdlder/internal/progress"
	"github.com/ytdlder/ytdlder/internal/provider"
	"github.com/ytdlder/ytdlder/internal/store"
)

// DownloadRunner executes one download request end to end.
type DownloadRunner interface {
	Run(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
}

// Server routes HTTP traffic to the pipeline and the artifact store.
type Server struct {
	provider provider.Client
	runner   DownloadRunner
	store    store.Store
	hub      *progress.Hub
	upgrader websocket.Upgrader
}

// NewServer assembles the HTTP server.
func NewServer(p provider.Client, runner DownloadRunner, st store.Store, hub *progress.Hub) *Server {
	return &Server{
		provider: p,
		runner:   runner,
		store:    st,
		hub:      hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// Router builds the chi router with the full route table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(requestID)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/api/download", s.handleDownload)
	r.Post("/api/video-info", s.handleVideoInfo)
	r.Get("/api/files/{assetID}/{filename}", s.handleFile)
	r.Get("/ws", s.handleWS)

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return r
}
