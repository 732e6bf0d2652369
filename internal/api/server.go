// Package api exposes the catalogue over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/newearthmartin/irdin/internal/search"
	"github.com/sirupsen/logrus"
)

// Server serves search, item detail and media files.
type Server struct {
	service        search.Service
	mediaDir       string
	allowedOrigins []string
}

// ErrorResponse is the body of every non-2xx JSON reply.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code"`
}

// NewServer creates a server. An empty mediaDir disables /media/.
func NewServer(service search.Service, mediaDir string, allowedOrigins []string) *Server {
	return &Server{
		service:        service,
		mediaDir:       mediaDir,
		allowedOrigins: allowedOrigins,
	}
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/search", s.handleSearch)
	mux.HandleFunc("GET /api/items/{slug}", s.handleItem)
	mux.HandleFunc("GET /api/palestras/{slug}", s.handleItem)
	if s.mediaDir != "" {
		mux.Handle("GET /media/", http.StripPrefix("/media/", mediaHandler(s.mediaDir)))
	}

	return loggingMiddleware(corsMiddleware(s.allowedOrigins)(mux))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleSearch handles GET /api/search?q=&page=&fields=
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()

	page := 1
	if raw := params.Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "page must be an integer")
			return
		}
		page = n
	}

	fields, err := search.ParseFields(params["fields"])
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.service.Search(r.Context(), search.Request{
		Query:  params.Get("q"),
		Page:   page,
		Fields: fields,
	})
	if err != nil {
		logrus.WithError(err).WithField("query", params.Get("q")).Error("Search failed")
		respondError(w, http.StatusInternalServerError, "search failed")
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// handleItem handles GET /api/items/{slug}
func (s *Server) handleItem(w http.ResponseWriter, r *http.Request) {
	slug := r.PathValue("slug")

	item, err := s.service.Item(r.Context(), slug)
	if errors.Is(err, search.ErrNotFound) {
		respondError(w, http.StatusNotFound, "palestra não encontrada")
		return
	}
	if err != nil {
		logrus.WithError(err).WithField("slug", slug).Error("Item lookup failed")
		respondError(w, http.StatusInternalServerError, "item lookup failed")
		return
	}
	respondJSON(w, http.StatusOK, item)
}

func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logrus.WithError(err).Error("Failed to encode JSON response")
	}
}

func respondError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	})
}
