package handlers

import (
	"fmt"
	"io"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/viant/afs"

	"github.com/bsaid97/go-glacier-merger/config"
	"github.com/bsaid97/go-glacier-merger/utils"
)

// Server exposes the merge engine over HTTP.
type Server struct {
	cfg       config.Config
	logger    *log.Logger
	processor *utils.ParallelProcessor
	fs        afs.Service
}

// NewServer creates a server running every request with cfg. fs resolves
// the configured intersects URL; nil uses afs.New().
func NewServer(cfg config.Config, fs afs.Service, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	if fs == nil {
		fs = afs.New()
	}
	return &Server{cfg: cfg, logger: logger, processor: utils.NewParallelProcessor(cfg.Workers, logger), fs: fs}
}

// Routes registers every handler.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/check-geometry", s.recovered(s.checkGeometryHandler))
	mux.HandleFunc("/dissolve", s.recovered(s.dissolveHandler))
	mux.HandleFunc("/merge", s.recovered(s.mergeHandler))
	mux.HandleFunc("/intersects", s.recovered(s.intersectsHandler))
	return mux
}

// recovered keeps a panicking request from taking the server down.
func (s *Server) recovered(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", "path", r.URL.Path, "panic", rec)
				http.Error(w, "Internal server error", http.StatusInternalServerError)
			}
		}()
		if r.Method != http.MethodPost {
			http.Error(w, "Invalid request method, only POST allowed", http.StatusMethodNotAllowed)
			return
		}
		s.logger.Info("request received", "path", r.URL.Path, "content_type", r.Header.Get("Content-Type"))
		h(w, r)
	}
}

func readBody(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading request body: %w", err)
	}
	return body, nil
}

func sendResponse(w http.ResponseWriter, contentType string, response []byte) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	w.Write(response)
}

func sendZipResponse(w http.ResponseWriter, name string, zipData []byte) {
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name+".zip"))
	w.WriteHeader(http.StatusOK)
	w.Write(zipData)
}
