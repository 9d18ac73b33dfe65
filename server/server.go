// Package server exposes the converter over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/gzhttp"
	"go.uber.org/zap"
	"golang.org/x/net/netutil"

	"github.com/wudi/pdfdark/convert"
	"github.com/wudi/pdfdark/theme"
)

// Version is reported by the health endpoint.
const Version = "2.0.0"

type Config struct {
	Addr string
	// MaxUploadBytes caps the request body of /convert.
	MaxUploadBytes int64
	// MaxConns caps simultaneously accepted connections.
	MaxConns int
	// Timeout bounds a single conversion.
	Timeout time.Duration
	// AllowOrigin is sent as Access-Control-Allow-Origin; empty disables
	// CORS headers.
	AllowOrigin string
}

// DefaultConfig listens on $PORT, or 8000 when unset.
func DefaultConfig() Config {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8000"
	}
	return Config{
		Addr:           ":" + port,
		MaxUploadBytes: 100 << 20,
		MaxConns:       64,
		Timeout:        5 * time.Minute,
		AllowOrigin:    "*",
	}
}

type Server struct {
	cfg  Config
	conv *convert.Converter
	log  *zap.Logger
}

func New(cfg Config, conv *convert.Converter, log *zap.Logger) *Server {
	def := DefaultConfig()
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = def.MaxUploadBytes
	}
	if cfg.MaxConns <= 0 {
		cfg.MaxConns = def.MaxConns
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{cfg: cfg, conv: conv, log: log}
}

// RegisterRoutes registers the API routes on mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", s.handleHealth)
	mux.HandleFunc("GET /themes", s.handleThemes)
	mux.HandleFunc("POST /convert", s.handleConvert)
}

// Handler returns the routes wrapped in CORS and response compression.
// PDF bodies are sent as they are.
func (s *Server) Handler() (http.Handler, error) {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	gz, err := gzhttp.NewWrapper(gzhttp.ExceptContentTypes([]string{"application/pdf"}))
	if err != nil {
		return nil, err
	}
	return s.cors(gz(mux)), nil
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	h, err := s.Handler()
	if err != nil {
		return err
	}
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	ln = netutil.LimitListener(ln, s.cfg.MaxConns)
	srv := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          zap.NewStdLog(s.log),
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()
	s.log.Info("listening", zap.String("addr", ln.Addr().String()), zap.Int("max_conns", s.cfg.MaxConns))

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) cors(next http.Handler) http.Handler {
	if s.cfg.AllowOrigin == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", s.cfg.AllowOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Expose-Headers", "Content-Disposition, X-Pdfdark-Warnings")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type healthResponse struct {
	Status   string   `json:"status"`
	Message  string   `json:"message"`
	Version  string   `json:"version"`
	Features []string `json:"features"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:   "ok",
		Message:  "PDF Dark Mode Converter API is running",
		Version:  Version,
		Features: []string{"vector-preservation", "text-searchability", "multiple-themes"},
	})
}

type themesResponse struct {
	Themes []theme.Wire `json:"themes"`
}

func (s *Server) handleThemes(w http.ResponseWriter, _ *http.Request) {
	list := s.conv.Themes()
	resp := themesResponse{Themes: make([]theme.Wire, len(list))}
	for i, t := range list {
		resp.Themes[i] = theme.ToWire(t)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	tooLarge := func() {
		writeProblem(w, http.StatusRequestEntityTooLarge, "too-large", fmt.Sprintf("upload exceeds %d bytes", s.cfg.MaxUploadBytes))
	}
	if r.ContentLength > s.cfg.MaxUploadBytes {
		tooLarge()
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			tooLarge()
			return
		}
		writeProblem(w, http.StatusBadRequest, "bad-request", "invalid multipart form")
		return
	}
	file, hdr, err := r.FormFile("file")
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "bad-request", "missing file field")
		return
	}
	defer file.Close()
	name := path.Base(strings.ReplaceAll(hdr.Filename, "\\", "/"))
	if !strings.HasSuffix(strings.ToLower(name), ".pdf") {
		writeProblem(w, http.StatusBadRequest, "not-a-pdf", "File must be a PDF")
		return
	}
	themeID := strings.TrimSpace(r.FormValue("theme"))
	if themeID == "" {
		themeID = theme.Default
	}
	data, err := io.ReadAll(file)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "bad-request", "could not read upload")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.Timeout)
	defer cancel()
	start := time.Now()
	res, err := s.conv.Convert(ctx, data, themeID)
	if err != nil {
		s.writeConvertError(w, err)
		return
	}
	s.log.Info("converted",
		zap.String("file", name),
		zap.String("theme", themeID),
		zap.Int("pages", res.Stats.Pages),
		zap.Int("warnings", len(res.Warnings)),
		zap.Duration("elapsed", time.Since(start)))

	out := fmt.Sprintf("%s_%s_dark.pdf", name[:len(name)-len(".pdf")], strings.ToLower(themeID))
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", out))
	w.Header().Set("Content-Length", strconv.Itoa(len(res.Data)))
	w.Header().Set("X-Pdfdark-Warnings", strconv.Itoa(len(res.Warnings)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(res.Data); err != nil {
		s.log.Warn("write response", zap.Error(err))
	}
}

func (s *Server) writeConvertError(w http.ResponseWriter, err error) {
	var cerr *convert.ConversionError
	if !errors.As(err, &cerr) {
		s.log.Error("conversion failed", zap.Error(err))
		writeProblem(w, http.StatusInternalServerError, "internal", "Error processing PDF")
		return
	}
	switch cerr.Kind {
	case convert.KindUnknownTheme:
		var ids []string
		for _, t := range s.conv.Themes() {
			ids = append(ids, t.ID)
		}
		writeProblem(w, http.StatusBadRequest, "invalid-theme", "Invalid theme. Must be one of: "+strings.Join(ids, ", "))
	case convert.KindInvalidDocument:
		writeProblem(w, http.StatusUnprocessableEntity, "invalid-document", cerr.Err.Error())
	case convert.KindEncrypted:
		writeProblem(w, http.StatusUnprocessableEntity, "encrypted", "encrypted documents are not supported")
	case convert.KindCanceled:
		writeProblem(w, http.StatusServiceUnavailable, "canceled", "conversion did not finish in time")
	default:
		s.log.Error("conversion failed", zap.Error(err))
		writeProblem(w, http.StatusInternalServerError, "internal", "Error processing PDF")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// problem is an RFC 7807 problem document.
type problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail"`
}

func writeProblem(w http.ResponseWriter, status int, kind, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(problem{
		Type:   "https://github.com/wudi/pdfdark/problems/" + kind,
		Title:  http.StatusText(status),
		Status: status,
		Detail: detail,
	})
}
