// Package fileserver serves local media files to chat backends that fetch
// attachments by URL. Only files under allow-listed directories are served.
package fileserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/clawpanel/clawpanel/internal/logger"
)

var ErrNoAllowedDirs = errors.New("fileserver: no allowed directories")

var mimeTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".bmp":  "image/bmp",
	".svg":  "image/svg+xml",
	".ico":  "image/x-icon",
	".txt":  "text/plain",
	".html": "text/html",
	".css":  "text/css",
	".js":   "application/javascript",
	".json": "application/json",
	".pdf":  "application/pdf",
	".zip":  "application/zip",
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".xls":  "application/vnd.ms-excel",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".ppt":  "application/vnd.ms-powerpoint",
	".pptx": "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".ogg":  "audio/ogg",
	".mp4":  "video/mp4",
	".avi":  "video/x-msvideo",
	".mov":  "video/quicktime",
	".mkv":  "video/x-matroska",
	".amr":  "audio/amr",
	".silk": "audio/silk",
}

// ContentType maps a file name to its served MIME type.
func ContentType(name string) string {
	if ct, ok := mimeTypes[strings.ToLower(filepath.Ext(name))]; ok {
		return ct
	}
	return echo.MIMEOctetStream
}

// Options configures a Server.
type Options struct {
	Addr string
	// AllowedDirs bounds what may be served. Symlinks are resolved before the check.
	AllowedDirs []string
	// DefaultDir resolves legacy relative paths; it defaults to the first allowed directory.
	DefaultDir string
}

// Server is an explicitly owned file server handle.
type Server struct {
	echo       *echo.Echo
	addr       string
	allowed    []string
	defaultDir string
	logger     *slog.Logger

	mu       sync.Mutex
	listener net.Listener
}

// New validates opts and builds the router. Nothing listens until Start.
func New(log *slog.Logger, opts Options) (*Server, error) {
	if log == nil {
		log = slog.Default()
	}
	allowed := make([]string, 0, len(opts.AllowedDirs))
	for _, dir := range opts.AllowedDirs {
		dir = strings.TrimSpace(dir)
		if dir == "" {
			continue
		}
		abs, err := filepath.Abs(dir)
		if err != nil {
			return nil, fmt.Errorf("fileserver: allowed dir %q: %w", dir, err)
		}
		if resolved, err := filepath.EvalSymlinks(abs); err == nil {
			abs = resolved
		}
		allowed = append(allowed, abs)
	}
	if len(allowed) == 0 {
		return nil, ErrNoAllowedDirs
	}
	defaultDir := strings.TrimSpace(opts.DefaultDir)
	if defaultDir == "" {
		defaultDir = allowed[0]
	}

	s := &Server{
		addr:       opts.Addr,
		allowed:    allowed,
		defaultDir: defaultDir,
		logger:     logger.Component(log, "fileserver"),
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.GET("/file", s.serveAbsolute)
	e.HEAD("/file", s.serveAbsolute)
	e.GET("/*", s.serveRelative)
	e.HEAD("/*", s.serveRelative)
	s.echo = e
	return s, nil
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start listens on the configured address and serves in the background.
// It returns once the listener is bound.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return nil
	}
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("fileserver: listen %s: %w", s.addr, err)
	}
	s.listener = ln
	s.echo.Listener = ln
	go func() {
		if err := s.echo.Start(""); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("file server stopped", slog.Any("error", err))
		}
	}()
	s.logger.Info("file server started", slog.String("addr", ln.Addr().String()), slog.Any("dirs", s.allowed))
	return nil
}

// Addr is the bound address, or the configured one before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Stop shuts the server down. A stopped server cannot be restarted.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	started := s.listener != nil
	s.mu.Unlock()
	if !started {
		return nil
	}
	err := s.echo.Shutdown(ctx)
	s.logger.Info("file server stopped")
	return err
}

func (s *Server) serveAbsolute(c echo.Context) error {
	p := c.QueryParam("path")
	if p == "" {
		return s.serveRelative(c)
	}
	return s.serve(c, p)
}

func (s *Server) serveRelative(c echo.Context) error {
	rel := c.Request().URL.Path
	return s.serve(c, filepath.Join(s.defaultDir, filepath.FromSlash(filepath.Clean("/"+rel))))
}

func (s *Server) serve(c echo.Context, requested string) error {
	resolved, err := filepath.EvalSymlinks(requested)
	if err != nil {
		s.logger.Debug("file not found", slog.String("path", requested))
		return echo.NewHTTPError(http.StatusNotFound, "not found")
	}
	if !s.isAllowed(resolved) {
		s.logger.Warn("forbidden path", slog.String("path", resolved))
		return echo.NewHTTPError(http.StatusForbidden, "forbidden")
	}
	f, err := os.Open(resolved)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "not found")
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil || !info.Mode().IsRegular() {
		return echo.NewHTTPError(http.StatusNotFound, "not found")
	}

	h := c.Response().Header()
	h.Set(echo.HeaderContentType, ContentType(resolved))
	h.Set(echo.HeaderAccessControlAllowOrigin, "*")
	http.ServeContent(c.Response(), c.Request(), info.Name(), info.ModTime(), f)
	return nil
}

func (s *Server) isAllowed(resolved string) bool {
	for _, dir := range s.allowed {
		rel, err := filepath.Rel(dir, resolved)
		if err != nil {
			continue
		}
		if rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))) {
			return true
		}
	}
	return false
}
