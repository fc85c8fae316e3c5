// Package web provides the HTTP surface: the bitmap endpoint polled by the
// display device, a JSON snapshot endpoint, and a PNG preview for humans.
package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"tinker/internal/config"
	appLog "tinker/internal/log"
	"tinker/internal/model"
	"tinker/internal/raster"
	"tinker/internal/render"
	"tinker/internal/snapshot"
)

// bmpCacheTTL bounds how long a warm render is served without rebuilding.
// The cron warm refresh normally repaints the cache before it expires.
const bmpCacheTTL = 5 * time.Minute

// snapshotCacheTTL bounds the JSON snapshot cache. Short: the endpoint is
// for humans poking at the data, not for the panel.
const snapshotCacheTTL = 30 * time.Second

// Server wires the aggregation and render pipeline behind HTTP handlers.
type Server struct {
	cfg      *config.Config
	builder  *snapshot.Builder
	renderer *render.Renderer
	pipeline *raster.Pipeline
	mux      *http.ServeMux

	renderMu   sync.RWMutex
	lastRender *renderCache

	snapMu    sync.RWMutex
	snapCache *snapshotCache
}

// renderCache holds the most recent completed render and the parameters it
// was produced with.
type renderCache struct {
	bmp       []byte
	png       []byte
	width     int
	height    int
	tz        string
	updatedAt time.Time
}

type snapshotCache struct {
	snap      *model.Snapshot
	tz        string
	updatedAt time.Time
}

// NewServer constructs the HTTP server around its pipeline collaborators.
func NewServer(cfg *config.Config, builder *snapshot.Builder, renderer *render.Renderer, pipeline *raster.Pipeline) *Server {
	s := &Server{
		cfg:      cfg,
		builder:  builder,
		renderer: renderer,
		pipeline: pipeline,
		mux:      http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the server's http.Handler, with basic auth applied when
// configured.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/bmp", s.handleBMP)
	s.mux.HandleFunc("/bmp/", s.handleBMP)
	s.mux.HandleFunc("/preview.png", s.handlePreview)
	s.mux.HandleFunc("/api/snapshot", s.handleSnapshot)
}

func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// An empty username or password counts as disabled.
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="Tinker", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleBMP runs the full pipeline and serves the device bitmap.
//
// GET /bmp?width=640&height=384&tz=America/New_York
//   - width/height: viewport pixels, panel defaults when omitted
//   - tz: display timezone name, silently ignored when unrecognized
func (s *Server) handleBMP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	q := r.URL.Query()
	width := parseIntDefault(q.Get("width"), s.cfg.Render.Width)
	height := parseIntDefault(q.Get("height"), s.cfg.Render.Height)
	tz := q.Get("tz")
	if tz == "" {
		tz = s.cfg.Timezone
	}

	// Fast path: a warm render with the same parameters.
	s.renderMu.RLock()
	rc := s.lastRender
	s.renderMu.RUnlock()
	if rc != nil && rc.width == width && rc.height == height && rc.tz == tz &&
		time.Since(rc.updatedAt) < bmpCacheTTL {
		serveBMP(w, rc.bmp)
		return
	}

	res, err := s.renderOnce(ctx, width, height, tz)
	if err != nil {
		appLog.Error("bmp render failed", err, "width", width, "height", height)
		writeError(w, http.StatusInternalServerError, "render failed")
		return
	}

	serveBMP(w, res.BMP)
}

func serveBMP(w http.ResponseWriter, bmp []byte) {
	w.Header().Set("Content-Type", "image/bmp")
	w.Header().Set("Content-Length", strconv.Itoa(len(bmp)))
	_, _ = w.Write(bmp)
}

// handlePreview serves the PNG from the most recent completed render,
// whatever its parameters. Debugging aid.
func (s *Server) handlePreview(w http.ResponseWriter, _ *http.Request) {
	s.renderMu.RLock()
	rc := s.lastRender
	s.renderMu.RUnlock()

	if rc == nil {
		http.Error(w, "no render yet", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(rc.png)
}

// handleSnapshot returns the aggregated display data as JSON.
//
// GET /api/snapshot?tz=America/New_York
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tz := r.URL.Query().Get("tz")
	if tz == "" {
		tz = s.cfg.Timezone
	}

	s.snapMu.RLock()
	sc := s.snapCache
	s.snapMu.RUnlock()
	if sc != nil && sc.tz == tz && time.Since(sc.updatedAt) < snapshotCacheTTL {
		writeJSON(w, http.StatusOK, sc.snap)
		return
	}

	snap := s.buildSnapshot(ctx, tz)

	s.snapMu.Lock()
	s.snapCache = &snapshotCache{snap: snap, tz: tz, updatedAt: time.Now()}
	s.snapMu.Unlock()

	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) buildSnapshot(ctx context.Context, tz string) *model.Snapshot {
	return s.builder.Build(ctx, time.Now(), snapshot.Params{
		CalendarID:    s.cfg.Calendar.GoogleCalendarID,
		MaxEvents:     s.cfg.Calendar.MaxEvents,
		Latitude:      s.cfg.Location.Latitude,
		Longitude:     s.cfg.Location.Longitude,
		LocationLabel: s.cfg.Location.Label,
		Timezone:      tz,
	})
}

// renderOnce runs aggregate -> HTML -> raster and caches the result.
func (s *Server) renderOnce(ctx context.Context, width, height int, tz string) (raster.Result, error) {
	snap := s.buildSnapshot(ctx, tz)

	htmlDoc, err := s.renderer.Render(snap)
	if err != nil {
		return raster.Result{}, fmt.Errorf("render document: %w", err)
	}

	res, err := s.pipeline.Rasterize(ctx, htmlDoc, width, height)
	if err != nil {
		return raster.Result{}, err
	}

	s.renderMu.Lock()
	s.lastRender = &renderCache{
		bmp:       res.BMP,
		png:       res.PNG,
		width:     width,
		height:    height,
		tz:        tz,
		updatedAt: time.Now(),
	}
	s.renderMu.Unlock()

	return res, nil
}

// RenderDefault runs one render with the configured default parameters and
// returns the result. Used by the single-shot CLI mode.
func (s *Server) RenderDefault(ctx context.Context) (raster.Result, error) {
	return s.renderOnce(ctx, s.cfg.Render.Width, s.cfg.Render.Height, s.cfg.Timezone)
}

// WarmRender repaints the cache with the configured default parameters so
// the panel's next poll is served from memory. Called by the cron schedule.
func (s *Server) WarmRender(ctx context.Context) error {
	_, err := s.RenderDefault(ctx)
	return err
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
