package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/teemow/memorylane/internal/access"
	"github.com/teemow/memorylane/internal/config"
	"github.com/teemow/memorylane/internal/google"
	"github.com/teemow/memorylane/internal/journal"
	"github.com/teemow/memorylane/internal/logging"
)

// DefaultMaxBodyBytes bounds request bodies. Images arrive base64 encoded.
const DefaultMaxBodyBytes = 32 << 20

// RouterOptions configures NewRouter.
type RouterOptions struct {
	// AllowedOrigins lists the origins the browser UI is served from.
	AllowedOrigins []string

	// MCPHandler is mounted at /mcp when set.
	MCPHandler http.Handler

	// OnConfigChange is called after PUT /api/config replaced the
	// configuration, typically to persist it.
	OnConfigChange func(config.Config) error

	MaxBodyBytes int64
}

type api struct {
	sc   *ServerContext
	opts RouterOptions
}

// NewRouter returns the HTTP handler for the browser UI: the REST API, the
// OAuth callback, health probes and optionally MCP.
func NewRouter(sc *ServerContext, health *HealthChecker, opts RouterOptions) http.Handler {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}
	a := &api{sc: sc, opts: opts}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(sc))
	if len(opts.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: opts.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id", "Mcp-Session-Id"},
			ExposedHeaders: []string{"X-Request-Id", "Mcp-Session-Id"},
			MaxAge:         300,
		}))
	}

	r.Method(http.MethodGet, "/healthz", health.LivenessHandler())
	r.Method(http.MethodGet, "/readyz", health.ReadinessHandler())
	r.Method(http.MethodGet, "/healthz/detailed", health.DetailedHealthHandler())
	r.Method(http.MethodGet, google.CallbackPath, sc.CallbackHandler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", a.status)
		r.Put("/config", a.updateConfig)
		r.Post("/login", a.login)
		r.Get("/login/pending", a.pendingLogin)
		r.Get("/profile", a.profile)
		r.Post("/access", a.checkAccess)

		r.Group(func(r chi.Router) {
			r.Use(a.requireAccess)
			r.Post("/images", a.uploadImage)
			r.Post("/memories", a.saveMemory)
		})
	})

	if opts.MCPHandler != nil {
		r.Handle("/mcp", opts.MCPHandler)
		r.Handle("/mcp/*", opts.MCPHandler)
	}

	return r
}

// requestLogger logs each request and records it in the HTTP metrics under
// its route pattern.
func requestLogger(sc *ServerContext) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			route := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			duration := time.Since(start)
			sc.Metrics().RecordHTTPRequest(r.Context(), r.Method, route, ww.Status(), duration)

			level := slog.LevelInfo
			if ww.Status() >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			sc.Logger().Log(r.Context(), level, "request completed",
				"request_id", middleware.GetReqID(r.Context()),
				"method", r.Method,
				"route", route,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				logging.KeyDuration, duration.String())
		})
	}
}

// requireAccess admits only signed-in users on the allow-list.
func (a *api) requireAccess(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := a.sc.Authorize(r.Context()); err != nil {
			writeError(w, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *api) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, a.opts.MaxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeBadRequest(w, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func (a *api) status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.sc.Status())
}

func (a *api) updateConfig(w http.ResponseWriter, r *http.Request) {
	var update config.Config
	if !a.decode(w, r, &update) {
		return
	}

	cfg := a.sc.Store().Get().Merge(update.Normalize())
	a.sc.UpdateConfig(cfg)

	if a.opts.OnConfigChange != nil {
		if err := a.opts.OnConfigChange(cfg); err != nil {
			a.sc.Logger().Error("failed to persist configuration", logging.Err(err))
			writeError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, a.sc.Status())
}

// LoginResponse is returned by a completed login.
type LoginResponse struct {
	SignedIn bool `json:"signedIn"`
}

func (a *api) login(w http.ResponseWriter, r *http.Request) {
	if err := a.sc.Auth().Login(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, LoginResponse{SignedIn: true})
}

// PendingLoginResponse carries the URL the user must visit to finish a
// login started with POST /api/login.
type PendingLoginResponse struct {
	URL string `json:"url,omitempty"`
}

func (a *api) pendingLogin(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, PendingLoginResponse{URL: a.sc.PendingAuthURL()})
}

func (a *api) profile(w http.ResponseWriter, r *http.Request) {
	profile, err := a.sc.Access().GetUserProfile(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// AccessRequest checks Email, or the signed-in user when Email is empty.
type AccessRequest struct {
	Email string `json:"email,omitempty"`
}

// AccessResponse is the result of an allow-list check.
type AccessResponse struct {
	Email   string `json:"email"`
	Allowed bool   `json:"allowed"`
}

func (a *api) checkAccess(w http.ResponseWriter, r *http.Request) {
	var req AccessRequest
	if r.ContentLength != 0 && !a.decode(w, r, &req) {
		return
	}

	if strings.TrimSpace(req.Email) != "" {
		allowed, err := a.sc.Access().ValidateUserAccess(r.Context(), req.Email)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, AccessResponse{Email: req.Email, Allowed: allowed})
		return
	}

	profile, err := a.sc.Authorize(r.Context())
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, AccessResponse{Email: profile.Email(), Allowed: true})
	case errors.Is(err, access.ErrAccessDenied):
		writeJSON(w, http.StatusOK, AccessResponse{Email: profile.Email(), Allowed: false})
	default:
		writeError(w, err)
	}
}

// ImageResponse carries the link of an uploaded image.
type ImageResponse struct {
	Link string `json:"link"`
}

func (a *api) uploadImage(w http.ResponseWriter, r *http.Request) {
	var img journal.Image
	if !a.decode(w, r, &img) {
		return
	}
	if img.Data == "" {
		writeBadRequest(w, "image data is required")
		return
	}

	link, err := a.sc.Journal().UploadImage(r.Context(), img.Data, img.MimeType, img.FileName)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ImageResponse{Link: link})
}

// MemoryRequest is a memory plus either images to upload or links to
// images uploaded earlier.
type MemoryRequest struct {
	journal.Memory
	Images     []journal.Image `json:"images,omitempty"`
	ImageLinks []string        `json:"imageLinks,omitempty"`
}

// MemoryResponse lists the image links written with the memory.
type MemoryResponse struct {
	ImageLinks []string `json:"imageLinks"`
}

func (a *api) saveMemory(w http.ResponseWriter, r *http.Request) {
	var req MemoryRequest
	if !a.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Date) == "" {
		writeBadRequest(w, "date is required")
		return
	}
	if len(req.Images) > 0 && len(req.ImageLinks) > 0 {
		writeBadRequest(w, "send either images or imageLinks, not both")
		return
	}
	if req.CalculatedAge == "" {
		req.CalculatedAge = a.sc.AgeOn(req.Date)
	}

	links := req.ImageLinks
	var err error
	if len(req.Images) > 0 {
		links, err = a.sc.Journal().SaveMemory(r.Context(), req.Memory, req.Images)
	} else {
		err = a.sc.Journal().AppendRow(r.Context(), req.Memory, links)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	if links == nil {
		links = []string{}
	}
	writeJSON(w, http.StatusCreated, MemoryResponse{ImageLinks: links})
}
