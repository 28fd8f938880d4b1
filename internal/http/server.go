package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vaheed/fresco/internal/config"
	"github.com/vaheed/fresco/internal/engine"
	"github.com/vaheed/fresco/internal/lib/httperr"
	"github.com/vaheed/fresco/internal/logging"
	"github.com/vaheed/fresco/internal/metrics"
	"github.com/vaheed/fresco/internal/store"
	"github.com/vaheed/fresco/pkg/types"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	version                = "0.0.1"
	authContextKey         = contextKey("auth")
	maxBodyBytes     int64 = 1 << 20 // 1MB
	maxRecommendSize       = 100
	otelServiceName        = "fresco-api"
)

type contextKey string

// Server exposes the HTTP handlers of the recommendation API.
type Server struct {
	store       store.Store
	engine      *engine.Service
	requireAuth bool
	signingKey  []byte
	rateLimit   int
	rateWindow  time.Duration
}

// NewServer builds a Server over the persistence store and the serving
// engine. Auth and rate-limit settings come from the environment config.
func NewServer(st store.Store, eng *engine.Service, cfg config.Server) *Server {
	return &Server{
		store:       st,
		engine:      eng,
		requireAuth: cfg.AuthEnabled,
		signingKey:  []byte(cfg.JWTSigningKey),
		rateLimit:   cfg.RateLimitRequests,
		rateWindow:  cfg.RateLimitWindow,
	}
}

// Router returns the configured HTTP handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.StripSlashes)
	r.Use(otelhttp.NewMiddleware(otelServiceName))
	r.Use(s.logMiddleware)
	r.Use(s.metricsMiddleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Get("/version", s.versionInfo)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v2", func(api chi.Router) {
		if s.rateLimit > 0 {
			api.Use(httprate.LimitByIP(s.rateLimit, s.rateWindow))
		}

		api.Get("/recommend/{size}/{user}", s.recommend)

		api.Route("/users/{user}/items", func(r chi.Router) {
			r.Get("/", s.listUserItems)
			r.Post("/", s.addUserItem)
			r.Delete("/{item}", s.dropUserItem)
		})

		api.Get("/items/{item}", s.getItem)
		api.With(s.authMiddleware).Put("/items", s.upsertItems)

		api.With(s.authMiddleware).Route("/modules", func(r chi.Router) {
			r.Put("/", s.saveModule)
			r.Get("/{module}", s.getModule)
		})

		api.With(s.authMiddleware).Post("/train/{model}", s.trainModel)
	})

	return r
}

// StartHTTP listens and serves until the context is canceled.
func StartHTTP(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		_ = srv.Shutdown(context.Background())
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (s *Server) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		fields := []zap.Field{
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		}
		spanCtx := trace.SpanContextFromContext(r.Context())
		if spanCtx.IsValid() {
			fields = append(fields, zap.String("trace_id", spanCtx.TraceID().String()))
		}
		logging.L.Info("http_request", fields...)
	})
}

func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		metrics.RequestSeconds.
			WithLabelValues(r.Method, route, strconv.Itoa(ww.Status())).
			Observe(time.Since(start).Seconds())
	})
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.requireAuth {
			rolesHeader := r.Header.Get("X-Fresco-Roles")
			roles := []string{}
			if rolesHeader != "" {
				for _, part := range strings.Split(rolesHeader, ",") {
					if trimmed := strings.TrimSpace(part); trimmed != "" {
						roles = append(roles, trimmed)
					}
				}
			}
			ctx := context.WithValue(r.Context(), authContextKey, &AuthContext{
				Subject: "anonymous",
				Roles:   roles,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}
		authz := r.Header.Get("Authorization")
		if !strings.HasPrefix(authz, "Bearer ") {
			writeError(w, http.StatusUnauthorized, "FR-401", "missing bearer token")
			return
		}
		tokenStr := strings.TrimPrefix(authz, "Bearer ")
		token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (any, error) {
			if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
				return nil, fmt.Errorf("unexpected signing method %s", t.Method.Alg())
			}
			return s.signingKey, nil
		})
		if err != nil || !token.Valid {
			writeError(w, http.StatusUnauthorized, "FR-401", "invalid token")
			return
		}
		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			writeError(w, http.StatusUnauthorized, "FR-401", "invalid token claims")
			return
		}
		roles := []string{}
		if raw, ok := claims["roles"].([]any); ok {
			for _, r := range raw {
				if str, ok := r.(string); ok {
					roles = append(roles, str)
				}
			}
		}
		subject, _ := claims["sub"].(string)
		ctx := context.WithValue(r.Context(), authContextKey, &AuthContext{
			Subject: subject,
			Roles:   roles,
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// AuthContext carries the authenticated caller through the request context.
type AuthContext struct {
	Subject string
	Roles   []string
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "FR-503", "store not ready")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) versionInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": version})
}

func (s *Server) recommend(w http.ResponseWriter, r *http.Request) {
	size, err := strconv.Atoi(chi.URLParam(r, "size"))
	if err != nil || size < 1 || size > maxRecommendSize {
		writeError(w, http.StatusBadRequest, "FR-400",
			fmt.Sprintf("size must be an integer between 1 and %d", maxRecommendSize))
		return
	}
	user := chi.URLParam(r, "user")
	if err := types.ValidateExternalID(user); err != nil {
		writeError(w, http.StatusBadRequest, "FR-400", "invalid user id")
		return
	}
	recs, err := s.engine.Recommend(r.Context(), user, size)
	if err != nil {
		if errors.Is(err, engine.ErrNotReady) {
			writeError(w, http.StatusServiceUnavailable, "FR-503", "recommendation engine not ready")
			return
		}
		writeError(w, http.StatusInternalServerError, "FR-500", err.Error())
		return
	}
	metrics.RecommendationsTotal.Inc()
	writeJSON(w, http.StatusOK, types.Recommendation{User: user, Recommendations: recs.Recommendations})
}

func (s *Server) listUserItems(w http.ResponseWriter, r *http.Request) {
	user := chi.URLParam(r, "user")
	if err := types.ValidateExternalID(user); err != nil {
		writeError(w, http.StatusBadRequest, "FR-400", "invalid user id")
		return
	}
	if _, err := s.store.GetUser(r.Context(), user); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "FR-404", "user not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "FR-500", err.Error())
		return
	}
	entries, err := s.store.ListInventory(r.Context(), user, false)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "FR-500", err.Error())
		return
	}
	if entries == nil {
		entries = []types.InventoryEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) addUserItem(w http.ResponseWriter, r *http.Request) {
	user := chi.URLParam(r, "user")
	if err := types.ValidateExternalID(user); err != nil {
		writeError(w, http.StatusBadRequest, "FR-400", "invalid user id")
		return
	}
	var req UserItemRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "FR-400", err.Error())
		return
	}
	if err := types.ValidateExternalID(req.ItemID); err != nil {
		writeError(w, http.StatusBadRequest, "FR-400", "invalid item id")
		return
	}
	if _, err := s.store.GetItem(r.Context(), req.ItemID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "FR-404", "item not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "FR-500", err.Error())
		return
	}
	// First contact creates the user; existing records keep their locales.
	if _, err := s.store.GetUser(r.Context(), user); err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusInternalServerError, "FR-500", err.Error())
			return
		}
		if err := s.store.UpsertUsers(r.Context(), []types.User{{ExternalID: user}}); err != nil {
			writeError(w, http.StatusInternalServerError, "FR-500", err.Error())
			return
		}
	}
	acquired := req.Acquired
	if acquired.IsZero() {
		acquired = time.Now()
	}
	entry := types.InventoryEntry{
		UserID:     user,
		ItemID:     req.ItemID,
		AcquiredAt: acquired.UTC(),
	}
	if err := s.store.PutInventory(r.Context(), []types.InventoryEntry{entry}); err != nil {
		writeError(w, http.StatusInternalServerError, "FR-500", err.Error())
		return
	}
	s.engine.InvalidateUser(r.Context(), user)
	writeJSON(w, http.StatusCreated, entry)
}

func (s *Server) dropUserItem(w http.ResponseWriter, r *http.Request) {
	user := chi.URLParam(r, "user")
	item := chi.URLParam(r, "item")
	if err := types.ValidateExternalID(user); err != nil {
		writeError(w, http.StatusBadRequest, "FR-400", "invalid user id")
		return
	}
	if err := types.ValidateExternalID(item); err != nil {
		writeError(w, http.StatusBadRequest, "FR-400", "invalid item id")
		return
	}
	if err := s.store.DropInventoryItem(r.Context(), user, item, time.Now().UTC()); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "FR-404", "inventory entry not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "FR-500", err.Error())
		return
	}
	s.engine.InvalidateUser(r.Context(), user)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getItem(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "item")
	if err := types.ValidateExternalID(id); err != nil {
		writeError(w, http.StatusBadRequest, "FR-400", "invalid item id")
		return
	}
	item, err := s.store.GetItem(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "FR-404", "item not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "FR-500", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) upsertItems(w http.ResponseWriter, r *http.Request) {
	if !s.requireRole(w, r, "admin") {
		return
	}
	var req []ItemRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "FR-400", err.Error())
		return
	}
	if len(req) == 0 {
		writeError(w, http.StatusBadRequest, "FR-400", "at least one item is required")
		return
	}
	items := make([]types.Item, 0, len(req))
	localeSet := map[string]types.Locale{}
	for _, in := range req {
		if err := types.ValidateExternalID(in.ExternalID); err != nil {
			writeError(w, http.StatusBadRequest, "FR-400", fmt.Sprintf("invalid item id %q", in.ExternalID))
			return
		}
		name := strings.TrimSpace(in.Name)
		if name == "" {
			name = "NO NAME"
		}
		locales := make([]string, 0, len(in.Locales))
		for _, raw := range in.Locales {
			loc, err := types.ParseLocale(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "FR-400", fmt.Sprintf("invalid locale %q", raw))
				return
			}
			locales = append(locales, loc.String())
			localeSet[loc.String()] = loc
		}
		items = append(items, types.Item{
			ExternalID: in.ExternalID,
			Name:       name,
			Genres:     in.Genres,
			Locales:    locales,
		})
	}
	if err := s.store.UpsertItems(r.Context(), items); err != nil {
		writeError(w, http.StatusInternalServerError, "FR-500", err.Error())
		return
	}
	if len(localeSet) > 0 {
		keys := make([]string, 0, len(localeSet))
		for k := range localeSet {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		locales := make([]types.Locale, 0, len(keys))
		for _, k := range keys {
			locales = append(locales, localeSet[k])
		}
		if err := s.store.UpsertLocales(r.Context(), locales); err != nil {
			writeError(w, http.StatusInternalServerError, "FR-500", err.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": len(items)})
}

func (s *Server) saveModule(w http.ResponseWriter, r *http.Request) {
	if !s.requireRole(w, r, "admin") {
		return
	}
	var req types.ModuleConfig
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "FR-400", err.Error())
		return
	}
	if err := engine.ValidateConfig(req); err != nil {
		writeError(w, http.StatusBadRequest, "FR-400", err.Error())
		return
	}
	if err := s.store.SaveModuleConfig(r.Context(), req); err != nil {
		writeError(w, http.StatusInternalServerError, "FR-500", err.Error())
		return
	}
	if req.Identifier == s.engine.ModuleID() {
		if err := s.engine.Rebuild(r.Context()); err != nil {
			logging.L.Warn("engine_rebuild_failed",
				zap.String("module", req.Identifier),
				zap.Error(err),
			)
		}
	}
	writeJSON(w, http.StatusOK, req)
}

func (s *Server) getModule(w http.ResponseWriter, r *http.Request) {
	if !s.requireRole(w, r, "admin") {
		return
	}
	id := chi.URLParam(r, "module")
	cfg, err := s.store.GetModuleConfig(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "FR-404", "module not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "FR-500", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) trainModel(w http.ResponseWriter, r *http.Request) {
	if !s.requireRole(w, r, "admin") {
		return
	}
	model := chi.URLParam(r, "model")
	if _, err := engine.NewPredictor(model); err != nil {
		writeError(w, http.StatusBadRequest, "FR-400", err.Error())
		return
	}
	snap, err := engine.Train(r.Context(), s.store, model)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "FR-500", err.Error())
		return
	}
	if err := s.engine.Rebuild(r.Context()); err != nil {
		logging.L.Warn("engine_rebuild_failed",
			zap.String("model", model),
			zap.Error(err),
		)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"model":      snap.Identifier,
		"version":    snap.Version,
		"trained_at": snap.TrainedAt,
	})
}

func (s *Server) requireRole(w http.ResponseWriter, r *http.Request, allowed ...string) bool {
	if !s.requireAuth {
		return true
	}
	auth := s.authContext(r.Context())
	for _, role := range auth.Roles {
		for _, allowedRole := range allowed {
			if role == allowedRole {
				return true
			}
		}
	}
	writeError(w, http.StatusForbidden, "FR-403", "forbidden")
	return false
}

func (s *Server) authContext(ctx context.Context) *AuthContext {
	if v, ok := ctx.Value(authContextKey).(*AuthContext); ok && v != nil {
		return v
	}
	return &AuthContext{Subject: "anonymous", Roles: []string{}}
}

// Helpers
func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("unexpected trailing data")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	httperr.Write(w, status, code, msg)
}

// Request DTOs
type UserItemRequest struct {
	ItemID   string    `json:"item_id"`
	Acquired time.Time `json:"acquired"`
}

type ItemRequest struct {
	ExternalID string   `json:"external_id"`
	Name       string   `json:"name"`
	Genres     []string `json:"genres"`
	Locales    []string `json:"locales"`
}
