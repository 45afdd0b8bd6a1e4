package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"bizbook/core/internal/domain"
	"bizbook/core/internal/logging"
	"bizbook/core/internal/store"
)

const maxPageLimit = 100

// API is the development entity service: one REST collection per kind,
// backed by a store.Repository and guarded by bearer tokens.
type API struct {
	repo          store.Repository
	auth          *AuthManager
	logger        *logrus.Logger
	allowedOrigin string
	loginLimiter  *attemptLimiter
	metrics       http.Handler
}

func New(repo store.Repository, auth *AuthManager, logger *logrus.Logger, allowedOrigin string) *API {
	if allowedOrigin == "" {
		allowedOrigin = "*"
	}
	return &API{
		repo:          repo,
		auth:          auth,
		logger:        logging.OrDiscard(logger),
		allowedOrigin: allowedOrigin,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
	}
}

// WithMetrics mounts h at /metrics.
func (a *API) WithMetrics(h http.Handler) *API {
	a.metrics = h
	return a
}

// attemptLimiter allows max attempts per window for each client key.
type attemptLimiter struct {
	mu       sync.Mutex
	every    rate.Limit
	burst    int
	limiters map[string]*rate.Limiter
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{
		every:    rate.Every(window / time.Duration(max)),
		burst:    max,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	l.mu.Lock()
	lim, ok := l.limiters[key]
	if !ok {
		lim = rate.NewLimiter(l.every, l.burst)
		l.limiters[key] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(a.withMiddleware)
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, errors.New("not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeMethodNotAllowed(w)
	})

	r.Get("/healthz", a.handleHealth)
	r.Post("/auth/login", a.handleLogin)
	if a.metrics != nil {
		r.Method(http.MethodGet, "/metrics", a.metrics)
	}

	r.Group(func(r chi.Router) {
		r.Use(a.requireAuth)
		r.Get("/{kind}", a.handleList)
		r.Post("/{kind}", a.handleCreate)
		r.Get("/{kind}/{id}", a.handleGet)
		r.Put("/{kind}/{id}", a.handleUpdate)
		r.Delete("/{kind}/{id}", a.handleDelete)
	})

	return r
}

func (a *API) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}

		token := strings.TrimSpace(authorization[len("Bearer "):])
		actor, err := a.auth.ParseToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
	})
}

func (a *API) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":   true,
		"time": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !a.loginLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.auth.Login(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleList(w http.ResponseWriter, r *http.Request) {
	kind, ok := kindParam(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()
	q := store.ListQuery{
		Search: strings.TrimSpace(query.Get("search")),
		Page:   parsePositiveLimit(query.Get("page"), 1, 1<<20),
		Limit:  parsePositiveLimit(query.Get("limit"), 0, maxPageLimit),
	}

	items, err := a.repo.List(r.Context(), kind, q)
	if err != nil {
		a.writeStoreError(w, r, "handleList", err)
		return
	}

	resp := map[string]any{"items": items}
	if q.Limit > 0 {
		resp["page"] = q.Page
		resp["limit"] = q.Limit
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleGet(w http.ResponseWriter, r *http.Request) {
	kind, ok := kindParam(w, r)
	if !ok {
		return
	}
	rec, err := a.repo.Get(r.Context(), kind, chi.URLParam(r, "id"))
	if err != nil {
		a.writeStoreError(w, r, "handleGet", err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (a *API) handleCreate(w http.ResponseWriter, r *http.Request) {
	kind, ok := kindParam(w, r)
	if !ok {
		return
	}
	input, err := decodeInput(kind, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	rec, err := a.repo.Create(r.Context(), kind, input, r.Header.Get("Idempotency-Key"))
	if err != nil {
		a.writeStoreError(w, r, "handleCreate", err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (a *API) handleUpdate(w http.ResponseWriter, r *http.Request) {
	kind, ok := kindParam(w, r)
	if !ok {
		return
	}
	input, err := decodeInput(kind, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	rec, err := a.repo.Update(r.Context(), kind, chi.URLParam(r, "id"), input)
	if err != nil {
		a.writeStoreError(w, r, "handleUpdate", err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (a *API) handleDelete(w http.ResponseWriter, r *http.Request) {
	kind, ok := kindParam(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	if err := a.repo.Delete(r.Context(), kind, id); err != nil {
		a.writeStoreError(w, r, "handleDelete", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "id": id})
}

func (a *API) writeStoreError(w http.ResponseWriter, r *http.Request, funcName string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, store.ErrInvalidRecord):
		status = http.StatusBadRequest
	case errors.Is(err, store.ErrInsufficientStock):
		status = http.StatusConflict
	}
	if status >= 500 {
		logging.LogError(a.logger, "httpapi", funcName, r.Method+" "+r.URL.Path, nil, err)
	}
	writeError(w, status, err)
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		startedAt := time.Now()
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Idempotency-Key, X-Request-ID")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
		w.Header().Set("Vary", "Origin")
		if id := r.Header.Get("X-Request-ID"); id != "" {
			w.Header().Set("X-Request-ID", id)
		}

		if r.Method == http.MethodPost || r.Method == http.MethodPut {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
		a.logger.WithFields(logrus.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"request_id": r.Header.Get("X-Request-ID"),
			"elapsed_ms": time.Since(startedAt).Milliseconds(),
		}).Debug("request")
	})
}

func kindParam(w http.ResponseWriter, r *http.Request) (domain.Kind, bool) {
	raw := chi.URLParam(r, "kind")
	kind, ok := domain.KindFromPath(raw)
	if !ok {
		writeError(w, http.StatusNotFound, errors.New("unknown collection "+raw))
		return "", false
	}
	return kind, true
}

func decodeInput(kind domain.Kind, r *http.Request) (any, error) {
	switch kind {
	case domain.KindClient:
		return decodeAs[domain.NewClient](r)
	case domain.KindProduct:
		return decodeAs[domain.NewProduct](r)
	case domain.KindPurchase, domain.KindSale:
		return decodeAs[domain.NewTransaction](r)
	case domain.KindAccount:
		return decodeAs[domain.NewAccount](r)
	}
	return nil, store.ErrNotFound
}

func decodeAs[T any](r *http.Request) (any, error) {
	var in T
	if err := decodeJSON(r, &in); err != nil {
		return nil, err
	}
	return in, nil
}

func decodeJSON(r *http.Request, dest any) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		return errors.New("invalid JSON body")
	}
	return nil
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || value < 1 {
		return fallback
	}
	if value > max {
		return max
	}
	return value
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

func writeError(w http.ResponseWriter, status int, err error) {
	// 5xx bodies stay generic; 4xx messages are user-facing
	msg := err.Error()
	if status >= 500 {
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
