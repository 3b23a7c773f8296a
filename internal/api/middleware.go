package api

import (
	"context"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/nerrad567/nvdisplay-core/internal/auth"
)

type contextKey int

const (
	ctxKeyRequestID contextKey = iota
	ctxKeyClaims
)

const (
	headerRequestID = "X-Request-ID"

	// maxRequestBodySize caps PUT bodies; an attribute write is a few bytes.
	maxRequestBodySize = 64 << 10
)

// withRequestID echoes the caller's X-Request-ID or assigns a UUID.
func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(headerRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(headerRequestID, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKeyRequestID, id)))
	})
}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKeyRequestID).(string) //nolint:errcheck // Missing id logs as ""
	return id
}

// accessLog logs one line per request. Health probes log at debug.
func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		log := s.logger.Info
		if strings.HasSuffix(r.URL.Path, "/health") {
			log = s.logger.Debug
		}
		log("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", requestID(r.Context()),
		)
	})
}

// recoverPanics turns a handler panic into a 500.
func (s *Server) recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if p := recover(); p != nil {
				s.logger.Error("handler panic", "panic", p, "path", r.URL.Path, "request_id", requestID(r.Context()))
				writeInternalError(w, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// cors answers preflights and sets the allow headers for permitted origins.
// An empty origin list permits any origin.
func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" && s.originAllowed(origin) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Methods", "GET, PUT, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type, "+headerRequestID)
			h.Set("Access-Control-Max-Age", "86400")
			h.Add("Vary", "Origin")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) originAllowed(origin string) bool {
	allowed := s.cfg.CORS.AllowedOrigins
	return len(allowed) == 0 || slices.Contains(allowed, "*") || slices.Contains(allowed, origin)
}

func limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		}
		next.ServeHTTP(w, r)
	})
}

// requirePermission admits requests whose bearer token carries a role
// granting perm, and stores the claims for the audit actor.
func (s *Server) requirePermission(perm auth.Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			secret := s.secCfg.JWT.Secret
			if secret == "" {
				writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "authentication is not configured")
				return
			}
			raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || raw == "" {
				writeUnauthorized(w, "bearer token required")
				return
			}
			claims, err := auth.ParseToken(raw, secret)
			switch {
			case err != nil:
				writeUnauthorized(w, "invalid or expired token")
			case !auth.HasPermission(claims.Role, perm):
				writeError(w, http.StatusForbidden, ErrCodeForbidden, "role "+string(claims.Role)+" lacks "+string(perm))
			default:
				next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKeyClaims, claims)))
			}
		})
	}
}

// subjectFrom returns the token subject of an authorised request.
func subjectFrom(ctx context.Context) string {
	if claims, ok := ctx.Value(ctxKeyClaims).(*auth.Claims); ok {
		return claims.Subject
	}
	return ""
}
