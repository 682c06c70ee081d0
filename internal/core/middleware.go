package core

import (
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"satwallet/internal/types"
)

// responseCapture wraps an http.ResponseWriter to observe the status code
// written by downstream handlers.
type responseCapture struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (rc *responseCapture) WriteHeader(code int) {
	if !rc.written {
		rc.statusCode = code
		rc.written = true
	}
	rc.ResponseWriter.WriteHeader(code)
}

func (rc *responseCapture) Write(b []byte) (int, error) {
	if !rc.written {
		rc.statusCode = http.StatusOK
		rc.written = true
	}
	return rc.ResponseWriter.Write(b)
}

// Unwrap returns the underlying ResponseWriter for http.ResponseController.
func (rc *responseCapture) Unwrap() http.ResponseWriter {
	return rc.ResponseWriter
}

// RequestID assigns a UUID to each request, stores it in the context, and
// echoes it in the X-Request-Id response header.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r.WithContext(types.WithRequestID(r.Context(), id)))
	})
}

// Recoverer catches panics in the handler chain, logs the stack trace, and
// writes a standardized 500 response. Must be the outermost middleware.
func (s *Server) Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rvr := recover(); rvr != nil {
				s.Logger.Error("panic recovered",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("panic", fmt.Sprintf("%v", rvr)),
					slog.String("stack", string(debug.Stack())),
				)
				Error(w, r, types.NewAppError(types.ErrCodeInternalUnexpected,
					"an unexpected error occurred", nil))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// RequestLogger logs method, path, status, and duration for every request.
func (s *Server) RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rc := &responseCapture{ResponseWriter: w}

		next.ServeHTTP(rc, r)

		status := rc.statusCode
		if !rc.written {
			status = http.StatusOK
		}
		s.Logger.InfoContext(r.Context(), "request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		if s.Metrics != nil {
			s.Metrics.RecordRequest(r.Method, r.URL.Path, status, time.Since(start))
		}
	})
}

// BearerAuth enforces the single-user API token. The configured credential
// is a bcrypt hash; the presented token is compared against it so the
// plaintext token never rests anywhere server-side.
func (s *Server) BearerAuth(next http.Handler) http.Handler {
	tokenHash := []byte(s.Config.Auth.APITokenHash.Unmask())

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing,
				"Authorization header is required", nil))
			return
		}

		const prefix = "Bearer "
		if len(header) <= len(prefix) || subtle.ConstantTimeCompare(
			[]byte(strings.ToLower(header[:len(prefix)])),
			[]byte(strings.ToLower(prefix))) != 1 {
			Error(w, r, types.NewAppError(types.ErrCodeAuthTokenInvalid,
				"Authorization header must use the Bearer scheme", nil))
			return
		}

		token := header[len(prefix):]
		if err := bcrypt.CompareHashAndPassword(tokenHash, []byte(token)); err != nil {
			Error(w, r, types.NewAppError(types.ErrCodeAuthTokenInvalid,
				"Invalid API token", nil))
			return
		}

		next.ServeHTTP(w, r)
	})
}
