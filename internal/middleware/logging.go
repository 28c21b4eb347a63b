package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const (
	requestIDHeader = "X-Request-ID"

	// maxLoggedBody bounds how much of an error response is kept for the log.
	maxLoggedBody = 4 << 10
)

type errorEnvelope struct {
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Details string `json:"details"`
	} `json:"error"`
}

// Logging writes one line per request. Credential routes carry
// credential_route=true, and a 401 or 429 on them is logged as a rejection.
func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, requestID)

		started := time.Now()
		lw := &logWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(lw, r)

		attrs := []any{
			"request_id", requestID,
			"method", r.Method,
			"route", routePattern(r),
			"status", lw.status,
			"duration_ms", time.Since(started).Milliseconds(),
			"client_ip", clientIPFrom(r),
		}

		credential := isCredentialPath(r)
		if credential {
			attrs = append(attrs, "credential_route", true)
		}

		if code, message, details, ok := lw.errorFields(); ok {
			attrs = append(attrs, "error_code", code, "error_message", message)
			if details != "" {
				attrs = append(attrs, "error_details", details)
			}
		}

		switch {
		case lw.status >= 500:
			slog.Error("request", attrs...)
		case credential && (lw.status == http.StatusUnauthorized || lw.status == http.StatusTooManyRequests):
			slog.Warn("credential request rejected", attrs...)
		case lw.status >= 400:
			slog.Warn("request", attrs...)
		default:
			slog.Info("request", attrs...)
		}
	})
}

// routePattern returns the chi pattern, or the raw path outside the router.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}

type logWriter struct {
	http.ResponseWriter
	status      int
	body        bytes.Buffer
	wroteHeader bool
}

func (lw *logWriter) WriteHeader(statusCode int) {
	if lw.wroteHeader {
		return
	}
	lw.status = statusCode
	lw.wroteHeader = true
	lw.ResponseWriter.WriteHeader(statusCode)
}

func (lw *logWriter) Write(b []byte) (int, error) {
	if lw.status >= 400 && lw.body.Len() < maxLoggedBody {
		lw.body.Write(b[:min(len(b), maxLoggedBody-lw.body.Len())])
	}
	return lw.ResponseWriter.Write(b)
}

func (lw *logWriter) errorFields() (code string, message string, details string, ok bool) {
	if lw.status < 400 || lw.body.Len() == 0 {
		return "", "", "", false
	}

	var parsed errorEnvelope
	if err := json.Unmarshal(lw.body.Bytes(), &parsed); err != nil || parsed.Error == nil {
		return "", "", "", false
	}
	return parsed.Error.Code, parsed.Error.Message, parsed.Error.Details, true
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (lw *logWriter) Unwrap() http.ResponseWriter {
	return lw.ResponseWriter
}
