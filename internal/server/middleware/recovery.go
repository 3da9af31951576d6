// Package middleware holds the chi middleware chain internal/server
// wraps every route with: request-id propagation and panic recovery
// rendered through the same error envelope as a normal operation
// failure, built against internal/apperrors.
package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/3leaps/gonimbus/internal/observability"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrorResponse mirrors internal/apperrors.HTTPErrorResponse with an
// additional RequestID field the recovery middleware populates.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail mirrors apperrors.HTTPErrorDetail plus RequestID.
type ErrorDetail struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

type requestIDKey struct{}

// RequestID assigns a request id (from the X-Request-ID header if
// present, otherwise a fresh uuid) and stores it in the request context
// for downstream handlers and Recovery to read.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		ctx := context.WithValue(r.Context(), requestIDKey{}, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requestIDFrom(r *http.Request) string {
	id, _ := r.Context().Value(requestIDKey{}).(string)
	return id
}

// Recovery recovers a panicking handler and renders it as a 500
// INTERNAL_ERROR envelope instead of crashing the server.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				msg := panicMessage(rec)
				observability.Logger().Error("panic recovered in http handler",
					zap.Any("panic", rec), zap.String("path", r.URL.Path))
				writeErrorResponse(w, r, "INTERNAL_ERROR", msg, http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// ErrorHandler is an alias for Recovery, named for call sites that read
// more naturally as "the error-handling middleware" than "the
// panic-recovery middleware".
func ErrorHandler(next http.Handler) http.Handler {
	return Recovery(next)
}

func panicMessage(rec any) string {
	if err, ok := rec.(error); ok {
		return fmt.Sprintf("panic: %v", err)
	}
	return fmt.Sprintf("panic: %v", rec)
}

func writeErrorResponse(w http.ResponseWriter, r *http.Request, code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := ErrorResponse{Error: ErrorDetail{Code: code, Message: message, RequestID: requestIDFrom(r)}}
	_ = json.NewEncoder(w).Encode(enc)
}
