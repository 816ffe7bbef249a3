package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/cassiomorais/checkout/internal/repository/postgres"
	"github.com/rs/zerolog"
)

const (
	maxIdempotencyBodySize = 1 << 20

	IdempotencyHeader = "Idempotency-Key"
	ReplayedHeader    = "X-Idempotency-Replayed"
)

// IdempotencyStore persists responses keyed by the client's idempotency key.
type IdempotencyStore interface {
	Get(ctx context.Context, key string) (*postgres.IdempotencyEntry, error)
	Set(ctx context.Context, entry *postgres.IdempotencyEntry) error
}

// Idempotency replays the stored response when a request repeats an
// Idempotency-Key on the same path. Reusing a key with a different body is a
// conflict. Server errors are not stored so the client may retry them.
func Idempotency(store IdempotencyStore, ttl time.Duration, logger zerolog.Logger) func(http.Handler) http.Handler {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get(IdempotencyHeader)
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}
			key := r.Method + " " + r.URL.Path + " " + header

			fingerprint, err := fingerprintBody(w, r)
			if err != nil {
				var tooLarge *http.MaxBytesError
				if errors.As(err, &tooLarge) {
					writeError(w, http.StatusRequestEntityTooLarge, "request_too_large", "request body too large")
					return
				}
				writeError(w, http.StatusBadRequest, "invalid_request", "failed to read request body")
				return
			}

			entry, err := store.Get(r.Context(), key)
			if err != nil {
				logger.Warn().Err(err).Str("path", r.URL.Path).Msg("idempotency lookup failed")
			} else if entry != nil && entry.RequestHash != "" && entry.RequestHash != fingerprint {
				writeError(w, http.StatusConflict, "duplicate_request", "idempotency key reused with a different request")
				return
			} else if entry != nil {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set(ReplayedHeader, "true")
				w.WriteHeader(entry.ResponseStatus)
				w.Write([]byte(entry.ResponseBody))
				return
			}

			rec := &responseRecorder{ResponseWriter: w, body: &bytes.Buffer{}, statusCode: http.StatusOK}
			next.ServeHTTP(rec, r)

			if rec.statusCode < 200 || rec.statusCode >= 500 || rec.bodyTruncated {
				return
			}
			now := time.Now()
			if err := store.Set(r.Context(), &postgres.IdempotencyEntry{
				Key:            key,
				RequestHash:    fingerprint,
				ResponseBody:   rec.body.String(),
				ResponseStatus: rec.statusCode,
				CreatedAt:      now,
				ExpiresAt:      now.Add(ttl),
			}); err != nil {
				logger.Warn().Err(err).Str("path", r.URL.Path).Msg("failed to store idempotent response")
			}
		})
	}
}

// fingerprintBody hashes the request body and leaves it readable for the
// next handler. Bodies over maxIdempotencyBodySize fail with
// *http.MaxBytesError.
func fingerprintBody(w http.ResponseWriter, r *http.Request) (string, error) {
	if r.Body == nil {
		return hashOf(nil), nil
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxIdempotencyBodySize))
	if err != nil {
		return "", err
	}
	r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(body))
	return hashOf(body), nil
}

func hashOf(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg, "code": code})
}

type responseRecorder struct {
	http.ResponseWriter
	statusCode    int
	body          *bytes.Buffer
	bodyTruncated bool
}

func (r *responseRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	if !r.bodyTruncated {
		if r.body.Len()+len(b) > maxIdempotencyBodySize {
			r.bodyTruncated = true
		} else {
			r.body.Write(b)
		}
	}
	return r.ResponseWriter.Write(b)
}
