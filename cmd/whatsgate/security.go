package main

import (
	"crypto/subtle"
	"net/http"
	"os"

	"github.com/sirupsen/logrus"
)

// requireAPIKey guards the command API with a shared key from the
// WHATSGATE_API_KEY environment variable. When the variable is unset the
// API is open, which is the expected mode behind a trusted reverse proxy.
func requireAPIKey(logger *logrus.Logger) func(http.Handler) http.Handler {
	apiKey := os.Getenv("WHATSGATE_API_KEY")
	if apiKey == "" {
		logger.Warn("WHATSGATE_API_KEY not set, API authentication disabled")
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if apiKey != "" {
				provided := r.Header.Get("X-Api-Key")
				if subtle.ConstantTimeCompare([]byte(provided), []byte(apiKey)) != 1 {
					logger.WithFields(logrus.Fields{
						"path":   r.URL.Path,
						"remote": r.RemoteAddr,
					}).Warn("Rejected request with invalid API key")
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusUnauthorized)
					_, _ = w.Write([]byte(`{"error":{"code":"UNAUTHORIZED","message":"invalid API key"}}`))
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
