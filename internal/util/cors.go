package util

import (
	"net/http"

	"github.com/rs/cors"
)

// WithCORS allows browser calls from the configured origins.
// An empty origin list falls back to http://localhost:3000.
func WithCORS(origins []string, next http.Handler) http.Handler {
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{
			http.MethodGet, http.MethodPost, http.MethodPut,
			http.MethodPatch, http.MethodDelete, http.MethodOptions,
		},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"Location", requestIDHeader, "Retry-After"},
		AllowCredentials: false,
		MaxAge:           600,
	})
	return c.Handler(next)
}
