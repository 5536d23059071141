package middleware

import (
	"fmt"
	"net/http"
)

// SecurityHeadersConfig configures security headers.
type SecurityHeadersConfig struct {
	// HSTSEnabled should only be set when the gateway is served over HTTPS.
	HSTSEnabled bool
	// HSTSMaxAge in seconds, default one year.
	HSTSMaxAge            int
	HSTSIncludeSubdomains bool
}

// SecurityHeaders adds API-oriented security headers.
func SecurityHeaders(cfg SecurityHeadersConfig) func(http.Handler) http.Handler {
	if cfg.HSTSMaxAge == 0 {
		cfg.HSTSMaxAge = 31536000
	}
	hsts := fmt.Sprintf("max-age=%d", cfg.HSTSMaxAge)
	if cfg.HSTSIncludeSubdomains {
		hsts += "; includeSubDomains"
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Referrer-Policy", "no-referrer")
			h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
			if cfg.HSTSEnabled {
				h.Set("Strict-Transport-Security", hsts)
			}
			// job snapshots go stale within a second
			h.Set("Cache-Control", "no-store")

			next.ServeHTTP(w, r)
		})
	}
}
