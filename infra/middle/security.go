package middle

import (
	"net/http"
	"strings"

	"github.com/sevasetu/paycore/infra/config"
	"github.com/sevasetu/paycore/infra/response"
)

// SecurityHeadersMiddleware adds security headers to all responses
func SecurityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-XSS-Protection", "1; mode=block")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Content-Security-Policy", "default-src 'self'")

		if r.TLS != nil {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		next.ServeHTTP(w, r)
	})
}

// IPWhitelistMiddleware restricts access to whitelisted IPs when configured
func IPWhitelistMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		whitelist := config.GetEnv("IP_WHITELIST", "")
		if whitelist == "" {
			next.ServeHTTP(w, r)
			return
		}

		clientIP := GetClientIP(r)
		allowed := false
		for _, ip := range strings.Split(whitelist, ",") {
			if strings.TrimSpace(ip) == clientIP {
				allowed = true
				break
			}
		}

		if !allowed {
			response.Error(w, http.StatusForbidden, "Access denied", nil)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// RequestValidationMiddleware performs basic request validation
func RequestValidationMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Webhook endpoints receive raw gateway payloads; content type varies by provider
		isWebhook := strings.Contains(r.URL.Path, "/webhooks")

		if r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
			contentType := r.Header.Get("Content-Type")
			if !isWebhook && !strings.Contains(contentType, "application/json") {
				response.Error(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json", nil)
				return
			}
		}

		// 10MB request size cap
		r.Body = http.MaxBytesReader(w, r.Body, 10<<20)

		next.ServeHTTP(w, r)
	})
}
