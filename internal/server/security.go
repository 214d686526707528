package server

import "net/http"

// Responses are JSON only, so nothing may be loaded or framed.
const contentSecurityPolicy = "default-src 'none'; frame-ancestors 'none'"

// setSecurityHeaders adds security-related headers to the response.
func setSecurityHeaders(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Content-Security-Policy", contentSecurityPolicy)
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("X-Frame-Options", "DENY")
	h.Set("Referrer-Policy", "no-referrer")
	// Prevent search engine indexing of analytics data.
	h.Set("X-Robots-Tag", "noindex, nofollow")
	h.Set("Cache-Control", "no-store")
}
