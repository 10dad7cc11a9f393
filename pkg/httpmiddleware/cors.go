package httpmiddleware

import (
	"net/http"
	"strconv"
	"strings"
)

// CORSConfig lists what browsers on other origins may do. The storefront and
// the admin dashboard are served from their own origins.
type CORSConfig struct {
	// Origins allowed to call the API. Empty or "*" allows any origin.
	Origins []string `json:"origins" yaml:"origins"`
	// Credentials allows cookies and Authorization headers; the origin is
	// then echoed instead of "*".
	Credentials bool `json:"credentials" yaml:"credentials"`
	// MaxAge is how long browsers may cache a preflight, in seconds.
	MaxAge int `json:"max_age" yaml:"max_age"`
}

var (
	corsMethods = strings.Join([]string{
		http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions,
	}, ", ")
	corsHeaders = strings.Join([]string{
		"Authorization", "Content-Type", "Idempotency-Key", RequestIDHeader,
	}, ", ")
	corsExposed = strings.Join([]string{
		RequestIDHeader, "Retry-After",
		"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset",
	}, ", ")
)

// CORS answers preflight requests with 204 and decorates actual requests from
// allowed origins. Requests from other origins pass through without CORS
// headers, so the browser blocks them.
func CORS(cfg CORSConfig) Middleware {
	allowAny := len(cfg.Origins) == 0
	origins := make(map[string]struct{}, len(cfg.Origins))
	for _, o := range cfg.Origins {
		if o == "*" {
			allowAny = true
			continue
		}
		origins[strings.ToLower(strings.TrimRight(o, "/"))] = struct{}{}
	}
	echo := cfg.Credentials || !allowAny

	allowOrigin := func(origin string) (string, bool) {
		if allowAny {
			if echo {
				return origin, true
			}
			return "*", true
		}
		if _, ok := origins[strings.ToLower(origin)]; ok {
			return origin, true
		}
		return "", false
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			if echo {
				h.Add("Vary", "Origin")
			}
			origin := r.Header.Get("Origin")
			preflight := r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != ""
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}

			value, ok := allowOrigin(origin)
			if ok {
				h.Set("Access-Control-Allow-Origin", value)
				if cfg.Credentials {
					h.Set("Access-Control-Allow-Credentials", "true")
				}
			}
			if !preflight {
				if ok {
					h.Set("Access-Control-Expose-Headers", corsExposed)
				}
				next.ServeHTTP(w, r)
				return
			}

			h.Add("Vary", "Access-Control-Request-Method")
			h.Add("Vary", "Access-Control-Request-Headers")
			if ok {
				h.Set("Access-Control-Allow-Methods", corsMethods)
				h.Set("Access-Control-Allow-Headers", corsHeaders)
				if cfg.MaxAge > 0 {
					h.Set("Access-Control-Max-Age", strconv.Itoa(cfg.MaxAge))
				}
			}
			w.WriteHeader(http.StatusNoContent)
		})
	}
}
