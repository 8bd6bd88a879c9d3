package httpx

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// CORSPolicy lists what cross-origin callers may do. An empty origin list
// disables CORS handling.
type CORSPolicy struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	AllowCredentials bool
	MaxAge           time.Duration
}

// WidgetPolicy is the policy for the embeddable booking widget: JSON posts from the
// listed shop origins, no cookies.
func WidgetPolicy(origins []string) CORSPolicy {
	return CORSPolicy{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", RequestIDHeader, "X-Session-Id"},
		MaxAge:         10 * time.Minute,
	}
}

type corsRules struct {
	any         bool
	origins     map[string]bool
	credentials bool
	headers     map[string]string
}

func newCORSRules(p CORSPolicy) *corsRules {
	rules := &corsRules{origins: map[string]bool{}, credentials: p.AllowCredentials, headers: map[string]string{}}
	for _, o := range trimAll(p.AllowedOrigins) {
		if o == "*" {
			rules.any = true
			continue
		}
		rules.origins[strings.ToLower(o)] = true
	}
	if m := trimAll(p.AllowedMethods); len(m) > 0 {
		rules.headers["Access-Control-Allow-Methods"] = strings.Join(m, ", ")
	}
	if h := trimAll(p.AllowedHeaders); len(h) > 0 {
		rules.headers["Access-Control-Allow-Headers"] = strings.Join(h, ", ")
	}
	if p.MaxAge > 0 {
		rules.headers["Access-Control-Max-Age"] = strconv.Itoa(int(p.MaxAge.Seconds()))
	}
	if p.AllowCredentials {
		rules.headers["Access-Control-Allow-Credentials"] = "true"
	}
	return rules
}

// allowOrigin returns the Access-Control-Allow-Origin value for origin. A
// wildcard policy echoes the origin when credentials are allowed.
func (c *corsRules) allowOrigin(origin string) (string, bool) {
	switch {
	case c.origins[strings.ToLower(origin)]:
		return origin, true
	case c.any && c.credentials:
		return origin, true
	case c.any:
		return "*", true
	}
	return "", false
}

// WithCORS answers preflight requests and decorates responses for allowed origins.
func WithCORS(p CORSPolicy) Middleware {
	rules := newCORSRules(p)
	if !rules.any && len(rules.origins) == 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			allow, ok := rules.allowOrigin(origin)
			if origin == "" || !ok {
				next.ServeHTTP(w, r)
				return
			}
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", allow)
			for k, v := range rules.headers {
				h.Set(k, v)
			}
			h.Add("Vary", "Origin")

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				h.Add("Vary", "Access-Control-Request-Method")
				h.Add("Vary", "Access-Control-Request-Headers")
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
