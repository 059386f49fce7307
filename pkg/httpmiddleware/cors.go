package httpmiddleware

import (
	"net/http"
	"strconv"
	"strings"
)

// CORSConfig configures the CORS middleware behaviour.
type CORSConfig struct {
	// AllowOrigins lists the origins allowed to make cross-origin requests.
	// An empty list or the single entry "*" allows all origins.
	AllowOrigins []string

	// AllowMethods lists the HTTP methods clients may use. Defaults to
	// "GET, POST, PUT, DELETE, OPTIONS" when empty.
	AllowMethods []string

	// AllowHeaders lists the request headers clients may use. When empty,
	// the middleware echoes back Access-Control-Request-Headers from the
	// preflight request.
	AllowHeaders []string

	// AllowCredentials indicates whether credentialed requests are allowed.
	// When true the wildcard origin must not be used, so the middleware
	// echoes the specific origin instead.
	AllowCredentials bool

	// MaxAge is how long (in seconds) preflight results may be cached.
	// Zero omits the header.
	MaxAge int
}

// CORS returns a middleware that handles Cross-Origin Resource Sharing,
// including preflight OPTIONS requests. Origin matching is case-insensitive;
// Vary headers are set so caches do not mix responses across origins.
func CORS(cfg CORSConfig) Middleware {
	allowAll := len(cfg.AllowOrigins) == 0
	allowed := make(map[string]struct{}, len(cfg.AllowOrigins))
	for _, o := range cfg.AllowOrigins {
		if o == "*" {
			allowAll = true
			break
		}
		allowed[strings.ToLower(o)] = struct{}{}
	}
	if cfg.AllowCredentials {
		// Credentials + wildcard is forbidden by the fetch spec.
		allowAll = false
	}

	methods := strings.Join(cfg.AllowMethods, ", ")
	if methods == "" {
		methods = "GET, POST, PUT, DELETE, OPTIONS"
	}
	headers := strings.Join(cfg.AllowHeaders, ", ")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Add("Vary", "Origin")

			_, known := allowed[strings.ToLower(origin)]
			if !allowAll && !known {
				next.ServeHTTP(w, r)
				return
			}

			allowOrigin := origin
			if allowAll && !cfg.AllowCredentials {
				allowOrigin = "*"
			}
			w.Header().Set("Access-Control-Allow-Origin", allowOrigin)
			if cfg.AllowCredentials {
				w.Header().Set("Access-Control-Allow-Credentials", "true")
			}

			// Preflight request.
			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.Header().Add("Vary", "Access-Control-Request-Method")
				w.Header().Add("Vary", "Access-Control-Request-Headers")
				w.Header().Set("Access-Control-Allow-Methods", methods)

				allowHeaders := headers
				if allowHeaders == "" {
					allowHeaders = r.Header.Get("Access-Control-Request-Headers")
				}
				if allowHeaders != "" {
					w.Header().Set("Access-Control-Allow-Headers", allowHeaders)
				}
				if cfg.MaxAge > 0 {
					w.Header().Set("Access-Control-Max-Age", strconv.Itoa(cfg.MaxAge))
				}

				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
