package cache

import (
	"bytes"
	"net/http"
)

// captureResponseWriter wraps http.ResponseWriter to record the status code.
type captureResponseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (w *captureResponseWriter) WriteHeader(code int) {
	if !w.written {
		w.statusCode = code
		w.written = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *captureResponseWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.statusCode = http.StatusOK
		w.written = true
	}
	return w.ResponseWriter.Write(b)
}

// cacheResponseWriter additionally buffers the response body so it can be
// stored in the cache.
type cacheResponseWriter struct {
	captureResponseWriter
	body bytes.Buffer
}

func (w *cacheResponseWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.captureResponseWriter.Write(b)
}

// Middleware returns HTTP middleware that caches GET responses in the
// provided LRUCache. The cache key is the full request URI (path + query).
//
// Only GET requests are cached and only 200 responses are stored. A cache
// hit is served with an X-Cache: HIT header; a miss passes through with
// X-Cache: MISS.
func Middleware(c *LRUCache) func(http.Handler) http.Handler {
	return KeyedMiddleware(c, func(r *http.Request) string {
		return r.URL.RequestURI()
	})
}

// KeyedMiddleware is Middleware with a caller-chosen cache key. Responses
// that vary by request identity must fold the identity into the key, or a
// cached body leaks across users.
func KeyedMiddleware(c *LRUCache, key func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				next.ServeHTTP(w, r)
				return
			}

			key := key(r)
			if cached, ok := c.Get(key); ok {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("X-Cache", "HIT")
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write(cached)
				return
			}

			crw := &cacheResponseWriter{captureResponseWriter: captureResponseWriter{ResponseWriter: w}}
			crw.Header().Set("X-Cache", "MISS")
			next.ServeHTTP(crw, r)

			if crw.statusCode == http.StatusOK {
				c.Set(key, crw.body.Bytes())
			}
		})
	}
}
