package providers

import (
	"net/http"
	"streamflix/internal/structures"
	"strings"
)

const corsMaxAge = "600"

type RouterProviderInterface interface {
	Get(url string, handler http.Handler)
	Post(url string, handler http.Handler)
	GetRoutes() []structures.Route
}

// RouterProvider collects API routes. Each route accepts one method and answers
// CORS preflights for the configured origins.
type RouterProvider struct {
	routes       []structures.Route
	origins      map[string]struct{}
	anyOrigin    bool
	allowHeaders string
}

func NewRouterProvider(conf *structures.Config) RouterProviderInterface {
	rp := &RouterProvider{origins: make(map[string]struct{})}
	for _, o := range conf.WebServer.AllowedOrigins {
		if o == "*" {
			rp.anyOrigin = true
			continue
		}
		rp.origins[strings.TrimRight(o, "/")] = struct{}{}
	}

	userHeader := conf.Auth.UserHeader
	if userHeader == "" {
		userHeader = "X-User-Id"
	}
	rp.allowHeaders = "Authorization, Content-Type, " + userHeader
	return rp
}

func (rp *RouterProvider) Get(url string, handler http.Handler) {
	rp.add(http.MethodGet, url, handler)
}

func (rp *RouterProvider) Post(url string, handler http.Handler) {
	rp.add(http.MethodPost, url, handler)
}

func (rp *RouterProvider) GetRoutes() []structures.Route {
	return rp.routes
}

func (rp *RouterProvider) add(method, url string, handler http.Handler) {
	rp.routes = append(rp.routes, structures.Route{
		Method:  method,
		Url:     url,
		Handler: rp.cors(method, methodHandler(method, handler)),
	})
}

func (rp *RouterProvider) allowed(origin string) bool {
	if rp.anyOrigin {
		return true
	}
	_, ok := rp.origins[origin]
	return ok
}

func (rp *RouterProvider) cors(method string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" || !rp.allowed(origin) {
			next.ServeHTTP(w, r)
			return
		}

		h := w.Header()
		h.Add("Vary", "Origin")
		h.Set("Access-Control-Allow-Origin", origin)

		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			h.Set("Access-Control-Allow-Methods", method+", "+http.MethodOptions)
			h.Set("Access-Control-Allow-Headers", rp.allowHeaders)
			h.Set("Access-Control-Max-Age", corsMaxAge)
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func methodHandler(method string, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			w.Header().Set("Allow", method)
			http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
