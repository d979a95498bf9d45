package server

import (
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/shelfward/shelfward-server/auth"
	"github.com/shelfward/shelfward-server/cache"
	"github.com/shelfward/shelfward-server/internal/config"
	"github.com/shelfward/shelfward-server/registry"
	"github.com/shelfward/shelfward-server/revocation"
)

// Server wires the HTTP surface to the auth service, connection registry,
// revocation coordinator and detail cache. The registry and coordinator are
// injected here, the composition root, and shared by reference with the
// websocket accept loop.
type Server struct {
	env     string // Environment (e.g., "DEV", "production")
	mux     *http.ServeMux
	routes  []string
	config  config.Config
	auth    *auth.Service
	repos   auth.Repos
	conns   *registry.Registry
	revoker *revocation.Coordinator
	details *cache.Cache

	upgrader websocket.Upgrader
	limiter  *loginLimiter
}

func New(cfg config.Config, repos auth.Repos, authService *auth.Service, conns *registry.Registry, revoker *revocation.Coordinator, details *cache.Cache) (*Server, error) {
	if authService == nil {
		return nil, fmt.Errorf("[Server New] auth service is required")
	}
	if conns == nil || revoker == nil || details == nil {
		return nil, fmt.Errorf("[Server New] registry, revoker and cache are required")
	}

	s := &Server{
		mux:     http.NewServeMux(),
		config:  cfg,
		repos:   repos,
		auth:    authService,
		conns:   conns,
		revoker: revoker,
		details: details,
		upgrader: websocket.Upgrader{
			// Browser origin checks are handled by the CORS layer; ws
			// announce is an internal, same-origin channel.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		limiter: newLoginLimiter(cfg.GetLoginRateLimit(), cfg.GetLoginRateBurst()),
	}
	s.env = cfg.GetEnv()

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			logRoute(parts[0], parts[1])
		} else {
			logRoute("", parts[0])
		}
	}
}

func logRoute(method, path string) {
	var displayMethod string
	paddedMethod := fmt.Sprintf(" %-7s", method)
	if color, ok := methodColors[method]; ok {
		displayMethod = color + paddedMethod + ResetColor
	} else {
		displayMethod = Gray + paddedMethod + ResetColor
	}
	log.Printf("[%-19s] %s\n", displayMethod, path)
}
