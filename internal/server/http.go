package server

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog/log"

	"toolshim-mcp/internal/dispatch"
)

// HTTPConfig configures the HTTP transport.
type HTTPConfig struct {
	Addr        string
	Token       string
	TLSCertFile string
	TLSKeyFile  string
	// RequestTimeout bounds /mcp/tools and /mcp/call. Zero disables it.
	RequestTimeout time.Duration
	WebSocket      bool
	// Stream mounts the MCP streamable HTTP endpoint at /mcp/stream.
	Stream bool
	// Metrics is served at /metrics when set.
	Metrics http.Handler

	ServerName    string
	ServerVersion string
}

type router struct {
	ep  Endpoint
	cfg HTTPConfig
	ws  *wsHandler
	mux *chi.Mux
}

// NewRouter builds the HTTP API around ep.
func NewRouter(ep Endpoint, cfg HTTPConfig) http.Handler {
	return newRouter(ep, cfg).mux
}

func newRouter(ep Endpoint, cfg HTTPConfig) *router {
	rt := &router{ep: ep, cfg: cfg, mux: chi.NewRouter()}

	rt.mux.Use(middleware.RequestID)
	rt.mux.Use(middleware.RealIP)
	rt.mux.Use(accessLog)
	rt.mux.Use(middleware.Recoverer)

	rt.mux.Get("/health", rt.handleHealth)
	if cfg.Metrics != nil {
		rt.mux.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}

	rt.mux.Route("/mcp", func(r chi.Router) {
		r.Use(rt.auth)

		r.Group(func(r chi.Router) {
			if cfg.RequestTimeout > 0 {
				r.Use(middleware.Timeout(cfg.RequestTimeout))
			}
			r.Get("/tools", rt.handleListTools)
			r.Post("/call", rt.handleCall)
		})

		if cfg.WebSocket {
			rt.ws = newWSHandler(ep)
			r.Get("/ws", rt.ws.ServeHTTP)
		}
		if cfg.Stream {
			srv := NewMCPServer(ep, cfg.ServerName, cfg.ServerVersion)
			r.Handle("/stream", mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return srv }, nil))
		}
	})

	return rt
}

func (rt *router) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rt.cfg.Token == "" {
			next.ServeHTTP(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer "+rt.cfg.Token {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		log.Info().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote", r.RemoteAddr).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}

func (rt *router) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *router) handleListTools(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"tools": ToolsFrom(rt.ep.Tools())})
}

func (rt *router) handleCall(w http.ResponseWriter, r *http.Request) {
	var req CallRequest
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		res := dispatch.Failed(middleware.GetReqID(r.Context()), "", dispatch.InvalidArguments, "invalid json body")
		writeJSON(w, http.StatusBadRequest, res)
		return
	}

	res := rt.ep.Invoke(r.Context(), req.invocation())
	writeJSON(w, StatusFor(res), res)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// HTTPTransport serves the router on a TCP listener.
type HTTPTransport struct {
	cfg HTTPConfig

	mu  sync.Mutex
	srv *http.Server
	ln  net.Listener
	rt  *router
}

// NewHTTPTransport creates an HTTP transport. It binds on Serve.
func NewHTTPTransport(cfg HTTPConfig) *HTTPTransport {
	return &HTTPTransport{cfg: cfg}
}

func (t *HTTPTransport) Name() string { return "http" }

// Addr returns the bound address, or nil before Serve.
func (t *HTTPTransport) Addr() net.Addr {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ln == nil {
		return nil
	}
	return t.ln.Addr()
}

func (t *HTTPTransport) Serve(_ context.Context, ep Endpoint) (<-chan error, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.srv != nil {
		return nil, errors.New("http transport already serving")
	}

	var tlsConfig *tls.Config
	if t.cfg.TLSCertFile != "" && t.cfg.TLSKeyFile != "" {
		cert, err := tls.LoadX509KeyPair(t.cfg.TLSCertFile, t.cfg.TLSKeyFile)
		if err != nil {
			return nil, errors.Wrap(err, "load tls key pair")
		}
		tlsConfig = &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12}
	}

	ln, err := net.Listen("tcp", t.cfg.Addr)
	if err != nil {
		return nil, errors.Wrapf(err, "listen on %s", t.cfg.Addr)
	}

	rt := newRouter(ep, t.cfg)
	srv := &http.Server{
		Handler:           rt.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	if rt.ws != nil {
		srv.RegisterOnShutdown(rt.ws.closeAll)
	}
	t.srv, t.ln, t.rt = srv, ln, rt

	log.Info().Str("addr", ln.Addr().String()).Bool("tls", tlsConfig != nil).Msg("HTTP transport listening")

	var serveLn net.Listener = ln
	if tlsConfig != nil {
		srv.TLSConfig = tlsConfig
		serveLn = tls.NewListener(ln, tlsConfig)
	}

	errc := make(chan error, 1)
	go func() {
		defer close(errc)
		err := srv.Serve(serveLn)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errc <- err
	}()
	return errc, nil
}

// Stop shuts the HTTP server down gracefully, bounded by ctx.
func (t *HTTPTransport) Stop(ctx context.Context) error {
	t.mu.Lock()
	srv := t.srv
	t.mu.Unlock()
	if srv == nil {
		return nil
	}
	if err := srv.Shutdown(ctx); err != nil {
		return errors.Wrap(err, "shutdown http server")
	}
	return nil
}
