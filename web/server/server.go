package server

import (
	"log/slog"
	"net"
	"net/http"
	"time"

	"go4.org/netipx"

	"go.hackfix.me/switchboard/dispatch"
	"go.hackfix.me/switchboard/web/server/handler"
	"go.hackfix.me/switchboard/web/server/middleware"
)

// MetricsPath is the path the metrics handler is served at.
const MetricsPath = "/-/metrics"

// Options configures the HTTP entry points.
type Options struct {
	// BasePath is the path prefix stripped before routing.
	BasePath string
	// EntryPoint is the eID query value that selects query based routing.
	EntryPoint string
	// TrustedProxies are the addresses whose X-Forwarded-For header is honored.
	TrustedProxies *netipx.IPSet
	// Metrics, if set, is served at MetricsPath.
	Metrics http.Handler
}

// Server is a wrapper around http.Server with some custom behavior.
type Server struct {
	*http.Server
	logger *slog.Logger
}

// New returns a new web Server instance that will listen on addr.
func New(d *dispatch.Dispatcher, addr string, opts Options, logger *slog.Logger) *Server {
	logger = logger.With("component", "web-server")
	return &Server{
		Server: &http.Server{
			Handler:           SetupHandlers(d, opts, logger),
			Addr:              addr,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      time.Minute,
		},
		logger: logger,
	}
}

// ListenAndServe starts the HTTP server. It stores the actual listen address,
// which is convenient when the address is dynamically determined by the
// system (e.g. ':0').
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		//nolint:wrapcheck // This is fine.
		return err
	}

	s.Addr = ln.Addr().String()
	s.logger.Info("started listener", "address", s.Addr)

	//nolint:wrapcheck // This is fine.
	return s.Serve(ln)
}

// SetupHandlers configures the server HTTP handlers.
func SetupHandlers(d *dispatch.Dispatcher, opts Options, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	if opts.Metrics != nil {
		mux.Handle("GET "+MetricsPath, opts.Metrics)
	}

	pipeline := handler.NewPipeline().
		ProcessRequest(
			handler.QueryRoute(opts.EntryPoint),
			handler.StripBasePath(opts.BasePath),
			handler.ReadBody,
		).
		ProcessResponse(handler.CacheControl, handler.Gzip)
	mux.Handle("/", handler.Dispatch(d, pipeline, logger))

	return middleware.Chain(mux,
		middleware.TrustedProxies(opts.TrustedProxies),
		middleware.RequestID(),
		middleware.Logger(logger),
		middleware.Recover(logger),
	)
}
