package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	actx "go.hackfix.me/switchboard/app/context"
	aerrors "go.hackfix.me/switchboard/app/errors"
	"go.hackfix.me/switchboard/web/server"
	"go.hackfix.me/switchboard/web/server/middleware"
)

// Serve starts the web server and the invalidation queue sweeper.
type Serve struct {
	Address string `arg:"" optional:"" help:"[host]:port to listen on. Defaults to the configured server address."`
}

// Run the serve command.
func (c *Serve) Run(appCtx *actx.Context) error {
	st, err := newStack(appCtx)
	if err != nil {
		return err
	}

	srvCfg := appCtx.Config.Server
	opts := server.Options{
		BasePath:   srvCfg.BasePath.V,
		EntryPoint: srvCfg.EntryPoint.V,
	}
	if len(srvCfg.TrustedProxies) > 0 {
		opts.TrustedProxies, err = middleware.ParseIPSet(srvCfg.TrustedProxies...)
		if err != nil {
			return aerrors.NewRuntimeError("invalid trusted proxies", err, "")
		}
	}
	if srvCfg.Metrics.V {
		opts.Metrics = st.metrics.Handler()
	}

	srv := server.New(st.dispatcher, c.Address, opts, appCtx.Logger)

	sweepCtx, cancelSweep := context.WithCancel(appCtx.Ctx)
	sweepDone := make(chan struct{})
	go func() {
		st.sweeper.Run(sweepCtx)
		close(sweepDone)
	}()
	defer func() {
		cancelSweep()
		<-sweepDone
	}()

	// Gracefully shutdown the server if a process signal is received, or the
	// main context is done.
	// See https://dev.to/mokiat/proper-http-shutdown-in-go-3fji
	srvDone := make(chan error)
	go func() {
		srvErr := srv.ListenAndServe()
		slog.Debug("web server shutdown")
		srvDone <- srvErr
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case s := <-sigCh:
		slog.Debug("process received signal", "signal", s)
	case <-appCtx.Ctx.Done():
		slog.Debug("app context is done")
	case srvErr := <-srvDone:
		if srvErr != nil && !errors.Is(srvErr, http.ErrServerClosed) {
			return fmt.Errorf("web server error: %w", srvErr)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(appCtx.Ctx), 10*time.Second)
	defer cancel()
	if err = srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("failed shutting down web server: %w", err)
	}
	<-srvDone

	return nil
}
