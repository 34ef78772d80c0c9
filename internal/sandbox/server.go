package sandbox

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 10 * time.Second
	janitorInterval   = 10 * time.Minute
)

// NewRouter builds the gin engine with logging, recovery, the JSON API under
// prefix and the HTML index.
func NewRouter(manager *Manager, prefix string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(ZerologLogger())

	a := NewAPI(manager)
	a.RegisterRoutes(r, prefix)
	a.RegisterUIRoutes(r, prefix)
	return r
}

// Handler wraps the router with OpenTelemetry server instrumentation, which
// continues the trace carried by incoming traceparent headers. opts default
// to the otel globals.
func Handler(manager *Manager, prefix string, opts ...otelhttp.Option) http.Handler {
	opts = append([]otelhttp.Option{
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return "sandbox " + r.Method + " " + r.URL.Path
		}),
	}, opts...)
	return otelhttp.NewHandler(NewRouter(manager, prefix), "sandbox", opts...)
}

// Serve runs the sandbox on addr until ctx is done, then shuts down
// gracefully and waits for in-flight jobs.
func Serve(ctx context.Context, addr, prefix string, opts Options) error {
	manager := NewManagerWithOptions(opts)
	baseCtx, baseCancel := context.WithCancel(context.Background())
	defer baseCancel()
	manager.SetBaseContext(baseCtx)

	if n, err := manager.Store().Sweep(time.Now()); err != nil {
		log.Warn().Err(err).Msg("initial sweep failed")
	} else if n > 0 {
		log.Info().Int("removed", n).Msg("expired artifacts removed")
	}
	go manager.RunJanitor(baseCtx, janitorInterval)

	srv := &http.Server{
		Addr:              addr,
		Handler:           Handler(manager, prefix),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Str("data_dir", manager.opts.DataDir).Msg("sandbox listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("sandbox server: %w", err)
		}
		return nil
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http server shutdown warning")
	}
	baseCancel()
	if !manager.WaitAll(shutdownCtx) {
		log.Warn().Msg("background jobs did not finish before timeout")
	}
	log.Info().Msg("sandbox exited cleanly")
	return nil
}
