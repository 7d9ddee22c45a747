package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"participant-gate/internal/config"
	"participant-gate/internal/factory"
	"participant-gate/internal/handler"
	"participant-gate/internal/util"
)

func main() {
	// Initialize factory (which loads config and initializes all clients)
	f, err := factory.NewFactory()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	cfg := f.Config()
	logger := f.Logger()

	router := handler.NewRouter(f.GateHandler(), cfg.Server, f.Ready, logger.Named("http"))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	for _, worker := range f.Workers() {
		worker := worker
		g.Go(func() error { return worker(gctx) })
	}

	servers := buildServers(f, cfg, router)
	for _, srv := range servers {
		srv := srv
		g.Go(func() error {
			var err error
			if srv.TLSConfig != nil {
				util.Info("Starting HTTPS server", util.String("address", srv.Addr), util.Bool("auto_cert", cfg.Server.AutoCert))
				err = srv.ListenAndServeTLS("", "")
			} else {
				util.Info("Starting HTTP server", util.String("address", srv.Addr))
				err = srv.ListenAndServe()
			}
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server %s failed: %w", srv.Addr, err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		util.Info("Shutting down servers")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		for _, srv := range servers {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				util.Error("Failed to shutdown server gracefully", util.String("address", srv.Addr), util.ErrorField(err))
			}
		}
		return nil
	})

	util.Info("Server started successfully",
		util.String("environment", cfg.Environment),
		util.Bool("tls_enabled", cfg.Server.EnableTLS),
		util.Bool("trust_proxy_headers", cfg.Server.TrustProxyHeaders),
	)

	if err := g.Wait(); err != nil {
		util.Error("Server stopped with error", util.ErrorField(err))
		f.Close()
		os.Exit(1)
	}
	util.Info("Server shutdown completed")
}

// buildServers returns the plain HTTP server and, when TLS is enabled, the
// HTTPS server. With TLS on, the plain listener only answers ACME
// challenges and redirects to HTTPS.
func buildServers(f *factory.Factory, cfg *config.Config, router http.Handler) []*http.Server {
	newServer := func(addr string, h http.Handler) *http.Server {
		return &http.Server{
			Addr:         addr,
			Handler:      h,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
			IdleTimeout:  cfg.Server.IdleTimeout,
		}
	}

	if !cfg.Server.EnableTLS {
		util.Warn("TLS is disabled", util.Int("port", cfg.Server.Port))
		return []*http.Server{newServer(cfg.GetServerAddress(), router)}
	}

	tlsManager := f.TLSManager()
	httpsServer := newServer(fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.TLSPort), router)
	httpsServer.TLSConfig = tlsManager.GetTLSConfig()

	redirect := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		target := "https://" + cfg.Server.Domain
		if cfg.Server.TLSPort != 443 {
			target = fmt.Sprintf("%s:%d", target, cfg.Server.TLSPort)
		}
		http.Redirect(w, r, target+r.URL.RequestURI(), http.StatusMovedPermanently)
	})
	httpServer := newServer(cfg.GetServerAddress(), tlsManager.HTTPHandler(redirect))

	return []*http.Server{httpServer, httpsServer}
}
