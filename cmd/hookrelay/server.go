package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/rsclarke/hookrelay/internal/acme"
	"github.com/rsclarke/hookrelay/internal/config"
	"github.com/rsclarke/hookrelay/internal/db"
	"github.com/rsclarke/hookrelay/internal/logging"
	"github.com/rsclarke/hookrelay/internal/metrics"
	"github.com/rsclarke/hookrelay/internal/plugins"
	"github.com/rsclarke/hookrelay/internal/plugins/core/classify"
	"github.com/rsclarke/hookrelay/internal/plugins/core/defaultresponse"
	"github.com/rsclarke/hookrelay/internal/plugins/core/storage"
	"github.com/rsclarke/hookrelay/internal/plugins/forward"
	"github.com/rsclarke/hookrelay/internal/relay"
	"github.com/rsclarke/hookrelay/internal/server"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the capture and API listeners",
	Long: `Start the hookrelay capture listener (HTTP, and HTTPS when configured)
and the read API listener.

TLS Modes:
  --tls-cert + --tls-key  → Manual TLS on --https-port
  --acme-domain ...       → Let's Encrypt certificates via HTTP-01 and
                            TLS-ALPN-01 on the capture listeners
  (neither)               → HTTP only

Notes:
  Certificates and ACME account data are stored in the logs database.
  The read API is unauthenticated; bind it to a private interface.`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(serverCmd)

	f := serverCmd.Flags()
	config.Spec.AddFlag(f, "db", "db")
	config.Spec.AddFlag(f, "http-port", "capture.port")
	config.Spec.AddFlag(f, "https-port", "capture.https-port")
	config.Spec.AddFlag(f, "max-body-bytes", "capture.max-body-bytes")
	config.Spec.AddFlag(f, "api-port", "api.port")
	config.Spec.AddFlag(f, "tls-cert", "tls.cert")
	config.Spec.AddFlag(f, "tls-key", "tls.key")
	config.Spec.AddFlag(f, "acme-domain", "acme.domains")
	config.Spec.AddFlag(f, "acme-email", "acme.email")
	config.Spec.AddFlag(f, "acme-staging", "acme.staging")
	config.Spec.AddFlag(f, "upstream", "relay.upstreams")
	config.Spec.AddFlag(f, "max-in-flight", "relay.max-in-flight")
	config.Spec.AddFlag(f, "shutdown-timeout-seconds", "shutdown-timeout-seconds")
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer database.Close()

	logs := db.NewLogStore(database)
	m := metrics.New()

	relayer := relay.New(
		relay.Config{
			Upstreams:    cfg.Relay.Upstreams,
			PathTemplate: cfg.Relay.PathTemplate,
			EventSuffix:  cfg.Relay.EventSuffix,
			OriginName:   cfg.Relay.OriginName,
		},
		semaphore.NewWeighted(int64(cfg.Relay.MaxInFlight)),
		relay.NewHTTPTransport(cfg.Relay.Timeout),
		logs,
		logger.Named("relay"),
		m,
	)
	if len(cfg.Relay.Upstreams) == 0 {
		logger.Warn("no relay upstreams configured; events will be captured only")
	}

	pipeline := plugins.NewPipeline(logger.Named("pipeline"))
	storagePlugin := storage.New(logs)
	pipeline.SetStore(storagePlugin)
	pipeline.Register(classify.New())
	pipeline.Register(storagePlugin)
	pipeline.Register(forward.New(relayer))
	pipeline.Register(defaultresponse.New())
	if err := pipeline.Init(plugins.InitContext{
		Logger:  logger.Named("plugins"),
		Store:   storagePlugin,
		Metrics: m,
	}); err != nil {
		return err
	}

	captureSrv := &server.CaptureServer{
		Pipeline:     pipeline,
		Logger:       logger.Named("capture"),
		Metrics:      m,
		MaxBodyBytes: cfg.MaxBodyBytes,
	}
	captureHandler := server.Recover(logger.Named("capture"), captureSrv)

	var acmeManager *acme.Manager
	if len(cfg.ACMEDomains) > 0 {
		acmeManager, err = acme.NewManager(cfg.ACMEDomains, cfg.ACMEEmail, database, cfg.ACMEStaging, logger.Named("certmagic"))
		if err != nil {
			return err
		}
	}

	httpHandler := http.Handler(captureHandler)
	if acmeManager != nil {
		httpHandler = acmeManager.HTTPChallengeHandler(captureHandler)
	}

	httpSrv := server.NewManagedServer("http",
		server.DefaultServerConfig(fmt.Sprintf(":%d", cfg.HTTPPort), httpHandler, logger))
	if err := httpSrv.Start(); err != nil {
		return err
	}

	apiSrv := &server.APIServer{
		Logs:    logs,
		Plugins: pipeline,
		Logger:  logger.Named("api"),
		Metrics: m,
	}
	apiListener := server.NewManagedServer("api",
		server.DefaultServerConfig(fmt.Sprintf(":%d", cfg.APIPort), apiSrv.Handler(), logger))
	if err := apiListener.Start(); err != nil {
		httpSrv.Shutdown(context.Background())
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tlsConfig, tlsMode, err := captureTLS(ctx, cfg, acmeManager)
	if err != nil {
		httpSrv.Shutdown(context.Background())
		apiListener.Shutdown(context.Background())
		return err
	}

	var httpsSrv *server.ManagedServer
	var httpsErr <-chan error
	if tlsConfig != nil {
		httpsCfg := server.DefaultServerConfig(fmt.Sprintf(":%d", cfg.HTTPSPort), captureHandler, logger)
		httpsCfg.TLSConfig = tlsConfig
		httpsSrv = server.NewManagedServer("https", httpsCfg)
		if err := httpsSrv.Start(); err != nil {
			httpSrv.Shutdown(context.Background())
			apiListener.Shutdown(context.Background())
			return err
		}
		httpsErr = httpsSrv.Err()
		logger.Info("https enabled", logging.Port(cfg.HTTPSPort), logging.TLSMode(tlsMode))
	} else {
		logger.Info("https disabled", zap.String("reason", "no TLS certificate or ACME domain configured"))
	}

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case serveErr = <-httpSrv.Err():
	case serveErr = <-apiListener.Err():
	case serveErr = <-httpsErr:
	}
	if serveErr != nil {
		logger.Error("server error, shutting down", zap.Error(serveErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if httpsSrv != nil {
		httpsSrv.Shutdown(shutdownCtx)
	}
	httpSrv.Shutdown(shutdownCtx)
	apiListener.Shutdown(shutdownCtx)

	return serveErr
}

// captureTLS returns the TLS configuration for the capture HTTPS listener,
// or nil when HTTPS is disabled.
func captureTLS(ctx context.Context, cfg *config.Config, manager *acme.Manager) (*tls.Config, string, error) {
	switch {
	case cfg.TLSCertFile != "":
		cert, err := tls.LoadX509KeyPair(cfg.TLSCertFile, cfg.TLSKeyFile)
		if err != nil {
			return nil, "", fmt.Errorf("load TLS certificate: %w", err)
		}
		return &tls.Config{Certificates: []tls.Certificate{cert}}, "manual", nil
	case manager != nil:
		logger.Info("starting acme certificate acquisition",
			zap.Strings("domains", cfg.ACMEDomains), zap.Bool("staging", cfg.ACMEStaging))
		if err := manager.Manage(ctx); err != nil {
			return nil, "", fmt.Errorf("ACME certificate acquisition: %w", err)
		}
		logger.Info("acme certificates obtained", zap.Strings("domains", cfg.ACMEDomains))
		return manager.TLSConfig(), "acme", nil
	case cfg.HTTPSPort != 0:
		logger.Warn("https port set without tls.cert or acme.domains")
	}
	return nil, "", nil
}
