package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"

	"github.com/mobiledgex/matchingengine/internal/dmesim"
	"github.com/mobiledgex/matchingengine/pkg/dmeuri"
)

var (
	cfgFile string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "dme-sim",
	Short: "Matching engine simulator",
	Long: `dme-sim serves the matching engine REST and gRPC APIs, plus a token
server, against a static inventory of apps and cloudlets.

Settings come from dme-sim.yaml and DMESIM_* environment variables, e.g.

  DMESIM_CARRIER=tdg DMESIM_SERVER_REST_ADDR=:38001 dme-sim`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, _ := zap.NewProduction()
		if debug {
			logger, _ = zap.NewDevelopment()
		}
		defer logger.Sync() //nolint:errcheck
		return run(logger, cfgFile)
	},
}

func init() {
	rootCmd.Flags().StringVar(&cfgFile, "config", "", "config file (default ./configs/dme-sim.yaml or ./dme-sim.yaml)")
	rootCmd.Flags().BoolVar(&debug, "debug", false, "enable development logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(logger *zap.Logger, configPath string) error {
	// ── Configuration ─────────────────────────────────────────────────────────
	cfg, err := dmesim.LoadConfig(configPath)
	if err != nil {
		return err
	}

	tlsCfg, err := serverTLS(cfg, logger)
	if err != nil {
		return err
	}
	if tlsCfg == nil {
		logger.Warn("no TLS certificate configured, serving plaintext")
	}

	// ── Engine ────────────────────────────────────────────────────────────────
	engine, err := dmesim.NewEngine(cfg, logger, dmesim.NewMetrics(nil))
	if err != nil {
		return err
	}
	if cfg.TokenServer.URL == "" {
		engine.SetTokenServerURL(selfURL(cfg.Server.RESTAddr, tlsCfg != nil) + dmesim.TokenServerPath)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	engine.StartTokenEviction(ctx, time.Minute)

	// ── gRPC server ───────────────────────────────────────────────────────────
	grpcLis, err := net.Listen("tcp", cfg.Server.RPCAddr)
	if err != nil {
		return fmt.Errorf("gRPC listen on %s: %w", cfg.Server.RPCAddr, err)
	}
	var grpcOpts []grpc.ServerOption
	if tlsCfg != nil {
		grpcOpts = append(grpcOpts, grpc.Creds(credentials.NewTLS(tlsCfg)))
	}
	grpcServer := dmesim.NewGRPCServer(engine, grpcOpts...)

	// ── REST server ───────────────────────────────────────────────────────────
	gin.SetMode(gin.ReleaseMode)
	router := dmesim.NewRouter(ctx, engine, dmesim.RouterOptions{
		RateLimitRPS:   cfg.RateLimit.RPS,
		RateLimitBurst: cfg.RateLimit.Burst,
	})
	httpSrv := &http.Server{
		Addr:              cfg.Server.RESTAddr,
		Handler:           router,
		TLSConfig:         tlsCfg,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ── Start both servers ─────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("dme-sim gRPC listening",
			zap.String("addr", cfg.Server.RPCAddr),
			zap.String("carrier", cfg.Carrier),
			zap.Int("cloudlets", len(cfg.Cloudlets)),
		)
		if err := grpcServer.Serve(grpcLis); err != nil {
			logger.Fatal("gRPC serve error", zap.Error(err))
		}
	}()

	go func() {
		logger.Info("dme-sim REST listening",
			zap.String("addr", cfg.Server.RESTAddr),
			zap.String("token_server", engine.TokenServerURI()),
		)
		var err error
		if tlsCfg != nil {
			err = httpSrv.ListenAndServeTLS("", "")
		} else {
			err = httpSrv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("REST serve error", zap.Error(err))
		}
	}()

	// ── Graceful shutdown ──────────────────────────────────────────────────────
	<-quit
	logger.Info("shutting down dme-sim...")
	cancel()

	grpcServer.GracefulStop()

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutCancel()
	if err := httpSrv.Shutdown(shutCtx); err != nil {
		logger.Error("REST shutdown", zap.Error(err))
	}

	logger.Info("dme-sim stopped")
	return nil
}

// serverTLS returns the listener TLS config: an explicit key pair wins,
// then the development CA in pki_dir. Nil means plaintext.
func serverTLS(cfg *dmesim.Config, logger *zap.Logger) (*tls.Config, error) {
	if cfg.Server.CertFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.Server.CertFile, cfg.Server.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("load TLS key pair: %w", err)
		}
		return &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12}, nil
	}
	if cfg.Server.PKIDir == "" {
		return nil, nil
	}

	ca := dmesim.NewDevCA(cfg.Server.PKIDir)
	if err := ca.LoadOrCreate(); err != nil {
		return nil, fmt.Errorf("development CA: %w", err)
	}
	hosts := []string{"localhost", "127.0.0.1", "::1"}
	if h, _, err := net.SplitHostPort(cfg.Server.RESTAddr); err == nil && h != "" && h != "0.0.0.0" && h != "::" {
		hosts = append(hosts, h)
	}
	serverCert, err := ca.IssueServer(hosts, 0)
	if err != nil {
		return nil, fmt.Errorf("issue server certificate: %w", err)
	}
	bundleDir := filepath.Join(cfg.Server.PKIDir, "client")
	if err := ca.IssueClientBundle(bundleDir, "dmectl", 0); err != nil {
		return nil, fmt.Errorf("issue client bundle: %w", err)
	}
	logger.Info("development PKI ready",
		zap.String("ca", ca.Cert().Subject.CommonName),
		zap.String("client_bundle", bundleDir),
		zap.Bool("require_client_cert", cfg.Server.RequireClientCert),
	)
	return ca.ServerTLSConfig(serverCert, cfg.Server.RequireClientCert), nil
}

// selfURL is the URL clients on this host use to reach the REST listener.
func selfURL(addr string, secure bool) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		host, port = addr, fmt.Sprint(dmeuri.DefaultRESTPort)
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	scheme := "http"
	if secure {
		scheme = "https"
	}
	return scheme + "://" + net.JoinHostPort(host, port)
}
