package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"erc20idx/pkg/config"
	"erc20idx/pkg/controller"
	"erc20idx/pkg/ens"
	"erc20idx/pkg/indexer"
	"erc20idx/pkg/logging"
	"erc20idx/pkg/metrics"
	"erc20idx/pkg/rpc"
	"erc20idx/pkg/server"
	"erc20idx/pkg/tui"
	"erc20idx/pkg/wallet"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Version should be set during build
var Version = "dev"

func main() {
	testFlag := flag.Bool("t", false, "Test configuration and exit")
	testLongFlag := flag.Bool("test", false, "Test configuration and exit")
	jsonFlag := flag.Bool("json", false, "Output test results as JSON")
	configFlag := flag.String("config", "", "Path to configuration file (.json, .yaml or .yml)")
	versionFlag := flag.Bool("version", false, "Print version and exit")
	serverFlag := flag.Bool("server", false, "Run in headless server mode")
	portFlag := flag.Int("port", 0, "Port for the HTTP page and API (overrides config)")
	addressFlag := flag.String("address", "", "Address or .eth name to query on start")
	initFlag := flag.Bool("init-config", false, "Write the current configuration to the config path and exit")
	restoreFlag := flag.Bool("restore-config", false, "Restore the newest config backup and exit")
	flag.Parse()

	if *versionFlag {
		fmt.Printf("erc20idx version %s\n", Version)
		os.Exit(0)
	}

	cfgInput := *configFlag
	if cfgInput == "" && len(flag.Args()) > 0 {
		cfgInput = flag.Args()[0]
	}
	path, err := config.GetConfigPath(cfgInput)
	if err != nil {
		fmt.Printf("Error determining config path: %v\n", err)
		os.Exit(1)
	}

	if *restoreFlag {
		if err := config.RestoreLastBackup(path); err != nil {
			fmt.Printf("Failed to restore backup of %s: %v\n", path, err)
			os.Exit(1)
		}
		fmt.Printf("Restored the last backup of %s\n", path)
		os.Exit(0)
	}

	cfg, err := config.LoadConfigFromFile(path)
	if err != nil {
		fmt.Printf("Error loading config from %s: %v\n", path, err)
		os.Exit(1)
	}
	if *portFlag != 0 {
		cfg.Server.Port = *portFlag
	}

	if *initFlag {
		if err := config.SaveConfig(cfg, path); err != nil {
			fmt.Printf("Failed to save config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Configuration saved to %s\n", path)
		os.Exit(0)
	}

	if *testFlag || *testLongFlag {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		_, ok := runSelfTest(ctx, cfg, path, os.Stdout, *jsonFlag)
		cancel()
		if !ok {
			os.Exit(1)
		}
		os.Exit(0)
	}

	if problems := cfg.Validate(); len(problems) > 0 {
		fmt.Printf("Invalid configuration at %s:\n", path)
		for _, p := range problems {
			fmt.Printf(" - %s\n", p)
		}
		os.Exit(1)
	}

	// The terminal page owns stdout, so it only logs to a file.
	logger, err := logging.New(logging.Options{
		Level:       cfg.Log.Level,
		File:        cfg.Log.File,
		Console:     *serverFlag,
		Development: cfg.Log.Development,
	})
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger, *serverFlag, *addressFlag); err != nil {
		logger.Error("exiting", zap.Error(err))
		fmt.Println(err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *zap.Logger, serverMode bool, initialAddress string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	api, err := rpc.Dial(ctx, rpc.Options{
		URL:       cfg.API.URL,
		Network:   cfg.API.Network,
		APIKey:    cfg.API.APIKey,
		Timeout:   cfg.APITimeout(),
		RateLimit: cfg.API.RateLimit,
		Burst:     cfg.API.Burst,
	}, logger)
	if err != nil {
		return err
	}
	defer api.Close()

	resolver := ens.NewResolver(ethclient.NewClient(api.Raw()))
	ix := indexer.New(api, resolver, indexer.Options{
		CacheTTL:    cfg.MetadataTTL(),
		Concurrency: cfg.API.MaxConcurrency,
	}, m, logger)

	var provider wallet.Provider
	if cfg.Wallet.RPCURL != "" {
		p, err := wallet.Dial(ctx, cfg.Wallet.RPCURL, cfg.WalletTimeout(), logger)
		if err != nil {
			logger.Warn("wallet unavailable", zap.String("url", cfg.Wallet.RPCURL), zap.Error(err))
		} else {
			defer p.Close()
			provider = p
		}
	}

	ctrl := controller.New(ix, provider, controller.Options{
		TargetChainID: cfg.TargetChainID(),
		Metrics:       m,
		Logger:        logger,
	})

	gin.SetMode(gin.ReleaseMode)
	srv := server.NewServer(ctrl, server.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Columns:        cfg.Display.Columns,
		ReadTimeout:    time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout:   time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:    time.Duration(cfg.Server.IdleTimeout) * time.Second,
		Metrics:        m,
		Logger:         logger,
	})
	srvErr := make(chan error, 1)
	go func() {
		srvErr <- srv.Start(cfg.Server.Port)
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server forced to shutdown", zap.Error(err))
		}
	}()

	if initialAddress == "" {
		initialAddress = cfg.Display.DefaultAddress
	}

	if serverMode {
		logger.Info("running in server mode", zap.Int("port", cfg.Server.Port))
		if cfg.Wallet.AutoConnect && provider != nil {
			go func() { _, _ = ctrl.Connect(ctx) }()
		}
		if initialAddress != "" {
			go func() { _, _ = ctrl.Query(ctx, initialAddress) }()
		}
		select {
		case <-ctx.Done():
			logger.Info("shutting down server...")
			return nil
		case err := <-srvErr:
			return err
		}
	}

	return tui.Start(ctrl, tui.Options{
		Columns:      cfg.Display.Columns,
		AutoConnect:  cfg.Wallet.AutoConnect,
		InitialQuery: initialAddress,
		ServerURL:    fmt.Sprintf("http://localhost:%d", cfg.Server.Port),
	}, Version)
}
