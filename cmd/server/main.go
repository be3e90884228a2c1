package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"fundboard/internal/api"
	"fundboard/internal/config"
	"fundboard/internal/logging"
	"fundboard/pkg/fundboard"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var getppid = os.Getppid
var sleep = time.Sleep
var exit = os.Exit

const defaultConfigFile = "fundboard.toml"

func main() {
	var configPath string
	var dataDir string
	var port int
	var host string
	var webDir string

	flag.StringVar(&configPath, "config", "", "Path to a TOML config file (default: ./fundboard.toml when present)")
	flag.StringVar(&dataDir, "data-dir", "", "Directory for storing database and application data")
	flag.IntVar(&port, "port", 8000, "Port to run the server on")
	flag.StringVar(&host, "host", "127.0.0.1", "Host to bind the server to")
	flag.StringVar(&webDir, "web-dir", "", "Directory for SPA static files (optional)")
	flag.Parse()

	cfg, err := config.LoadConfig(configFiles(configPath)...)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	// Flags given on the command line beat the config file and environment.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "port":
			cfg.Server.Port = port
		case "host":
			cfg.Server.Host = host
		case "web-dir":
			cfg.Server.WebDir = webDir
		}
	})
	if dataDir != "" {
		config.SetRuntimeDataDir(dataDir)
	}

	logDir, err := cfg.LogDir()
	if err != nil {
		slog.Error("failed to resolve log directory", "err", err)
		os.Exit(1)
	}
	logger, writer, err := logging.NewLogger(logging.Options{
		Dir:           logDir,
		Level:         cfg.Logging.Level,
		Format:        cfg.Logging.Format,
		RetentionDays: cfg.Logging.RetentionDays,
	})
	if err != nil {
		slog.Error("failed to initialize logger", "err", err)
		os.Exit(1)
	}
	defer func() {
		if err := writer.Close(); err != nil {
			logger.Error("failed to close log writer", "err", err)
		}
	}()

	dbPath, err := cfg.DBPath()
	if err != nil {
		logger.Error("failed to resolve db path", "err", err)
		os.Exit(1)
	}

	core, err := fundboard.OpenWithOptions(coreOptions(cfg, dbPath, logger))
	if err != nil {
		logger.Error("failed to initialize core", "err", err)
		os.Exit(1)
	}
	defer func() {
		if err := core.Close(); err != nil {
			logger.Error("failed to close core", "err", err)
		}
	}()

	if os.Getenv("FUNDBOARD_PARENT_WATCH") == "1" {
		go watchParent(logger)
	}

	if cfg.Auth.JWTSecret == "" {
		logger.Warn("no jwt secret configured; tokens will not survive a restart")
	}

	handler := api.NewRouter(core, api.Options{
		JWTSecret:   []byte(cfg.Auth.JWTSecret),
		TokenExpiry: config.Duration(cfg.Auth.TokenExpiry, 24*time.Hour),
		Logger:      logger,
		Version:     version,
	})
	if resolvedWebDir := resolveWebDir(cfg.Server.WebDir); resolvedWebDir != "" {
		logger.Info("serving SPA", "web_dir", resolvedWebDir)
		handler = api.WithSPA(handler, resolvedWebDir)
	}
	handler = middleware.Compress(5)(handler)

	addr := cfg.Addr()
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Fund analysis can hold a request for the full model deadline.
		WriteTimeout: config.Duration(cfg.AI.AnalysisTimeout, 90*time.Second) + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	printBanner(os.Stderr, cfg, dbPath)
	logger.Info("server starting",
		"addr", addr,
		"version", version,
		"environment", cfg.Environment,
		"db_path", dbPath,
		"data_service", cfg.DataService.BaseURL,
		"news_provider", cfg.News.Provider,
	)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "err", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)
	<-stop
	signal.Stop(stop)

	printShutdownBanner(os.Stderr)
	logger.Info("server shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), config.Duration(cfg.Server.ShutdownTimeout, 10*time.Second))
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "err", err)
	}
}

// configFiles returns the explicit config path, or the default file in the
// working directory when no path was given.
func configFiles(explicit string) []string {
	if explicit != "" {
		return []string{explicit}
	}
	return []string{defaultConfigFile}
}

func coreOptions(cfg *config.Config, dbPath string, logger *slog.Logger) fundboard.Options {
	return fundboard.Options{
		DBPath:          dbPath,
		Logger:          logger,
		DataServiceURL:  cfg.DataService.BaseURL,
		NewsProvider:    cfg.News.Provider,
		TavilyURL:       cfg.News.TavilyURL,
		HTTPTimeout:     config.Duration(cfg.DataService.Timeout, 0),
		NewsTimeout:     config.Duration(cfg.News.Timeout, 0),
		MarketRateLimit: cfg.DataService.RateLimit,
		AnalysisTimeout: config.Duration(cfg.AI.AnalysisTimeout, 0),
		ChatTimeout:     config.Duration(cfg.AI.ChatTimeout, 0),
		ProbeTimeout:    config.Duration(cfg.AI.ProbeTimeout, 0),
	}
}

func watchParent(logger *slog.Logger) {
	for {
		sleep(1 * time.Second)
		if getppid() == 1 {
			logger.Info("parent process exited; shutting down")
			exit(0)
		}
	}
}

func resolveWebDir(input string) string {
	if input != "" {
		if dirExists(input) {
			return input
		}
		return ""
	}

	candidates := []string{"web", "static", "../web"}
	for _, candidate := range candidates {
		if dirExists(candidate) {
			return candidate
		}
	}
	if exe, err := os.Executable(); err == nil {
		base := filepath.Dir(exe)
		for _, candidate := range candidates {
			path := filepath.Join(base, candidate)
			if dirExists(path) {
				return path
			}
		}
	}
	return ""
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}
