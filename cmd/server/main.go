package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/himanishpuri/playscore/pkg/config"
	"github.com/himanishpuri/playscore/pkg/logger"
	"github.com/himanishpuri/playscore/pkg/playscore"
)

var (
	configPath     string
	port           string
	dbPath         string
	tempDir        string
	engineName     string
	mscorePath     string
	allowedOrigins string
)

func init() {
	flag.StringVar(&configPath, "config", getEnvOrDefault("PLAYSCORE_CONFIG", ""), "Path to playscore.yaml")
	flag.StringVar(&port, "port", "", "HTTP server port")
	flag.StringVar(&dbPath, "db", "", "SQLite database for conversion history (empty disables history)")
	flag.StringVar(&tempDir, "temp", "", "Directory for upload scratch files")
	flag.StringVar(&engineName, "engine", "", "Score engine: native or musescore")
	flag.StringVar(&mscorePath, "mscore", "", "MuseScore binary used by the musescore engine")
	flag.StringVar(&allowedOrigins, "origins", "", "Comma-separated list of allowed CORS origins (use * for all)")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, err
	}
	if port != "" {
		cfg.Port = port
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}
	if tempDir != "" {
		cfg.TempDir = tempDir
	}
	if engineName != "" {
		cfg.Engine = engineName
	}
	if mscorePath != "" {
		cfg.MuseScore = mscorePath
	}
	if allowedOrigins != "" {
		cfg.Origins = config.SplitList(allowedOrigins)
	}
	return cfg, nil
}

func main() {
	flag.Parse()
	log := logger.GetLogger()

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	log.SetLevel(cfg.Level())

	service, err := playscore.NewService(
		playscore.WithDBPath(cfg.DBPath),
		playscore.WithTempDir(cfg.TempDir),
		playscore.WithEngineName(cfg.Engine),
		playscore.WithMuseScoreBinary(cfg.MuseScore),
		playscore.WithLogger(log),
	)
	if err != nil {
		log.Fatalf("Failed to create service: %v", err)
	}
	defer service.Close()

	server := NewServer(service, &ServerConfig{
		Port:           cfg.Port,
		TempDir:        cfg.TempDir,
		Engine:         cfg.Engine,
		MaxUploadBytes: cfg.MaxUploadBytes(),
		AllowedOrigins: cfg.Origins,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           server.setupRoutes(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go handleShutdown(srv, log)

	server.logStartup(cfg)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		log.Errorf("Server error: %v", err)
		service.Close()
		os.Exit(1)
	}
}

func (s *Server) logStartup(cfg config.Config) {
	s.log.Infof("🚀 playscore server starting on :%s", s.config.Port)
	s.log.Infof("   Engine: %s", s.config.Engine)
	s.log.Infof("   Upload limit: %d MB", cfg.MaxUploadMB)
	if cfg.DBPath != "" {
		s.log.Infof("   History: %s", cfg.DBPath)
	} else {
		s.log.Infof("   History: disabled")
	}
	s.log.Infof("   CORS Origins: %v", s.config.AllowedOrigins)
	s.log.Infof("Endpoints:")
	s.log.Infof("   GET    /                  - Service info")
	s.log.Infof("   GET    /health            - Health check")
	s.log.Infof("   GET    /metrics           - Prometheus metrics")
	s.log.Infof("   POST   /api/convert       - Convert or merge uploaded .playscore files")
	s.log.Infof("   POST   /api/inspect       - Describe an uploaded archive")
	s.log.Infof("   GET    /api/conversions   - Conversion history")
	s.log.Infof("   GET    /api/conversions/{id} - One history record")
	s.log.Infof("   DELETE /api/conversions/{id} - Remove a history record")
}

func handleShutdown(srv *http.Server, log *logger.Logger) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	log.Infof("Received %s, shutting down", sig)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Warnf("Server shutdown error: %v", err)
		return
	}
	log.Infof("HTTP server stopped")
}
