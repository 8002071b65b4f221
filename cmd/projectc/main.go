package main

import (
	"context"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/karimd18/project-C-case-study/config"
	"github.com/karimd18/project-C-case-study/errors"
)

var (
	configFile = flag.String("config", "projectc.yaml", "Path to configuration file")
	envFile    = flag.String("env", ".env", "Path to a dotenv file loaded before the configuration")
	validate   = flag.Bool("validate", false, "Validate configuration and exit")
	version    = flag.Bool("version", false, "Print version and exit")
)

const Version = "v0.1.0"

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("projectc %s\n", Version)
		os.Exit(0)
	}

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("Failed to load env file: %v", err)
	}

	cfg, watchable, err := loadConfig(*configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Just validate and exit if requested
	if *validate {
		fmt.Println("Configuration is valid")
		os.Exit(0)
	}

	logger, level, err := config.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()
	errors.SetLogger(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	configPath := ""
	if watchable {
		configPath = *configFile
	}

	logger.Info("Starting projectc",
		zap.String("version", Version),
		zap.Int("port", cfg.Server.Port),
		zap.String("llm_client", cfg.LLM.Client),
		zap.String("storage", cfg.Storage.Driver),
	)
	if err := run(ctx, cfg, configPath, logger, level); err != nil {
		logger.Fatal("Server error", zap.Error(err))
	}
	logger.Info("Server stopped")
}
