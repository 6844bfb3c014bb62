package main

import (
	"context"
	"flag"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"mediasift/internal"
	"mediasift/pkg/logger"
)

var log = logger.Get("Main")

// main is the entry point to the program. The user configuration is
// loaded from the path given via -config (falling back to the default
// location), and the server runs until interrupted.
func main() {
	if err := godotenv.Load(); err == nil {
		log.Emit(logger.DEBUG, "Loaded environment overrides from .env\n")
	}

	configPath := flag.String("config", internal.DefaultConfigPath(), "path to the YAML configuration file")
	logLevel := flag.String("log-level", "INFO", "minimum logging level (VERBOSE, DEBUG, INFO, WARNING, ERROR)")
	flag.Parse()

	logger.SetMinLoggingLevel(parseLogLevel(*logLevel).Level())

	config := internal.MediaSiftConfig{}
	if err := config.LoadFromFile(*configPath); err != nil {
		log.Emit(logger.FATAL, "Failed to load configuration: %s\n", err.Error())
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := internal.New(config).Run(ctx); err != nil {
		log.Emit(logger.FATAL, "MediaSift stopped due to error: %s\n", err.Error())
	}
}

func parseLogLevel(level string) logger.LogStatus {
	switch strings.ToUpper(level) {
	case "VERBOSE":
		return logger.VERBOSE
	case "DEBUG":
		return logger.DEBUG
	case "WARNING":
		return logger.WARNING
	case "ERROR":
		return logger.ERROR
	default:
		return logger.INFO
	}
}
