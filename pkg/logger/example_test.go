package logger_test

import (
	"log/slog"

	"github.com/soundprediction/chronicle/pkg/logger"
)

func ExampleNewDefaultLogger() {
	// Create a logger with default settings
	log := logger.NewDefaultLogger(slog.LevelDebug)

	// Log different levels
	log.Debug("This is a debug message")
	log.Info("This is an info message")
	log.Info("Persisting versions to store") // Will be green in terminal
	log.Warn("This is a warning message")    // Will be yellow in terminal
	log.Error("This is an error message")    // Will be red in terminal
}

func ExampleNewColorHandler() {
	log := logger.NewDefaultLogger(slog.LevelInfo)

	// Log with attributes
	log.Info("Applying commit", "entities", 3, "relations", 2)
	log.Info("Persisting entity versions", "count", 42)                           // Green
	log.Warn("Cache stream empty, starting fresh", "activity", "reading")         // Yellow
	log.Error("Store write failed", "error", "disk full", "retry_count", 3)       // Red
}
