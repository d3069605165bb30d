package main

import (
	"log/slog"

	"github.com/soundprediction/linkpath/pkg/logger"
)

func main() {
	// Create a colored logger
	log := logger.NewDefaultLogger(slog.LevelDebug)

	log.Info("============================================")
	log.Info("    linkpath Colored Logger Demo")
	log.Info("============================================")
	log.Info("")

	log.Debug("Debug message - standard color")
	log.Info("Info message - standard color")
	log.Warn("Warning message - yellow!")
	log.Error("Error message - red!")

	log.Info("")
	log.Info("Remote and cache activity is highlighted in green:")
	log.Debug("fetched neighbors", "node", "Kevin Bacon", "neighbors", 412, "requests", 1)
	log.Debug("fetched neighbors", "node", "Footloose (1984 film)", "neighbors", 233, "requests", 1)
	log.Warn("cache read failed, treating as miss", "namespace", "neighbors")
	log.Info("search completed", "reason", "found", "steps", 2)

	log.Info("")
	log.Warn("skipping node after failed fetch", "node", "Apollo 13 (film)")
	log.Error("bulk lookup failed, caching chunk as negative", "service", "claims", "size", 50)

	log.Info("")
	log.Info("Demo complete!")
}
