package main

import (
	"log"
	"log/slog"
	"net/http"
	"os"

	"scrapyard/internal/config"
	"scrapyard/internal/helper"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}
	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))

	store := helper.NewFolderStore(cfg.DataFolder)
	router := helper.NewRouter(store)

	addr := ":" + cfg.HelperPort
	slog.Info("Starting helper server", "addr", addr, "data_folder", cfg.DataFolder)
	if err := http.ListenAndServe(addr, router); err != nil {
		log.Fatalf("Helper server failed to start: %v", err)
	}
}
