package main

import (
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/menta2k/box-annotator/internal/config"
	"github.com/menta2k/box-annotator/pkg/labelserver"
)

func main() {
	var configPath, addr, root string
	var verbose bool

	flag.StringVar(&configPath, "config", config.GetConfigPath(), "config file (optional)")
	flag.StringVar(&addr, "addr", "", "listen address (overrides config)")
	flag.StringVar(&root, "root", "", "dataset root directory (overrides config)")
	flag.BoolVar(&verbose, "v", false, "log every request outcome")
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}
	if root != "" {
		cfg.Server.Root = root
	}

	var logger *slog.Logger
	if verbose {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}

	srv, err := labelserver.New(cfg.Server.Root, logger)
	if err != nil {
		log.Fatalf("Failed to create label server: %v", err)
	}

	httpSrv := &http.Server{
		Handler:      srv,
		Addr:         cfg.Server.Addr,
		WriteTimeout: 60 * time.Second,
		ReadTimeout:  60 * time.Second,
	}

	log.Printf("Serving datasets from %s on %s", cfg.Server.Root, httpSrv.Addr)
	log.Fatal(httpSrv.ListenAndServe())
}
