package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"agentsched-go/internal/app"
	"agentsched-go/internal/config"
)

func main() {
	log.SetPrefix("agentsched: ")
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	configPath := flag.String("config", "./configs/config.json", "path to the config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Create a new application instance
	application, err := app.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create application: %v", err)
	}

	// Create a context that we can cancel
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start the application
	if err := application.Start(ctx); err != nil {
		log.Fatalf("Application failed to start: %v", err)
	}

	// Wait for a shutdown signal
	sigchan := make(chan os.Signal, 1)
	signal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM)
	<-sigchan

	log.Println("Shutdown signal received, initiating graceful shutdown...")
	cancel()
	if err := application.Stop(context.Background()); err != nil {
		log.Printf("Error during graceful shutdown: %v", err)
	}

	log.Println("Application has stopped.")
}
