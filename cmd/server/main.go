package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/GriffinCanCode/notchkit/internal/infrastructure/config"
	"github.com/GriffinCanCode/notchkit/internal/infrastructure/server"
)

func main() {
	socket := flag.String("socket", "", "Extension socket path (overrides SOCKET_PATH)")
	control := flag.String("control", "", "Control API address (overrides CONTROL_ADDR)")
	tokenFile := flag.String("token-file", "", "Control API credential file (overrides CONTROL_TOKEN_PATH)")
	dev := flag.Bool("dev", false, "Development logging")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *socket != "" {
		cfg.Socket.Path = *socket
	}
	if *control != "" {
		cfg.Control.Addr = *control
	}
	if *tokenFile != "" {
		cfg.Control.TokenPath = *tokenFile
	}
	if *dev {
		cfg.Logging.Development = true
		cfg.Logging.Level = "debug"
	}

	srv, err := server.NewServer(cfg)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Start(ctx); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Close(shutdownCtx); err != nil {
		log.Printf("Error during shutdown: %v", err)
		os.Exit(1)
	}
}
