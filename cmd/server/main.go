package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/zeusync/sheetsync/internal/config"
	"github.com/zeusync/sheetsync/internal/injector"
)

func main() {
	path := flag.String("config", "", "configuration file (YAML)")
	dump := flag.Bool("print-config", false, "print the effective configuration and exit")
	flag.Parse()

	cfg, err := config.Load(*path)
	if err != nil {
		fmt.Println("Error loading configuration:", err)
		os.Exit(1)
	}
	if *dump {
		out, err := cfg.YAML()
		if err != nil {
			fmt.Println("Error rendering configuration:", err)
			os.Exit(1)
		}
		fmt.Print(string(out))
		return
	}

	srv, cleanup, err := injector.InitializeServer(cfg)
	if err != nil {
		fmt.Println("Error initializing server:", err)
		os.Exit(1)
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start the server
	if err = srv.Start(context.Background()); err != nil {
		fmt.Println("Error starting server:", err)
		return
	}

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err = srv.Stop(shutdownCtx); err != nil {
		fmt.Println("Error stopping server:", err)
	}
}
