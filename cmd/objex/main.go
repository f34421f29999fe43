package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/objex-dev/objex/internal/config"
	"github.com/objex-dev/objex/internal/exchange"
	"github.com/objex-dev/objex/internal/logging"
	"github.com/objex-dev/objex/internal/server"
	"github.com/objex-dev/objex/internal/version"
)

func main() {
	// Handle subcommands before flag parsing
	if len(os.Args) > 1 {
		var err error
		switch os.Args[1] {
		case "version":
			printVersion()
			return
		case "serve":
			err = runServe(os.Args[2:])
		case "create", "join", "send", "listen":
			err = runClient(os.Args[1], os.Args[2:])
		default:
			err = runServe(os.Args[1:])
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := runServe(nil); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printVersion() {
	fmt.Println(version.String())
}

func runServe(args []string) error {
	fs := pflag.NewFlagSet("objex", pflag.ContinueOnError)
	dev := fs.Bool("dev", false, "run in dev mode")
	listen := fs.String("listen", "", "override listen address")
	configPath := fs.String("config", "", "path to config.toml or config.yaml")
	showVer := fs.Bool("version", false, "print version and exit")
	if err := fs.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	if *showVer {
		printVersion()
		return nil
	}

	cfg, err := config.Load(*configPath, *dev)
	if err != nil {
		return err
	}
	if *listen != "" {
		cfg.Server.Listen = *listen
	}

	logFile, err := logging.Setup(cfg.Log)
	if err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	defer logFile.Close()

	registry := exchange.NewRegistry(
		exchange.WithIdleTimeout(cfg.Exchange.IdleTimeout),
		exchange.WithSweepInterval(cfg.Exchange.SweepInterval),
	)
	registry.Start()

	srv := server.New(cfg, registry)

	// Graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.Start(); err != nil && err.Error() != "http: Server closed" {
			log.Fatalf("server: %v", err)
		}
	}()

	log.Printf("objex %s started (pid=%d)", version.Version, os.Getpid())

	<-ctx.Done()
	log.Println("shutting down...")

	// Pending polls finish within one poll window.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Exchange.PollTimeout+5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}

	registry.Stop()
	log.Println("objex stopped")
	return nil
}
