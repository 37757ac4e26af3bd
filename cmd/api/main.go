package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/go-qr-orders/internal/app"
	"github.com/ariefcatur/go-qr-orders/internal/config"
	"github.com/ariefcatur/go-qr-orders/internal/telemetry"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	endpoint := ""
	if cfg.OTelEnabled {
		endpoint = cfg.OTelEndpoint
	}
	shutdownOTel, err := telemetry.Init(ctx, cfg.ServiceName, endpoint)
	if err != nil {
		log.Printf("telemetry disabled: %v", err)
	}

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalf("init: %v", err)
	}

	// HTTP server
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: a.Router()}

	// graceful shutdown
	go func() {
		log.Printf("HTTP listening at %s (store=%s)", cfg.HTTPAddr, cfg.StoreDriver)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	// wait signal
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("shutting down...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	a.Close() // flush events, close redis & db
	if err := shutdownOTel(ctx2); err != nil {
		log.Printf("telemetry shutdown: %v", err)
	}
}
