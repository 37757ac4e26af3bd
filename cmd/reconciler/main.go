package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/ariefcatur/go-qr-orders/internal/app"
	"github.com/ariefcatur/go-qr-orders/internal/config"
	"github.com/ariefcatur/go-qr-orders/internal/events"
	kafkax "github.com/ariefcatur/go-qr-orders/internal/kafka"
	"github.com/ariefcatur/go-qr-orders/internal/payments"
	"github.com/ariefcatur/go-qr-orders/internal/telemetry"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	cfg.ServiceName += "-reconciler"

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

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
	defer a.Close()

	g, ctx := errgroup.WithContext(ctx)

	// queued IPNs, only when there is a broker to read from
	if a.Bus != nil {
		h := &payments.NotificationHandler{Service: a.Payments, Dedup: a.KV, Name: cfg.ServiceName}
		cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.ReconcilerGroup, events.TopicPaymentNotification, cfg.ReconcilerWorkers)
		g.Go(func() error {
			log.Printf("notification consumer started: group=%s topic=%s workers=%d",
				cfg.ReconcilerGroup, events.TopicPaymentNotification, cfg.ReconcilerWorkers)
			return cons.Start(ctx, kafkax.EnvelopeHandler(h.Handle))
		})
	}

	sw := a.Sweeper()
	g.Go(func() error {
		log.Printf("sweeper started: interval=%s min_age=%s", sw.Interval, sw.MinAge)
		return sw.Run(ctx)
	})

	if err := g.Wait(); err != nil {
		log.Printf("reconciler exit: %v", err)
	}
	log.Println("shutting down reconciler...")
	if err := shutdownOTel(context.Background()); err != nil {
		log.Printf("telemetry shutdown: %v", err)
	}
}
