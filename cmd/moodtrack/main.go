package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/mrwolf/moodtrack/internal/api"
	"github.com/mrwolf/moodtrack/internal/config"
	"github.com/mrwolf/moodtrack/internal/db"
	"github.com/mrwolf/moodtrack/internal/ingest"
	"github.com/mrwolf/moodtrack/internal/insights"
	"github.com/mrwolf/moodtrack/internal/metrics"
	"github.com/mrwolf/moodtrack/internal/scheduler"
	"github.com/mrwolf/moodtrack/internal/vault"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("Starting moodtrack...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Open database
	database, err := db.Open(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}

	v := vault.NewVault(cfg.VaultPath)
	m := metrics.New()
	clock := clockwork.NewRealClock()

	svc := insights.NewService(database, v, clock, m, insights.Options{
		Location:    cfg.Location(),
		WeekStart:   cfg.FirstWeekday(),
		WindowDays:  cfg.WindowDays,
		WeeksCount:  cfg.WeeksCount,
		RulesSource: cfg.RulesSource,
		RulesPath:   cfg.RulesPath,
	})
	svc.LoadRules()

	sched, err := scheduler.New(svc, database, m, scheduler.Config{
		Location:  cfg.Location(),
		WeekStart: cfg.FirstWeekday(),
		Users:     cfg.Users(),
		Clock:     clock,
	})
	if err != nil {
		log.Fatalf("Failed to create scheduler: %v", err)
	}
	sched.Start()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	router := api.NewRouter(cfg, database, svc, m, sched)

	addr := ":" + cfg.Port
	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Printf("Listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	// Optional Kafka ingest
	if cfg.Kafka.Enabled() {
		consumer, err := ingest.NewConsumer(ingest.Config{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.Topic,
			GroupID: cfg.Kafka.GroupID,
		}, database, m)
		if err != nil {
			log.Fatalf("Failed to create consumer: %v", err)
		}
		g.Go(func() error {
			defer consumer.Close()
			if err := consumer.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("kafka consumer: %w", err)
			}
			return nil
		})
	} else {
		log.Println("Kafka ingest disabled")
	}

	// Shut the server down on a signal or when either worker fails
	g.Go(func() error {
		<-gctx.Done()
		log.Println("Shutting down gracefully...")

		// Give ongoing requests 10 seconds to complete
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Printf("Stopped with error: %v", err)
	}

	log.Println("Stopping scheduler...")
	if err := sched.Stop(); err != nil {
		log.Printf("Scheduler shutdown error: %v", err)
	}

	log.Println("Closing database...")
	if err := database.Close(); err != nil {
		log.Printf("Database close error: %v", err)
	}

	log.Println("Shutdown complete")
}
