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

	"github.com/redis/go-redis/v9"

	"github.com/roadsense/roadhub/idempotency"
	"github.com/roadsense/roadhub/middleware"
	"github.com/roadsense/roadhub/store"
	"github.com/roadsense/roadhub/streaming"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := os.Getenv("LISTEN_ADDR")
	if addr == "" {
		addr = ":8000"
	}

	var s store.Store
	if dsn := os.Getenv("POSTGRES_DSN"); dsn != "" {
		pg, err := store.NewPostgresStore(ctx, dsn)
		if err != nil {
			log.Fatalf("Failed to connect to Postgres: %v", err)
		}
		defer pg.Close()
		if err := pg.EnsureSchema(ctx); err != nil {
			log.Fatalf("Failed to ensure schema: %v", err)
		}
		s = pg
		log.Println("Using Postgres record store")
	} else {
		s = store.NewMemoryStore()
		log.Println("POSTGRES_DSN not set, using in-memory record store (ephemeral)")
	}

	// Idempotency cache: Redis if available, otherwise in-process
	var idemStore *idempotency.Store
	if redisAddr := os.Getenv("REDIS_ADDR"); redisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: redisAddr})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := client.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			log.Printf("Redis unavailable, falling back to in-memory idempotency cache: %v", err)
			idemStore = idempotency.NewStore(nil)
		} else {
			idemStore = idempotency.NewStore(client)
			log.Printf("Using Redis at %s for idempotency cache", redisAddr)
		}
	} else {
		idemStore = idempotency.NewStore(nil)
		log.Println("Using in-memory idempotency cache (ephemeral)")
	}

	maxConns := 0
	if v := os.Getenv("MAX_WS_CONNS"); v != "" {
		fmt.Sscanf(v, "%d", &maxConns)
	}
	hub := NewSubscriptionHub(maxConns)

	publisher := streaming.NewLogPublisher()
	defer publisher.Close()

	ingestor := NewIngestor(s, hub, publisher)
	api := NewAPI(s, hub, ingestor, idemStore)

	srv := &http.Server{
		Addr:    addr,
		Handler: middleware.CORSMiddleware(api.Handler()),
	}

	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		log.Println("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
		hub.Shutdown()
		close(shutdownDone)
	}()

	log.Printf("roadhub listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
	<-shutdownDone
}
