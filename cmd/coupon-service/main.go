package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/shopmesh/shopmesh/internal/api"
	authclient "github.com/shopmesh/shopmesh/internal/auth/client"
	couponhttp "github.com/shopmesh/shopmesh/internal/coupon/http"
	"github.com/shopmesh/shopmesh/internal/coupon/repository"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	_ = godotenv.Load()

	httpPort := getEnv("HTTP_PORT", "8083")
	dbPath := getEnv("DB_PATH", "./internal/coupon/repository/coupons.db")
	migrationsPath := getEnv("MIGRATIONS_PATH", "./internal/coupon/repository/migrations")
	authServiceURL := getEnv("AUTH_SERVICE_URL", "http://localhost:8080")

	repo, err := repository.NewRepository(dbPath)
	if err != nil {
		log.Fatal(err)
	}
	defer repo.Close()

	if err := repo.RunMigrations(migrationsPath); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	log.Println("Migrations completed successfully")

	introspector := authclient.New(authServiceURL, 5*time.Second)
	handler := couponhttp.NewCouponHandler(repo, 30*time.Second)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(api.RequestIDMiddleware)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(middleware.Compress(5))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		api.Success(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	handler.Routes(r, introspector)

	srv := &http.Server{
		Addr:         ":" + httpPort,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Coupon service listening on :%s", httpPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down coupon service...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("server forced to shutdown: %v", err)
	}

	log.Println("Coupon service stopped")
}
