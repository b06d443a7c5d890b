package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"filmfest.org/internal/auth"
	"filmfest.org/internal/httpapi"
	"filmfest.org/internal/migrate"
	"filmfest.org/internal/obs"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	secret := os.Getenv("FILMFEST_AUTH_SECRET")
	if secret == "" {
		log.Fatal("FILMFEST_AUTH_SECRET is required")
	}

	tokens, err := auth.NewTokenService(auth.TokenConfig{
		Secret:      []byte(secret),
		Issuer:      envOr("FILMFEST_ISSUER", "filmfest"),
		AccessTTL:   envDuration("FILMFEST_ACCESS_TTL"),
		RefreshTTL:  envDuration("FILMFEST_REFRESH_TTL"),
		RememberTTL: envDuration("FILMFEST_REMEMBER_TTL"),
	})
	if err != nil {
		log.Fatalf("token service: %v", err)
	}

	// With a DSN the directory and session registry live in Postgres;
	// without one everything stays in process (dev and test runs).
	var (
		db       *sql.DB
		dir      auth.Directory
		sessions auth.SessionRegistry
	)
	if dsn := os.Getenv("FILMFEST_PG_DSN"); dsn != "" {
		db, err = sql.Open("pgx", dsn)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := migrate.NewManager(db).Up(ctx); err != nil {
			cancel()
			log.Fatalf("migrate: %v", err)
		}
		cancel()

		dir = auth.NewPGDirectory(db)
		sessions = auth.NewPGSessionRegistry(db)
	} else {
		dir = auth.NewMemoryDirectory()
		sessions = auth.NewMemorySessionRegistry()
		log.Print("FILMFEST_PG_DSN not set, using in-memory directory")
	}

	svc, err := auth.NewService(dir, sessions, tokens)
	if err != nil {
		log.Fatalf("auth service: %v", err)
	}

	secureCookies := os.Getenv("FILMFEST_ENV") == "production"
	cookies := httpapi.NewCookieStore(tokens, secureCookies)
	api := httpapi.New(httpapi.ReadyProbe{DB: db}, version, svc, cookies)

	srv := &http.Server{
		Addr:              envOr("FILMFEST_ADDR", ":8080"),
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting filmfest-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	if db != nil {
		_ = db.Close()
	}
	log.Println("Stopped")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// envDuration returns zero when unset; the token service fills defaults.
func envDuration(key string) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Fatalf("%s: %v", key, err)
	}
	return d
}
