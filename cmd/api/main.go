package main

import (
	"context"
	"database/sql"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health/grpc_health_v1"

	"pongarena.org/internal/auth"
	"pongarena.org/internal/httpapi"
	"pongarena.org/internal/obs"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	secret := os.Getenv("ARENA_AUTH_SECRET")
	if secret == "" {
		log.Fatal("ARENA_AUTH_SECRET must be set")
	}

	// Postgres when a DSN is given, in-memory store otherwise (dev mode).
	var (
		db    *sql.DB
		store auth.Store
	)
	if dsn := os.Getenv("ARENA_PG_DSN"); dsn != "" {
		var err error
		db, err = sql.Open("pgx", dsn)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)
		store = auth.NewPGStore(db)
	} else {
		log.Print("ARENA_PG_DSN not set, using in-memory store")
		store = auth.NewMemStore()
	}

	svc, err := auth.NewService(store,
		auth.WithTokenSecret(secret),
		auth.WithIssuer("arena-api"),
	)
	if err != nil {
		log.Fatalf("auth service: %v", err)
	}

	probe := httpapi.ReadyProbe{DB: db}
	api := httpapi.New(probe, version, svc,
		httpapi.WithCookieSecure(os.Getenv("ARENA_COOKIE_SECURE") == "1"),
	)

	addr := os.Getenv("ARENA_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting arena-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	// Optional gRPC health endpoint for orchestrators that probe over gRPC.
	var grpcSrv *grpc.Server
	if grpcAddr := os.Getenv("ARENA_GRPC_ADDR"); grpcAddr != "" {
		lis, err := net.Listen("tcp", grpcAddr)
		if err != nil {
			log.Fatalf("grpc listen: %v", err)
		}
		grpcSrv = grpc.NewServer()
		grpc_health_v1.RegisterHealthServer(grpcSrv, httpapi.NewGRPCHealth(probe))
		log.Printf("Starting grpc health on %s", grpcAddr)
		go func() {
			if err := grpcSrv.Serve(lis); err != nil {
				log.Fatalf("grpc serve: %v", err)
			}
		}()
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	if grpcSrv != nil {
		grpcSrv.GracefulStop()
	}
	if db != nil {
		_ = db.Close()
	}
	log.Println("Stopped")
}
