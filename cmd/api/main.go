// Command api serves lambder's run history, run logs and health over HTTP from the state
// database, for hosts where the job itself runs from cron or a systemd timer.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/polarfoxDev/lambder/internal/api"
	"github.com/polarfoxDev/lambder/internal/auth"
	"github.com/polarfoxDev/lambder/internal/database"
	"github.com/polarfoxDev/lambder/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.InitDB(envDefault("LAMBDER_DB_PATH", "/var/lib/lambder/state.db"))
	if err != nil {
		log.Fatalf("init database: %v", err)
	}
	defer db.Close()

	var origins []string
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		origins = strings.Split(v, ",")
	}

	srv := &api.Server{
		DB:          db,
		Logger:      logging.New(db.GetDB(), os.Stderr),
		Auth:        auth.New(os.Getenv("API_TOKEN")),
		CORSOrigins: origins,
	}

	addr := ":" + envDefault("API_PORT", "8080")
	log.Printf("Starting lambder status API on %s", addr)
	if err := srv.ListenAndServe(ctx, addr); err != nil {
		log.Printf("server failed: %v", err)
		os.Exit(1)
	}
}

func envDefault(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}
