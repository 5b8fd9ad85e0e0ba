package main

import (
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/storefrontops/layoutsvc/internal/httpapi"
	"github.com/storefrontops/layoutsvc/internal/layout"
)

func main() {
	addr := os.Getenv("LAYOUTSVC_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	dsn := os.Getenv("LAYOUTSVC_STORE_DSN")
	if dsn == "" {
		dsn = "memory://"
	}

	store, err := layout.BuildDocumentStoreFromDSN(dsn, log.Default())
	if err != nil {
		log.Fatalf("failed to initialize document store: %v", err)
	}
	defer store.Close()

	server := httpapi.NewServerWithConfig(store, httpapi.ServerConfig{
		JWTSecret:       os.Getenv("LAYOUTSVC_JWT_SECRET"),
		WriteDeadline:   durationEnv("LAYOUTSVC_WRITE_DEADLINE", 10*time.Second),
		RateLimitMax:    intEnv("LAYOUTSVC_RATE_LIMIT_MAX", 0),
		RateLimitWindow: durationEnv("LAYOUTSVC_RATE_LIMIT_WINDOW", time.Minute),
		MaxBodyBytes:    int64Env("LAYOUTSVC_MAX_BODY_BYTES", 0),
		Logger:          log.Default(),
	})

	log.Printf("layoutsvc listening on %s (store %s)", addr, dsn)
	if err := http.ListenAndServe(addr, server); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}

func intEnv(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("invalid %s=%q, using fallback %d", name, raw, fallback)
		return fallback
	}
	return value
}

func int64Env(name string, fallback int64) int64 {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		log.Printf("invalid %s=%q, using fallback %d", name, raw, fallback)
		return fallback
	}
	return value
}

func durationEnv(name string, fallback time.Duration) time.Duration {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		log.Printf("invalid %s=%q, using fallback %s", name, raw, fallback.String())
		return fallback
	}
	return value
}
