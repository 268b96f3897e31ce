package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	// Addr is the HTTP listen address.
	Addr string
	// IdleTimeout closes a WebSocket session when no frame arrives within
	// the window. Zero disables the idle check.
	IdleTimeout time.Duration
	// QueueCapacity bounds each router's update queue.
	QueueCapacity int
	// FeedInterval spaces synthetic feed data points.
	FeedInterval time.Duration
}

// New loads configuration from environment variables.
func New() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	return &Config{
		Addr:          envString("ADDR", ":8080"),
		IdleTimeout:   envDuration("WS_IDLE_TIMEOUT", 0),
		QueueCapacity: envInt("WS_QUEUE_CAPACITY", 1000),
		FeedInterval:  envDuration("FEED_INTERVAL", time.Second),
	}
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("Invalid value for %s: %q, using default %d", key, v, fallback)
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("Invalid value for %s: %q, using default %s", key, v, fallback)
		return fallback
	}
	return d
}
