// Package config collects and validates the room server's flags and
// environment variables, following the corpus's pattern of aggregating
// every validation error into one report instead of failing on the
// first.
package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds the fully validated process configuration.
type Config struct {
	Port int // TCP protocol listener port. -p/--port, default 8889.

	AdminAddr string // DRADU_ADMIN_ADDR, default ":9100".

	BusRedisAddr     string // DRADU_BUS_REDIS_ADDR, optional.
	BusRedisPassword string // DRADU_BUS_REDIS_PASSWORD, optional.

	MessageRate string // DRADU_MSG_RATE, ulule/limiter formatted rate, default "30-M".

	LogLevel    string // DRADU_LOG_LEVEL, default "info".
	Development bool   // DRADU_DEV == "true".
}

const defaultPort = 8889

// Parse parses args (typically os.Args[1:]) for -p/--port and validates
// the environment. errors accumulated are joined into a single error.
func Parse(args []string) (*Config, error) {
	fs := flag.NewFlagSet("dradu", flag.ContinueOnError)
	var port int
	fs.IntVar(&port, "p", defaultPort, "Open server on a custom port")
	fs.IntVar(&port, "port", defaultPort, "Open server on a custom port")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	var errs []string

	if port < 1 || port > 65535 {
		errs = append(errs, fmt.Sprintf("port must be between 1 and 65535 (got %d)", port))
	}

	cfg := &Config{
		Port:        port,
		AdminAddr:   getEnvOrDefault("DRADU_ADMIN_ADDR", ":9100"),
		MessageRate: getEnvOrDefault("DRADU_MSG_RATE", "30-M"),
		LogLevel:    getEnvOrDefault("DRADU_LOG_LEVEL", "info"),
		Development: os.Getenv("DRADU_DEV") == "true",
	}

	cfg.BusRedisAddr = os.Getenv("DRADU_BUS_REDIS_ADDR")
	if cfg.BusRedisAddr != "" && !isValidHostPort(cfg.BusRedisAddr) {
		errs = append(errs, fmt.Sprintf("DRADU_BUS_REDIS_ADDR must be host:port (got %q)", cfg.BusRedisAddr))
	}
	cfg.BusRedisPassword = os.Getenv("DRADU_BUS_REDIS_PASSWORD")

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return cfg, nil
}

func isValidHostPort(addr string) bool {
	parts := strings.Split(addr, ":")
	if len(parts) != 2 || parts[0] == "" {
		return false
	}
	port, err := strconv.Atoi(parts[1])
	return err == nil && port >= 1 && port <= 65535
}

func getEnvOrDefault(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}
