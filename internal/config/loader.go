package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/example/childcare-backoffice/internal/logging"
)

// Config captures environment driven configuration values for the back-office service.
type Config struct {
	HTTPPort        int
	SQLitePath      string
	BusyTimeout     time.Duration
	APITokenHash    string
	Locale          string
	Currency        string
	LogLevel        slog.Level
	LogFormat       string
	ShutdownTimeout time.Duration
}

// Load parses configuration values from the current process environment.
//
// Each envFile that exists is read with godotenv and consulted for keys the
// process environment leaves empty; files listed first win. Missing files
// are skipped. Defaults apply to optional fields, and every missing or
// invalid entry is reported in a single error.
func Load(envFiles ...string) (Config, error) {
	fileValues, err := readEnvFiles(envFiles)
	if err != nil {
		return Config{}, err
	}
	lookup := func(key string) string {
		if value := strings.TrimSpace(os.Getenv(key)); value != "" {
			return value
		}
		return strings.TrimSpace(fileValues[key])
	}

	cfg := Config{
		HTTPPort:        8080,
		SQLitePath:      "backoffice.db",
		BusyTimeout:     5 * time.Second,
		Locale:          "en-US",
		Currency:        "USD",
		LogLevel:        slog.LevelInfo,
		LogFormat:       "json",
		ShutdownTimeout: 10 * time.Second,
	}

	missing := make([]string, 0, 1)
	invalid := make([]string, 0, 2)

	if portValue := lookup("BACKOFFICE_HTTP_PORT"); portValue != "" {
		port, err := strconv.Atoi(portValue)
		if err != nil || port <= 0 || port > 65535 {
			invalid = append(invalid, "BACKOFFICE_HTTP_PORT")
		} else {
			cfg.HTTPPort = port
		}
	}

	if path := lookup("BACKOFFICE_SQLITE_PATH"); path != "" {
		cfg.SQLitePath = path
	}

	if timeoutValue := lookup("BACKOFFICE_SQLITE_BUSY_TIMEOUT"); timeoutValue != "" {
		timeout, err := time.ParseDuration(timeoutValue)
		if err != nil || timeout < 0 {
			invalid = append(invalid, "BACKOFFICE_SQLITE_BUSY_TIMEOUT")
		} else {
			cfg.BusyTimeout = timeout
		}
	}

	if hash := lookup("BACKOFFICE_API_TOKEN_HASH"); hash == "" {
		missing = append(missing, "BACKOFFICE_API_TOKEN_HASH")
	} else {
		cfg.APITokenHash = hash
	}

	if locale := lookup("BACKOFFICE_LOCALE"); locale != "" {
		cfg.Locale = locale
	}

	if code := lookup("BACKOFFICE_CURRENCY"); code != "" {
		if len(code) != 3 {
			invalid = append(invalid, "BACKOFFICE_CURRENCY")
		} else {
			cfg.Currency = strings.ToUpper(code)
		}
	}

	if levelValue := lookup("BACKOFFICE_LOG_LEVEL"); levelValue != "" {
		level, err := logging.ParseLevel(levelValue)
		if err != nil {
			invalid = append(invalid, "BACKOFFICE_LOG_LEVEL")
		} else {
			cfg.LogLevel = level
		}
	}

	if format := strings.ToLower(lookup("BACKOFFICE_LOG_FORMAT")); format != "" {
		if format != "json" && format != "text" {
			invalid = append(invalid, "BACKOFFICE_LOG_FORMAT")
		} else {
			cfg.LogFormat = format
		}
	}

	if shutdownValue := lookup("BACKOFFICE_SHUTDOWN_TIMEOUT"); shutdownValue != "" {
		timeout, err := time.ParseDuration(shutdownValue)
		if err != nil || timeout <= 0 {
			invalid = append(invalid, "BACKOFFICE_SHUTDOWN_TIMEOUT")
		} else {
			cfg.ShutdownTimeout = timeout
		}
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("required environment variables are not set: %s", strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("environment variables have invalid values: %s", strings.Join(invalid, ", "))
	}

	return cfg, nil
}

// Addr is the listen address for the HTTP server.
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

func readEnvFiles(paths []string) (map[string]string, error) {
	merged := make(map[string]string)
	for i := len(paths) - 1; i >= 0; i-- {
		values, err := godotenv.Read(paths[i])
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("read env file %s: %w", paths[i], err)
		}
		for key, value := range values {
			merged[key] = value
		}
	}
	return merged, nil
}
