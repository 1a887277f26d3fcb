package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/lachiem1/cashflow/internal/ledger"
	"github.com/lachiem1/cashflow/internal/settings"
)

type Config struct {
	HTTPAddr        string
	ShutdownTimeout time.Duration

	Currency      string
	MainName      string
	MainNodeID    int64
	PathSeparator string // separator inside transaction category strings

	ImportWorkers int

	LogLevel string
	LogFile  string // used by the terminal UI, which owns stdout
}

// Load reads an optional .env file and then the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return fromEnv()
}

func fromEnv() (*Config, error) {
	cfg := &Config{
		HTTPAddr:      getenvDefault("CASHFLOW_HTTP_ADDR", "127.0.0.1:8080"),
		Currency:      strings.ToUpper(getenvDefault("CASHFLOW_CURRENCY", settings.DefaultCurrency)),
		MainName:      getenvDefault("CASHFLOW_MAIN_NAME", ledger.DefaultMainName),
		PathSeparator: getenvDefault("CASHFLOW_PATH_SEPARATOR", ledger.MoneyMoneySeparator),
		LogLevel:      getenvDefault("CASHFLOW_LOG_LEVEL", "info"),
	}

	var err error
	if cfg.ShutdownTimeout, err = getDuration("CASHFLOW_SHUTDOWN_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.ImportWorkers, err = getInt("CASHFLOW_IMPORT_WORKERS", 4); err != nil {
		return nil, err
	}
	if cfg.ImportWorkers < 1 {
		return nil, fmt.Errorf("config: CASHFLOW_IMPORT_WORKERS must be at least 1")
	}
	mainID, err := getInt("CASHFLOW_MAIN_NODE_ID", int(ledger.DefaultMainNodeID))
	if err != nil {
		return nil, err
	}
	cfg.MainNodeID = int64(mainID)

	cfg.LogFile = strings.TrimSpace(os.Getenv("CASHFLOW_LOG_FILE"))
	if cfg.LogFile == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return nil, fmt.Errorf("resolve user config directory: %w", err)
		}
		cfg.LogFile = filepath.Join(dir, "cashflow", "cashflow.log")
	}
	return cfg, nil
}

// ChartDefaults returns the chart settings used before anything is stored
// and when the user resets the chart.
func (c *Config) ChartDefaults() *settings.Config {
	d := settings.Default()
	d.Currency = c.Currency
	d.MainNodeID = c.MainNodeID
	d.EnsureMain(c.MainName)
	return d
}

func getenvDefault(k, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return fallback
}

func getDuration(k string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s=%q is not a valid duration: %w", k, v, err)
	}
	return d, nil
}

func getInt(k string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s=%q is not a valid integer: %w", k, v, err)
	}
	return n, nil
}
