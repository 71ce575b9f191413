package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type settings struct {
	DatabaseURL string
	BaseURL     string
	TenantID    string
	AdminAddr   string
	Timeout     time.Duration
}

const defaultConfigFile = ".env"

// flagKeys maps CLI flags to viper keys. Keys double as env names
// (database_url -> DATABASE_URL) and dotenv keys.
var flagKeys = map[string]string{
	"config":       "config",
	"database-url": "database_url",
	"base-url":     "base_url",
	"tenant-id":    "tenant_id",
	"admin-addr":   "admin_addr",
	"timeout":      "timeout",
}

// newViper resolves keys from flags first, then the environment, then an
// optional dotenv file, then defaults.
func newViper() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("base_url", "http://localhost:8083")
	v.SetDefault("admin_addr", "localhost:9093")
	v.SetDefault("timeout", "5s")
	v.SetDefault("config", defaultConfigFile)
	return v
}

func bindFlags(cmd *cobra.Command, v *viper.Viper) {
	flags := cmd.PersistentFlags()
	flags.String("config", "", "dotenv file with settings (default .env, optional)")
	flags.String("database-url", "", "postgres connection string")
	flags.String("base-url", "", "booking-service HTTP base url")
	flags.String("tenant-id", "", "tenant the request acts for")
	flags.String("admin-addr", "", "booking-service admin gRPC address")
	flags.Duration("timeout", 0, "request timeout")

	for name, key := range flagKeys {
		_ = v.BindPFlag(key, flags.Lookup(name))
	}
}

func readConfigFile(v *viper.Viper) error {
	path := v.GetString("config")
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if path == defaultConfigFile {
			return nil
		}
		return fmt.Errorf("config file %s not found", path)
	}
	v.SetConfigFile(path)
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	return nil
}

func loadSettings(v *viper.Viper) (settings, error) {
	s := settings{
		DatabaseURL: strings.TrimSpace(v.GetString("database_url")),
		BaseURL:     strings.TrimRight(strings.TrimSpace(v.GetString("base_url")), "/"),
		TenantID:    strings.TrimSpace(v.GetString("tenant_id")),
		AdminAddr:   strings.TrimSpace(v.GetString("admin_addr")),
		Timeout:     v.GetDuration("timeout"),
	}
	if s.Timeout <= 0 {
		return s, fmt.Errorf("timeout must be positive")
	}
	return s, nil
}

func (s settings) requireDatabase() error {
	if s.DatabaseURL == "" {
		return fmt.Errorf("database-url is required (flag or DATABASE_URL)")
	}
	return nil
}

func (s settings) requireTenant() error {
	if s.TenantID == "" {
		return fmt.Errorf("tenant-id is required (flag or TENANT_ID)")
	}
	return nil
}
