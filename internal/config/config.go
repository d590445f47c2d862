// Package config loads settings from environment variables and an optional
// .env or config.env file through viper. Environment variables win.
package config

import (
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config groups all settings.
type Config struct {
	App    AppConfig
	Store  StoreConfig
	Remote RemoteConfig
	Server ServerConfig
}

// AppConfig holds general settings.
type AppConfig struct {
	Env      string // development, production
	LogLevel string
}

// StoreConfig configures the local store.
type StoreConfig struct {
	DBPath           string
	Key              string
	MaxSnapshots     int
	MaxBackups       int
	SnapshotCooldown time.Duration
}

// RemoteConfig configures the sync client. An empty URL disables sync.
// PhoneRegion is the country assumed when matching debtor phone numbers.
type RemoteConfig struct {
	URL         string
	Tenant      string
	Token       string
	Timeout     time.Duration
	PhoneRegion string
}

// ServerConfig configures the remote key-value service.
type ServerConfig struct {
	Addr           string
	DBPath         string
	BlockedTenants []string
}

// Load reads the configuration. Missing files are not an error.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	_ = v.ReadInConfig()

	v.SetConfigName("config")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	_ = v.ReadInConfig()

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		App: AppConfig{
			Env:      getString(v, "APP_ENV", "development"),
			LogLevel: getString(v, "LOG_LEVEL", "info"),
		},
		Store: StoreConfig{
			DBPath:           getString(v, "ERP_DB_PATH", "./erpstore.db"),
			Key:              getString(v, "ERP_STORAGE_KEY", "erp_db"),
			MaxSnapshots:     getInt(v, "ERP_MAX_SNAPSHOTS", 20),
			MaxBackups:       getInt(v, "ERP_MAX_BACKUPS", 5),
			SnapshotCooldown: getDuration(v, "ERP_SNAPSHOT_COOLDOWN", time.Minute),
		},
		Remote: RemoteConfig{
			URL:         getString(v, "ERP_REMOTE_URL", ""),
			Tenant:      getString(v, "ERP_REMOTE_TENANT", ""),
			Token:       getString(v, "ERP_REMOTE_TOKEN", ""),
			Timeout:     getDuration(v, "ERP_REMOTE_TIMEOUT", 15*time.Second),
			PhoneRegion: getString(v, "ERP_PHONE_REGION", "BR"),
		},
		Server: ServerConfig{
			Addr:           getString(v, "ERP_SERVER_ADDR", ":8787"),
			DBPath:         getString(v, "ERP_SERVER_DB_PATH", "./erpstore-remote.db"),
			BlockedTenants: getList(v, "ERP_BLOCKED_TENANTS"),
		},
	}
}

func getString(v *viper.Viper, key, def string) string {
	if v.IsSet(key) {
		return v.GetString(key)
	}
	return def
}

func getInt(v *viper.Viper, key string, def int) int {
	if !v.IsSet(key) {
		return def
	}
	switch v.Get(key).(type) {
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v.GetString(key)))
		if err != nil {
			return def
		}
		return n
	default:
		return v.GetInt(key)
	}
}

// getDuration accepts Go durations ("90s") and bare integers as seconds.
func getDuration(v *viper.Viper, key string, def time.Duration) time.Duration {
	if !v.IsSet(key) {
		return def
	}
	s := strings.TrimSpace(v.GetString(key))
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}

func getList(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v.GetString(key), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
