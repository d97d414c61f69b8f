package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the API service.
type Config struct {
	AppName                string
	AppEnv                 string
	AppPort                string
	DatabaseDriver         string
	DatabaseURL            string
	DatabaseMaxOpenConns   int
	DatabaseMaxIdleConns   int
	DatabaseConnLifetime   time.Duration
	DatabaseSlowQuery      time.Duration
	RedisURL               string
	NATSURL                string
	ChannelBase            string
	ChatStorePrefix        string
	JWTSecret              string
	CloudinaryCloudName    string
	CloudinaryAPIKey       string
	CloudinaryAPISecret    string
	CloudinaryUploadFolder string
	UploadMaxSizeMB        int
	ReminderLocation       *time.Location
	ReminderDayOfHour      int
	ReminderSweepCron      string
	ChatSyncCron           string
	SSEKeepAlive           time.Duration
	CORSAllowOrigins       []string
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// UploadsEnabled reports whether Cloudinary credentials were supplied.
func (c Config) UploadsEnabled() bool {
	return c.CloudinaryCloudName != "" && c.CloudinaryAPIKey != "" && c.CloudinaryAPISecret != ""
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("TRIPMATE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "TripMate API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_lifetime", "30m")
	v.SetDefault("database.slow_query", "200ms")
	v.SetDefault("channel.base", "tripmate")
	v.SetDefault("chat.store_prefix", "tripmate")
	v.SetDefault("cloudinary.folder", "tripmate/chat")
	v.SetDefault("upload.max_size_mb", 10)
	v.SetDefault("reminder.timezone", "Local")
	v.SetDefault("reminder.day_of_hour", 8)
	v.SetDefault("reminder.sweep_cron", "*/30 * * * *")
	v.SetDefault("chat.sync_cron", "*/5 * * * *")
	v.SetDefault("sse.keepalive", "30s")

	location, err := time.LoadLocation(v.GetString("reminder.timezone"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid reminder timezone: %w", err)
	}

	durations := map[string]time.Duration{}
	for _, key := range []string{"sse.keepalive", "database.conn_lifetime", "database.slow_query"} {
		parsed, err := time.ParseDuration(v.GetString(key))
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", key, err)
		}
		durations[key] = parsed
	}

	cfg := Config{
		AppName:                v.GetString("app.name"),
		AppEnv:                 v.GetString("app.env"),
		AppPort:                v.GetString("app.port"),
		DatabaseDriver:         strings.ToLower(v.GetString("database.driver")),
		DatabaseURL:            v.GetString("database.url"),
		DatabaseMaxOpenConns:   v.GetInt("database.max_open_conns"),
		DatabaseMaxIdleConns:   v.GetInt("database.max_idle_conns"),
		DatabaseConnLifetime:   durations["database.conn_lifetime"],
		DatabaseSlowQuery:      durations["database.slow_query"],
		RedisURL:               v.GetString("redis.url"),
		NATSURL:                v.GetString("nats.url"),
		ChannelBase:            v.GetString("channel.base"),
		ChatStorePrefix:        v.GetString("chat.store_prefix"),
		JWTSecret:              v.GetString("jwt.secret"),
		CloudinaryCloudName:    v.GetString("cloudinary.cloud_name"),
		CloudinaryAPIKey:       v.GetString("cloudinary.api_key"),
		CloudinaryAPISecret:    v.GetString("cloudinary.api_secret"),
		CloudinaryUploadFolder: v.GetString("cloudinary.folder"),
		UploadMaxSizeMB:        v.GetInt("upload.max_size_mb"),
		ReminderLocation:       location,
		ReminderDayOfHour:      v.GetInt("reminder.day_of_hour"),
		ReminderSweepCron:      v.GetString("reminder.sweep_cron"),
		ChatSyncCron:           v.GetString("chat.sync_cron"),
		SSEKeepAlive:           durations["sse.keepalive"],
		CORSAllowOrigins:       splitList(v.GetString("cors.allow_origins")),
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	if cfg.RedisURL == "" {
		return Config{}, fmt.Errorf("redis url must be provided")
	}

	if cfg.ReminderDayOfHour < 0 || cfg.ReminderDayOfHour > 23 {
		return Config{}, fmt.Errorf("reminder day-of hour must be between 0 and 23")
	}

	if cfg.UploadMaxSizeMB <= 0 {
		cfg.UploadMaxSizeMB = 10
	}

	return cfg, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
