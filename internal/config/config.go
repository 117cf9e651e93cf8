package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
)

const (
	DefaultConfigPath     = "config.toml"
	DefaultHTTPAddr       = ":8080"
	DefaultMarket         = "US"
	DefaultTimeoutSeconds = 10
	DefaultRequestsPerSec = 10
	DefaultBurst          = 3
)

type Config struct {
	Log     LogConfig     `toml:"log"`
	Server  ServerConfig  `toml:"server"`
	Discord DiscordConfig `toml:"discord"`
	Spotify SpotifyConfig `toml:"spotify"`
}

type LogConfig struct {
	Level  string `toml:"level" validate:"omitempty,oneof=debug info warn warning error"`
	Format string `toml:"format" validate:"omitempty,oneof=text json"`
}

type ServerConfig struct {
	Addr     string `toml:"addr"`
	Disabled bool   `toml:"disabled"`
}

type DiscordConfig struct {
	Token string `toml:"token" validate:"required"`
}

type SpotifyConfig struct {
	ClientID          string        `toml:"client_id" validate:"required"`
	ClientSecret      string        `toml:"client_secret" validate:"required"`
	Market            string        `toml:"market" validate:"required,len=2,alpha"`
	IconURL           string        `toml:"icon_url" validate:"omitempty,url"`
	APIBaseURL        string        `toml:"api_base_url" validate:"omitempty,url"`
	TokenURL          string        `toml:"token_url" validate:"omitempty,url"`
	TimeoutSeconds    int           `toml:"timeout_seconds" validate:"gte=1"`
	RequestsPerSecond float64       `toml:"requests_per_second" validate:"gte=0"`
	Burst             int           `toml:"burst" validate:"gte=0"`
	Breaker           BreakerConfig `toml:"breaker"`
}

func (c SpotifyConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

type BreakerConfig struct {
	MaxRequests     uint32  `toml:"max_requests"`
	IntervalSeconds int     `toml:"interval_seconds" validate:"gte=0"`
	TimeoutSeconds  int     `toml:"timeout_seconds" validate:"gte=0"`
	MinRequests     uint32  `toml:"min_requests"`
	FailureRatio    float64 `toml:"failure_ratio" validate:"gte=0,lte=1"`
}

// Environment variables that override file values. The names match the
// .env keys the bot has always used.
const (
	EnvDiscordToken        = "DISCORD_TOKEN"
	EnvSpotifyClientID     = "SPOTIFY_CLIENT_ID"
	EnvSpotifyClientSecret = "SPOTIFY_CLIENT_SECRET"
	EnvSpotifyMarket       = "SPOTIFY_MARKET"
	EnvSpotifyIconURL      = "SPOTIFY_ICON_URL"
	EnvLogLevel            = "TRACKCARD_LOG_LEVEL"
	EnvHTTPAddr            = "TRACKCARD_HTTP_ADDR"
)

func Default() Config {
	return Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr: DefaultHTTPAddr,
		},
		Spotify: SpotifyConfig{
			Market:            DefaultMarket,
			TimeoutSeconds:    DefaultTimeoutSeconds,
			RequestsPerSecond: DefaultRequestsPerSec,
			Burst:             DefaultBurst,
			Breaker: BreakerConfig{
				MaxRequests:     3,
				IntervalSeconds: 60,
				TimeoutSeconds:  30,
				MinRequests:     5,
				FailureRatio:    0.5,
			},
		},
	}
}

// Load reads the TOML file at path on top of the defaults, applies
// environment overrides and validates the result. A missing file is not an
// error.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return cfg, err
		}
	} else if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("decode %s: %w", path, err)
	}

	applyEnv(&cfg, os.LookupEnv)
	cfg.Spotify.Market = strings.ToUpper(strings.TrimSpace(cfg.Spotify.Market))

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) {
	set := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	set(EnvDiscordToken, &cfg.Discord.Token)
	set(EnvSpotifyClientID, &cfg.Spotify.ClientID)
	set(EnvSpotifyClientSecret, &cfg.Spotify.ClientSecret)
	set(EnvSpotifyMarket, &cfg.Spotify.Market)
	set(EnvSpotifyIconURL, &cfg.Spotify.IconURL)
	set(EnvLogLevel, &cfg.Log.Level)
	set(EnvHTTPAddr, &cfg.Server.Addr)
}

func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
