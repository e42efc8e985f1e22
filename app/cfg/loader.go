package cfg

import (
	"cmp"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/jessevdk/go-flags"
	"gopkg.in/yaml.v3"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Upstream configuration
	TelegramHost   string `long:"telegram-host" env:"TELEGRAM_HOST" default:"t.me" description:"Host serving the public channel preview pages"`
	StaticProxy    string `long:"static-proxy" env:"STATIC_PROXY" default:"/static/" description:"URL prefix media links are routed through"`
	Channels       string `long:"channels" env:"CHANNELS" description:"Comma separated list of channels to aggregate"`
	Channel        string `long:"channel" env:"CHANNEL" description:"Default channel when no list is configured"`
	ChannelsFile   string `long:"channels-file" env:"CHANNELS_FILE" description:"YAML file with additional channels (optional)"`
	UserAgent      string `long:"user-agent" env:"USER_AGENT" default:"Channel Feed/1.0" description:"User agent string for upstream requests"`
	RequestTimeout int    `long:"request-timeout" env:"REQUEST_TIMEOUT" default:"30" description:"Upstream request timeout in seconds"`

	// Application configuration
	Port           string `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	BaseUrl        string `long:"base-url" env:"BASE_URL" description:"Public base URL for the service (e.g., https://feed.example.com)"`
	WorkerCount    int    `long:"worker-count" env:"WORKER_COUNT" default:"1" description:"Number of background workers for cache warmup"`
	WarmupInterval int    `long:"warmup-interval" env:"WARMUP_INTERVAL" default:"0" description:"Cache warmup interval in seconds (0 disables)"`
	CacheTTL       int    `long:"cache-ttl" env:"CACHE_TTL" default:"15" description:"Result cache TTL in seconds"`
	CacheMaxSize   int    `long:"cache-max-size" env:"CACHE_MAX_SIZE" default:"50" description:"Result cache budget in megabytes"`
	APIAccessKey   string `long:"api-key" env:"API_ACCESS_KEY" description:"API access key for maintenance endpoints (optional)"`

	// Application metadata
	Timezone string `long:"timezone" env:"TZ" default:"UTC" description:"Timezone for timestamps (e.g., UTC, America/New_York)"`
	Debug    bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

var globalCfg *Cfg

func Load() (*Cfg, error) {
	return LoadArgs(os.Args[1:])
}

// LoadArgs parses args and the environment into the global configuration.
// It returns nil without error when help was requested.
func LoadArgs(args []string) (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	if _, err := parser.ParseArgs(args); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	channels := SplitChannels(raw.Channels)
	if raw.ChannelsFile != "" {
		fileChannels, err := LoadChannelsFile(raw.ChannelsFile)
		if err != nil {
			return nil, err
		}
		channels = mergeChannels(channels, fileChannels)
	}

	cfg := &Cfg{
		TelegramHost:   raw.TelegramHost,
		StaticProxy:    raw.StaticProxy,
		Channels:       channels,
		DefaultChannel: strings.TrimSpace(raw.Channel),
		UserAgent:      raw.UserAgent,
		RequestTimeout: raw.RequestTimeout,
		Port:           raw.Port,
		BaseUrl:        raw.BaseUrl,
		WorkerCount:    raw.WorkerCount,
		WarmupInterval: raw.WarmupInterval,
		CacheTTL:       raw.CacheTTL,
		CacheMaxSize:   raw.CacheMaxSize,
		APIAccessKey:   raw.APIAccessKey,
		Timezone:       raw.Timezone,
		Debug:          raw.Debug,
		Version:        GetVersion(),
	}

	if len(cfg.Channels) == 0 && cfg.DefaultChannel == "" {
		return nil, fmt.Errorf("no channels configured: set CHANNEL, CHANNELS or CHANNELS_FILE")
	}

	if err := applyTimezone(cfg.Timezone); err != nil {
		slog.Warn("Invalid timezone, using system default", "timezone", cfg.Timezone, "error", err)
	}

	globalCfg = cfg

	return cfg, nil
}

func Get() *Cfg {
	if globalCfg == nil {
		panic("configuration not loaded - call cfg.Load() first")
	}
	return globalCfg
}

// SplitChannels parses a comma separated channel list, dropping blanks.
func SplitChannels(value string) []string {
	channels := []string{}
	for _, part := range strings.Split(value, ",") {
		if name := strings.TrimSpace(part); name != "" {
			channels = append(channels, name)
		}
	}
	return channels
}

// LoadChannelsFile reads the channel list from a YAML document of the form
// "channels: [a, b]".
func LoadChannelsFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read channels file: %w", err)
	}

	var file channelsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse channels file %s: %w", path, err)
	}

	channels := []string{}
	for _, name := range file.Channels {
		if name = strings.TrimSpace(name); name != "" {
			channels = append(channels, name)
		}
	}

	slog.Info("Loaded channels file", "path", path, "channels", len(channels))
	return channels, nil
}

// mergeChannels appends extra to base, skipping names already present.
func mergeChannels(base, extra []string) []string {
	seen := make(map[string]bool, len(base))
	for _, name := range base {
		seen[name] = true
	}
	for _, name := range extra {
		if !seen[name] {
			seen[name] = true
			base = append(base, name)
		}
	}
	return base
}

func applyTimezone(timezone string) error {
	if timezone != "" {
		if loc, err := time.LoadLocation(timezone); err != nil {
			return err
		} else {
			time.Local = loc
			slog.Debug("Timezone configured", "timezone", timezone)
		}
	}
	return nil
}
