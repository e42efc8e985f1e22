package cfg

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestGetVersion(t *testing.T) {
	if GetVersion() == "" {
		t.Error("GetVersion should never return empty string")
	}

	version := GetVersion()
	if version != "dev" && version != "unknown" {
		// This is fine, version could be set at build time
		t.Logf("Version: %s", version)
	}
}

func TestLoadArgs_Defaults(t *testing.T) {
	t.Setenv("CHANNEL", "testchan")
	t.Setenv("CHANNELS", "")
	t.Setenv("CHANNELS_FILE", "")

	cfg, err := LoadArgs([]string{})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if cfg.TelegramHost != "t.me" {
		t.Errorf("Expected telegram host 't.me', got '%s'", cfg.TelegramHost)
	}
	if cfg.StaticProxy != "/static/" {
		t.Errorf("Expected static proxy '/static/', got '%s'", cfg.StaticProxy)
	}
	if cfg.DefaultChannel != "testchan" {
		t.Errorf("Expected default channel 'testchan', got '%s'", cfg.DefaultChannel)
	}
	if len(cfg.Channels) != 0 {
		t.Errorf("Expected no channel list, got %v", cfg.Channels)
	}
	if cfg.Port != "8080" {
		t.Errorf("Expected port '8080', got '%s'", cfg.Port)
	}
	if cfg.WorkerCount != 1 {
		t.Errorf("Expected worker count 1, got %d", cfg.WorkerCount)
	}
	if cfg.GetWarmupInterval() != 0 {
		t.Errorf("Expected warmup disabled, got %s", cfg.GetWarmupInterval())
	}
	if cfg.GetCacheTTL() != 15*time.Second {
		t.Errorf("Expected cache TTL 15s, got %s", cfg.GetCacheTTL())
	}
	if cfg.GetCacheMaxSize() != 50*1024*1024 {
		t.Errorf("Expected cache budget 50MB, got %d", cfg.GetCacheMaxSize())
	}
	if Get() != cfg {
		t.Error("Expected Get to return the loaded configuration")
	}
}

func TestLoadArgs_ChannelsFromEnvAndFlags(t *testing.T) {
	t.Setenv("CHANNELS", " alpha, beta ,,gamma ")
	t.Setenv("CHANNELS_FILE", "")

	cfg, err := LoadArgs([]string{"--telegram-host", "telegram.example.org", "--warmup-interval", "60"})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if strings.Join(cfg.Channels, ",") != "alpha,beta,gamma" {
		t.Errorf("Expected channels [alpha beta gamma], got %v", cfg.Channels)
	}
	if cfg.UpstreamURL() != "https://telegram.example.org" {
		t.Errorf("Expected upstream 'https://telegram.example.org', got '%s'", cfg.UpstreamURL())
	}
	if cfg.GetWarmupInterval() != time.Minute {
		t.Errorf("Expected warmup interval 1m, got %s", cfg.GetWarmupInterval())
	}
}

func TestLoadArgs_ChannelsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "channels.yaml")
	content := "channels:\n  - beta\n  - delta\n  - \"  \"\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write channels file: %v", err)
	}

	t.Setenv("CHANNELS", "alpha,beta")
	t.Setenv("CHANNELS_FILE", path)

	cfg, err := LoadArgs([]string{})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if strings.Join(cfg.Channels, ",") != "alpha,beta,delta" {
		t.Errorf("Expected channels [alpha beta delta], got %v", cfg.Channels)
	}
}

func TestLoadArgs_InvalidChannelsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "channels.yaml")
	if err := os.WriteFile(path, []byte("channels: [unclosed"), 0o644); err != nil {
		t.Fatalf("Failed to write channels file: %v", err)
	}

	t.Setenv("CHANNEL", "testchan")
	t.Setenv("CHANNELS_FILE", path)

	if _, err := LoadArgs([]string{}); err == nil {
		t.Error("Expected error for malformed channels file")
	}
}

func TestLoadArgs_RequiresChannel(t *testing.T) {
	t.Setenv("CHANNEL", "")
	t.Setenv("CHANNELS", "")
	t.Setenv("CHANNELS_FILE", "")

	if _, err := LoadArgs([]string{}); err == nil {
		t.Error("Expected error when no channel is configured")
	}
}

func TestSplitChannels(t *testing.T) {
	if got := SplitChannels(""); len(got) != 0 {
		t.Errorf("Expected no channels, got %v", got)
	}
	if got := SplitChannels("a,,b , c"); strings.Join(got, ",") != "a,b,c" {
		t.Errorf("Expected [a b c], got %v", got)
	}
}

func TestCfgHelpers(t *testing.T) {
	cfg := &Cfg{
		TelegramHost: "http://127.0.0.1:9000/",
		Port:         "8080",
	}

	if cfg.UpstreamURL() != "http://127.0.0.1:9000" {
		t.Errorf("Expected scheme to be kept, got '%s'", cfg.UpstreamURL())
	}
	if cfg.SiteURL() != "http://localhost:8080" {
		t.Errorf("Expected localhost site URL, got '%s'", cfg.SiteURL())
	}

	cfg.BaseUrl = "https://feed.example.org/"
	if cfg.SiteURL() != "https://feed.example.org" {
		t.Errorf("Expected base URL without trailing slash, got '%s'", cfg.SiteURL())
	}

	if cfg.GetRequestTimeout() != 30*time.Second {
		t.Errorf("Expected default request timeout 30s, got %s", cfg.GetRequestTimeout())
	}
}
