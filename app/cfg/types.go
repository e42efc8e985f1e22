package cfg

import (
	"fmt"
	"strings"
	"time"
)

type Cfg struct {
	// Upstream configuration
	TelegramHost   string
	StaticProxy    string
	Channels       []string
	DefaultChannel string
	UserAgent      string
	RequestTimeout int

	// Application configuration
	Port           string
	BaseUrl        string
	WorkerCount    int
	WarmupInterval int
	CacheTTL       int
	CacheMaxSize   int
	APIAccessKey   string

	// Application metadata
	Timezone string
	Debug    bool
	Version  string
}

// channelsFile is the shape of the optional CHANNELS_FILE document.
type channelsFile struct {
	Channels []string `yaml:"channels"`
}

// UpstreamURL returns the origin channel pages are fetched from. A bare host
// gets https; a host that already carries a scheme is used as is.
func (c *Cfg) UpstreamURL() string {
	host := strings.TrimRight(c.TelegramHost, "/")
	if strings.Contains(host, "://") {
		return host
	}
	return "https://" + host
}

// SiteURL returns the public origin of this service.
func (c *Cfg) SiteURL() string {
	if c.BaseUrl != "" {
		return strings.TrimRight(c.BaseUrl, "/")
	}
	return fmt.Sprintf("http://localhost:%s", c.Port)
}

func (c *Cfg) GetWarmupInterval() time.Duration {
	if c.WarmupInterval <= 0 {
		return 0
	}
	return time.Duration(c.WarmupInterval) * time.Second
}

func (c *Cfg) GetCacheTTL() time.Duration {
	if c.CacheTTL <= 0 {
		return 15 * time.Second
	}
	return time.Duration(c.CacheTTL) * time.Second
}

// GetCacheMaxSize returns the cache budget in bytes.
func (c *Cfg) GetCacheMaxSize() int {
	if c.CacheMaxSize <= 0 {
		return 50 * 1024 * 1024
	}
	return c.CacheMaxSize * 1024 * 1024
}

func (c *Cfg) GetRequestTimeout() time.Duration {
	if c.RequestTimeout <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.RequestTimeout) * time.Second
}
