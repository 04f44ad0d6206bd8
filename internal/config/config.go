package config

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultInterval        = 5 * time.Minute
	defaultStatePath       = "ddnssync.db"
	defaultStatusAddr      = ":9090"
	defaultHTTPTimeout     = 10 * time.Second
	defaultResolverTimeout = 5 * time.Second
	defaultCacheTTL        = 60 * time.Second
	defaultBackoffBase     = 30 * time.Second
	defaultBackoffMax      = time.Hour
	defaultBackoffJitter   = 0.2
)

type Config struct {
	Interval    time.Duration           `yaml:"interval"`
	StatePath   string                  `yaml:"statePath"`
	StatusAddr  string                  `yaml:"statusAddr"`
	HTTPTimeout time.Duration           `yaml:"httpTimeout"`
	Log         Log                     `yaml:"log"`
	Resolver    Resolver                `yaml:"resolver"`
	Backoff     Backoff                 `yaml:"backoff"`
	Providers   map[string]ProviderSpec `yaml:"providers"`
	Records     []Record                `yaml:"records"`
}

type Log struct {
	Level string `yaml:"level"`
	Env   string `yaml:"env"`
}

// Resolver lists the external echo endpoints queried for the current
// public address, in order of preference.
type Resolver struct {
	CacheTTL time.Duration `yaml:"cacheTtl"`
	Timeout  time.Duration `yaml:"timeout"`
	IPv4     []Endpoint    `yaml:"ipv4"`
	IPv6     []Endpoint    `yaml:"ipv6"`
}

// Endpoint is one echo service. An empty JSONPath means the body is the
// bare address; otherwise the address is extracted at that field path.
type Endpoint struct {
	URL      string `yaml:"url"`
	JSONPath string `yaml:"jsonPath"`
}

type Backoff struct {
	Base   time.Duration `yaml:"base"`
	Max    time.Duration `yaml:"max"`
	Jitter float64       `yaml:"jitter"`
}

// ProviderSpec describes one named provider. Type selects a builtin
// vendor or "custom"; the template fields apply to custom providers.
type ProviderSpec struct {
	Type        string            `yaml:"type"`
	Credentials map[string]string `yaml:"credentials"`

	URL      string            `yaml:"url"`
	Method   string            `yaml:"method"`
	Headers  map[string]string `yaml:"headers"`
	Body     string            `yaml:"body"`
	BodyJSON bool              `yaml:"bodyJson"`
	Response ResponseRule      `yaml:"response"`
}

// ResponseRule classifies a provider response. Type "raw" matches the
// body against regex patterns, "json" extracts a field and compares it
// against the expected values. Code lists take entries like "401" or
// "500-599".
type ResponseRule struct {
	Type       string   `yaml:"type"`
	Success    string   `yaml:"success"`
	Failure    []string `yaml:"failure"`
	Path       string   `yaml:"path"`
	Expect     []string `yaml:"expect"`
	AllowCodes []string `yaml:"allowCodes"`
	SoftCodes  []string `yaml:"softCodes"`
	FatalCodes []string `yaml:"fatalCodes"`
}

// Record is one managed DNS entry.
type Record struct {
	Name     string        `yaml:"name"`
	Zone     string        `yaml:"zone"`
	Family   string        `yaml:"family"`
	Provider string        `yaml:"provider"`
	Interval time.Duration `yaml:"interval"`
}

// Key is the record identity, unique across the configuration.
func (r Record) Key() string {
	return r.Name + "." + r.Zone + "/" + r.Family
}

func Load(path string) (*Config, error) {
	configFile := true
	_, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		slog.Default().Warn("fail find config file, proceeding", "path", path)
		configFile = false
	}

	var cfg Config
	if configFile {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}

		decoder := yaml.NewDecoder(f)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, err
		}
		if err := f.Close(); err != nil {
			slog.Default().Warn("fail close config file", "path", path, "error", err)
		}
	}

	cfg.applyDefaults()
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Interval == 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.StatePath == "" {
		cfg.StatePath = defaultStatePath
	}
	if cfg.StatusAddr == "" {
		cfg.StatusAddr = defaultStatusAddr
	}
	if cfg.HTTPTimeout == 0 {
		cfg.HTTPTimeout = defaultHTTPTimeout
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Env == "" {
		cfg.Log.Env = "prod"
	}
	if cfg.Resolver.CacheTTL == 0 {
		cfg.Resolver.CacheTTL = defaultCacheTTL
	}
	if cfg.Resolver.Timeout == 0 {
		cfg.Resolver.Timeout = defaultResolverTimeout
	}
	if len(cfg.Resolver.IPv4) == 0 {
		cfg.Resolver.IPv4 = []Endpoint{
			{URL: "https://v4.ident.me"},
			{URL: "https://api.ipify.org"},
		}
	}
	if len(cfg.Resolver.IPv6) == 0 {
		cfg.Resolver.IPv6 = []Endpoint{
			{URL: "https://v6.ident.me"},
			{URL: "https://api6.ipify.org"},
		}
	}
	if cfg.Backoff.Base == 0 {
		cfg.Backoff.Base = defaultBackoffBase
	}
	if cfg.Backoff.Max == 0 {
		cfg.Backoff.Max = defaultBackoffMax
	}
	if cfg.Backoff.Jitter == 0 {
		cfg.Backoff.Jitter = defaultBackoffJitter
	}

	for i := range cfg.Records {
		if cfg.Records[i].Family == "" {
			cfg.Records[i].Family = "ipv4"
		}
		if cfg.Records[i].Interval == 0 {
			cfg.Records[i].Interval = cfg.Interval
		}
	}
}

// Override from environment if set
func (cfg *Config) applyEnv() {
	if interval := os.Getenv("DDNS_SYNC_INTERVAL"); interval != "" {
		if d, err := time.ParseDuration(interval); err == nil {
			cfg.Interval = d
		} else {
			slog.Default().Warn("fail parse interval to duration from string", "interval", interval, "error", err)
		}
	}
	if statePath := os.Getenv("DDNS_SYNC_STATE_PATH"); statePath != "" {
		cfg.StatePath = statePath
	}
	if statusAddr := os.Getenv("DDNS_SYNC_STATUS_ADDR"); statusAddr != "" {
		cfg.StatusAddr = statusAddr
	}
	if loglevel := os.Getenv("DDNS_SYNC_LOG_LEVEL"); loglevel != "" {
		cfg.Log.Level = loglevel
	}
	if logenv := os.Getenv("DDNS_SYNC_LOG_ENV"); logenv != "" {
		cfg.Log.Env = logenv
	}
	if endpoints := os.Getenv("DDNS_SYNC_IPV4_ENDPOINTS"); endpoints != "" {
		cfg.Resolver.IPv4 = splitEndpoints(endpoints)
	}
	if endpoints := os.Getenv("DDNS_SYNC_IPV6_ENDPOINTS"); endpoints != "" {
		cfg.Resolver.IPv6 = splitEndpoints(endpoints)
	}
}

func splitEndpoints(s string) []Endpoint {
	var eps []Endpoint
	for _, u := range strings.Split(s, ",") {
		u = strings.TrimSpace(u)
		if u != "" {
			eps = append(eps, Endpoint{URL: u})
		}
	}
	return eps
}
