package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

const (
	DefaultName          = "imagehoster"
	DefaultListenAddr    = ":8800"
	DefaultServiceURL    = "http://localhost:8800"
	DefaultMaxImageSize  = 10 * 1000 * 1000
	DefaultRPCNode       = "https://api.dpays.io"
	DefaultAddressPrefix = "DWB"
	DefaultAvatar        = "https://ipfs.io/ipfs/QmXiYAbTWQ2C5a1ZfE7ooELQ1bPZAVNtGL1evvp6Ls9rNM"
	DefaultLogLevel      = "info"
	DefaultLogOutput     = "stderr"
	DefaultStoreType     = "memory"

	DefaultUploadLimitDuration   = 7 * 24 * time.Hour
	DefaultUploadLimitMax        = 50
	DefaultUploadLimitReputation = 10

	DefaultFileName = "imagehoster.toml"

	// MaskedSecret replaces secret values in printed configuration.
	MaskedSecret = "********"

	configFileEnvKey = "IMAGEHOSTER_CONFIG"
	envPrefix        = "IMAGEHOSTER_"
)

// Duration is a time.Duration that reads and writes as "1h30m" in TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UploadLimits bounds how often and by whom uploads are accepted.
type UploadLimits struct {
	Duration   Duration `toml:"duration"`
	Max        int      `toml:"max"`
	Reputation int      `toml:"reputation"`
}

// StoreConfig selects the backend for one blob store.
type StoreConfig struct {
	Type     string `toml:"type"`
	Path     string `toml:"path"`
	S3Bucket string `toml:"s3_bucket"`
}

// S3Config holds credentials shared by every s3 store.
type S3Config struct {
	Endpoint  string `toml:"endpoint"`
	Region    string `toml:"region"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	UseSSL    bool   `toml:"use_ssl"`
	PathStyle bool   `toml:"path_style"`
}

// Config defines runtime configuration for the service.
type Config struct {
	Name          string            `toml:"name"`
	ListenAddr    string            `toml:"listen_addr"`
	Proxy         bool              `toml:"proxy"`
	ServiceURL    string            `toml:"service_url"`
	MaxImageSize  int64             `toml:"max_image_size"`
	RPCNode       string            `toml:"rpc_node"`
	AddressPrefix string            `toml:"address_prefix"`
	RedisURL      string            `toml:"redis_url"`
	DefaultAvatar string            `toml:"default_avatar"`
	LogLevel      string            `toml:"log_level"`
	LogOutput     string            `toml:"log_output"`
	BlacklistFile string            `toml:"blacklist_file"`
	URLRewrites   map[string]string `toml:"url_rewrites"`
	UploadLimits  UploadLimits      `toml:"upload_limits"`
	UploadStore   StoreConfig       `toml:"upload_store"`
	ProxyStore    StoreConfig       `toml:"proxy_store"`
	S3            S3Config          `toml:"s3"`

	LoadedFrom string `toml:"-"`
}

// Default returns default configuration values.
func Default() Config {
	return Config{
		Name:          DefaultName,
		ListenAddr:    DefaultListenAddr,
		ServiceURL:    DefaultServiceURL,
		MaxImageSize:  DefaultMaxImageSize,
		RPCNode:       DefaultRPCNode,
		AddressPrefix: DefaultAddressPrefix,
		DefaultAvatar: DefaultAvatar,
		LogLevel:      DefaultLogLevel,
		LogOutput:     DefaultLogOutput,
		URLRewrites: map[string]string{
			"dsiteimages.com/ipfs/": "ipfs.io/ipfs/",
		},
		UploadLimits: UploadLimits{
			Duration:   Duration{DefaultUploadLimitDuration},
			Max:        DefaultUploadLimitMax,
			Reputation: DefaultUploadLimitReputation,
		},
		UploadStore: StoreConfig{Type: DefaultStoreType},
		ProxyStore:  StoreConfig{Type: DefaultStoreType},
	}
}

func loadFile(path string, cfg *Config) error {
	_, err := loadFileIfExists(path, cfg)
	return err
}

func loadFileIfExists(path string, cfg *Config) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if info.IsDir() {
		return false, nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return false, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return true, nil
}

// Path returns the config file location: $IMAGEHOSTER_CONFIG if set,
// otherwise imagehoster.toml in the working directory.
func Path() (string, error) {
	if path := strings.TrimSpace(os.Getenv(configFileEnvKey)); path != "" {
		return path, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(cwd, DefaultFileName), nil
}

// Load reads .env, the config file, and environment overrides, in that order.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Default().Warn("unable to read .env", "error", err)
	}

	cfg := Default()
	path, err := Path()
	if err != nil {
		return nil, err
	}
	loaded, err := loadFileIfExists(path, &cfg)
	if err != nil {
		return nil, err
	}
	if loaded {
		cfg.LoadedFrom = path
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type lookupFunc func(string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	for _, key := range allowedKeys {
		envKey := envPrefix + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		raw, ok := lookup(envKey)
		if !ok || strings.TrimSpace(raw) == "" {
			continue
		}
		if err := c.Set(key, raw); err != nil {
			return fmt.Errorf("%s: %w", envKey, err)
		}
	}
	// The conventional names are honoured for object storage credentials.
	if v, ok := lookup("AWS_ACCESS_KEY_ID"); ok && c.S3.AccessKey == "" {
		c.S3.AccessKey = v
	}
	if v, ok := lookup("AWS_SECRET_ACCESS_KEY"); ok && c.S3.SecretKey == "" {
		c.S3.SecretKey = v
	}
	if v, ok := lookup("PORT"); ok && strings.TrimSpace(v) != "" {
		if _, set := lookup(envPrefix + "LISTEN_ADDR"); !set {
			c.ListenAddr = ":" + strings.TrimSpace(v)
		}
	}
	return nil
}

// Validate reports configuration that cannot work.
func (c *Config) Validate() error {
	if c.MaxImageSize <= 0 {
		return fmt.Errorf("max_image_size must be a positive integer")
	}
	if strings.TrimSpace(c.ServiceURL) == "" {
		return fmt.Errorf("service_url is required")
	}
	for name, store := range map[string]StoreConfig{"upload_store": c.UploadStore, "proxy_store": c.ProxyStore} {
		switch store.Type {
		case "memory":
		case "fs", "sqlite":
			if store.Path == "" {
				return fmt.Errorf("%s.path is required for type %q", name, store.Type)
			}
		case "s3":
			if store.S3Bucket == "" {
				return fmt.Errorf("%s.s3_bucket is required for type s3", name)
			}
			if c.S3.Endpoint == "" {
				return fmt.Errorf("s3.endpoint is required for type s3")
			}
		default:
			return fmt.Errorf("invalid storage type %q for %s", store.Type, name)
		}
	}
	return nil
}

func (c *Config) normalize() {
	c.ServiceURL = strings.TrimRight(strings.TrimSpace(c.ServiceURL), "/")
	c.UploadStore.Type = strings.ToLower(strings.TrimSpace(c.UploadStore.Type))
	c.ProxyStore.Type = strings.ToLower(strings.TrimSpace(c.ProxyStore.Type))
	if c.UploadStore.Type == "" {
		c.UploadStore.Type = DefaultStoreType
	}
	if c.ProxyStore.Type == "" {
		c.ProxyStore.Type = DefaultStoreType
	}
	if c.AddressPrefix == "" {
		c.AddressPrefix = DefaultAddressPrefix
	}
	if c.UploadLimits.Duration.Duration <= 0 {
		c.UploadLimits.Duration.Duration = DefaultUploadLimitDuration
	}
	if c.UploadLimits.Max <= 0 {
		c.UploadLimits.Max = DefaultUploadLimitMax
	}
}

// Rewrites returns the configured URL rewrites in a stable order.
func (c *Config) Rewrites() [][2]string {
	keys := make([]string, 0, len(c.URLRewrites))
	for from := range c.URLRewrites {
		keys = append(keys, from)
	}
	sort.Strings(keys)
	out := make([][2]string, 0, len(keys))
	for _, from := range keys {
		out = append(out, [2]string{from, c.URLRewrites[from]})
	}
	return out
}

var allowedKeys = []string{
	"name",
	"listen_addr",
	"proxy",
	"service_url",
	"max_image_size",
	"rpc_node",
	"address_prefix",
	"redis_url",
	"default_avatar",
	"log_level",
	"log_output",
	"blacklist_file",
	"upload_limits.duration",
	"upload_limits.max",
	"upload_limits.reputation",
	"upload_store.type",
	"upload_store.path",
	"upload_store.s3_bucket",
	"proxy_store.type",
	"proxy_store.path",
	"proxy_store.s3_bucket",
	"s3.endpoint",
	"s3.region",
	"s3.access_key",
	"s3.secret_key",
	"s3.use_ssl",
	"s3.path_style",
}

// AllowedKeys returns the set of valid config keys.
func AllowedKeys() []string {
	return allowedKeys
}

// IsAllowedKey checks if a key is a valid config key.
func IsAllowedKey(key string) bool {
	for _, k := range allowedKeys {
		if k == key {
			return true
		}
	}
	return false
}

// Get returns the value of a config key.
func (c *Config) Get(key string) (string, error) {
	switch key {
	case "name":
		return c.Name, nil
	case "listen_addr":
		return c.ListenAddr, nil
	case "proxy":
		return strconv.FormatBool(c.Proxy), nil
	case "service_url":
		return c.ServiceURL, nil
	case "max_image_size":
		return strconv.FormatInt(c.MaxImageSize, 10), nil
	case "rpc_node":
		return c.RPCNode, nil
	case "address_prefix":
		return c.AddressPrefix, nil
	case "redis_url":
		return c.RedisURL, nil
	case "default_avatar":
		return c.DefaultAvatar, nil
	case "log_level":
		return c.LogLevel, nil
	case "log_output":
		return c.LogOutput, nil
	case "blacklist_file":
		return c.BlacklistFile, nil
	case "upload_limits.duration":
		return c.UploadLimits.Duration.String(), nil
	case "upload_limits.max":
		return strconv.Itoa(c.UploadLimits.Max), nil
	case "upload_limits.reputation":
		return strconv.Itoa(c.UploadLimits.Reputation), nil
	case "upload_store.type":
		return c.UploadStore.Type, nil
	case "upload_store.path":
		return c.UploadStore.Path, nil
	case "upload_store.s3_bucket":
		return c.UploadStore.S3Bucket, nil
	case "proxy_store.type":
		return c.ProxyStore.Type, nil
	case "proxy_store.path":
		return c.ProxyStore.Path, nil
	case "proxy_store.s3_bucket":
		return c.ProxyStore.S3Bucket, nil
	case "s3.endpoint":
		return c.S3.Endpoint, nil
	case "s3.region":
		return c.S3.Region, nil
	case "s3.access_key":
		return c.S3.AccessKey, nil
	case "s3.secret_key":
		if c.S3.SecretKey != "" {
			return MaskedSecret, nil
		}
		return "", nil
	case "s3.use_ssl":
		return strconv.FormatBool(c.S3.UseSSL), nil
	case "s3.path_style":
		return strconv.FormatBool(c.S3.PathStyle), nil
	default:
		return "", fmt.Errorf("unknown key: %s", key)
	}
}

// Set parses value and assigns it to key.
func (c *Config) Set(key, value string) error {
	parsed, err := parseSetValue(key, value)
	if err != nil {
		return err
	}
	switch key {
	case "name":
		c.Name = parsed.(string)
	case "listen_addr":
		c.ListenAddr = parsed.(string)
	case "proxy":
		c.Proxy = parsed.(bool)
	case "service_url":
		c.ServiceURL = parsed.(string)
	case "max_image_size":
		c.MaxImageSize = parsed.(int64)
	case "rpc_node":
		c.RPCNode = parsed.(string)
	case "address_prefix":
		c.AddressPrefix = parsed.(string)
	case "redis_url":
		c.RedisURL = parsed.(string)
	case "default_avatar":
		c.DefaultAvatar = parsed.(string)
	case "log_level":
		c.LogLevel = parsed.(string)
	case "log_output":
		c.LogOutput = parsed.(string)
	case "blacklist_file":
		c.BlacklistFile = parsed.(string)
	case "upload_limits.duration":
		d, _ := time.ParseDuration(parsed.(string))
		c.UploadLimits.Duration = Duration{d}
	case "upload_limits.max":
		c.UploadLimits.Max = int(parsed.(int64))
	case "upload_limits.reputation":
		c.UploadLimits.Reputation = int(parsed.(int64))
	case "upload_store.type":
		c.UploadStore.Type = parsed.(string)
	case "upload_store.path":
		c.UploadStore.Path = parsed.(string)
	case "upload_store.s3_bucket":
		c.UploadStore.S3Bucket = parsed.(string)
	case "proxy_store.type":
		c.ProxyStore.Type = parsed.(string)
	case "proxy_store.path":
		c.ProxyStore.Path = parsed.(string)
	case "proxy_store.s3_bucket":
		c.ProxyStore.S3Bucket = parsed.(string)
	case "s3.endpoint":
		c.S3.Endpoint = parsed.(string)
	case "s3.region":
		c.S3.Region = parsed.(string)
	case "s3.access_key":
		c.S3.AccessKey = parsed.(string)
	case "s3.secret_key":
		c.S3.SecretKey = parsed.(string)
	case "s3.use_ssl":
		c.S3.UseSSL = parsed.(bool)
	case "s3.path_style":
		c.S3.PathStyle = parsed.(bool)
	default:
		return fmt.Errorf("unknown key: %s", key)
	}
	return nil
}

// SetKey reads the TOML file at path, sets key=value, and writes it back.
func SetKey(path, key, value string) error {
	if !IsAllowedKey(key) {
		return fmt.Errorf("unknown key: %s", key)
	}

	data := make(map[string]any)
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &data); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	}

	parsedValue, err := parseSetValue(key, value)
	if err != nil {
		return err
	}
	if err := setNestedKey(data, strings.Split(key, "."), parsedValue); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(data)
}

func parseSetValue(key, value string) (any, error) {
	value = strings.TrimSpace(value)
	switch key {
	case "max_image_size", "upload_limits.max":
		parsed, err := strconv.ParseInt(value, 10, 64)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("%s must be a positive integer", key)
		}
		return parsed, nil
	case "upload_limits.reputation":
		parsed, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s must be an integer", key)
		}
		return parsed, nil
	case "upload_limits.duration":
		if _, err := time.ParseDuration(value); err != nil {
			return nil, fmt.Errorf("%s must be a duration like 24h", key)
		}
		return value, nil
	case "proxy", "s3.use_ssl", "s3.path_style":
		parsed, err := parseBool(value)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		return parsed, nil
	default:
		return value, nil
	}
}

// parseBool accepts the usual spellings of yes and no.
func parseBool(value string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "y", "yes", "on", "true":
		return true, nil
	case "0", "n", "no", "off", "false":
		return false, nil
	default:
		return false, fmt.Errorf("ambiguous boolean %q", value)
	}
}

func setNestedKey(data map[string]any, parts []string, value any) error {
	if len(parts) == 0 {
		return fmt.Errorf("invalid config key")
	}
	if len(parts) == 1 {
		data[parts[0]] = value
		return nil
	}
	childRaw, ok := data[parts[0]]
	if !ok {
		child := map[string]any{}
		data[parts[0]] = child
		return setNestedKey(child, parts[1:], value)
	}
	child, ok := childRaw.(map[string]any)
	if !ok {
		return fmt.Errorf("cannot set nested key %q", strings.Join(parts, "."))
	}
	return setNestedKey(child, parts[1:], value)
}
