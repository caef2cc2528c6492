package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"erc20idx/pkg/rpc"

	jsoniter "github.com/json-iterator/go"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

const ConfigFileName = ".erc20idx.json"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// APIConfig configures the blockchain-data API.
type APIConfig struct {
	Network string `json:"network" yaml:"network"`
	APIKey  string `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	// URL replaces the endpoint derived from network and key.
	URL            string  `json:"url,omitempty" yaml:"url,omitempty"`
	TimeoutSeconds int     `json:"timeout_seconds" yaml:"timeout_seconds"`
	RateLimit      float64 `json:"rate_limit" yaml:"rate_limit"`
	Burst          int     `json:"burst" yaml:"burst"`
	MaxConcurrency int     `json:"max_concurrency" yaml:"max_concurrency"`
}

// WalletConfig configures the wallet JSON-RPC endpoint.
type WalletConfig struct {
	RPCURL string `json:"rpc_url,omitempty" yaml:"rpc_url,omitempty"`
	// TargetChainID defaults to the chain of the API network.
	TargetChainID  string `json:"target_chain_id,omitempty" yaml:"target_chain_id,omitempty"`
	TimeoutSeconds int    `json:"timeout_seconds" yaml:"timeout_seconds"`
	AutoConnect    bool   `json:"auto_connect" yaml:"auto_connect"`
}

type ServerConfig struct {
	Port           int      `json:"port" yaml:"port"`
	ReadTimeout    int      `json:"read_timeout_seconds" yaml:"read_timeout_seconds"`
	WriteTimeout   int      `json:"write_timeout_seconds" yaml:"write_timeout_seconds"`
	IdleTimeout    int      `json:"idle_timeout_seconds" yaml:"idle_timeout_seconds"`
	AllowedOrigins []string `json:"allowed_origins" yaml:"allowed_origins"`
}

type LogConfig struct {
	Level string `json:"level" yaml:"level"` // debug, info, warn, error
	File  string `json:"file,omitempty" yaml:"file,omitempty"`
	// Development switches to zap's human readable console encoder.
	Development bool `json:"development,omitempty" yaml:"development,omitempty"`
}

type CacheConfig struct {
	// MetadataTTLMinutes of 0 disables the metadata cache.
	MetadataTTLMinutes int `json:"metadata_ttl_minutes" yaml:"metadata_ttl_minutes"`
}

type DisplayConfig struct {
	Columns        int    `json:"columns" yaml:"columns"`
	DefaultAddress string `json:"default_address,omitempty" yaml:"default_address,omitempty"`
}

// Config holds application-wide settings.
type Config struct {
	API     APIConfig     `json:"api" yaml:"api"`
	Wallet  WalletConfig  `json:"wallet" yaml:"wallet"`
	Server  ServerConfig  `json:"server" yaml:"server"`
	Log     LogConfig     `json:"log" yaml:"log"`
	Cache   CacheConfig   `json:"cache" yaml:"cache"`
	Display DisplayConfig `json:"display" yaml:"display"`
}

func Default() Config {
	return Config{
		API: APIConfig{
			Network:        "eth-mainnet",
			TimeoutSeconds: 30,
			RateLimit:      25,
			Burst:          25,
		},
		Wallet: WalletConfig{
			TimeoutSeconds: 60,
			AutoConnect:    true,
		},
		Server: ServerConfig{
			Port:           8080,
			ReadTimeout:    15,
			WriteTimeout:   60,
			IdleTimeout:    120,
			AllowedOrigins: []string{"*"},
		},
		Log:     LogConfig{Level: "info"},
		Cache:   CacheConfig{MetadataTTLMinutes: 60},
		Display: DisplayConfig{Columns: 4},
	}
}

// TargetChainID returns the chain the wallet must be on.
func (c Config) TargetChainID() string {
	if c.Wallet.TargetChainID != "" {
		return strings.ToLower(c.Wallet.TargetChainID)
	}
	return rpc.ChainIDs[c.API.Network]
}

func (c Config) APITimeout() time.Duration {
	return time.Duration(c.API.TimeoutSeconds) * time.Second
}

func (c Config) WalletTimeout() time.Duration {
	return time.Duration(c.Wallet.TimeoutSeconds) * time.Second
}

func (c Config) MetadataTTL() time.Duration {
	return time.Duration(c.Cache.MetadataTTLMinutes) * time.Minute
}

// Validate reports every structural problem found.
func (c Config) Validate() []string {
	var problems []string
	if c.API.URL == "" {
		if _, ok := rpc.Hosts[c.API.Network]; !ok {
			problems = append(problems, fmt.Sprintf("api.network %q is not supported", c.API.Network))
		}
		if strings.TrimSpace(c.API.APIKey) == "" {
			problems = append(problems, "api.api_key is missing (set ERC20IDX_API_KEY or ALCHEMY_API_KEY)")
		}
	}
	if c.TargetChainID() == "" {
		problems = append(problems, "wallet.target_chain_id is required for a custom network")
	}
	if c.API.TimeoutSeconds <= 0 {
		problems = append(problems, "api.timeout_seconds must be positive")
	}
	if c.API.RateLimit < 0 {
		problems = append(problems, "api.rate_limit must not be negative")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("server.port %d is out of range", c.Server.Port))
	}
	if c.Cache.MetadataTTLMinutes < 0 {
		problems = append(problems, "cache.metadata_ttl_minutes must not be negative")
	}
	if c.Display.Columns <= 0 {
		problems = append(problems, "display.columns must be positive")
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		problems = append(problems, fmt.Sprintf("log.level %q is not one of debug, info, warn, error", c.Log.Level))
	}
	return problems
}

func GetConfigPath(customPath string) (string, error) {
	if customPath != "" {
		return customPath, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ConfigFileName), nil
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// LoadConfigFromFile reads path, falling back to defaults when it does not
// exist, and applies environment overrides.
func LoadConfigFromFile(path string) (Config, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		cfg := Default()
		return cfg, ApplyEnv(&cfg)
	}
	if err != nil {
		return Config{}, err
	}
	defer func() { _ = f.Close() }()

	cfg, err := LoadConfig(f, isYAML(path))
	if err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, ApplyEnv(&cfg)
}

// LoadConfig decodes a config document over the defaults.
func LoadConfig(r io.Reader, yamlFormat bool) (Config, error) {
	cfg := Default()
	var err error
	if yamlFormat {
		err = yaml.NewDecoder(r).Decode(&cfg)
		if err == io.EOF {
			err = nil
		}
	} else {
		err = json.NewDecoder(r).Decode(&cfg)
	}
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Full variable names are used so envconfig never falls back to bare names
// like PORT.
type envOverrides struct {
	APIKey       string `envconfig:"ERC20IDX_API_KEY"`
	AlchemyKey   string `envconfig:"ALCHEMY_API_KEY"`
	Network      string `envconfig:"ERC20IDX_NETWORK"`
	APIURL       string `envconfig:"ERC20IDX_API_URL"`
	WalletRPCURL string `envconfig:"ERC20IDX_WALLET_RPC_URL"`
	LogLevel     string `envconfig:"ERC20IDX_LOG_LEVEL"`
	Port         int    `envconfig:"ERC20IDX_PORT"`
}

// ApplyEnv overrides cfg with ERC20IDX_* variables. ALCHEMY_API_KEY is used
// when no other key is set.
func ApplyEnv(cfg *Config) error {
	var o envOverrides
	if err := envconfig.Process("", &o); err != nil {
		return fmt.Errorf("failed to process environment: %w", err)
	}

	if o.APIKey != "" {
		cfg.API.APIKey = o.APIKey
	} else if cfg.API.APIKey == "" && o.AlchemyKey != "" {
		cfg.API.APIKey = o.AlchemyKey
	}
	if o.Network != "" {
		cfg.API.Network = o.Network
	}
	if o.APIURL != "" {
		cfg.API.URL = o.APIURL
	}
	if o.WalletRPCURL != "" {
		cfg.Wallet.RPCURL = o.WalletRPCURL
	}
	if o.LogLevel != "" {
		cfg.Log.Level = o.LogLevel
	}
	if o.Port != 0 {
		cfg.Server.Port = o.Port
	}
	return nil
}

// SaveConfig writes cfg atomically, keeping a timestamped backup of the
// previous file. The API key is never written.
func SaveConfig(cfg Config, path string) error {
	if problems := cfg.Validate(); len(problems) > 0 {
		// A missing key is expected in a saved file.
		var rest []string
		for _, p := range problems {
			if !strings.HasPrefix(p, "api.api_key") {
				rest = append(rest, p)
			}
		}
		if len(rest) > 0 {
			return fmt.Errorf("validation failed: %s", strings.Join(rest, "; "))
		}
	}
	cfg.API.APIKey = ""

	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(cfg)
	} else {
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return fmt.Errorf("validation failed: encoded configuration is empty")
	}

	if _, err := os.Stat(path); err == nil {
		backupPath := fmt.Sprintf("%s.%s.bak", path, time.Now().Format("20060102-150405"))
		input, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read existing config for backup: %w", err)
		}
		if err := os.WriteFile(backupPath, input, 0600); err != nil {
			return fmt.Errorf("failed to write backup config: %w", err)
		}
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

// RestoreLastBackup copies the newest backup over configPath.
func RestoreLastBackup(configPath string) error {
	matches, err := filepath.Glob(configPath + ".*.bak")
	if err != nil {
		return err
	}
	if len(matches) == 0 {
		return fmt.Errorf("no backup files found")
	}
	sort.Strings(matches)
	lastBackup := matches[len(matches)-1]

	data, err := os.ReadFile(lastBackup)
	if err != nil {
		return err
	}
	return os.WriteFile(configPath, data, 0600)
}
