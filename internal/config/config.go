package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config stores runtime configuration for the proxy.
type Config struct {
	Hume     HumeConfig
	Server   ServerConfig
	Playback PlaybackConfig
	Console  ConsoleConfig
	Log      LogConfig
}

type HumeConfig struct {
	APIKey      string
	ConfigID    string
	ChatGroupID string
	BaseURL     string
}

type ServerConfig struct {
	Port   int
	WSPath string
	UIDir  string
}

type PlaybackConfig struct {
	Delay       time.Duration
	AutoAdvance bool
}

type ConsoleConfig struct {
	Enabled bool
}

type LogConfig struct {
	Level string
	File  string
}

// Options points Load at its optional inputs. Missing files are ignored.
type Options struct {
	EnvFile    string
	ConfigFile string
}

// fileConfig is the YAML layout of the optional config file.
type fileConfig struct {
	Hume struct {
		APIKey      string `yaml:"api_key"`
		ConfigID    string `yaml:"config_id"`
		ChatGroupID string `yaml:"chat_group_id"`
		BaseURL     string `yaml:"base_url"`
	} `yaml:"hume"`
	Server struct {
		Port   *int   `yaml:"port"`
		WSPath string `yaml:"ws_path"`
		UIDir  string `yaml:"ui_dir"`
	} `yaml:"server"`
	Playback struct {
		DelayMS     *int  `yaml:"delay_ms"`
		AutoAdvance *bool `yaml:"auto_advance"`
	} `yaml:"playback"`
	Console struct {
		Enabled *bool `yaml:"enabled"`
	} `yaml:"console"`
	Log struct {
		Level string `yaml:"level"`
		File  string `yaml:"file"`
	} `yaml:"log"`
}

// values resolves a key from the environment first and the config file second.
type values map[string]string

func (v values) get(key string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return strings.TrimSpace(v[key])
}

// Load resolves configuration from the env file, the optional YAML file,
// environment variables and defaults. Environment variables win over the file.
func Load(opts Options) (Config, error) {
	envFile := firstNonEmpty(opts.EnvFile, ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load env file %q: %w", envFile, err)
	}

	file := values{}
	if path := firstNonEmpty(opts.ConfigFile, os.Getenv("EVI_PROXY_CONFIG")); path != "" {
		loaded, err := readFile(path)
		if err != nil {
			return Config{}, err
		}
		file = loaded
	}

	cfg := Config{
		Hume: HumeConfig{
			APIKey:      file.get("HUME_API_KEY"),
			ConfigID:    file.get("HUME_CONFIG_ID"),
			ChatGroupID: file.get("HUME_CHAT_GROUP_ID"),
			BaseURL:     envOrDefault(file, "EVI_PROXY_UPSTREAM_URL", "wss://api.hume.ai"),
		},
		Server: ServerConfig{
			Port:   envOrDefaultInt(file, "EVI_PROXY_PORT", 3000),
			WSPath: envOrDefault(file, "EVI_PROXY_WS_PATH", "/v0/evi/chat"),
			UIDir:  envOrDefault(file, "EVI_PROXY_UI_DIR", "out"),
		},
		Playback: PlaybackConfig{
			Delay:       time.Duration(envOrDefaultInt(file, "EVI_PROXY_PLAYBACK_DELAY_MS", 200)) * time.Millisecond,
			AutoAdvance: envOrDefaultBool(file, "EVI_PROXY_AUTO_ADVANCE", false),
		},
		Console: ConsoleConfig{
			Enabled: envOrDefaultBool(file, "EVI_PROXY_CONSOLE", true),
		},
		Log: LogConfig{
			Level: envOrDefault(file, "EVI_PROXY_LOG_LEVEL", "info"),
			File:  file.get("EVI_PROXY_LOG_FILE"),
		},
	}

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		cfg.Server.Port = 3000
	}
	if !strings.HasPrefix(cfg.Server.WSPath, "/") {
		cfg.Server.WSPath = "/" + cfg.Server.WSPath
	}
	if cfg.Playback.Delay < 0 {
		cfg.Playback.Delay = 200 * time.Millisecond
	}

	return cfg, nil
}

// Validate reports configuration that would make record mode unusable.
func (c Config) Validate() error {
	if c.Hume.APIKey == "" {
		return errors.New("HUME_API_KEY is not configured")
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (c Config) Addr() string {
	return ":" + strconv.Itoa(c.Server.Port)
}

func readFile(path string) (values, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file %q: %w", path, err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file %q: %w", path, err)
	}

	v := values{
		"HUME_API_KEY":           fc.Hume.APIKey,
		"HUME_CONFIG_ID":         fc.Hume.ConfigID,
		"HUME_CHAT_GROUP_ID":     fc.Hume.ChatGroupID,
		"EVI_PROXY_UPSTREAM_URL": fc.Hume.BaseURL,
		"EVI_PROXY_WS_PATH":      fc.Server.WSPath,
		"EVI_PROXY_UI_DIR":       fc.Server.UIDir,
		"EVI_PROXY_LOG_LEVEL":    fc.Log.Level,
		"EVI_PROXY_LOG_FILE":     fc.Log.File,
	}
	if fc.Server.Port != nil {
		v["EVI_PROXY_PORT"] = strconv.Itoa(*fc.Server.Port)
	}
	if fc.Playback.DelayMS != nil {
		v["EVI_PROXY_PLAYBACK_DELAY_MS"] = strconv.Itoa(*fc.Playback.DelayMS)
	}
	if fc.Playback.AutoAdvance != nil {
		v["EVI_PROXY_AUTO_ADVANCE"] = strconv.FormatBool(*fc.Playback.AutoAdvance)
	}
	if fc.Console.Enabled != nil {
		v["EVI_PROXY_CONSOLE"] = strconv.FormatBool(*fc.Console.Enabled)
	}
	return v, nil
}

func firstNonEmpty(candidates ...string) string {
	for _, value := range candidates {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func envOrDefault(v values, key string, fallback string) string {
	value := v.get(key)
	if value == "" {
		return fallback
	}
	return value
}

func envOrDefaultInt(v values, key string, fallback int) int {
	value := v.get(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrDefaultBool(v values, key string, fallback bool) bool {
	value := strings.ToLower(v.get(key))
	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
