// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"
)

// ConfigFileEnv names the TOML config file when --config is not given.
const ConfigFileEnv = "STORY_ENGINE_CONFIG"

const defaultContentFallbackSuffix = "-default"

// Config 包含应用程序的所有配置。
// Layering: Defaults, then the TOML file, then .env and the process environment.
type Config struct {
	// 基础配置
	Port        int    `toml:"port" envconfig:"PORT"`
	BindAddress string `toml:"bind_address" envconfig:"BIND_ADDRESS"`
	ContentDir  string `toml:"content_dir" envconfig:"CONTENT_DIR"`
	BasePath    string `toml:"base_path" envconfig:"BASE_PATH"`
	Environment string `toml:"environment" envconfig:"APP_ENV"`

	// 日志
	LogLevel    string `toml:"log_level" envconfig:"LOG_LEVEL"`
	LogEncoding string `toml:"log_encoding" envconfig:"LOG_ENCODING"`
	LogFile     string `toml:"log_file" envconfig:"LOG_FILE"`

	// 编辑器接口
	EditorEnabled      bool     `toml:"editor_enabled" envconfig:"EDITOR_ENABLED"`
	StrictOrigin       bool     `toml:"strict_origin" envconfig:"STRICT_ORIGIN"`
	CORSAllowedOrigins []string `toml:"cors_allowed_origins" envconfig:"CORS_ALLOWED_ORIGINS"`
	MaxUploadBytes     int64    `toml:"max_upload_bytes" envconfig:"MAX_UPLOAD_BYTES"`
	MutationRateLimit  float64  `toml:"mutation_rate_limit" envconfig:"MUTATION_RATE_LIMIT"`
	MutationRateBurst  int      `toml:"mutation_rate_burst" envconfig:"MUTATION_RATE_BURST"`

	// 内容发现
	WatchContent bool `toml:"watch_content" envconfig:"WATCH_CONTENT"`
}

// LoadOptions 加载选项
type LoadOptions struct {
	ConfigFile string // 为空时读取 STORY_ENGINE_CONFIG
	EnvFile    string // 为空时读取 .env
}

// Defaults 返回默认配置
func Defaults() *Config {
	return &Config{
		Port:              8080,
		BindAddress:       "127.0.0.1",
		ContentDir:        "content",
		BasePath:          "/",
		Environment:       "development",
		LogLevel:          "info",
		LogEncoding:       "console",
		EditorEnabled:     true,
		MaxUploadBytes:    25 * 1024 * 1024,
		MutationRateBurst: 10,
		WatchContent:      true,
	}
}

// Load 按层加载配置
func Load(opts LoadOptions) (*Config, error) {
	cfg := Defaults()

	configFile := opts.ConfigFile
	if configFile == "" {
		configFile = os.Getenv(ConfigFileEnv)
	}
	if configFile != "" {
		if err := cfg.mergeFile(configFile); err != nil {
			return nil, err
		}
	}

	// .env 文件可选，已存在的环境变量优先
	envFile := opts.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("加载 %s 失败: %w", envFile, err)
	}

	// no default tags: unset variables keep the values layered so far
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("加载环境变量失败: %w", err)
	}

	cfg.ContentDir = ResolveContentDir(cfg.ContentDir)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("读取配置文件失败: %w", err)
	}
	if err := toml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("解析配置文件 %s 失败: %w", path, err)
	}
	return nil
}

// ResolveContentDir falls back to "<dir>-default" when dir does not exist
// but the fallback does, e.g. content -> content-default.
func ResolveContentDir(dir string) string {
	if _, err := os.Stat(dir); err == nil {
		return dir
	}
	fallback := strings.TrimRight(dir, `/\`) + defaultContentFallbackSuffix
	if info, err := os.Stat(fallback); err == nil && info.IsDir() {
		return fallback
	}
	return dir
}

// Validate 检查配置取值
func (c *Config) Validate() error {
	var problems []string
	if c.Port <= 0 || c.Port > 65535 {
		problems = append(problems, fmt.Sprintf("PORT 超出范围: %d", c.Port))
	}
	if c.ContentDir == "" {
		problems = append(problems, "CONTENT_DIR 不能为空")
	}
	if c.MaxUploadBytes <= 0 {
		problems = append(problems, "MAX_UPLOAD_BYTES 必须大于 0")
	}
	if c.MutationRateLimit < 0 {
		problems = append(problems, "MUTATION_RATE_LIMIT 不能为负数")
	}
	if c.MutationRateLimit > 0 && c.MutationRateBurst < 1 {
		problems = append(problems, "MUTATION_RATE_BURST 至少为 1")
	}
	if len(problems) > 0 {
		return fmt.Errorf("配置无效: %s", strings.Join(problems, "; "))
	}
	return nil
}

// IsProduction 是否生产环境
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// Addr 监听地址
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.BindAddress, c.Port)
}
