// Package config 提供服务配置加载
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

// Config 服务配置
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Storage  StorageConfig  `yaml:"storage"`
	Database DatabaseConfig `yaml:"database"`
	Model    ModelConfig    `yaml:"model"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig HTTP服务配置
type ServerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
}

// StorageConfig 文件存储配置
type StorageConfig struct {
	UploadDir         string   `yaml:"upload_dir"`
	ModelPath         string   `yaml:"model_path"`
	MaxUploadMB       int64    `yaml:"max_upload_mb"`
	AllowedExtensions []string `yaml:"allowed_extensions"`
}

// DatabaseConfig 历史记录数据库配置
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// ModelConfig 模型训练配置
type ModelConfig struct {
	DefaultType string  `yaml:"default_type"`
	MaxFeatures int     `yaml:"max_features"`
	NGramMax    int     `yaml:"ngram_max"`
	MinDF       int     `yaml:"min_df"`
	RandomSeed  int64   `yaml:"random_seed"`
	CacheSize   int     `yaml:"cache_size"`
	Watch       bool    `yaml:"watch"`
	LearnRate   float64 `yaml:"learning_rate"`
	Epochs      int     `yaml:"epochs"`
	L2          float64 `yaml:"l2"`
	Alpha       float64 `yaml:"alpha"`
	MaxDepth    int     `yaml:"max_depth"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	Output     string `yaml:"output"` // stdout或stderr
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// Default 默认配置
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           5000,
			ReadTimeout:    60 * time.Second,
			WriteTimeout:   10 * time.Minute,
			AllowedOrigins: []string{"*"},
		},
		Storage: StorageConfig{
			UploadDir:         "uploads",
			ModelPath:         "models/sentiment_model.json",
			MaxUploadMB:       50,
			AllowedExtensions: []string{"csv", "txt", "json"},
		},
		Database: DatabaseConfig{
			Path: "data/sentiment.db",
		},
		Model: ModelConfig{
			DefaultType: "logistic",
			MaxFeatures: 5000,
			NGramMax:    2,
			MinDF:       1,
			RandomSeed:  42,
			CacheSize:   1024,
			Watch:       true,
			LearnRate:   1.0,
			Epochs:      500,
			L2:          1e-4,
			Alpha:       1.0,
			MaxDepth:    12,
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "json",
			Output:     "stdout",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// Load 从YAML文件加载配置，文件不存在时使用默认配置
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, cfg.Validate()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, cfg.Validate()
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 校验配置
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Storage.UploadDir == "" {
		return errors.New("storage.upload_dir is required")
	}
	if c.Storage.ModelPath == "" {
		return errors.New("storage.model_path is required")
	}
	if c.Storage.MaxUploadMB <= 0 {
		return errors.New("storage.max_upload_mb must be positive")
	}
	if len(c.Storage.AllowedExtensions) == 0 {
		return errors.New("storage.allowed_extensions must not be empty")
	}
	for i, ext := range c.Storage.AllowedExtensions {
		c.Storage.AllowedExtensions[i] = strings.ToLower(strings.TrimPrefix(ext, "."))
	}
	if c.Model.MaxFeatures < 0 {
		return errors.New("model.max_features must not be negative")
	}
	if c.Model.NGramMax < 1 {
		c.Model.NGramMax = 1
	}
	switch c.Log.Output {
	case "", "stdout", "stderr":
	default:
		return fmt.Errorf("invalid log output: %q", c.Log.Output)
	}
	if c.Model.CacheSize < 0 {
		return errors.New("model.cache_size must not be negative")
	}
	return nil
}

// Addr 返回监听地址
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// MaxUploadBytes 上传大小上限（字节）
func (c StorageConfig) MaxUploadBytes() int64 {
	return c.MaxUploadMB * 1024 * 1024
}
