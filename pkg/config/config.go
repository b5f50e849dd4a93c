// Package config 应用配置：支持 YAML/JSON 配置文件 + 环境变量覆盖
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// WalletConfig 钱包配置
type WalletConfig struct {
	PrivateKey     string // 私钥（16进制，可带0x前缀）
	SecretStoreDir string // badger 密钥库目录（私钥为空时从这里加载）
	SecretKey      string // 密钥库中的键名
}

// RealtimeConfig 实时行情连接配置
type RealtimeConfig struct {
	URL                  string        // WebSocket 地址
	ProxyURL             string        // 代理地址（可选）
	ReconnectBase        time.Duration // 重连退避基础间隔
	ReconnectMax         time.Duration // 重连退避最大间隔
	MaxReconnectAttempts int           // 最大重连次数，超过后进入错误状态
}

// TradeAPIConfig 下单服务配置
type TradeAPIConfig struct {
	BaseURL string        // 下单服务地址
	Timeout time.Duration // 请求超时
}

// ControlPlaneConfig 控制面 HTTP 服务配置
type ControlPlaneConfig struct {
	Listen string // 监听地址，例如 :8787
	DBPath string // SQLite 数据库路径
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Config 应用配置
type Config struct {
	Wallet       WalletConfig
	Realtime     RealtimeConfig
	TradeAPI     TradeAPIConfig
	ControlPlane ControlPlaneConfig
	Log          LogConfig
	DryRun       bool // 纸交易模式：不真实提交订单，只打印
}

// configFile 配置文件结构（YAML/JSON）
type configFile struct {
	Wallet struct {
		PrivateKey     string `yaml:"private_key" json:"private_key"`
		SecretStoreDir string `yaml:"secret_store_dir" json:"secret_store_dir"`
		SecretKey      string `yaml:"secret_key" json:"secret_key"`
	} `yaml:"wallet" json:"wallet"`
	Realtime struct {
		URL                  string `yaml:"url" json:"url"`
		ProxyURL             string `yaml:"proxy_url" json:"proxy_url"`
		ReconnectBaseMs      int    `yaml:"reconnect_base_ms" json:"reconnect_base_ms"`
		ReconnectMaxMs       int    `yaml:"reconnect_max_ms" json:"reconnect_max_ms"`
		MaxReconnectAttempts int    `yaml:"max_reconnect_attempts" json:"max_reconnect_attempts"`
	} `yaml:"realtime" json:"realtime"`
	TradeAPI struct {
		BaseURL   string `yaml:"base_url" json:"base_url"`
		TimeoutMs int    `yaml:"timeout_ms" json:"timeout_ms"`
	} `yaml:"trade_api" json:"trade_api"`
	ControlPlane struct {
		Listen string `yaml:"listen" json:"listen"`
		DBPath string `yaml:"db_path" json:"db_path"`
	} `yaml:"control_plane" json:"control_plane"`
	Log struct {
		Level      string `yaml:"level" json:"level"`
		File       string `yaml:"file" json:"file"`
		MaxSizeMB  int    `yaml:"max_size_mb" json:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups" json:"max_backups"`
		MaxAgeDays int    `yaml:"max_age_days" json:"max_age_days"`
		Compress   bool   `yaml:"compress" json:"compress"`
	} `yaml:"log" json:"log"`
	DryRun bool `yaml:"dry_run" json:"dry_run"`
}

var globalConfig *Config
var configFilePath string

// SetConfigPath 设置配置文件路径
func SetConfigPath(path string) {
	configFilePath = path
}

// Load 加载配置
func Load() (*Config, error) {
	return LoadFromFile(configFilePath)
}

// LoadFromFile 从指定文件加载配置
// 优先级：环境变量 > 配置文件 > 默认值
func LoadFromFile(filePath string) (*Config, error) {
	if globalConfig != nil && configFilePath == filePath {
		return globalConfig, nil
	}

	var cf *configFile
	if filePath != "" {
		var err error
		cf, err = loadConfigFile(filePath)
		if err != nil {
			return nil, fmt.Errorf("加载配置文件失败 %s: %w", filePath, err)
		}
	}
	if cf == nil {
		cf = &configFile{}
	}

	config := &Config{
		Wallet: WalletConfig{
			PrivateKey:     getEnv("WALLET_PRIVATE_KEY", cf.Wallet.PrivateKey),
			SecretStoreDir: getEnv("SECRET_STORE_DIR", pick(cf.Wallet.SecretStoreDir, "data/secrets")),
			SecretKey:      getEnv("SECRET_KEY", pick(cf.Wallet.SecretKey, "wallet.private_key")),
		},
		Realtime: RealtimeConfig{
			URL:                  getEnv("REALTIME_URL", cf.Realtime.URL),
			ProxyURL:             getEnv("REALTIME_PROXY_URL", cf.Realtime.ProxyURL),
			ReconnectBase:        msOrDefault(cf.Realtime.ReconnectBaseMs, parseIntEnv("RECONNECT_BASE_MS", 1000)),
			ReconnectMax:         msOrDefault(cf.Realtime.ReconnectMaxMs, parseIntEnv("RECONNECT_MAX_MS", 30000)),
			MaxReconnectAttempts: intOrDefault(cf.Realtime.MaxReconnectAttempts, parseIntEnv("MAX_RECONNECT_ATTEMPTS", 5)),
		},
		TradeAPI: TradeAPIConfig{
			BaseURL: getEnv("TRADE_API_URL", cf.TradeAPI.BaseURL),
			Timeout: msOrDefault(cf.TradeAPI.TimeoutMs, parseIntEnv("TRADE_API_TIMEOUT_MS", 30000)),
		},
		ControlPlane: ControlPlaneConfig{
			Listen: getEnv("CONTROL_PLANE_LISTEN", pick(cf.ControlPlane.Listen, ":8787")),
			DBPath: getEnv("CONTROL_PLANE_DB", pick(cf.ControlPlane.DBPath, "data/orders.db")),
		},
		Log: LogConfig{
			Level:      getEnv("LOG_LEVEL", pick(cf.Log.Level, "info")),
			File:       getEnv("LOG_FILE", cf.Log.File),
			MaxSizeMB:  intOrDefault(cf.Log.MaxSizeMB, 50),
			MaxBackups: intOrDefault(cf.Log.MaxBackups, 5),
			MaxAgeDays: intOrDefault(cf.Log.MaxAgeDays, 14),
			Compress:   cf.Log.Compress,
		},
		DryRun: parseBoolEnv("DRY_RUN", cf.DryRun),
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("配置验证失败: %w", err)
	}

	globalConfig = config
	configFilePath = filePath
	return config, nil
}

// Get 获取全局配置（如果已加载）
func Get() *Config {
	return globalConfig
}

// Reset 清空全局配置缓存（测试用）
func Reset() {
	globalConfig = nil
	configFilePath = ""
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.Realtime.URL == "" {
		return fmt.Errorf("REALTIME_URL 未配置")
	}
	if c.TradeAPI.BaseURL == "" {
		return fmt.Errorf("TRADE_API_URL 未配置")
	}
	if c.Realtime.ReconnectBase <= 0 {
		return fmt.Errorf("RECONNECT_BASE_MS 必须大于 0")
	}
	if c.Realtime.ReconnectMax < c.Realtime.ReconnectBase {
		return fmt.Errorf("RECONNECT_MAX_MS 不能小于 RECONNECT_BASE_MS")
	}
	if c.Realtime.MaxReconnectAttempts <= 0 {
		return fmt.Errorf("MAX_RECONNECT_ATTEMPTS 必须大于 0")
	}
	return nil
}

// loadConfigFile 加载配置文件（支持 YAML 和 JSON）
func loadConfigFile(filePath string) (*configFile, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cf configFile
	ext := strings.ToLower(filepath.Ext(filePath))

	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cf); err != nil {
			return nil, fmt.Errorf("解析 YAML 配置文件失败: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &cf); err != nil {
			return nil, fmt.Errorf("解析 JSON 配置文件失败: %w", err)
		}
	default:
		return nil, fmt.Errorf("不支持的配置文件格式: %s (支持 .yaml, .yml, .json)", ext)
	}

	return &cf, nil
}

// getEnv 获取环境变量，如果不存在则返回默认值
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// pick 返回第一个非空字符串
func pick(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// intOrDefault 配置文件值大于0时优先
func intOrDefault(fileValue, defaultValue int) int {
	if fileValue > 0 {
		return fileValue
	}
	return defaultValue
}

// msOrDefault 配置文件毫秒值大于0时优先
func msOrDefault(fileMs, defaultMs int) time.Duration {
	if fileMs > 0 {
		return time.Duration(fileMs) * time.Millisecond
	}
	return time.Duration(defaultMs) * time.Millisecond
}

// parseIntEnv 解析整数环境变量
func parseIntEnv(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// parseBoolEnv 解析布尔环境变量
func parseBoolEnv(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}
