package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("写入配置文件失败: %v", err)
	}
	return path
}

func TestLoadFromYAML(t *testing.T) {
	Reset()
	path := writeConfig(t, "config.yaml", `
realtime:
  url: wss://feed.example.com/ws
  reconnect_base_ms: 500
  reconnect_max_ms: 8000
  max_reconnect_attempts: 3
trade_api:
  base_url: https://api.example.com
log:
  level: debug
`)

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("加载配置失败: %v", err)
	}
	if cfg.Realtime.URL != "wss://feed.example.com/ws" {
		t.Errorf("Realtime.URL 错误: %s", cfg.Realtime.URL)
	}
	if cfg.Realtime.ReconnectBase != 500*time.Millisecond {
		t.Errorf("ReconnectBase 错误: %v", cfg.Realtime.ReconnectBase)
	}
	if cfg.Realtime.ReconnectMax != 8*time.Second {
		t.Errorf("ReconnectMax 错误: %v", cfg.Realtime.ReconnectMax)
	}
	if cfg.Realtime.MaxReconnectAttempts != 3 {
		t.Errorf("MaxReconnectAttempts 错误: %d", cfg.Realtime.MaxReconnectAttempts)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level 错误: %s", cfg.Log.Level)
	}
	// 未配置的字段取默认值
	if cfg.TradeAPI.Timeout != 30*time.Second {
		t.Errorf("TradeAPI.Timeout 默认值错误: %v", cfg.TradeAPI.Timeout)
	}
	if cfg.ControlPlane.Listen != ":8787" {
		t.Errorf("ControlPlane.Listen 默认值错误: %s", cfg.ControlPlane.Listen)
	}
}

func TestLoadFromJSON(t *testing.T) {
	Reset()
	path := writeConfig(t, "config.json", `{
  "realtime": {"url": "wss://feed.example.com/ws"},
  "trade_api": {"base_url": "https://api.example.com"},
  "dry_run": true
}`)

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("加载配置失败: %v", err)
	}
	if !cfg.DryRun {
		t.Error("DryRun 应为 true")
	}
}

func TestEnvOverridesFile(t *testing.T) {
	Reset()
	path := writeConfig(t, "config.yaml", `
realtime:
  url: wss://feed.example.com/ws
trade_api:
  base_url: https://api.example.com
`)
	t.Setenv("TRADE_API_URL", "https://override.example.com")

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("加载配置失败: %v", err)
	}
	if cfg.TradeAPI.BaseURL != "https://override.example.com" {
		t.Errorf("环境变量应覆盖配置文件: %s", cfg.TradeAPI.BaseURL)
	}
}

func TestValidateMissingURL(t *testing.T) {
	Reset()
	path := writeConfig(t, "config.yaml", `
trade_api:
  base_url: https://api.example.com
`)
	if _, err := LoadFromFile(path); err == nil {
		t.Error("缺少 realtime.url 应返回错误")
	}
}

func TestValidateBackoffOrder(t *testing.T) {
	Reset()
	path := writeConfig(t, "config.yaml", `
realtime:
  url: wss://feed.example.com/ws
  reconnect_base_ms: 5000
  reconnect_max_ms: 1000
trade_api:
  base_url: https://api.example.com
`)
	if _, err := LoadFromFile(path); err == nil {
		t.Error("max 小于 base 应返回错误")
	}
}

func TestUnsupportedFormat(t *testing.T) {
	Reset()
	path := writeConfig(t, "config.toml", `x = 1`)
	if _, err := LoadFromFile(path); err == nil {
		t.Error("不支持的格式应返回错误")
	}
}
