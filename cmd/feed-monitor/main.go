package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"

	"github.com/betfollow/gofollow/internal/realtime"
	"github.com/betfollow/gofollow/pkg/config"
	"github.com/betfollow/gofollow/pkg/logger"
	"github.com/betfollow/gofollow/pkg/shutdown"
)

var (
	configPath = flag.String("config", os.Getenv("CONFIG_FILE"), "配置文件路径 (yaml/json)")
	channels   = flag.String("channels", "", "订阅的频道，逗号分隔 (例如: prices:42,positions:0xabc)")
	wsURL      = flag.String("url", "", "WebSocket 地址（覆盖配置）")
	raw        = flag.Bool("raw", false, "显示原始 JSON 消息")
	verbose    = flag.Bool("verbose", false, "显示详细日志")
)

func main() {
	_ = godotenv.Load()
	flag.Parse()

	logLevel := "info"
	if *verbose {
		logLevel = "debug"
	}
	if err := logger.Init(logger.Config{Level: logLevel}); err != nil {
		log.Fatalf("初始化日志失败: %v", err)
	}

	cfg, err := config.LoadFromFile(*configPath)
	if err != nil && *wsURL == "" {
		log.Fatalf("加载配置失败: %v", err)
	}

	rtCfg := realtime.DefaultConfig()
	if cfg != nil {
		rtCfg.URL = cfg.Realtime.URL
		rtCfg.ProxyURL = cfg.Realtime.ProxyURL
		rtCfg.ReconnectBase = cfg.Realtime.ReconnectBase
		rtCfg.ReconnectMax = cfg.Realtime.ReconnectMax
		rtCfg.MaxReconnectAttempts = cfg.Realtime.MaxReconnectAttempts
	}
	if *wsURL != "" {
		rtCfg.URL = *wsURL
	}

	chList := parseChannels(*channels)
	if len(chList) == 0 {
		log.Fatal("至少需要一个频道 (-channels)")
	}

	manager := realtime.NewManager(rtCfg)

	fmt.Printf("\n🚀 行情监控启动，频道: %s\n", strings.Join(chList, ", "))

	unsubs := make([]func(), 0, len(chList))
	for _, ch := range chList {
		channel := ch
		unsub := manager.Subscribe(channel, func(msg *realtime.Message) {
			if *raw {
				pretty, _ := json.MarshalIndent(json.RawMessage(msg.Data), "", "  ")
				fmt.Printf("\n[%s] %s:\n%s\n", time.Now().Format("15:04:05"), channel, string(pretty))
				return
			}
			fmt.Printf("[%s] 📡 %s: %s\n", time.Now().Format("15:04:05"), channel, compact(msg.Data, 120))
		})
		unsubs = append(unsubs, unsub)
	}

	// 状态变化打印
	statusDone := make(chan struct{})
	go func() {
		last := realtime.StatusDisconnected
		ticker := time.NewTicker(500 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-statusDone:
				return
			case <-ticker.C:
				status := manager.Status()
				if status == last {
					continue
				}
				switch status {
				case realtime.StatusConnected:
					logger.Info("✅ 已连接")
				case realtime.StatusConnecting:
					logger.Infof("🔄 连接中 (%d/%d)", manager.ReconnectAttempt(), manager.MaxReconnectAttempts())
				case realtime.StatusError:
					logger.Error("❌ 重连次数耗尽，连接进入错误状态")
				case realtime.StatusDisconnected:
					logger.Info("连接断开")
				}
				last = status
			}
		}
	}()

	sd := shutdown.NewManager()
	sd.OnShutdown(func(ctx context.Context, _ *sync.WaitGroup) {
		close(statusDone)
		for _, unsub := range unsubs {
			unsub()
		}
	})
	sd.ListenAndWait(5 * time.Second)
	fmt.Println("feed-monitor stopped")
}

func parseChannels(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func compact(data []byte, max int) string {
	s := string(data)
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
