package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/betfollow/gofollow/internal/controlplane/server"
	"github.com/betfollow/gofollow/internal/realtime"
	"github.com/betfollow/gofollow/internal/tradeapi"
	"github.com/betfollow/gofollow/internal/trading"
	"github.com/betfollow/gofollow/pkg/config"
	"github.com/betfollow/gofollow/pkg/logger"
	"github.com/betfollow/gofollow/pkg/secretstore"
	"github.com/betfollow/gofollow/pkg/wallet"
)

func main() {
	// Load .env (best-effort). If missing, fall back to real env vars.
	_ = godotenv.Load()

	var (
		configPath = flag.String("config", os.Getenv("CONFIG_FILE"), "配置文件路径 (yaml/json)")
		listenAddr = flag.String("listen", "", "HTTP 监听地址（覆盖配置）")
	)
	flag.Parse()

	cfg, err := config.LoadFromFile(*configPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	if *listenAddr != "" {
		cfg.ControlPlane.Listen = *listenAddr
	}

	if err := logger.Init(logger.Config{
		Level:      cfg.Log.Level,
		OutputFile: cfg.Log.File,
		MaxSize:    cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	}); err != nil {
		log.Fatalf("初始化日志失败: %v", err)
	}

	signer, err := loadSigner(cfg)
	if err != nil {
		log.Fatalf("加载钱包失败: %v", err)
	}
	if signer == nil {
		logger.Warn("未配置钱包私钥，下单请求将返回 Wallet not connected")
	}

	manager := realtime.NewManager(&realtime.Config{
		URL:                  cfg.Realtime.URL,
		ProxyURL:             cfg.Realtime.ProxyURL,
		ReconnectBase:        cfg.Realtime.ReconnectBase,
		ReconnectMax:         cfg.Realtime.ReconnectMax,
		MaxReconnectAttempts: cfg.Realtime.MaxReconnectAttempts,
	})

	api := tradeapi.NewClient(cfg.TradeAPI.BaseURL).WithTimeout(cfg.TradeAPI.Timeout)
	coord := trading.NewCoordinator(api, signer)

	srv, err := server.New(server.Config{DBPath: cfg.ControlPlane.DBPath}, manager, coord)
	if err != nil {
		log.Fatalf("初始化控制面失败: %v", err)
	}
	defer srv.Close()

	httpSrv := &http.Server{
		Addr:              cfg.ControlPlane.Listen,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Infof("控制面监听 %s", cfg.ControlPlane.Listen)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("HTTP 服务错误: %v", err)
		}
	}()

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	<-stopCh

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(ctx)

	fmt.Println("server stopped")
}

// loadSigner 按优先级加载私钥：环境变量/配置 > secretstore
// 都没有时返回 nil（钱包未连接）
func loadSigner(cfg *config.Config) (wallet.Signer, error) {
	if cfg.Wallet.PrivateKey != "" {
		return wallet.NewLocalSigner(cfg.Wallet.PrivateKey)
	}

	if cfg.Wallet.SecretStoreDir == "" {
		return nil, nil
	}
	if _, err := os.Stat(cfg.Wallet.SecretStoreDir); err != nil {
		return nil, nil
	}

	encKey, err := secretstore.ParseKey(os.Getenv("SECRETSTORE_KEY"))
	if err != nil {
		return nil, err
	}
	store, err := secretstore.Open(secretstore.OpenOptions{
		Path:          cfg.Wallet.SecretStoreDir,
		EncryptionKey: encKey,
		ReadOnly:      true,
	})
	if err != nil {
		return nil, err
	}
	defer store.Close()

	pk, found, err := store.GetString(cfg.Wallet.SecretKey)
	if err != nil {
		return nil, err
	}
	if !found || pk == "" {
		return nil, nil
	}
	return wallet.NewLocalSigner(pk)
}
