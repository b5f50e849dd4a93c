// Package server 提供本地控制面 HTTP 服务：
// 暴露行情连接状态、驱动下单签名流程，并把下单历史落入 SQLite。
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/betfollow/gofollow/internal/domain"
	"github.com/betfollow/gofollow/internal/realtime"
	"github.com/betfollow/gofollow/internal/trading"
)

var log = logrus.WithField("component", "controlplane")

// Feed 行情连接状态视图
type Feed interface {
	Status() realtime.Status
	ReconnectAttempt() int
	MaxReconnectAttempts() int
	Channels() []string
}

// Trader 下单签名入口
type Trader interface {
	State() trading.State
	Err() string
	PrepareAndSign(ctx context.Context, params domain.OrderParams) *trading.Result
	Reset()
}

type Config struct {
	DBPath string
}

type Server struct {
	cfg    Config
	db     *sql.DB
	feed   Feed
	trader Trader
}

func New(cfg Config, feed Feed, trader Trader) (*Server, error) {
	if cfg.DBPath == "" {
		return nil, errors.New("db path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir db dir: %w", err)
	}

	db, err := sql.Open("sqlite", cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite：单连接更稳定
	db.SetMaxIdleConns(1)

	s := &Server{cfg: cfg, db: db, feed: feed, trader: trader}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Server) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Server) Router() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })

	api := r.Group("/api")
	api.GET("/status", s.handleStatus)
	api.GET("/channels", s.handleChannels)

	orders := api.Group("/orders")
	orders.POST("/", s.handleOrderCreate)
	orders.GET("/", s.handleOrdersList)
	orders.POST("/reset", s.handleOrderReset)

	return r
}
