package realtime

import (
	"context"
	"encoding/json"
	"time"
)

// Status 连接状态
// 多个频道复用同一条底层连接时，所有频道看到的是同一个状态值
type Status string

const (
	StatusDisconnected Status = "disconnected" // 未连接（初始态 / 最后一个订阅者退订后）
	StatusConnecting   Status = "connecting"   // 连接中（含掉线重连）
	StatusConnected    Status = "connected"    // 已连接
	StatusError        Status = "error"        // 重连次数耗尽，终态；需要重新订阅才会再次拨号
)

// Message 服务端推送的一帧消息
// 线格式：{ "type": <频道名>, "data": <载荷> }
type Message struct {
	Channel string          `json:"type"`
	Data    json.RawMessage `json:"data"`
}

// MessageFunc 频道消息回调
// 回调在读取 goroutine 上同步执行，注意：
//   - 回调内不要再调用 Subscribe / 退订函数（会死锁）
//   - 回调 panic 会被隔离，不影响同频道的其他回调
type MessageFunc func(msg *Message)

// Conn 底层传输连接
// 生产实现是 gorilla WebSocket，测试用内存管道替换
type Conn interface {
	// ReadMessage 阻塞读取一帧；连接断开时返回错误
	ReadMessage() ([]byte, error)
	// WriteJSON 发送一条 JSON 消息（订阅/退订帧）
	WriteJSON(v interface{}) error
	// Close 关闭连接，会中断阻塞中的 ReadMessage
	Close() error
}

// Dialer 建立一条新的传输连接
type Dialer func(ctx context.Context) (Conn, error)

// 订阅管理帧的动作
const (
	ActionSubscribe   = "subscribe"
	ActionUnsubscribe = "unsubscribe"
)

// subscriptionRequest 发给服务端的订阅管理帧
type subscriptionRequest struct {
	Action   string   `json:"action"`
	Channels []string `json:"channels"`
}

// Config 频道管理器配置
type Config struct {
	URL                  string        // WebSocket 地址
	ProxyURL             string        // 代理地址（可选）
	HandshakeTimeout     time.Duration // 握手超时
	WriteTimeout         time.Duration // 写超时
	ReconnectBase        time.Duration // 重连退避基础延迟
	ReconnectMax         time.Duration // 重连退避延迟上限
	MaxReconnectAttempts int           // 最大重连尝试次数，超过后进入 StatusError
	Dialer               Dialer        // 自定义拨号器（为空时使用 gorilla WebSocket）
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		HandshakeTimeout:     30 * time.Second,
		WriteTimeout:         10 * time.Second,
		ReconnectBase:        1 * time.Second,
		ReconnectMax:         30 * time.Second,
		MaxReconnectAttempts: 5,
	}
}

func (c *Config) withDefaults() *Config {
	out := *c
	def := DefaultConfig()
	if out.HandshakeTimeout == 0 {
		out.HandshakeTimeout = def.HandshakeTimeout
	}
	if out.WriteTimeout == 0 {
		out.WriteTimeout = def.WriteTimeout
	}
	if out.ReconnectBase == 0 {
		out.ReconnectBase = def.ReconnectBase
	}
	if out.ReconnectMax == 0 {
		out.ReconnectMax = def.ReconnectMax
	}
	if out.MaxReconnectAttempts == 0 {
		out.MaxReconnectAttempts = def.MaxReconnectAttempts
	}
	return &out
}
