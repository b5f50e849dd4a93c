package realtime

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// gorillaConn 把 gorilla WebSocket 连接适配成 Conn
// gorilla 不允许并发写，订阅帧的写入需要加锁
type gorillaConn struct {
	ws           *websocket.Conn
	writeTimeout time.Duration
	writeMu      sync.Mutex
}

func (c *gorillaConn) ReadMessage() ([]byte, error) {
	_, data, err := c.ws.ReadMessage()
	return data, err
}

func (c *gorillaConn) WriteJSON(v interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.ws.WriteJSON(v)
}

func (c *gorillaConn) Close() error {
	c.writeMu.Lock()
	// 尽力发送关闭帧，失败也继续关闭
	_ = c.ws.SetWriteDeadline(time.Now().Add(time.Second))
	_ = c.ws.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()
	return c.ws.Close()
}

// gorillaDialer 返回生产环境使用的 WebSocket 拨号器
func gorillaDialer(cfg *Config) Dialer {
	return func(ctx context.Context) (Conn, error) {
		dialer := websocket.Dialer{
			HandshakeTimeout: cfg.HandshakeTimeout,
		}
		if cfg.ProxyURL != "" {
			proxyURL, err := url.Parse(cfg.ProxyURL)
			if err != nil {
				return nil, fmt.Errorf("无效的代理地址: %w", err)
			}
			dialer.Proxy = http.ProxyURL(proxyURL)
		}

		ws, _, err := dialer.DialContext(ctx, cfg.URL, nil)
		if err != nil {
			return nil, fmt.Errorf("连接 %s 失败: %w", cfg.URL, err)
		}
		return &gorillaConn{ws: ws, writeTimeout: cfg.WriteTimeout}, nil
	}
}
