// Package realtime 维护到行情推送服务的单条 WebSocket 连接，
// 把服务端按频道推送的消息分发给各自的订阅回调，并在掉线后按指数退避自动重连。
package realtime

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("component", "realtime")

// listener 单个频道回调的注册记录
type listener struct {
	id int
	fn MessageFunc
}

// Manager 频道管理器
// 所有频道共享一条底层连接；第一个订阅者触发拨号，最后一个订阅者退订时关闭连接。
// 传输层错误从不抛给调用方，只通过 Status() 反映。
type Manager struct {
	cfg  *Config
	dial Dialer

	// 连接状态（mu 保护）
	mu      sync.Mutex
	conn    Conn
	status  Status
	attempt int
	running bool
	gen     int // 连接代号，teardown 时递增用于丢弃过期 goroutine 的写入
	stopCh  chan struct{}

	// 订阅注册表（listenersMu 保护）
	// 分发时持读锁执行回调，退订拿写锁，因此退订返回后不会再有回调被调用
	listenersMu sync.RWMutex
	listeners   map[string][]*listener
	nextID      int
}

// NewManager 创建频道管理器
func NewManager(cfg *Config) *Manager {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	cfg = cfg.withDefaults()

	dial := cfg.Dialer
	if dial == nil {
		dial = gorillaDialer(cfg)
	}

	return &Manager{
		cfg:       cfg,
		dial:      dial,
		status:    StatusDisconnected,
		listeners: make(map[string][]*listener),
	}
}

// Status 返回当前连接状态
// 复用同一条连接的所有频道报告同一个值
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// ReconnectAttempt 返回当前重连尝试计数（连接成功后归零）
// UI 用它渲染 "Reconnecting (2/5)..." 这类提示
func (m *Manager) ReconnectAttempt() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempt
}

// MaxReconnectAttempts 返回配置的最大重连次数
func (m *Manager) MaxReconnectAttempts() int {
	return m.cfg.MaxReconnectAttempts
}

// Channels 返回当前有订阅者的频道列表（排序后）
func (m *Manager) Channels() []string {
	m.listenersMu.RLock()
	defer m.listenersMu.RUnlock()
	channels := make([]string, 0, len(m.listeners))
	for ch, ls := range m.listeners {
		if len(ls) > 0 {
			channels = append(channels, ch)
		}
	}
	sort.Strings(channels)
	return channels
}

// Subscribe 注册一个频道回调，返回退订函数
// 没有活跃连接时发起拨号（包括上一轮重连耗尽进入 StatusError 之后——
// 重新订阅会重置计数并重新开始拨号周期）。
// 退订函数把回调移除；若它是整个管理器的最后一个订阅者，同时关闭底层连接。
func (m *Manager) Subscribe(channel string, fn MessageFunc) (unsubscribe func()) {
	m.listenersMu.Lock()
	m.nextID++
	l := &listener{id: m.nextID, fn: fn}
	newChannel := len(m.listeners[channel]) == 0
	m.listeners[channel] = append(m.listeners[channel], l)
	m.listenersMu.Unlock()

	m.mu.Lock()
	if !m.running {
		m.running = true
		m.gen++
		m.attempt = 0
		m.status = StatusConnecting
		m.stopCh = make(chan struct{})
		go m.run(m.gen, m.stopCh)
	} else if newChannel && m.status == StatusConnected && m.conn != nil {
		// 已连接时为新频道补发订阅帧
		if err := m.conn.WriteJSON(subscriptionRequest{Action: ActionSubscribe, Channels: []string{channel}}); err != nil {
			log.Warnf("发送订阅帧失败: %v", err)
		}
	}
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.removeListener(channel, l.id)
		})
	}
}

// removeListener 移除回调；必要时退订频道、关闭连接
func (m *Manager) removeListener(channel string, id int) {
	m.listenersMu.Lock()
	ls := m.listeners[channel]
	for i, l := range ls {
		if l.id == id {
			m.listeners[channel] = append(ls[:i], ls[i+1:]...)
			break
		}
	}
	channelEmpty := len(m.listeners[channel]) == 0
	if channelEmpty {
		delete(m.listeners, channel)
	}
	remaining := 0
	for _, ls := range m.listeners {
		remaining += len(ls)
	}
	m.listenersMu.Unlock()

	if remaining == 0 {
		m.teardown()
		return
	}

	if channelEmpty {
		m.mu.Lock()
		if m.status == StatusConnected && m.conn != nil {
			if err := m.conn.WriteJSON(subscriptionRequest{Action: ActionUnsubscribe, Channels: []string{channel}}); err != nil {
				log.Warnf("发送退订帧失败: %v", err)
			}
		}
		m.mu.Unlock()
	}
}

// teardown 最后一个订阅者退订后关闭传输连接
func (m *Manager) teardown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}
	m.running = false
	m.gen++
	close(m.stopCh)
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
	m.status = StatusDisconnected
	m.attempt = 0
	log.Debug("最后一个订阅者已退订，连接已关闭")
}

// run 连接生命周期主循环：拨号 → 读取 → 掉线重拨
// 每次 teardown 都会换代（gen），过期循环发现代号不匹配后自行退出
func (m *Manager) run(gen int, stop chan struct{}) {
	for {
		ctx, cancel := context.WithTimeout(context.Background(), m.cfg.HandshakeTimeout)
		conn, err := m.dial(ctx)
		cancel()

		m.mu.Lock()
		if gen != m.gen {
			m.mu.Unlock()
			if conn != nil {
				_ = conn.Close()
			}
			return
		}

		if err != nil {
			if m.attempt >= m.cfg.MaxReconnectAttempts {
				// 重连耗尽：终态 error，不再自动尝试
				m.status = StatusError
				m.running = false
				m.mu.Unlock()
				log.Errorf("重连 %d 次全部失败，停止尝试: %v", m.cfg.MaxReconnectAttempts, err)
				return
			}
			m.attempt++
			attempt := m.attempt
			m.mu.Unlock()

			delay := backoffDelay(m.cfg.ReconnectBase, m.cfg.ReconnectMax, attempt)
			log.Warnf("连接失败 (%d/%d)，%v 后重试: %v", attempt, m.cfg.MaxReconnectAttempts, delay, err)
			select {
			case <-stop:
				return
			case <-time.After(delay):
			}
			continue
		}

		m.conn = conn
		m.status = StatusConnected
		m.attempt = 0
		m.mu.Unlock()

		m.sendSubscriptions(conn)
		log.Info("连接已建立")

		m.readLoop(conn, stop)

		m.mu.Lock()
		if gen != m.gen {
			m.mu.Unlock()
			return
		}
		// 掉线（非主动断开）：立即重拨，失败后进入退避
		m.conn = nil
		m.status = StatusConnecting
		m.mu.Unlock()
		log.Warn("连接断开，开始重连")
	}
}

// backoffDelay 第 attempt 次重试前的退避延迟（attempt 从 1 开始）
// base × 2^(attempt-1)，不超过 max
func backoffDelay(base, max time.Duration, attempt int) time.Duration {
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}

// sendSubscriptions 连接建立后（重）发全部活跃频道的订阅帧
func (m *Manager) sendSubscriptions(conn Conn) {
	m.listenersMu.RLock()
	channels := make([]string, 0, len(m.listeners))
	for ch := range m.listeners {
		channels = append(channels, ch)
	}
	m.listenersMu.RUnlock()

	if len(channels) == 0 {
		return
	}
	if err := conn.WriteJSON(subscriptionRequest{Action: ActionSubscribe, Channels: channels}); err != nil {
		log.Warnf("发送订阅帧失败: %v", err)
	}
}

// readLoop 持续读取并分发，直到连接出错或管理器关闭
func (m *Manager) readLoop(conn Conn, stop chan struct{}) {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-stop:
			default:
				log.Debugf("读取失败: %v", err)
			}
			return
		}
		m.dispatch(data)
	}
}

// dispatch 解码一帧并按频道分发
// 解码失败只丢弃该帧，不中断连接；回调按注册顺序同步调用，单个回调
// panic 不影响后续回调
func (m *Manager) dispatch(data []byte) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Debugf("丢弃无法解析的帧 (len=%d): %v", len(data), err)
		return
	}
	if msg.Channel == "" {
		return
	}

	m.listenersMu.RLock()
	defer m.listenersMu.RUnlock()
	for _, l := range m.listeners[msg.Channel] {
		invoke(l, &msg)
	}
}

// invoke 单个回调的隔离执行
func invoke(l *listener, msg *Message) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("频道 %s 的回调 panic: %v", msg.Channel, r)
		}
	}()
	l.fn(msg)
}
