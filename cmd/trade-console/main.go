package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/betfollow/gofollow/internal/domain"
	"github.com/betfollow/gofollow/internal/realtime"
	"github.com/betfollow/gofollow/internal/tradeapi"
	"github.com/betfollow/gofollow/internal/trading"
	"github.com/betfollow/gofollow/pkg/config"
	"github.com/betfollow/gofollow/pkg/logger"
	"github.com/betfollow/gofollow/pkg/wallet"
)

var (
	configPath = flag.String("config", os.Getenv("CONFIG_FILE"), "配置文件路径 (yaml/json)")
	tokenID    = flag.String("token", "", "下单的 token id")
	priceStr   = flag.String("price", "0.50", "样例订单价格 (0-1)")
	sizeStr    = flag.String("size", "5", "样例订单数量")
)

// 样式定义
var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	connectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("2")) // 绿色

	connectingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("3")) // 黄色

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("1")) // 红色

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	borderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238")).
			Padding(0, 1)
)

// 最近一条行情帧（订阅回调和 TUI 不在同一 goroutine）
var (
	lastFrame   string
	lastFrameAt time.Time
	lastFrameMu sync.RWMutex
)

// tickMsg 定时刷新
type tickMsg time.Time

// orderDoneMsg 一次下单流程结束
type orderDoneMsg struct {
	result *trading.Result
	errMsg string
}

type model struct {
	manager *realtime.Manager
	coord   *trading.Coordinator

	tokenID string
	price   decimal.Decimal
	size    decimal.Decimal

	inFlight bool
	lastLine string
}

func tickCmd() tea.Cmd {
	return tea.Tick(250*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) Init() tea.Cmd {
	return tickCmd()
}

func (m model) placeOrder(side domain.Side) tea.Cmd {
	params := domain.OrderParams{
		TokenID: m.tokenID,
		Side:    side,
		Price:   m.price,
		Size:    m.size,
	}
	coord := m.coord
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
		defer cancel()
		result := coord.PrepareAndSign(ctx, params)
		if result == nil {
			return orderDoneMsg{errMsg: coord.Err()}
		}
		return orderDoneMsg{result: result}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "b":
			if !m.inFlight {
				m.inFlight = true
				m.lastLine = "下单中 (buy)..."
				return m, m.placeOrder(domain.SideBuy)
			}
		case "s":
			if !m.inFlight {
				m.inFlight = true
				m.lastLine = "下单中 (sell)..."
				return m, m.placeOrder(domain.SideSell)
			}
		case "r":
			if !m.inFlight {
				m.coord.Reset()
				m.lastLine = "已重置"
			}
		}

	case orderDoneMsg:
		m.inFlight = false
		if msg.errMsg != "" {
			m.lastLine = "失败: " + msg.errMsg
		} else {
			m.lastLine = fmt.Sprintf("成功: orderId=%s tx=%s", msg.result.OrderID, msg.result.TxHash)
		}

	case tickMsg:
		return m, tickCmd()
	}
	return m, nil
}

func (m model) View() string {
	var b strings.Builder

	b.WriteString(headerStyle.Render("跟单控制台"))
	b.WriteString("\n\n")

	// 连接状态徽标
	var badge string
	switch m.manager.Status() {
	case realtime.StatusConnected:
		badge = connectedStyle.Render("● 已连接")
	case realtime.StatusConnecting:
		badge = connectingStyle.Render(fmt.Sprintf("◌ 连接中 (%d/%d)",
			m.manager.ReconnectAttempt(), m.manager.MaxReconnectAttempts()))
	case realtime.StatusError:
		badge = errorStyle.Render("✗ 连接失败（重连已耗尽）")
	default:
		badge = dimStyle.Render("○ 未连接")
	}
	b.WriteString("行情: " + badge + "\n")

	// 签名状态
	state := m.coord.State()
	line := "下单: " + string(state)
	if state == trading.StateError {
		line += "  " + errorStyle.Render(m.coord.Err())
	}
	b.WriteString(line + "\n")

	// 最近一条行情
	lastFrameMu.RLock()
	frame, at := lastFrame, lastFrameAt
	lastFrameMu.RUnlock()
	if frame != "" {
		b.WriteString(dimStyle.Render(fmt.Sprintf("[%s] %s", at.Format("15:04:05"), frame)) + "\n")
	}

	if m.lastLine != "" {
		b.WriteString("\n" + m.lastLine + "\n")
	}

	form := fmt.Sprintf("token=%s  price=%s  size=%s", m.tokenID, m.price.String(), m.size.String())
	b.WriteString("\n" + borderStyle.Render(form) + "\n")
	b.WriteString(dimStyle.Render("b 买入  s 卖出  r 重置  q 退出") + "\n")

	return b.String()
}

func main() {
	_ = godotenv.Load()
	flag.Parse()

	// TUI 模式下日志只进文件，避免污染终端
	if err := logger.Init(logger.Config{Level: "info", OutputFile: "logs/trade-console.log"}); err != nil {
		log.Fatalf("初始化日志失败: %v", err)
	}

	cfg, err := config.LoadFromFile(*configPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	if *tokenID == "" {
		log.Fatal("需要指定 -token")
	}

	price, err := decimal.NewFromString(*priceStr)
	if err != nil {
		log.Fatalf("非法价格: %v", err)
	}
	size, err := decimal.NewFromString(*sizeStr)
	if err != nil {
		log.Fatalf("非法数量: %v", err)
	}

	var signer wallet.Signer
	if cfg.Wallet.PrivateKey != "" {
		s, err := wallet.NewLocalSigner(cfg.Wallet.PrivateKey)
		if err != nil {
			log.Fatalf("加载钱包失败: %v", err)
		}
		signer = s
	}

	manager := realtime.NewManager(&realtime.Config{
		URL:                  cfg.Realtime.URL,
		ProxyURL:             cfg.Realtime.ProxyURL,
		ReconnectBase:        cfg.Realtime.ReconnectBase,
		ReconnectMax:         cfg.Realtime.ReconnectMax,
		MaxReconnectAttempts: cfg.Realtime.MaxReconnectAttempts,
	})

	// 订阅下单标的的价格频道，在控制台顶部滚动展示
	unsub := manager.Subscribe("prices:"+*tokenID, func(msg *realtime.Message) {
		lastFrameMu.Lock()
		lastFrame = compact(msg.Data, 100)
		lastFrameAt = time.Now()
		lastFrameMu.Unlock()
	})
	defer unsub()

	api := tradeapi.NewClient(cfg.TradeAPI.BaseURL).WithTimeout(cfg.TradeAPI.Timeout)
	coord := trading.NewCoordinator(api, signer)

	m := model{
		manager: manager,
		coord:   coord,
		tokenID: *tokenID,
		price:   price,
		size:    size,
	}

	p := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		log.Fatalf("TUI 运行失败: %v", err)
	}
}

func compact(data []byte, max int) string {
	s := strings.Join(strings.Fields(string(data)), " ")
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
