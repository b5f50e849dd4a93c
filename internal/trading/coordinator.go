// Package trading 驱动两段式下单协议：prepare（服务端构造待签订单）→
// 钱包 EIP-712 签名 → submit（携带签名提交）。
// 状态机严格线性推进，任何一步失败都落入 error 态并携带用户可读的错误文本。
package trading

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/betfollow/gofollow/internal/domain"
	"github.com/betfollow/gofollow/internal/tradeapi"
	"github.com/betfollow/gofollow/pkg/wallet"
)

var log = logrus.WithField("component", "trading")

// State 签名会话状态
type State string

const (
	StateIdle              State = "idle"
	StatePreparing         State = "preparing"
	StateAwaitingSignature State = "awaiting_signature"
	StateSubmitting        State = "submitting"
	StateSuccess           State = "success"
	StateError             State = "error"
)

// 对用户展示的错误文案
const (
	errWalletNotConnected = "Wallet not connected"
	errSignatureRejected  = "Transaction signature was rejected"
	errOrderExpired       = "Prepared order has expired"
)

// API prepare/submit 两个后端端点
type API interface {
	PrepareOrder(ctx context.Context, req *tradeapi.PrepareRequest) (*tradeapi.PrepareResponse, error)
	SubmitOrder(ctx context.Context, req *tradeapi.SubmitRequest) (*tradeapi.SubmitResponse, error)
}

// Result 一次成功下单的结果
type Result struct {
	OrderID string
	TxHash  string
	Message string
}

// Coordinator 下单签名协调器
// 同一时刻最多一个会话在途（调用方约定：State 不在 idle/success/error
// 时不要再次调用 PrepareAndSign，协调器本身不做强制）。
// PrepareAndSign 从不向外抛错：失败只体现在返回 nil 和 State()/Err() 上。
type Coordinator struct {
	api    API
	signer wallet.Signer
	now    func() time.Time

	mu        sync.Mutex
	state     State
	errMsg    string
	session   string // 当前会话令牌；迟到的响应据此被丢弃
	pending   *tradeapi.PrepareResponse
	submitted *tradeapi.SubmitResponse
}

// NewCoordinator 创建下单签名协调器
// signer 可以为 nil（表示钱包未连接），此时 PrepareAndSign 直接失败且不发任何网络请求
func NewCoordinator(api API, signer wallet.Signer) *Coordinator {
	return &Coordinator{
		api:    api,
		signer: signer,
		now:    time.Now,
		state:  StateIdle,
	}
}

// State 返回当前会话状态
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err 返回 error 态的用户可读错误文本（非 error 态为空）
func (c *Coordinator) Err() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errMsg
}

// Pending 返回当前会话的待签订单（prepare 响应），没有则为 nil
func (c *Coordinator) Pending() *tradeapi.PrepareResponse {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending
}

// Submitted 返回当前会话的提交结果，没有则为 nil
func (c *Coordinator) Submitted() *tradeapi.SubmitResponse {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.submitted
}

// Reset 清空会话回到 idle
// 在 idle 上调用是无操作。Reset 不取消已发出的网络请求——
// 会话令牌已经换代，迟到的响应会被丢弃
func (c *Coordinator) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateIdle {
		return
	}
	c.state = StateIdle
	c.errMsg = ""
	c.session = ""
	c.pending = nil
	c.submitted = nil
}

// PrepareAndSign 执行完整的下单协议
// 状态推进：idle → preparing → awaiting_signature → submitting → success，
// 任何一步失败直接转入 error。失败时返回 nil，不抛出异常，
// 调用方不需要（也不应该）在外面包 try/catch 式的错误处理。
func (c *Coordinator) PrepareAndSign(ctx context.Context, params domain.OrderParams) *Result {
	token := uuid.NewString()

	// 前置条件：钱包已连接。不满足时不发出任何网络请求
	if c.signer == nil || !c.signer.IsConnected() {
		c.mu.Lock()
		c.session = token
		c.pending = nil
		c.submitted = nil
		c.mu.Unlock()
		c.fail(token, errWalletNotConnected)
		return nil
	}

	if err := params.Validate(); err != nil {
		c.mu.Lock()
		c.session = token
		c.pending = nil
		c.submitted = nil
		c.mu.Unlock()
		c.fail(token, err.Error())
		return nil
	}

	c.mu.Lock()
	c.session = token
	c.state = StatePreparing
	c.errMsg = ""
	c.pending = nil
	c.submitted = nil
	c.mu.Unlock()

	// 第一步：prepare，换取待签订单和 EIP-712 载荷
	prepared, err := c.api.PrepareOrder(ctx, &tradeapi.PrepareRequest{
		TokenID:       params.TokenID,
		Side:          string(params.Side),
		Price:         params.PriceString(),
		Size:          params.SizeString(),
		MakerAddress:  c.signer.Address().Hex(),
		NegRisk:       params.NegRisk,
		ExpiresInSecs: params.ExpiresInSecs,
	})
	if err != nil {
		c.fail(token, err.Error())
		return nil
	}

	if !c.advance(token, StateAwaitingSignature, func() { c.pending = prepared }) {
		return nil
	}
	log.Debugf("待签订单已就绪: %s (%s)", prepared.PendingOrderID, prepared.Summary)

	// 第二步：请求钱包对结构化数据签名（可能被用户拒绝，也可能无限期等待）
	signature, err := c.signer.SignTypedData(prepared.TypedData.TypedData())
	if err != nil {
		if wallet.IsRejected(err) {
			c.fail(token, errSignatureRejected)
		} else {
			c.fail(token, err.Error())
		}
		return nil
	}

	// 本地过期检查：服务端同样会校验，这里提前拦截避免白跑一次提交
	if !prepared.ExpiresAt.IsZero() && c.now().After(prepared.ExpiresAt) {
		c.fail(token, errOrderExpired)
		return nil
	}

	if !c.advance(token, StateSubmitting, nil) {
		return nil
	}

	// 第三步：submit，签名与 pendingOrderId 一一对应，不会跨会话复用
	submitted, err := c.api.SubmitOrder(ctx, &tradeapi.SubmitRequest{
		PendingOrderID: prepared.PendingOrderID,
		Signature:      signature,
	})
	if err != nil {
		c.fail(token, err.Error())
		return nil
	}

	if !c.advance(token, StateSuccess, func() { c.submitted = submitted }) {
		return nil
	}
	log.Infof("订单已提交: orderId=%s txHash=%s", submitted.OrderID, submitted.TxHash)

	return &Result{
		OrderID: submitted.OrderID,
		TxHash:  submitted.TxHash,
		Message: submitted.Message,
	}
}

// advance 推进状态，附带可选的状态内写入
// 会话令牌不匹配说明本会话已被新会话取代（或被 Reset），写入被丢弃
func (c *Coordinator) advance(token string, next State, apply func()) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != token {
		log.Debugf("丢弃过期会话的状态推进: %s", next)
		return false
	}
	c.state = next
	if apply != nil {
		apply()
	}
	return true
}

// fail 把本会话转入 error 态
func (c *Coordinator) fail(token, msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != token {
		log.Debugf("丢弃过期会话的错误: %s", msg)
		return
	}
	c.state = StateError
	c.errMsg = msg
	log.Warnf("下单失败: %s", msg)
}
