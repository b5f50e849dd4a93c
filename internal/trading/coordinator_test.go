package trading

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	pkgerrors "github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/betfollow/gofollow/internal/domain"
	"github.com/betfollow/gofollow/internal/tradeapi"
	"github.com/betfollow/gofollow/pkg/wallet"
)

// fakeAPI 可编程的 prepare/submit 后端
type fakeAPI struct {
	mu           sync.Mutex
	prepareCalls int
	submitCalls  int
	prepareFn    func(req *tradeapi.PrepareRequest) (*tradeapi.PrepareResponse, error)
	submitFn     func(req *tradeapi.SubmitRequest) (*tradeapi.SubmitResponse, error)
}

func (f *fakeAPI) PrepareOrder(ctx context.Context, req *tradeapi.PrepareRequest) (*tradeapi.PrepareResponse, error) {
	f.mu.Lock()
	f.prepareCalls++
	f.mu.Unlock()
	if f.prepareFn != nil {
		return f.prepareFn(req)
	}
	return preparedResponse("abc"), nil
}

func (f *fakeAPI) SubmitOrder(ctx context.Context, req *tradeapi.SubmitRequest) (*tradeapi.SubmitResponse, error) {
	f.mu.Lock()
	f.submitCalls++
	f.mu.Unlock()
	if f.submitFn != nil {
		return f.submitFn(req)
	}
	return &tradeapi.SubmitResponse{Success: true, OrderID: "ord-" + req.PendingOrderID, Message: "accepted"}, nil
}

func (f *fakeAPI) calls() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.prepareCalls, f.submitCalls
}

func preparedResponse(pendingID string) *tradeapi.PrepareResponse {
	return &tradeapi.PrepareResponse{
		PendingOrderID: pendingID,
		TypedData: tradeapi.TypedDataPayload{
			Types: apitypes.Types{
				"EIP712Domain": {
					{Name: "name", Type: "string"},
					{Name: "version", Type: "string"},
				},
				"PendingOrder": {
					{Name: "orderId", Type: "string"},
				},
			},
			PrimaryType: "PendingOrder",
			Domain:      apitypes.TypedDataDomain{Name: "exchange", Version: "1"},
			Message:     apitypes.TypedDataMessage{"orderId": pendingID},
		},
		ExpiresAt: time.Now().Add(time.Minute),
		Summary:   "BUY 10 @ 0.55",
	}
}

// fakeSigner 可编程的钱包签名器
type fakeSigner struct {
	connected bool
	signFn    func(td apitypes.TypedData) (string, error)
}

func (s *fakeSigner) Address() common.Address {
	return common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
}

func (s *fakeSigner) IsConnected() bool { return s.connected }

func (s *fakeSigner) SignTypedData(td apitypes.TypedData) (string, error) {
	if s.signFn != nil {
		return s.signFn(td)
	}
	return "0xsignature", nil
}

func buyParams() domain.OrderParams {
	return domain.OrderParams{
		TokenID:       "7132107",
		Side:          domain.SideBuy,
		Price:         decimal.RequireFromString("0.55"),
		Size:          decimal.RequireFromString("10"),
		ExpiresInSecs: 60,
	}
}

// TestPrepareAndSign_FullFlow 测试完整成功路径的状态推进顺序
func TestPrepareAndSign_FullFlow(t *testing.T) {
	api := &fakeAPI{}
	signer := &fakeSigner{connected: true}
	c := NewCoordinator(api, signer)

	var states []State
	api.prepareFn = func(req *tradeapi.PrepareRequest) (*tradeapi.PrepareResponse, error) {
		states = append(states, c.State()) // preparing
		if req.Side != "BUY" || req.Price != "0.55" || req.Size != "10" {
			t.Errorf("prepare 请求参数不正确: %+v", req)
		}
		if req.MakerAddress != signer.Address().Hex() {
			t.Errorf("maker 地址应该来自钱包: %s", req.MakerAddress)
		}
		return preparedResponse("abc"), nil
	}
	signer.signFn = func(td apitypes.TypedData) (string, error) {
		states = append(states, c.State()) // awaiting_signature
		return "0xsignature", nil
	}
	api.submitFn = func(req *tradeapi.SubmitRequest) (*tradeapi.SubmitResponse, error) {
		states = append(states, c.State()) // submitting
		if req.PendingOrderID != "abc" {
			t.Errorf("submit 应该携带 prepare 返回的 pendingOrderId: %s", req.PendingOrderID)
		}
		if req.Signature != "0xsignature" {
			t.Errorf("submit 应该携带钱包签名: %s", req.Signature)
		}
		return &tradeapi.SubmitResponse{Success: true, OrderID: "ord-abc", TxHash: "0xdead"}, nil
	}

	if got := c.State(); got != StateIdle {
		t.Fatalf("初始状态应该是 idle, 实际: %s", got)
	}

	result := c.PrepareAndSign(context.Background(), buyParams())
	if result == nil {
		t.Fatalf("成功路径不应该返回 nil (err=%s)", c.Err())
	}
	states = append(states, c.State()) // success

	want := []State{StatePreparing, StateAwaitingSignature, StateSubmitting, StateSuccess}
	if len(states) != len(want) {
		t.Fatalf("状态序列长度不匹配: %v", states)
	}
	for i, s := range want {
		if states[i] != s {
			t.Errorf("状态序列[%d] = %s, 期望 %s", i, states[i], s)
		}
	}

	if result.OrderID != "ord-abc" {
		t.Errorf("orderId 不匹配: %s", result.OrderID)
	}
	if result.TxHash != "0xdead" {
		t.Errorf("txHash 不匹配: %s", result.TxHash)
	}
	if c.Err() != "" {
		t.Errorf("成功路径不应该有错误文本: %s", c.Err())
	}
}

// TestPrepareAndSign_NoWallet 测试钱包未连接时不发任何网络请求
func TestPrepareAndSign_NoWallet(t *testing.T) {
	for name, signer := range map[string]wallet.Signer{
		"nil signer": nil,
		"未连接":        &fakeSigner{connected: false},
	} {
		api := &fakeAPI{}
		c := NewCoordinator(api, signer)

		result := c.PrepareAndSign(context.Background(), buyParams())
		if result != nil {
			t.Errorf("%s: 应该返回 nil", name)
		}
		if c.State() != StateError {
			t.Errorf("%s: 状态应该是 error, 实际: %s", name, c.State())
		}
		if c.Err() != "Wallet not connected" {
			t.Errorf("%s: 错误文本不正确: %q", name, c.Err())
		}
		prepares, submits := api.calls()
		if prepares != 0 || submits != 0 {
			t.Errorf("%s: 不应该发出网络请求 (prepare=%d submit=%d)", name, prepares, submits)
		}
	}
}

// TestPrepareAndSign_SignatureRejected 测试用户拒绝签名的错误文案
func TestPrepareAndSign_SignatureRejected(t *testing.T) {
	api := &fakeAPI{}
	signer := &fakeSigner{
		connected: true,
		signFn: func(td apitypes.TypedData) (string, error) {
			// 模拟钱包扩展返回的原始错误（外层包了一层）
			return "", pkgerrors.Wrap(wallet.ErrRejected, "MetaMask Tx Signature")
		},
	}
	c := NewCoordinator(api, signer)

	result := c.PrepareAndSign(context.Background(), buyParams())
	if result != nil {
		t.Fatal("拒绝签名应该返回 nil")
	}
	if c.State() != StateError {
		t.Errorf("状态应该是 error, 实际: %s", c.State())
	}
	if c.Err() != "Transaction signature was rejected" {
		t.Errorf("应该使用规整后的拒绝文案而不是原始错误: %q", c.Err())
	}
	_, submits := api.calls()
	if submits != 0 {
		t.Errorf("拒绝签名后不应该调用 submit: %d", submits)
	}
}

// TestPrepareAndSign_RemoteError 测试 prepare 返回 422 时错误文本来自响应体
func TestPrepareAndSign_RemoteError(t *testing.T) {
	api := &fakeAPI{
		prepareFn: func(req *tradeapi.PrepareRequest) (*tradeapi.PrepareResponse, error) {
			// tradeapi 层已把 422 响应体的 message 字段转成了错误文本
			return nil, pkgerrors.New("price out of range")
		},
	}
	c := NewCoordinator(api, &fakeSigner{connected: true})

	result := c.PrepareAndSign(context.Background(), buyParams())
	if result != nil {
		t.Fatal("prepare 失败应该返回 nil")
	}
	if c.State() != StateError {
		t.Errorf("状态应该是 error, 实际: %s", c.State())
	}
	if c.Err() != "price out of range" {
		t.Errorf("错误文本应该原样来自后端: %q", c.Err())
	}
}

// TestPrepareAndSign_Expired 测试过期的待签订单不会被提交
func TestPrepareAndSign_Expired(t *testing.T) {
	api := &fakeAPI{
		prepareFn: func(req *tradeapi.PrepareRequest) (*tradeapi.PrepareResponse, error) {
			resp := preparedResponse("abc")
			resp.ExpiresAt = time.Now().Add(-time.Second)
			return resp, nil
		},
	}
	c := NewCoordinator(api, &fakeSigner{connected: true})

	result := c.PrepareAndSign(context.Background(), buyParams())
	if result != nil {
		t.Fatal("过期订单应该返回 nil")
	}
	if c.State() != StateError {
		t.Errorf("状态应该是 error, 实际: %s", c.State())
	}
	_, submits := api.calls()
	if submits != 0 {
		t.Errorf("过期订单不应该调用 submit: %d", submits)
	}
}

// TestPrepareAndSign_InvalidParams 测试非法参数在发请求前被拦截
func TestPrepareAndSign_InvalidParams(t *testing.T) {
	api := &fakeAPI{}
	c := NewCoordinator(api, &fakeSigner{connected: true})

	params := buyParams()
	params.Price = decimal.RequireFromString("1.5")
	if result := c.PrepareAndSign(context.Background(), params); result != nil {
		t.Fatal("非法参数应该返回 nil")
	}
	if c.State() != StateError {
		t.Errorf("状态应该是 error, 实际: %s", c.State())
	}
	prepares, _ := api.calls()
	if prepares != 0 {
		t.Errorf("非法参数不应该发出 prepare 请求: %d", prepares)
	}
}

// TestReset 测试 Reset 的清理语义和幂等性
func TestReset(t *testing.T) {
	api := &fakeAPI{
		prepareFn: func(req *tradeapi.PrepareRequest) (*tradeapi.PrepareResponse, error) {
			return nil, pkgerrors.New("boom")
		},
	}
	c := NewCoordinator(api, &fakeSigner{connected: true})

	// idle 上的 Reset 是无操作
	c.Reset()
	if c.State() != StateIdle {
		t.Errorf("idle 上 Reset 后状态应该仍是 idle: %s", c.State())
	}

	c.PrepareAndSign(context.Background(), buyParams())
	if c.State() != StateError {
		t.Fatalf("前置失败没有生效: %s", c.State())
	}

	c.Reset()
	if c.State() != StateIdle {
		t.Errorf("Reset 后状态应该是 idle: %s", c.State())
	}
	if c.Err() != "" {
		t.Errorf("Reset 后错误文本应该被清空: %q", c.Err())
	}
	if c.Pending() != nil || c.Submitted() != nil {
		t.Error("Reset 后待签订单和提交结果应该被清空")
	}
}

// TestLateResponseIgnored 测试迟到的响应不会写入已被取代的会话
func TestLateResponseIgnored(t *testing.T) {
	block := make(chan struct{})
	api := &fakeAPI{}
	signer := &fakeSigner{
		connected: true,
		signFn: func(td apitypes.TypedData) (string, error) {
			<-block // 模拟用户在钱包弹窗上停留
			return "0xsignature", nil
		},
	}
	c := NewCoordinator(api, signer)

	done := make(chan *Result, 1)
	go func() {
		done <- c.PrepareAndSign(context.Background(), buyParams())
	}()

	// 等待会话进入等待签名状态，然后放弃它
	deadline := time.Now().Add(2 * time.Second)
	for c.State() != StateAwaitingSignature {
		if time.Now().After(deadline) {
			t.Fatal("等待 awaiting_signature 超时")
		}
		time.Sleep(time.Millisecond)
	}
	c.Reset()

	// 签名此后才完成：旧会话的所有写入都应该被丢弃
	close(block)
	select {
	case result := <-done:
		if result != nil {
			t.Error("被取代的会话应该返回 nil")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("等待会话结束超时")
	}

	if c.State() != StateIdle {
		t.Errorf("迟到的响应不应该改变状态: %s", c.State())
	}
	_, submits := api.calls()
	if submits != 0 {
		t.Errorf("被取代的会话不应该提交订单: %d", submits)
	}
}
