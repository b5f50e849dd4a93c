package tradeapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// TestPrepareOrder 测试 prepare 请求与响应解析
func TestPrepareOrder(t *testing.T) {
	var gotBody PrepareRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != EndpointPrepareOrder {
			t.Errorf("意外的请求路径: %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("意外的请求方法: %s", r.Method)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("解析请求体失败: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"pendingOrderId": "abc",
			"typedData": map[string]any{
				"domain":      map[string]any{"name": "exchange", "version": "1", "chainId": "137"},
				"types":       map[string]any{"PendingOrder": []map[string]string{{"name": "orderId", "type": "string"}}},
				"primaryType": "PendingOrder",
				"message":     map[string]any{"orderId": "abc"},
			},
			"expiresAt": time.Now().Add(time.Minute).Format(time.RFC3339),
			"summary":   "BUY 10 @ 0.55",
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	resp, err := c.PrepareOrder(context.Background(), &PrepareRequest{
		TokenID:      "7132107",
		Side:         "BUY",
		Price:        "0.55",
		Size:         "10",
		MakerAddress: "0xmaker",
	})
	if err != nil {
		t.Fatalf("PrepareOrder 失败: %v", err)
	}
	if resp.PendingOrderID != "abc" {
		t.Errorf("pendingOrderId 不匹配: %s", resp.PendingOrderID)
	}
	if resp.TypedData.PrimaryType != "PendingOrder" {
		t.Errorf("primaryType 不匹配: %s", resp.TypedData.PrimaryType)
	}
	if resp.Summary != "BUY 10 @ 0.55" {
		t.Errorf("summary 不匹配: %s", resp.Summary)
	}
	if gotBody.Price != "0.55" || gotBody.Size != "10" {
		t.Errorf("请求体未按字符串传递价格/数量: %+v", gotBody)
	}
}

// TestPrepareOrder_RemoteMessage 测试非 2xx 响应取 message 字段作为错误文本
func TestPrepareOrder_RemoteMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"message":"price out of range"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.PrepareOrder(context.Background(), &PrepareRequest{})
	if err == nil {
		t.Fatal("422 响应应该返回错误")
	}
	if err.Error() != "price out of range" {
		t.Errorf("错误文本应该来自响应体 message 字段: %q", err.Error())
	}
}

// TestPrepareOrder_NoMessageBody 测试响应体没有 message 时退回 HTTP 状态
func TestPrepareOrder_NoMessageBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream exploded"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.PrepareOrder(context.Background(), &PrepareRequest{})
	if err == nil {
		t.Fatal("502 响应应该返回错误")
	}
	if err.Error() != "502 Bad Gateway" {
		t.Errorf("错误文本应该退回 HTTP 状态: %q", err.Error())
	}
}

// TestSubmitOrder 测试 submit 请求转发 pendingOrderId 与签名
func TestSubmitOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != EndpointSubmitOrder {
			t.Errorf("意外的请求路径: %s", r.URL.Path)
		}
		var req SubmitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("解析请求体失败: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(SubmitResponse{
			Success: true,
			OrderID: "ord-" + req.PendingOrderID,
			Message: "order accepted",
			TxHash:  "0xdeadbeef",
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	resp, err := c.SubmitOrder(context.Background(), &SubmitRequest{
		PendingOrderID: "abc",
		Signature:      "0xsig",
	})
	if err != nil {
		t.Fatalf("SubmitOrder 失败: %v", err)
	}
	if !resp.Success {
		t.Error("success 应该为 true")
	}
	if resp.OrderID != "ord-abc" {
		t.Errorf("orderId 不匹配: %s", resp.OrderID)
	}
	if resp.TxHash != "0xdeadbeef" {
		t.Errorf("txHash 不匹配: %s", resp.TxHash)
	}
}

// TestSubmitOrder_ContextCancel 测试取消的 context 直接失败
func TestSubmitOrder_ContextCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(time.Second)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewClient(srv.URL)
	if _, err := c.SubmitOrder(ctx, &SubmitRequest{}); err == nil {
		t.Fatal("已取消的 context 应该返回错误")
	}
}
