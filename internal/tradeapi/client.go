// Package tradeapi 封装交易后端的 REST 接口（prepare / submit 两段式下单）
package tradeapi

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	EndpointPrepareOrder = "/orders/prepare"
	EndpointSubmitOrder  = "/orders/submit"
)

var log = logrus.WithField("component", "tradeapi")

// Client 交易后端 REST 客户端
type Client struct {
	http *resty.Client
}

// NewClient 创建交易后端客户端
// resty 会自动从环境变量读取代理配置（HTTP_PROXY / HTTPS_PROXY）
func NewClient(host string) *Client {
	host = strings.TrimSuffix(host, "/")

	client := resty.New().
		SetBaseURL(host).
		SetTimeout(30 * time.Second).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "gofollow-client/1.0").
		SetRetryAfter(func(client *resty.Client, resp *resty.Response) (time.Duration, error) {
			// 429 限流时优先使用 Retry-After 头
			if resp.StatusCode() == 429 {
				if retryAfter := resp.Header().Get("Retry-After"); retryAfter != "" {
					if d, err := time.ParseDuration(retryAfter + "s"); err == nil {
						return d, nil
					}
				}
				return 10 * time.Second, nil
			}
			return 0, nil
		})

	return &Client{http: client}
}

// WithTimeout 覆盖默认的请求超时
func (c *Client) WithTimeout(d time.Duration) *Client {
	if d > 0 {
		c.http.SetTimeout(d)
	}
	return c
}

// PrepareOrder 调用 prepare 端点，换取待签订单与 EIP-712 载荷
func (c *Client) PrepareOrder(ctx context.Context, req *PrepareRequest) (*PrepareResponse, error) {
	var out PrepareResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(req).
		SetResult(&out).
		Post(EndpointPrepareOrder)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "prepare 请求失败")
	}
	if !resp.IsSuccess() {
		return nil, remoteError(resp)
	}

	log.Debugf("prepare 成功: pendingOrderId=%s expiresAt=%s", out.PendingOrderID, out.ExpiresAt)
	return &out, nil
}

// SubmitOrder 调用 submit 端点，提交签名后的订单
func (c *Client) SubmitOrder(ctx context.Context, req *SubmitRequest) (*SubmitResponse, error) {
	var out SubmitResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(req).
		SetResult(&out).
		Post(EndpointSubmitOrder)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "submit 请求失败")
	}
	if !resp.IsSuccess() {
		return nil, remoteError(resp)
	}

	log.Debugf("submit 成功: orderId=%s success=%v", out.OrderID, out.Success)
	return &out, nil
}

// remoteError 把非 2xx 响应转换为错误
// 优先取响应体的 message 字段，取不到时退回 HTTP 状态文本
func remoteError(resp *resty.Response) error {
	var body struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(resp.Body(), &body); err == nil && strings.TrimSpace(body.Message) != "" {
		return pkgerrors.New(body.Message)
	}
	return pkgerrors.New(resp.Status())
}
