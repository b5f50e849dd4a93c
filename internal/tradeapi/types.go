package tradeapi

import (
	"time"

	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// PrepareRequest POST /orders/prepare 请求体
// 价格和数量以字符串传递，服务端按十进制精确解析
type PrepareRequest struct {
	TokenID       string `json:"tokenId"`
	Side          string `json:"side"`
	Price         string `json:"price"`
	Size          string `json:"size"`
	MakerAddress  string `json:"makerAddress"`
	NegRisk       bool   `json:"negRisk"`
	ExpiresInSecs int64  `json:"expiresInSecs,omitempty"`
}

// TypedDataPayload 服务端返回的 EIP-712 结构化签名载荷
type TypedDataPayload struct {
	Domain      apitypes.TypedDataDomain  `json:"domain"`
	Types       apitypes.Types            `json:"types"`
	PrimaryType string                    `json:"primaryType"`
	Message     apitypes.TypedDataMessage `json:"message"`
}

// TypedData 转换为 go-ethereum 的 TypedData 用于签名
func (p *TypedDataPayload) TypedData() apitypes.TypedData {
	return apitypes.TypedData{
		Types:       p.Types,
		PrimaryType: p.PrimaryType,
		Domain:      p.Domain,
		Message:     p.Message,
	}
}

// PrepareResponse POST /orders/prepare 响应体
// PendingOrderID 关联 prepare 和 submit 两个阶段；
// ExpiresAt 过期后该待签订单不再有效，不得再提交
type PrepareResponse struct {
	PendingOrderID string           `json:"pendingOrderId"`
	TypedData      TypedDataPayload `json:"typedData"`
	ExpiresAt      time.Time        `json:"expiresAt"`
	Summary        string           `json:"summary"`
}

// SubmitRequest POST /orders/submit 请求体
type SubmitRequest struct {
	PendingOrderID string `json:"pendingOrderId"`
	Signature      string `json:"signature"`
}

// SubmitResponse POST /orders/submit 响应体
type SubmitResponse struct {
	Success bool   `json:"success"`
	OrderID string `json:"orderId"`
	Message string `json:"message"`
	TxHash  string `json:"txHash,omitempty"`
}
