package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Side 订单方向
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// ParseSide 解析订单方向（大小写不敏感）
func ParseSide(s string) (Side, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BUY":
		return SideBuy, nil
	case "SELL":
		return SideSell, nil
	default:
		return "", fmt.Errorf("无效的订单方向: %q", s)
	}
}

// IsValid 检查订单方向是否合法
func (s Side) IsValid() bool {
	return s == SideBuy || s == SideSell
}

// OrderParams 下单参数（prepare 阶段的输入）
// 价格和数量使用 decimal 表示，避免浮点误差进入请求体
type OrderParams struct {
	TokenID       string          // 资产 token ID
	Side          Side            // 订单方向
	Price         decimal.Decimal // 限价（0 < price < 1）
	Size          decimal.Decimal // 数量（> 0）
	NegRisk       bool            // 是否为负风险市场
	ExpiresInSecs int64           // 服务端准备订单的有效期窗口（秒），0 表示使用服务端默认值
}

var (
	priceMin = decimal.Zero
	priceMax = decimal.NewFromInt(1)
)

// Validate 校验下单参数
// 预测市场的份额价格是隐含概率，必须严格落在 (0, 1) 开区间内
func (p *OrderParams) Validate() error {
	if strings.TrimSpace(p.TokenID) == "" {
		return fmt.Errorf("token ID 不能为空")
	}
	if !p.Side.IsValid() {
		return fmt.Errorf("无效的订单方向: %q", string(p.Side))
	}
	if p.Price.Cmp(priceMin) <= 0 || p.Price.Cmp(priceMax) >= 0 {
		return fmt.Errorf("价格必须在 (0, 1) 区间内: %s", p.Price.String())
	}
	if p.Size.Sign() <= 0 {
		return fmt.Errorf("数量必须大于 0: %s", p.Size.String())
	}
	if p.ExpiresInSecs < 0 {
		return fmt.Errorf("有效期窗口不能为负: %d", p.ExpiresInSecs)
	}
	return nil
}

// PriceString 返回规整后的价格字符串（请求体使用）
func (p *OrderParams) PriceString() string {
	return p.Price.String()
}

// SizeString 返回规整后的数量字符串（请求体使用）
func (p *OrderParams) SizeString() string {
	return p.Size.String()
}
