package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/betfollow/gofollow/internal/domain"
	"github.com/betfollow/gofollow/internal/trading"
)

type statusResponse struct {
	Feed             string `json:"feed"`
	ReconnectAttempt int    `json:"reconnect_attempt"`
	MaxReconnects    int    `json:"max_reconnects"`
	Trading          string `json:"trading"`
	TradingError     string `json:"trading_error,omitempty"`
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, statusResponse{
		Feed:             string(s.feed.Status()),
		ReconnectAttempt: s.feed.ReconnectAttempt(),
		MaxReconnects:    s.feed.MaxReconnectAttempts(),
		Trading:          string(s.trader.State()),
		TradingError:     s.trader.Err(),
	})
}

func (s *Server) handleChannels(c *gin.Context) {
	channels := s.feed.Channels()
	if channels == nil {
		channels = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"channels": channels})
}

type createOrderRequest struct {
	TokenID       string `json:"token_id"`
	Side          string `json:"side"`
	Price         string `json:"price"`
	Size          string `json:"size"`
	NegRisk       bool   `json:"neg_risk"`
	ExpiresInSecs int64  `json:"expires_in_secs"`
}

func (s *Server) handleOrderCreate(c *gin.Context) {
	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json body"})
		return
	}

	side, err := domain.ParseSide(req.Side)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	price, err := decimal.NewFromString(req.Price)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid price"})
		return
	}
	size, err := decimal.NewFromString(req.Size)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid size"})
		return
	}

	params := domain.OrderParams{
		TokenID:       req.TokenID,
		Side:          side,
		Price:         price,
		Size:          size,
		NegRisk:       req.NegRisk,
		ExpiresInSecs: req.ExpiresInSecs,
	}

	result := s.trader.PrepareAndSign(c.Request.Context(), params)

	rec := OrderRecord{
		TokenID:   params.TokenID,
		Side:      string(params.Side),
		Price:     params.PriceString(),
		Size:      params.SizeString(),
		CreatedAt: time.Now(),
	}

	if result == nil {
		rec.Status = "error"
		rec.Error = s.trader.Err()
		if _, err := s.insertOrder(c.Request.Context(), rec); err != nil {
			log.Warnf("记录失败订单出错: %v", err)
		}
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"state": string(trading.StateError),
			"error": rec.Error,
		})
		return
	}

	rec.Status = "success"
	rec.OrderID = result.OrderID
	rec.TxHash = result.TxHash
	id, err := s.insertOrder(c.Request.Context(), rec)
	if err != nil {
		log.Warnf("记录成功订单出错: %v", err)
	}
	c.JSON(http.StatusCreated, gin.H{
		"id":       id,
		"state":    string(trading.StateSuccess),
		"order_id": result.OrderID,
		"tx_hash":  result.TxHash,
		"message":  result.Message,
	})
}

func (s *Server) handleOrdersList(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	orders, err := s.listOrders(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if orders == nil {
		orders = []OrderRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

func (s *Server) handleOrderReset(c *gin.Context) {
	s.trader.Reset()
	c.JSON(http.StatusOK, gin.H{"state": string(s.trader.State())})
}
