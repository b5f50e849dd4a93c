package server

import (
	"context"
	"time"
)

// OrderRecord 一条下单历史
type OrderRecord struct {
	ID        int64     `json:"id"`
	TokenID   string    `json:"token_id"`
	Side      string    `json:"side"`
	Price     string    `json:"price"`
	Size      string    `json:"size"`
	Status    string    `json:"status"`
	OrderID   string    `json:"order_id,omitempty"`
	TxHash    string    `json:"tx_hash,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *Server) insertOrder(ctx context.Context, rec OrderRecord) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
INSERT INTO orders (token_id,side,price,size,status,order_id,tx_hash,error,created_at)
VALUES (?,?,?,?,?,?,?,?,?)
`, rec.TokenID, rec.Side, rec.Price, rec.Size, rec.Status, rec.OrderID, rec.TxHash, rec.Error,
		rec.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *Server) listOrders(ctx context.Context, limit int) ([]OrderRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id,token_id,side,price,size,status,order_id,tx_hash,error,created_at
FROM orders ORDER BY id DESC LIMIT ?
`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []OrderRecord
	for rows.Next() {
		var rec OrderRecord
		var created string
		if err := rows.Scan(&rec.ID, &rec.TokenID, &rec.Side, &rec.Price, &rec.Size,
			&rec.Status, &rec.OrderID, &rec.TxHash, &rec.Error, &created); err != nil {
			return nil, err
		}
		rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, rec)
	}
	return out, rows.Err()
}
