package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"tonbuy-alerts/internal/domain"
	"tonbuy-alerts/internal/storage"
)

// BuyEventStore implements storage.BuyEventStore using ClickHouse.
// Re-dispatches of the same (token, pair, tx, leg) collapse under ReplacingMergeTree.
type BuyEventStore struct {
	conn *Conn
}

// NewBuyEventStore creates a new BuyEventStore.
func NewBuyEventStore(conn *Conn) *BuyEventStore {
	return &BuyEventStore{conn: conn}
}

// Compile-time interface check.
var _ storage.BuyEventStore = (*BuyEventStore)(nil)

// Insert appends one dispatched buy.
func (s *BuyEventStore) Insert(ctx context.Context, e *domain.BuyEvent) error {
	if e == nil {
		return storage.ErrInvalidInput
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO buy_events (
			pair_id, symbol, token_address, buyer, tx_hash, seq, leg,
			base_amount, token_amount, source, holder, detected_at
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	err = batch.Append(
		e.PairID, e.Symbol, e.TokenAddress, e.Buyer, e.TxHash, e.Seq, uint16(e.Leg),
		e.BaseAmount, e.TokenAmount, string(e.Source), string(e.Holder), e.DetectedAt,
	)
	if err != nil {
		return fmt.Errorf("append to batch: %w", err)
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// Summary aggregates buys per token since the given time, ordered by base volume DESC.
func (s *BuyEventStore) Summary(ctx context.Context, since time.Time, limit int) ([]storage.BuyStat, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT
			token_address,
			any(symbol),
			count(),
			uniqExact(buyer),
			sum(base_amount),
			max(detected_at)
		FROM buy_events FINAL
		WHERE detected_at >= ?
		GROUP BY token_address
		ORDER BY sum(base_amount) DESC, token_address ASC
		LIMIT ?
	`

	rows, err := s.conn.Query(ctx, query, since, uint64(limit))
	if err != nil {
		return nil, fmt.Errorf("query summary: %w", err)
	}
	defer rows.Close()

	var out []storage.BuyStat
	for rows.Next() {
		var (
			st     storage.BuyStat
			volume decimal.Decimal
		)
		if err := rows.Scan(&st.TokenAddress, &st.Symbol, &st.Buys, &st.UniqueBuyers, &volume, &st.LastBuyAt); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		st.BaseVolume = volume
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate summary: %w", err)
	}
	return out, nil
}
