package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/roundbot/internal/domain"
)

// ClosedPositionStore implements domain.ClosedPositionStore.
type ClosedPositionStore struct {
	pool *pgxpool.Pool
}

// NewClosedPositionStore creates a store backed by the given pool.
func NewClosedPositionStore(pool *pgxpool.Pool) *ClosedPositionStore {
	return &ClosedPositionStore{pool: pool}
}

const closedSelectCols = `id, asset, condition_id, round_slot, direction, token_id,
	strategy_name, entry_price, exit_price, shares, cost_usd,
	was_maker_entry, was_maker_exit, entry_fee_usd, exit_fee_usd,
	gross_pnl, net_pnl, net_pnl_pct, high_water_pct, exit_reason,
	opened_at, closed_at, hold_time_sec`

func scanClosedRows(rows pgx.Rows) ([]domain.ClosedPosition, error) {
	defer rows.Close()
	var out []domain.ClosedPosition
	for rows.Next() {
		var (
			p         domain.ClosedPosition
			direction string
			reason    string
		)
		if err := rows.Scan(
			&p.ID, &p.Asset, &p.ConditionID, &p.RoundSlot, &direction, &p.TokenID,
			&p.Strategy, &p.EntryPrice, &p.ExitPrice, &p.Shares, &p.CostUSD,
			&p.WasMakerEntry, &p.WasMakerExit, &p.EntryFeeUSD, &p.ExitFeeUSD,
			&p.GrossPnL, &p.NetPnL, &p.NetPnLPct, &p.HighWaterPct, &reason,
			&p.OpenedAt, &p.ClosedAt, &p.HoldTimeSec,
		); err != nil {
			return nil, err
		}
		p.Direction = domain.Direction(direction)
		r, err := domain.ParseExitReason(reason)
		if err != nil {
			return nil, err
		}
		p.ExitReason = r
		out = append(out, p)
	}
	return out, rows.Err()
}

// Insert records a closed position. Re-inserting the same ID is a no-op.
func (s *ClosedPositionStore) Insert(ctx context.Context, p domain.ClosedPosition) error {
	const query = `
		INSERT INTO closed_positions (` + closedSelectCols + `)
		VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11,
			$12, $13, $14, $15,
			$16, $17, $18, $19, $20,
			$21, $22, $23
		)
		ON CONFLICT (id) DO NOTHING`

	_, err := s.pool.Exec(ctx, query,
		p.ID, p.Asset, p.ConditionID, p.RoundSlot, string(p.Direction), p.TokenID,
		p.Strategy, p.EntryPrice, p.ExitPrice, p.Shares, p.CostUSD,
		p.WasMakerEntry, p.WasMakerExit, p.EntryFeeUSD, p.ExitFeeUSD,
		p.GrossPnL, p.NetPnL, p.NetPnLPct, p.HighWaterPct, p.ExitReason.String(),
		p.OpenedAt, p.ClosedAt, p.HoldTimeSec,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert closed position %s: %w", p.ID, err)
	}
	return nil
}

// ListBefore returns positions closed before the given time, oldest first.
func (s *ClosedPositionStore) ListBefore(ctx context.Context, before time.Time) ([]domain.ClosedPosition, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+closedSelectCols+` FROM closed_positions WHERE closed_at < $1 ORDER BY closed_at`,
		before,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list closed before %s: %w", before.Format(time.RFC3339), err)
	}
	out, err := scanClosedRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan closed positions: %w", err)
	}
	return out, nil
}

// ListRange returns positions closed in [from, to), oldest first.
func (s *ClosedPositionStore) ListRange(ctx context.Context, from, to time.Time) ([]domain.ClosedPosition, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+closedSelectCols+` FROM closed_positions
		 WHERE closed_at >= $1 AND closed_at < $2 ORDER BY closed_at`,
		from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list closed range: %w", err)
	}
	out, err := scanClosedRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan closed positions: %w", err)
	}
	return out, nil
}

// Summary aggregates positions closed since the given time.
func (s *ClosedPositionStore) Summary(ctx context.Context, since time.Time) (domain.HistorySummary, error) {
	sum := domain.HistorySummary{ByReason: make(map[domain.ExitReason]int64)}

	const totals = `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE net_pnl > 0),
		       COALESCE(SUM(net_pnl), 0),
		       COALESCE(AVG(hold_time_sec), 0)
		FROM closed_positions WHERE closed_at >= $1`
	if err := s.pool.QueryRow(ctx, totals, since).Scan(
		&sum.Count, &sum.Wins, &sum.NetPnL, &sum.AvgHold,
	); err != nil {
		return domain.HistorySummary{}, fmt.Errorf("postgres: summary totals: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT exit_reason, COUNT(*) FROM closed_positions
		 WHERE closed_at >= $1 GROUP BY exit_reason`,
		since,
	)
	if err != nil {
		return domain.HistorySummary{}, fmt.Errorf("postgres: summary by reason: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			name string
			n    int64
		)
		if err := rows.Scan(&name, &n); err != nil {
			return domain.HistorySummary{}, fmt.Errorf("postgres: scan summary row: %w", err)
		}
		r, err := domain.ParseExitReason(name)
		if err != nil {
			continue
		}
		sum.ByReason[r] = n
	}
	if err := rows.Err(); err != nil {
		return domain.HistorySummary{}, fmt.Errorf("postgres: summary by reason: %w", err)
	}
	return sum, nil
}

// Compile-time interface check.
var _ domain.ClosedPositionStore = (*ClosedPositionStore)(nil)
