package storage

import (
	"context"
	"encoding/json"
	"fmt"
)

// EventRepository is the append-only event ledger. There is no update or
// delete: once observed, an event is historical truth.
type EventRepository struct {
	db *DB
}

// NewEventRepository creates a new EventRepository.
func NewEventRepository(db *DB) *EventRepository {
	return &EventRepository{db: db}
}

// Insert appends an event. Returns false when the (tx_hash, log_index)
// key already exists, making redelivery of the same log a no-op.
func (r *EventRepository) Insert(ctx context.Context, ev *ChainEvent) (bool, error) {
	args, err := json.Marshal(ev.Args)
	if err != nil {
		return false, fmt.Errorf("marshal args: %w", err)
	}

	sql := `
		INSERT INTO events (tx_hash, log_index, block_number, campaign, event_name, args)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (tx_hash, log_index) DO NOTHING
	`

	tag, err := r.db.pool.Exec(ctx, sql,
		ev.TxHash, ev.LogIndex, ev.BlockNumber, ev.Campaign, ev.Name, args)
	if err != nil {
		return false, fmt.Errorf("insert event: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// ListByCampaign returns a campaign's events in canonical replay order:
// ascending (block_number, log_index).
func (r *EventRepository) ListByCampaign(ctx context.Context, campaign string) ([]ChainEvent, error) {
	sql := `
		SELECT tx_hash, log_index, block_number, campaign, event_name, args, created_at
		FROM events
		WHERE campaign = $1
		ORDER BY block_number, log_index
	`
	return r.queryEvents(ctx, sql, campaign)
}

// ListByWallet returns events whose investor or creator argument matches
// the wallet, in canonical replay order.
func (r *EventRepository) ListByWallet(ctx context.Context, wallet string) ([]ChainEvent, error) {
	sql := `
		SELECT tx_hash, log_index, block_number, campaign, event_name, args, created_at
		FROM events
		WHERE args->>'investor' = $1 OR args->>'creator' = $1
		ORDER BY block_number, log_index
	`
	return r.queryEvents(ctx, sql, wallet)
}

// SumAmountsByWallet rolls up a wallet's amounts for one event kind,
// grouped per campaign and joined to that campaign's token decimals. The
// raw smallest-unit sum is returned as a decimal string.
func (r *EventRepository) SumAmountsByWallet(ctx context.Context, wallet, eventName string) ([]WalletCampaignSum, error) {
	sql := `
		SELECT e.campaign, SUM((e.args->>'amount')::numeric)::text, cs.token_decimals
		FROM events e
		JOIN campaign_stats cs ON e.campaign = cs.campaign
		WHERE e.event_name = $1 AND e.args->>'investor' = $2
		GROUP BY e.campaign, cs.token_decimals
		ORDER BY e.campaign
	`

	rows, err := r.db.pool.Query(ctx, sql, eventName, wallet)
	if err != nil {
		return nil, fmt.Errorf("query wallet sums: %w", err)
	}
	defer rows.Close()

	var sums []WalletCampaignSum
	for rows.Next() {
		var s WalletCampaignSum
		if err := rows.Scan(&s.Campaign, &s.Total, &s.TokenDecimals); err != nil {
			return nil, fmt.Errorf("scan wallet sum: %w", err)
		}
		sums = append(sums, s)
	}
	return sums, rows.Err()
}

func (r *EventRepository) queryEvents(ctx context.Context, sql string, args ...any) ([]ChainEvent, error) {
	rows, err := r.db.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []ChainEvent
	for rows.Next() {
		var ev ChainEvent
		var rawArgs []byte
		if err := rows.Scan(&ev.TxHash, &ev.LogIndex, &ev.BlockNumber,
			&ev.Campaign, &ev.Name, &rawArgs, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if err := json.Unmarshal(rawArgs, &ev.Args); err != nil {
			return nil, fmt.Errorf("unmarshal args: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
