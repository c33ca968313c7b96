package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// LeaderboardColumns whitelists the user_stats columns the leaderboard
// can rank by. Unknown columns fall back to DefaultLeaderboardSort.
var LeaderboardColumns = map[string]bool{
	"creator_pnl":              true,
	"creator_total_raised":     true,
	"creator_total_returned":   true,
	"campaigns_created":        true,
	"investor_pnl":             true,
	"investor_total_deposited": true,
	"investor_total_claimed":   true,
	"investor_total_refunded":  true,
	"campaigns_invested":       true,
}

// DefaultLeaderboardSort is used when no (or an unknown) column is named.
const DefaultLeaderboardSort = "creator_pnl"

// MaxLeaderboardLimit caps leaderboard result size.
const MaxLeaderboardLimit = 100

// NormalizeLeaderboardSort maps a requested sort column onto the
// whitelist.
func NormalizeLeaderboardSort(column string) string {
	if LeaderboardColumns[column] {
		return column
	}
	return DefaultLeaderboardSort
}

const campaignStatsColumns = `
	campaign, creator, token, token_symbol, token_decimals,
	floor_amount::text, ceil_amount::text, total_raised::text, total_returned::text,
	investor_count, withdrawn_at, pnl::text, status, updated_at
`

const userStatsColumns = `
	wallet, campaigns_created,
	creator_total_raised::text, creator_total_returned::text, creator_pnl::text,
	campaigns_invested,
	investor_total_deposited::text, investor_total_claimed::text,
	investor_total_refunded::text, investor_pnl::text, updated_at
`

// CampaignStatsRepository persists the per-campaign materialized
// aggregate.
type CampaignStatsRepository struct {
	db *DB
}

// NewCampaignStatsRepository creates a new CampaignStatsRepository.
func NewCampaignStatsRepository(db *DB) *CampaignStatsRepository {
	return &CampaignStatsRepository{db: db}
}

// Upsert overwrites the full stats row for a campaign in one statement.
func (r *CampaignStatsRepository) Upsert(ctx context.Context, s *CampaignStats) error {
	sql := `
		INSERT INTO campaign_stats (
			campaign, creator, token, token_symbol, token_decimals,
			floor_amount, ceil_amount, total_raised, total_returned,
			investor_count, withdrawn_at, pnl, status, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6::numeric, $7::numeric, $8::numeric, $9::numeric,
			$10, $11, $12::numeric, $13, NOW()
		)
		ON CONFLICT (campaign) DO UPDATE SET
			creator = EXCLUDED.creator,
			token = EXCLUDED.token,
			token_symbol = EXCLUDED.token_symbol,
			token_decimals = EXCLUDED.token_decimals,
			floor_amount = EXCLUDED.floor_amount,
			ceil_amount = EXCLUDED.ceil_amount,
			total_raised = EXCLUDED.total_raised,
			total_returned = EXCLUDED.total_returned,
			investor_count = EXCLUDED.investor_count,
			withdrawn_at = EXCLUDED.withdrawn_at,
			pnl = EXCLUDED.pnl,
			status = EXCLUDED.status,
			updated_at = NOW()
	`

	_, err := r.db.pool.Exec(ctx, sql,
		s.Campaign, s.Creator, s.Token, s.TokenSymbol, s.TokenDecimals,
		s.FloorAmount, s.CeilAmount, s.TotalRaised, s.TotalReturned,
		s.InvestorCount, s.WithdrawnAt, s.PnL, s.Status)
	if err != nil {
		return fmt.Errorf("upsert campaign stats: %w", err)
	}
	return nil
}

// Get returns the stats row for one campaign, or nil when the campaign
// is unknown.
func (r *CampaignStatsRepository) Get(ctx context.Context, campaign string) (*CampaignStats, error) {
	sql := `SELECT ` + campaignStatsColumns + ` FROM campaign_stats WHERE campaign = $1`

	var s CampaignStats
	err := r.db.pool.QueryRow(ctx, sql, campaign).Scan(
		&s.Campaign, &s.Creator, &s.Token, &s.TokenSymbol, &s.TokenDecimals,
		&s.FloorAmount, &s.CeilAmount, &s.TotalRaised, &s.TotalReturned,
		&s.InvestorCount, &s.WithdrawnAt, &s.PnL, &s.Status, &s.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("query campaign stats: %w", err)
	}
	return &s, nil
}

// List returns every campaign's stats row, newest first.
func (r *CampaignStatsRepository) List(ctx context.Context) ([]CampaignStats, error) {
	sql := `SELECT ` + campaignStatsColumns + ` FROM campaign_stats ORDER BY updated_at DESC`
	return r.queryStats(ctx, sql)
}

// ListByCreator returns the stats rows for every campaign a wallet
// created.
func (r *CampaignStatsRepository) ListByCreator(ctx context.Context, creator string) ([]CampaignStats, error) {
	sql := `SELECT ` + campaignStatsColumns + ` FROM campaign_stats WHERE creator = $1 ORDER BY campaign`
	return r.queryStats(ctx, sql, creator)
}

func (r *CampaignStatsRepository) queryStats(ctx context.Context, sql string, args ...any) ([]CampaignStats, error) {
	rows, err := r.db.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query campaign stats: %w", err)
	}
	defer rows.Close()

	var out []CampaignStats
	for rows.Next() {
		var s CampaignStats
		if err := rows.Scan(
			&s.Campaign, &s.Creator, &s.Token, &s.TokenSymbol, &s.TokenDecimals,
			&s.FloorAmount, &s.CeilAmount, &s.TotalRaised, &s.TotalReturned,
			&s.InvestorCount, &s.WithdrawnAt, &s.PnL, &s.Status, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan campaign stats: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// UserStatsRepository persists the per-wallet materialized aggregate.
type UserStatsRepository struct {
	db *DB
}

// NewUserStatsRepository creates a new UserStatsRepository.
func NewUserStatsRepository(db *DB) *UserStatsRepository {
	return &UserStatsRepository{db: db}
}

// Upsert overwrites the full stats row for a wallet. Callers are
// expected to have merged in the untouched role's previous values.
func (r *UserStatsRepository) Upsert(ctx context.Context, s *UserStats) error {
	sql := `
		INSERT INTO user_stats (
			wallet, campaigns_created,
			creator_total_raised, creator_total_returned, creator_pnl,
			campaigns_invested,
			investor_total_deposited, investor_total_claimed,
			investor_total_refunded, investor_pnl, updated_at
		) VALUES (
			$1, $2, $3::numeric, $4::numeric, $5::numeric,
			$6, $7::numeric, $8::numeric, $9::numeric, $10::numeric, NOW()
		)
		ON CONFLICT (wallet) DO UPDATE SET
			campaigns_created = EXCLUDED.campaigns_created,
			creator_total_raised = EXCLUDED.creator_total_raised,
			creator_total_returned = EXCLUDED.creator_total_returned,
			creator_pnl = EXCLUDED.creator_pnl,
			campaigns_invested = EXCLUDED.campaigns_invested,
			investor_total_deposited = EXCLUDED.investor_total_deposited,
			investor_total_claimed = EXCLUDED.investor_total_claimed,
			investor_total_refunded = EXCLUDED.investor_total_refunded,
			investor_pnl = EXCLUDED.investor_pnl,
			updated_at = NOW()
	`

	_, err := r.db.pool.Exec(ctx, sql,
		s.Wallet, s.CampaignsCreated,
		s.CreatorTotalRaised, s.CreatorTotalReturned, s.CreatorPnL,
		s.CampaignsInvested,
		s.InvestorTotalDeposited, s.InvestorTotalClaimed,
		s.InvestorTotalRefunded, s.InvestorPnL)
	if err != nil {
		return fmt.Errorf("upsert user stats: %w", err)
	}
	return nil
}

// Get returns the stats row for one wallet, or nil when unknown.
func (r *UserStatsRepository) Get(ctx context.Context, wallet string) (*UserStats, error) {
	sql := `SELECT ` + userStatsColumns + ` FROM user_stats WHERE wallet = $1`

	var s UserStats
	err := r.db.pool.QueryRow(ctx, sql, wallet).Scan(
		&s.Wallet, &s.CampaignsCreated,
		&s.CreatorTotalRaised, &s.CreatorTotalReturned, &s.CreatorPnL,
		&s.CampaignsInvested,
		&s.InvestorTotalDeposited, &s.InvestorTotalClaimed,
		&s.InvestorTotalRefunded, &s.InvestorPnL, &s.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("query user stats: %w", err)
	}
	return &s, nil
}

// Leaderboard returns wallets ranked by a whitelisted column,
// descending. The limit is capped at MaxLeaderboardLimit.
func (r *UserStatsRepository) Leaderboard(ctx context.Context, sortBy string, limit int) ([]UserStats, error) {
	column := NormalizeLeaderboardSort(sortBy)
	if limit <= 0 || limit > MaxLeaderboardLimit {
		limit = MaxLeaderboardLimit
	}

	// column comes from the whitelist, never from the caller verbatim.
	sql := fmt.Sprintf(`SELECT %s FROM user_stats ORDER BY %s DESC LIMIT $1`,
		userStatsColumns, column)

	rows, err := r.db.pool.Query(ctx, sql, limit)
	if err != nil {
		return nil, fmt.Errorf("query leaderboard: %w", err)
	}
	defer rows.Close()

	var out []UserStats
	for rows.Next() {
		var s UserStats
		if err := rows.Scan(
			&s.Wallet, &s.CampaignsCreated,
			&s.CreatorTotalRaised, &s.CreatorTotalReturned, &s.CreatorPnL,
			&s.CampaignsInvested,
			&s.InvestorTotalDeposited, &s.InvestorTotalClaimed,
			&s.InvestorTotalRefunded, &s.InvestorPnL, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan leaderboard row: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
