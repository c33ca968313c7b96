package storage

import (
	"time"
)

// Event names stored in the ledger. The set is closed; the decoder is the
// only producer.
const (
	EventCampaignCreated = "CampaignCreated"
	EventDeposited       = "Deposited"
	EventWithdrawn       = "Withdrawn"
	EventRefunded        = "Refunded"
	EventFundsReturned   = "FundsReturned"
	EventClaimed         = "Claimed"
)

// Campaign lifecycle status values.
const (
	StatusActive    = "active"
	StatusWithdrawn = "withdrawn"
	StatusReturned  = "returned"
)

// ChainEvent is one decoded on-chain occurrence. Rows are append-only:
// (TxHash, LogIndex) is the deduplication key and (BlockNumber, LogIndex)
// the canonical replay order. Addresses are stored lowercase and integer
// arguments as decimal strings.
type ChainEvent struct {
	TxHash      string            `db:"tx_hash"`
	LogIndex    int32             `db:"log_index"`
	BlockNumber int64             `db:"block_number"`
	Campaign    string            `db:"campaign"`
	Name        string            `db:"event_name"`
	Args        map[string]string `db:"args"` // JSONB
	CreatedAt   time.Time         `db:"created_at"`
}

// CampaignStats is the materialized aggregate for one campaign, rebuilt
// in full on every relevant event. Amounts are formatted at the token's
// decimal precision.
type CampaignStats struct {
	Campaign      string    `db:"campaign"`
	Creator       string    `db:"creator"`
	Token         string    `db:"token"`
	TokenSymbol   string    `db:"token_symbol"`
	TokenDecimals int32     `db:"token_decimals"`
	FloorAmount   string    `db:"floor_amount"`
	CeilAmount    string    `db:"ceil_amount"`
	TotalRaised   string    `db:"total_raised"`
	TotalReturned string    `db:"total_returned"`
	InvestorCount int32     `db:"investor_count"`
	WithdrawnAt   int64     `db:"withdrawn_at"`
	PnL           string    `db:"pnl"`
	Status        string    `db:"status"`
	UpdatedAt     time.Time `db:"updated_at"`
}

// UserStats is the materialized aggregate for one wallet. The creator
// and investor roles are independent: recomputing one preserves the
// other's last-known values.
type UserStats struct {
	Wallet                 string    `db:"wallet"`
	CampaignsCreated       int32     `db:"campaigns_created"`
	CreatorTotalRaised     string    `db:"creator_total_raised"`
	CreatorTotalReturned   string    `db:"creator_total_returned"`
	CreatorPnL             string    `db:"creator_pnl"`
	CampaignsInvested      int32     `db:"campaigns_invested"`
	InvestorTotalDeposited string    `db:"investor_total_deposited"`
	InvestorTotalClaimed   string    `db:"investor_total_claimed"`
	InvestorTotalRefunded  string    `db:"investor_total_refunded"`
	InvestorPnL            string    `db:"investor_pnl"`
	UpdatedAt              time.Time `db:"updated_at"`
}

// WalletCampaignSum is one row of a per-campaign amount rollup for a
// wallet: the raw smallest-unit total plus the campaign token's decimals
// needed to format it.
type WalletCampaignSum struct {
	Campaign      string
	Total         string
	TokenDecimals int32
}
