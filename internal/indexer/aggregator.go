package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/fundscope/indexer/internal/chain"
	"github.com/fundscope/indexer/internal/platform/storage"
)

// ChainReader reads live campaign contract state.
type ChainReader interface {
	CampaignState(ctx context.Context, campaign common.Address) (*chain.CampaignState, error)
}

// EventStore is the slice of the event ledger the aggregator reads.
type EventStore interface {
	ListByCampaign(ctx context.Context, campaign string) ([]storage.ChainEvent, error)
	SumAmountsByWallet(ctx context.Context, wallet, eventName string) ([]storage.WalletCampaignSum, error)
}

// CampaignStatsStore persists campaign aggregates.
type CampaignStatsStore interface {
	Upsert(ctx context.Context, s *storage.CampaignStats) error
	ListByCreator(ctx context.Context, creator string) ([]storage.CampaignStats, error)
}

// UserStatsStore persists per-wallet aggregates.
type UserStatsStore interface {
	Upsert(ctx context.Context, s *storage.UserStats) error
	Get(ctx context.Context, wallet string) (*storage.UserStats, error)
}

// Invalidator drops cached read-side entries after a recompute. A nil
// invalidator disables caching.
type Invalidator interface {
	InvalidateCampaign(ctx context.Context, campaign string)
	InvalidateWallet(ctx context.Context, wallet string)
}

// Aggregator rebuilds materialized stats from the event ledger and live
// contract reads. Every recompute is a full rebuild of the affected
// aggregate: the output is a pure function of ledger plus chain state,
// so replays and duplicate triggers converge instead of double counting.
type Aggregator struct {
	chain     ChainReader
	tokens    *TokenCache
	events    EventStore
	campaigns CampaignStatsStore
	users     UserStatsStore
	cache     Invalidator
	logger    *slog.Logger
}

func NewAggregator(
	chainReader ChainReader,
	tokens *TokenCache,
	events EventStore,
	campaigns CampaignStatsStore,
	users UserStatsStore,
	cache Invalidator,
	logger *slog.Logger,
) *Aggregator {
	return &Aggregator{
		chain:     chainReader,
		tokens:    tokens,
		events:    events,
		campaigns: campaigns,
		users:     users,
		cache:     cache,
		logger:    logger.With("component", "aggregator"),
	}
}

// RecomputeForEvent fans out the recomputations an event affects. It
// runs for every observed event, including replayed duplicates, so a
// crash between insert and recompute heals on the next pass.
func (a *Aggregator) RecomputeForEvent(ctx context.Context, ev *storage.ChainEvent, kind Kind) error {
	creator, err := a.RecomputeCampaign(ctx, common.HexToAddress(ev.Campaign))
	if err != nil {
		return err
	}
	if err := a.RecomputeCreator(ctx, creator); err != nil {
		return err
	}

	switch kind {
	case KindDeposited, KindRefunded, KindClaimed:
		if investor, ok := ev.Args["investor"]; ok {
			if err := a.RecomputeInvestor(ctx, investor); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecomputeCampaign rebuilds one campaign's aggregate from live contract
// state and the stored ledger, and returns the campaign's creator for
// follow-up recomputation.
func (a *Aggregator) RecomputeCampaign(ctx context.Context, campaign common.Address) (string, error) {
	state, err := a.chain.CampaignState(ctx, campaign)
	if err != nil {
		return "", fmt.Errorf("campaign state %s: %w", campaign.Hex(), err)
	}
	token, err := a.tokens.Get(ctx, state.Token)
	if err != nil {
		return "", err
	}

	key := normalizeAddress(campaign)
	events, err := a.events.ListByCampaign(ctx, key)
	if err != nil {
		return "", fmt.Errorf("list events %s: %w", key, err)
	}

	depositors := make(map[string]struct{})
	for _, ev := range events {
		if ev.Name != storage.EventDeposited {
			continue
		}
		if investor, ok := ev.Args["investor"]; ok {
			depositors[investor] = struct{}{}
		}
	}

	raised := formatUnits(state.TotalRaised, int32(token.Decimals))
	returned := formatUnits(state.Returned, int32(token.Decimals))
	creator := normalizeAddress(state.Creator)

	stats := &storage.CampaignStats{
		Campaign:      key,
		Creator:       creator,
		Token:         normalizeAddress(state.Token),
		TokenSymbol:   token.Symbol,
		TokenDecimals: int32(token.Decimals),
		FloorAmount:   formatUnits(state.Floor, int32(token.Decimals)).String(),
		CeilAmount:    formatUnits(state.Ceil, int32(token.Decimals)).String(),
		TotalRaised:   raised.String(),
		TotalReturned: returned.String(),
		InvestorCount: int32(len(depositors)),
		WithdrawnAt:   state.WithdrawnAt.Int64(),
		PnL:           returned.Sub(raised).String(),
		Status:        campaignStatus(state),
		UpdatedAt:     time.Now().UTC(),
	}

	if err := a.campaigns.Upsert(ctx, stats); err != nil {
		return "", fmt.Errorf("upsert campaign stats %s: %w", key, err)
	}
	if a.cache != nil {
		a.cache.InvalidateCampaign(ctx, key)
	}

	a.logger.Debug("campaign recomputed",
		"campaign", key,
		"total_raised", stats.TotalRaised,
		"investors", stats.InvestorCount,
		"status", stats.Status)
	return creator, nil
}

// RecomputeCreator rebuilds the creator-side fields of a wallet's stats
// from that wallet's campaign aggregates. Investor-side fields are
// carried over untouched.
func (a *Aggregator) RecomputeCreator(ctx context.Context, wallet string) error {
	campaigns, err := a.campaigns.ListByCreator(ctx, wallet)
	if err != nil {
		return fmt.Errorf("list campaigns by creator %s: %w", wallet, err)
	}

	var raised, returned decimal.Decimal
	for _, c := range campaigns {
		r, err := decimal.NewFromString(c.TotalRaised)
		if err != nil {
			return fmt.Errorf("campaign %s total_raised %q: %w", c.Campaign, c.TotalRaised, err)
		}
		ret, err := decimal.NewFromString(c.TotalReturned)
		if err != nil {
			return fmt.Errorf("campaign %s total_returned %q: %w", c.Campaign, c.TotalReturned, err)
		}
		raised = raised.Add(r)
		returned = returned.Add(ret)
	}

	stats, err := a.loadOrInitUser(ctx, wallet)
	if err != nil {
		return err
	}
	stats.CampaignsCreated = int32(len(campaigns))
	stats.CreatorTotalRaised = raised.String()
	stats.CreatorTotalReturned = returned.String()
	stats.CreatorPnL = returned.Sub(raised).String()
	stats.UpdatedAt = time.Now().UTC()

	return a.upsertUser(ctx, stats)
}

// RecomputeInvestor rebuilds the investor-side fields of a wallet's
// stats from the ledger. Each campaign's sums are formatted at that
// campaign's token precision before totalling. Creator-side fields are
// carried over untouched.
func (a *Aggregator) RecomputeInvestor(ctx context.Context, wallet string) error {
	deposited, invested, err := a.sumWalletEvents(ctx, wallet, storage.EventDeposited)
	if err != nil {
		return err
	}
	claimed, _, err := a.sumWalletEvents(ctx, wallet, storage.EventClaimed)
	if err != nil {
		return err
	}
	refunded, _, err := a.sumWalletEvents(ctx, wallet, storage.EventRefunded)
	if err != nil {
		return err
	}

	stats, err := a.loadOrInitUser(ctx, wallet)
	if err != nil {
		return err
	}
	stats.CampaignsInvested = invested
	stats.InvestorTotalDeposited = deposited.String()
	stats.InvestorTotalClaimed = claimed.String()
	stats.InvestorTotalRefunded = refunded.String()
	stats.InvestorPnL = claimed.Add(refunded).Sub(deposited).String()
	stats.UpdatedAt = time.Now().UTC()

	return a.upsertUser(ctx, stats)
}

// sumWalletEvents totals a wallet's per-campaign sums for one event
// kind, converting each campaign's raw amount at its own token's
// precision. The second return is the count of campaigns with a nonzero
// sum.
func (a *Aggregator) sumWalletEvents(ctx context.Context, wallet, eventName string) (decimal.Decimal, int32, error) {
	sums, err := a.events.SumAmountsByWallet(ctx, wallet, eventName)
	if err != nil {
		return decimal.Zero, 0, fmt.Errorf("sum %s for %s: %w", eventName, wallet, err)
	}

	var total decimal.Decimal
	var nonzero int32
	for _, s := range sums {
		raw, err := decimal.NewFromString(s.Total)
		if err != nil {
			return decimal.Zero, 0, fmt.Errorf("campaign %s sum %q: %w", s.Campaign, s.Total, err)
		}
		amount := raw.Shift(-s.TokenDecimals)
		total = total.Add(amount)
		if !amount.IsZero() {
			nonzero++
		}
	}
	return total, nonzero, nil
}

func (a *Aggregator) loadOrInitUser(ctx context.Context, wallet string) (*storage.UserStats, error) {
	stats, err := a.users.Get(ctx, wallet)
	if err != nil {
		return nil, fmt.Errorf("get user stats %s: %w", wallet, err)
	}
	if stats == nil {
		stats = &storage.UserStats{
			Wallet:                 wallet,
			CreatorTotalRaised:     "0",
			CreatorTotalReturned:   "0",
			CreatorPnL:             "0",
			InvestorTotalDeposited: "0",
			InvestorTotalClaimed:   "0",
			InvestorTotalRefunded:  "0",
			InvestorPnL:            "0",
		}
	}
	return stats, nil
}

func (a *Aggregator) upsertUser(ctx context.Context, stats *storage.UserStats) error {
	if err := a.users.Upsert(ctx, stats); err != nil {
		return fmt.Errorf("upsert user stats %s: %w", stats.Wallet, err)
	}
	if a.cache != nil {
		a.cache.InvalidateWallet(ctx, stats.Wallet)
	}
	return nil
}

// campaignStatus derives lifecycle status from live contract state.
// A returned campaign stays returned even if withdrawal happened first.
func campaignStatus(state *chain.CampaignState) string {
	if state.Returned.Sign() > 0 {
		return storage.StatusReturned
	}
	if state.WithdrawnAt.Sign() > 0 {
		return storage.StatusWithdrawn
	}
	return storage.StatusActive
}

// formatUnits converts a raw smallest-unit amount to the token's display
// precision without going through floats.
func formatUnits(raw *big.Int, decimals int32) decimal.Decimal {
	if raw == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(raw, -decimals)
}
