package statscache

import (
	"context"
	"fmt"

	"github.com/fundscope/indexer/internal/platform/storage"
)

// CampaignSource reads campaign aggregates from storage.
type CampaignSource interface {
	Get(ctx context.Context, campaign string) (*storage.CampaignStats, error)
	List(ctx context.Context) ([]storage.CampaignStats, error)
}

// UserSource reads wallet aggregates from storage.
type UserSource interface {
	Get(ctx context.Context, wallet string) (*storage.UserStats, error)
	Leaderboard(ctx context.Context, sortBy string, limit int) ([]storage.UserStats, error)
}

// EventSource reads the ledger from storage.
type EventSource interface {
	ListByCampaign(ctx context.Context, campaign string) ([]storage.ChainEvent, error)
}

// Reader serves the read API from cache, falling through to storage on
// a miss. Negative lookups (unknown campaign or wallet) are not cached.
type Reader struct {
	cache     *Cache
	campaigns CampaignSource
	users     UserSource
	events    EventSource
}

func NewReader(cache *Cache, campaigns CampaignSource, users UserSource, events EventSource) *Reader {
	return &Reader{cache: cache, campaigns: campaigns, users: users, events: events}
}

func (r *Reader) GetCampaign(ctx context.Context, campaign string) (*storage.CampaignStats, error) {
	key := keyCampaign + campaign
	var cached storage.CampaignStats
	if r.cache.getJSON(ctx, key, &cached) {
		return &cached, nil
	}

	stats, err := r.campaigns.Get(ctx, campaign)
	if err != nil || stats == nil {
		return stats, err
	}
	r.cache.setJSON(ctx, key, stats)
	return stats, nil
}

func (r *Reader) ListCampaigns(ctx context.Context) ([]storage.CampaignStats, error) {
	var cached []storage.CampaignStats
	if r.cache.getJSON(ctx, keyCampaignList, &cached) {
		return cached, nil
	}

	list, err := r.campaigns.List(ctx)
	if err != nil {
		return nil, err
	}
	r.cache.setJSON(ctx, keyCampaignList, list)
	return list, nil
}

func (r *Reader) GetWallet(ctx context.Context, wallet string) (*storage.UserStats, error) {
	key := keyWallet + wallet
	var cached storage.UserStats
	if r.cache.getJSON(ctx, key, &cached) {
		return &cached, nil
	}

	stats, err := r.users.Get(ctx, wallet)
	if err != nil || stats == nil {
		return stats, err
	}
	r.cache.setJSON(ctx, key, stats)
	return stats, nil
}

// Leaderboard normalizes the sort column and limit before caching, so
// equivalent requests share one entry.
func (r *Reader) Leaderboard(ctx context.Context, sortBy string, limit int) ([]storage.UserStats, error) {
	sortBy = storage.NormalizeLeaderboardSort(sortBy)
	if limit <= 0 || limit > storage.MaxLeaderboardLimit {
		limit = storage.MaxLeaderboardLimit
	}

	key := fmt.Sprintf("%s%s:%d", keyLeaderboard, sortBy, limit)
	var cached []storage.UserStats
	if r.cache.getJSON(ctx, key, &cached) {
		return cached, nil
	}

	rows, err := r.users.Leaderboard(ctx, sortBy, limit)
	if err != nil {
		return nil, err
	}
	r.cache.setJSON(ctx, key, rows)
	return rows, nil
}

func (r *Reader) CampaignEvents(ctx context.Context, campaign string) ([]storage.ChainEvent, error) {
	key := keyCampaignEvents + campaign
	var cached []storage.ChainEvent
	if r.cache.getJSON(ctx, key, &cached) {
		return cached, nil
	}

	events, err := r.events.ListByCampaign(ctx, campaign)
	if err != nil {
		return nil, err
	}
	r.cache.setJSON(ctx, key, events)
	return events, nil
}
