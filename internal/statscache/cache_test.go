package statscache

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/fundscope/indexer/internal/platform/storage"
)

type fakeCampaignSource struct {
	gets  int
	lists int
	stats map[string]*storage.CampaignStats
}

func (f *fakeCampaignSource) Get(ctx context.Context, campaign string) (*storage.CampaignStats, error) {
	f.gets++
	return f.stats[campaign], nil
}

func (f *fakeCampaignSource) List(ctx context.Context) ([]storage.CampaignStats, error) {
	f.lists++
	var out []storage.CampaignStats
	for _, s := range f.stats {
		out = append(out, *s)
	}
	return out, nil
}

type fakeUserSource struct {
	gets         int
	leaderboards int
	stats        map[string]*storage.UserStats
}

func (f *fakeUserSource) Get(ctx context.Context, wallet string) (*storage.UserStats, error) {
	f.gets++
	return f.stats[wallet], nil
}

func (f *fakeUserSource) Leaderboard(ctx context.Context, sortBy string, limit int) ([]storage.UserStats, error) {
	f.leaderboards++
	return []storage.UserStats{{Wallet: "0x01", CreatorPnL: "10"}}, nil
}

type fakeEventSource struct {
	lists int
}

func (f *fakeEventSource) ListByCampaign(ctx context.Context, campaign string) ([]storage.ChainEvent, error) {
	f.lists++
	return []storage.ChainEvent{{Campaign: campaign, Name: storage.EventDeposited}}, nil
}

func newTestReader(t *testing.T) (*Reader, *Cache, *fakeCampaignSource, *fakeUserSource, *fakeEventSource) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	cache := NewWithClient(client, time.Minute, slog.New(slog.DiscardHandler))
	campaigns := &fakeCampaignSource{stats: map[string]*storage.CampaignStats{
		"0xc1": {Campaign: "0xc1", TotalRaised: "100", Status: storage.StatusActive},
	}}
	users := &fakeUserSource{stats: map[string]*storage.UserStats{
		"0xw1": {Wallet: "0xw1", CreatorPnL: "5"},
	}}
	events := &fakeEventSource{}
	return NewReader(cache, campaigns, users, events), cache, campaigns, users, events
}

func TestGetCampaignCachesHits(t *testing.T) {
	reader, _, campaigns, _, _ := newTestReader(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		stats, err := reader.GetCampaign(ctx, "0xc1")
		if err != nil {
			t.Fatalf("GetCampaign: %v", err)
		}
		if stats == nil || stats.TotalRaised != "100" {
			t.Fatalf("stats = %+v", stats)
		}
	}
	if campaigns.gets != 1 {
		t.Errorf("source hit %d times, want 1", campaigns.gets)
	}
}

func TestUnknownCampaignIsNotCached(t *testing.T) {
	reader, _, campaigns, _, _ := newTestReader(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		stats, err := reader.GetCampaign(ctx, "0xmissing")
		if err != nil {
			t.Fatalf("GetCampaign: %v", err)
		}
		if stats != nil {
			t.Fatalf("stats = %+v, want nil", stats)
		}
	}
	if campaigns.gets != 2 {
		t.Errorf("source hit %d times, want 2 (negative lookups bypass cache)", campaigns.gets)
	}
}

func TestInvalidateCampaignDropsEntries(t *testing.T) {
	reader, cache, campaigns, _, events := newTestReader(t)
	ctx := context.Background()

	if _, err := reader.GetCampaign(ctx, "0xc1"); err != nil {
		t.Fatal(err)
	}
	if _, err := reader.ListCampaigns(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := reader.CampaignEvents(ctx, "0xc1"); err != nil {
		t.Fatal(err)
	}

	cache.InvalidateCampaign(ctx, "0xc1")

	if _, err := reader.GetCampaign(ctx, "0xc1"); err != nil {
		t.Fatal(err)
	}
	if _, err := reader.ListCampaigns(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := reader.CampaignEvents(ctx, "0xc1"); err != nil {
		t.Fatal(err)
	}

	if campaigns.gets != 2 || campaigns.lists != 2 || events.lists != 2 {
		t.Errorf("sources hit gets=%d lists=%d events=%d, want 2 each after invalidation",
			campaigns.gets, campaigns.lists, events.lists)
	}
}

func TestInvalidateWalletDropsLeaderboards(t *testing.T) {
	reader, cache, _, users, _ := newTestReader(t)
	ctx := context.Background()

	if _, err := reader.GetWallet(ctx, "0xw1"); err != nil {
		t.Fatal(err)
	}
	if _, err := reader.Leaderboard(ctx, "creator_pnl", 10); err != nil {
		t.Fatal(err)
	}
	if _, err := reader.Leaderboard(ctx, "investor_pnl", 10); err != nil {
		t.Fatal(err)
	}

	cache.InvalidateWallet(ctx, "0xw1")

	if _, err := reader.GetWallet(ctx, "0xw1"); err != nil {
		t.Fatal(err)
	}
	if _, err := reader.Leaderboard(ctx, "creator_pnl", 10); err != nil {
		t.Fatal(err)
	}

	if users.gets != 2 {
		t.Errorf("wallet source hit %d times, want 2", users.gets)
	}
	if users.leaderboards != 3 {
		t.Errorf("leaderboard source hit %d times, want 3", users.leaderboards)
	}
}

func TestLeaderboardNormalizesCacheKey(t *testing.T) {
	reader, _, _, users, _ := newTestReader(t)
	ctx := context.Background()

	// An unknown column and a zero limit normalize to the defaults, so
	// these all share one cache entry.
	if _, err := reader.Leaderboard(ctx, "drop table", 0); err != nil {
		t.Fatal(err)
	}
	if _, err := reader.Leaderboard(ctx, storage.DefaultLeaderboardSort, storage.MaxLeaderboardLimit); err != nil {
		t.Fatal(err)
	}
	if users.leaderboards != 1 {
		t.Errorf("leaderboard source hit %d times, want 1", users.leaderboards)
	}
}
