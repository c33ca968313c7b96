package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"

	"github.com/fundscope/indexer/internal/platform/storage"
)

// ChainSource is the slice of the RPC client the indexer drives.
type ChainSource interface {
	Height(ctx context.Context) (uint64, error)
	Campaigns(ctx context.Context) ([]common.Address, error)
	FactoryLogs(ctx context.Context, from, to uint64) ([]types.Log, error)
	CampaignLogs(ctx context.Context, campaigns []common.Address, from, to uint64) ([]types.Log, error)
	CampaignToken(ctx context.Context, campaign common.Address) (common.Address, error)
}

// EventWriter appends to the event ledger. Insert reports whether the
// row was new.
type EventWriter interface {
	Insert(ctx context.Context, ev *storage.ChainEvent) (bool, error)
}

// CheckpointStore persists sync progress.
type CheckpointStore interface {
	Get(ctx context.Context) (uint64, bool, error)
	Set(ctx context.Context, block uint64) error
}

// FeedPublisher pushes newly observed events to the activity feed.
// Publishing is best-effort: failures are logged, never fatal.
type FeedPublisher interface {
	Publish(ctx context.Context, ev *storage.ChainEvent) error
}

// Config tunes the sync loop.
type Config struct {
	PollInterval    time.Duration `yaml:"poll_interval"`
	BatchSize       uint64        `yaml:"batch_size"`
	Lookback        uint64        `yaml:"lookback"`
	InterBatchDelay time.Duration `yaml:"inter_batch_delay"`
}

func DefaultConfig() Config {
	return Config{
		PollInterval:    15 * time.Second,
		BatchSize:       10_000,
		Lookback:        50_000,
		InterBatchDelay: time.Second,
	}
}

// Indexer drives the sync loop: one backfill from the checkpoint (or a
// bounded lookback on first run), then steady-state polling. The
// checkpoint only advances after a range commits in full, so a crash
// replays the tail and the idempotent ledger absorbs the duplicates.
type Indexer struct {
	cfg         Config
	chain       ChainSource
	events      EventWriter
	checkpoints CheckpointStore
	agg         *Aggregator
	feed        FeedPublisher
	logger      *slog.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

func New(
	cfg Config,
	chainSource ChainSource,
	events EventWriter,
	checkpoints CheckpointStore,
	agg *Aggregator,
	feed FeedPublisher,
	logger *slog.Logger,
) *Indexer {
	def := DefaultConfig()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.Lookback == 0 {
		cfg.Lookback = def.Lookback
	}
	if cfg.InterBatchDelay <= 0 {
		cfg.InterBatchDelay = def.InterBatchDelay
	}
	return &Indexer{
		cfg:         cfg,
		chain:       chainSource,
		events:      events,
		checkpoints: checkpoints,
		agg:         agg,
		feed:        feed,
		logger:      logger.With("component", "indexer"),
		sleep:       sleepContext,
	}
}

// Run backfills to the current height and then polls until the context
// is cancelled. A backfill failure is fatal; poll failures are logged
// and retried on the next tick.
func (ix *Indexer) Run(ctx context.Context) error {
	if err := ix.backfill(ctx); err != nil {
		return fmt.Errorf("backfill: %w", err)
	}

	ix.logger.Info("entering poll loop", "interval", ix.cfg.PollInterval)
	for {
		if err := ix.sleep(ctx, ix.cfg.PollInterval); err != nil {
			return err
		}
		if err := ix.poll(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			ix.logger.Error("poll failed", "error", err)
		}
	}
}

func (ix *Indexer) backfill(ctx context.Context) error {
	height, err := ix.chain.Height(ctx)
	if err != nil {
		return err
	}

	last, ok, err := ix.checkpoints.Get(ctx)
	if err != nil {
		return err
	}

	var start uint64
	if ok {
		start = last + 1
	} else if height > ix.cfg.Lookback {
		start = height - ix.cfg.Lookback
	}
	if start > height {
		ix.logger.Info("backfill not needed", "checkpoint", last, "height", height)
		return nil
	}

	ix.logger.Info("backfill starting", "from", start, "to", height, "batch_size", ix.cfg.BatchSize)
	for from := start; from <= height; from += ix.cfg.BatchSize {
		to := from + ix.cfg.BatchSize - 1
		if to > height {
			to = height
		}
		if err := ix.processRange(ctx, from, to); err != nil {
			return err
		}
		if err := ix.checkpoints.Set(ctx, to); err != nil {
			return err
		}
		if to < height {
			if err := ix.sleep(ctx, ix.cfg.InterBatchDelay); err != nil {
				return err
			}
		}
	}
	ix.logger.Info("backfill complete", "height", height)
	return nil
}

func (ix *Indexer) poll(ctx context.Context) error {
	height, err := ix.chain.Height(ctx)
	if err != nil {
		return err
	}
	last, ok, err := ix.checkpoints.Get(ctx)
	if err != nil {
		return err
	}
	if ok && height <= last {
		return nil
	}

	from := uint64(0)
	if ok {
		from = last + 1
	}
	if err := ix.processRange(ctx, from, height); err != nil {
		return err
	}
	if err := ix.checkpoints.Set(ctx, height); err != nil {
		return err
	}
	ix.logger.Debug("caught up", "checkpoint", height, "blocks", height-from+1)
	return nil
}

// processRange indexes one block range: factory logs first so new
// campaigns are seeded, then campaign logs in canonical order. A decode
// failure skips the log; a storage failure aborts the range so the
// checkpoint stays put.
func (ix *Indexer) processRange(ctx context.Context, from, to uint64) error {
	runID := uuid.NewString()
	log := ix.logger.With("run_id", runID, "from", from, "to", to)

	factoryLogs, err := ix.chain.FactoryLogs(ctx, from, to)
	if err != nil {
		return fmt.Errorf("factory logs [%d, %d]: %w", from, to, err)
	}
	sortLogs(factoryLogs)

	var inserted int
	for _, l := range factoryLogs {
		n, err := ix.handleLog(ctx, log, l)
		if err != nil {
			return err
		}
		inserted += n
	}

	campaigns, err := ix.chain.Campaigns(ctx)
	if err != nil {
		return fmt.Errorf("campaign list: %w", err)
	}

	campaignLogs, err := ix.chain.CampaignLogs(ctx, campaigns, from, to)
	if err != nil {
		return fmt.Errorf("campaign logs [%d, %d]: %w", from, to, err)
	}
	sortLogs(campaignLogs)

	for _, l := range campaignLogs {
		n, err := ix.handleLog(ctx, log, l)
		if err != nil {
			return err
		}
		inserted += n
	}

	if len(factoryLogs)+len(campaignLogs) > 0 {
		log.Info("range indexed",
			"factory_logs", len(factoryLogs),
			"campaign_logs", len(campaignLogs),
			"inserted", inserted)
	}
	return nil
}

// handleLog decodes, stores, and recomputes for one log. Returns 1 when
// the event was newly inserted. Recomputation runs even for duplicates:
// it is the recovery path for a crash between insert and recompute.
func (ix *Indexer) handleLog(ctx context.Context, log *slog.Logger, l types.Log) (int, error) {
	ev, kind, err := Decode(l)
	if err != nil {
		log.Warn("skipping undecodable log",
			"tx_hash", l.TxHash.Hex(),
			"log_index", l.Index,
			"error", err)
		return 0, nil
	}

	if kind == KindCampaignCreated {
		token, err := ix.chain.CampaignToken(ctx, common.HexToAddress(ev.Campaign))
		if err != nil {
			return 0, fmt.Errorf("campaign token %s: %w", ev.Campaign, err)
		}
		ev.Args["token"] = normalizeAddress(token)
	}

	isNew, err := ix.events.Insert(ctx, ev)
	if err != nil {
		return 0, fmt.Errorf("insert event %s/%d: %w", ev.TxHash, ev.LogIndex, err)
	}

	if err := ix.agg.RecomputeForEvent(ctx, ev, kind); err != nil {
		return 0, err
	}

	if !isNew {
		return 0, nil
	}
	if ix.feed != nil {
		if err := ix.feed.Publish(ctx, ev); err != nil {
			log.Warn("feed publish failed", "event", ev.Name, "error", err)
		}
	}
	return 1, nil
}

func sortLogs(logs []types.Log) {
	sort.Slice(logs, func(i, j int) bool {
		if logs[i].BlockNumber != logs[j].BlockNumber {
			return logs[i].BlockNumber < logs[j].BlockNumber
		}
		return logs[i].Index < logs[j].Index
	})
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
