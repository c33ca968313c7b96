// Package indexer contains the event indexing and aggregation pipeline:
// log decoding, the token metadata cache, stats recomputation, and the
// backfill/poll driver.
package indexer

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/fundscope/indexer/internal/chain"
	"github.com/fundscope/indexer/internal/platform/storage"
)

// ErrUnknownEvent marks a log whose topic0 matches none of the tracked
// event kinds.
var ErrUnknownEvent = errors.New("unknown event")

// Kind enumerates the tracked event kinds. The set is closed: decoding
// dispatches over it exhaustively.
type Kind int

const (
	KindCampaignCreated Kind = iota
	KindDeposited
	KindWithdrawn
	KindRefunded
	KindFundsReturned
	KindClaimed
)

// String returns the canonical event name stored in the ledger.
func (k Kind) String() string {
	switch k {
	case KindCampaignCreated:
		return storage.EventCampaignCreated
	case KindDeposited:
		return storage.EventDeposited
	case KindWithdrawn:
		return storage.EventWithdrawn
	case KindRefunded:
		return storage.EventRefunded
	case KindFundsReturned:
		return storage.EventFundsReturned
	case KindClaimed:
		return storage.EventClaimed
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// KindForTopic maps a log's topic0 to its event kind.
func KindForTopic(topic common.Hash) (Kind, bool) {
	switch topic {
	case chain.CampaignCreatedTopic:
		return KindCampaignCreated, true
	case chain.CampaignABI.Events["Deposited"].ID:
		return KindDeposited, true
	case chain.CampaignABI.Events["Withdrawn"].ID:
		return KindWithdrawn, true
	case chain.CampaignABI.Events["Refunded"].ID:
		return KindRefunded, true
	case chain.CampaignABI.Events["FundsReturned"].ID:
		return KindFundsReturned, true
	case chain.CampaignABI.Events["Claimed"].ID:
		return KindClaimed, true
	}
	return 0, false
}

// normalizeAddress is the system-wide equality rule: every address is
// lowercased before storage or comparison.
func normalizeAddress(addr common.Address) string {
	return strings.ToLower(addr.Hex())
}

// Decode converts a raw log into a durable chain event. A failure means
// the log is malformed; callers log and skip it, never abort the batch.
func Decode(log types.Log) (*storage.ChainEvent, Kind, error) {
	if len(log.Topics) == 0 {
		return nil, 0, fmt.Errorf("log %s/%d has no topics", log.TxHash.Hex(), log.Index)
	}

	kind, ok := KindForTopic(log.Topics[0])
	if !ok {
		return nil, 0, fmt.Errorf("log %s/%d: %w", log.TxHash.Hex(), log.Index, ErrUnknownEvent)
	}

	ev := &storage.ChainEvent{
		TxHash:      strings.ToLower(log.TxHash.Hex()),
		LogIndex:    int32(log.Index),
		BlockNumber: int64(log.BlockNumber),
		Campaign:    normalizeAddress(log.Address),
		Name:        kind.String(),
	}

	var err error
	switch kind {
	case KindCampaignCreated:
		err = decodeCampaignCreated(log, ev)
	case KindDeposited:
		err = decodeInvestorAmount(log, ev, "Deposited")
	case KindWithdrawn:
		err = decodeWithdrawn(log, ev)
	case KindRefunded:
		err = decodeInvestorAmount(log, ev, "Refunded")
	case KindFundsReturned:
		err = decodeFundsReturned(log, ev)
	case KindClaimed:
		err = decodeInvestorAmount(log, ev, "Claimed")
	}
	if err != nil {
		return nil, 0, fmt.Errorf("decode %s: %w", kind, err)
	}

	return ev, kind, nil
}

// decodeCampaignCreated handles the factory event. The new campaign
// address becomes the event's subject; the caller resolves and attaches
// the settlement token before storage.
func decodeCampaignCreated(log types.Log, ev *storage.ChainEvent) error {
	if len(log.Topics) < 3 {
		return fmt.Errorf("expected 3 topics, got %d", len(log.Topics))
	}

	campaign := common.BytesToAddress(log.Topics[1].Bytes())
	creator := common.BytesToAddress(log.Topics[2].Bytes())

	vals, err := chain.FactoryABI.Unpack("CampaignCreated", log.Data)
	if err != nil {
		return fmt.Errorf("unpack data: %w", err)
	}
	floor, ok := vals[0].(*big.Int)
	if !ok {
		return fmt.Errorf("floor: unexpected type %T", vals[0])
	}
	ceil, ok := vals[1].(*big.Int)
	if !ok {
		return fmt.Errorf("ceil: unexpected type %T", vals[1])
	}

	ev.Campaign = normalizeAddress(campaign)
	ev.Args = map[string]string{
		"creator": normalizeAddress(creator),
		"floor":   floor.String(),
		"ceil":    ceil.String(),
	}
	return nil
}

// decodeInvestorAmount handles Deposited, Refunded, and Claimed, which
// share the (indexed investor, amount) shape.
func decodeInvestorAmount(log types.Log, ev *storage.ChainEvent, name string) error {
	if len(log.Topics) < 2 {
		return fmt.Errorf("expected 2 topics, got %d", len(log.Topics))
	}

	investor := common.BytesToAddress(log.Topics[1].Bytes())

	vals, err := chain.CampaignABI.Unpack(name, log.Data)
	if err != nil {
		return fmt.Errorf("unpack data: %w", err)
	}
	amount, ok := vals[0].(*big.Int)
	if !ok {
		return fmt.Errorf("amount: unexpected type %T", vals[0])
	}

	ev.Args = map[string]string{
		"investor": normalizeAddress(investor),
		"amount":   amount.String(),
	}
	return nil
}

func decodeWithdrawn(log types.Log, ev *storage.ChainEvent) error {
	vals, err := chain.CampaignABI.Unpack("Withdrawn", log.Data)
	if err != nil {
		return fmt.Errorf("unpack data: %w", err)
	}
	amount, ok := vals[0].(*big.Int)
	if !ok {
		return fmt.Errorf("amount: unexpected type %T", vals[0])
	}
	timestamp, ok := vals[1].(*big.Int)
	if !ok {
		return fmt.Errorf("timestamp: unexpected type %T", vals[1])
	}

	ev.Args = map[string]string{
		"amount":    amount.String(),
		"timestamp": timestamp.String(),
	}
	return nil
}

func decodeFundsReturned(log types.Log, ev *storage.ChainEvent) error {
	vals, err := chain.CampaignABI.Unpack("FundsReturned", log.Data)
	if err != nil {
		return fmt.Errorf("unpack data: %w", err)
	}
	amount, ok := vals[0].(*big.Int)
	if !ok {
		return fmt.Errorf("amount: unexpected type %T", vals[0])
	}

	ev.Args = map[string]string{"amount": amount.String()}
	return nil
}
