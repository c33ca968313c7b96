package indexer

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/fundscope/indexer/internal/chain"
	"github.com/fundscope/indexer/internal/platform/storage"
)

var (
	decCampaign = common.HexToAddress("0xAAAA00000000000000000000000000000000AAAA")
	decInvestor = common.HexToAddress("0xBBBB00000000000000000000000000000000BBBB")
	decCreator  = common.HexToAddress("0xCCCC00000000000000000000000000000000CCCC")
)

// packEventData packs the non-indexed args of the named campaign event,
// which is exactly how geth encodes log data.
func packEventData(t *testing.T, event string, values ...interface{}) []byte {
	t.Helper()
	data, err := chain.CampaignABI.Events[event].Inputs.NonIndexed().Pack(values...)
	if err != nil {
		t.Fatalf("pack %s data: %v", event, err)
	}
	return data
}

func TestDecodeDeposited(t *testing.T) {
	data := packEventData(t, "Deposited", big.NewInt(5_000_000))

	log := types.Log{
		Address:     decCampaign,
		Topics:      []common.Hash{chain.CampaignABI.Events["Deposited"].ID, common.BytesToHash(decInvestor.Bytes())},
		Data:        data,
		BlockNumber: 120,
		TxHash:      common.HexToHash("0x01"),
		Index:       3,
	}

	ev, kind, err := Decode(log)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if kind != KindDeposited {
		t.Fatalf("kind = %v, want KindDeposited", kind)
	}
	if ev.Name != storage.EventDeposited {
		t.Errorf("name = %q", ev.Name)
	}
	if ev.Campaign != "0xaaaa00000000000000000000000000000000aaaa" {
		t.Errorf("campaign not lowercased: %q", ev.Campaign)
	}
	if ev.Args["investor"] != "0xbbbb00000000000000000000000000000000bbbb" {
		t.Errorf("investor = %q", ev.Args["investor"])
	}
	if ev.Args["amount"] != "5000000" {
		t.Errorf("amount = %q", ev.Args["amount"])
	}
	if ev.BlockNumber != 120 || ev.LogIndex != 3 {
		t.Errorf("position = (%d, %d)", ev.BlockNumber, ev.LogIndex)
	}
}

func TestDecodeCampaignCreated(t *testing.T) {
	data, err := chain.FactoryABI.Events["CampaignCreated"].Inputs.NonIndexed().Pack(
		big.NewInt(1_000_000), big.NewInt(10_000_000),
	)
	if err != nil {
		t.Fatalf("pack: %v", err)
	}

	factory := common.HexToAddress("0xFFFF00000000000000000000000000000000FFFF")
	log := types.Log{
		Address: factory,
		Topics: []common.Hash{
			chain.CampaignCreatedTopic,
			common.BytesToHash(decCampaign.Bytes()),
			common.BytesToHash(decCreator.Bytes()),
		},
		Data:        data,
		BlockNumber: 50,
		TxHash:      common.HexToHash("0x02"),
	}

	ev, kind, err := Decode(log)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if kind != KindCampaignCreated {
		t.Fatalf("kind = %v", kind)
	}
	// The subject is the new campaign, not the emitting factory.
	if ev.Campaign != "0xaaaa00000000000000000000000000000000aaaa" {
		t.Errorf("campaign = %q", ev.Campaign)
	}
	if ev.Args["creator"] != "0xcccc00000000000000000000000000000000cccc" {
		t.Errorf("creator = %q", ev.Args["creator"])
	}
	if ev.Args["floor"] != "1000000" || ev.Args["ceil"] != "10000000" {
		t.Errorf("bounds = %q / %q", ev.Args["floor"], ev.Args["ceil"])
	}
}

func TestDecodeWithdrawn(t *testing.T) {
	data := packEventData(t, "Withdrawn", big.NewInt(7_500_000), big.NewInt(1_700_000_000))

	log := types.Log{
		Address: decCampaign,
		Topics:  []common.Hash{chain.CampaignABI.Events["Withdrawn"].ID},
		Data:    data,
		TxHash:  common.HexToHash("0x03"),
	}

	ev, kind, err := Decode(log)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if kind != KindWithdrawn {
		t.Fatalf("kind = %v", kind)
	}
	if ev.Args["amount"] != "7500000" || ev.Args["timestamp"] != "1700000000" {
		t.Errorf("args = %v", ev.Args)
	}
}

func TestDecodeFundsReturned(t *testing.T) {
	data := packEventData(t, "FundsReturned", big.NewInt(900))

	log := types.Log{
		Address: decCampaign,
		Topics:  []common.Hash{chain.CampaignABI.Events["FundsReturned"].ID},
		Data:    data,
		TxHash:  common.HexToHash("0x04"),
	}

	ev, _, err := Decode(log)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if ev.Name != storage.EventFundsReturned || ev.Args["amount"] != "900" {
		t.Errorf("ev = %+v", ev)
	}
}

func TestDecodeUnknownTopic(t *testing.T) {
	log := types.Log{
		Address: decCampaign,
		Topics:  []common.Hash{common.HexToHash("0xdead")},
		TxHash:  common.HexToHash("0x05"),
	}
	if _, _, err := Decode(log); err == nil {
		t.Fatal("expected error for unknown topic0")
	}
}

func TestDecodeMalformedData(t *testing.T) {
	log := types.Log{
		Address: decCampaign,
		Topics:  []common.Hash{chain.CampaignABI.Events["Deposited"].ID, common.BytesToHash(decInvestor.Bytes())},
		Data:    []byte{0x01, 0x02},
		TxHash:  common.HexToHash("0x06"),
	}
	if _, _, err := Decode(log); err == nil {
		t.Fatal("expected error for truncated data")
	}
}

func TestKindForTopicCoversAllTrackedEvents(t *testing.T) {
	topics := map[common.Hash]Kind{
		chain.CampaignCreatedTopic:                  KindCampaignCreated,
		chain.CampaignABI.Events["Deposited"].ID:    KindDeposited,
		chain.CampaignABI.Events["Withdrawn"].ID:    KindWithdrawn,
		chain.CampaignABI.Events["Refunded"].ID:     KindRefunded,
		chain.CampaignABI.Events["FundsReturned"].ID: KindFundsReturned,
		chain.CampaignABI.Events["Claimed"].ID:      KindClaimed,
	}
	for topic, want := range topics {
		got, ok := KindForTopic(topic)
		if !ok || got != want {
			t.Errorf("KindForTopic(%s) = (%v, %v), want %v", topic.Hex(), got, ok, want)
		}
	}
}
