package chain

import (
	"context"
	"encoding/hex"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// fakeBackend serves canned responses keyed by calldata, standing in for
// an RPC node.
type fakeBackend struct {
	height    uint64
	heightErr error
	logs      []types.Log
	queries   []ethereum.FilterQuery
	responses map[string][]byte
	callErr   error
}

func (f *fakeBackend) BlockNumber(ctx context.Context) (uint64, error) {
	return f.height, f.heightErr
}

func (f *fakeBackend) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	f.queries = append(f.queries, q)
	return f.logs, nil
}

func (f *fakeBackend) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	if f.callErr != nil {
		return nil, f.callErr
	}
	key := msg.To.Hex() + ":" + hex.EncodeToString(msg.Data)
	resp, ok := f.responses[key]
	if !ok {
		return nil, ethereum.NotFound
	}
	return resp, nil
}

func (f *fakeBackend) stubCall(t *testing.T, to common.Address, contractABI interface {
	Pack(name string, args ...interface{}) ([]byte, error)
}, method string, outputs []byte) {
	t.Helper()
	data, err := contractABI.Pack(method)
	if err != nil {
		t.Fatalf("pack %s: %v", method, err)
	}
	if f.responses == nil {
		f.responses = make(map[string][]byte)
	}
	f.responses[to.Hex()+":"+hex.EncodeToString(data)] = outputs
}

func packOutputs(t *testing.T, contract string, method string, vals ...interface{}) []byte {
	t.Helper()
	var out []byte
	var err error
	switch contract {
	case "factory":
		out, err = FactoryABI.Methods[method].Outputs.Pack(vals...)
	case "campaign":
		out, err = CampaignABI.Methods[method].Outputs.Pack(vals...)
	case "erc20":
		out, err = ERC20ABI.Methods[method].Outputs.Pack(vals...)
	}
	if err != nil {
		t.Fatalf("pack outputs for %s: %v", method, err)
	}
	return out
}

var (
	testFactory  = common.HexToAddress("0xFac7000000000000000000000000000000000001")
	testCampaign = common.HexToAddress("0xCa3900000000000000000000000000000000C001")
	testToken    = common.HexToAddress("0x70c3000000000000000000000000000000000001")
	testCreator  = common.HexToAddress("0xC4ea000000000000000000000000000000000001")
)

func newTestClient(backend *fakeBackend) *Client {
	policy := RetryPolicy{MaxAttempts: 2, BaseDelay: 1, Sleep: noSleep}
	return newClient(backend, testFactory, policy, testLogger())
}

func TestClient_Campaigns(t *testing.T) {
	backend := &fakeBackend{}
	backend.stubCall(t, testFactory, FactoryABI, "getCampaigns",
		packOutputs(t, "factory", "getCampaigns", []common.Address{testCampaign}))

	client := newTestClient(backend)

	campaigns, err := client.Campaigns(context.Background())
	if err != nil {
		t.Fatalf("Campaigns: %v", err)
	}
	if len(campaigns) != 1 || campaigns[0] != testCampaign {
		t.Errorf("unexpected campaigns: %v", campaigns)
	}
}

func TestClient_CampaignState(t *testing.T) {
	backend := &fakeBackend{}
	backend.stubCall(t, testCampaign, CampaignABI, "creator", packOutputs(t, "campaign", "creator", testCreator))
	backend.stubCall(t, testCampaign, CampaignABI, "token", packOutputs(t, "campaign", "token", testToken))
	backend.stubCall(t, testCampaign, CampaignABI, "floor", packOutputs(t, "campaign", "floor", big.NewInt(1000)))
	backend.stubCall(t, testCampaign, CampaignABI, "ceil", packOutputs(t, "campaign", "ceil", big.NewInt(5000)))
	backend.stubCall(t, testCampaign, CampaignABI, "totalRaised", packOutputs(t, "campaign", "totalRaised", big.NewInt(1200)))
	backend.stubCall(t, testCampaign, CampaignABI, "returnedAmount", packOutputs(t, "campaign", "returnedAmount", big.NewInt(0)))
	backend.stubCall(t, testCampaign, CampaignABI, "withdrawnAt", packOutputs(t, "campaign", "withdrawnAt", big.NewInt(0)))

	client := newTestClient(backend)

	state, err := client.CampaignState(context.Background(), testCampaign)
	if err != nil {
		t.Fatalf("CampaignState: %v", err)
	}

	if state.Creator != testCreator {
		t.Errorf("creator = %s, want %s", state.Creator, testCreator)
	}
	if state.Token != testToken {
		t.Errorf("token = %s, want %s", state.Token, testToken)
	}
	if state.Floor.Int64() != 1000 || state.Ceil.Int64() != 5000 {
		t.Errorf("floor/ceil = %s/%s", state.Floor, state.Ceil)
	}
	if state.TotalRaised.Int64() != 1200 {
		t.Errorf("totalRaised = %s", state.TotalRaised)
	}
	if state.WithdrawnAt.Sign() != 0 {
		t.Errorf("withdrawnAt = %s", state.WithdrawnAt)
	}
}

func TestClient_TokenMetadata(t *testing.T) {
	backend := &fakeBackend{}
	backend.stubCall(t, testToken, ERC20ABI, "symbol", packOutputs(t, "erc20", "symbol", "USDC"))
	backend.stubCall(t, testToken, ERC20ABI, "decimals", packOutputs(t, "erc20", "decimals", uint8(6)))

	client := newTestClient(backend)

	info, err := client.TokenMetadata(context.Background(), testToken)
	if err != nil {
		t.Fatalf("TokenMetadata: %v", err)
	}
	if info.Symbol != "USDC" || info.Decimals != 6 {
		t.Errorf("unexpected token info: %+v", info)
	}
}

func TestClient_FactoryLogsQueryShape(t *testing.T) {
	backend := &fakeBackend{}
	client := newTestClient(backend)

	if _, err := client.FactoryLogs(context.Background(), 100, 200); err != nil {
		t.Fatalf("FactoryLogs: %v", err)
	}

	if len(backend.queries) != 1 {
		t.Fatalf("expected 1 query, got %d", len(backend.queries))
	}
	q := backend.queries[0]
	if q.FromBlock.Uint64() != 100 || q.ToBlock.Uint64() != 200 {
		t.Errorf("range = %s-%s", q.FromBlock, q.ToBlock)
	}
	if len(q.Addresses) != 1 || q.Addresses[0] != testFactory {
		t.Errorf("addresses = %v", q.Addresses)
	}
	if len(q.Topics) != 1 || len(q.Topics[0]) != 1 || q.Topics[0][0] != CampaignCreatedTopic {
		t.Errorf("topics = %v", q.Topics)
	}
}

func TestClient_CampaignLogsEmptyAddressList(t *testing.T) {
	backend := &fakeBackend{}
	client := newTestClient(backend)

	logs, err := client.CampaignLogs(context.Background(), nil, 1, 10)
	if err != nil {
		t.Fatalf("CampaignLogs: %v", err)
	}
	if logs != nil {
		t.Errorf("expected no logs without campaigns, got %v", logs)
	}
	if len(backend.queries) != 0 {
		t.Errorf("expected no RPC query for empty campaign list")
	}
}

func TestClient_CampaignLogsTopicFilter(t *testing.T) {
	backend := &fakeBackend{}
	client := newTestClient(backend)

	if _, err := client.CampaignLogs(context.Background(), []common.Address{testCampaign}, 1, 10); err != nil {
		t.Fatalf("CampaignLogs: %v", err)
	}

	q := backend.queries[0]
	if len(q.Topics) != 1 || len(q.Topics[0]) != 5 {
		t.Fatalf("expected a single OR group of 5 topics, got %v", q.Topics)
	}
}
