package chain

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Contract ABIs, limited to the events and views the indexer consumes.
const (
	factoryABIJSON = `[
		{"type":"event","name":"CampaignCreated","inputs":[
			{"name":"campaign","type":"address","indexed":true},
			{"name":"creator","type":"address","indexed":true},
			{"name":"floor","type":"uint256","indexed":false},
			{"name":"ceil","type":"uint256","indexed":false}]},
		{"type":"function","name":"getCampaigns","stateMutability":"view","inputs":[],
			"outputs":[{"name":"","type":"address[]"}]}
	]`

	campaignABIJSON = `[
		{"type":"event","name":"Deposited","inputs":[
			{"name":"investor","type":"address","indexed":true},
			{"name":"amount","type":"uint256","indexed":false}]},
		{"type":"event","name":"Withdrawn","inputs":[
			{"name":"amount","type":"uint256","indexed":false},
			{"name":"timestamp","type":"uint256","indexed":false}]},
		{"type":"event","name":"Refunded","inputs":[
			{"name":"investor","type":"address","indexed":true},
			{"name":"amount","type":"uint256","indexed":false}]},
		{"type":"event","name":"FundsReturned","inputs":[
			{"name":"amount","type":"uint256","indexed":false}]},
		{"type":"event","name":"Claimed","inputs":[
			{"name":"investor","type":"address","indexed":true},
			{"name":"amount","type":"uint256","indexed":false}]},
		{"type":"function","name":"creator","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
		{"type":"function","name":"token","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
		{"type":"function","name":"floor","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
		{"type":"function","name":"ceil","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
		{"type":"function","name":"totalRaised","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
		{"type":"function","name":"returnedAmount","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
		{"type":"function","name":"withdrawnAt","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]}
	]`

	erc20ABIJSON = `[
		{"type":"function","name":"symbol","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
		{"type":"function","name":"decimals","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]}
	]`
)

var (
	// FactoryABI covers the factory's creation event and campaign enumeration.
	FactoryABI = mustParseABI(factoryABIJSON)

	// CampaignABI covers the per-campaign lifecycle events and state views.
	CampaignABI = mustParseABI(campaignABIJSON)

	// ERC20ABI covers the token metadata views.
	ERC20ABI = mustParseABI(erc20ABIJSON)
)

var (
	// CampaignCreatedTopic is topic0 of the factory creation event.
	CampaignCreatedTopic = FactoryABI.Events["CampaignCreated"].ID

	// CampaignEventTopics is topic0 of every campaign lifecycle event,
	// used as an OR filter in log queries.
	CampaignEventTopics = []common.Hash{
		CampaignABI.Events["Deposited"].ID,
		CampaignABI.Events["Withdrawn"].ID,
		CampaignABI.Events["Refunded"].ID,
		CampaignABI.Events["FundsReturned"].ID,
		CampaignABI.Events["Claimed"].ID,
	}
)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}
