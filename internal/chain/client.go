// Package chain wraps the JSON-RPC node the indexer reads from: block
// height, filtered log retrieval, and the read-only contract views the
// factory, campaign, and token contracts expose.
package chain

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// backend is the slice of ethclient the Client depends on, split out so
// tests can substitute a fake node.
type backend interface {
	BlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// CampaignState is a snapshot of one campaign contract's views. Live
// contract state is the authoritative source for current totals.
type CampaignState struct {
	Creator     common.Address
	Token       common.Address
	Floor       *big.Int
	Ceil        *big.Int
	TotalRaised *big.Int
	Returned    *big.Int
	WithdrawnAt *big.Int
}

// TokenInfo is the metadata pair read from an ERC20 token contract.
type TokenInfo struct {
	Symbol   string
	Decimals uint8
}

// Client reads chain state for one factory and its campaigns. Every call
// goes through the retry policy, so a rate-limited provider slows the
// indexer down instead of failing batches.
type Client struct {
	eth     backend
	factory common.Address
	retry   RetryPolicy
	logger  *slog.Logger
}

// Dial connects to the RPC endpoint and returns a Client bound to the
// given factory contract.
func Dial(ctx context.Context, rpcURL string, factory common.Address, retry RetryPolicy, logger *slog.Logger) (*Client, error) {
	eth, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}
	return newClient(eth, factory, retry, logger), nil
}

func newClient(eth backend, factory common.Address, retry RetryPolicy, logger *slog.Logger) *Client {
	if retry.MaxAttempts == 0 {
		retry = DefaultRetryPolicy()
	}
	return &Client{
		eth:     eth,
		factory: factory,
		retry:   retry,
		logger:  logger.With("component", "chain-client"),
	}
}

// Factory returns the factory contract address the client is bound to.
func (c *Client) Factory() common.Address {
	return c.factory
}

// Close releases the underlying RPC connection when one exists.
func (c *Client) Close() {
	if closer, ok := c.eth.(interface{ Close() }); ok {
		closer.Close()
	}
}

// Height returns the current chain head block number.
func (c *Client) Height(ctx context.Context) (uint64, error) {
	var height uint64
	err := c.retry.Do(ctx, c.logger, "blockNumber", func() error {
		var err error
		height, err = c.eth.BlockNumber(ctx)
		return err
	})
	return height, err
}

// FactoryLogs returns the factory's CampaignCreated logs in the block range.
func (c *Client) FactoryLogs(ctx context.Context, fromBlock, toBlock uint64) ([]types.Log, error) {
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: []common.Address{c.factory},
		Topics:    [][]common.Hash{{CampaignCreatedTopic}},
	}

	var logs []types.Log
	err := c.retry.Do(ctx, c.logger, fmt.Sprintf("factory logs %d-%d", fromBlock, toBlock), func() error {
		var err error
		logs, err = c.eth.FilterLogs(ctx, query)
		return err
	})
	return logs, err
}

// CampaignLogs returns lifecycle logs emitted by the given campaigns in
// the block range, in the node's log order.
func (c *Client) CampaignLogs(ctx context.Context, campaigns []common.Address, fromBlock, toBlock uint64) ([]types.Log, error) {
	if len(campaigns) == 0 {
		return nil, nil
	}

	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: campaigns,
		Topics:    [][]common.Hash{CampaignEventTopics},
	}

	var logs []types.Log
	err := c.retry.Do(ctx, c.logger, fmt.Sprintf("campaign logs %d-%d", fromBlock, toBlock), func() error {
		var err error
		logs, err = c.eth.FilterLogs(ctx, query)
		return err
	})
	return logs, err
}

// Campaigns enumerates every campaign the factory has deployed.
func (c *Client) Campaigns(ctx context.Context) ([]common.Address, error) {
	var out []common.Address
	err := c.retry.Do(ctx, c.logger, "getCampaigns", func() error {
		raw, err := c.call(ctx, c.factory, FactoryABI, "getCampaigns")
		if err != nil {
			return err
		}
		vals, err := FactoryABI.Unpack("getCampaigns", raw)
		if err != nil {
			return fmt.Errorf("unpack getCampaigns: %w", err)
		}
		addrs, ok := vals[0].([]common.Address)
		if !ok {
			return fmt.Errorf("getCampaigns: unexpected return type %T", vals[0])
		}
		out = addrs
		return nil
	})
	return out, err
}

// CampaignToken reads a campaign's settlement token address.
func (c *Client) CampaignToken(ctx context.Context, campaign common.Address) (common.Address, error) {
	var token common.Address
	err := c.retry.Do(ctx, c.logger, "campaign token", func() error {
		var err error
		token, err = c.callAddress(ctx, campaign, "token")
		return err
	})
	return token, err
}

// CampaignState reads every view the aggregation engine needs from one
// campaign contract.
func (c *Client) CampaignState(ctx context.Context, campaign common.Address) (*CampaignState, error) {
	state := &CampaignState{}
	err := c.retry.Do(ctx, c.logger, "campaign state", func() error {
		var err error
		if state.Creator, err = c.callAddress(ctx, campaign, "creator"); err != nil {
			return err
		}
		if state.Token, err = c.callAddress(ctx, campaign, "token"); err != nil {
			return err
		}
		if state.Floor, err = c.callUint(ctx, campaign, "floor"); err != nil {
			return err
		}
		if state.Ceil, err = c.callUint(ctx, campaign, "ceil"); err != nil {
			return err
		}
		if state.TotalRaised, err = c.callUint(ctx, campaign, "totalRaised"); err != nil {
			return err
		}
		if state.Returned, err = c.callUint(ctx, campaign, "returnedAmount"); err != nil {
			return err
		}
		if state.WithdrawnAt, err = c.callUint(ctx, campaign, "withdrawnAt"); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return state, nil
}

// TokenMetadata reads symbol and decimals from an ERC20 token contract.
func (c *Client) TokenMetadata(ctx context.Context, token common.Address) (TokenInfo, error) {
	var info TokenInfo
	err := c.retry.Do(ctx, c.logger, "token metadata", func() error {
		raw, err := c.call(ctx, token, ERC20ABI, "symbol")
		if err != nil {
			return err
		}
		vals, err := ERC20ABI.Unpack("symbol", raw)
		if err != nil {
			return fmt.Errorf("unpack symbol: %w", err)
		}
		symbol, ok := vals[0].(string)
		if !ok {
			return fmt.Errorf("symbol: unexpected return type %T", vals[0])
		}

		raw, err = c.call(ctx, token, ERC20ABI, "decimals")
		if err != nil {
			return err
		}
		vals, err = ERC20ABI.Unpack("decimals", raw)
		if err != nil {
			return fmt.Errorf("unpack decimals: %w", err)
		}
		decimals, ok := vals[0].(uint8)
		if !ok {
			return fmt.Errorf("decimals: unexpected return type %T", vals[0])
		}

		info = TokenInfo{Symbol: symbol, Decimals: decimals}
		return nil
	})
	return info, err
}

func (c *Client) call(ctx context.Context, to common.Address, contract interface {
	Pack(name string, args ...interface{}) ([]byte, error)
}, method string) ([]byte, error) {
	data, err := contract.Pack(method)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	raw, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	return raw, nil
}

func (c *Client) callAddress(ctx context.Context, campaign common.Address, method string) (common.Address, error) {
	raw, err := c.call(ctx, campaign, CampaignABI, method)
	if err != nil {
		return common.Address{}, err
	}
	vals, err := CampaignABI.Unpack(method, raw)
	if err != nil {
		return common.Address{}, fmt.Errorf("unpack %s: %w", method, err)
	}
	addr, ok := vals[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("%s: unexpected return type %T", method, vals[0])
	}
	return addr, nil
}

func (c *Client) callUint(ctx context.Context, campaign common.Address, method string) (*big.Int, error) {
	raw, err := c.call(ctx, campaign, CampaignABI, method)
	if err != nil {
		return nil, err
	}
	vals, err := CampaignABI.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	n, ok := vals[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s: unexpected return type %T", method, vals[0])
	}
	return n, nil
}
