package dex

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"liquidityPricer/internal/chain"
	"liquidityPricer/internal/model"
)

// PairMeta holds the immutable token addresses of a pair.
type PairMeta struct {
	Token0 common.Address
	Token1 common.Address
}

// PairState is a raw on-chain reading of a pair.
type PairState struct {
	PairMeta
	Reserve0    *big.Int
	Reserve1    *big.Int
	TotalSupply *big.Int
}

// MetaCache caches immutable pair and token metadata by address.
type MetaCache struct {
	mu     sync.RWMutex
	pairs  map[common.Address]PairMeta
	tokens map[common.Address]model.TokenRef
}

func NewMetaCache() *MetaCache {
	return &MetaCache{
		pairs:  make(map[common.Address]PairMeta),
		tokens: make(map[common.Address]model.TokenRef),
	}
}

func (c *MetaCache) Pair(address common.Address) (PairMeta, bool) {
	c.mu.RLock()
	meta, ok := c.pairs[address]
	c.mu.RUnlock()
	return meta, ok
}

func (c *MetaCache) SetPair(address common.Address, meta PairMeta) {
	c.mu.Lock()
	c.pairs[address] = meta
	c.mu.Unlock()
}

func (c *MetaCache) Token(address common.Address) (model.TokenRef, bool) {
	c.mu.RLock()
	ref, ok := c.tokens[address]
	c.mu.RUnlock()
	return ref, ok
}

func (c *MetaCache) SetToken(ref model.TokenRef) {
	c.mu.Lock()
	c.tokens[ref.Address] = ref
	c.mu.Unlock()
}

// FetchPairMeta loads token0/token1 of a pair, consulting the cache first.
func FetchPairMeta(ctx context.Context, caller chain.ContractCaller, pair common.Address, cache *MetaCache) (PairMeta, error) {
	if cache != nil {
		if meta, ok := cache.Pair(pair); ok {
			return meta, nil
		}
	}

	parsed, err := PairABI()
	if err != nil {
		return PairMeta{}, fmt.Errorf("parse pair abi: %w", err)
	}
	token0, err := CallSingle[common.Address](ctx, caller, parsed, pair, "token0")
	if err != nil {
		return PairMeta{}, err
	}
	token1, err := CallSingle[common.Address](ctx, caller, parsed, pair, "token1")
	if err != nil {
		return PairMeta{}, err
	}

	meta := PairMeta{Token0: token0, Token1: token1}
	if cache != nil {
		cache.SetPair(pair, meta)
	}
	return meta, nil
}

// FetchPairState reads reserves and LP supply of a pair at the latest block.
func FetchPairState(ctx context.Context, caller chain.ContractCaller, pair common.Address, cache *MetaCache) (PairState, error) {
	meta, err := FetchPairMeta(ctx, caller, pair, cache)
	if err != nil {
		return PairState{}, err
	}

	parsed, err := PairABI()
	if err != nil {
		return PairState{}, fmt.Errorf("parse pair abi: %w", err)
	}

	values, err := CallContractFunction(ctx, caller, parsed, pair, "getReserves")
	if err != nil {
		return PairState{}, err
	}
	if len(values) < 2 {
		return PairState{}, fmt.Errorf("getReserves return size %d", len(values))
	}
	reserve0, err := asBigInt(values[0])
	if err != nil {
		return PairState{}, fmt.Errorf("reserve0: %w", err)
	}
	reserve1, err := asBigInt(values[1])
	if err != nil {
		return PairState{}, fmt.Errorf("reserve1: %w", err)
	}

	supply, err := CallSingle[*big.Int](ctx, caller, parsed, pair, "totalSupply")
	if err != nil {
		return PairState{}, err
	}

	return PairState{
		PairMeta:    meta,
		Reserve0:    reserve0,
		Reserve1:    reserve1,
		TotalSupply: supply,
	}, nil
}

// FetchFeeBasisPoints reads the pair fee in basis points using method.
func FetchFeeBasisPoints(ctx context.Context, caller chain.ContractCaller, pair common.Address, method string) (*big.Int, error) {
	if !ValidFeeMethod(method) {
		return nil, fmt.Errorf("unsupported fee method %q", method)
	}
	parsed, err := PairABI()
	if err != nil {
		return nil, fmt.Errorf("parse pair abi: %w", err)
	}
	return CallSingle[*big.Int](ctx, caller, parsed, pair, method)
}

// GetPair asks a factory for the pair of two tokens. The zero address means
// no pair exists.
func GetPair(ctx context.Context, caller chain.ContractCaller, factory, tokenA, tokenB common.Address) (common.Address, error) {
	parsed, err := FactoryABI()
	if err != nil {
		return common.Address{}, fmt.Errorf("parse factory abi: %w", err)
	}
	return CallSingle[common.Address](ctx, caller, parsed, factory, "getPair", tokenA, tokenB)
}

// FetchTokenRef loads token decimals and symbol via ERC20 calls.
func FetchTokenRef(ctx context.Context, caller chain.ContractCaller, token common.Address, cache *MetaCache, logger *zap.Logger) (model.TokenRef, error) {
	if cache != nil {
		if ref, ok := cache.Token(token); ok {
			return ref, nil
		}
	}

	ref := model.TokenRef{Address: token}
	stringABI, err := erc20ABIString.get()
	if err != nil {
		return ref, fmt.Errorf("parse erc20 string abi: %w", err)
	}
	bytes32ABI, err := erc20ABIBytes32.get()
	if err != nil {
		return ref, fmt.Errorf("parse erc20 bytes32 abi: %w", err)
	}

	decimals, err := CallSingle[uint8](ctx, caller, stringABI, token, "decimals")
	if err != nil {
		return ref, err
	}
	ref.Decimals = decimals

	if symbol, err := CallSingle[string](ctx, caller, stringABI, token, "symbol"); err == nil {
		ref.Symbol = symbol
	} else if symbol, err := CallSingle[string](ctx, caller, bytes32ABI, token, "symbol"); err == nil {
		ref.Symbol = symbol
	} else if logger != nil {
		logger.Debug("symbol call failed", zap.String("token", token.Hex()), zap.Error(err))
	}

	if cache != nil {
		cache.SetToken(ref)
	}
	return ref, nil
}

// ScaleAmount converts a raw integer token amount into a decimal using the
// token's decimals.
func ScaleAmount(value *big.Int, decimals uint8) decimal.Decimal {
	if value == nil || value.Sign() <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(value, -int32(decimals))
}
