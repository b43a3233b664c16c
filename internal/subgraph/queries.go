package subgraph

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"liquidityPricer/internal/model"
)

// Schema selects the entity layout of an indexer.
type Schema string

const (
	// SchemaV2 is the constant-product layout: pairs, pairDayDatas, bundle.ethPrice.
	SchemaV2 Schema = "v2"
	// SchemaV3 is the concentrated-liquidity layout: pools, poolDayDatas,
	// bundle.ethPriceUSD.
	SchemaV3 Schema = "v3"
)

// ParseSchema accepts "v2", "v3" and the empty string (v2).
func ParseSchema(s string) (Schema, error) {
	switch Schema(strings.ToLower(strings.TrimSpace(s))) {
	case "", SchemaV2:
		return SchemaV2, nil
	case SchemaV3:
		return SchemaV3, nil
	default:
		return "", fmt.Errorf("unknown subgraph schema %q", s)
	}
}

// queries holds one schema's query texts. Aliases map both layouts onto the
// same response shapes.
type queries struct {
	prices    string
	pool      string
	days      string
	findPools string
	listPools string
}

const metaQuery = `{ _meta { block { number } } }`

const v2PoolFields = `id
    token0 { id symbol decimals }
    token1 { id symbol decimals }
    reserve0
    reserve1
    totalSupply
    reserveUSD`

const v3PoolFields = `id
    token0 { id symbol decimals }
    token1 { id symbol decimals }
    reserve0: totalValueLockedToken0
    reserve1: totalValueLockedToken1
    totalSupply: liquidity
    reserveUSD: totalValueLockedUSD
    feeTier`

var schemaQueries = map[Schema]queries{
	SchemaV2: {
		prices: `query prices($ids: [ID!]!) {
  tokens(where: { id_in: $ids }) { id derivedETH }
  bundle(id: "1") { ethPrice }
}`,
		pool: `query pool($id: ID!) {
  pair(id: $id) {
    ` + v2PoolFields + `
  }
}`,
		days: `query days($id: String!, $first: Int!) {
  days: pairDayDatas(first: $first, orderBy: date, orderDirection: desc, where: { pairAddress: $id }) {
    date
    volumeUSD: dailyVolumeUSD
    tvlUSD: reserveUSD
  }
}`,
		findPools: `query findPools($a: String!, $b: String!) {
  ab: pairs(where: { token0: $a, token1: $b }) {
    ` + v2PoolFields + `
  }
  ba: pairs(where: { token0: $b, token1: $a }) {
    ` + v2PoolFields + `
  }
}`,
		listPools: `query listPools($token: String!, $first: Int!) {
  as0: pairs(first: $first, orderBy: reserveUSD, orderDirection: desc, where: { token0: $token }) {
    ` + v2PoolFields + `
  }
  as1: pairs(first: $first, orderBy: reserveUSD, orderDirection: desc, where: { token1: $token }) {
    ` + v2PoolFields + `
  }
}`,
	},
	SchemaV3: {
		prices: `query prices($ids: [ID!]!) {
  tokens(where: { id_in: $ids }) { id derivedETH }
  bundle(id: "1") { ethPrice: ethPriceUSD }
}`,
		pool: `query pool($id: ID!) {
  pair: pool(id: $id) {
    ` + v3PoolFields + `
  }
}`,
		days: `query days($id: String!, $first: Int!) {
  days: poolDayDatas(first: $first, orderBy: date, orderDirection: desc, where: { pool: $id }) {
    date
    volumeUSD
    feesUSD
    tvlUSD
  }
}`,
		findPools: `query findPools($a: String!, $b: String!) {
  ab: pools(where: { token0: $a, token1: $b }) {
    ` + v3PoolFields + `
  }
  ba: pools(where: { token0: $b, token1: $a }) {
    ` + v3PoolFields + `
  }
}`,
		listPools: `query listPools($token: String!, $first: Int!) {
  as0: pools(first: $first, orderBy: totalValueLockedUSD, orderDirection: desc, where: { token0: $token }) {
    ` + v3PoolFields + `
  }
  as1: pools(first: $first, orderBy: totalValueLockedUSD, orderDirection: desc, where: { token1: $token }) {
    ` + v3PoolFields + `
  }
}`,
	},
}

type tokenEntity struct {
	ID       string `json:"id"`
	Symbol   string `json:"symbol"`
	Decimals string `json:"decimals"`
}

func (t tokenEntity) ref() model.TokenRef {
	decimals, _ := strconv.ParseUint(t.Decimals, 10, 8)
	return model.TokenRef{
		Address:  common.HexToAddress(t.ID),
		Symbol:   t.Symbol,
		Decimals: uint8(decimals),
	}
}

type poolEntity struct {
	ID          string          `json:"id"`
	Token0      tokenEntity     `json:"token0"`
	Token1      tokenEntity     `json:"token1"`
	Reserve0    decimal.Decimal `json:"reserve0"`
	Reserve1    decimal.Decimal `json:"reserve1"`
	TotalSupply decimal.Decimal `json:"totalSupply"`
	ReserveUSD  decimal.Decimal `json:"reserveUSD"`
	FeeTier     string          `json:"feeTier"`
}

func (p poolEntity) candidate(venue string) model.PoolCandidate {
	return model.PoolCandidate{
		Address:    common.HexToAddress(p.ID),
		Token0:     common.HexToAddress(p.Token0.ID),
		Token1:     common.HexToAddress(p.Token1.ID),
		ReserveUSD: p.ReserveUSD,
		Venue:      venue,
	}
}

type poolResponse struct {
	Pair *poolEntity `json:"pair"`
}

type pricedToken struct {
	ID         string          `json:"id"`
	DerivedETH decimal.Decimal `json:"derivedETH"`
}

type pricesResponse struct {
	Tokens []pricedToken `json:"tokens"`
	Bundle *struct {
		EthPrice decimal.Decimal `json:"ethPrice"`
	} `json:"bundle"`
}

type dayEntity struct {
	Date      int64           `json:"date"`
	VolumeUSD decimal.Decimal `json:"volumeUSD"`
	FeesUSD   decimal.Decimal `json:"feesUSD"`
	TVLUSD    decimal.Decimal `json:"tvlUSD"`
}

type daysResponse struct {
	Days []dayEntity `json:"days"`
}

type findPoolsResponse struct {
	AB []poolEntity `json:"ab"`
	BA []poolEntity `json:"ba"`
}

type listPoolsResponse struct {
	As0 []poolEntity `json:"as0"`
	As1 []poolEntity `json:"as1"`
}

type metaResponse struct {
	Meta *struct {
		Block struct {
			Number int64 `json:"number"`
		} `json:"block"`
	} `json:"_meta"`
}

func entityID(address common.Address) string {
	return strings.ToLower(address.Hex())
}
