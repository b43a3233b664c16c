// Package chaintest provides an in-memory ledger for tests.
package chaintest

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
)

// ErrExecutionReverted mimics a reverted eth_call.
var ErrExecutionReverted = errors.New("execution reverted")

type callKey struct {
	to       common.Address
	selector [4]byte
}

// FakeCaller answers eth_call requests from canned responses keyed by
// contract address and method selector. Unknown calls revert.
type FakeCaller struct {
	mu        sync.RWMutex
	responses map[callKey][]byte
	errs      map[callKey]error
	calls     atomic.Int64
	Block     uint64
	BlockErr  error
}

func NewFakeCaller() *FakeCaller {
	return &FakeCaller{
		responses: make(map[callKey][]byte),
		errs:      make(map[callKey]error),
	}
}

// Respond registers the raw return data for a call.
func (f *FakeCaller) Respond(to common.Address, selector []byte, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[newKey(to, selector)] = data
}

// Fail registers an error for a call.
func (f *FakeCaller) Fail(to common.Address, selector []byte, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[newKey(to, selector)] = err
}

// Calls returns the number of CallContract invocations.
func (f *FakeCaller) Calls() int64 {
	return f.calls.Load()
}

func (f *FakeCaller) CallContract(ctx context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if msg.To == nil || len(msg.Data) < 4 {
		return nil, fmt.Errorf("malformed call")
	}
	key := newKey(*msg.To, msg.Data[:4])

	f.mu.RLock()
	defer f.mu.RUnlock()
	if err, ok := f.errs[key]; ok {
		return nil, err
	}
	if data, ok := f.responses[key]; ok {
		return data, nil
	}
	return nil, ErrExecutionReverted
}

func (f *FakeCaller) LatestBlockNumber(ctx context.Context) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return f.Block, f.BlockErr
}

func newKey(to common.Address, selector []byte) callKey {
	var key callKey
	key.to = to
	copy(key.selector[:], selector)
	return key
}
