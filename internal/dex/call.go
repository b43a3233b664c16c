package dex

import (
	"bytes"
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"liquidityPricer/internal/chain"
)

// CallContractFunction packs method with args, performs a read-only call on
// contract at the latest block and returns the unpacked outputs.
func CallContractFunction(ctx context.Context, caller chain.ContractCaller, parsed abi.ABI, contract common.Address, method string, args ...interface{}) ([]interface{}, error) {
	if caller == nil {
		return nil, fmt.Errorf("chain client is nil")
	}
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	msg := ethereum.CallMsg{To: &contract, Data: data}
	resp, err := caller.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	values, err := parsed.Unpack(method, resp)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("%s returned no values", method)
	}
	return values, nil
}

// CallSingle calls method and converts its first output to T.
func CallSingle[T any](ctx context.Context, caller chain.ContractCaller, parsed abi.ABI, contract common.Address, method string, args ...interface{}) (T, error) {
	var zero T
	values, err := CallContractFunction(ctx, caller, parsed, contract, method, args...)
	if err != nil {
		return zero, err
	}
	return convert[T](values[0])
}

func convert[T any](value interface{}) (T, error) {
	var zero T
	if out, ok := value.(T); ok {
		return out, nil
	}
	switch any(zero).(type) {
	case *big.Int:
		v, err := asBigInt(value)
		if err != nil {
			return zero, err
		}
		return any(v).(T), nil
	case common.Address:
		v, err := asAddress(value)
		if err != nil {
			return zero, err
		}
		return any(v).(T), nil
	case uint8:
		v, err := asUint8(value)
		if err != nil {
			return zero, err
		}
		return any(v).(T), nil
	case string:
		if v, ok := bytes32ToString(value); ok {
			return any(v).(T), nil
		}
	}
	return zero, fmt.Errorf("unsupported conversion from %T to %T", value, zero)
}

func bytes32ToString(value interface{}) (string, bool) {
	switch v := value.(type) {
	case [32]byte:
		return string(bytes.TrimRight(v[:], "\x00")), true
	case []byte:
		return string(bytes.TrimRight(v, "\x00")), true
	default:
		return "", false
	}
}

func asAddress(value interface{}) (common.Address, error) {
	switch v := value.(type) {
	case common.Address:
		return v, nil
	case *common.Address:
		return *v, nil
	default:
		return common.Address{}, fmt.Errorf("unsupported address type %T", value)
	}
}

func asBigInt(value interface{}) (*big.Int, error) {
	switch v := value.(type) {
	case *big.Int:
		return new(big.Int).Set(v), nil
	case big.Int:
		return new(big.Int).Set(&v), nil
	case uint8:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint16:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint32:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint64:
		return new(big.Int).SetUint64(v), nil
	default:
		return nil, fmt.Errorf("unsupported int type %T", value)
	}
}

func asUint8(value interface{}) (uint8, error) {
	switch v := value.(type) {
	case uint8:
		return v, nil
	case *big.Int:
		if !v.IsUint64() || v.Uint64() > 255 {
			return 0, fmt.Errorf("uint8 overflow: %s", v.String())
		}
		return uint8(v.Uint64()), nil
	default:
		return 0, fmt.Errorf("unsupported uint8 type %T", value)
	}
}
