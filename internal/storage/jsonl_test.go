package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"liquidityPricer/internal/model"
)

func TestJsonlStorageAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "snapshots.jsonl")
	store := NewJsonlStorage(path)

	snap := model.PoolSnapshot{
		Reserves: model.PoolReserves{PoolAddress: common.HexToAddress("0x01")},
		TVLUSD:   decimal.NewFromInt(4_000_000),
		APY:      decimal.RequireFromString("10.95"),
	}
	for i := 0; i < 2; i++ {
		if err := store.PutSnapshots(context.Background(), []model.PoolSnapshot{snap}); err != nil {
			t.Fatalf("put: %v", err)
		}
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	lines := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var got model.PoolSnapshot
		if err := json.Unmarshal(scanner.Bytes(), &got); err != nil {
			t.Fatalf("line %d: %v", lines, err)
		}
		if !got.TVLUSD.Equal(snap.TVLUSD) || !got.APY.Equal(snap.APY) {
			t.Fatalf("round trip mismatch: %+v", got)
		}
		lines++
	}
	if lines != 2 {
		t.Fatalf("lines = %d, want 2", lines)
	}
}

func TestJsonlStorageEmptyBatchCreatesNothing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshots.jsonl")
	if err := NewJsonlStorage(path).PutSnapshots(context.Background(), nil); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("file should not exist, stat err = %v", err)
	}
}
