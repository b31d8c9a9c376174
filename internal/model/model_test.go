package model

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestPoolJSONRoundTrip(t *testing.T) {
	original := NewPool(PoolAccounts{
		Address:   common.HexToAddress("0x1111111111111111111111111111111111111111"),
		Market:    common.HexToAddress("0x2222222222222222222222222222222222222222"),
		BaseMint:  common.HexToAddress("0x3333333333333333333333333333333333333333"),
		QuoteMint: common.HexToAddress("0x4444444444444444444444444444444444444444"),
	}, CurveStable, 9, 6)
	original.BaseAmount = 1_000_000_000
	original.PlacedAsks[3] = PlacedOrder{LimitPrice: 1002, BaseQty: 800, MaxQuoteQtyInclFees: 800640, ClientOrderID: 7}

	b, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	var decoded Pool
	if err := json.Unmarshal(b, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if !reflect.DeepEqual(original, decoded) {
		t.Fatalf("round-trip mismatch: %+v != %+v", original, decoded)
	}
}

func TestNewPoolDefaults(t *testing.T) {
	p := NewPool(PoolAccounts{}, CurveXYK, 6, 6)
	if p.ClientOrderID != 1 || !p.MMActive {
		t.Fatalf("unexpected defaults: id=%d active=%v", p.ClientOrderID, p.MMActive)
	}
	if asks, bids := p.PlacedCount(); asks != 0 || bids != 0 {
		t.Fatalf("expected empty ladders, got %d/%d", asks, bids)
	}
}

func TestRecentOrders(t *testing.T) {
	snap := BookSnapshot{Orders: []CurrentOrder{
		{ClientOrderID: 3}, {ClientOrderID: 20}, {ClientOrderID: 25},
	}}
	got := snap.RecentOrders(40, 20)
	if len(got.Orders) != 2 || got.Orders[0].ClientOrderID != 20 {
		t.Fatalf("unexpected filter result: %+v", got.Orders)
	}
	if len(snap.RecentOrders(5, 20).Orders) != 3 {
		t.Fatalf("small ids must be kept")
	}
}

func TestFormatAmount(t *testing.T) {
	tests := map[string]struct {
		value    uint64
		decimals uint8
		want     string
	}{
		"whole":    {1_000_000, 6, "1"},
		"fraction": {1_500_000, 6, "1.5"},
		"raw":      {42, 0, "42"},
		"tiny":     {1, 9, "0.000000001"},
		"zero":     {0, 6, "0"},
	}
	for name, tt := range tests {
		if got := FormatAmount(tt.value, tt.decimals); got != tt.want {
			t.Fatalf("%s: got %s want %s", name, got, tt.want)
		}
	}
}

func TestParseCurveType(t *testing.T) {
	c, err := ParseCurveType("STABLE")
	if err != nil || c != CurveStable {
		t.Fatalf("parse stable: %v %v", c, err)
	}
	if _, err := ParseCurveType("weighted"); err == nil {
		t.Fatalf("expected error")
	}
	if CurveStable.FeeBps() != 4 || CurveXYK.FeeBps() != 20 {
		t.Fatalf("unexpected fees")
	}
}
