// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package settlement

import (
	"math/big"
	"testing"
)

func TestRequiredFloor(t *testing.T) {
	cases := []struct {
		balance int64
		bps     uint64
		want    int64
	}{
		{10_000, 300, 300},
		{100, 300, 3},
		{50, 1000, 5},
		{33, 300, 0},  // 0.99 truncates to zero
		{199, 300, 5}, // 5.97 truncates to 5
		{100, 0, 0},
		{0, 1000, 0},
	}

	for _, tc := range cases {
		got := RequiredFloor(big.NewInt(tc.balance), tc.bps)
		if got.Cmp(big.NewInt(tc.want)) != 0 {
			t.Fatalf("RequiredFloor(%d, %d): got %v, want %d", tc.balance, tc.bps, got, tc.want)
		}
	}
}

func TestCheckProfitFloor(t *testing.T) {
	cases := []struct {
		name     string
		balance  int64
		withdraw int64
		bps      uint64
		breach   bool
	}{
		{"ample headroom", 1000, 100, 300, false},
		{"exact boundary", 103, 100, 300, false}, // floor(103*3%)=3, 100+3=103
		{"one below boundary", 102, 100, 300, true},
		{"full withdrawal with floor", 100, 100, 300, true},
		{"full withdrawal no floor", 100, 100, 0, false},
		{"zero withdrawal", 100, 0, 300, false},
		{"zero balance zero withdrawal", 0, 0, 1000, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := CheckProfitFloor(big.NewInt(tc.balance), big.NewInt(tc.withdraw), tc.bps)
			if tc.breach && err != ErrProfitFloorBreached {
				t.Fatalf("got %v, want ErrProfitFloorBreached", err)
			}
			if !tc.breach && err != nil {
				t.Fatalf("got %v, want nil", err)
			}
		})
	}
}
