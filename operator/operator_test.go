/*
Copyright (C) 2026  nbtsdb Contributors

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU General Public License as published by
	the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU General Public License for more details.

	You should have received a copy of the GNU General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

package operator

import (
	"path/filepath"
	"testing"

	"github.com/launix-de/nbtsdb/blockstore"
	"github.com/launix-de/nbtsdb/nbtree"
	"github.com/launix-de/nbtsdb/status"
)

func newStore(t *testing.T) *blockstore.BlockStore {
	t.Helper()
	dir := t.TempDir()
	meta, err := blockstore.OpenMetaVolume(filepath.Join(dir, "meta.json"))
	if err != nil {
		t.Fatal(err)
	}
	bs, err := blockstore.OpenFixed(meta, 4, 512, func(i int) (blockstore.Volume, error) {
		return blockstore.CreateFileVolume(filepath.Join(dir, "vol"+string(rune('0'+i))))
	})
	if err != nil {
		t.Fatal(err)
	}
	return bs
}

func buildSeries(t *testing.T, bs *blockstore.BlockStore, id uint64, n int) (blockstore.LogicAddr, uint16) {
	t.Helper()
	e := nbtree.NewExtentsList(id, nbtree.KindFloat, bs)
	for i := 0; i < n; i++ {
		if st, _ := e.Append(uint64(i), float64(i), nil); st != status.OK {
			t.Fatalf("append %d: %v", i, st)
		}
	}
	roots := e.Close()
	top := len(roots) - 1
	return roots[top], uint16(top)
}

func drain(t *testing.T, op Operator) ([]uint64, []float64) {
	t.Helper()
	var ts []uint64
	var val []float64
	var tsBuf [32]uint64
	var valBuf [32]float64
	for {
		st, n := op.Read(tsBuf[:], valBuf[:], len(tsBuf))
		if st != status.OK {
			break
		}
		ts = append(ts, tsBuf[:n]...)
		val = append(val, valBuf[:n]...)
	}
	return ts, val
}

func TestSeriesScanForwardCoversAllCommittedPoints(t *testing.T) {
	bs := newStore(t)
	const n = 3000 // forces multiple leaves and at least one superblock
	topAddr, topLevel := buildSeries(t, bs, 42, n)

	op := NewSeriesScan(bs, nbtree.KindFloat, topAddr, topLevel, 0, n-1)
	ts, val := drain(t, op)
	if len(ts) != n {
		t.Fatalf("got %d points, want %d", len(ts), n)
	}
	for i := range ts {
		if ts[i] != uint64(i) || val[i] != float64(i) {
			t.Fatalf("point %d = (%d,%v), want (%d,%d)", i, ts[i], val[i], i, i)
		}
	}
}

func TestSeriesScanBackwardReversesOrder(t *testing.T) {
	bs := newStore(t)
	const n = 500
	topAddr, topLevel := buildSeries(t, bs, 7, n)

	op := NewSeriesScan(bs, nbtree.KindFloat, topAddr, topLevel, n-1, 0)
	ts, _ := drain(t, op)
	if len(ts) != n {
		t.Fatalf("got %d points, want %d", len(ts), n)
	}
	if ts[0] != n-1 || ts[len(ts)-1] != 0 {
		t.Fatalf("backward scan not reversed: first=%d last=%d", ts[0], ts[len(ts)-1])
	}
	for i := 1; i < len(ts); i++ {
		if ts[i] > ts[i-1] {
			t.Fatalf("backward scan not monotonically non-increasing at %d: %d then %d", i, ts[i-1], ts[i])
		}
	}
}

func TestSeriesScanRangeSubset(t *testing.T) {
	bs := newStore(t)
	const n = 1000
	topAddr, topLevel := buildSeries(t, bs, 3, n)

	op := NewSeriesScan(bs, nbtree.KindFloat, topAddr, topLevel, 100, 199)
	ts, _ := drain(t, op)
	if len(ts) != 100 {
		t.Fatalf("got %d points, want 100", len(ts))
	}
	if ts[0] != 100 || ts[len(ts)-1] != 199 {
		t.Fatalf("range not respected: first=%d last=%d", ts[0], ts[len(ts)-1])
	}
}

func TestAggregateSeriesMatchesManualSum(t *testing.T) {
	bs := newStore(t)
	const n = 2500
	topAddr, topLevel := buildSeries(t, bs, 9, n)

	st, r := AggregateSeries(bs, nbtree.KindFloat, topAddr, topLevel, 0, n-1)
	if st != status.OK {
		t.Fatalf("aggregate: %v", st)
	}
	var wantSum float64
	for i := 0; i < n; i++ {
		wantSum += float64(i)
	}
	if r.Cnt != uint64(n) {
		t.Fatalf("cnt = %d, want %d", r.Cnt, n)
	}
	if r.Sum != wantSum {
		t.Fatalf("sum = %v, want %v", r.Sum, wantSum)
	}
	if r.Min != 0 || r.Max != float64(n-1) {
		t.Fatalf("min/max = %v/%v, want 0/%v", r.Min, r.Max, n-1)
	}
}

func TestFilterKeepsOnlyMatchingValues(t *testing.T) {
	bs := newStore(t)
	const n = 400
	topAddr, topLevel := buildSeries(t, bs, 11, n)
	scan := NewSeriesScan(bs, nbtree.KindFloat, topAddr, topLevel, 0, n-1)
	f := NewFilter(scan, GE(200))
	_, val := drain(t, f)
	if len(val) != 200 {
		t.Fatalf("got %d values, want 200", len(val))
	}
	for _, v := range val {
		if v < 200 {
			t.Fatalf("filter let through %v", v)
		}
	}
}

func TestGroupAggregateBucketsAscending(t *testing.T) {
	bs := newStore(t)
	const n = 100
	topAddr, topLevel := buildSeries(t, bs, 13, n)
	scan := NewSeriesScan(bs, nbtree.KindFloat, topAddr, topLevel, 0, n-1)

	st, buckets := GroupAggregate(scan, 0, 10)
	if st != status.OK {
		t.Fatalf("group-aggregate: %v", st)
	}
	if len(buckets) != 10 {
		t.Fatalf("got %d buckets, want 10", len(buckets))
	}
	for i, b := range buckets {
		if b.Begin != uint64(i*10) {
			t.Fatalf("bucket %d begin = %d, want %d", i, b.Begin, i*10)
		}
		if b.Result.Cnt != 10 {
			t.Fatalf("bucket %d cnt = %d, want 10", i, b.Result.Cnt)
		}
	}
}
