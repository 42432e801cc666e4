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

package nbtree

import (
	"path/filepath"
	"testing"

	"github.com/launix-de/nbtsdb/blockstore"
	"github.com/launix-de/nbtsdb/status"
)

func newTestStore(t *testing.T, volumes int, volumeBlocks uint32) *blockstore.BlockStore {
	t.Helper()
	dir := t.TempDir()
	meta, err := blockstore.OpenMetaVolume(filepath.Join(dir, "meta.json"))
	if err != nil {
		t.Fatal(err)
	}
	bs, err := blockstore.OpenFixed(meta, volumes, volumeBlocks, func(i int) (blockstore.Volume, error) {
		return blockstore.CreateFileVolume(filepath.Join(dir, "vol"+string(rune('0'+i))))
	})
	if err != nil {
		t.Fatal(err)
	}
	return bs
}

func TestLeafAppendAndCommitRoundtrip(t *testing.T) {
	bs := newTestStore(t, 2, 64)
	leaf := NewLeaf(1, KindFloat, blockstore.EmptyAddr, 0)
	for i := uint64(100); i < 200; i++ {
		if st := leaf.Append(i, float64(i)*0.1, nil); st != status.OK {
			t.Fatalf("append %d: %v", i, st)
		}
	}
	st, addr := leaf.Commit(bs)
	if st != status.OK {
		t.Fatalf("commit: %v", st)
	}
	rst, hdr, payload := ReadLeaf(bs, addr)
	if rst != status.OK {
		t.Fatalf("read: %v", rst)
	}
	if hdr.Count != 100 {
		t.Fatalf("count = %d, want 100", hdr.Count)
	}
	ts, values, _ := DecodeLeafStream(payload, KindFloat, hdr.Count)
	if len(ts) != 100 || len(values) != 100 {
		t.Fatalf("decoded %d/%d points, want 100", len(ts), len(values))
	}
	for i := 0; i < 100; i++ {
		if ts[i] != uint64(100+i) {
			t.Fatalf("ts[%d] = %d, want %d", i, ts[i], 100+i)
		}
	}
}

func TestLeafRejectsBadValue(t *testing.T) {
	leaf := NewLeaf(1, KindFloat, blockstore.EmptyAddr, 0)
	if st := leaf.Append(1, nan(), nil); st != status.BadValue {
		t.Fatalf("NaN append = %v, want BAD_VALUE", st)
	}
}

func nan() float64 {
	var z float64
	return z / z
}

func TestExtentsListAppendRoundtrip(t *testing.T) {
	bs := newTestStore(t, 4, 256)
	e := NewExtentsList(7, KindFloat, bs)
	const n = 5000
	var flushes int
	for i := uint64(0); i < n; i++ {
		st, flush := e.Append(i, float64(i), nil)
		if st != status.OK {
			t.Fatalf("append %d: %v", i, st)
		}
		if flush {
			flushes++
		}
	}
	if flushes == 0 {
		t.Fatalf("expected at least one flush-needed signal for %d points", n)
	}
	roots := e.Close()
	if RepairStatus(roots) != RepairOK {
		t.Fatalf("roots after clean close should be OK: %v", roots)
	}
}

func TestSuperblockAggregateInvariant(t *testing.T) {
	bs := newTestStore(t, 2, 1024)
	s := NewSuperblock(1, 1, blockstore.EmptyAddr, 0)
	var wantCount uint64
	var wantSum float64
	for i := 0; i < F; i++ {
		leaf := NewLeaf(1, KindFloat, blockstore.EmptyAddr, uint16(i))
		for j := uint64(0); j < 10; j++ {
			leaf.Append(uint64(i)*10+j, float64(j), nil)
		}
		_, addr := leaf.Commit(bs)
		ref := leaf.header()
		ref.SetAddrValue(addr)
		if st := s.Append(ref); st != status.OK {
			t.Fatalf("append child %d: %v", i, st)
		}
		wantCount += ref.Count
		wantSum += ref.Sum
	}
	if !s.Sealed() {
		t.Fatalf("superblock should be sealed after %d children", F)
	}
	st, addr := s.Commit(bs)
	if st != status.OK {
		t.Fatalf("commit: %v", st)
	}
	rst, hdr, children := ReadSuperblock(bs, addr)
	if rst != status.OK {
		t.Fatalf("read: %v", rst)
	}
	if hdr.Count != wantCount {
		t.Fatalf("count = %d, want %d", hdr.Count, wantCount)
	}
	if hdr.Sum != wantSum {
		t.Fatalf("sum = %v, want %v", hdr.Sum, wantSum)
	}
	for i, c := range children {
		if int(c.FanoutIndex) != i {
			t.Fatalf("child %d fanout_index = %d", i, c.FanoutIndex)
		}
		if c.Level != 0 {
			t.Fatalf("child %d level = %d, want 0", i, c.Level)
		}
	}
}
