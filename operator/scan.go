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
	"github.com/launix-de/nbtsdb/blockstore"
	"github.com/launix-de/nbtsdb/nbtree"
	"github.com/launix-de/nbtsdb/status"
)

// planNode is one leaf to visit, already known to overlap [lo, hi].
type planNode struct {
	addr blockstore.LogicAddr
}

// NewSeriesScan walks the committed portion of a series tree rooted at
// (topAddr, topLevel) and returns points whose timestamp falls in
// [min(begin,end), max(begin,end)], ordered forward if begin<=end or
// backward otherwise -- spec §4.4's scan operator.
//
// Multiple "top" groups across time are not linked by a parent (there is
// none at the top level): they chain backward via each top node's own Addr
// field, per the fanout-chain rule of spec §3. Traversal therefore walks
// that chain first, then descends into each qualifying top node's children
// by address, recursing until it reaches leaves.
func NewSeriesScan(bs *blockstore.BlockStore, kind nbtree.PayloadKind, topAddr blockstore.LogicAddr, topLevel uint16, begin, end uint64) Operator {
	lo, hi := begin, end
	dir := Forward
	if begin > end {
		lo, hi = end, begin
		dir = Backward
	}
	if topAddr.IsEmpty() {
		return Empty(dir)
	}

	var leaves []planNode
	addr, level := topAddr, topLevel
	for !addr.IsEmpty() {
		var ref nbtree.SubtreeRef
		var children []nbtree.SubtreeRef
		var ok bool
		if level == 0 {
			rst, hdr, _ := nbtree.ReadLeaf(bs, addr)
			if rst != status.OK {
				break
			}
			ref = hdr
		} else {
			rst, hdr, kids := nbtree.ReadSuperblock(bs, addr)
			if rst != status.OK {
				break
			}
			ref, children, ok = hdr, kids, true
		}
		if ref.Begin <= hi && ref.End >= lo {
			// groups arrive newest first (we walk the chain backward), while
			// each group's own leaves come oldest first.
			group := collectLeaves(bs, addr, level, children, ok, lo, hi)
			if dir == Forward {
				leaves = append(group, leaves...)
			} else {
				for i, j := 0, len(group)-1; i < j; i, j = i+1, j-1 {
					group[i], group[j] = group[j], group[i]
				}
				leaves = append(leaves, group...)
			}
		} else if ref.End < lo {
			// this whole top group, and everything older, is out of range.
			break
		}
		addr = blockstore.LogicAddr(ref.Addr)
		level = topLevel
	}

	if len(leaves) == 0 {
		return Empty(dir)
	}
	return &seriesScan{bs: bs, kind: kind, lo: lo, hi: hi, dir: dir, leaves: leaves}
}

// collectLeaves recursively expands a subtree (addr, level) into the
// ordered list of its leaves whose range intersects [lo, hi].
func collectLeaves(bs *blockstore.BlockStore, addr blockstore.LogicAddr, level uint16, children []nbtree.SubtreeRef, haveChildren bool, lo, hi uint64) []planNode {
	if level == 0 {
		return []planNode{{addr: addr}}
	}
	if !haveChildren {
		rst, _, kids := nbtree.ReadSuperblock(bs, addr)
		if rst != status.OK {
			return nil
		}
		children = kids
	}
	var out []planNode
	for _, c := range children {
		if c.Begin > hi || c.End < lo {
			continue
		}
		out = append(out, collectLeaves(bs, blockstore.LogicAddr(c.Addr), c.Level, nil, false, lo, hi)...)
	}
	return out
}

// seriesScan streams points leaf-by-leaf, filtering each decoded leaf to
// [lo, hi] and honoring dir within the leaf too.
type seriesScan struct {
	bs     *blockstore.BlockStore
	kind   nbtree.PayloadKind
	lo, hi uint64
	dir    Direction
	leaves []planNode

	idx      int
	curTS    []uint64
	curVal   []float64
	curPos   int
	err      status.Status
}

func (s *seriesScan) Direction() Direction { return s.dir }

func (s *seriesScan) loadNext() bool {
	for s.idx < len(s.leaves) {
		addr := s.leaves[s.idx].addr
		s.idx++
		rst, hdr, payload := nbtree.ReadLeaf(s.bs, addr)
		if rst != status.OK {
			s.err = rst
			continue
		}
		ts, vals, _ := nbtree.DecodeLeafStream(payload, s.kind, hdr.Count)
		var fts []uint64
		var fval []float64
		for i, t := range ts {
			if t >= s.lo && t <= s.hi {
				fts = append(fts, t)
				fval = append(fval, vals[i])
			}
		}
		if len(fts) == 0 {
			continue
		}
		if s.dir == Backward {
			for i, j := 0, len(fts)-1; i < j; i, j = i+1, j-1 {
				fts[i], fts[j] = fts[j], fts[i]
				fval[i], fval[j] = fval[j], fval[i]
			}
		}
		s.curTS, s.curVal, s.curPos = fts, fval, 0
		return true
	}
	return false
}

func (s *seriesScan) Read(tsOut []uint64, valOut []float64, n int) (status.Status, int) {
	produced := 0
	for produced < n {
		if s.curPos >= len(s.curTS) {
			if !s.loadNext() {
				break
			}
		}
		tsOut[produced] = s.curTS[s.curPos]
		valOut[produced] = s.curVal[s.curPos]
		s.curPos++
		produced++
	}
	if produced == 0 {
		if s.err != status.OK && s.err != status.NoData {
			return s.err, 0
		}
		return status.NoData, 0
	}
	return status.OK, produced
}

// ArrayOperator wraps an in-memory (e.g. still-open leaf) point set as an
// Operator, so columnstore can chain it with an on-disk scan without the
// tier-1 layer knowing about the write-side ExtentsList.
type ArrayOperator struct {
	ts  []uint64
	val []float64
	dir Direction
	pos int
}

// NewArrayOperator builds an Operator over an already-filtered, already-
// ordered in-memory slice pair (ts ascending for Forward, descending for
// Backward -- the caller, typically columnstore, is responsible for that
// since it alone knows the live leaf's buffer).
func NewArrayOperator(ts []uint64, val []float64, dir Direction) *ArrayOperator {
	return &ArrayOperator{ts: ts, val: val, dir: dir}
}

func (a *ArrayOperator) Direction() Direction { return a.dir }

func (a *ArrayOperator) Read(tsOut []uint64, valOut []float64, n int) (status.Status, int) {
	if a.pos >= len(a.ts) {
		return status.NoData, 0
	}
	produced := 0
	for produced < n && a.pos < len(a.ts) {
		tsOut[produced] = a.ts[a.pos]
		valOut[produced] = a.val[a.pos]
		a.pos++
		produced++
	}
	return status.OK, produced
}
