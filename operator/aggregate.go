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
	"math"

	"github.com/launix-de/nbtsdb/blockstore"
	"github.com/launix-de/nbtsdb/nbtree"
	"github.com/launix-de/nbtsdb/status"
)

// ValueAggregator folds a plain Operator's stream into a single AggResult,
// spec §4.4's "value aggregator": used when the caller already has a
// numeric stream (e.g. the in-memory tail) and just needs it summarized.
func ValueAggregator(src Operator) (status.Status, AggResult) {
	var r AggResult
	r.Min, r.Max = math.MaxFloat64, -math.MaxFloat64
	var tsBuf [256]uint64
	var valBuf [256]float64
	first := true
	for {
		st, n := src.Read(tsBuf[:], valBuf[:], len(tsBuf))
		if st != status.OK {
			break
		}
		for i := 0; i < n; i++ {
			ts, v := tsBuf[i], valBuf[i]
			r.Cnt++
			r.Sum += v
			if v < r.Min {
				r.Min, r.MinTS = v, ts
			}
			if v > r.Max {
				r.Max, r.MaxTS = v, ts
			}
			if first {
				r.Begin, r.First = ts, v
				first = false
			}
			r.End, r.Last = ts, v
		}
	}
	if r.Cnt == 0 {
		return status.NoData, AggResult{}
	}
	return status.OK, r
}

// LeafAggregateRange and SblockAggregateRange fold an already-committed subtree into
// an AggResult directly from its header, with no payload decode needed
// when the query range fully covers the node (spec §4.4) -- only the
// overlapping fringe leaves are decoded point-by-point.
func LeafAggregateRange(bs *blockstore.BlockStore, addr blockstore.LogicAddr, kind nbtree.PayloadKind, lo, hi uint64) (status.Status, AggResult) {
	st, hdr, payload := nbtree.ReadLeaf(bs, addr)
	if st != status.OK {
		return st, AggResult{}
	}
	if lo <= hdr.Begin && hi >= hdr.End {
		return status.OK, refToAgg(hdr)
	}
	ts, vals, _ := nbtree.DecodeLeafStream(payload, kind, hdr.Count)
	var r AggResult
	r.Min, r.Max = math.MaxFloat64, -math.MaxFloat64
	first := true
	for i, t := range ts {
		if t < lo || t > hi {
			continue
		}
		v := vals[i]
		r.Cnt++
		r.Sum += v
		if v < r.Min {
			r.Min, r.MinTS = v, t
		}
		if v > r.Max {
			r.Max, r.MaxTS = v, t
		}
		if first {
			r.Begin, r.First = t, v
			first = false
		}
		r.End, r.Last = t, v
	}
	if r.Cnt == 0 {
		return status.NoData, AggResult{}
	}
	return status.OK, r
}

// SblockAggregateRange folds a superblock subtree's children, recursing
// only into children whose range is not fully inside [lo, hi].
func SblockAggregateRange(bs *blockstore.BlockStore, addr blockstore.LogicAddr, kind nbtree.PayloadKind, lo, hi uint64) (status.Status, AggResult) {
	st, hdr, children := nbtree.ReadSuperblock(bs, addr)
	if st != status.OK {
		return st, AggResult{}
	}
	if lo <= hdr.Begin && hi >= hdr.End {
		return status.OK, refToAgg(hdr)
	}
	var acc AggResult
	any := false
	for _, c := range children {
		if c.Begin > hi || c.End < lo {
			continue
		}
		var cst status.Status
		var cr AggResult
		if c.Level == 0 {
			cst, cr = LeafAggregateRange(bs, blockstore.LogicAddr(c.Addr), kind, lo, hi)
		} else {
			cst, cr = SblockAggregateRange(bs, blockstore.LogicAddr(c.Addr), kind, lo, hi)
		}
		if cst != status.OK {
			continue
		}
		acc = Combine(acc, cr)
		any = true
	}
	if !any {
		return status.NoData, AggResult{}
	}
	return status.OK, acc
}

func refToAgg(h nbtree.SubtreeRef) AggResult {
	return AggResult{
		Cnt: h.Count, Sum: h.Sum, Min: h.Min, Max: h.Max,
		First: h.First, Last: h.Last, MinTS: h.MinTime, MaxTS: h.MaxTime,
		Begin: h.Begin, End: h.End,
	}
}

// AggregateSeries folds the entire committed range [begin,end] of a series
// tree into one AggResult, descending only where a node is not fully
// covered by the query range.
func AggregateSeries(bs *blockstore.BlockStore, kind nbtree.PayloadKind, topAddr blockstore.LogicAddr, topLevel uint16, begin, end uint64) (status.Status, AggResult) {
	lo, hi := begin, end
	if lo > hi {
		lo, hi = hi, lo
	}
	if topAddr.IsEmpty() {
		return status.NoData, AggResult{}
	}
	var acc AggResult
	any := false
	addr := topAddr
	for !addr.IsEmpty() {
		var hdr nbtree.SubtreeRef
		var rst status.Status
		if topLevel == 0 {
			rst, hdr, _ = nbtree.ReadLeaf(bs, addr)
		} else {
			rst, hdr, _ = nbtree.ReadSuperblock(bs, addr)
		}
		if rst != status.OK {
			break
		}
		if hdr.End < lo {
			break // this group and everything older is out of range.
		}
		if hdr.Begin <= hi {
			var st status.Status
			var r AggResult
			if topLevel == 0 {
				st, r = LeafAggregateRange(bs, addr, kind, lo, hi)
			} else {
				st, r = SblockAggregateRange(bs, addr, kind, lo, hi)
			}
			if st == status.OK {
				acc = Combine(acc, r)
				any = true
			}
		}
		addr = blockstore.LogicAddr(hdr.Addr)
	}
	if !any {
		return status.NoData, AggResult{}
	}
	return status.OK, acc
}
