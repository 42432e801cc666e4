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

package columnstore

import (
	"github.com/launix-de/nbtsdb/materializer"
	"github.com/launix-de/nbtsdb/operator"
	"github.com/launix-de/nbtsdb/status"
)

// seriesOperator builds the full (on-disk + in-memory tail) Operator for
// one series: a Chain of the committed scan followed by the still-open
// leaf's buffered points (the live points first for a backward scan), so a
// query sees data that has not been committed to a block yet -- per spec §5
// "query threads ... execute the operator tree without holding the table
// lock", this is read-only and resolves id with a lock-free registry Get.
func (cs *ColumnStore) seriesOperator(id uint64, begin, end uint64) operator.Operator {
	e := cs.columns.Get(id)
	if e == nil {
		return operator.Empty(operator.Forward)
	}
	snap := e.Snapshot()
	kind := cs.KindOf(id)
	disk := operator.NewSeriesScan(cs.bs, kind, snap.TopAddr, snap.TopLevel, begin, end)

	lo, hi := begin, end
	dir := operator.Forward
	if begin > end {
		lo, hi = end, begin
		dir = operator.Backward
	}
	var liveTS []uint64
	var liveVal []float64
	for i, ts := range snap.LiveTS {
		if ts >= lo && ts <= hi {
			liveTS = append(liveTS, ts)
			liveVal = append(liveVal, snap.LiveVal[i])
		}
	}
	if dir == operator.Backward {
		for i, j := 0, len(liveTS)-1; i < j; i, j = i+1, j-1 {
			liveTS[i], liveTS[j] = liveTS[j], liveTS[i]
			liveVal[i], liveVal[j] = liveVal[j], liveVal[i]
		}
	}
	if len(liveTS) == 0 {
		return disk
	}
	live := operator.NewArrayOperator(liveTS, liveVal, dir)
	if dir == operator.Backward {
		return materializerChain(live, disk)
	}
	return materializerChain(disk, live)
}

// materializerChain concatenates two tier-1 operators without involving
// the tier-2 Sample machinery, since both halves belong to the same
// series and only the numeric (ts, value) pair matters here.
func materializerChain(a, b operator.Operator) operator.Operator {
	return &seriesJoinOperator{ops: []operator.Operator{a, b}}
}

type seriesJoinOperator struct {
	ops []operator.Operator
	idx int
}

func (s *seriesJoinOperator) Direction() operator.Direction { return s.ops[0].Direction() }

func (s *seriesJoinOperator) Read(tsOut []uint64, valOut []float64, n int) (status.Status, int) {
	for s.idx < len(s.ops) {
		st, m := s.ops[s.idx].Read(tsOut, valOut, n)
		if st == status.OK {
			return st, m
		}
		s.idx++
	}
	return status.NoData, 0
}

// Scan builds one per-series operator per requested id, for ChainM/Merge
// to consume.
func (cs *ColumnStore) Scan(ids []uint64, begin, end uint64) []materializer.SeriesSource {
	out := make([]materializer.SeriesSource, 0, len(ids))
	for _, id := range ids {
		out = append(out, materializer.SeriesSource{ID: id, Op: cs.seriesOperator(id, begin, end)})
	}
	return out
}

// Aggregate folds every requested series over [begin,end] into one
// AggResult each, in the same order as ids.
func (cs *ColumnStore) Aggregate(ids []uint64, begin, end uint64) []operator.AggResult {
	out := make([]operator.AggResult, len(ids))
	for i, id := range ids {
		_, r := operator.ValueAggregator(cs.seriesOperator(id, begin, end))
		out[i] = r
	}
	return out
}

// GroupAggregate returns the raw per-series operators for materializer's
// series-/time-order group-aggregate wrappers to consume.
func (cs *ColumnStore) GroupAggregate(ids []uint64, begin, end uint64) []materializer.SeriesSource {
	return cs.Scan(ids, begin, end)
}
