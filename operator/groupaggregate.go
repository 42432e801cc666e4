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

	"github.com/launix-de/nbtsdb/status"
)

// Bucket is one fixed-width time window's running aggregate, produced by
// GroupAggregate (spec §4.4's group-aggregate: "begin,end partitioned into
// step-sized windows, one AggResult per window").
type Bucket struct {
	Begin, End uint64
	Result     AggResult
}

// GroupAggregate buckets src's points into windows of size step starting at
// begin, reading the whole operator and returning one Bucket per non-empty
// window. Windows are always returned in ascending time order regardless of
// the source operator's Direction.
func GroupAggregate(src Operator, begin, step uint64) (status.Status, []Bucket) {
	if step == 0 {
		return status.BadArg, nil
	}
	buckets := map[uint64]*Bucket{}
	var order []uint64

	var tsBuf [256]uint64
	var valBuf [256]float64
	for {
		st, n := src.Read(tsBuf[:], valBuf[:], len(tsBuf))
		if st != status.OK {
			break
		}
		for i := 0; i < n; i++ {
			ts, v := tsBuf[i], valBuf[i]
			var idx uint64
			if ts >= begin {
				idx = (ts - begin) / step
			}
			b, ok := buckets[idx]
			if !ok {
				b = &Bucket{Begin: begin + idx*step, End: begin + (idx+1)*step}
				b.Result.Min, b.Result.Max = math.MaxFloat64, -math.MaxFloat64
				buckets[idx] = b
				order = append(order, idx)
			}
			r := &b.Result
			r.Cnt++
			r.Sum += v
			if v < r.Min {
				r.Min, r.MinTS = v, ts
			}
			if v > r.Max {
				r.Max, r.MaxTS = v, ts
			}
			if r.Cnt == 1 {
				r.Begin, r.First = ts, v
			}
			r.End, r.Last = ts, v
		}
	}
	if len(order) == 0 {
		return status.NoData, nil
	}
	// order accumulates indices in first-seen order, not bucket order;
	// the output contract is ascending time, so sort by index.
	for i := 1; i < len(order); i++ {
		for j := i; j > 0 && order[j] < order[j-1]; j-- {
			order[j], order[j-1] = order[j-1], order[j]
		}
	}
	out := make([]Bucket, len(order))
	for i, idx := range order {
		out[i] = *buckets[idx]
	}
	return status.OK, out
}
