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

package materializer

import (
	"sort"

	"github.com/launix-de/nbtsdb/status"
)

// Join produces one tuple per distinct timestamp across c columns, the
// tuple's Bitmap bit i set iff column i has a sample at that timestamp
// (spec §4.5, edge case "Join c=2"). Both variants named in spec.md are
// the same underlying algorithm read out in different orders:
//   - concat: emits row-by-row, series order first (column-major)
//   - merge-join: emits ordered by timestamp across rows (time-order)
//
// Since a join's whole point is to align timestamps across columns, both
// variants must see the complete per-column point sets before emitting the
// first tuple, so Join always materializes.
type Join struct {
	columnIDs []uint64
	rows      []Sample
	idx       int
}

// NewJoin builds the join by reading every column operator to completion.
func NewJoin(sources []SeriesSource, timeOrder bool) *Join {
	type point struct {
		ts  uint64
		val float64
	}
	cols := make([][]point, len(sources))
	ids := make([]uint64, len(sources))
	for i, src := range sources {
		ids[i] = src.ID
		var tsBuf [64]uint64
		var valBuf [64]float64
		for {
			st, n := src.Op.Read(tsBuf[:], valBuf[:], len(tsBuf))
			if st != status.OK {
				break
			}
			for j := 0; j < n; j++ {
				cols[i] = append(cols[i], point{tsBuf[j], valBuf[j]})
			}
		}
	}

	byTS := map[uint64][]float64{}
	bitmap := map[uint64]uint64{}
	var order []uint64
	for i, col := range cols {
		for _, p := range col {
			tuple, ok := byTS[p.ts]
			if !ok {
				tuple = make([]float64, len(sources))
				order = append(order, p.ts)
			}
			tuple[i] = p.val
			byTS[p.ts] = tuple
			bitmap[p.ts] |= 1 << uint(i)
		}
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })

	j := &Join{columnIDs: ids}
	if timeOrder {
		for _, ts := range order {
			j.rows = append(j.rows, Sample{TS: ts, Kind: KindTuple, Bitmap: bitmap[ts], Tuple: byTS[ts]})
		}
		return j
	}
	// concat / series-order: one block of tuples per column, each block
	// holding only the timestamps where that column contributed.
	for i := range sources {
		mask := uint64(1) << uint(i)
		for _, ts := range order {
			if bitmap[ts]&mask == 0 {
				continue
			}
			j.rows = append(j.rows, Sample{ParamID: ids[i], TS: ts, Kind: KindTuple, Bitmap: bitmap[ts], Tuple: byTS[ts]})
		}
	}
	return j
}

func (j *Join) Read(dest []Sample, n int) (status.Status, int) {
	produced := 0
	for produced < n && j.idx < len(j.rows) {
		dest[produced] = j.rows[j.idx]
		j.idx++
		produced++
	}
	if produced == 0 {
		return status.NoData, 0
	}
	return status.OK, produced
}
