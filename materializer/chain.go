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
	"github.com/launix-de/nbtsdb/operator"
	"github.com/launix-de/nbtsdb/status"
)

// SeriesSource pairs one series id with its tier-1 operator, the unit
// Chain/Merge/Aggregate all consume.
type SeriesSource struct {
	ID uint64
	Op operator.Operator
}

// Chain concatenates per-series scan operators in list order (spec §4.5).
// It suits a plain multi-series scan with no cross-series ordering
// requirement; every sample carries its source's series id.
type Chain struct {
	sources []SeriesSource
	idx     int
	tsBuf   [64]uint64
	valBuf  [64]float64
}

func NewChain(sources []SeriesSource) *Chain {
	return &Chain{sources: sources}
}

func (c *Chain) Read(dest []Sample, n int) (status.Status, int) {
	produced := 0
	for produced < n && c.idx < len(c.sources) {
		src := c.sources[c.idx]
		want := n - produced
		if want > len(c.tsBuf) {
			want = len(c.tsBuf)
		}
		st, m := src.Op.Read(c.tsBuf[:want], c.valBuf[:want], want)
		if st != status.OK {
			c.idx++
			continue
		}
		for i := 0; i < m; i++ {
			dest[produced] = Sample{ParamID: src.ID, TS: c.tsBuf[i], Kind: KindValue, Value: c.valBuf[i]}
			produced++
		}
	}
	if produced == 0 {
		return status.NoData, 0
	}
	return status.OK, produced
}
