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

	"github.com/launix-de/nbtsdb/operator"
	"github.com/launix-de/nbtsdb/status"
)

// SeriesOrderGroupAggregate emits, per series in list order, a stream of
// bucketed AggResult tuples (spec §4.5's "series-order group-aggregate").
// Each emitted Sample is a Tuple carrying [cnt, sum, min, max, first, last].
type SeriesOrderGroupAggregate struct {
	sources []SeriesSource
	begin   uint64
	step    uint64

	idx     int
	buckets []operator.Bucket
	bpos    int
}

func NewSeriesOrderGroupAggregate(sources []SeriesSource, begin, step uint64) *SeriesOrderGroupAggregate {
	return &SeriesOrderGroupAggregate{sources: sources, begin: begin, step: step}
}

func bucketTuple(b operator.Bucket) []float64 {
	return []float64{float64(b.Result.Cnt), b.Result.Sum, b.Result.Min, b.Result.Max, b.Result.First, b.Result.Last}
}

func (g *SeriesOrderGroupAggregate) advance() bool {
	for g.idx < len(g.sources) {
		if g.bpos < len(g.buckets) {
			return true
		}
		st, buckets := operator.GroupAggregate(g.sources[g.idx].Op, g.begin, g.step)
		g.idx++
		if st != status.OK {
			continue
		}
		g.buckets = buckets
		g.bpos = 0
		return true
	}
	return false
}

func (g *SeriesOrderGroupAggregate) Read(dest []Sample, n int) (status.Status, int) {
	produced := 0
	for produced < n {
		if g.bpos >= len(g.buckets) {
			if !g.advance() {
				break
			}
			continue
		}
		id := g.sources[g.idx-1].ID
		b := g.buckets[g.bpos]
		dest[produced] = Sample{ParamID: id, TS: b.Begin, Kind: KindTuple, Tuple: bucketTuple(b)}
		g.bpos++
		produced++
	}
	if produced == 0 {
		return status.NoData, 0
	}
	return status.OK, produced
}

// TimeOrderGroupAggregate wraps the series-order variant in a merge-join
// keyed by bucket timestamp, so buckets across series interleave in time
// order instead of series order (spec §4.5). It materializes eagerly
// (bounded by begin/step/series count, always finite) rather than
// streaming, since a true streaming merge-join would need every series'
// bucket stream read in lockstep and the bucket counts are small relative
// to raw points.
type TimeOrderGroupAggregate struct {
	samples []Sample
	idx     int
}

func NewTimeOrderGroupAggregate(sources []SeriesSource, begin, step uint64) *TimeOrderGroupAggregate {
	var all []Sample
	for _, src := range sources {
		st, buckets := operator.GroupAggregate(src.Op, begin, step)
		if st != status.OK {
			continue
		}
		for _, b := range buckets {
			all = append(all, Sample{ParamID: src.ID, TS: b.Begin, Kind: KindTuple, Tuple: bucketTuple(b)})
		}
	}
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].TS != all[j].TS {
			return all[i].TS < all[j].TS
		}
		return all[i].ParamID < all[j].ParamID
	})
	return &TimeOrderGroupAggregate{samples: all}
}

func (t *TimeOrderGroupAggregate) Read(dest []Sample, n int) (status.Status, int) {
	produced := 0
	for produced < n && t.idx < len(t.samples) {
		dest[produced] = t.samples[t.idx]
		t.idx++
		produced++
	}
	if produced == 0 {
		return status.NoData, 0
	}
	return status.OK, produced
}
