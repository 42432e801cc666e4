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

// Aggregate pairs each series id with its already-folded AggResult and
// emits one sample per series holding the caller-selected scalar function
// (spec §4.5). The AggResult is expected to have been produced upstream by
// operator.AggregateSeries or operator.ValueAggregator.
type Aggregate struct {
	ids     []uint64
	results []operator.AggResult
	fn      operator.Func
	idx     int
}

func NewAggregate(ids []uint64, results []operator.AggResult, fn operator.Func) *Aggregate {
	return &Aggregate{ids: ids, results: results, fn: fn}
}

func (a *Aggregate) Read(dest []Sample, n int) (status.Status, int) {
	produced := 0
	for produced < n && a.idx < len(a.ids) {
		r := a.results[a.idx]
		dest[produced] = Sample{
			ParamID: a.ids[a.idx], TS: r.End, Kind: KindValue,
			Value: r.Value(a.fn),
		}
		a.idx++
		produced++
	}
	if produced == 0 {
		return status.NoData, 0
	}
	return status.OK, produced
}

// AggregateCombiner groups per-series AggResults by a destination id (the
// group-by transient map of spec §4.5), combines every member with
// operator.Combine, and emits one sample per group holding fn's scalar.
type AggregateCombiner struct {
	destIDs []uint64
	merged  []operator.AggResult
	fn      operator.Func
	idx     int
}

// NewAggregateCombiner takes parallel AggResult/destID slices
// (one entry per source series) and folds same-destID entries together.
func NewAggregateCombiner(srcResults []operator.AggResult, destOf []uint64, fn operator.Func) *AggregateCombiner {
	order := []uint64{}
	acc := map[uint64]operator.AggResult{}
	for i, dest := range destOf {
		cur, ok := acc[dest]
		if !ok {
			order = append(order, dest)
		}
		acc[dest] = operator.Combine(cur, srcResults[i])
	}
	c := &AggregateCombiner{fn: fn}
	for _, dest := range order {
		c.destIDs = append(c.destIDs, dest)
		c.merged = append(c.merged, acc[dest])
	}
	return c
}

func (c *AggregateCombiner) Read(dest []Sample, n int) (status.Status, int) {
	produced := 0
	for produced < n && c.idx < len(c.destIDs) {
		r := c.merged[c.idx]
		dest[produced] = Sample{ParamID: c.destIDs[c.idx], TS: r.End, Kind: KindValue, Value: r.Value(c.fn)}
		c.idx++
		produced++
	}
	if produced == 0 {
		return status.NoData, 0
	}
	return status.OK, produced
}
