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

// Package operator implements the tier-1, single-series, direction-aware
// iterators of spec §4.4: scan, leaf/sblock aggregate, value-aggregator,
// group-aggregate and filter. Every operator is demand-driven (read(dest,
// n)) rather than a stackful coroutine, per SPEC_FULL.md's rewrite of the
// teacher/original's cursor style into explicit (status, value) returns.
package operator

import "github.com/launix-de/nbtsdb/status"

type Direction int

const (
	Forward Direction = iota
	Backward
)

// Operator is the common numeric tier-1 iterator contract.
type Operator interface {
	// Read fills tsOut/valOut (both len() >= n) and returns how many
	// points were produced. NO_DATA means the operator is exhausted --
	// this is the normal end-of-stream signal, not a failure.
	Read(tsOut []uint64, valOut []float64, n int) (status.Status, int)
	Direction() Direction
}

// BlobOperator is the event-series analogue of Operator: spec §3/§9 Blob
// variant. Aggregate/filter/group-aggregate never implement this --
// applying them to a blob series returns BAD_ARG.
type BlobOperator interface {
	Read(tsOut []uint64, blobOut [][]byte, n int) (status.Status, int)
	Direction() Direction
}

// AggResult is the running aggregation window carried by leaf/sblock
// aggregate, value-aggregator and the aggregate-combiner materializer.
type AggResult struct {
	Cnt              uint64
	Sum, Min, Max    float64
	First, Last      float64
	MinTS, MaxTS     uint64
	Begin, End       uint64
}

// Combine merges two adjacent windows, preserving First/Last by whichever
// window's boundary timestamp comes first/last -- not by arrival order,
// so that combining out of time-order (e.g. two partial folds merged in an
// arbitrary order) still yields the correct series-order First/Last.
func Combine(a, b AggResult) AggResult {
	if a.Cnt == 0 {
		return b
	}
	if b.Cnt == 0 {
		return a
	}
	r := AggResult{
		Cnt: a.Cnt + b.Cnt,
		Sum: a.Sum + b.Sum,
	}
	if a.Min <= b.Min {
		r.Min, r.MinTS = a.Min, a.MinTS
	} else {
		r.Min, r.MinTS = b.Min, b.MinTS
	}
	if a.Max >= b.Max {
		r.Max, r.MaxTS = a.Max, a.MaxTS
	} else {
		r.Max, r.MaxTS = b.Max, b.MaxTS
	}
	lo, hi := a, b
	if lo.Begin > hi.Begin {
		lo, hi = hi, lo
	}
	r.Begin = lo.Begin
	r.First = lo.First
	if hi.End >= lo.End {
		r.End = hi.End
		r.Last = hi.Last
	} else {
		r.End = lo.End
		r.Last = lo.Last
	}
	return r
}

// Func selects which scalar the Aggregate materializer extracts from an
// AggResult.
type Func int

const (
	MIN Func = iota
	MAX
	SUM
	CNT
	MEAN
	MinTimestamp
	MaxTimestamp
)

func (r AggResult) Value(f Func) float64 {
	switch f {
	case MIN:
		return r.Min
	case MAX:
		return r.Max
	case SUM:
		return r.Sum
	case CNT:
		return float64(r.Cnt)
	case MEAN:
		if r.Cnt == 0 {
			return 0
		}
		return r.Sum / float64(r.Cnt)
	case MinTimestamp:
		return float64(r.MinTS)
	case MaxTimestamp:
		return float64(r.MaxTS)
	}
	return 0
}

// emptyOperator is the NO_DATA operator returned whenever a series tree
// is empty or a range has no overlap with any node.
type emptyOperator struct{ dir Direction }

func Empty(dir Direction) Operator { return emptyOperator{dir} }

func (emptyOperator) Read(ts []uint64, v []float64, n int) (status.Status, int) {
	return status.NoData, 0
}
func (e emptyOperator) Direction() Direction { return e.dir }
