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
	"container/heap"

	"github.com/launix-de/nbtsdb/operator"
	"github.com/launix-de/nbtsdb/status"
)

// Order selects the Merge key: time-order sorts by (ts, id), series-order
// sorts by (id, ts) -- spec §4.5.
type Order int

const (
	TimeOrder Order = iota
	SeriesOrder
)

type mergeItem struct {
	srcIdx int
	id     uint64
	ts     uint64
	value  float64
	seq    uint64 // tie-break for stability, assigned in arrival order
}

type mergeHeap struct {
	items   []mergeItem
	order   Order
	dir     operator.Direction
}

func (h *mergeHeap) Len() int { return len(h.items) }
func (h *mergeHeap) Less(i, j int) bool {
	a, b := h.items[i], h.items[j]
	var less bool
	if h.order == TimeOrder {
		if a.ts != b.ts {
			less = a.ts < b.ts
		} else if a.id != b.id {
			less = a.id < b.id
		} else {
			less = a.seq < b.seq
		}
	} else {
		if a.id != b.id {
			less = a.id < b.id
		} else if a.ts != b.ts {
			less = a.ts < b.ts
		} else {
			less = a.seq < b.seq
		}
	}
	if h.dir == operator.Backward {
		return !less
	}
	return less
}
func (h *mergeHeap) Swap(i, j int)      { h.items[i], h.items[j] = h.items[j], h.items[i] }
func (h *mergeHeap) Push(x interface{}) { h.items = append(h.items, x.(mergeItem)) }
func (h *mergeHeap) Pop() interface{} {
	old := h.items
	n := len(old)
	it := old[n-1]
	h.items = old[:n-1]
	return it
}

// Merge is the k-way heap merge of spec §4.5: emits points from every
// source series interleaved by time-order or series-order, forward or
// backward, with a stable tie-break so repeated merges of the same inputs
// always agree on ordering.
type Merge struct {
	sources []SeriesSource
	order   Order
	dir     operator.Direction
	h       *mergeHeap
	seq     uint64
	started bool
	tsBuf   [1]uint64
	valBuf  [1]float64
}

func NewMerge(sources []SeriesSource, order Order, dir operator.Direction) *Merge {
	return &Merge{sources: sources, order: order, dir: dir}
}

func (m *Merge) fill(idx int) {
	src := m.sources[idx]
	st, n := src.Op.Read(m.tsBuf[:], m.valBuf[:], 1)
	if st != status.OK || n == 0 {
		return
	}
	heap.Push(m.h, mergeItem{srcIdx: idx, id: src.ID, ts: m.tsBuf[0], value: m.valBuf[0], seq: m.seq})
	m.seq++
}

func (m *Merge) Read(dest []Sample, n int) (status.Status, int) {
	if !m.started {
		m.h = &mergeHeap{order: m.order, dir: m.dir}
		heap.Init(m.h)
		for i := range m.sources {
			m.fill(i)
		}
		m.started = true
	}
	produced := 0
	for produced < n && m.h.Len() > 0 {
		top := heap.Pop(m.h).(mergeItem)
		dest[produced] = Sample{ParamID: top.id, TS: top.ts, Kind: KindValue, Value: top.value}
		produced++
		m.fill(top.srcIdx)
	}
	if produced == 0 {
		return status.NoData, 0
	}
	return status.OK, produced
}
