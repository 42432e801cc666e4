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

// Package columnstore is the ParamId -> series-tree registry of spec
// §4.6: a column store holding one nbtree.ExtentsList per series, plus
// the per-writer Session cache that sits in front of it.
package columnstore

import (
	"sync"

	"github.com/launix-de/NonLockingReadMap"
	"github.com/launix-de/nbtsdb/blockstore"
	"github.com/launix-de/nbtsdb/internal/corelog"
	"github.com/launix-de/nbtsdb/nbtree"
	"github.com/launix-de/nbtsdb/status"
)

// ColumnStore is the table_lock-guarded registry of spec §5: reads (via
// NonLockingReadMap) never block, writes briefly take tableLock only to
// resolve a cache miss or create a new column.
type ColumnStore struct {
	tableLock sync.Mutex
	columns   NonLockingReadMap.NonLockingReadMap[nbtree.ExtentsList, uint64]
	bs        *blockstore.BlockStore
	kindOf    map[uint64]nbtree.PayloadKind
}

func New(bs *blockstore.BlockStore) *ColumnStore {
	return &ColumnStore{
		columns: NonLockingReadMap.New[nbtree.ExtentsList, uint64](),
		bs:      bs,
		kindOf:  map[uint64]nbtree.PayloadKind{},
	}
}

// OpenOrRestore builds an ExtentsList per id in mapping, per spec §4.6.
// forceInit skips rescue-point inspection and always starts fresh (used
// for newly-created series with no persisted state yet). It returns the
// ids whose rescue-point vector signals repair is needed, which the
// caller feeds to the WAL's data-replay pass.
func (cs *ColumnStore) OpenOrRestore(mapping map[uint64][]blockstore.LogicAddr, kinds map[uint64]nbtree.PayloadKind, forceInit bool) (status.Status, []uint64) {
	cs.tableLock.Lock()
	defer cs.tableLock.Unlock()

	var needReplay []uint64
	for id, roots := range mapping {
		kind := kinds[id]
		cs.kindOf[id] = kind
		var e *nbtree.ExtentsList
		if forceInit {
			e = nbtree.NewExtentsList(id, kind, cs.bs)
		} else {
			var rs nbtree.RepairState
			e, rs = nbtree.OpenOrRestore(id, kind, cs.bs, roots)
			if rs == nbtree.RepairNeeded {
				needReplay = append(needReplay, id)
				corelog.Warnf("columnstore: series %d flagged for WAL replay", id)
			}
		}
		cs.columns.Set(e)
	}
	return status.OK, needReplay
}

// CreateNewColumn explicitly creates an empty series, per spec §4.6.
func (cs *ColumnStore) CreateNewColumn(id uint64, kind nbtree.PayloadKind) status.Status {
	cs.tableLock.Lock()
	defer cs.tableLock.Unlock()
	if cs.columns.Get(id) != nil {
		return status.BadArg
	}
	cs.kindOf[id] = kind
	cs.columns.Set(nbtree.NewExtentsList(id, kind, cs.bs))
	return status.OK
}

// lookupOrCreate resolves an id miss under tableLock, matching spec §5's
// "acquire table_lock only to resolve an id miss".
func (cs *ColumnStore) lookupOrCreate(id uint64, kind nbtree.PayloadKind) *nbtree.ExtentsList {
	if e := cs.columns.Get(id); e != nil {
		return e
	}
	cs.tableLock.Lock()
	defer cs.tableLock.Unlock()
	if e := cs.columns.Get(id); e != nil {
		return e
	}
	cs.kindOf[id] = kind
	e := nbtree.NewExtentsList(id, kind, cs.bs)
	cs.columns.Set(e)
	return e
}

// Write dispatches a sample by id, per spec §4.6. rescuePointsOut is
// filled only when the append signals a level committed (flush-needed).
func (cs *ColumnStore) Write(id, ts uint64, value float64, blob []byte, kind nbtree.PayloadKind) (status.Status, []blockstore.LogicAddr) {
	e := cs.lookupOrCreate(id, kind)
	st, flush := e.Append(ts, value, blob)
	if st != status.OK {
		return st, nil
	}
	if flush {
		return status.OK, e.GetRoots()
	}
	return status.OK, nil
}

// RecoveryWrite is used only during WAL replay (spec §4.6): it suppresses
// LATE_WRITE for the first recovered value of a series, since the replay
// source (the data stream) may legitimately re-deliver the exact last
// persisted point.
func (cs *ColumnStore) RecoveryWrite(id, ts uint64, value float64, allowDuplicates bool) status.Status {
	kind := cs.kindOf[id]
	e := cs.lookupOrCreate(id, kind)
	st, _ := e.Append(ts, value, nil)
	if st == status.LateWrite && allowDuplicates {
		return status.OK
	}
	return st
}

// Close commits selected (or, if ids is nil, all) dirty columns and
// returns their final rescue-point vectors, per spec §4.6.
func (cs *ColumnStore) Close(ids []uint64) map[uint64][]blockstore.LogicAddr {
	out := map[uint64][]blockstore.LogicAddr{}
	if ids == nil {
		for _, e := range cs.columns.GetAll() {
			out[e.ID()] = e.Close()
		}
		return out
	}
	for _, id := range ids {
		if e := cs.columns.Get(id); e != nil {
			out[id] = e.Close()
		}
	}
	return out
}

// Get exposes the raw extents list for the operator-building layer
// (query/engine), which needs direct access to build Scan/Aggregate
// operator trees from each selected series.
func (cs *ColumnStore) Get(id uint64) *nbtree.ExtentsList {
	return cs.columns.Get(id)
}

func (cs *ColumnStore) KindOf(id uint64) nbtree.PayloadKind {
	return cs.kindOf[id]
}
