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

package nbtree

import (
	"sync"

	"github.com/launix-de/nbtsdb/blockstore"
	"github.com/launix-de/nbtsdb/internal/corelog"
	"github.com/launix-de/nbtsdb/status"
)

// RepairState tells the caller whether a reopened series' rescue-point
// vector describes a cleanly-closed tree or one that needs repair.
type RepairState int

const (
	RepairOK RepairState = iota
	RepairNeeded
)

// ExtentsList is the in-memory stack of currently-writable nodes for one
// series, one per level: level 0 is the leaf, level k>0 is SuperblockList
// entry k-1. It owns the rescue-point bookkeeping described in spec §4.3.
type ExtentsList struct {
	mu sync.Mutex

	id   uint64
	kind PayloadKind
	bs   *blockstore.BlockStore

	leaf   *LeafBlock
	supers []*SuperblockNode // supers[i] is level i+1
}

// NewExtentsList creates a brand-new (empty) series tree.
func NewExtentsList(id uint64, kind PayloadKind, bs *blockstore.BlockStore) *ExtentsList {
	e := &ExtentsList{id: id, kind: kind, bs: bs}
	e.leaf = NewLeaf(id, kind, blockstore.EmptyAddr, 0)
	return e
}

// GetKey and ComputeSize satisfy NonLockingReadMap's KeyGetter constraint,
// so columnstore can index ExtentsLists by series id directly.
func (e *ExtentsList) GetKey() uint64 { return e.id }
func (e *ExtentsList) ComputeSize() uint {
	e.mu.Lock()
	defer e.mu.Unlock()
	return 64 + uint(len(e.leaf.payload)) + uint(len(e.supers))*64
}

func (e *ExtentsList) ID() uint64         { return e.id }
func (e *ExtentsList) Kind() PayloadKind  { return e.kind }
func (e *ExtentsList) Height() int        { return len(e.supers) } // top level index

// Append inserts one data point, cascading commits up through as many
// levels as overflow. It returns OK_FLUSH_NEEDED semantics via the second
// return value: true means at least one level committed and the caller
// must persist the refreshed rescue-point vector.
func (e *ExtentsList) Append(ts uint64, value float64, blob []byte) (status.Status, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := e.leaf.Append(ts, value, blob)
	if st == status.OK {
		return status.OK, false
	}
	if st != status.Overflow {
		return st, false
	}

	// leaf is full: commit it and start a fresh one, then retry.
	cst, addr := e.leaf.Commit(e.bs)
	if cst != status.OK {
		return cst, false
	}
	childRef := e.leaf.header()
	childRef.SetAddrValue(addr)
	prevFanout := e.leaf.fanoutIndex
	e.leaf = NewLeaf(e.id, e.kind, addr, (prevFanout+1)%F)

	if pst := e.pushChild(0, childRef); pst != status.OK {
		return pst, false
	}

	st = e.leaf.Append(ts, value, blob)
	if st != status.OK {
		// a single point must always fit in an empty leaf.
		panic("nbtree: point does not fit a fresh leaf")
	}
	return status.OK, true
}

// pushChild offers a just-committed node's SubtreeRef (produced at
// level=childLevel) up to its parent superblock, creating the parent if it
// does not exist yet, and cascades further if the parent itself seals.
func (e *ExtentsList) pushChild(childLevel int, ref SubtreeRef) status.Status {
	idx := childLevel // supers[idx] is level idx+1
	if idx >= len(e.supers) {
		e.supers = append(e.supers, NewSuperblock(e.id, uint16(idx+1), blockstore.EmptyAddr, 0))
	}
	s := e.supers[idx]
	if st := s.Append(ref); st != status.OK {
		return st
	}
	if !s.Sealed() {
		return status.OK
	}
	cst, addr := s.Commit(e.bs)
	if cst != status.OK {
		return cst
	}
	parentRef := s.header()
	parentRef.SetAddrValue(addr)
	prevFanout := s.fanoutIndex
	e.supers[idx] = NewSuperblock(e.id, s.level, addr, (prevFanout+1)%F)
	return e.pushChild(idx+1, parentRef)
}

// GetRoots snapshots the current rescue-point vector: EMPTY_ADDR for every
// level except the top, which holds the address of its last committed
// sibling (EMPTY_ADDR if nothing has ever sealed at the top yet).
func (e *ExtentsList) GetRoots() []blockstore.LogicAddr {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.getRootsLocked()
}

func (e *ExtentsList) getRootsLocked() []blockstore.LogicAddr {
	h := len(e.supers) // number of superblock levels; top index is h
	roots := make([]blockstore.LogicAddr, h+1)
	for i := range roots {
		roots[i] = blockstore.EmptyAddr
	}
	if h == 0 {
		roots[0] = e.leaf.prev
	} else {
		roots[h] = e.supers[h-1].prev
	}
	return roots
}

// Close force-commits every dirty extent bottom-to-top exactly once each,
// threading each level's resulting ref into the next EXISTING level only
// -- it never manufactures a level beyond the height the tree already
// had, which would otherwise recurse forever (every force-commit of a
// partial node yields exactly one more entry for its parent). The
// returned vector has EMPTY_ADDR for all but the top level, which holds
// the address of the final committed root.
func (e *ExtentsList) Close() []blockstore.LogicAddr {
	e.mu.Lock()
	defer e.mu.Unlock()

	origHeight := len(e.supers)
	roots := make([]blockstore.LogicAddr, origHeight+1)
	for i := range roots {
		roots[i] = blockstore.EmptyAddr
	}

	var pending *SubtreeRef
	if e.leaf.Count() > 0 {
		if cst, addr := e.leaf.Commit(e.bs); cst == status.OK {
			ref := e.leaf.header()
			ref.SetAddrValue(addr)
			if origHeight == 0 {
				roots[0] = addr
			} else {
				pending = &ref
			}
		}
	} else if origHeight == 0 {
		roots[0] = e.leaf.prev
	}

	for i := 0; i < origHeight; i++ {
		s := e.supers[i]
		if pending != nil {
			s.Append(*pending)
			pending = nil
		}
		if s.Count() == 0 {
			if i == origHeight-1 {
				roots[i+1] = s.prev
			}
			continue
		}
		cst, addr := s.Commit(e.bs)
		if cst != status.OK {
			continue
		}
		ref := s.header()
		ref.SetAddrValue(addr)
		if i == origHeight-1 {
			roots[i+1] = addr
		} else {
			pending = &ref
		}
	}
	return roots
}

// Snapshot is a consistent point-in-time view of a series tree, split into
// the committed, on-disk portion (TopAddr/TopLevel, walkable by operator.Scan)
// and the still-open in-memory leaf tail that has not been committed yet.
type Snapshot struct {
	TopAddr  blockstore.LogicAddr
	TopLevel uint16
	LiveTS   []uint64
	LiveVal  []float64
	LiveBlob [][]byte
}

// Snapshot captures the current resumption root plus the open leaf's
// in-memory points, for handing to operator.NewSeriesScan.
func (e *ExtentsList) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	var s Snapshot
	h := len(e.supers)
	if h == 0 {
		s.TopAddr, s.TopLevel = e.leaf.prev, 0
	} else {
		s.TopAddr, s.TopLevel = e.supers[h-1].prev, uint16(h)
	}
	s.LiveTS, s.LiveVal, s.LiveBlob = DecodeLeafStream(e.leaf.payload, e.kind, e.leaf.count)
	return s
}

// RepairStatus evaluates a rescue-point vector per spec §4.3: OK only when
// exactly one element is non-empty and it is the last one.
func RepairStatus(roots []blockstore.LogicAddr) RepairState {
	nonEmpty := 0
	lastIdx := -1
	for i, a := range roots {
		if !a.IsEmpty() {
			nonEmpty++
			lastIdx = i
		}
	}
	if nonEmpty == 1 && lastIdx == len(roots)-1 {
		return RepairOK
	}
	return RepairNeeded
}

// OpenOrRestore rebuilds an ExtentsList's in-memory resumption state from
// a persisted rescue-point vector. Per DESIGN.md's Open Question
// resolution: the anchor level (the highest non-empty rescue point) is
// walked to recover its own fanout position; everything below the anchor
// resumes as a fresh, empty node, since an in-memory-only partially-filled
// intermediate superblock cannot be reconstructed once lost -- any points
// it held are expected to still be present in the WAL and are restored by
// recovery_write, not by this function.
func OpenOrRestore(id uint64, kind PayloadKind, bs *blockstore.BlockStore, roots []blockstore.LogicAddr) (*ExtentsList, RepairState) {
	e := &ExtentsList{id: id, kind: kind, bs: bs}
	st := RepairStatus(roots)
	if st == RepairNeeded {
		corelog.Warnf("nbtree: series %d needs repair (rescue points=%v); resuming from the highest known anchor, relying on WAL replay for the rest", id, roots)
	}

	anchor := -1
	for i, a := range roots {
		if !a.IsEmpty() {
			anchor = i
		}
	}

	h := len(roots) - 1
	e.supers = make([]*SuperblockNode, h)
	if anchor < 0 {
		e.leaf = NewLeaf(id, kind, blockstore.EmptyAddr, 0)
		for i := 0; i < h; i++ {
			e.supers[i] = NewSuperblock(id, uint16(i+1), blockstore.EmptyAddr, 0)
		}
		return e, st
	}

	// recover the anchor level's resumption state by reading its own
	// node header off disk.
	var anchorFanout uint16
	if anchor == 0 {
		rst, hdr, _ := ReadLeaf(bs, roots[0])
		if rst != status.OK {
			corelog.Errorf("nbtree: series %d could not read anchor leaf %v: %v", id, roots[0], rst)
		} else {
			anchorFanout = hdr.FanoutIndex
		}
	} else {
		rst, hdr, _ := ReadSuperblock(bs, roots[anchor])
		if rst != status.OK {
			corelog.Errorf("nbtree: series %d could not read anchor superblock %v: %v", id, roots[anchor], rst)
		} else {
			anchorFanout = hdr.FanoutIndex
		}
	}

	for i := 0; i < h; i++ {
		if i+1 == anchor {
			e.supers[i] = NewSuperblock(id, uint16(i+1), roots[anchor], (anchorFanout+1)%F)
		} else {
			e.supers[i] = NewSuperblock(id, uint16(i+1), blockstore.EmptyAddr, 0)
		}
	}
	if anchor == 0 {
		e.leaf = NewLeaf(id, kind, roots[0], (anchorFanout+1)%F)
	} else {
		e.leaf = NewLeaf(id, kind, blockstore.EmptyAddr, 0)
	}
	return e, st
}
