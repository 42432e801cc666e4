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
	"math"

	"github.com/launix-de/nbtsdb/blockstore"
	"github.com/launix-de/nbtsdb/status"
)

// SuperblockNode is a level-k (k>=1) node: an ordered sequence of up to F
// child SubtreeRefs. It is sealed (and must be committed) as soon as the
// F-th ref is appended.
type SuperblockNode struct {
	id          uint64
	level       uint16
	prev        blockstore.LogicAddr
	fanoutIndex uint16

	children []SubtreeRef
	sealed   bool
}

func NewSuperblock(id uint64, level uint16, prev blockstore.LogicAddr, fanoutIndex uint16) *SuperblockNode {
	return &SuperblockNode{id: id, level: level, prev: prev, fanoutIndex: fanoutIndex}
}

func (s *SuperblockNode) Sealed() bool  { return s.sealed }
func (s *SuperblockNode) Count() int    { return len(s.children) }
func (s *SuperblockNode) Level() uint16 { return s.level }

// Append pushes a child SubtreeRef (whose Level must be s.level-1) and sets
// its FanoutIndex to the running count -- both invariants from spec §8 #2.
// Returns OVERFLOW once F children are already stored.
func (s *SuperblockNode) Append(child SubtreeRef) status.Status {
	if s.sealed || len(s.children) >= F {
		return status.Overflow
	}
	if child.Level != s.level-1 {
		panic("nbtree: superblock child level mismatch")
	}
	child.FanoutIndex = uint16(len(s.children))
	s.children = append(s.children, child)
	if len(s.children) == F {
		s.sealed = true
	}
	return status.OK
}

// header aggregates the children: count/sum summed, min/max element-wise,
// begin/end/first/last taken from the first/last child.
func (s *SuperblockNode) header() SubtreeRef {
	h := SubtreeRef{
		ID: s.id, Type: Inner, Level: s.level, Version: NodeVersion,
		FanoutIndex: s.fanoutIndex, Addr: uint64(s.prev),
		Min: math.MaxFloat64, Max: -math.MaxFloat64,
	}
	for i, c := range s.children {
		h.Count += c.Count
		h.Sum += c.Sum
		if c.Min < h.Min {
			h.Min = c.Min
			h.MinTime = c.MinTime
		}
		if c.Max > h.Max {
			h.Max = c.Max
			h.MaxTime = c.MaxTime
		}
		if i == 0 {
			h.Begin = c.Begin
			h.First = c.First
		}
		if i == len(s.children)-1 {
			h.End = c.End
			h.Last = c.Last
		}
	}
	return h
}

// Commit serializes the children array as payload and appends the block.
func (s *SuperblockNode) Commit(bs *blockstore.BlockStore) (status.Status, blockstore.LogicAddr) {
	if s.sealed && len(s.children) == 0 {
		return status.BadArg, blockstore.EmptyAddr
	}
	h := s.header()
	payload := make([]byte, len(s.children)*HeaderSize)
	for i := range s.children {
		s.children[i].encode(payload[i*HeaderSize : (i+1)*HeaderSize])
	}
	h.PayloadSize = uint16(len(payload))
	h.Checksum = blockstore.CRC32C(payload)

	block := make([]byte, blockstore.BlockSize)
	h.encode(block[:HeaderSize])
	copy(block[HeaderSize:], payload)
	st, addr := bs.AppendBlock(block)
	if st == status.OK {
		s.sealed = true
	}
	return st, addr
}

// ReadSuperblock reads and verifies a superblock node, returning its own
// header and its decoded child SubtreeRefs.
func ReadSuperblock(bs *blockstore.BlockStore, addr blockstore.LogicAddr) (status.Status, SubtreeRef, []SubtreeRef) {
	st, raw := bs.ReadBlock(addr)
	if st != status.OK {
		return st, SubtreeRef{}, nil
	}
	h := decodeSubtreeRef(raw[:HeaderSize])
	payload := raw[HeaderSize : HeaderSize+int(h.PayloadSize)]
	if blockstore.CRC32C(payload) != h.Checksum {
		return status.BadData, SubtreeRef{}, nil
	}
	n := len(payload) / HeaderSize
	children := make([]SubtreeRef, n)
	for i := 0; i < n; i++ {
		children[i] = decodeSubtreeRef(payload[i*HeaderSize : (i+1)*HeaderSize])
	}
	return status.OK, h, children
}
