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

// Package nbtree implements the per-series "necklace B+tree": the leaf and
// superblock on-disk node formats, the SubtreeRef header/child-descriptor
// shared by both, and the per-series extents list that appends data points
// and commits nodes to a blockstore.BlockStore.
package nbtree

import (
	"encoding/binary"
	"math"

	"github.com/launix-de/nbtsdb/blockstore"
)

// F is the fanout: the maximum number of child SubtreeRefs a superblock
// holds, and the maximum number of siblings addressable from one fanout
// chain at any level.
const F = 32

// NodeVersion is the on-disk format version tag; spec §1 scopes schema
// evolution no further than this one field.
const NodeVersion = 1

type NodeType uint16

const (
	Leaf NodeType = iota
	Inner
)

// PayloadKind distinguishes numeric series (plain f64 samples, the only
// kind the operator/materializer tier understands arithmetically) from
// event series (opaque byte payloads, see SPEC_FULL.md "Blob variant").
// It is fixed per series at creation and is not part of the on-disk
// SubtreeRef (every node in a series' tree shares it).
type PayloadKind uint8

const (
	KindFloat PayloadKind = iota
	KindBlob
)

// SubtreeRef is the fixed-size header at byte 0 of every NB+tree block,
// and also the fixed-size child descriptor a parent superblock stores for
// each of its children. Field order matches spec §6.1 exactly.
type SubtreeRef struct {
	Count       uint64
	ID          uint64 // ParamId
	Begin       uint64 // first timestamp covered
	End         uint64 // last timestamp covered
	Addr        uint64 // prev-sibling LogicAddr, or EMPTY_ADDR
	Min         float64
	MinTime     uint64
	Max         float64
	MaxTime     uint64
	Sum         float64
	First       float64
	Last        float64
	Type        NodeType
	Level       uint16
	PayloadSize uint16
	Version     uint16
	FanoutIndex uint16
	Checksum    uint32
}

// HeaderSize is the packed, little-endian on-disk size of a SubtreeRef:
// twelve 8-byte fields, five 2-byte fields, one 4-byte field.
const HeaderSize = 12*8 + 5*2 + 4

// MaxPayload is how many payload bytes fit in one block after the header.
const MaxPayload = blockstore.BlockSize - HeaderSize

func (r *SubtreeRef) encode(buf []byte) {
	le := binary.LittleEndian
	le.PutUint64(buf[0:], r.Count)
	le.PutUint64(buf[8:], r.ID)
	le.PutUint64(buf[16:], r.Begin)
	le.PutUint64(buf[24:], r.End)
	le.PutUint64(buf[32:], r.Addr)
	le.PutUint64(buf[40:], math.Float64bits(r.Min))
	le.PutUint64(buf[48:], r.MinTime)
	le.PutUint64(buf[56:], math.Float64bits(r.Max))
	le.PutUint64(buf[64:], r.MaxTime)
	le.PutUint64(buf[72:], math.Float64bits(r.Sum))
	le.PutUint64(buf[80:], math.Float64bits(r.First))
	le.PutUint64(buf[88:], math.Float64bits(r.Last))
	le.PutUint16(buf[96:], uint16(r.Type))
	le.PutUint16(buf[98:], r.Level)
	le.PutUint16(buf[100:], r.PayloadSize)
	le.PutUint16(buf[102:], r.Version)
	le.PutUint16(buf[104:], r.FanoutIndex)
	le.PutUint32(buf[106:], r.Checksum)
}

func decodeSubtreeRef(buf []byte) SubtreeRef {
	le := binary.LittleEndian
	var r SubtreeRef
	r.Count = le.Uint64(buf[0:])
	r.ID = le.Uint64(buf[8:])
	r.Begin = le.Uint64(buf[16:])
	r.End = le.Uint64(buf[24:])
	r.Addr = le.Uint64(buf[32:])
	r.Min = math.Float64frombits(le.Uint64(buf[40:]))
	r.MinTime = le.Uint64(buf[48:])
	r.Max = math.Float64frombits(le.Uint64(buf[56:]))
	r.MaxTime = le.Uint64(buf[64:])
	r.Sum = math.Float64frombits(le.Uint64(buf[72:]))
	r.First = math.Float64frombits(le.Uint64(buf[80:]))
	r.Last = math.Float64frombits(le.Uint64(buf[88:]))
	r.Type = NodeType(le.Uint16(buf[96:]))
	r.Level = le.Uint16(buf[98:])
	r.PayloadSize = le.Uint16(buf[100:])
	r.Version = le.Uint16(buf[102:])
	r.FanoutIndex = le.Uint16(buf[104:])
	r.Checksum = le.Uint32(buf[106:])
	return r
}

func (r *SubtreeRef) AddrValue() blockstore.LogicAddr   { return blockstore.LogicAddr(r.Addr) }
func (r *SubtreeRef) SetAddrValue(a blockstore.LogicAddr) { r.Addr = uint64(a) }
