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
	"encoding/binary"
	"math"

	"github.com/launix-de/nbtsdb/blockstore"
	"github.com/launix-de/nbtsdb/status"
)

// LeafBlock is a level-0 node: a compressed (ts, value) stream plus the
// aggregate header. The stream codec is a delta-of-timestamp + raw-float
// encoding: timestamps are non-decreasing per series (spec §4.3), so a
// varint delta from the previous timestamp is almost always one byte,
// and the value kind decides whether 8 raw float bytes or a
// length-prefixed blob follows.
type LeafBlock struct {
	id    uint64
	kind  PayloadKind
	prev  blockstore.LogicAddr
	fanoutIndex uint16

	payload  []byte // growing encoded stream
	lastTS   uint64
	hasPoint bool

	count   uint64
	begin   uint64
	end     uint64
	min     float64
	minTime uint64
	max     float64
	maxTime uint64
	sum     float64
	first   float64
	last    float64

	sealed bool
}

// NewLeaf starts a fresh, empty leaf for series id, chained to prev (the
// previous leaf of the same series, or EMPTY_ADDR for the first one).
func NewLeaf(id uint64, kind PayloadKind, prev blockstore.LogicAddr, fanoutIndex uint16) *LeafBlock {
	return &LeafBlock{id: id, kind: kind, prev: prev, fanoutIndex: fanoutIndex, min: math.MaxFloat64, max: -math.MaxFloat64}
}

func (l *LeafBlock) Sealed() bool { return l.sealed }
func (l *LeafBlock) Count() uint64 { return l.count }

// Append encodes one (ts, value) point. Returns OVERFLOW (without mutating
// state) once the block cannot hold the point; BAD_VALUE for NaN/Inf
// numeric samples.
func (l *LeafBlock) Append(ts uint64, value float64, blob []byte) status.Status {
	if l.sealed {
		return status.Overflow
	}
	if l.kind == KindFloat && (math.IsNaN(value) || math.IsInf(value, 0)) {
		return status.BadValue
	}
	if l.hasPoint && ts < l.lastTS {
		return status.LateWrite
	}

	var tmp [binary.MaxVarintLen64]byte
	var delta uint64
	if l.hasPoint {
		delta = ts - l.lastTS
	} else {
		delta = ts
	}
	n := binary.PutUvarint(tmp[:], delta)

	need := n
	if l.kind == KindFloat {
		need += 8
	} else {
		var lenbuf [binary.MaxVarintLen64]byte
		ln := binary.PutUvarint(lenbuf[:], uint64(len(blob)))
		need += ln + len(blob)
	}
	if len(l.payload)+need > MaxPayload {
		return status.Overflow
	}

	l.payload = append(l.payload, tmp[:n]...)
	if l.kind == KindFloat {
		var vbuf [8]byte
		binary.LittleEndian.PutUint64(vbuf[:], math.Float64bits(value))
		l.payload = append(l.payload, vbuf[:]...)
	} else {
		var lenbuf [binary.MaxVarintLen64]byte
		ln := binary.PutUvarint(lenbuf[:], uint64(len(blob)))
		l.payload = append(l.payload, lenbuf[:ln]...)
		l.payload = append(l.payload, blob...)
	}

	if !l.hasPoint {
		l.begin = ts
		l.first = value
		l.hasPoint = true
	}
	l.end = ts
	l.last = value
	l.lastTS = ts
	l.count++
	if l.kind == KindFloat {
		l.sum += value
		if value < l.min {
			l.min = value
			l.minTime = ts
		}
		if value > l.max {
			l.max = value
			l.maxTime = ts
		}
	}
	return status.OK
}

// header returns the SubtreeRef this leaf would commit with right now.
func (l *LeafBlock) header() SubtreeRef {
	return SubtreeRef{
		Count: l.count, ID: l.id, Begin: l.begin, End: l.end,
		Addr: uint64(l.prev), Min: l.min, MinTime: l.minTime,
		Max: l.max, MaxTime: l.maxTime, Sum: l.sum, First: l.first, Last: l.last,
		Type: Leaf, Level: 0, PayloadSize: uint16(len(l.payload)),
		Version: NodeVersion, FanoutIndex: l.fanoutIndex,
	}
}

// Commit finalizes the header, appends the block to bs and seals the leaf;
// after this the leaf is immutable.
func (l *LeafBlock) Commit(bs *blockstore.BlockStore) (status.Status, blockstore.LogicAddr) {
	if l.sealed {
		return status.BadArg, blockstore.EmptyAddr
	}
	h := l.header()
	block := make([]byte, blockstore.BlockSize)
	h.Checksum = blockstore.CRC32C(l.payload)
	h.encode(block[:HeaderSize])
	copy(block[HeaderSize:], l.payload)
	st, addr := bs.AppendBlock(block)
	if st == status.OK {
		l.sealed = true
	}
	return st, addr
}

// ReadLeaf reads the leaf committed at addr and returns its header and its
// still-encoded payload (see DecodeLeafStream); BAD_DATA on a checksum
// mismatch.
func ReadLeaf(bs *blockstore.BlockStore, addr blockstore.LogicAddr) (status.Status, SubtreeRef, []byte) {
	st, raw := bs.ReadBlock(addr)
	if st != status.OK {
		return st, SubtreeRef{}, nil
	}
	h := decodeSubtreeRef(raw[:HeaderSize])
	payload := raw[HeaderSize : HeaderSize+int(h.PayloadSize)]
	if blockstore.CRC32C(payload) != h.Checksum {
		return status.BadData, SubtreeRef{}, nil
	}
	return status.OK, h, payload
}

// DecodeLeafStream decodes a leaf's raw payload into parallel
// timestamp/value slices (numeric series) alongside blob slices (event
// series leave values nil and blobs non-nil at that index).
func DecodeLeafStream(payload []byte, kind PayloadKind, n uint64) (ts []uint64, values []float64, blobs [][]byte) {
	ts = make([]uint64, 0, n)
	if kind == KindFloat {
		values = make([]float64, 0, n)
	} else {
		blobs = make([][]byte, 0, n)
	}
	var pos int
	var last uint64
	first := true
	for pos < len(payload) {
		delta, n1 := binary.Uvarint(payload[pos:])
		pos += n1
		var cur uint64
		if first {
			cur = delta
			first = false
		} else {
			cur = last + delta
		}
		last = cur
		ts = append(ts, cur)
		if kind == KindFloat {
			v := math.Float64frombits(binary.LittleEndian.Uint64(payload[pos:]))
			pos += 8
			values = append(values, v)
		} else {
			bl, n2 := binary.Uvarint(payload[pos:])
			pos += n2
			b := make([]byte, bl)
			copy(b, payload[pos:pos+int(bl)])
			pos += int(bl)
			blobs = append(blobs, b)
		}
	}
	return
}
