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

// Package wal is the sharded, LZ4-compressed write-ahead input log of
// spec §4.7: a data stream of raw (id,ts,value) appends and a meta stream
// of series-name/rescue-point records, both framed at a fixed size before
// compression, replayed in two passes on recovery.
package wal

import (
	"encoding/binary"
	"math"

	"github.com/launix-de/nbtsdb/status"
)

const (
	frameMagic    = 1
	FrameSize     = 8192 // decompressed frame size, spec §6.2
	frameHdrSize  = 16
)

type FrameType uint16

const (
	FrameEmpty FrameType = 0
	FrameData  FrameType = 1
	FrameFlex  FrameType = 2
)

// dataTupleSize is the encoded size of one (id, ts, value) tuple.
const dataTupleSize = 8 + 8 + 8

// MaxDataTuples is how many (id,ts,value) tuples fit in one data frame's
// payload, after the 16-byte common header.
const MaxDataTuples = (FrameSize - frameHdrSize) / dataTupleSize

// Frame is one decoded 8 KiB WAL frame.
type Frame struct {
	Type           FrameType
	Sequence       uint64
	DataTuples     []DataTuple
	FlexNames      []FlexName
	FlexRescue     []FlexRescue
}

type DataTuple struct {
	ID    uint64
	TS    uint64
	Value float64
}

// FlexName is a series-name record ("len<0 marks a series-name", spec §6.2).
type FlexName struct {
	ID   uint64
	Name string
}

// FlexRescue is a rescue-point-vector record for one series.
type FlexRescue struct {
	ID     uint64
	Points []uint64
}

// encodeDataFrame packs tuples into one fixed FrameSize buffer.
func encodeDataFrame(seq uint64, tuples []DataTuple) []byte {
	buf := make([]byte, FrameSize)
	binary.LittleEndian.PutUint16(buf[0:2], frameMagic)
	binary.LittleEndian.PutUint16(buf[2:4], uint16(FrameData))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(len(tuples)))
	binary.LittleEndian.PutUint64(buf[8:16], seq)
	off := frameHdrSize
	for _, t := range tuples {
		binary.LittleEndian.PutUint64(buf[off:], t.ID)
		binary.LittleEndian.PutUint64(buf[off+8:], t.TS)
		binary.LittleEndian.PutUint64(buf[off+16:], math.Float64bits(t.Value))
		off += dataTupleSize
	}
	return buf
}

// encodeFlexFrame packs series-name and rescue-point records as a table
// growing from both ends of the payload: values (name bytes / rescue
// point arrays) from the front, index pairs (id, len_and_off) from the
// back, per spec §6.2's "growing table" layout.
func encodeFlexFrame(seq uint64, names []FlexName, rescues []FlexRescue) []byte {
	buf := make([]byte, FrameSize)
	binary.LittleEndian.PutUint16(buf[0:2], frameMagic)
	binary.LittleEndian.PutUint16(buf[2:4], uint16(FrameFlex))
	binary.LittleEndian.PutUint64(buf[8:16], seq)

	entries := len(names) + len(rescues)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(entries))

	dataOff := frameHdrSize
	idxOff := FrameSize
	writeIndex := func(id uint64, lenAndOff int64) {
		idxOff -= 16
		binary.LittleEndian.PutUint64(buf[idxOff:], id)
		binary.LittleEndian.PutUint64(buf[idxOff+8:], uint64(lenAndOff))
	}
	for _, n := range names {
		start := dataOff
		copy(buf[dataOff:], n.Name)
		dataOff += len(n.Name)
		// negative length marks a series-name record.
		writeIndex(n.ID, -int64(len(n.Name))<<32|int64(start))
	}
	for _, r := range rescues {
		start := dataOff
		for _, p := range r.Points {
			binary.LittleEndian.PutUint64(buf[dataOff:], p)
			dataOff += 8
		}
		writeIndex(r.ID, int64(len(r.Points))<<32|int64(start))
	}
	return buf
}

func decodeFrame(buf []byte) (Frame, status.Status) {
	if len(buf) < frameHdrSize {
		return Frame{}, status.BadData
	}
	magic := binary.LittleEndian.Uint16(buf[0:2])
	if magic != frameMagic {
		return Frame{}, status.BadData
	}
	ft := FrameType(binary.LittleEndian.Uint16(buf[2:4]))
	size := binary.LittleEndian.Uint32(buf[4:8])
	seq := binary.LittleEndian.Uint64(buf[8:16])
	f := Frame{Type: ft, Sequence: seq}

	switch ft {
	case FrameData:
		off := frameHdrSize
		for i := uint32(0); i < size && off+dataTupleSize <= len(buf); i++ {
			id := binary.LittleEndian.Uint64(buf[off:])
			ts := binary.LittleEndian.Uint64(buf[off+8:])
			v := math.Float64frombits(binary.LittleEndian.Uint64(buf[off+16:]))
			f.DataTuples = append(f.DataTuples, DataTuple{ID: id, TS: ts, Value: v})
			off += dataTupleSize
		}
	case FrameFlex:
		idxOff := FrameSize
		for i := uint32(0); i < size; i++ {
			idxOff -= 16
			if idxOff < frameHdrSize {
				break
			}
			id := binary.LittleEndian.Uint64(buf[idxOff:])
			lenAndOff := int64(binary.LittleEndian.Uint64(buf[idxOff+8:]))
			length := lenAndOff >> 32
			start := int(lenAndOff & 0xFFFFFFFF)
			if length < 0 {
				n := int(-length)
				if start+n > len(buf) {
					continue
				}
				f.FlexNames = append(f.FlexNames, FlexName{ID: id, Name: string(buf[start : start+n])})
			} else {
				n := int(length)
				points := make([]uint64, 0, n)
				pos := start
				for j := 0; j < n && pos+8 <= len(buf); j++ {
					points = append(points, binary.LittleEndian.Uint64(buf[pos:]))
					pos += 8
				}
				f.FlexRescue = append(f.FlexRescue, FlexRescue{ID: id, Points: points})
			}
		}
	}
	return f, status.OK
}
