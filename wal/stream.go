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

package wal

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pierrec/lz4/v4"

	"github.com/launix-de/nbtsdb/internal/corelog"
	"github.com/launix-de/nbtsdb/status"
)

// streamKind distinguishes the two parallel per-shard files of spec §4.7.
type streamKind int

const (
	kindData streamKind = iota
	kindMeta
)

func (k streamKind) fileName(volume, shard int) string {
	if k == kindData {
		return fmt.Sprintf("datalog%d_%d.ils", volume, shard)
	}
	return fmt.Sprintf("metalog%d_%d.ils", volume, shard)
}

// framesPerVolume bounds how many frames one volume file holds before
// append must rotate to the next volume, per spec §4.7's "on file-full,
// return OVERFLOW".
const framesPerVolume = 64

// stream is one growing log file: a sequence of
// [u32 compressed_size][compressed_size bytes of LZ4] records, each
// decompressing to exactly FrameSize bytes.
type stream struct {
	dir        string
	shard      int
	kind       streamKind
	volume     int
	maxVolumes int

	f         *os.File
	seq       uint64
	frameCount int

	// dataIDs tracks which series ids appeared in the CURRENT volume's
	// data stream, for the stale-id overflow policy (data stream only).
	dataIDs map[uint64]bool

	head   []byte // partial frame payload, pre-compression
	headPos int
}

func openStream(dir string, kind streamKind, shard, volume, maxVolumes int) (*stream, error) {
	s := &stream{dir: dir, shard: shard, kind: kind, volume: volume, maxVolumes: maxVolumes, dataIDs: map[uint64]bool{}}
	if err := s.openCurrentFile(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *stream) openCurrentFile() error {
	path := filepath.Join(s.dir, s.kind.fileName(s.volume, s.shard))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("wal: open %s: %w", path, err)
	}
	s.f = f
	return nil
}

// writeFrame compresses a full FrameSize buffer and appends it as one
// length-prefixed record. Once the volume has accumulated framesPerVolume
// frames it refuses further writes with OVERFLOW, leaving raw unwritten so
// the caller can rotate and retry -- spec §4.7's "on file-full, return
// OVERFLOW" precedes rotate(), not the other way around.
func (s *stream) writeFrame(raw []byte) status.Status {
	if s.frameCount >= framesPerVolume {
		return status.Overflow
	}
	compressed := make([]byte, lz4.CompressBlockBound(len(raw)))
	var c lz4.Compressor
	n, err := c.CompressBlock(raw, compressed)
	if err != nil || n == 0 {
		corelog.Errorf("wal: lz4 compress failed on shard %d: %v", s.shard, err)
		return status.BadData
	}
	compressed = compressed[:n]

	var hdr [4]byte
	binary.LittleEndian.PutUint32(hdr[:], uint32(len(compressed)))
	if _, err := s.f.Write(hdr[:]); err != nil {
		corelog.Errorf("wal: write record on shard %d: %v", s.shard, err)
		return status.Access
	}
	if _, err := s.f.Write(compressed); err != nil {
		corelog.Errorf("wal: write record on shard %d: %v", s.shard, err)
		return status.Access
	}
	s.seq++
	s.frameCount++
	return status.OK
}

func (s *stream) close() error {
	if s.f == nil {
		return nil
	}
	return s.f.Close()
}

// readAllFrames decompresses every record in the stream's current file
// from the start, used for replay.
func readAllFrames(path string) ([]Frame, status.Status) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, status.OK
		}
		return nil, status.Access
	}
	defer f.Close()

	var frames []Frame
	var hdr [4]byte
	for {
		if _, err := io.ReadFull(f, hdr[:]); err != nil {
			break
		}
		n := binary.LittleEndian.Uint32(hdr[:])
		compressed := make([]byte, n)
		if _, err := io.ReadFull(f, compressed); err != nil {
			corelog.Warnf("wal: truncated record in %s, stopping replay of this file", path)
			break
		}
		raw := make([]byte, FrameSize)
		if _, err := lz4.UncompressBlock(compressed, raw); err != nil {
			corelog.Warnf("wal: lz4 decompress failed in %s, skipping frame: %v", path, err)
			continue
		}
		fr, st := decodeFrame(raw)
		if st != status.OK {
			corelog.Warnf("wal: bad frame header in %s, skipping", path)
			continue
		}
		frames = append(frames, fr)
	}
	return frames, status.OK
}
