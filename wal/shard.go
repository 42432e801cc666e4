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
	"os"
	"path/filepath"

	"github.com/launix-de/nbtsdb/status"
)

// Shard owns one writer's pair of data/meta streams (spec §4.7's "each
// shard has two parallel streams").
type Shard struct {
	id  int
	dir string

	maxVolumes int
	data       *stream
	meta       *stream

	pendingData  []DataTuple
	pendingNames []FlexName
	pendingRescues []FlexRescue
}

func openShard(dir string, id, maxVolumes int) (*Shard, error) {
	s := &Shard{id: id, dir: dir, maxVolumes: maxVolumes}
	var err error
	if s.data, err = openStream(dir, kindData, id, 0, maxVolumes); err != nil {
		return nil, err
	}
	if s.meta, err = openStream(dir, kindMeta, id, 0, maxVolumes); err != nil {
		return nil, err
	}
	return s, nil
}

// AppendData buffers one (id,ts,value) tuple; once MaxDataTuples are
// pending, the frame is compressed and flushed. Returns OVERFLOW (with
// staleIDs populated) once the current data volume holds framesPerVolume
// frames; staleIDs are the ids written to that volume, which must be
// force-committed before Rotate. Older volumes are not consulted.
func (s *Shard) AppendData(id, ts uint64, value float64) (st status.Status, staleIDs []uint64) {
	s.data.dataIDs[id] = true
	s.pendingData = append(s.pendingData, DataTuple{ID: id, TS: ts, Value: value})
	if len(s.pendingData) < MaxDataTuples {
		return status.OK, nil
	}
	return s.flushData()
}

// flushData writes the pending frame. On OVERFLOW the frame (and its
// dataIDs bookkeeping) is left untouched -- rotation has not happened yet
// -- and the ids written to the full current volume are reported so the
// caller can force-commit them first, per spec §4.7/§5.
func (s *Shard) flushData() (status.Status, []uint64) {
	if len(s.pendingData) == 0 {
		return status.OK, nil
	}
	frame := encodeDataFrame(s.data.seq, s.pendingData)
	st := s.data.writeFrame(frame)
	if st == status.Overflow {
		return st, s.staleIDsLocked()
	}
	s.pendingData = s.pendingData[:0]
	if st != status.OK {
		return st, nil
	}
	return status.OK, nil
}

// staleIDsLocked lists the ids present in the current (full) data volume.
func (s *Shard) staleIDsLocked() []uint64 {
	stale := make([]uint64, 0, len(s.data.dataIDs))
	for id := range s.data.dataIDs {
		stale = append(stale, id)
	}
	return stale
}

// Flush writes whatever is pending as a partial (not full) frame -- spec
// §4.7's flush(): "write the partial head frame".
func (s *Shard) Flush() status.Status {
	st, _ := s.flushData()
	return st
}

func (s *Shard) AppendName(id uint64, name string) status.Status {
	s.pendingNames = append(s.pendingNames, FlexName{ID: id, Name: name})
	return s.flushMeta()
}

func (s *Shard) AppendRescue(id uint64, points []uint64) status.Status {
	s.pendingRescues = append(s.pendingRescues, FlexRescue{ID: id, Points: append([]uint64(nil), points...)})
	return s.flushMeta()
}

func (s *Shard) flushMeta() status.Status {
	frame := encodeFlexFrame(s.meta.seq, s.pendingNames, s.pendingRescues)
	st := s.meta.writeFrame(frame)
	s.pendingNames = s.pendingNames[:0]
	s.pendingRescues = s.pendingRescues[:0]
	return st
}

// Rotate implements spec §4.7's rotate(): deletes the oldest volume of the
// data stream (once max_volumes have been produced) and opens a fresh head
// volume, then retries whatever frame overflowed. The caller must have
// already force-committed the stale ids flushData reported -- per spec §5's
// WAL rotate barrier, no data referenced only by the discarded volume may
// still be unpersisted when this runs.
func (s *Shard) Rotate() status.Status {
	oldestVol := s.data.volume - s.maxVolumes + 1
	if oldestVol >= 0 {
		oldPath := filepath.Join(s.dir, kindData.fileName(oldestVol, s.id))
		os.Remove(oldPath)
	}
	s.data.close()
	s.data.volume++
	s.data.dataIDs = map[uint64]bool{}
	s.data.frameCount = 0
	if err := s.data.openCurrentFile(); err != nil {
		return status.Access
	}
	st, _ := s.flushData()
	return st
}

func (s *Shard) close() {
	s.Flush()
	s.flushMeta()
	s.data.close()
	s.meta.close()
}
