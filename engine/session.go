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

package engine

import (
	"github.com/launix-de/nbtsdb/blockstore"
	"github.com/launix-de/nbtsdb/columnstore"
	"github.com/launix-de/nbtsdb/nbtree"
	"github.com/launix-de/nbtsdb/status"
)

// Session is a writer thread's handle, per spec §4.6/§5: a private
// columnstore.Session cache fronting one WAL shard, picked once at
// creation rather than hashed from a thread id on the hot append path
// (SPEC_FULL.md's redesign of that detail).
type Session struct {
	db  *DB
	cs  *columnstore.Session
	shd int
}

// OpenSession assigns the next WAL shard round-robin to the new session.
func (db *DB) OpenSession() *Session {
	db.sessionMu.Lock()
	idx := db.nextShard % db.w.ShardCount()
	db.nextShard++
	db.sessionMu.Unlock()
	return &Session{db: db, cs: columnstore.NewSession(db.cols, idx), shd: idx}
}

// Write appends one sample, per spec §6.5's write(sample) -> status. On
// OVERFLOW from the WAL shard with a non-empty stale-id list, the session
// registers the rotate barrier of spec §5: it asks the column store to
// close those ids, waits for the metadata worker's next flush, and only
// then rotates -- Rotate itself retries the overflowed frame, so the
// point that triggered OVERFLOW is already durable once it returns.
func (s *Session) Write(id uint64, ts uint64, value float64, blob []byte, kind nbtree.PayloadKind) status.Status {
	st, roots := s.cs.Write(id, ts, value, blob, kind)
	if st != status.OK {
		return st
	}

	shard := s.db.w.Shard(s.shd)
	if nst := s.db.ensureSeriesNamed(id, shard); nst != status.OK {
		return nst
	}
	if roots != nil {
		s.db.noteRescue(id, roots)
		if rst := shard.AppendRescue(id, rootsToUint64(roots)); rst != status.OK {
			return rst
		}
	}

	wst, staleIDs := shard.AppendData(id, ts, value)
	if wst == status.Overflow {
		if len(staleIDs) > 0 {
			s.db.closeAndBarrier(staleIDs)
		}
		return shard.Rotate()
	}
	return wst
}

// Close flushes every series this session ever touched and records their
// fresh rescue points for the metadata worker to persist.
func (s *Session) Close() {
	shard := s.db.w.Shard(s.shd)
	for id, roots := range s.cs.Close() {
		s.db.noteRescue(id, roots)
		shard.AppendRescue(id, rootsToUint64(roots))
	}
}

func rootsToUint64(roots []blockstore.LogicAddr) []uint64 {
	out := make([]uint64, len(roots))
	for i, a := range roots {
		out[i] = uint64(a)
	}
	return out
}
